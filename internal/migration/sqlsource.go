package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"unicode"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// LoadSQLUnits reads <version>_<name>.up.sql and .down.sql pairs from dir.
// A missing down file makes the unit irreversible.
func LoadSQLUnits(fsys fs.FS, dir string) (Units, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open sql units: %w", err)
	}
	defer src.Close()

	version, err := src.First()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sql units: %w", err)
	}

	var units Units
	for {
		unit, err := readSQLUnit(src, version)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)

		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read sql units: %w", err)
		}
		version = next
	}
	return units, nil
}

func readSQLUnit(src source.Driver, version uint) (Unit, error) {
	up, identifier, err := src.ReadUp(version)
	if err != nil {
		return Unit{}, fmt.Errorf("read up sql for version %d: %w", version, err)
	}
	upSQL, err := readAll(up)
	if err != nil {
		return Unit{}, err
	}

	unit := Unit{
		Version: uint64(version),
		Name:    identifier,
		Up:      sqlStep(upSQL),
	}

	down, _, err := src.ReadDown(version)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return unit, nil
	case err != nil:
		return Unit{}, fmt.Errorf("read down sql for version %d: %w", version, err)
	}
	downSQL, err := readAll(down)
	if err != nil {
		return Unit{}, err
	}
	unit.Down = sqlStep(downSQL)
	return unit, nil
}

func readAll(r io.ReadCloser) (string, error) {
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sqlStep(body string) Step {
	statements := splitStatements(body)
	return func(ctx context.Context, s *Session) error {
		for _, stmt := range statements {
			if err := s.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		s.Annotate("statements", len(statements))
		return nil
	}
}

// splitStatements splits on semicolons outside quotes, comments and
// PostgreSQL dollar-quoted bodies. Comments are dropped.
func splitStatements(body string) []string {
	var (
		out          []string
		current      strings.Builder
		quote        rune
		lineComment  bool
		blockComment int
		dollar       []rune
	)
	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}

	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case lineComment:
			if r == '\n' {
				lineComment = false
				current.WriteRune(r)
			}
			continue
		case blockComment > 0:
			// block comments nest in PostgreSQL
			switch {
			case r == '/' && next == '*':
				blockComment++
				i++
			case r == '*' && next == '/':
				blockComment--
				i++
				if blockComment == 0 {
					current.WriteRune(' ')
				}
			}
			continue
		case dollar != nil:
			if hasRunePrefix(runes[i:], dollar) {
				current.WriteString(string(dollar))
				i += len(dollar) - 1
				dollar = nil
				continue
			}
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '-' && next == '-':
			lineComment = true
			i++
			continue
		case r == '/' && next == '*':
			blockComment = 1
			i++
			continue
		case r == '$' && (i == 0 || !isIdentRune(runes[i-1])):
			if tag := dollarTag(runes[i:]); tag != nil {
				dollar = tag
				current.WriteString(string(tag))
				i += len(tag) - 1
				continue
			}
		case r == ';':
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()
	return out
}

// dollarTag returns the opening $tag$ at the start of rs, or nil. Positional
// parameters such as $1 are not tags.
func dollarTag(rs []rune) []rune {
	for j := 1; j < len(rs); j++ {
		switch r := rs[j]; {
		case r == '$':
			return rs[:j+1]
		case j == 1 && (unicode.IsLetter(r) || r == '_'):
		case j > 1 && isIdentRune(r):
		default:
			return nil
		}
	}
	return nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func hasRunePrefix(rs, prefix []rune) bool {
	if len(rs) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if rs[i] != r {
			return false
		}
	}
	return true
}
