package migration

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	body := `
-- add a column; with a comment
ALTER TABLE users ADD COLUMN note TEXT DEFAULT 'a;b';
CREATE INDEX idx_users_note ON users (note);
`
	assert.Equal(t, []string{
		"ALTER TABLE users ADD COLUMN note TEXT DEFAULT 'a;b'",
		"CREATE INDEX idx_users_note ON users (note)",
	}, splitStatements(body))
}

func TestSplitStatementsKeepsDollarQuotedBodies(t *testing.T) {
	body := `CREATE FUNCTION touch() RETURNS trigger AS $$
BEGIN
  NEW.updated_at = now();
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;
DO $body$ BEGIN PERFORM 1; END $body$;
SELECT $1::text, price$ FROM t;`
	assert.Equal(t, []string{
		"CREATE FUNCTION touch() RETURNS trigger AS $$\nBEGIN\n  NEW.updated_at = now();\n  RETURN NEW;\nEND;\n$$ LANGUAGE plpgsql",
		"DO $body$ BEGIN PERFORM 1; END $body$",
		"SELECT $1::text, price$ FROM t",
	}, splitStatements(body))
}

func TestSplitStatementsDropsBlockComments(t *testing.T) {
	body := `/* header; /* nested; */ still comment; */
CREATE TABLE a (id TEXT); /* trailing; */ DROP TABLE b;`
	assert.Equal(t, []string{
		"CREATE TABLE a (id TEXT)",
		"DROP TABLE b",
	}, splitStatements(body))
}

func TestLoadSQLUnits(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000010_add_note.up.sql":   {Data: []byte("CREATE TABLE notes (id TEXT PRIMARY KEY);")},
		"sql/000010_add_note.down.sql": {Data: []byte("DROP TABLE notes;")},
		"sql/000011_seed_notes.up.sql": {Data: []byte("INSERT INTO notes (id) VALUES ('n1'); INSERT INTO notes (id) VALUES ('n2');")},
		"sql/README.md":                {Data: []byte("ignored")},
	}

	units, err := LoadSQLUnits(fsys, "sql")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "00000000000010_add_note", units[0].ID())
	assert.True(t, units[0].Reversible())
	assert.False(t, units[1].Reversible())

	ctx := context.Background()
	conn := testDB(t)
	r := newRunner(t, conn, units...)
	_, err = r.Up(ctx)
	require.NoError(t, err)

	var n int64
	require.NoError(t, conn.Table("notes").Count(&n).Error)
	assert.EqualValues(t, 2, n)

	statuses, err := r.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, statuses[1].Details["statements"])
}

func TestLoadSQLUnitsFromEmptyDir(t *testing.T) {
	units, err := LoadSQLUnits(fstest.MapFS{"sql/.keep": {}}, "sql")
	require.NoError(t, err)
	assert.Empty(t, units)
}
