package units

import (
	"context"
	"errors"

	"github.com/smallbiznis/schemashift/internal/migration"
	"go.uber.org/zap"
)

var ErrUUIDUnavailable = errors.New("uuid_generation_unavailable")

// enableUUIDExtension records the extension outcome instead of hiding it. A
// refused extension is fine as long as the store can still generate uuids.
func enableUUIDExtension() migration.Unit {
	return migration.Unit{
		Version: 20240501090000,
		Name:    "enable uuid extension",
		Up: func(ctx context.Context, s *migration.Session) error {
			capability, err := s.Applier.EnsureExtension(ctx, s.UUIDExtension)
			if err != nil {
				return err
			}
			s.Annotate("extension", s.UUIDExtension)
			s.Annotate("capability", string(capability))
			if capability.Usable() {
				return nil
			}

			available, err := s.Applier.UUIDAvailable(ctx)
			if err != nil {
				return err
			}
			s.Annotate("uuid_available", available)
			if !available {
				return ErrUUIDUnavailable
			}
			s.Log.Warn("uuid extension not enabled, using built-in generator",
				zap.String("extension", s.UUIDExtension),
				zap.String("capability", string(capability)),
			)
			return nil
		},
		// the extension stays installed; other objects may depend on it
		Down: func(ctx context.Context, s *migration.Session) error { return nil },
	}
}
