package history

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmhunter/internal/config"
	"github.com/sells-group/pharmhunter/internal/db"
)

// Open connects the backend selected by store.driver and applies the
// schema.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		path := cfg.SQLitePath
		if path == "" {
			path = "pharmhunter.db"
		}
		s, err = NewSQLite(path)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
	default:
		return nil, eris.Errorf("history: unsupported store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "history: migrate")
	}
	return s, nil
}
