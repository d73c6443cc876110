package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence/memory"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"memory", "postgres", "postgresql"}

// Store is the persistence layer plus the SQL handle when there is one.
type Store struct {
	persistence.Persistence

	DB *sql.DB
}

// NewPersistence opens the store named by the scheme of databaseURL:
// memory:// or postgres(ql)://.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	case "memory":
		logger.WarnContext(ctx, "Using in-memory persistence; state is lost on exit")

		return &Store{Persistence: memory.NewPersistence()}, nil
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return &Store{Persistence: store, DB: store.DB()}, nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider %q, expected one of %s",
			provider, strings.Join(supportedPersistenceProviders, ", "))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return strings.ToLower(provider)
}
