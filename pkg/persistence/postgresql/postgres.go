// Package postgresql provides the PostgreSQL implementation of the workflow
// store.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/JackBeStrong/email-auto-reply/pkg/persistence/sqlbase"
)

// Repository implements persistence.Repository on PostgreSQL. Record updates
// and transition log appends share one transaction, with the record row
// locked for the duration.
type Repository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRepository connects to PostgreSQL and runs pending migrations. It fails
// fast when the database is unreachable rather than degrading to another
// store.
func NewRepository(ctx context.Context, logger *slog.Logger, databaseURL string) (*Repository, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Repository{db: database, logger: logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close(ctx context.Context) error {
	if r.db != nil {
		err := r.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (r *Repository) HealthCheck(ctx context.Context) error {
	err := r.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
