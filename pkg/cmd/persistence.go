// Package cmd provides common initialization for the command-line entry
// points: store and event bus selection from configuration values.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JackBeStrong/email-auto-reply/pkg/persistence"
	"github.com/JackBeStrong/email-auto-reply/pkg/persistence/file"
	"github.com/JackBeStrong/email-auto-reply/pkg/persistence/postgresql"
)

// NewRepository selects the store implementation from the database URL
// scheme. Anything that is not postgres is treated as a file store path.
func NewRepository(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Repository, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		repo, err := postgresql.NewRepository(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}

		return repo, nil
	default:
		repo, err := file.NewRepository(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file store: %w", err)
		}

		return repo, nil
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
