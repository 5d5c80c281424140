// Package cmd provides common initialization for the jornada binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jornada-io/jornada/pkg/persistence"
	"github.com/jornada-io/jornada/pkg/persistence/file"
	"github.com/jornada-io/jornada/pkg/persistence/postgresql"
)

// NewPersistence builds a persistence layer from a database URL. postgres://
// URLs get the PostgreSQL backend; anything else is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
