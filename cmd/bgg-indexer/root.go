package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/bgg-indexer/internal/monitoring"
	"github.com/user/bgg-indexer/internal/storage"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "bgg-indexer",
		Short:        "Scrape board game metadata from BoardGameGeek (BGG) and ingest it into a search index",
		SilenceUsage: true,
	}
	cmd.AddCommand(runCmd(), queryCmd())
	return cmd
}

// openStore picks the store implementation by connection scheme: postgres
// DSNs get the Postgres store, anything else is treated as an
// Elasticsearch endpoint.
func openStore(ctx context.Context, connection string, logger *zap.Logger, metrics *monitoring.Metrics) (storage.DocumentStore, error) {
	if strings.HasPrefix(connection, "postgres://") || strings.HasPrefix(connection, "postgresql://") {
		return storage.NewPostgres(ctx, connection, logger, metrics)
	}
	return storage.NewElastic(connection, logger, metrics)
}
