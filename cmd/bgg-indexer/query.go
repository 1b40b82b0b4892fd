package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/bgg-indexer/internal/config"
	"github.com/user/bgg-indexer/internal/domain"
	"github.com/user/bgg-indexer/internal/monitoring"
	"github.com/user/bgg-indexer/internal/storage"
)

func queryCmd() *cobra.Command {
	var (
		connection string
		fromEnv    bool
		offset     int
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Query ingested board game metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if connection == "" && !fromEnv {
				return errors.New("a connection is required: set --connection or --connection-from-env")
			}
			cfg := config.Config{Connection: connection, ConnectionFromEnv: fromEnv}
			conn, err := cfg.ResolveConnection()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			metrics := monitoring.NewMetrics(prometheus.NewRegistry())
			store, err := openStore(ctx, conn, zap.NewNop(), metrics)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := store.Search(ctx, domain.GameIndex, args[0], offset, limit)
			if err != nil {
				return err
			}
			return printHits(cmd.OutOrStdout(), result, offset)
		},
	}

	cmd.Flags().StringVar(&connection, "connection", "", "store connection string")
	cmd.Flags().BoolVar(&fromEnv, "connection-from-env", false, "read the connection string from env var "+config.EndpointEnvVar)
	cmd.Flags().IntVar(&offset, "offset", 0, "offset in query results")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of query results")
	return cmd
}

func printHits(w io.Writer, result *storage.SearchResult, offset int) error {
	for i, hit := range result.Hits {
		if i != 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Hit %d/%d:\n", offset+i+1, result.Total)
		if err := printSource(w, hit.Source); err != nil {
			return err
		}
	}
	return nil
}

// printSource writes one stored document as indented key: value lines,
// keeping the document's own field order.
func printSource(w io.Writer, source json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(source))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode hit: %w", err)
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode hit: %w", err)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode hit: %w", err)
		}
		fmt.Fprintf(w, "\t%v: %s\n", key, formatValue(value))
	}
	return nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(encoded)
	}
}
