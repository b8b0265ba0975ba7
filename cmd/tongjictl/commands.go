package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tongjisync/internal/app"
	"tongjisync/internal/config"
	"tongjisync/internal/db"
	"tongjisync/internal/ingest"
	"tongjisync/internal/logger"
	"tongjisync/internal/record"
	"tongjisync/internal/tongji"
)

type fetchOptions struct {
	site     string
	pageSize int
	visitor  string
	out      string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tongjictl",
		Short:         "Inspect and maintain Baidu Tongji visit records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newFetchCmd(), newSitesCmd(), newCorrectCmd())
	return root
}

func newFetchCmd() *cobra.Command {
	var o fetchOptions
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the realtime report of a site and print the assembled records as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd.Context(), o, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.site, "site", "", "site id")
	cmd.Flags().IntVar(&o.pageSize, "page-size", 100, "visits to fetch (1-1000)")
	cmd.Flags().StringVar(&o.visitor, "visitor", "", "only fetch this visitor id")
	cmd.Flags().StringVar(&o.out, "out", "", "write to file instead of stdout")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}

func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List the sites the configured account can read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			engine, err := app.NewEngine(ctx, cfg, config.DefaultDimensions(), nil, log)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			client := engine.NewTongjiClient(cfg, tokenStore(cfg, log), log)
			sites, err := client.SiteList(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, s := range sites {
				fmt.Fprintf(w, "%d\t%s\t%d\n", s.SiteID, s.Domain, s.Status)
			}
			return nil
		},
	}
}

func newCorrectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correct",
		Short: "Run the record correction job once against the Postgres database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			sqlDB, err := db.Connect(cfg, log)
			if err != nil {
				return err
			}
			res, err := db.RunCorrectionOnce(cmd.Context(), sqlDB, time.Now(), cfg.Location())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// tokenStore uses the database token table when APP_DATABASE_URL is set.
func tokenStore(cfg *config.Config, log *zap.Logger) tongji.TokenStore {
	if cfg.DatabaseURL == "" {
		return nil
	}
	sqlDB, err := db.Connect(cfg, log)
	if err != nil {
		log.Warn("token store unavailable, tokens kept in memory", zap.Error(err))
		return nil
	}
	return db.NewTokenStore(sqlDB, cfg.TongjiAPIKey)
}

func runFetch(ctx context.Context, o fetchOptions, stdout io.Writer) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	dims, err := config.LoadDimensions(cfg.DimensionsFile)
	if err != nil {
		return err
	}
	engine, err := app.NewEngine(ctx, cfg, dims, nil, log)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	client := engine.NewTongjiClient(cfg, tokenStore(cfg, log), log)
	raw, err := client.Fetch(ctx, o.site, o.pageSize, o.visitor)
	if err != nil {
		return err
	}
	batch, err := engine.Assembler.Assemble(ctx, raw)
	if err != nil {
		return err
	}
	ingest.StampSite(batch.Records, o.site)
	if len(batch.Skipped) > 0 {
		log.Warn("visits skipped", zap.Int("count", len(batch.Skipped)))
	}

	w := stdout
	if o.out != "" {
		f, err := os.Create(o.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return writeRecords(w, batch.Records)
}

func writeRecords(w io.Writer, records []record.Record) error {
	if records == nil {
		records = []record.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(records)
}
