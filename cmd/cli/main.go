package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/familiaschurch/receipt-validator/internal/app"
	"github.com/familiaschurch/receipt-validator/internal/config"
	"github.com/familiaschurch/receipt-validator/internal/extract"
	"github.com/familiaschurch/receipt-validator/internal/fetch"
	"github.com/familiaschurch/receipt-validator/internal/logger"
	"github.com/familiaschurch/receipt-validator/internal/records"
	"github.com/familiaschurch/receipt-validator/internal/validation"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "receipt-validator",
		Short:         "Validate PIX payment receipts",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(uploadCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and a console logger on stderr.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logger.New(logger.Options{Level: cfg.LogLevel, Format: logger.FormatConsole, Out: os.Stderr})
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger.SetDefault(log)
	return cfg, log, nil
}

func validateCmd() *cobra.Command {
	var (
		url      string
		recordID string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate one receipt and print the response body",
		Example: `  receipt-validator validate --url https://example.com/comprovante.pdf
  receipt-validator validate --url gs://bucket/comprovante.jpg --record abc123`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			// each stage is bounded by FETCH_TIMEOUT, EXTRACT_TIMEOUT and STORE_TIMEOUT
			ctx := logger.WithContext(cmd.Context(), log)

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome := a.Orchestrator.Validate(ctx, validation.Request{DownloadURL: url, RecordID: recordID})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcome.Response())
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "receipt location (http, https or gs://)")
	cmd.Flags().StringVar(&recordID, "record", "", "financial record to reconcile")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Serve(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	var dataset string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending BigQuery migrations for the record table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if dataset == "" {
				dataset = cfg.BigQueryDataset
			}

			ctx := logger.WithContext(cmd.Context(), log)

			client, err := bigquery.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions()...)
			if err != nil {
				return fmt.Errorf("bigquery client: %w", err)
			}
			defer client.Close()

			applied, err := records.NewMigrator(client, cfg.ProjectID, dataset, cfg.RecordsCollection, "receipt-validator-cli", log).Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to %s.%s.%s\n", applied, cfg.ProjectID, dataset, cfg.RecordsCollection)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "BigQuery dataset (defaults to BIGQUERY_DATASET)")
	return cmd
}

func uploadCmd() *cobra.Command {
	var (
		bucket string
		object string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a receipt file to Cloud Storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if object == "" {
				object = filepath.Base(file)
			}

			ctx := logger.WithContext(cmd.Context(), log)

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening %s: %w", file, err)
			}
			defer f.Close()

			client, err := storage.NewClient(ctx, cfg.ClientOptions()...)
			if err != nil {
				return fmt.Errorf("storage client: %w", err)
			}
			defer client.Close()

			contentType := "image/jpeg"
			if extract.KindFromLocation(file) == extract.KindPDF {
				contentType = "application/pdf"
			}

			log.Info().Str("bucket", bucket).Str("object", object).Str("file", file).Msg("Uploading receipt")

			uri, err := fetch.NewUploader(client, cfg.FetchTimeout).Upload(ctx, bucket, object, contentType, f)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), uri)
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket name")
	cmd.Flags().StringVar(&object, "object", "", "object name (defaults to the file name)")
	cmd.Flags().StringVar(&file, "file", "", "local receipt file")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
