package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"webhook-migrate/internal/config"
	"webhook-migrate/internal/ioformats"
	"webhook-migrate/internal/migrate"
	"webhook-migrate/internal/models"
	"webhook-migrate/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.Config
	cmd := &cobra.Command{
		Use:          "migrate [pathToRead] [pathToWrite]",
		Short:        "Move the uploads referenced by a webhook backup to another site",
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				cfg.PathToRead = args[0]
			}
			if len(args) > 1 {
				cfg.PathToWrite = args[1]
			}
			if err := loadConfig(&cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cmd, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.MigrateFrom, "from", "", "site the uploads are migrated from, e.g. old.example.com")
	f.StringVar(&cfg.UploadURL, "url", "", "upload endpoint of the new site")
	f.StringVar(&cfg.SiteName, "siteName", "", "name of the new site")
	f.StringVar(&cfg.SecretKey, "secretKey", "", "secret key of the new site")
	f.StringVar(&cfg.RequestsPath, "requests", "", "errors file of an earlier run to retry instead of the whole backup")
	f.IntVar(&cfg.Concurrency, "concurrency", 0, "uploads in flight per sweep (0 means unbounded)")
	f.BoolVar(&cfg.Debug, "debug", false, "log every sweep")
	return cmd
}

func loadConfig(cfg *config.Config) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.ApplyFirebaseConf(config.FirebaseConf); err != nil {
		return err
	}
	cfg.ApplyDefaults()
	return cfg.Validate()
}

func run(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	log := logger.New(cfg.Debug)

	backup, err := ioformats.ReadBackup(cfg.PathToRead)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	var reqs []*models.Request
	if cfg.RequestsPath != "" {
		if reqs, err = ioformats.ReadRequests(cfg.RequestsPath); err != nil {
			return fmt.Errorf("read requests: %w", err)
		}
		log.WithField("path", cfg.RequestsPath).Info("resuming from earlier requests")
	}

	opts := migrate.Options{
		MigrateFrom: cfg.MigrateFrom,
		UploadURL:   cfg.UploadURL,
		SiteName:    cfg.SiteName,
		SecretKey:   cfg.SecretKey,
		Requests:    reqs,
		Concurrency: cfg.Concurrency,
		Logger:      log,
	}
	var failed []*models.Request
	var writeErr error
	err = migrate.Migrate(ctx, backup, opts, func(f []*models.Request, migrated map[string]any) {
		failed = f
		if writeErr = ioformats.WriteJSON(cfg.PathToWrite, migrated); writeErr != nil {
			return
		}
		errs := f
		if errs == nil {
			errs = []*models.Request{}
		}
		writeErr = ioformats.WriteJSON(cfg.ErrorsPath(), errs)
	})
	if err != nil {
		return err
	}
	if writeErr != nil {
		return fmt.Errorf("write output: %w", writeErr)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrated backup written to %s\n", cfg.PathToWrite)
	if len(failed) > 0 {
		return fmt.Errorf("%d uploads failed, see %s (retry with --requests)", len(failed), cfg.ErrorsPath())
	}
	return nil
}
