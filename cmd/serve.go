package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/riftscan/sentinel/internal/httpserver"
	"github.com/riftscan/sentinel/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for job submission, listing, and scheduling",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("address", ":8080", "HTTP listen address")
	_ = viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("serve: build logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("serve: load aws config: %w", err)
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	batch, err := openBatchBackend(cfg, awsCfg)
	if err != nil {
		return err
	}

	controller := newController(ctx, cfg, st, batch)

	schedManager := &scheduler.Manager{Store: st.mem.ScheduledJobs()}
	schedRunner := &scheduler.Runner{
		Store: st.mem.ScheduledJobs(),
		Firer: &scheduler.Firer{
			Jobs:          st.jobs,
			ScheduledJobs: st.mem.ScheduledJobs(),
			Batch:         batch,
			MemoryMiB:     cfg.MemoryMiB,
			VCPUs:         cfg.VCPUs,
		},
		Log:          log,
		ReloadPeriod: cfg.SchedulerReloadPeriod,
	}
	if err := schedRunner.Start(ctx); err != nil {
		return fmt.Errorf("serve: start scheduler: %w", err)
	}
	defer schedRunner.Stop()

	var auth *httpserver.APIKeyAuth
	if cfg.AuthEnabled {
		hashes := make(map[string]string, len(cfg.APIKeys))
		for customer, key := range cfg.APIKeys {
			hash, err := httpserver.HashAPIKey(key)
			if err != nil {
				return fmt.Errorf("serve: hash api key for %s: %w", customer, err)
			}
			hashes[customer] = hash
		}
		auth = &httpserver.APIKeyAuth{Hashes: hashes}
	}

	srv := httpserver.New(httpserver.Options{
		Address:     cfg.HTTPAddress,
		AuthEnabled: cfg.AuthEnabled,
	}, controller, schedManager, auth, log)

	log.Info("sentinel serve starting", zap.String("address", cfg.HTTPAddress))
	return srv.Run(ctx)
}
