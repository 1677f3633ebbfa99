package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpsrv "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/riftscan/sentinel/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose job submission, listing, and cancellation as MCP tools over stdio",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("mcp: build logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mcp: load aws config: %w", err)
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	batch, err := openBatchBackend(cfg, awsCfg)
	if err != nil {
		return err
	}

	s := mcpserver.New(&mcpserver.ServerContext{
		Controller: newController(ctx, cfg, st, batch),
		Log:        log,
	})
	return mcpsrv.ServeStdio(s)
}
