package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/autolist-service/internal/app"
	"github.com/user/autolist-service/internal/delivery/http/response"
	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/usecase"
	"github.com/user/autolist-service/pkg/config"
	"github.com/user/autolist-service/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var req usecase.CollectRequest

	cmd := &cobra.Command{
		Use:          "collect",
		Short:        "Run one product collection for a keyword and print the run summary",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCollect(ctx, cmd, req)
		},
	}

	cmd.Flags().StringVarP(&req.Keyword, "keyword", "k", "", "search keyword (required)")
	cmd.Flags().IntVar(&req.MaxPages, "max-pages", 0, "page budget, capped by FETCH_MAX_PAGES (0 uses the configured value)")
	cmd.Flags().BoolVar(&req.Force, "force", false, "ignore the keyword cooldown")
	_ = cmd.MarkFlagRequired("keyword")

	return cmd
}

func runCollect(ctx context.Context, cmd *cobra.Command, req usecase.CollectRequest) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	// Logs go to stderr so stdout carries only the run summary.
	logCloser, err := logger.Init(cmd.ErrOrStderr(), logger.ParseLevel(cfg.LogLevel), cfg.LogFile)
	if err != nil {
		return fmt.Errorf("could not initialize logger: %w", err)
	}
	defer logCloser.Close()

	deps, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer deps.Close()

	run, err := deps.Collector.Collect(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(response.NewRunResponse(run)); err != nil {
		return err
	}
	if run.Status == entity.RunFailed {
		return fmt.Errorf("collection failed: %s", run.Reason)
	}
	return nil
}
