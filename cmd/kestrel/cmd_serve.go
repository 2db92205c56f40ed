package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/worker"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the async case worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *options) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts, os.Stdout)
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	if a.cfg.Worker.Enabled {
		w := worker.New(a.bus, a.pipeline,
			worker.WithLogger(a.logger),
			worker.WithConcurrency(a.cfg.Worker.Concurrency),
		)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
		defer w.Stop()
	}

	srv := api.NewServer(a.cfg.Server, api.Deps{
		Repo:     a.repo,
		Cache:    a.cache,
		Bus:      a.bus,
		Pipeline: a.pipeline,
		Actions:  a.actions,
		Policy:   a.policy,
		Metrics:  a.metrics,
		Logger:   a.logger,
		Version:  Version,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	a.logger.Info("kestrel is ready", "addr", srv.Addr())
	printBanner(cmd.ErrOrStderr(), a.cfg, Version)

	if err := g.Wait(); err != nil {
		return err
	}

	a.logger.Info("kestrel shutdown complete")
	return nil
}

func printBanner(w io.Writer, cfg *domain.Config, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  KESTREL  AML policy escalation engine")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Version:  %s\n", version)
	fmt.Fprintf(w, "  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(w, "  Storage:  %s (policy: %s)\n", cfg.Repository.Driver, cfg.Policy.Backend)
	fmt.Fprintf(w, "  Worker:   %t (concurrency %d)\n", cfg.Worker.Enabled, cfg.Worker.Concurrency)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Endpoints:")
	fmt.Fprintln(w, "    GET  /policy                  - Current escalation policy")
	fmt.Fprintln(w, "    PUT  /policy                  - Replace the policy")
	fmt.Fprintln(w, "    POST /policy/reset            - Restore default triggers")
	fmt.Fprintln(w, "    POST /policy/triggers         - Add a custom trigger")
	fmt.Fprintln(w, "    GET  /cases                   - List cases")
	fmt.Fprintln(w, "    POST /cases/{id}/evaluate     - Evaluate a case")
	fmt.Fprintln(w, "    POST /cases/{id}/escalate     - Escalate a case")
	fmt.Fprintln(w, "    POST /cases/{id}/dismiss      - Dismiss a case")
	fmt.Fprintln(w, "    POST /evaluate                - Evaluate ad-hoc facts")
	fmt.Fprintln(w, "    GET  /health                  - Health check")
	fmt.Fprintln(w)
}
