package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragstack/ragserve/api"
	"github.com/ragstack/ragserve/pkg/log"
	"github.com/ragstack/ragserve/pkg/rag"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.SetDebug(verbose)

		svc, err := rag.NewService(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		server := api.NewServer(cfg, svc)

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-quit:
			log.Info("shutdown signal received", "signal", sig.String())
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	},
}
