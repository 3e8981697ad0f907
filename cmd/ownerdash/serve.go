package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ownerdash/internal/config"
	"ownerdash/internal/server"
)

type opener interface {
	Name() string
	Open(ctx context.Context) error
	Close() error
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run every view and serve the dashboard API",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "HTTP listen address")
	_ = viper.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	orders, err := a.orderViews()
	if err != nil {
		return err
	}
	menu := a.menuView()

	running := make([]opener, 0, len(orders)+1)
	defer func() {
		for _, v := range running {
			if err := v.Close(); err != nil {
				log.Warn().Err(err).Str("view", v.Name()).Msg("close view")
			}
		}
	}()
	readers := make([]server.OrderView, 0, len(orders))
	for _, v := range orders {
		if err := v.Open(ctx); err != nil {
			return fmt.Errorf("open %s: %w", v.Name(), err)
		}
		running = append(running, v)
		readers = append(readers, v)
	}
	if err := menu.Open(ctx); err != nil {
		return fmt.Errorf("open %s: %w", menu.Name(), err)
	}
	running = append(running, menu)
	a.replay(ctx)

	srv := server.New(readers,
		server.WithMenu(menu),
		server.WithBackend(a.client),
		server.WithMetrics(a.metricsHandler()),
	)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("feed", cfg.Feed.Driver).Str("cache", cfg.Cache.Driver).Msg("serving dashboard")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
