package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-capa/internal/api/http"
	"github.com/mind-engage/mindengage-capa/internal/capa"
	"github.com/mind-engage/mindengage-capa/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the grading HTTP service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := store.Open(openCtx, store.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return err
	}
	defer dbh.Close()

	caps, err := buildSystem(cfg, logger)
	if err != nil {
		return err
	}
	defer caps.Close()

	svc := &capa.Service{
		Store:    store.NewSQLStore(dbh, logger),
		Registry: registry(cfg),
		System:   caps.System,
		Seed:     capa.RandomSeed(),
		Log:      logger,
	}
	var signer *api.CallbackSigner
	if caps.System.XQueue != nil {
		if cfg.CallbackSecret == "" {
			return errors.New("callback_secret is required when xqueue_url is set")
		}
		signer = api.NewCallbackSigner(cfg.CallbackSecret, strings.TrimSuffix(cfg.PublicURL, "/"), 0)
		svc.CallbackURL = signer.URL
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Deps{
			Service: svc,
			Files:   caps.Files,
			Signer:  signer,
			Origins: cfg.CORSOrigins,
			Log:     logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("db", cfg.DBDriver),
		zap.Bool("xqueue", signer != nil), zap.Bool("debug", cfg.Debug))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
