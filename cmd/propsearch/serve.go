package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	corpusrepo "github.com/kailas-cloud/propsearch/internal/repository/corpus"
	chiTransport "github.com/kailas-cloud/propsearch/internal/transport/chi"
	healthuc "github.com/kailas-cloud/propsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/propsearch/internal/usecase/search"
	"github.com/kailas-cloud/propsearch/internal/version"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		port     int
		artifact string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /embed, /search, /health and /metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port > 0 {
				a.cfg.HTTP.Port = port
			}
			if artifact != "" {
				a.cfg.Corpus.Artifact = artifact
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override http.port")
	cmd.Flags().StringVar(&artifact, "artifact", "", "override corpus.artifact")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	a.logger.Info("Starting propsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("artifact", cfg.Corpus.Artifact),
	)

	emb, err := a.buildEmbedders(ctx)
	if err != nil {
		return err
	}

	repo := corpusrepo.New()
	searchSvc := searchuc.New(emb.query, searchuc.Options{
		DefaultK:      cfg.Search.DefaultK,
		MaxK:          cfg.Search.MaxK,
		SharedTimeout: time.Duration(cfg.Embedding.TimeoutSec+5) * time.Second,
	}, a.logger)

	// A missing artifact leaves the server up but degraded until SIGHUP.
	if err := searchSvc.LoadArtifact(ctx, repo, cfg.Corpus.Artifact); err != nil {
		if !errors.Is(err, domain.ErrDataFormat) && !errors.Is(err, domain.ErrEmptyCorpus) &&
			!errors.Is(err, domain.ErrDimensionMismatch) {
			return fmt.Errorf("load search index: %w", err)
		}
		a.logger.Warn("Search index not loaded", zap.Error(err))
	}

	var cachePinger healthuc.CachePinger
	if a.cache != nil {
		cachePinger = a.cache
	}
	healthSvc := healthuc.New(embeddingHealth{emb.raw}, cachePinger, searchSvc)

	server := chiTransport.NewServer(emb.raw, searchSvc, healthSvc, a.logger)
	handler := chiTransport.NewRouter(server, cfg.Auth.APIKeys, a.logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	for {
		select {
		case err, ok := <-serveErr:
			if ok {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-reload:
			// Rebuild then swap; queries keep using the old snapshot on failure.
			if err := searchSvc.LoadArtifact(ctx, repo, cfg.Corpus.Artifact); err != nil {
				a.logger.Error("Reload failed, keeping previous index", zap.Error(err))
			}
		case <-ctx.Done():
			// Graceful shutdown
			a.logger.Info("Received shutdown signal")
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("Error during shutdown", zap.Error(err))
			}
			a.logger.Info("Server stopped gracefully")
			return nil
		}
	}
}

// embeddingHealth adapts a domain.Embedder to health.EmbeddingChecker.
type embeddingHealth struct {
	embedder domain.Embedder
}

func (h embeddingHealth) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
