package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/config"
	dbRedis "github.com/kailas-cloud/propsearch/internal/db/redis"
	logpkg "github.com/kailas-cloud/propsearch/internal/logger"
	"github.com/kailas-cloud/propsearch/internal/metrics"
	"github.com/kailas-cloud/propsearch/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app carries process-wide state shared by all subcommands.
type app struct {
	env      string
	logLevel string
	cfg      config.Config
	logger   *zap.Logger
	cache    *dbRedis.Store
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "propsearch",
		Short:         "Semantic search over real-estate listings",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Name())
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.env, "env", "", "config environment (default: $ENV or local)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newServeCmd(a),
		newIngestCmd(a),
		newQueryCmd(a),
		newWorkerCmd(a),
	)
	return root
}

func (a *app) init(command string) error {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if a.env == "" {
		a.env = config.GetEnv()
	}
	cfg, err := config.Load(a.env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	level := cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	logger, err := logpkg.NewLogger(a.env, logpkg.Options{
		Level:   level,
		Format:  cfg.Logging.Format,
		Command: command,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.logger = logger

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterServiceMetrics()
	metrics.RegisterHTTPMetrics()
	return nil
}

// openCache connects the embedding cache once; nil when disabled.
func (a *app) openCache(ctx context.Context) (*dbRedis.Store, error) {
	if !a.cfg.Cache.Enabled || a.cache != nil {
		return a.cache, nil
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:      a.cfg.Cache.Addrs,
		Username:   a.cfg.Cache.Username,
		Password:   a.cfg.Cache.Password,
		DB:         a.cfg.Cache.DB,
		Standalone: a.cfg.Cache.Standalone,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache store: %w", err)
	}
	timeout := time.Duration(a.cfg.Cache.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("connect embedding cache: %w", err)
	}
	a.logger.Info("Connected to embedding cache", zap.Strings("addrs", a.cfg.Cache.Addrs))
	a.cache = store
	return store, nil
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
