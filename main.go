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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"firecost/internal/api"
	"firecost/internal/auth"
	"firecost/internal/backend"
	"firecost/internal/config"
	"firecost/internal/documents"
	"firecost/internal/redis"
	"firecost/internal/service/llm"
	"firecost/internal/session"
	"firecost/internal/storage"
	"firecost/internal/worker"
)

var (
	cfgPath string
	verbose bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "firecost",
		Short:         "Fire and security cost estimation backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("FIRECOST_CONFIG"), "path to config file (json or yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create database tables and exit",
		RunE:  runMigrate,
	})
	return root
}

func newLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func runMigrate(*cobra.Command, []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	dbType := cfg.BasicConfig.Database
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		return err
	}
	logger.Info("database migrated", zap.String("driver", dbType))
	return nil
}

func runServe(*cobra.Command, []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbType := cfg.BasicConfig.Database
	logger.Info("opening database", zap.String("driver", dbType))
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		return err
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	defer rdb.Close()
	store := session.NewStore(rdb, time.Duration(cfg.BasicConfig.SessionTTLHours)*time.Hour, logger.Named("session"))
	logger.Info("session store ready", zap.Duration("ttl", store.TTL()))

	var extractor documents.Extractor
	llmService, err := llm.NewService(ctx, cfg, logger.Named("llm"))
	if err != nil {
		logger.Warn("document extraction disabled", zap.Error(err))
	} else {
		extractor = llmService
	}
	docs, err := documents.NewService(ctx, db, extractor, documents.Options{
		Dir:            cfg.BasicConfig.UploadDir,
		PublicBasePath: cfg.BasicConfig.PublicFileBasePath,
		TTL:            time.Duration(cfg.BasicConfig.UploadTTL) * time.Minute,
	}, logger.Named("documents"))
	if err != nil {
		return fmt.Errorf("init document service: %w", err)
	}
	docs.StartCleaner(ctx, time.Duration(cfg.BasicConfig.UploadCleanEvery)*time.Minute)

	projects, err := backend.NewClient(cfg.Backend, logger.Named("backend"))
	if err != nil {
		logger.Warn("project proxy disabled", zap.Error(err))
	}

	workers := worker.NewDispatcher(worker.Config{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Second,
	})
	defer workers.Close()
	logger.Info("extraction workers ready", zap.Int("workers", workers.Workers()), zap.Int("max", cfg.BasicConfig.MaxWorkers))

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger.Named("http")))
	api.NewHandler(store, docs, projects, auth.NewService(""), workers, logger.Named("api")).RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.BasicConfig.ServerAddress, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}
