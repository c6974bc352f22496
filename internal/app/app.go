package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"mail-digest-go/internal/config"
	"mail-digest-go/internal/db"
	"mail-digest-go/internal/digest"
	"mail-digest-go/internal/handler"
	"mail-digest-go/internal/ingest"
	"mail-digest-go/internal/lock"
	"mail-digest-go/internal/mailer"
	"mail-digest-go/internal/metrics"
	"mail-digest-go/internal/render"
	"mail-digest-go/internal/repository"
	"mail-digest-go/internal/router"
	"mail-digest-go/internal/scheduler"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Mail Digest Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("Unknown log level %q, using info", cfg.Log.Level)
	}

	live := config.NewLive(cfg.DigestSettings())
	if err := live.Settings().Validate(); err != nil {
		logrus.Warnf("Digest workflow is not usable until configured: %v", err)
	}
	live.Watch()

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	repo := repository.New(dbConn)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	ctx := context.Background()

	transport, err := newTransport(ctx, cfg)
	if err != nil {
		return err
	}
	dispatcher := mailer.NewDispatcher(transport, mailer.NewStaticDirectory(cfg.Directory))

	locker, closeLocker := newLocker(cfg.Redis)
	defer closeLocker()

	renderer := render.NewHTTPRenderer(cfg.Renderer.BaseURL, cfg.Renderer.Timeout)
	controller := digest.NewController(repo, repo, renderer, dispatcher, locker, m)

	var ingester scheduler.IngestRunner
	if cfg.Gmail.UseIMAP {
		ingester = ingest.NewIngester(ingest.NewIMAPSource(cfg.Gmail), repo, m, 0)
		logrus.Infof("Ingesting mailings from IMAP mailbox %q", cfg.Gmail.SentMailbox)
	}

	sched := scheduler.NewScheduler(&cfg.Scheduler, controller, ingester, live)

	h := handler.NewHandlers(dbConn, controller, sched, live, prometheus.DefaultGatherer)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if sqlDB, err := dbConn.DB(); err == nil {
		sqlDB.Close()
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

func newTransport(ctx context.Context, cfg *config.Config) (mailer.Transport, error) {
	switch cfg.Mailer.Transport {
	case "resend":
		logrus.Info("Using Resend for digest delivery")
		return mailer.NewResendTransport(cfg.Mailer.ResendAPIKey), nil
	default:
		g, err := mailer.NewGmailTransport(ctx, cfg.Gmail, cfg.Mailer.MaxRetries)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gmail transport: %w", err)
		}
		if err := g.TestConnection(ctx); err != nil {
			logrus.Warnf("Gmail connection check failed: %v", err)
		}
		logrus.Info("Using Gmail API for digest delivery")
		return g, nil
	}
}

// newLocker returns a Redis lock when configured, an in-process one otherwise
func newLocker(cfg config.RedisConfig) (lock.Locker, func()) {
	if cfg.Addr == "" {
		return lock.NewLocal(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	logrus.Infof("Using Redis at %s for the prepare lock", cfg.Addr)
	return lock.NewRedis(client, cfg.Prefix, cfg.LockTTL), func() {
		if err := client.Close(); err != nil {
			logrus.Errorf("Failed to close Redis client: %v", err)
		}
	}
}
