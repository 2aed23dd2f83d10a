package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"travelchat/internal/cache"
	"travelchat/internal/config"
	"travelchat/internal/database"
	"travelchat/internal/handler"
	"travelchat/internal/logging"
	"travelchat/internal/metrics"
	"travelchat/internal/queue"
	"travelchat/internal/redis"
	"travelchat/internal/repository"
	"travelchat/internal/service"
	"travelchat/internal/storage"
	"travelchat/internal/transport/http/middleware"
	"travelchat/internal/worker"
)

const shutdownTimeout = 15 * time.Second

// Run loads configuration, wires every component and serves until SIGINT/SIGTERM.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return a.serve(ctx)
}

// app is the fully wired process. Optional dependencies stay nil when unconfigured.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	handler stdhttp.Handler

	redis   *redis.Client
	db      *sqlx.DB
	gcs     *storage.GCSStore
	manager *worker.Manager
	sweeper *worker.Sweeper
}

func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger.WithPrefix("Server")}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.NewRecorder(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	// Storage
	remote := a.remoteStore(ctx)
	local := storage.NewLocalStore(cfg.UploadPath)
	store := service.NewStorageService(local, remote, logger)

	// Retention pipeline
	var (
		publisher queue.Publisher = queue.NoopPublisher{}
		checks                    = map[string]handler.Check{}
	)
	if cfg.RedisURL != "" {
		rc, err := redis.Connect(ctx, cfg.RedisURL, logger.WithPrefix("Redis"))
		if err != nil {
			a.logger.Warn("redis unavailable, retention pipeline disabled", "err", err)
		} else {
			a.redis = rc
			checks["redis"] = rc.Ping
			publisher = queue.NewPublisher(rc.Client, logger)

			index := cache.NewUploadIndex(rc.Client, logger)
			a.manager = worker.NewManager(
				queue.NewConsumer(rc.Client, logger),
				worker.NewHandler(index, logger),
				worker.DefaultManagerConfig(),
				logger,
			)
			a.sweeper = worker.NewSweeper(index, store, worker.SweeperConfig{
				Retention: cfg.UploadRetention,
				Interval:  cfg.SweepInterval,
			}, rec, logger)
		}
	}

	// Audit log
	var (
		sinks     []logging.AuditSink
		auditRepo repository.AuditRepository
	)
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL, logger.WithPrefix("Database"))
		if err != nil {
			a.close()
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			a.close()
			return nil, err
		}
		a.db = db
		checks["database"] = db.PingContext
		auditRepo = repository.NewAuditRepository(db)
		sinks = append(sinks, auditRepo)
	}
	auditor := logging.NewAuditor(logger, sinks...)

	// Services
	uploads := service.NewUploadService(
		service.NewValidator(),
		service.NewTranscoder(),
		store,
		publisher,
		rec,
		logger,
		cfg.UploadPath,
	)

	var asker handler.Asker
	if chat := a.chatService(ctx, rec); chat != nil {
		asker = chat
	}

	var events handler.AuditReader
	if auditRepo != nil {
		events = auditRepo
	}

	a.handler = NewRouter(RouterConfig{
		UploadHandler:  handler.NewUploadHandler(uploads, auditor, logger),
		ChatHandler:    handler.NewChatHandler(asker, auditor, logger),
		AdminHandler:   handler.NewAdminHandler(store, events, publisher, auditor, logger),
		HealthHandler:  handler.NewHealthHandler(checks, logger),
		UploadDir:      cfg.UploadPath,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		RateLimiter:    middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		TrustProxy:     cfg.TrustProxyHeaders,
		JWTSecret:      cfg.JWTSecret,
		Logger:         logger,
	})
	if cfg.JWTSecret == "" {
		a.logger.Info("JWT_SECRET not set, admin API disabled")
	}

	return a, nil
}

func (a *app) remoteStore(ctx context.Context) storage.ObjectStore {
	switch a.cfg.StorageBackend {
	case config.StorageBackendNone:
		a.logger.Info("remote storage disabled, uploads stay local")
		return nil

	case config.StorageBackendR2:
		r2, err := storage.NewR2Store(ctx, storage.R2Config{
			AccountID:       a.cfg.R2AccountID,
			AccessKeyID:     a.cfg.R2AccessKeyID,
			SecretAccessKey: a.cfg.R2SecretAccessKey,
			Bucket:          a.cfg.R2BucketName,
		})
		if err != nil {
			a.logger.Warn("r2 unavailable, uploads stay local", "err", err)
			return nil
		}
		a.logger.Info("remote storage ready", "backend", "r2", "bucket", a.cfg.R2BucketName)
		return r2

	default:
		if !a.cfg.HasGoogleCredentials() {
			a.logger.Warn("google credentials missing, uploads stay local")
			return nil
		}
		gcs, err := storage.NewGCSStore(ctx, storage.GCSConfig{
			Bucket:          a.cfg.GCSBucketName,
			ClientEmail:     a.cfg.GAPIClientEmail,
			PrivateKey:      a.cfg.GAPIPrivateKey,
			CredentialsJSON: a.cfg.ServiceAccountJSON(),
		})
		if err != nil {
			a.logger.Warn("gcs unavailable, uploads stay local", "err", err)
			return nil
		}
		a.gcs = gcs
		a.logger.Info("remote storage ready", "backend", "gcs", "bucket", a.cfg.GCSBucketName)
		return gcs
	}
}

func (a *app) chatService(ctx context.Context, rec *metrics.Recorder) *service.ChatService {
	if !a.cfg.HasGoogleCredentials() {
		a.logger.Warn("google credentials missing, chat disabled")
		return nil
	}

	client, err := service.NewVertexHTTPClient(ctx, a.cfg.ServiceAccountJSON(), a.cfg.GAPIPrivateKey)
	if err == nil {
		var chat *service.ChatService
		chat, err = service.NewChatService(service.ChatConfig{
			ProjectID:         a.cfg.GAPIProjectID,
			Location:          a.cfg.VertexLocation,
			Model:             a.cfg.VertexModel,
			Endpoint:          a.cfg.VertexEndpoint,
			SystemInstruction: a.cfg.SystemInstruction,
		}, client, rec, a.logger)
		if err == nil {
			return chat
		}
	}
	a.logger.Warn("chat disabled", "err", err)
	return nil
}

func (a *app) serve(ctx context.Context) error {
	srv := &stdhttp.Server{
		Addr:              ":" + a.cfg.ServerPort,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if a.manager != nil {
		g.Go(func() error { return a.manager.Run(ctx) })
	}
	if a.sweeper != nil {
		g.Go(func() error { return a.sweeper.Run(ctx) })
	}

	return g.Wait()
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.gcs != nil {
		_ = a.gcs.Close()
	}
}
