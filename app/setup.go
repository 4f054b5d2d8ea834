package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sahilchouksey/course-marketplace-api/api"
	"github.com/sahilchouksey/course-marketplace-api/config"
	"github.com/sahilchouksey/course-marketplace-api/database"
	admin_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/admin"
	auth_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/auth"
	cart_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/cart"
	comment_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/comment"
	course_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/course"
	note_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/note"
	payment_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/payment"
	university_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/university"
	"github.com/sahilchouksey/course-marketplace-api/router"
	"github.com/sahilchouksey/course-marketplace-api/services"
	"github.com/sahilchouksey/course-marketplace-api/services/cron"
	"github.com/sahilchouksey/course-marketplace-api/services/events"
	"github.com/sahilchouksey/course-marketplace-api/services/payu"
	"github.com/sahilchouksey/course-marketplace-api/services/storage"
	"github.com/sahilchouksey/course-marketplace-api/utils"
	"github.com/sahilchouksey/course-marketplace-api/utils/auth"
	"github.com/sahilchouksey/course-marketplace-api/utils/cache"
	"github.com/sahilchouksey/course-marketplace-api/utils/metrics"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module is the whole object graph of the API process
var Module = fx.Options(
	fx.Provide(
		loadConfig,
		newLogger,
		newStore,
		func(s *database.GORMStore) *gorm.DB { return s.DB() },
		newRedis,
		cache.NewLocker,
		newRegistry,
		newMetrics,
		newGateway,
		newPublisher,
		newArchiver,
		newJWTManager,
		auth.NewBlacklistService,
		middleware.NewAuthMiddleware,
		middleware.NewBruteForceProtection,

		services.NewEnrollmentService,
		services.NewCartService,
		services.NewCourseService,
		services.NewCommentService,
		services.NewNoteService,
		newPaymentService,

		auth_handlers.NewAuthHandler,
		course_handlers.NewCourseHandler,
		university_handlers.NewUniversityHandler,
		cart_handlers.NewCartHandler,
		comment_handlers.NewCommentHandler,
		note_handlers.NewNoteHandler,
		newPaymentHandler,
		admin_handlers.NewAdminHandler,

		newServer,
	),
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log.Named("fx")}
	}),
	fx.Invoke(startCron, startServer),
)

// SetupAndRunServer builds the application and blocks until SIGINT/SIGTERM
func SetupAndRunServer() error {
	app := fx.New(Module)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadENV(); err != nil {
		return nil, err
	}
	return config.Load()
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	log, err := utils.NewLogger(cfg.Env)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() { _ = log.Sync() }))
	return log, nil
}

func newStore(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*database.GORMStore, error) {
	store, err := database.StartGORM(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	lc.Append(fx.StopHook(store.Close))
	return store, nil
}

// newRedis returns nil when Redis is unreachable; caching, locking and
// brute-force protection then degrade to no-ops.
func newRedis(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *cache.RedisCache {
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		log.Warn("Redis unavailable; running without cache and callback locks", zap.Error(err))
		return nil
	}
	lc.Append(fx.StopHook(redisCache.Close))
	return redisCache
}

func newRegistry() (*prometheus.Registry, prometheus.Registerer, prometheus.Gatherer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg, reg, reg
}

func newMetrics(reg prometheus.Registerer) *metrics.Metrics {
	return metrics.New(reg)
}

func payuConfig(cfg *config.Config) payu.Config {
	return payu.NewConfig(
		cfg.PayU.MerchantKey,
		cfg.PayU.MerchantSalt,
		cfg.PayU.Mode,
		cfg.PayU.PaymentURL,
		cfg.PayU.VerifyURL,
		cfg.PayU.ServiceProvider,
		cfg.PayU.Timeout,
	)
}

func newGateway(cfg *config.Config) services.Gateway {
	return payu.NewClient(payuConfig(cfg))
}

func newPublisher(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.NopPublisher{}
	}
	publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, log)
	if err != nil {
		log.Warn("Kafka unavailable; payment events disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	lc.Append(fx.StopHook(publisher.Close))
	return publisher
}

func newArchiver(cfg *config.Config, log *zap.Logger) services.CallbackArchiver {
	if !cfg.Spaces.Enabled() {
		return services.NopCallbackArchiver{}
	}
	client, err := storage.NewSpacesClient(storage.SpacesConfig{
		AccessKey: cfg.Spaces.AccessKey,
		SecretKey: cfg.Spaces.SecretKey,
		Bucket:    cfg.Spaces.Bucket,
		Region:    cfg.Spaces.Region,
		Endpoint:  cfg.Spaces.Endpoint,
	})
	if err != nil {
		log.Warn("Spaces unavailable; callbacks will not be archived", zap.Error(err))
		return services.NopCallbackArchiver{}
	}
	return services.NewSpacesCallbackArchiver(client)
}

func newJWTManager(cfg *config.Config) *auth.JWTManager {
	return auth.NewJWTManager(auth.JWTConfig{
		Secret:        cfg.JWT.Secret,
		Expiry:        cfg.JWT.Expiry,
		RefreshExpiry: cfg.JWT.RefreshExpiry,
		Issuer:        cfg.JWT.Issuer,
	})
}

type paymentDeps struct {
	fx.In

	Config      *config.Config
	DB          *gorm.DB
	Gateway     services.Gateway
	Enrollments *services.EnrollmentService
	Carts       *services.CartService
	Locker      cache.Locker
	Publisher   events.Publisher
	Archiver    services.CallbackArchiver
	Metrics     *metrics.Metrics
	Log         *zap.Logger
}

func newPaymentService(d paymentDeps) *services.PaymentService {
	return services.NewPaymentService(
		d.DB,
		payuConfig(d.Config),
		d.Config.App.BaseURL,
		d.Gateway,
		d.Enrollments,
		d.Carts,
		services.WithLocker(d.Locker),
		services.WithPublisher(d.Publisher),
		services.WithArchiver(d.Archiver),
		services.WithMetrics(d.Metrics),
		services.WithLogger(d.Log.Named("payments")),
	)
}

func newPaymentHandler(cfg *config.Config, payments *services.PaymentService, log *zap.Logger) *payment_handlers.PaymentHandler {
	return payment_handlers.NewPaymentHandler(payments, cfg.App.FrontendURL, log)
}

func newServer(cfg *config.Config, log *zap.Logger) *api.APIServer {
	return api.NewAPIServer(fmt.Sprintf(":%d", cfg.Port), log)
}

func startCron(lc fx.Lifecycle, cfg *config.Config, db *gorm.DB, payments *services.PaymentService, blacklist *auth.BlacklistService, log *zap.Logger) {
	if !cfg.Cron.Enabled {
		log.Info("Cron jobs disabled")
		return
	}
	manager := cron.NewCronManager(db, payments, blacklist, cfg.Cron.StalePaymentAfter, log.Named("cron"))
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := manager.Start(); err != nil {
				// Background jobs must not keep the API down
				log.Warn("Failed to start cron jobs", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			manager.Stop(ctx)
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, server *api.APIServer, p router.Params, log *zap.Logger) {
	router.SetupRoutes(server.GetEngine(), p)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := server.Run(); err != nil {
					log.Error("API server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: server.Shutdown,
	})
}
