package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	instancerepo "github.com/Ramsey-B/fern/internal/repositories/instance"
	templaterepo "github.com/Ramsey-B/fern/internal/repositories/template"
	"github.com/Ramsey-B/fern/internal/services/checklist"
	templatesvc "github.com/Ramsey-B/fern/internal/services/template"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/media"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/redis"
	healthroutes "github.com/Ramsey-B/fern/pkg/routes/health"
	instanceroutes "github.com/Ramsey-B/fern/pkg/routes/instance"
	templateroutes "github.com/Ramsey-B/fern/pkg/routes/template"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.WithField("app", cfg.AppName).Info("Starting fern")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	if cfg.PrettyLogs {
		zapLogger, _ = zap.NewDevelopment()
	} else {
		zapLogger, _ = zap.NewProduction()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func run(ctx context.Context, cfg config.Config, logger ectologger.Logger) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}

	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	tracing.SetTracer(tracerProvider.Tracer(cfg.AppName))
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()

	// database
	db, err := database.Connect(ctx, database.ConnectConfig{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := migrateDatabase(cfg, logger, db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// redis (optional, serializes draft sync)
	var redisClient *redis.Client
	var locker *redis.Locker
	if cfg.RedisEnabled {
		redisClient, err = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		locker = redis.NewLocker(redisClient, "fern:")
	}

	// object storage (optional, media paths fail MediaUnavailable without it)
	var objectStore media.ObjectStore
	if cfg.MediaEnabled {
		s3Store, err := media.NewS3Store(ctx, media.S3Config{
			Bucket:   cfg.MediaBucket,
			Region:   cfg.MediaRegion,
			Endpoint: cfg.MediaEndpoint,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to configure object storage: %w", err)
		}
		objectStore = s3Store
	}

	// kafka producer (optional, lifecycle events)
	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producerCfg := kafka.DefaultProducerConfig()
		producerCfg.Brokers = cfg.KafkaBrokers
		producerCfg.Topic = cfg.KafkaOutputTopic
		producerCfg.BatchSize = cfg.KafkaBatchSize
		producerCfg.BatchTimeout = time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond
		producerCfg.RequiredAcks = cfg.KafkaRequiredAcks
		producerCfg.Compression = cfg.KafkaCompression

		producer, err = kafka.NewProducer(producerCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka producer: %w", err)
		}
		defer producer.Close()
	}

	templateRepository := templaterepo.NewRepository(db, logger)
	instanceRepository := instancerepo.NewRepository(db, logger)
	checklistService := checklist.NewService(templateRepository, instanceRepository, objectStore, locker, logger)
	templateService := templatesvc.NewService(templateRepository, objectStore, logger)
	emitter := events.NewEmitter(producer, logger)

	if err := ectoinject.RegisterInstance[database.DB](container, db); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*checklist.Service](container, checklistService); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*templatesvc.Service](container, templateService); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*events.Emitter](container, emitter); err != nil {
		return err
	}

	e := newServer(cfg, logger)

	checker := healthroutes.NewChecker(db, redisClient, version)
	checker.RegisterRoutes(e)

	instanceroutes.Register(e.Group("/api/v1/checklists"))
	templateroutes.Register(e.Group("/api/v1/templates"))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	starter := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	starter.AddDependency(&httpDependency{echo: e, port: cfg.Port, logger: logger})
	if err := starter.Start(ctx); err != nil {
		return err
	}
	checker.SetReady(true)

	// block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Infof("Received signal %s, shutting down", sig)
	case <-ctx.Done():
	}

	checker.SetReady(false)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return starter.Stop(stopCtx)
}

func migrateDatabase(cfg config.Config, logger ectologger.Logger, db database.DB) error {
	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("unexpected database implementation %T", db)
	}

	driver, err := migratepg.WithInstance(instance.DB.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
	})
	return migrations.Migrate(cfg.DatabaseName, driver)
}

func newServer(cfg config.Config, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	return e
}

// httpDependency runs the echo server under the startup sequencer
type httpDependency struct {
	echo   *echo.Echo
	port   int
	logger ectologger.Logger
}

func (d *httpDependency) GetName() string    { return "http-server" }
func (d *httpDependency) DependsOn() []string { return nil }

func (d *httpDependency) Start(ctx context.Context) error {
	go func() {
		addr := fmt.Sprintf(":%d", d.port)
		d.logger.Infof("HTTP server listening on %s", addr)
		if err := d.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			d.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

func (d *httpDependency) Stop(ctx context.Context) error {
	return d.echo.Shutdown(ctx)
}
