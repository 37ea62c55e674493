package main

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/firstnattapon/24wash-backend/config"
	"github.com/firstnattapon/24wash-backend/handlers"
	"github.com/firstnattapon/24wash-backend/internal/channel"
	"github.com/firstnattapon/24wash-backend/internal/coupon"
	"github.com/firstnattapon/24wash-backend/internal/dispatch"
	"github.com/firstnattapon/24wash-backend/internal/engine"
	"github.com/firstnattapon/24wash-backend/internal/slipok"
	"github.com/firstnattapon/24wash-backend/internal/store/postgres"
	"github.com/firstnattapon/24wash-backend/internal/vision"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/firstnattapon/24wash-backend/pkg/line"
	"github.com/firstnattapon/24wash-backend/router"
	"github.com/firstnattapon/24wash-backend/services"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger.InitLogger()
	log := logger.GetLogger()
	defer func() { _ = logger.Close() }()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redisTimeout := time.Duration(cfg.Redis.TimeoutSeconds) * time.Second
	if redisTimeout <= 0 {
		redisTimeout = 5 * time.Second
	}

	// Redis backs both the coupon store and the machine command queue
	redisOptions := &redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}
	if cfg.Redis.UseTLS {
		redisOptions.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}
	redisClient := redis.NewClient(redisOptions)

	pingCtx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	cancel()

	// Optional audit database
	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnString())
		if err != nil {
			log.Fatalf("Failed to parse database config: %v", err)
		}
		if cfg.IsProduction() {
			poolConfig.ConnConfig.TLSConfig = &tls.Config{
				ServerName: cfg.Database.Host,
				MinVersion: tls.VersionTLS12,
			}
		}
		pool, err = pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
	}

	// Verification pipeline
	verifier := slipok.NewClient(cfg.SlipOK)
	var extractor vision.ExtractorInterface
	if cfg.Vision.Enabled() {
		extractor = vision.NewExtractor(cfg.Vision)
	} else {
		log.Warn("No vision API key configured, bypass slips will fail extraction")
	}
	pipeline := engine.NewPipeline(verifier, extractor, cfg.SlipOK.BypassCodes)

	// Decision engine
	resolver := channel.NewResolver(cfg.Channels)
	couponStore := coupon.NewRedisStore(redisClient, redisTimeout)
	couponManager := coupon.NewManager(couponStore)
	queue := dispatch.NewRedisQueue(redisClient, redisTimeout)
	eng := engine.NewEngine(pipeline, resolver, couponManager, queue, cfg.Channels.CouponMachines)

	if pool != nil {
		auditStore := postgres.NewAuditStore(pool)
		initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
		if err := auditStore.InitSchema(initCtx); err != nil {
			cancelInit()
			log.Fatalf("Failed to initialize audit schema: %v", err)
		}
		cancelInit()
		eng.SetAuditStore(auditStore)
	}
	if cfg.Alert.Enabled() {
		eng.SetAlertSender(services.NewAlertService(&cfg.Alert))
	}

	// Transport
	lineClient := line.NewClient(cfg.Line)
	webhookHandler := handlers.NewWebhookHandler(cfg.Line.ChannelSecret, lineClient, eng)
	healthService := services.NewHealthService(pool, redisClient, cfg.Server.Version)
	healthHandler := handlers.NewHealthHandler(healthService)

	r := router.SetupRouter(router.Dependencies{
		Config:         cfg,
		WebhookHandler: webhookHandler,
		HealthHandler:  healthHandler,
	})

	log.Infof("Starting server on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
