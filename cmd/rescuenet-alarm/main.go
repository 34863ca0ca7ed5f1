package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rescuenet/common/database"
	"rescuenet/common/logger"
	mqttcommon "rescuenet/common/mqtt"
	rediscommon "rescuenet/common/redis"
	"rescuenet/internal/cache"
	"rescuenet/internal/config"
	"rescuenet/internal/consumer"
	"rescuenet/internal/dispatcher"
	"rescuenet/internal/models"
	"rescuenet/internal/notify"
	"rescuenet/internal/repository"
	"rescuenet/internal/responder"
	"rescuenet/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "rescuenet-alarm")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 连接数据库并建表
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	if err := repository.Migrate(ctx, db); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	// 4. 连接 Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	defer redisClient.Close()
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}

	// 5. MQTT（设备接入或设备短信需要）
	var mqttClient *mqttcommon.Client
	if cfg.Ingest.Source == "mqtt" || cfg.Notify.SMSProvider == "device" {
		mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, log)
		if err != nil {
			log.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		defer mqttClient.Disconnect()
	}

	// 6. 通知渠道与救援方查询
	deps := notify.Deps{Redis: redisClient}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	channels, err := notify.NewChannels(cfg, deps, log)
	if err != nil {
		log.Fatal("Failed to build notification channels", zap.Error(err))
	}
	lookup, err := responder.New(cfg.Responder.Provider, cfg.Responder.BaseURL, cfg.Responder.Timeout, log)
	if err != nil {
		log.Fatal("Failed to build responder lookup", zap.Error(err))
	}

	// 7. 仓库、缓存、分发器、服务
	vitalsRepo := repository.NewVitalsRepository(db, log)
	profileRepo := repository.NewProfileRepository(db, log)
	emergencyRepo := repository.NewEmergencyRepository(db, log)
	windowCache := cache.NewWindowCache(cfg, vitalsRepo, redisClient, log)
	guard := cache.NewRedisGuard(redisClient, cfg.Cache.IdempotencyKeyPrefix)

	d := dispatcher.NewDispatcher(cfg, emergencyRepo, profileRepo, channels, lookup, guard, log)
	svc := service.NewMonitorService(cfg, service.Deps{
		History:     windowCache,
		Samples:     vitalsRepo,
		Profiles:    profileRepo,
		Emergencies: emergencyRepo,
		Dispatcher:  d,
		Invalidator: windowCache,
	}, log)

	ingestor := consumer.IngestFunc(func(ctx context.Context, s models.VitalSample) error {
		res, err := svc.Ingest(ctx, s)
		if err != nil {
			return err
		}
		if res.Emergency != nil {
			log.Info("Sample escalated",
				zap.String("subject_id", s.SubjectID),
				zap.String("emergency_id", res.Emergency.ID),
				zap.String("status", string(res.Emergency.Status)),
			)
		}
		return nil
	})

	// 8. 启动接入消费者
	errChan := make(chan error, 1)
	go func() {
		var err error
		switch cfg.Ingest.Source {
		case "stream":
			err = consumer.NewStreamConsumer(cfg, redisClient, ingestor, log).Start(ctx)
		case "mqtt":
			err = consumer.NewMQTTConsumer(cfg, mqttClient, ingestor, log).Start(ctx)
		default:
			err = fmt.Errorf("unknown ingest source %q", cfg.Ingest.Source)
		}
		if err != nil {
			errChan <- err
		}
	}()

	log.Info("RescueNet alarm service started",
		zap.String("ingest_source", cfg.Ingest.Source),
		zap.Int("channel_count", len(channels)),
	)

	// 9. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		log.Error("Consumer error", zap.Error(err))
		cancel()
	}

	log.Info("RescueNet alarm service stopped")
}
