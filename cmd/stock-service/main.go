// cmd/stock-service/main.go
package main

import (
	"context"
	"log"
	"time"

	"granary/internal/pkg/bootstrap"
	"granary/internal/pkg/logger"
	"granary/internal/pkg/mq"
	redispkg "granary/internal/pkg/redis"
	"granary/internal/service/stock/application"
	"granary/internal/service/stock/infrastructure"
	"granary/internal/service/stock/interfaces"

	"go.opentelemetry.io/otel"
)

const serviceName = "stock-service"

// main 是应用的组装根：创建并组装所有依赖项，然后启动服务。
func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	db, err := infrastructure.NewMysqlDB(cfg.Infra.Mysql.DSN)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize mysql: %v", err)
	}

	redisClient, err := redispkg.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize redis: %v", err)
	}
	cache, err := infrastructure.NewRedisLedgerCache(redisClient, time.Duration(cfg.Stock.Cache.TTLSeconds)*time.Second)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize ledger cache: %v", err)
	}

	eventWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Stock.Topics.Events)
	notifier := infrastructure.NewKafkaChangeNotifier(eventWriter, 256)
	notifier.Start(context.Background())

	repo := infrastructure.NewGormLedgerRepository(db)
	service := application.NewStockService(
		repo, cache, notifier,
		otel.Tracer(serviceName),
		cfg.Stock.Apply.MaxRetries,
		time.Duration(cfg.Stock.Apply.RetryBaseMS)*time.Millisecond,
	)
	handler := interfaces.NewStockHandler(service)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.HTTPPort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			notifier.Stop(ctx)
			if err := eventWriter.Close(); err != nil {
				log.Printf("Error closing event writer: %v", err)
			}
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		},
	})
}
