// cmd/stock-worker/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"granary/internal/pkg/bootstrap"
	"granary/internal/pkg/logger"
	"granary/internal/pkg/mq"
	redispkg "granary/internal/pkg/redis"
	"granary/internal/service/stock/application"
	"granary/internal/service/stock/infrastructure"
	"granary/internal/service/stock/interfaces"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

const serviceName = "stock-worker"

// main 组装任务队列 worker：同一套应用服务逻辑，换一个驱动入口。
// worker 可以多实例部署，与 stock-service 并发写同一份台账——
// 正确性由存储层的条件写保证，进程之间没有任何锁协调。
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

	brokers := cfg.Infra.Kafka.Brokers
	eventWriter := mq.NewKafkaWriter(brokers, cfg.Stock.Topics.Events)
	resultWriter := mq.NewKafkaWriter(brokers, cfg.Stock.Topics.Results)
	dltWriter := mq.NewKafkaWriter(brokers, cfg.Stock.Topics.DLT)

	notifier := infrastructure.NewKafkaChangeNotifier(eventWriter, 256)
	notifier.Start(context.Background())

	repo := infrastructure.NewGormLedgerRepository(db)
	service := application.NewStockService(
		repo, cache, notifier,
		otel.Tracer(serviceName),
		cfg.Stock.Apply.MaxRetries,
		time.Duration(cfg.Stock.Apply.RetryBaseMS)*time.Millisecond,
	)

	taskReader := mq.NewKafkaReader(brokers, cfg.Stock.Topics.Tasks, cfg.Stock.Consumer.GroupID)
	dltReader := mq.NewKafkaReader(brokers, cfg.Stock.Topics.DLT, cfg.Stock.Consumer.GroupID+"-dlt")

	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	taskConsumer := interfaces.NewStockTaskConsumerAdapter(taskReader, service, resultWriter, mq.NewFailureHandler(dltWriter))
	dltConsumer := interfaces.NewDltConsumerAdapter(dltReader)

	if err := taskConsumer.Start(consumerCtx); err != nil {
		log.Fatalf("FATAL: failed to start task consumer: %v", err)
	}
	if err := dltConsumer.Start(consumerCtx); err != nil {
		log.Fatalf("FATAL: failed to start dlt consumer: %v", err)
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.WorkerPort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		OnShutdown: func(ctx context.Context) {
			cancelConsumers()
			taskConsumer.Stop(ctx)
			dltConsumer.Stop(ctx)
			notifier.Stop(ctx)
			for _, w := range []interface{ Close() error }{eventWriter, resultWriter, dltWriter, redisClient} {
				if err := w.Close(); err != nil {
					log.Printf("Error closing component: %v", err)
				}
			}
		},
	})
}
