// internal/service/stock/infrastructure/kafka_notifier.go
package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"granary/internal/pkg/logger"
	"granary/internal/pkg/mq"
	"granary/internal/service/stock/domain"

	"github.com/segmentio/kafka-go"
)

// KafkaChangeNotifier 把台账变更事件发到变更主题。
// Notify 永不阻塞：事件先进缓冲通道，由后台 goroutine 批量外送；
// 缓冲满了就丢弃并记日志——事件流是尽力而为的观测数据，不是账本。
type KafkaChangeNotifier struct {
	writer *kafka.Writer
	events chan domain.StockChanged
	wg     sync.WaitGroup
	once   sync.Once

	// mu 保护 closed 与 events 的关闭：优雅关停时 HTTP 请求可能还在收尾，
	// Stop 之后的 Notify 只能丢弃，不能撞上已关闭的通道。
	mu     sync.RWMutex
	closed bool
}

func NewKafkaChangeNotifier(writer *kafka.Writer, buffer int) *KafkaChangeNotifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &KafkaChangeNotifier{
		writer: writer,
		events: make(chan domain.StockChanged, buffer),
	}
}

// Start 启动外送循环。
func (n *KafkaChangeNotifier) Start(ctx context.Context) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for event := range n.events {
			n.publish(ctx, event)
		}
	}()
}

// Notify 实现 domain.ChangeNotifier。Stop 之后变成空操作。
func (n *KafkaChangeNotifier) Notify(event domain.StockChanged) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		logger.Logger().Warn().
			Str("product_id", event.ProductID).
			Str("kind", string(event.Kind)).
			Msg("Change notifier stopped, event dropped")
		return
	}
	select {
	case n.events <- event:
	default:
		logger.Logger().Warn().
			Str("product_id", event.ProductID).
			Str("kind", string(event.Kind)).
			Msg("Change event buffer full, event dropped")
	}
}

// Stop 关闭入口并等待缓冲中的事件送完。
func (n *KafkaChangeNotifier) Stop(ctx context.Context) {
	n.once.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.events)
		n.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Ctx(ctx).Warn().Msg("Timed out flushing change events on shutdown")
	}
}

func (n *KafkaChangeNotifier) publish(ctx context.Context, event domain.StockChanged) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to marshal change event")
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mq.ProduceMessage(writeCtx, n.writer, []byte(event.ProductID), payload); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("product_id", event.ProductID).
			Str("kind", string(event.Kind)).
			Msg("Failed to publish change event")
	}
}
