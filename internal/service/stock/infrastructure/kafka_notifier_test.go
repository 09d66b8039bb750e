// internal/service/stock/infrastructure/kafka_notifier_test.go
package infrastructure

import (
	"context"
	"testing"
	"time"

	"granary/internal/service/stock/domain"
)

// 优雅关停时 OnShutdown 先停通知器，HTTP 服务器随后才关，
// 收尾中的请求完成变更后还会调 Notify——此时只能丢弃，不能 panic。
func TestNotifyAfterStopDoesNotPanic(t *testing.T) {
	n := NewKafkaChangeNotifier(nil, 4)
	n.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n.Stop(ctx)

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Notify after Stop panicked: %v", r)
		}
	}()
	n.Notify(domain.StockChanged{ProductID: "p1", Kind: domain.KindReserve, Delta: 1})

	// Stop 幂等
	n.Stop(ctx)
}

func TestNotifyDropsWhenBufferFull(t *testing.T) {
	// 不启动外送循环，第一条事件就占满缓冲
	n := NewKafkaChangeNotifier(nil, 1)

	n.Notify(domain.StockChanged{ProductID: "p1", Kind: domain.KindReserve})
	done := make(chan struct{})
	go func() {
		n.Notify(domain.StockChanged{ProductID: "p1", Kind: domain.KindReserve})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full buffer")
	}
}
