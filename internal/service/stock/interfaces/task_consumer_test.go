// internal/service/stock/interfaces/task_consumer_test.go
package interfaces

import (
	"context"
	"sync"
	"testing"
	"time"

	"granary/internal/service/stock/application"
	"granary/internal/service/stock/domain"

	"go.opentelemetry.io/otel"
)

func newTestConsumer(t *testing.T) (*StockTaskConsumerAdapter, *application.StockService) {
	t.Helper()
	service := application.NewStockService(
		newFakeLedgerRepo(), noopCache{}, noopNotifier{},
		otel.Tracer("test"), 2, time.Millisecond,
	)
	return NewStockTaskConsumerAdapter(nil, service, nil, nil), service
}

func createProduct(t *testing.T, service *application.StockService, amount int64) string {
	t.Helper()
	view, err := service.CreateProduct(context.Background(), &application.CreateProductRequest{
		ProductName: "widget", Amount: amount, Price: 2.5,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return view.ProductID
}

func TestHandleTaskReserve(t *testing.T) {
	consumer, service := newTestConsumer(t)
	id := createProduct(t, service, 10)

	result := consumer.HandleTask(context.Background(), &TaskEnvelope{
		Task: TaskReserve, TaskID: "task-1", ProductID: id, Amount: 4,
	})
	if !result.OK {
		t.Fatalf("reserve task failed: %+v", result)
	}
	if result.Product.AvailableQuantity != 6 || result.Product.ReservedQuantity != 4 {
		t.Fatalf("got available=%d reserved=%d, want 6/4", result.Product.AvailableQuantity, result.Product.ReservedQuantity)
	}
	if result.Message != "Product updated successfully" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestHandleTaskInsufficientStock(t *testing.T) {
	consumer, service := newTestConsumer(t)
	id := createProduct(t, service, 6)

	result := consumer.HandleTask(context.Background(), &TaskEnvelope{
		Task: TaskReserve, TaskID: "task-1", ProductID: id, Amount: 20,
	})
	if result.OK {
		t.Fatal("oversized reserve reported success")
	}
	if result.Error != domain.CodeInsufficientStock {
		t.Fatalf("got error code %s, want %s", result.Error, domain.CodeInsufficientStock)
	}
}

func TestHandleTaskUnknownProduct(t *testing.T) {
	consumer, _ := newTestConsumer(t)

	result := consumer.HandleTask(context.Background(), &TaskEnvelope{
		Task: TaskAddStock, TaskID: "task-1", ProductID: "no-such-id", Amount: 5,
	})
	if result.OK {
		t.Fatal("task on missing product reported success")
	}
	if result.Error != domain.CodeNotFound {
		t.Fatalf("got error code %s, want %s", result.Error, domain.CodeNotFound)
	}
}

// 重复投递的 finalize 不会二次扣减：第二次执行时预留已耗尽，
// 得到的是 OVER_FINALIZE 的业务失败结果。
func TestHandleTaskRedeliveredFinalize(t *testing.T) {
	consumer, service := newTestConsumer(t)
	id := createProduct(t, service, 10)

	reserve := &TaskEnvelope{Task: TaskReserve, TaskID: "task-1", ProductID: id, Amount: 4}
	finalize := &TaskEnvelope{Task: TaskFinalize, TaskID: "task-2", ProductID: id, Amount: 4}

	if result := consumer.HandleTask(context.Background(), reserve); !result.OK {
		t.Fatalf("reserve: %+v", result)
	}
	first := consumer.HandleTask(context.Background(), finalize)
	if !first.OK {
		t.Fatalf("first finalize: %+v", first)
	}
	if first.Message != "Stock purchase finalized successfully" {
		t.Fatalf("unexpected finalize message %q", first.Message)
	}

	second := consumer.HandleTask(context.Background(), finalize)
	if second.OK {
		t.Fatal("redelivered finalize reported success")
	}
	if second.Error != domain.CodeOverFinalize {
		t.Fatalf("got error code %s, want %s", second.Error, domain.CodeOverFinalize)
	}

	view, err := service.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if view.AvailableQuantity != 6 || view.ReservedQuantity != 0 {
		t.Fatalf("redelivery changed the ledger: available=%d reserved=%d", view.AvailableQuantity, view.ReservedQuantity)
	}
}

func TestHandleTaskUnreserveFlow(t *testing.T) {
	consumer, service := newTestConsumer(t)
	id := createProduct(t, service, 10)

	consumer.HandleTask(context.Background(), &TaskEnvelope{Task: TaskReserve, TaskID: "t1", ProductID: id, Amount: 3})
	result := consumer.HandleTask(context.Background(), &TaskEnvelope{Task: TaskUnreserve, TaskID: "t2", ProductID: id, Amount: 3})
	if !result.OK {
		t.Fatalf("unreserve: %+v", result)
	}
	if result.Product.AvailableQuantity != 10 || result.Product.ReservedQuantity != 0 {
		t.Fatalf("round trip did not restore the ledger: %+v", result.Product)
	}
}

func TestHandleTaskAddStock(t *testing.T) {
	consumer, service := newTestConsumer(t)
	id := createProduct(t, service, 10)

	result := consumer.HandleTask(context.Background(), &TaskEnvelope{Task: TaskAddStock, TaskID: "t1", ProductID: id, Amount: 5})
	if !result.OK {
		t.Fatalf("add stock: %+v", result)
	}
	if result.Product.AvailableQuantity != 15 {
		t.Fatalf("got available=%d, want 15", result.Product.AvailableQuantity)
	}
	if result.Message != "Stock added successfully" {
		t.Fatalf("unexpected add stock message %q", result.Message)
	}
}

// 消费循环在独立 goroutine 里轮询停止标记，Stop 在另一个 goroutine 里置位，
// 两边并发读写必须干净（-race 下跑）。
func TestConsumerStopFlagConcurrentAccess(t *testing.T) {
	consumer, _ := newTestConsumer(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if consumer.stopped.Load() {
					return
				}
			}
		}()
	}
	consumer.stopped.Store(true)
	wg.Wait()
}

func TestKnownTask(t *testing.T) {
	for _, name := range []string{TaskReserve, TaskUnreserve, TaskFinalize, TaskAddStock} {
		if !knownTask(name) {
			t.Errorf("knownTask(%q) = false", name)
		}
	}
	if knownTask("stock.reset_everything") {
		t.Error("knownTask accepted an unknown task name")
	}
}
