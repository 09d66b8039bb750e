// internal/service/stock/interfaces/task_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"granary/internal/pkg/logger"
	"granary/internal/pkg/mq"
	"granary/internal/service/stock/application"
	"granary/internal/service/stock/domain"

	"github.com/segmentio/kafka-go"
)

// 任务名与原有生产方保持兼容。
const (
	TaskReserve   = "stock.reserve_stock"
	TaskUnreserve = "stock.unreserve_stock"
	TaskFinalize  = "stock.finalise_stock_purchase"
	TaskAddStock  = "stock.add_stock"
)

// TaskEnvelope 是任务队列上的消息体。
type TaskEnvelope struct {
	Task      string `json:"task"`
	TaskID    string `json:"task_id"`
	ProductID string `json:"product_id"`
	Amount    int64  `json:"amount"`
}

// StockTaskConsumerAdapter 是驱动适配器：消费任务队列并驱动应用服务。
//
// 队列是 at-least-once 的，消息可能在处理成功后被重复投递。
// 处理器不记任务去重表——结果完全由当前台账状态加参数决定，
// 重复的 finalize 会因为预留已不足而得到 OVER_FINALIZE 的失败结果，
// 不会被二次扣减。任何结果（成功或业务失败）都会确认消息并发布
// 结构化结果；只有解不开的毒消息才进 DLT。
type StockTaskConsumerAdapter struct {
	reader         *kafka.Reader
	service        *application.StockService
	resultWriter   *kafka.Writer
	failureHandler *mq.FailureHandler
	wg             sync.WaitGroup
	stopped        atomic.Bool
}

func NewStockTaskConsumerAdapter(reader *kafka.Reader, service *application.StockService, resultWriter *kafka.Writer, failureHandler *mq.FailureHandler) *StockTaskConsumerAdapter {
	return &StockTaskConsumerAdapter{
		reader:         reader,
		service:        service,
		resultWriter:   resultWriter,
		failureHandler: failureHandler,
	}
}

// Start 开始监听任务主题。非阻塞，消费循环在独立 goroutine 中运行。
func (a *StockTaskConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("Stock task consumer started")
		for {
			if a.stopped.Load() {
				return
			}
			// FetchMessage 而不是 ReadMessage，提交时机由我们控制
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("Stock task consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("Could not read task message, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			newCtx := mq.ExtractTraceContext(ctx, msg.Headers)
			a.processMessage(newCtx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit task message")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (a *StockTaskConsumerAdapter) Stop(ctx context.Context) {
	a.stopped.Store(true)
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("Stock task consumer stopped")
}

func (a *StockTaskConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) {
	var env TaskEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		a.failureHandler.Handle(ctx, msg, fmt.Errorf("undecodable task payload: %w", err))
		return
	}
	if !knownTask(env.Task) {
		a.failureHandler.Handle(ctx, msg, fmt.Errorf("unknown task name %q", env.Task))
		return
	}

	logger.Ctx(ctx).Info().
		Str("task", env.Task).
		Str("task_id", env.TaskID).
		Str("product_id", env.ProductID).
		Int64("amount", env.Amount).
		Msg("Task received")

	result := a.HandleTask(ctx, &env)

	if result.OK {
		logger.Ctx(ctx).Info().Str("task", env.Task).Str("task_id", env.TaskID).Msg("Task succeeded")
	} else {
		logger.Ctx(ctx).Warn().
			Str("task", env.Task).
			Str("task_id", env.TaskID).
			Str("error", result.Error).
			Str("message", result.Message).
			Msg("Task failed")
	}

	a.publishResult(ctx, &env, result)
}

// HandleTask 执行单个任务并返回结构化结果。
// 绝不向队列运行时抛出未捕获的异常：panic 被转成 UNKNOWN 结果记录下来，
// 消息照常确认，避免对永久性的业务违规无限重试。
func (a *StockTaskConsumerAdapter) HandleTask(ctx context.Context, env *TaskEnvelope) (result application.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Ctx(ctx).Error().
				Str("task", env.Task).
				Str("task_id", env.TaskID).
				Any("panic", r).
				Msg("Task handler panicked")
			result = application.TaskResult{
				OK:      false,
				Error:   domain.CodeUnknown,
				Message: fmt.Sprintf("task handler panicked: %v", r),
			}
		}
	}()

	var view *application.LedgerView
	var err error
	switch env.Task {
	case TaskReserve:
		view, err = a.service.Reserve(ctx, env.ProductID, env.Amount)
	case TaskUnreserve:
		view, err = a.service.Unreserve(ctx, env.ProductID, env.Amount)
	case TaskFinalize:
		view, err = a.service.Finalize(ctx, env.ProductID, env.Amount)
	case TaskAddStock:
		view, err = a.service.Replenish(ctx, env.ProductID, env.Amount)
	}

	if err != nil {
		return application.TaskResult{
			OK:      false,
			Error:   domain.Code(err),
			Message: err.Error(),
		}
	}
	return application.TaskResult{
		OK:      true,
		Message: successMessage(env.Task),
		Product: view,
	}
}

// successMessage 与原有生产方约定的逐任务成功文案保持一致。
func successMessage(task string) string {
	switch task {
	case TaskFinalize:
		return "Stock purchase finalized successfully"
	case TaskAddStock:
		return "Stock added successfully"
	default:
		return "Product updated successfully"
	}
}

// publishResult 把结果发到结果主题（以 task_id 为 Key），
// 供编排方决定后续动作。发布失败只记日志，不影响消息确认。
func (a *StockTaskConsumerAdapter) publishResult(ctx context.Context, env *TaskEnvelope, result application.TaskResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("task_id", env.TaskID).Msg("Failed to marshal task result")
		return
	}
	key := env.TaskID
	if key == "" {
		key = env.ProductID
	}
	if err := mq.ProduceMessage(ctx, a.resultWriter, []byte(key), payload); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("task_id", env.TaskID).Msg("Failed to publish task result")
	}
}

func knownTask(name string) bool {
	switch name {
	case TaskReserve, TaskUnreserve, TaskFinalize, TaskAddStock:
		return true
	}
	return false
}
