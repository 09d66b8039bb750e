// internal/service/stock/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"granary/internal/pkg/logger"
	"granary/internal/service/stock/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StockService 是台账的应用服务，HTTP 网关和任务消费者共用同一个实例的逻辑。
//
// 并发安全完全依赖存储层的条件写：读取当前状态、在内存里做状态转移、
// 带版本条件写回。写回因并发冲突失败时在本地按预算重试（带抖动退避），
// 预算耗尽才向调用方暴露 CONTENTION。进程内不持有任何跨请求状态，
// 因此多个进程/机器上的 worker 可以同时工作。
type StockService struct {
	repo       domain.LedgerRepository
	cache      domain.LedgerCache
	notifier   domain.ChangeNotifier
	tracer     trace.Tracer
	maxRetries int
	retryBase  time.Duration
}

func NewStockService(repo domain.LedgerRepository, cache domain.LedgerCache, notifier domain.ChangeNotifier, tracer trace.Tracer, maxRetries int, retryBase time.Duration) *StockService {
	if maxRetries <= 0 {
		maxRetries = 4
	}
	if retryBase <= 0 {
		retryBase = 20 * time.Millisecond
	}
	return &StockService{
		repo:       repo,
		cache:      cache,
		notifier:   notifier,
		tracer:     tracer,
		maxRetries: maxRetries,
		retryBase:  retryBase,
	}
}

// CreateProduct 新建台账。名字冲突和负数入参是终态错误。
func (s *StockService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*LedgerView, error) {
	ctx, span := s.tracer.Start(ctx, "stock.CreateProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.name", req.ProductName))

	ledger, err := domain.NewLedger(req.ProductName, req.Amount, req.Price)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.repo.Create(ctx, ledger); err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrDuplicateName) {
			logger.Ctx(ctx).Warn().Str("product", req.ProductName).Msg("Duplicate stock creation attempt")
		}
		transitionsTotal.WithLabelValues(string(domain.KindCreate), domain.Code(err)).Inc()
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("product_id", ledger.ID).
		Str("product", ledger.ProductName).
		Int64("amount", ledger.Available).
		Float64("price", ledger.Price).
		Msg("Stock created")
	s.emit(ledger, domain.KindCreate, req.Amount)
	transitionsTotal.WithLabelValues(string(domain.KindCreate), "ok").Inc()
	return NewLedgerView(ledger), nil
}

// ListProducts 返回全部台账快照。
func (s *StockService) ListProducts(ctx context.Context) ([]*LedgerView, error) {
	ctx, span := s.tracer.Start(ctx, "stock.ListProducts")
	defer span.End()

	ledgers, err := s.repo.FindAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	views := make([]*LedgerView, 0, len(ledgers))
	for _, l := range ledgers {
		views = append(views, NewLedgerView(l))
	}
	return views, nil
}

// GetProduct 按 id 读取单个台账，优先走缓存。
func (s *StockService) GetProduct(ctx context.Context, id string) (*LedgerView, error) {
	ctx, span := s.tracer.Start(ctx, "stock.GetProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	if l, ok := s.cache.Get(ctx, id); ok {
		span.AddEvent("cache hit")
		return NewLedgerView(l), nil
	}

	ledger, err := s.repo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.cache.Set(ctx, ledger)
	return NewLedgerView(ledger), nil
}

// UpdateProduct 是管理员覆写：直接设置可售数量和/或价格。
func (s *StockService) UpdateProduct(ctx context.Context, id string, req *UpdateProductRequest) (*LedgerView, error) {
	var changed []string
	var oldAvailable int64
	view, err := s.apply(ctx, id, domain.KindUpdate, func(l *domain.Ledger) (int64, error) {
		oldAvailable = l.Available
		var err error
		changed, err = l.Adjust(req.AvailableQuantity, req.Price)
		if err != nil {
			return 0, err
		}
		return l.Available - oldAvailable, nil
	})
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		logger.Ctx(ctx).Info().
			Str("product_id", id).
			Strs("changed", changed).
			Msg("Stock updated")
	}
	return view, nil
}

// DeleteProduct 删除台账。删除与写回一样是条件操作：
// 读取和删除之间有人改过台账就重读，保证删除事件携带的数量
// 是真正被删掉的那份快照。
func (s *StockService) DeleteProduct(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "stock.DeleteProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		ledger, err := s.repo.FindByID(ctx, id)
		if err != nil {
			span.RecordError(err)
			return err
		}

		err = s.repo.Delete(ctx, ledger)
		if err == nil {
			s.cache.Invalidate(ctx, id)
			logger.Ctx(ctx).Info().
				Str("product_id", id).
				Str("product", ledger.ProductName).
				Msg("Stock deleted")
			s.notifier.Notify(domain.StockChanged{
				ProductID:      id,
				Kind:           domain.KindDelete,
				Delta:          -(ledger.Available + ledger.Reserved),
				AvailableAfter: 0,
				ReservedAfter:  0,
				At:             time.Now().UTC(),
			})
			transitionsTotal.WithLabelValues(string(domain.KindDelete), "ok").Inc()
			return nil
		}

		if !errors.Is(err, domain.ErrContention) {
			span.RecordError(err)
			transitionsTotal.WithLabelValues(string(domain.KindDelete), domain.Code(err)).Inc()
			return err
		}

		lastErr = err
		contentionRetriesTotal.Inc()
		span.AddEvent("write conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
		if attempt < s.maxRetries {
			select {
			case <-time.After(s.backoff(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, ctx.Err())
			}
		}
	}

	transitionsTotal.WithLabelValues(string(domain.KindDelete), domain.CodeContention).Inc()
	return fmt.Errorf("%w after %d attempts: %v", domain.ErrContention, s.maxRetries+1, lastErr)
}

// Reserve 在结账时锁定库存：available -> reserved。
func (s *StockService) Reserve(ctx context.Context, id string, amount int64) (*LedgerView, error) {
	return s.apply(ctx, id, domain.KindReserve, func(l *domain.Ledger) (int64, error) {
		return amount, l.Reserve(amount)
	})
}

// Unreserve 释放锁定：reserved -> available。
func (s *StockService) Unreserve(ctx context.Context, id string, amount int64) (*LedgerView, error) {
	return s.apply(ctx, id, domain.KindUnreserve, func(l *domain.Ledger) (int64, error) {
		return amount, l.Unreserve(amount)
	})
}

// Finalize 把预留转为完成的销售。
func (s *StockService) Finalize(ctx context.Context, id string, amount int64) (*LedgerView, error) {
	return s.apply(ctx, id, domain.KindFinalize, func(l *domain.Ledger) (int64, error) {
		return amount, l.Finalize(amount)
	})
}

// Replenish 补充可售库存（补货/退款）。
func (s *StockService) Replenish(ctx context.Context, id string, amount int64) (*LedgerView, error) {
	return s.apply(ctx, id, domain.KindAddStock, func(l *domain.Ledger) (int64, error) {
		return amount, l.Replenish(amount)
	})
}

// apply 是读取-决策-条件写回循环，所有既有台账的变更都走这里。
// mutate 在最新快照上做状态转移并返回事件的 delta；业务规则拒绝立即终止，
// 只有写回时的版本冲突才会消耗重试预算。
func (s *StockService) apply(ctx context.Context, id string, kind domain.ChangeKind, mutate func(*domain.Ledger) (int64, error)) (*LedgerView, error) {
	ctx, span := s.tracer.Start(ctx, "stock."+string(kind))
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		ledger, err := s.repo.FindByID(ctx, id)
		if err != nil {
			span.RecordError(err)
			transitionsTotal.WithLabelValues(string(kind), domain.Code(err)).Inc()
			return nil, err
		}

		delta, err := mutate(ledger)
		if err != nil {
			// 业务规则拒绝：基于当前状态的最终判定，不重试。
			span.RecordError(err)
			logger.Ctx(ctx).Warn().
				Str("product_id", id).
				Str("kind", string(kind)).
				Str("code", domain.Code(err)).
				Msg(err.Error())
			transitionsTotal.WithLabelValues(string(kind), domain.Code(err)).Inc()
			return nil, err
		}

		err = s.repo.UpdateConditional(ctx, ledger)
		if err == nil {
			s.cache.Invalidate(ctx, id)
			s.emit(ledger, kind, delta)
			logger.Ctx(ctx).Info().
				Str("product_id", id).
				Str("kind", string(kind)).
				Int64("delta", delta).
				Int64("available", ledger.Available).
				Int64("reserved", ledger.Reserved).
				Msg("Stock transition applied")
			transitionsTotal.WithLabelValues(string(kind), "ok").Inc()
			return NewLedgerView(ledger), nil
		}

		if !errors.Is(err, domain.ErrContention) {
			span.RecordError(err)
			transitionsTotal.WithLabelValues(string(kind), domain.Code(err)).Inc()
			return nil, err
		}

		// 输掉了一次并发竞争，退避后基于最新状态重算。
		lastErr = err
		contentionRetriesTotal.Inc()
		span.AddEvent("write conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
		if attempt < s.maxRetries {
			select {
			case <-time.After(s.backoff(attempt)):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, ctx.Err())
			}
		}
	}

	span.SetStatus(codes.Error, "retry budget exhausted")
	logger.Ctx(ctx).Error().
		Str("product_id", id).
		Str("kind", string(kind)).
		Int("attempts", s.maxRetries+1).
		Msg("Stock transition lost every retry to concurrent writers")
	transitionsTotal.WithLabelValues(string(kind), domain.CodeContention).Inc()
	return nil, fmt.Errorf("%w after %d attempts: %v", domain.ErrContention, s.maxRetries+1, lastErr)
}

// backoff 返回第 attempt 次冲突后的等待时长：指数退避加随机抖动，
// 避免竞争者步调一致地再次相撞。
func (s *StockService) backoff(attempt int) time.Duration {
	base := s.retryBase << attempt
	return base + time.Duration(rand.Int64N(int64(s.retryBase)))
}

func (s *StockService) emit(l *domain.Ledger, kind domain.ChangeKind, delta int64) {
	s.notifier.Notify(domain.StockChanged{
		ProductID:      l.ID,
		Kind:           kind,
		Delta:          delta,
		AvailableAfter: l.Available,
		ReservedAfter:  l.Reserved,
		At:             time.Now().UTC(),
	})
}
