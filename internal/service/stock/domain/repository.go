// internal/service/stock/domain/repository.go
package domain

import "context"

// LedgerRepository 是台账的持久化端口。台账的所有字段变更
// 必须通过 UpdateConditional 落库，其它路径一律不允许直接写字段。
type LedgerRepository interface {
	// Create 插入新台账。名字冲突返回 ErrDuplicateName。
	Create(ctx context.Context, ledger *Ledger) error

	// FindByID 按 id 读取当前台账。不存在返回 ErrNotFound。
	FindByID(ctx context.Context, id string) (*Ledger, error)

	// FindAll 返回全部台账。
	FindAll(ctx context.Context) ([]*Ledger, error)

	// UpdateConditional 以 ledger.Version 为条件写回新状态：
	// 只有当存储中的版本仍等于读取时的版本，写入才会生效。
	// 写入生效后 ledger.Version 递增；期间被他人改过返回 ErrContention，
	// 行已不存在返回 ErrNotFound。
	UpdateConditional(ctx context.Context, ledger *Ledger) error

	// Delete 以 ledger.Version 为条件删除台账：版本仍然匹配才会删除，
	// 这样删除事件里的数量快照就是真正被删掉的那一份。
	// 期间被他人改过返回 ErrContention，行已不存在返回 ErrNotFound。
	Delete(ctx context.Context, ledger *Ledger) error
}

// ChangeNotifier 是变更事件的出口。实现必须是非阻塞的：
// 通知失败或积压绝不能反过来阻塞或回滚业务变更。
type ChangeNotifier interface {
	Notify(event StockChanged)
}

// LedgerCache 是按 id 的读缓存端口。缓存只是加速读路径，
// 任何未命中或缓存故障都应退化为走存储。
type LedgerCache interface {
	Get(ctx context.Context, id string) (*Ledger, bool)
	Set(ctx context.Context, ledger *Ledger)
	Invalidate(ctx context.Context, id string)
}
