// internal/service/stock/domain/ledger.go
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger 是一个商品的库存台账聚合根：可售数量、预留数量和价格。
// available 和 reserved 在任何时刻都不允许为负。
//
// reserve/unreserve 只在两个字段之间搬运数量，不改变总和；
// finalize 只扣减 reserved（可售数量在 reserve 时已经扣过了，
// finalize 表示"预留变成了完成的销售"，不是一次新的扣减）。
type Ledger struct {
	ID          string
	ProductName string
	Available   int64
	Reserved    int64
	Price       float64
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewLedger 创建一个新台账。名字必填，初始数量和价格不允许为负。
func NewLedger(productName string, amount int64, price float64) (*Ledger, error) {
	if productName == "" {
		return nil, fmt.Errorf("%w: product_name is required", ErrInvalidAmount)
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: initial amount %d is negative", ErrInvalidAmount, amount)
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: price %g is negative", ErrInvalidAmount, price)
	}
	now := time.Now().UTC()
	return &Ledger{
		ID:          uuid.New().String(),
		ProductName: productName,
		Available:   amount,
		Reserved:    0,
		Price:       price,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Reserve 把数量从 available 搬到 reserved（下单锁定）。
func (l *Ledger) Reserve(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: cannot reserve %d", ErrInvalidAmount, amount)
	}
	if l.Available < amount {
		return fmt.Errorf("%w: available %d, requested %d", ErrInsufficientStock, l.Available, amount)
	}
	l.Available -= amount
	l.Reserved += amount
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// Unreserve 是 Reserve 的精确逆操作（交易失败/购物车移除时释放锁定）。
// 永远不能释放超过当前 reserved 的数量。
func (l *Ledger) Unreserve(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: cannot unreserve %d", ErrInvalidAmount, amount)
	}
	if l.Reserved < amount {
		return fmt.Errorf("%w: reserved %d, requested %d", ErrOverRelease, l.Reserved, amount)
	}
	l.Reserved -= amount
	l.Available += amount
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// Finalize 把预留转为完成的销售，只扣减 reserved。
func (l *Ledger) Finalize(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: cannot finalize %d", ErrInvalidAmount, amount)
	}
	if l.Reserved < amount {
		return fmt.Errorf("%w: reserved %d, requested %d", ErrOverFinalize, l.Reserved, amount)
	}
	l.Reserved -= amount
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// Replenish 增加可售数量（补货/退款回仓）。
func (l *Ledger) Replenish(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: cannot add %d stock", ErrInvalidAmount, amount)
	}
	l.Available += amount
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// Adjust 直接设置可售数量和/或价格，绕过守恒检查（管理员覆写）。
// nil 表示该字段不变。返回实际发生变更的字段名。
func (l *Ledger) Adjust(available *int64, price *float64) ([]string, error) {
	var changed []string
	if available != nil {
		if *available < 0 {
			return nil, fmt.Errorf("%w: available %d is negative", ErrInvalidAmount, *available)
		}
		if *available != l.Available {
			changed = append(changed, "available_quantity")
		}
		l.Available = *available
	}
	if price != nil {
		if *price < 0 {
			return nil, fmt.Errorf("%w: price %g is negative", ErrInvalidAmount, *price)
		}
		if *price != l.Price {
			changed = append(changed, "price")
		}
		l.Price = *price
	}
	if len(changed) > 0 {
		l.UpdatedAt = time.Now().UTC()
	}
	return changed, nil
}
