// internal/service/stock/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"granary/internal/service/stock/domain"

	"gorm.io/gorm"
)

// GormLedgerRepository 是 domain.LedgerRepository 的 GORM/MySQL 实现。
type GormLedgerRepository struct {
	db *gorm.DB
}

func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

func (r *GormLedgerRepository) Create(ctx context.Context, ledger *domain.Ledger) error {
	model := ToLedgerModel(ledger)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateName, ledger.ProductName)
		}
		return storeErr(err)
	}
	return nil
}

func (r *GormLedgerRepository) FindByID(ctx context.Context, id string) (*domain.Ledger, error) {
	var model LedgerModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr(err)
	}
	return ToDomainLedger(&model), nil
}

func (r *GormLedgerRepository) FindAll(ctx context.Context) ([]*domain.Ledger, error) {
	var models []LedgerModel
	if err := r.db.WithContext(ctx).Order("product_name").Find(&models).Error; err != nil {
		return nil, storeErr(err)
	}
	ledgers := make([]*domain.Ledger, 0, len(models))
	for i := range models {
		ledgers = append(ledgers, ToDomainLedger(&models[i]))
	}
	return ledgers, nil
}

// UpdateConditional 执行条件写回：
//
//	UPDATE stock_ledgers SET ..., version = version + 1
//	WHERE id = ? AND version = ?
//
// RowsAffected 为 0 说明要么行被并发写者改过（版本不匹配），
// 要么行已被删除；两种情况分别报告 ErrContention / ErrNotFound。
func (r *GormLedgerRepository) UpdateConditional(ctx context.Context, ledger *domain.Ledger) error {
	res := r.db.WithContext(ctx).Model(&LedgerModel{}).
		Where("id = ? AND version = ?", ledger.ID, ledger.Version).
		Updates(map[string]interface{}{
			"available":  ledger.Available,
			"reserved":   ledger.Reserved,
			"price":      ledger.Price,
			"version":    ledger.Version + 1,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&LedgerModel{}).Where("id = ?", ledger.ID).Count(&count).Error; err != nil {
			return storeErr(err)
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrContention
	}
	ledger.Version++
	return nil
}

// Delete 与 UpdateConditional 同样以版本为条件，
// 保证调用方手里的快照就是被删除的那个状态。
func (r *GormLedgerRepository) Delete(ctx context.Context, ledger *domain.Ledger) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND version = ?", ledger.ID, ledger.Version).
		Delete(&LedgerModel{})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&LedgerModel{}).Where("id = ?", ledger.ID).Count(&count).Error; err != nil {
			return storeErr(err)
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrContention
	}
	return nil
}

// storeErr 把驱动层错误统一归为瞬态的存储不可用，保留原因。
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
