// internal/service/stock/infrastructure/models.go
package infrastructure

import "time"

// LedgerModel 是 Ledger 领域对象在数据库中的表示。
// version 列承载乐观并发控制：所有写回都以读取时的版本为条件。
type LedgerModel struct {
	ID          string  `gorm:"primaryKey;size:36"`
	ProductName string  `gorm:"size:191;uniqueIndex;not null"`
	Available   int64   `gorm:"not null"`
	Reserved    int64   `gorm:"not null"`
	Price       float64 `gorm:"not null"`
	Version     int64   `gorm:"not null;default:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (LedgerModel) TableName() string {
	return "stock_ledgers"
}
