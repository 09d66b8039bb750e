// internal/service/stock/domain/event.go
package domain

import "time"

// ChangeKind 标识一次台账变更的类型。
type ChangeKind string

const (
	KindCreate    ChangeKind = "CREATE"
	KindReserve   ChangeKind = "RESERVE"
	KindUnreserve ChangeKind = "UNRESERVE"
	KindFinalize  ChangeKind = "FINALIZE_PURCHASE"
	KindAddStock  ChangeKind = "ADD_STOCK"
	KindUpdate    ChangeKind = "UPDATE"
	KindDelete    ChangeKind = "DELETE"
)

// StockChanged 是每次成功变更后发布的事件，供外部观测系统消费。
type StockChanged struct {
	ProductID      string     `json:"product_id"`
	Kind           ChangeKind `json:"kind"`
	Delta          int64      `json:"delta"`
	AvailableAfter int64      `json:"available_after"`
	ReservedAfter  int64      `json:"reserved_after"`
	At             time.Time  `json:"at"`
}
