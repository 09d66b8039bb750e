// internal/service/stock/application/dto.go
package application

import "granary/internal/service/stock/domain"

// LedgerView 是对外暴露的台账快照，HTTP 响应和任务结果共用。
type LedgerView struct {
	ProductID         string  `json:"product_id"`
	ProductName       string  `json:"product_name"`
	AvailableQuantity int64   `json:"available_quantity"`
	ReservedQuantity  int64   `json:"reserved_quantity"`
	Price             float64 `json:"price"`
}

func NewLedgerView(l *domain.Ledger) *LedgerView {
	return &LedgerView{
		ProductID:         l.ID,
		ProductName:       l.ProductName,
		AvailableQuantity: l.Available,
		ReservedQuantity:  l.Reserved,
		Price:             l.Price,
	}
}

type CreateProductRequest struct {
	ProductName string  `json:"product_name"`
	Amount      int64   `json:"amount"`
	Price       float64 `json:"price"`
}

// UpdateProductRequest 是管理员覆写请求。nil 字段表示不变。
type UpdateProductRequest struct {
	AvailableQuantity *int64   `json:"available_quantity"`
	Price             *float64 `json:"price"`
}

// TaskResult 是异步任务处理器的结构化结果。
// 业务失败也是一种结果：消息照常确认，由编排方根据 Error 决定补偿或重试。
type TaskResult struct {
	OK      bool        `json:"ok"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message"`
	Product *LedgerView `json:"product,omitempty"`
}
