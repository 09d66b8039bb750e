// internal/service/stock/infrastructure/mapper.go
package infrastructure

import "granary/internal/service/stock/domain"

func ToDomainLedger(m *LedgerModel) *domain.Ledger {
	return &domain.Ledger{
		ID:          m.ID,
		ProductName: m.ProductName,
		Available:   m.Available,
		Reserved:    m.Reserved,
		Price:       m.Price,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func ToLedgerModel(l *domain.Ledger) *LedgerModel {
	return &LedgerModel{
		ID:          l.ID,
		ProductName: l.ProductName,
		Available:   l.Available,
		Reserved:    l.Reserved,
		Price:       l.Price,
		Version:     l.Version,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}
