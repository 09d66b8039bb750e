// internal/service/stock/domain/errors.go
package domain

import "errors"

// 业务规则错误是终态，调用方不应重试；
// ErrContention / ErrStoreUnavailable 是瞬态，应用层会按预算重试或由调用方稍后再试。
var (
	ErrNotFound          = errors.New("product not found")
	ErrDuplicateName     = errors.New("product name already exists")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInsufficientStock = errors.New("insufficient available stock")
	ErrOverRelease       = errors.New("cannot unreserve more than reserved")
	ErrOverFinalize      = errors.New("finalised amount exceeds reserved stock")
	ErrContention        = errors.New("concurrent update conflict, retry budget exhausted")
	ErrStoreUnavailable  = errors.New("ledger store unavailable")
)

// 对外暴露的错误码，任务结果和日志里都用这一套。
const (
	CodeNotFound          = "NOT_FOUND"
	CodeDuplicate         = "DUPLICATE"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeOverRelease       = "OVER_RELEASE"
	CodeOverFinalize      = "OVER_FINALIZE"
	CodeContention        = "CONTENTION"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeUnknown           = "UNKNOWN"
)

// Code 把错误映射为错误码。
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDuplicateName):
		return CodeDuplicate
	case errors.Is(err, ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, ErrInsufficientStock):
		return CodeInsufficientStock
	case errors.Is(err, ErrOverRelease):
		return CodeOverRelease
	case errors.Is(err, ErrOverFinalize):
		return CodeOverFinalize
	case errors.Is(err, ErrContention):
		return CodeContention
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeUnknown
	}
}

// IsTransient 报告错误是否为瞬态（值得调用方重试）。
func IsTransient(err error) bool {
	return errors.Is(err, ErrContention) || errors.Is(err, ErrStoreUnavailable)
}
