// internal/service/stock/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"fmt"
	"net/http"

	"granary/internal/pkg/logger"
	"granary/internal/service/stock/application"
	"granary/internal/service/stock/domain"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// StockHandler 封装了库存服务的 HTTP 处理器。
// 这一层只做协议转换：解析请求、调用应用服务、把领域错误翻译成状态码。
type StockHandler struct {
	service *application.StockService
}

func NewStockHandler(service *application.StockService) *StockHandler {
	return &StockHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *StockHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /products", h.handleListProducts)
	mux.HandleFunc("POST /products", h.handleCreateProduct)
	mux.HandleFunc("GET /products/{id}", h.handleGetProduct)
	mux.HandleFunc("PUT /products/{id}", h.handleUpdateProduct)
	mux.HandleFunc("DELETE /products/{id}", h.handleDeleteProduct)
}

// response 是统一的响应信封。
type response struct {
	Success  bool                      `json:"success"`
	Message  string                    `json:"message,omitempty"`
	Product  *application.LedgerView   `json:"product,omitempty"`
	Products []*application.LedgerView `json:"products,omitempty"`
}

func (h *StockHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	products, err := h.service.ListProducts(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Products: products})
}

func (h *StockHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	product, err := h.service.GetProduct(ctx, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Product: product})
}

func (h *StockHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "invalid request body"})
		return
	}

	product, err := h.service.CreateProduct(ctx, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, response{
		Success: true,
		Message: fmt.Sprintf("item: %s added successfully with amount: %d and price: %g", req.ProductName, req.Amount, req.Price),
		Product: product,
	})
}

func (h *StockHandler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "invalid request body"})
		return
	}

	product, err := h.service.UpdateProduct(ctx, r.PathValue("id"), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "Product updated successfully", Product: product})
}

func (h *StockHandler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	if err := h.service.DeleteProduct(ctx, r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "Product deleted successfully"})
}

// writeError 把领域错误映射到 HTTP 状态码：
// 重名 400、校验类 409、不存在 404，其余（含瞬态）一律 500。
func (h *StockHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateName):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrOverRelease),
		errors.Is(err, domain.ErrOverFinalize):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		logger.Ctx(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg("Request failed")
	}
	writeJSON(w, status, response{Success: false, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
