// internal/service/stock/interfaces/http_handler_test.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"granary/internal/service/stock/application"
	"granary/internal/service/stock/domain"

	"go.opentelemetry.io/otel"
)

// 测试用的内存仓储，版本比较语义与真实实现一致。
type fakeLedgerRepo struct {
	mu      sync.Mutex
	ledgers map[string]*domain.Ledger
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{ledgers: make(map[string]*domain.Ledger)}
}

func (r *fakeLedgerRepo) Create(_ context.Context, ledger *domain.Ledger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.ledgers {
		if l.ProductName == ledger.ProductName {
			return domain.ErrDuplicateName
		}
	}
	cp := *ledger
	r.ledgers[ledger.ID] = &cp
	return nil
}

func (r *fakeLedgerRepo) FindByID(_ context.Context, id string) (*domain.Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *fakeLedgerRepo) FindAll(_ context.Context) ([]*domain.Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Ledger, 0, len(r.ledgers))
	for _, l := range r.ledgers {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeLedgerRepo) UpdateConditional(_ context.Context, ledger *domain.Ledger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.ledgers[ledger.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != ledger.Version {
		return domain.ErrContention
	}
	cp := *ledger
	cp.Version++
	r.ledgers[ledger.ID] = &cp
	ledger.Version++
	return nil
}

func (r *fakeLedgerRepo) Delete(_ context.Context, ledger *domain.Ledger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.ledgers[ledger.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != ledger.Version {
		return domain.ErrContention
	}
	delete(r.ledgers, ledger.ID)
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(domain.StockChanged) {}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (*domain.Ledger, bool) { return nil, false }
func (noopCache) Set(context.Context, *domain.Ledger)                {}
func (noopCache) Invalidate(context.Context, string)                 {}

func newTestService() *application.StockService {
	return application.NewStockService(
		newFakeLedgerRepo(), noopCache{}, noopNotifier{},
		otel.Tracer("test"), 2, time.Millisecond,
	)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewStockHandler(newTestService()).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, body string) (int, response) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var envelope response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.StatusCode, envelope
}

func TestCreateAndGetProduct(t *testing.T) {
	server := newTestServer(t)

	status, env := doJSON(t, http.MethodPost, server.URL+"/products", `{"product_name":"widget","amount":10,"price":2.5}`)
	if status != http.StatusCreated {
		t.Fatalf("create: got status %d, want 201", status)
	}
	if !env.Success || env.Product == nil {
		t.Fatalf("create: unexpected envelope %+v", env)
	}
	if env.Message != "item: widget added successfully with amount: 10 and price: 2.5" {
		t.Fatalf("create: unexpected message %q", env.Message)
	}

	status, env = doJSON(t, http.MethodGet, server.URL+"/products/"+env.Product.ProductID, "")
	if status != http.StatusOK {
		t.Fatalf("get: got status %d, want 200", status)
	}
	if env.Product.AvailableQuantity != 10 || env.Product.ReservedQuantity != 0 {
		t.Fatalf("get: unexpected quantities %+v", env.Product)
	}
}

func TestCreateProductDuplicateNameReturns400(t *testing.T) {
	server := newTestServer(t)

	if status, _ := doJSON(t, http.MethodPost, server.URL+"/products", `{"product_name":"widget","amount":10,"price":2.5}`); status != http.StatusCreated {
		t.Fatalf("first create: got %d", status)
	}
	status, env := doJSON(t, http.MethodPost, server.URL+"/products", `{"product_name":"widget","amount":3,"price":1}`)
	if status != http.StatusBadRequest {
		t.Fatalf("duplicate create: got status %d, want 400", status)
	}
	if env.Success {
		t.Fatal("duplicate create reported success")
	}
}

func TestCreateProductNegativeAmountReturns409(t *testing.T) {
	server := newTestServer(t)

	status, _ := doJSON(t, http.MethodPost, server.URL+"/products", `{"product_name":"widget","amount":-5,"price":2.5}`)
	if status != http.StatusConflict {
		t.Fatalf("got status %d, want 409", status)
	}
}

func TestCreateProductMalformedBodyReturns400(t *testing.T) {
	server := newTestServer(t)

	status, _ := doJSON(t, http.MethodPost, server.URL+"/products", `{not json`)
	if status != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", status)
	}
}

func TestGetProductNotFoundReturns404(t *testing.T) {
	server := newTestServer(t)

	status, env := doJSON(t, http.MethodGet, server.URL+"/products/no-such-id", "")
	if status != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", status)
	}
	if env.Success {
		t.Fatal("missing product reported success")
	}
}

func TestListProducts(t *testing.T) {
	server := newTestServer(t)

	doJSON(t, http.MethodPost, server.URL+"/products", `{"product_name":"widget","amount":10,"price":2.5}`)
	doJSON(t, http.MethodPost, server.URL+"/products", `{"product_name":"gadget","amount":3,"price":7}`)

	status, env := doJSON(t, http.MethodGet, server.URL+"/products", "")
	if status != http.StatusOK {
		t.Fatalf("got status %d, want 200", status)
	}
	if len(env.Products) != 2 {
		t.Fatalf("got %d products, want 2", len(env.Products))
	}
}

func TestUpdateProductPartialBody(t *testing.T) {
	server := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, server.URL+"/products", `{"product_name":"widget","amount":10,"price":2.5}`)

	status, env := doJSON(t, http.MethodPut, server.URL+"/products/"+created.Product.ProductID, `{"price":9.99}`)
	if status != http.StatusOK {
		t.Fatalf("got status %d, want 200", status)
	}
	if env.Product.Price != 9.99 {
		t.Fatalf("price not updated: %g", env.Product.Price)
	}
	if env.Product.AvailableQuantity != 10 {
		t.Fatalf("available changed by price-only update: %d", env.Product.AvailableQuantity)
	}
}

func TestDeleteProductEndpoint(t *testing.T) {
	server := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, server.URL+"/products", `{"product_name":"widget","amount":10,"price":2.5}`)
	id := created.Product.ProductID

	status, _ := doJSON(t, http.MethodDelete, server.URL+"/products/"+id, "")
	if status != http.StatusOK {
		t.Fatalf("delete: got status %d, want 200", status)
	}
	status, _ = doJSON(t, http.MethodGet, server.URL+"/products/"+id, "")
	if status != http.StatusNotFound {
		t.Fatalf("get after delete: got status %d, want 404", status)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
}
