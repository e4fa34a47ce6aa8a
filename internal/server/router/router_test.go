package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mamadbah2/freshledger/internal/cache"
	"github.com/mamadbah2/freshledger/internal/domain/models"
	"github.com/mamadbah2/freshledger/internal/repository/memory"
	"github.com/mamadbah2/freshledger/internal/server/handlers"
	"github.com/mamadbah2/freshledger/internal/service/audit"
	"github.com/mamadbah2/freshledger/internal/service/bulk"
	"github.com/mamadbah2/freshledger/internal/service/cart"
	"github.com/mamadbah2/freshledger/internal/service/catalog"
	"github.com/mamadbah2/freshledger/internal/service/ledger"
	"github.com/mamadbah2/freshledger/internal/service/pricing"
)

const adminToken = "test-admin-token"

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	for _, item := range []models.CatalogItem{
		{ID: "1", Name: "Rohu", Rate: 40000, Available: true},
		{ID: "2", Name: "Katla", Rate: 40000, Available: true},
	} {
		if _, err := store.CreateItem(ctx, item); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	clock := func() time.Time { return time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC) }
	trail := audit.NewTrail(store, nil)
	engine := New(Handlers{
		Ledger:  handlers.NewLedgerHandler(ledger.NewService(store, nil, ledger.WithClock(clock), ledger.WithLocation(time.UTC)), nil),
		Catalog: handlers.NewCatalogHandler(catalog.NewService(store, nil), bulk.NewService(store, trail, nil, bulk.WithClock(clock)), trail, nil),
		Cart: handlers.NewCartHandler(cart.NewGuard(cache.NewMemorySnapshots(time.Hour), pricing.NewNormalizer(pricing.DefaultLimits()),
			models.DiscountConfig{Enabled: true, Percentage: 5, MinimumAmount: 1000}, nil, cart.WithPriceResolver(store)), nil),
	}, adminToken, nil, nil)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, admin bool) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Operator", "priya")
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := do(t, srv, http.MethodGet, "/healthz", "", false)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", resp.StatusCode, body)
	}
}

func TestLedgerCarryForwardOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, srv, http.MethodPut, "/ledger/2026-03-01",
		`{"entries":[{"item_id":"rohu","today_quantity":50,"today_sale":"30"}]}`, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("day 1 save: %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodGet, "/ledger/2026-03-02/session?items=rohu", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open session: %d %v", resp.StatusCode, body)
	}
	draft := body["entries"].([]any)[0].(map[string]any)
	if draft["yesterday_net"].(float64) != 20 {
		t.Fatalf("expected carried balance 20, got %v", draft["yesterday_net"])
	}

	resp, body = do(t, srv, http.MethodPut, "/ledger/2026-03-02",
		`{"entries":[{"item_id":"rohu","today_quantity":10,"today_sale":25,"adjust_quantity":"n/a"}]}`, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("day 2 save: %d %v", resp.StatusCode, body)
	}
	saved := body["report"].(map[string]any)["saved"].([]any)[0].(map[string]any)
	if saved["total"].(float64) != 30 || saved["net_amount"].(float64) != 5 {
		t.Errorf("unexpected day 2 entry %v", saved)
	}
	coerced := body["coerced"].(map[string]any)["rohu"].([]any)
	if len(coerced) != 1 || coerced[0] != "adjust_quantity" {
		t.Errorf("expected adjust_quantity reported as coerced, got %v", coerced)
	}

	resp, _ = do(t, srv, http.MethodGet, "/ledger/items/rohu/history", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("history: %d", resp.StatusCode)
	}

	resp, _ = do(t, srv, http.MethodDelete, "/ledger/2026-03-01", "", false)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected staff date delete to be forbidden, got %d", resp.StatusCode)
	}
	resp, body = do(t, srv, http.MethodDelete, "/ledger/2026-03-01", "", true)
	if resp.StatusCode != http.StatusOK || body["deleted"].(float64) != 1 {
		t.Errorf("admin date delete: %d %v", resp.StatusCode, body)
	}

	resp, _ = do(t, srv, http.MethodGet, "/ledger/03-01-2026", "", false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected malformed date to be rejected, got %d", resp.StatusCode)
	}
}

func TestBulkUpdateOverHTTP(t *testing.T) {
	srv, store := newTestServer(t)

	resp, body := do(t, srv, http.MethodPost, "/catalog/bulk-update",
		`{"changes":[{"item_id":"1","rate":300},{"item_id":"2","rate":-5}]}`, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %v", resp.StatusCode, body)
	}
	item, _ := store.GetItem(context.Background(), "1")
	if item.Rate != 40000 {
		t.Fatalf("item 1 must be unchanged, got %d", item.Rate)
	}

	resp, _ = do(t, srv, http.MethodPost, "/catalog/bulk-update",
		`{"changes":[{"item_id":"1","available":"yes"}]}`, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected non-boolean availability to be rejected, got %d", resp.StatusCode)
	}
	resp, _ = do(t, srv, http.MethodPost, "/catalog/bulk-update",
		`{"changes":[{"item_id":"1","rate":1}],"dry_run":true}`, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected unknown field to be rejected, got %d", resp.StatusCode)
	}

	resp, _ = do(t, srv, http.MethodPost, "/catalog/bulk-update", `{"changes":[{"item_id":"1","rate":300}]}`, false)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected staff bulk update to be forbidden, got %d", resp.StatusCode)
	}

	resp, body = do(t, srv, http.MethodPost, "/catalog/bulk-update",
		`{"request_id":"r-1","changes":[{"item_id":"1","rate":300},{"item_id":"2","available":false}]}`, true)
	if resp.StatusCode != http.StatusOK || body["updated_count"].(float64) != 2 {
		t.Fatalf("bulk update: %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodGet, "/audit?limit=5", "", true)
	if resp.StatusCode != http.StatusOK || len(body["entries"].([]any)) != 1 {
		t.Fatalf("expected one audit entry, got %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodPost, "/catalog/bulk-update",
		`{"changes":[{"item_id":"1","rate":310},{"item_id":"404","rate":10}]}`, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected unknown item to be 404, got %d %v", resp.StatusCode, body)
	}
	result, ok := body["result"].(map[string]any)
	if !ok || result["success"] != false || result["updated_count"].(float64) != 0 || len(result["errors"].([]any)) != 1 {
		t.Errorf("expected the failed outcome in the response, got %v", body)
	}
}

func TestCartReconcileOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, srv, http.MethodPost, "/carts/c1/items", `{"item_id":"1","quantity":2}`, false)
	resp, body := do(t, srv, http.MethodPost, "/carts/c1/items", `{"item_id":"2","quantity":1}`, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add item: %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodPost, "/carts/c1/reconcile", `{"stage":"delivery_details","asserted_total":1140.01}`, false)
	if resp.StatusCode != http.StatusOK || body["matched"] != true {
		t.Fatalf("expected match, got %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodPost, "/carts/c1/reconcile", `{"stage":"payment","asserted_total":1150}`, false)
	if resp.StatusCode != http.StatusConflict || body["restored"] == nil {
		t.Fatalf("expected mismatch with restored cart, got %d %v", resp.StatusCode, body)
	}

	resp, _ = do(t, srv, http.MethodPost, "/carts/c1/items", `{"item_id":"1","quantity":0.01}`, false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected below-minimum quantity to be rejected, got %d", resp.StatusCode)
	}
}
