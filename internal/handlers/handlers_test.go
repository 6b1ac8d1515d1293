package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-courier-orders/internal/idempotency"
	"github.com/imrishuroy/go-courier-orders/internal/orders"
	"github.com/imrishuroy/go-courier-orders/internal/packets"
	"github.com/imrishuroy/go-courier-orders/internal/persist"
)

type testServer struct {
	router  *gin.Engine
	manager *orders.Manager
	files   *persist.FileStore
	flusher *persist.Flusher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := orders.NewStore(nil)
	m := orders.NewManager(store)
	files := persist.NewFileStore(filepath.Join(t.TempDir(), "orders.snap"), orders.CBORCodec{}, nil)
	flusher := persist.NewFlusher(files, store, nil, nil)
	cfg := HandlerConfig{
		Manager:   m,
		Processor: packets.NewProcessor(m, idempotency.NewStore(time.Minute), nil, nil),
		Files:     files,
		Flusher:   flusher,
	}

	r := gin.New()
	RegisterOrdersRoutes(r, cfg)
	RegisterAdminRoutes(r, cfg)
	RegisterHealthRoutes(r, cfg)
	return &testServer{router: r, manager: m, files: files, flusher: flusher}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func createBody(owner uuid.UUID) map[string]any {
	return map[string]any{
		"action":        "create",
		"player":        map[string]any{"id": owner.String(), "name": "alex"},
		"description":   "need wheat",
		"request_items": []map[string]any{{"kind": "minecraft:wheat", "qty": 10}},
		"reward_items":  []map[string]any{{"kind": "minecraft:emerald", "qty": 1}},
	}
}

func TestPackets_CreateAndQuery(t *testing.T) {
	s := newTestServer(t)
	owner := uuid.New()

	rec := s.do(t, http.MethodPost, "/packets", createBody(owner), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[packets.Response](t, rec)
	if !resp.OK || resp.Order == nil {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = s.do(t, http.MethodGet, "/orders/"+resp.Order.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	if view := decode[packets.OrderView](t, rec); view.OwnerName != "alex" || view.Status != "OPEN" {
		t.Fatalf("unexpected view %+v", view)
	}

	rec = s.do(t, http.MethodGet, "/orders?owner="+owner.String(), nil, nil)
	if list := decode[struct{ Orders []packets.OrderView }](t, rec); len(list.Orders) != 1 {
		t.Fatalf("owner query returned %d", len(list.Orders))
	}

	rec = s.do(t, http.MethodGet, "/orders/active", nil, nil)
	if list := decode[struct{ Orders []packets.OrderView }](t, rec); len(list.Orders) != 1 {
		t.Fatalf("active query returned %d", len(list.Orders))
	}

	rec = s.do(t, http.MethodGet, "/stats", nil, nil)
	stats := decode[struct {
		Stats  orders.Statistics
		Active int
	}](t, rec)
	if stats.Stats.Open != 1 || stats.Active != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestPackets_RejectionIsOKFalse(t *testing.T) {
	s := newTestServer(t)
	owner := uuid.New()
	resp := decode[packets.Response](t, s.do(t, http.MethodPost, "/packets", createBody(owner), nil))

	rec := s.do(t, http.MethodPost, "/packets", map[string]any{
		"action":   "accept",
		"order_id": resp.Order.ID,
		"player":   map[string]any{"id": owner.String(), "name": "alex"},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := decode[packets.Response](t, rec); got.OK || got.Reason != orders.ReasonSelfFulfillment {
		t.Fatalf("expected SELF_FULFILLMENT, got %+v", got)
	}
}

func TestPackets_Malformed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/packets", map[string]any{"action": "fly"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/packets", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", w.Code)
	}
}

func TestPackets_IdempotencyKeyReplays(t *testing.T) {
	s := newTestServer(t)
	owner := uuid.New()
	headers := map[string]string{"Idempotency-Key": "abc"}

	first := decode[packets.Response](t, s.do(t, http.MethodPost, "/packets", createBody(owner), headers))
	second := decode[packets.Response](t, s.do(t, http.MethodPost, "/packets", createBody(owner), headers))
	if !second.Replayed || second.Order.ID != first.Order.ID {
		t.Fatalf("expected replay, got %+v", second)
	}
	if n := s.manager.Store().Len(); n != 1 {
		t.Fatalf("stored %d orders, want 1", n)
	}
}

func TestOrders_NotFoundAndBadID(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(t, http.MethodGet, "/orders/"+uuid.NewString(), nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/orders/xyz", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/orders", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without filter, got %d", rec.Code)
	}
}

func TestAdmin_CompleteDeleteClear(t *testing.T) {
	s := newTestServer(t)
	owner := uuid.New()
	created := decode[packets.Response](t, s.do(t, http.MethodPost, "/packets", createBody(owner), nil))
	id := created.Order.ID

	// completing an OPEN order is a status conflict
	if rec := s.do(t, http.MethodPost, "/admin/orders/"+id+"/complete", nil, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	parsed, _ := uuid.Parse(id)
	if _, err := s.manager.AcceptOrder(parsed, orders.Player{ID: uuid.New(), Name: "bea"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	rec := s.do(t, http.MethodPost, "/admin/orders/"+id+"/complete", nil, nil)
	if rec.Code != http.StatusOK || decode[packets.OrderView](t, rec).Status != "COMPLETED" {
		t.Fatalf("force complete failed: %d %s", rec.Code, rec.Body.String())
	}

	if rec := s.do(t, http.MethodDelete, "/admin/orders/"+id, nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/admin/orders/"+id, nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status %d", rec.Code)
	}

	s.do(t, http.MethodPost, "/packets", createBody(owner), nil)
	rec = s.do(t, http.MethodPost, "/admin/clear", nil, nil)
	if got := decode[map[string]int](t, rec); got["cleared"] != 1 {
		t.Fatalf("clear = %v", got)
	}
}

func TestAdmin_FlushAndReload(t *testing.T) {
	s := newTestServer(t)
	owner := uuid.New()
	s.do(t, http.MethodPost, "/packets", createBody(owner), nil)

	if rec := s.do(t, http.MethodPost, "/admin/flush", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("flush status %d: %s", rec.Code, rec.Body.String())
	}
	s.manager.ClearAll()

	rec := s.do(t, http.MethodPost, "/admin/reload", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reload status %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]int](t, rec); got["loaded"] != 1 {
		t.Fatalf("reload = %v", got)
	}
	if n := len(s.manager.ListOrdersByOwner(owner)); n != 1 {
		t.Fatalf("owner index not rebuilt after reload: %d", n)
	}

	rec = s.do(t, http.MethodGet, "/admin/orders", nil, nil)
	if list := decode[struct{ Orders []packets.OrderView }](t, rec); len(list.Orders) != 1 {
		t.Fatalf("admin list returned %d", len(list.Orders))
	}
}

func TestHealth_ReportsDegraded(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil, nil)
	if got := decode[map[string]any](t, rec); got["status"] != "ok" {
		t.Fatalf("expected ok, got %v", got)
	}

	s.flusher.MarkDegraded(persist.ErrUnreadable)
	rec = s.do(t, http.MethodGet, "/health", nil, nil)
	if got := decode[map[string]any](t, rec); got["status"] != "degraded" {
		t.Fatalf("expected degraded, got %v", got)
	}
}
