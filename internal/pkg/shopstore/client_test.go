package shopstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/omafit/tryon-app/internal/pkg/config"
)

// storedRequest captures one request the fake store received.
type storedRequest struct {
	Method string
	Path   string
	Query  string
	Prefer string
	Body   string
}

// storeStep scripts one response of the fake store.
type storeStep struct {
	status int
	body   string
}

// fakeStore replays a scripted response sequence and records every request.
type fakeStore struct {
	t     *testing.T
	mu    sync.Mutex
	steps []storeStep
	got   []storedRequest
}

func newFakeStore(t *testing.T, steps ...storeStep) (*fakeStore, *httptest.Server) {
	fs := &fakeStore{t: t, steps: steps}
	server := httptest.NewServer(fs)
	t.Cleanup(server.Close)
	return fs, server
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, _ := io.ReadAll(r.Body)
	f.got = append(f.got, storedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Prefer: r.Header.Get("Prefer"),
		Body:   string(raw),
	})

	if r.Header.Get("apikey") == "" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		f.t.Errorf("request without store credentials: %s %s", r.Method, r.URL)
	}

	idx := len(f.got) - 1
	if idx >= len(f.steps) {
		f.t.Errorf("unscripted request #%d: %s %s?%s", idx+1, r.Method, r.URL.Path, r.URL.RawQuery)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	step := f.steps[idx]
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(step.status)
	w.Write([]byte(step.body))
}

func (f *fakeStore) requests() []storedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storedRequest(nil), f.got...)
}

func newTestClient(server *httptest.Server) *Client {
	c := New(config.StoreConfig{
		URL:            server.URL,
		ServiceKey:     "service-key",
		Table:          "shop_billing",
		ShopsTable:     "shops",
		TimeoutSeconds: 5,
	})
	c.HTTPClient = server.Client()
	return c
}

func TestClientDisabledWithoutConfig(t *testing.T) {
	c := New(config.StoreConfig{Table: "shop_billing"})
	if c.Enabled() {
		t.Fatalf("client without URL must be disabled")
	}

	row, err := c.ReadRow(context.Background(), "demo.myshopify.com")
	if row != nil || err != nil {
		t.Fatalf("disabled read must be a no-op, got %v %v", row, err)
	}
	if c.UpsertRow(context.Background(), "demo.myshopify.com", map[string]interface{}{"plan": "growth"}) {
		t.Fatalf("disabled upsert must fail softly")
	}
	if err := c.DeleteRow(context.Background(), "demo.myshopify.com"); err != nil {
		t.Fatalf("disabled delete must be a no-op, got %v", err)
	}
}

func TestReadRowFirstColumn(t *testing.T) {
	fs, server := newFakeStore(t,
		storeStep{status: 200, body: `[{"plan":"growth","billing_status":"active"}]`},
	)
	c := newTestClient(server)

	row, err := c.ReadRow(context.Background(), "demo.myshopify.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row == nil || row["plan"] != "growth" {
		t.Fatalf("unexpected row: %v", row)
	}

	reqs := fs.requests()
	if len(reqs) != 1 || reqs[0].Method != http.MethodGet || reqs[0].Path != "/rest/v1/shop_billing" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
	if !strings.Contains(reqs[0].Query, "shop_domain=eq.demo.myshopify.com") {
		t.Fatalf("expected primary identifier column query, got %q", reqs[0].Query)
	}
}

func TestReadRowWalksCandidateColumns(t *testing.T) {
	fs, server := newFakeStore(t,
		storeStep{status: 400, body: `{"code":"42703","message":"column shop_billing.shop_domain does not exist"}`},
		storeStep{status: 200, body: `[{"plan":"pro"}]`},
	)
	c := newTestClient(server)

	row, err := c.ReadRow(context.Background(), "demo.myshopify.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row == nil || row["plan"] != "pro" {
		t.Fatalf("unexpected row: %v", row)
	}

	reqs := fs.requests()
	if len(reqs) != 2 || !strings.Contains(reqs[1].Query, "shop=eq.demo.myshopify.com") {
		t.Fatalf("expected fallback to shop column, got %+v", reqs)
	}
}

func TestReadRowURLFlavoredColumn(t *testing.T) {
	fs, server := newFakeStore(t,
		storeStep{status: 400, body: `{"code":"42703","message":"column shop_billing.shop_domain does not exist"}`},
		storeStep{status: 400, body: `{"code":"42703","message":"column shop_billing.shop does not exist"}`},
		storeStep{status: 200, body: `[{"plan":"starter"}]`},
	)
	c := newTestClient(server)

	row, err := c.ReadRow(context.Background(), "demo.myshopify.com")
	if err != nil || row == nil {
		t.Fatalf("unexpected result: %v %v", row, err)
	}

	reqs := fs.requests()
	last := reqs[len(reqs)-1]
	if !strings.Contains(last.Query, "store_url=eq.https%3A%2F%2Fdemo.myshopify.com") {
		t.Fatalf("expected url-flavored lookup value, got %q", last.Query)
	}
}

func TestReadRowNotFound(t *testing.T) {
	_, server := newFakeStore(t,
		storeStep{status: 200, body: `[]`},
	)
	c := newTestClient(server)

	row, err := c.ReadRow(context.Background(), "missing.myshopify.com")
	if row != nil || err != nil {
		t.Fatalf("expected (nil, nil) for missing record, got %v %v", row, err)
	}
}

func TestReadRowFatalError(t *testing.T) {
	_, server := newFakeStore(t,
		storeStep{status: 401, body: `{"message":"JWT expired"}`},
	)
	c := newTestClient(server)

	if _, err := c.ReadRow(context.Background(), "demo.myshopify.com"); err == nil {
		t.Fatalf("expected unauthorized error to surface")
	}
}

func TestDeleteRowSkipsUnknownColumns(t *testing.T) {
	fs, server := newFakeStore(t,
		storeStep{status: 400, body: `{"code":"42703","message":"column shop_billing.shop_domain does not exist"}`},
		storeStep{status: 204, body: ``},
	)
	c := newTestClient(server)

	if err := c.DeleteRow(context.Background(), "demo.myshopify.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reqs := fs.requests()
	if len(reqs) != 2 || reqs[1].Method != http.MethodDelete || !strings.Contains(reqs[1].Query, "shop=eq.") {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
}
