package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nicebartender/deskassist-server/assistant"
	"github.com/nicebartender/deskassist-server/db"
	"github.com/nicebartender/deskassist-server/registry"
	"github.com/nicebartender/deskassist-server/rpc"
	"github.com/nicebartender/deskassist-server/telemetry"
	"github.com/nicebartender/deskassist-server/ws"
)

var fixedNow = time.Date(2026, time.October, 4, 9, 5, 7, 0, time.UTC)

type fakeLauncher struct {
	mu     sync.Mutex
	starts []string
	urls   []string
}

func (f *fakeLauncher) Start(ctx context.Context, command string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, command)
	return nil
}

func (f *fakeLauncher) OpenURL(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return nil
}

type stubHistory struct {
	entries []db.Entry
	err     error
	limit   int
}

func (s *stubHistory) RecentEntries(ctx context.Context, limit int) ([]db.Entry, error) {
	s.limit = limit
	return s.entries, s.err
}

func newDispatcher(t *testing.T, l *fakeLauncher) *assistant.Dispatcher {
	t.Helper()
	return assistant.New(assistant.Options{
		Registry: registry.Default(),
		Launcher: l,
		GOOS:     "windows",
		Now:      func() time.Time { return fixedNow },
	})
}

func newTestServer(t *testing.T, opts Options) (*Server, *fakeLauncher) {
	t.Helper()
	l := &fakeLauncher{}
	if opts.Dispatcher == nil {
		opts.Dispatcher = newDispatcher(t, l)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewServer(opts), l
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestTimeAndDate(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/time", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("time code = %d", rec.Code)
	}
	if got := decode(t, rec)["time"]; got != "09:05:07" {
		t.Errorf("time = %v, want 09:05:07", got)
	}

	rec = do(t, srv.Handler(), http.MethodGet, "/api/date", "")
	if got := decode(t, rec)["date"]; got != "Sunday, October 04, 2026" {
		t.Errorf("date = %v", got)
	}
}

func TestActionsReturn200(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		body        string
		wantStatus  string
		wantMessage string
	}{
		{"search", "/api/search", `{"query":"golang"}`, "success", "Searching for golang"},
		{"search empty", "/api/search", `{"query":""}`, "error", "No query provided"},
		{"search missing body", "/api/search", "", "error", "No query provided"},
		{"open app", "/api/open-app", `{"app":"Notepad"}`, "success", "Opening notepad"},
		{"open unknown", "/api/open-app", `{"app":"doom"}`, "error", "Cannot open doom"},
		{"calculate invalid", "/api/calculate", `{"expression":"2+"}`, "error", "Invalid expression"},
		{"command greeting", "/api/command", `{"text":"hello there"}`, "success", "Hello! How can I assist you today?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, Options{})
			rec := do(t, srv.Handler(), http.MethodPost, tt.path, tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("code = %d, body %s", rec.Code, rec.Body.String())
			}
			out := decode(t, rec)
			if out["status"] != tt.wantStatus || out["message"] != tt.wantMessage {
				t.Errorf("got %v, want status %q message %q", out, tt.wantStatus, tt.wantMessage)
			}
		})
	}
}

func TestCalculateResult(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := do(t, srv.Handler(), http.MethodPost, "/api/calculate", `{"expression":"2 + 3 * 4"}`)
	out := decode(t, rec)
	if out["status"] != "success" || out["result"] != 14.0 {
		t.Errorf("got %v", out)
	}
	if _, ok := out["message"]; ok {
		t.Errorf("success response carries message: %v", out)
	}
}

func TestSearchOpensEncodedURL(t *testing.T) {
	srv, l := newTestServer(t, Options{})
	do(t, srv.Handler(), http.MethodPost, "/api/search", `{"query":"go & rust"}`)
	if len(l.urls) != 1 || l.urls[0] != "https://www.google.com/search?q=go+%26+rust" {
		t.Errorf("urls = %v", l.urls)
	}
}

func TestProtocolFaults(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"malformed json", http.MethodPost, "/api/calculate", `{"expression":`, http.StatusBadRequest},
		{"wrong type", http.MethodPost, "/api/search", `{"query":42}`, http.StatusBadRequest},
		{"get on post route", http.MethodGet, "/api/search", "", http.StatusMethodNotAllowed},
		{"post on get route", http.MethodPost, "/api/time", "", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/api/nope", "", http.StatusNotFound},
		{"too large", http.MethodPost, "/api/command", `{"text":"` + strings.Repeat("a", maxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv.Handler(), tt.method, tt.path, tt.body)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if out := decode(t, rec); out["status"] != "error" {
				t.Errorf("body = %v", out)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/calculate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight code = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("allow methods = %q", got)
	}

	rec = do(t, srv.Handler(), http.MethodGet, "/api/time", "")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin without Origin header = %q", got)
	}
}

func TestRateLimitOnLaunchRoutes(t *testing.T) {
	m := telemetry.NewMetrics(nil)
	srv, l := newTestServer(t, Options{RateLimit: RateLimit{RPS: 1, Burst: 1}, Metrics: m})

	first := do(t, srv.Handler(), http.MethodPost, "/api/open-app", `{"app":"paint"}`)
	second := do(t, srv.Handler(), http.MethodPost, "/api/open-app", `{"app":"paint"}`)
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("codes = %d, %d", first.Code, second.Code)
	}
	if len(l.starts) != 1 {
		t.Errorf("starts = %v, want one launch", l.starts)
	}

	// Calculations have no side effects and stay unlimited.
	for i := 0; i < 5; i++ {
		if rec := do(t, srv.Handler(), http.MethodPost, "/api/calculate", `{"expression":"1+1"}`); rec.Code != http.StatusOK {
			t.Fatalf("calculate code = %d", rec.Code)
		}
	}

	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `deskassist_rate_limited_total{route="/api/open-app"} 1`) {
		t.Errorf("metrics missing rate limit counter:\n%s", rec.Body.String())
	}
}

func TestLimiterDisabled(t *testing.T) {
	if l := newLimiter(RateLimit{}); l != nil {
		t.Fatal("zero RPS should disable limiting")
	}
	var l *limiter
	if !l.allow("ip:1.2.3.4", fixedNow) || l.size() != 0 {
		t.Error("nil limiter should allow everything")
	}
}

func TestLimiterEvictsIdleKeys(t *testing.T) {
	l := newLimiter(RateLimit{RPS: 10, Burst: 10})
	l.allow("ip:old", fixedNow)
	later := fixedNow.Add(time.Hour)
	for i := 0; i < 511; i++ {
		l.allow("ip:new", later)
	}
	if got := l.size(); got != 1 {
		t.Errorf("size = %d, want 1", got)
	}
}

func TestHistory(t *testing.T) {
	created := fixedNow.Add(-time.Minute)
	h := &stubHistory{entries: []db.Entry{{
		ID: 7, Action: "open-app", Input: "paint", Status: "error",
		Message: "boom", Detail: "exec: not found", CreatedAt: created,
	}}}
	srv, _ := newTestServer(t, Options{History: h})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/history?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if h.limit != 5 {
		t.Errorf("limit = %d, want 5", h.limit)
	}
	if strings.Contains(rec.Body.String(), "exec: not found") {
		t.Errorf("history leaks failure detail: %s", rec.Body.String())
	}
	var out struct {
		Status  string            `json:"status"`
		Entries []assistant.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "success" || len(out.Entries) != 1 || out.Entries[0].ID != 7 {
		t.Errorf("history = %+v", out)
	}

	if rec := do(t, srv.Handler(), http.MethodGet, "/api/history?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit code = %d", rec.Code)
	}

	h.err = errors.New("disk I/O error")
	out2 := decode(t, do(t, srv.Handler(), http.MethodGet, "/api/history", ""))
	if out2["status"] != "error" || out2["message"] != "history is unavailable" {
		t.Errorf("db failure = %v", out2)
	}
}

func TestHistoryDisabled(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	out := decode(t, do(t, srv.Handler(), http.MethodGet, "/api/history", ""))
	if out["status"] != "error" {
		t.Errorf("got %v", out)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	out := decode(t, do(t, srv.Handler(), http.MethodGet, "/health", ""))
	if out["status"] != "ok" || out["canLaunch"] != true {
		t.Errorf("health = %v", out)
	}
}

func TestConcurrentCalculations(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	var wg sync.WaitGroup
	errs := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := do(t, srv.Handler(), http.MethodPost, "/api/calculate", `{"expression":"(1+2)**3"}`)
			var out assistant.Response
			if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.Result == nil || *out.Result != 27 {
				errs <- rec.Body.String()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for body := range errs {
		t.Errorf("unexpected response %s", body)
	}
}

func TestWebSocketThroughMiddleware(t *testing.T) {
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	l := &fakeLauncher{}
	d := newDispatcher(t, l)
	rpc.NewRouter(hub, d, nil)
	srv, _ := newTestServer(t, Options{Dispatcher: d, Hub: hub})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{
		"type": "req", "id": "1", "method": "calculate",
		"params": map[string]string{"expression": "6/4"},
	}); err != nil {
		t.Fatal(err)
	}

	var res struct {
		ID      string             `json:"id"`
		OK      bool               `json:"ok"`
		Payload assistant.Response `json:"payload"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.ID != "1" || !res.OK || res.Payload.Result == nil || *res.Payload.Result != 1.5 {
		t.Errorf("response = %+v", res)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, Options{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
