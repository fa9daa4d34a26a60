package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nainya/boardstore/internal/events"
	"github.com/nainya/boardstore/internal/logger"
	"github.com/nainya/boardstore/internal/metrics"
	"github.com/nainya/boardstore/pkg/api"
	"github.com/nainya/boardstore/pkg/board"
	"github.com/nainya/boardstore/pkg/canvas"
	"github.com/nainya/boardstore/pkg/client"
	"github.com/nainya/boardstore/pkg/codec"
	"github.com/nainya/boardstore/pkg/session"
	"github.com/nainya/boardstore/pkg/store"
)

type httpFixture struct {
	srv     *httptest.Server
	store   *store.MemoryStore
	hub     *events.Hub
	metrics *metrics.Metrics
}

func setupHTTP(t *testing.T, limiter *IPRateLimit) *httpFixture {
	t.Helper()
	st := newTestStore(t)
	m := metrics.NewRegistryMetrics()
	log := logger.Nop()
	hub := events.NewHub(nil, log, m)

	handler := NewAPI(NewBackend(st, hub, log, m), hub, limiter, log, m)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &httpFixture{srv: srv, store: st, hub: hub, metrics: m}
}

func (f *httpFixture) do(t *testing.T, method, path, body string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, raw
}

func decodeBody(t *testing.T, raw []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("Response is not JSON: %v (%s)", err, raw)
	}
}

func TestHTTPWhiteboardLifecycle(t *testing.T) {
	f := setupHTTP(t, nil)
	ident := map[string]string{api.HeaderUserID: "ann", api.HeaderTenantID: "acme"}

	resp, raw := f.do(t, "POST", "/whiteboard/create", `{"name":"Sprint"}`, ident)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Create returned %d: %s", resp.StatusCode, raw)
	}
	var created api.Whiteboard
	decodeBody(t, raw, &created)
	if created.ID == "" || created.Name != "Sprint" || created.Owner != "acme" {
		t.Errorf("Unexpected create response %+v", created)
	}

	resp, raw = f.do(t, "GET", "/whiteboard/get", "", ident)
	var list []board.Summary
	decodeBody(t, raw, &list)
	if resp.StatusCode != http.StatusOK || len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("Unexpected listing %d %s", resp.StatusCode, raw)
	}

	_, raw = f.do(t, "GET", "/whiteboard/get/"+created.ID, "", nil)
	var got api.Whiteboard
	decodeBody(t, raw, &got)
	if !strings.HasPrefix(got.Data, "data:image/png") {
		t.Errorf("Expected blank payload in get, got %q", got.Data)
	}

	p0, _ := codec.Blank(64, 48, "#ff0000")
	body, _ := json.Marshal(api.UpdateRequest{Data: p0})
	resp, raw = f.do(t, "PUT", "/whiteboard/update/"+created.ID, string(body), ident)
	var write api.WriteResponse
	decodeBody(t, raw, &write)
	if resp.StatusCode != http.StatusOK || !write.Success || write.Index != 0 || write.Author != "ann" {
		t.Errorf("Unexpected update response %d %s", resp.StatusCode, raw)
	}

	_, raw = f.do(t, "GET", "/whiteboard/get/"+created.ID+"/versions", "", nil)
	var versions []api.Version
	decodeBody(t, raw, &versions)
	if len(versions) != 1 || versions[0].Data != "" {
		t.Errorf("Expected one version without payload, got %s", raw)
	}

	_, raw = f.do(t, "GET", "/whiteboard/get/"+created.ID+"/versions?payload=true", "", nil)
	decodeBody(t, raw, &versions)
	if len(versions) != 1 || versions[0].Data != p0 {
		t.Error("Expected payload with payload=true")
	}

	resp, raw = f.do(t, "GET", "/whiteboard/get/"+created.ID+"/restore/0", "", ident)
	decodeBody(t, raw, &write)
	if resp.StatusCode != http.StatusOK || write.Index != 1 || write.RestoredFrom == nil || *write.RestoredFrom != 0 {
		t.Errorf("Unexpected restore response %d %s", resp.StatusCode, raw)
	}

	resp, _ = f.do(t, "POST", "/whiteboard/get/"+created.ID+"/restore/1", "", ident)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("POST restore returned %d", resp.StatusCode)
	}
	all, _ := f.store.ListVersions(context.Background(), created.ID)
	if len(all) != 3 {
		t.Errorf("Expected 3 versions, got %d", len(all))
	}
}

func TestHTTPErrors(t *testing.T) {
	f := setupHTTP(t, nil)
	wb, _ := f.store.Create(context.Background(), "board", "")
	base := "/whiteboard/get/" + wb.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown whiteboard", "GET", "/whiteboard/get/nope", "", 404, api.CodeNotFound},
		{"unknown versions", "GET", "/whiteboard/get/nope/versions", "", 404, api.CodeNotFound},
		{"restore out of range", "GET", base + "/restore/0", "", 400, api.CodeOutOfRange},
		{"restore negative", "POST", base + "/restore/-1", "", 400, api.CodeOutOfRange},
		{"restore bad index", "GET", base + "/restore/first", "", 400, api.CodeInvalidRequest},
		{"update malformed json", "PUT", "/whiteboard/update/" + wb.ID, `{"data":`, 400, api.CodeInvalidRequest},
		{"update missing data", "PUT", "/whiteboard/update/" + wb.ID, `{}`, 400, api.CodeInvalidRequest},
		{"update not a data url", "PUT", "/whiteboard/update/" + wb.ID, `{"data":"hello"}`, 400, api.CodeInvalidRequest},
		{"update unknown board", "PUT", "/whiteboard/update/nope", `{"data":"data:image/png;base64,AA"}`, 404, api.CodeNotFound},
		{"create empty name", "POST", "/whiteboard/create", `{"name":""}`, 400, api.CodeInvalidRequest},
		{"create markup only", "POST", "/whiteboard/create", `{"name":"<script>x</script>"}`, 400, api.CodeInvalidRequest},
		{"create unknown field", "POST", "/whiteboard/create", `{"name":"a","owner":"b"}`, 400, api.CodeInvalidRequest},
		{"export out of range", "GET", base + "/export.pdf?version=3", "", 400, api.CodeOutOfRange},
		{"export bad version", "GET", base + "/export.pdf?version=x", "", 400, api.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := f.do(t, tt.method, tt.path, tt.body, nil)
			if resp.StatusCode != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, resp.StatusCode, raw)
			}
			var body api.ErrorResponse
			decodeBody(t, raw, &body)
			if body.Code != tt.code || body.Error == "" {
				t.Errorf("Expected code %q, got %+v", tt.code, body)
			}
		})
	}
}

func TestCreateStripsMarkup(t *testing.T) {
	f := setupHTTP(t, nil)
	resp, raw := f.do(t, "POST", "/whiteboard/create", `{"name":"<b>Plan</b>"}`, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Create returned %d: %s", resp.StatusCode, raw)
	}
	var wb api.Whiteboard
	decodeBody(t, raw, &wb)
	if wb.Name != "Plan" {
		t.Errorf("Expected sanitized name, got %q", wb.Name)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := NewIPRateLimit(0.001, 2)
	limiter.TrustProxies([]netip.Prefix{netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128")})
	f := setupHTTP(t, limiter)
	from := map[string]string{"X-Forwarded-For": "203.0.113.7"}

	for i := 0; i < 2; i++ {
		if resp, _ := f.do(t, "GET", "/whiteboard/get", "", from); resp.StatusCode != http.StatusOK {
			t.Fatalf("Request %d returned %d", i, resp.StatusCode)
		}
	}
	resp, raw := f.do(t, "GET", "/whiteboard/get", "", from)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", resp.StatusCode)
	}
	var body api.ErrorResponse
	decodeBody(t, raw, &body)
	if body.Code != api.CodeRateLimited {
		t.Errorf("Expected rate_limited, got %q", body.Code)
	}

	other := map[string]string{"X-Forwarded-For": "198.51.100.1"}
	if resp, _ := f.do(t, "GET", "/whiteboard/get", "", other); resp.StatusCode != http.StatusOK {
		t.Errorf("Another client was limited: %d", resp.StatusCode)
	}
}

func TestClientAgainstAPI(t *testing.T) {
	f := setupHTTP(t, nil)
	c := client.New(f.srv.URL, nil)
	ctx := board.WithAuthor(context.Background(), "bo")

	wb, err := c.Create(ctx, "Design", "acme")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if wb.Owner != "acme" {
		t.Errorf("Expected owner acme, got %q", wb.Owner)
	}

	p0, _ := codec.Blank(64, 48, "#00ff00")
	v, err := c.PutCurrent(ctx, wb.ID, p0)
	if err != nil || v.Index != 0 || v.Author != "bo" {
		t.Fatalf("PutCurrent = %+v, %v", v, err)
	}
	if _, err := c.Restore(ctx, wb.ID, 0); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	versions, err := c.ListVersions(ctx, wb.ID)
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != 2 || versions[1].Data != p0 || !versions[1].IsRestore() {
		t.Errorf("Unexpected history %+v", versions)
	}

	cur, err := c.GetCurrent(ctx, wb.ID)
	if err != nil || cur.Data != p0 {
		t.Errorf("GetCurrent = %v", err)
	}

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, board.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := c.Restore(ctx, wb.ID, 9); !errors.Is(err, board.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}

	pdf, err := c.ExportPDF(ctx, wb.ID, 0)
	if err != nil {
		t.Fatalf("ExportPDF failed: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Error("Export is not a PDF")
	}
	if _, err := c.ExportPDF(ctx, wb.ID, 5); !errors.Is(err, board.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for export, got %v", err)
	}
}

func TestSessionRestoreOverHTTP(t *testing.T) {
	f := setupHTTP(t, nil)
	c := client.New(f.srv.URL, nil)
	ctx := board.WithAuthor(context.Background(), "bo")

	wb, err := c.Create(ctx, "board", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	opts := session.DefaultOptions()
	opts.Width, opts.Height = 64, 48
	opts.Controller.InitialInterval = time.Millisecond
	sess, err := session.Open(ctx, c, wb.ID, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sess.SetColor("#000000")
	sess.Begin(canvas.Point{X: 5, Y: 5})
	sess.Extend(canvas.Point{X: 50, Y: 40})
	if err := sess.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if err := sess.Wait(waitCtx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	first := sess.Image()

	sess.SetColor("#ff0000")
	sess.Begin(canvas.Point{X: 5, Y: 44})
	sess.Extend(canvas.Point{X: 60, Y: 44})
	if err := sess.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if err := sess.Wait(waitCtx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	v, err := sess.RestoreVersion(waitCtx, 0)
	if err != nil {
		t.Fatalf("RestoreVersion failed: %v", err)
	}
	if v.Index != 2 || v.Data == "" {
		t.Errorf("Expected restore entry 2 with payload, got index %d", v.Index)
	}
	if w := sess.Warnings(); len(w) != 0 {
		t.Errorf("Unexpected warnings: %v", w)
	}
	img := sess.Image()
	if r, g, b, _ := img.At(27, 22).RGBA(); r|g|b != 0 {
		t.Errorf("Expected the first stroke at (27,22), got %d,%d,%d", r>>8, g>>8, b>>8)
	}
	if string(img.Pix) != string(first.Pix) {
		t.Error("Surface after restore does not match version 0")
	}
}

func TestChangeFeed(t *testing.T) {
	f := setupHTTP(t, nil)
	wb, _ := f.store.Create(context.Background(), "board", "")

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/whiteboard/ws/" + wb.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Subscribers(wb.ID) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c := client.New(f.srv.URL, nil)
	ctx := board.WithAuthor(context.Background(), "cy")
	p0, _ := codec.Blank(64, 48, "#123456")
	c.PutCurrent(ctx, wb.ID, p0)
	c.Restore(ctx, wb.ID, 0)

	for _, want := range []events.Event{
		{Type: events.TypeCommitted, Index: 0},
		{Type: events.TypeRestored, Index: 1},
	} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		var ev events.Event
		decodeBody(t, msg, &ev)
		if ev.Type != want.Type || ev.Index != want.Index || ev.Whiteboard != wb.ID || ev.Author != "cy" {
			t.Errorf("Expected %s #%d, got %+v", want.Type, want.Index, ev)
		}
	}

	if _, resp, err := websocket.DefaultDialer.Dial(strings.Replace(url, wb.ID, "missing", 1), nil); err == nil {
		t.Error("Expected feed of unknown whiteboard to fail")
	} else if resp != nil && resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestObservabilityEndpoints(t *testing.T) {
	f := setupHTTP(t, nil)
	f.do(t, "GET", "/whiteboard/get", "", nil)

	var notReady error = errors.New("replaying log")
	obs := NewObservabilityServer(0, f.metrics, func() error { return notReady }, logger.Nop())
	h := obs.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "boardstore") {
		t.Errorf("Unexpected health %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 while not ready, got %d", rec.Code)
	}
	notReady = nil
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 when ready, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `boardstore_http_requests_total{code="2xx",route="GET /whiteboard/get"} 1`) {
		t.Errorf("Request metric missing from /metrics:\n%s", rec.Body)
	}
}

func TestIPRateLimitCleanup(t *testing.T) {
	l := NewIPRateLimit(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(30 * time.Minute)
	l.Allow("b")
	now = now.Add(45 * time.Minute)

	if removed := l.Cleanup(time.Hour); removed != 1 {
		t.Errorf("Expected 1 removed limiter, got %d", removed)
	}
	if l.Len() != 1 {
		t.Errorf("Expected 1 tracked client, got %d", l.Len())
	}
}

func TestGetClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		header  map[string]string
		remote  string
		trusted []netip.Prefix
		want    string
	}{
		{"untrusted peer ignores forwarded", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "9.9.9.9:1234", proxies, "9.9.9.9"},
		{"no proxies ignores forwarded", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "5.6.7.8"}, "10.0.0.1:5000", nil, "10.0.0.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.2"}, "10.0.0.1:5000", proxies, "1.2.3.4"},
		{"spoofed leftmost hop", map[string]string{"X-Forwarded-For": "6.6.6.6, 1.2.3.4"}, "10.0.0.1:5000", proxies, "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": " 5.6.7.8 "}, "10.0.0.1:5000", proxies, "5.6.7.8"},
		{"remote addr", nil, "9.9.9.9:1234", nil, "9.9.9.9"},
		{"ipv6 remote", nil, "[::1]:1234", nil, "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r, tt.trusted); got != tt.want {
				t.Errorf("GetClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitIgnoresSpoofedForwarding(t *testing.T) {
	f := setupHTTP(t, NewIPRateLimit(0.001, 1))

	for i, ip := range []string{"1.1.1.1", "2.2.2.2"} {
		resp, _ := f.do(t, "GET", "/whiteboard/get", "", map[string]string{"X-Forwarded-For": ip})
		want := http.StatusOK
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		if resp.StatusCode != want {
			t.Errorf("Request %d from %s: status %d, want %d", i, ip, resp.StatusCode, want)
		}
	}
}
