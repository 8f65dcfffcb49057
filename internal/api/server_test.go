package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/drone-gateway/internal/control"
	"github.com/nerrad567/drone-gateway/internal/device"
	"github.com/nerrad567/drone-gateway/internal/dispatch"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/config"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/database"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/drone-gateway/internal/telemetry"
	"github.com/nerrad567/drone-gateway/internal/worker"
	"github.com/nerrad567/drone-gateway/migrations"
)

// testLatency keeps device windows short but non-zero.
var testLatency = device.Latency{Read: 2 * time.Millisecond, Write: 5 * time.Millisecond}

type testEnv struct {
	srv        *Server
	router     http.Handler
	registry   *device.Registry
	dispatcher *dispatch.Dispatcher
	pool       *worker.Pool
	stop       context.CancelFunc
}

// testServer wires a real registry, pool and dispatcher behind the router.
// mutate may adjust the dependencies before New is called.
func testServer(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()

	registry, err := device.NewRegistry(
		device.NewMotor(1, testLatency),
		device.NewLight(1, "Blue LED", testLatency),
		device.NewLight(2, "White LED", testLatency),
		device.NewAltimeter(1, 0, 3000, testLatency),
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	pool, err := worker.New(4)
	if err != nil {
		t.Fatalf("worker.New() error = %v", err)
	}

	d := dispatch.New(pool)
	control.Register(d, registry, nil)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-runErr
		pool.Close()
	})

	gatherer := prometheus.NewPedanticRegistry()
	gatherer.MustRegister(collectors.NewGoCollector())

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:         config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:     logging.Discard(),
		Registry:   registry,
		Dispatcher: d,
		Pool:       pool,
		Gatherer:   gatherer,
		Version:    "test",
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testEnv{
		srv:        srv,
		router:     srv.buildRouter(),
		registry:   registry,
		dispatcher: d,
		pool:       pool,
		stop:       cancel,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func bodyString(w *httptest.ResponseRecorder) string {
	return strings.TrimSpace(w.Body.String())
}

// ─── Device Scenarios ──────────────────────────────────────────────

func TestDeviceScenarios(t *testing.T) {
	env := testServer(t)

	steps := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{"motor default", http.MethodGet, "/motors/1", "", 200, `{"speed":0,"turned_on":false}`},
		{"motor set 500", http.MethodPatch, "/motors/1", `{"motor_speed": 500}`, 200, `{"speed":500,"turned_on":true}`},
		{"motor set -5", http.MethodPatch, "/motors/1", `{"motor_speed": -5}`, 400, `{"error":"The minimum speed is 0"}`},
		{"motor unchanged", http.MethodGet, "/motors/1", "", 200, `{"speed":500,"turned_on":true}`},
		{"light set 300", http.MethodPatch, "/lights/2", `{"brightness_level": 300}`, 400, `{"error":"The maximum brightness level is 255"}`},
		{"light unchanged", http.MethodGet, "/lights/2", "", 200, `{"id":2,"description":"White LED","brightness_level":0}`},
		{"unknown motor", http.MethodGet, "/motors/99", "", 404, ""},
	}

	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("%s %s status = %d, want %d (body %q)", tt.method, tt.path, w.Code, tt.status, w.Body.String())
			}
			if got := bodyString(w); got != tt.want {
				t.Errorf("%s %s body = %s, want %s", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestAltimeter_WithinRange(t *testing.T) {
	env := testServer(t)

	for range 20 {
		w := env.do(t, http.MethodGet, "/altimeters/1", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var reading struct {
			Altitude *int `json:"altitude"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &reading); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if reading.Altitude == nil || *reading.Altitude < 0 || *reading.Altitude > 3000 {
			t.Fatalf("altitude = %v, want within [0, 3000]", reading.Altitude)
		}
	}
}

func TestAltimeter_PatchNotAllowed(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPatch, "/altimeters/1", `{"altitude": 10}`)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestDeviceRoutes_Aliases(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPatch, "/hexacopters/1", `{"motor_speed": 42}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH /hexacopters/1 status = %d", w.Code)
	}
	if got := bodyString(env.do(t, http.MethodGet, "/motors/1", "")); got != `{"speed":42,"turned_on":true}` {
		t.Errorf("alias write not visible on /motors/1: %s", got)
	}

	w = env.do(t, http.MethodPatch, "/leds/1", `{"brightness_level": 7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH /leds/1 status = %d", w.Code)
	}
	if got := bodyString(env.do(t, http.MethodGet, "/lights/1", "")); got != `{"id":1,"description":"Blue LED","brightness_level":7}` {
		t.Errorf("alias write not visible on /lights/1: %s", got)
	}
}

func TestDeviceRoutes_Validation(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		want   string
	}{
		{"missing field", "/motors/1", `{}`, 400, `{"error":"motor_speed is required"}`},
		{"null field", "/lights/1", `{"brightness_level": null}`, 400, `{"error":"brightness_level is required"}`},
		{"malformed json", "/motors/1", `{"motor_speed":`, 400, `{"error":"invalid JSON body"}`},
		{"empty body", "/motors/1", "", 400, `{"error":"invalid JSON body"}`},
		{"boolean", "/motors/1", `{"motor_speed": true}`, 400, `{"error":"motor_speed must be an integer"}`},
		{"numeric string", "/motors/1", `{"motor_speed": "250"}`, 200, `{"speed":250,"turned_on":true}`},
		{"unknown id wins over bad body", "/lights/9", `nope`, 404, ""},
		{"non-numeric id", "/motors/abc", `{"motor_speed": 1}`, 404, ""},
		{"overflowing id", "/motors/99999999999999999999999", `{"motor_speed": 1}`, 404, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPatch, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %q)", w.Code, tt.status, w.Body.String())
			}
			if got := bodyString(w); got != tt.want {
				t.Errorf("body = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeviceRoutes_BodyTooLarge(t *testing.T) {
	env := testServer(t)

	big := `{"motor_speed": 1, "pad": "` + strings.Repeat("x", maxRequestBodySize) + `"}`
	w := env.do(t, http.MethodPatch, "/motors/1", big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

// Concurrent writes to one motor end in one of the submitted states, and the
// HTTP layer never sees a torn status.
func TestDeviceRoutes_ConcurrentWrites(t *testing.T) {
	env := testServer(t)

	var wg sync.WaitGroup
	for _, v := range []int{100, 900} {
		for range 5 {
			wg.Add(1)
			go func(v int) {
				defer wg.Done()
				w := env.do(t, http.MethodPatch, "/motors/1", fmt.Sprintf(`{"motor_speed": %d}`, v))
				if w.Code != http.StatusOK {
					t.Errorf("PATCH %d status = %d", v, w.Code)
				}
			}(v)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			var s device.MotorStatus
			w := env.do(t, http.MethodGet, "/motors/1", "")
			if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
				t.Errorf("unmarshal: %v", err)
				return
			}
			if s.TurnedOn != (s.Speed != 0) {
				t.Errorf("torn status %+v", s)
			}
		}()
	}
	wg.Wait()

	var final device.MotorStatus
	if err := json.Unmarshal(env.do(t, http.MethodGet, "/motors/1", "").Body.Bytes(), &final); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if final.Speed != 100 && final.Speed != 900 {
		t.Errorf("final speed = %d, want 100 or 900", final.Speed)
	}
}

func TestDeviceRoutes_DispatcherStopped(t *testing.T) {
	env := testServer(t)
	env.stop()

	deadline := time.Now().Add(time.Second)
	for env.dispatcher.Stats().Running && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	w := env.do(t, http.MethodGet, "/motors/1", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}

	w = env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want 503", w.Code)
	}
}

// ─── Catalogue & History ───────────────────────────────────────────

func TestListDevices(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Devices []device.Info `json:"devices"`
		Count   int           `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 4 || len(resp.Devices) != 4 {
		t.Fatalf("count = %d, devices = %d, want 4", resp.Count, len(resp.Devices))
	}
	first := resp.Devices[0]
	if first.Kind != device.KindAltimeter || first.Writable {
		t.Errorf("first device = %+v, want read-only altimeter", first)
	}
}

func historyDeps(t *testing.T) func(*Deps) {
	t.Helper()
	return func(d *Deps) {
		ctx := context.Background()
		db, err := database.Open(ctx, config.DatabaseConfig{Path: ":memory:", BusyTimeout: 1})
		if err != nil {
			t.Fatalf("database.Open() error = %v", err)
		}
		t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}

		repo := telemetry.NewSQLiteHistory(db.DB)
		d.Registry.AddObserver(telemetry.NewHistoryObserver(repo, nil))
		d.History = repo
		d.Components = map[string]HealthChecker{"database": db}
	}
}

func TestHistory(t *testing.T) {
	env := testServer(t, historyDeps(t))

	for _, v := range []int{10, 20, 30} {
		if w := env.do(t, http.MethodPatch, "/motors/1", fmt.Sprintf(`{"motor_speed": %d}`, v)); w.Code != http.StatusOK {
			t.Fatalf("PATCH %d status = %d", v, w.Code)
		}
	}
	// Rejected writes and reads are not recorded.
	env.do(t, http.MethodPatch, "/motors/1", `{"motor_speed": 5000}`)
	env.do(t, http.MethodGet, "/motors/1", "")

	w := env.do(t, http.MethodGet, "/motors/1/history?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", w.Code, w.Body.String())
	}

	var resp struct {
		Entries []telemetry.HistoryEntry `json:"entries"`
		Count   int                      `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	if resp.Entries[0].Value != 30 || resp.Entries[1].Value != 20 {
		t.Errorf("entries = %+v, want newest first", resp.Entries)
	}

	if w := env.do(t, http.MethodGet, "/motors/7/history", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown motor history status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/motors/1/history?limit=zero", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/altimeters/1/history", ""); w.Code != http.StatusNotFound {
		t.Errorf("altimeter history status = %d, want 404", w.Code)
	}
}

func TestHistory_Disabled(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/lights/1/history", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── Health & Metrics ──────────────────────────────────────────────

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return errors.New("broker unreachable") }

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != HealthOK || resp.Version != "test" {
		t.Errorf("status = %q version = %q", resp.Status, resp.Version)
	}
	if resp.Workers.Workers != 4 || !resp.Dispatcher.Running || resp.Devices != 4 {
		t.Errorf("health = %+v", resp)
	}
}

func TestHealth_DegradedComponent(t *testing.T) {
	env := testServer(t, func(d *Deps) {
		d.Components = map[string]HealthChecker{"mqtt": failingCheck{}}
	})

	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != HealthDegraded || resp.Components["mqtt"] != "broker unreachable" {
		t.Errorf("health = %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("exposition missing go_goroutines")
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestRequestID_OverlongReplaced(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", maxRequestIDLength+1))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("X-Request-ID = %q, want a generated UUID", got)
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	env := testServer(t, func(d *Deps) {
		d.Logger = logging.NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)
	})

	env.do(t, http.MethodPatch, "/motors/1", `{"motor_speed": 5000}`)

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e map[string]any
		if json.Unmarshal([]byte(line), &e) == nil && e["msg"] == "http request" {
			entry = e
		}
	}
	if entry == nil {
		t.Fatalf("no access log line in %q", buf.String())
	}
	if entry["level"] != "WARN" || entry["status"] != float64(http.StatusBadRequest) {
		t.Errorf("access log = %v, want WARN with status 400", entry)
	}
	if entry["bytes"].(float64) == 0 {
		t.Errorf("access log bytes = %v, want the error body size", entry["bytes"])
	}
}

func TestCORS(t *testing.T) {
	env := testServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://console.local"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/motors/1", nil)
	req.Header.Set("Origin", "http://console.local")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://console.local" {
		t.Errorf("ACAO = %q", got)
	}
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q, want Origin", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO for disallowed origin = %q", got)
	}
}

func TestNotFound(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/warp-drive/1", "")
	if w.Code != http.StatusNotFound || w.Body.Len() != 0 {
		t.Errorf("unknown route = %d %q, want empty 404", w.Code, w.Body.String())
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := testServer(t)

	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError || bodyString(w) != `{"error":"internal error"}` {
		t.Errorf("recovered response = %d %s", w.Code, w.Body.String())
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestNew_MissingDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() with no deps succeeded")
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := testServer(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start returned nil")
	}

	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	addr := env.srv.Addr()

	resp, err := http.Get("http://" + addr + "/motors/1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := env.srv.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := http.Get("http://" + addr + "/motors/1"); err == nil {
		t.Error("server still responding after Close()")
	}
}
