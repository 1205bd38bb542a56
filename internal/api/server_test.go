package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/showloop/internal/auth"
	"github.com/nerrad567/showloop/internal/catalog"
	"github.com/nerrad567/showloop/internal/history"
	"github.com/nerrad567/showloop/internal/infrastructure/config"
	"github.com/nerrad567/showloop/internal/infrastructure/logging"
	"github.com/nerrad567/showloop/internal/playback"
	"github.com/nerrad567/showloop/internal/process"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// ─── Mocks ──────────────────────────────────────────────────────────────────

type mockController struct {
	mu       sync.Mutex
	state    playback.Snapshot
	commands []playback.Command
}

func (m *mockController) Execute(cmd playback.Command) playback.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, cmd)
	return m.state
}

func (m *mockController) State() playback.Snapshot { return m.Last() }

func (m *mockController) Last() playback.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockController) executed() []playback.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]playback.Command(nil), m.commands...)
}

type mockHistory struct {
	filter history.Filter
	since  time.Time
	err    error
}

func (m *mockHistory) Create(context.Context, *history.Entry) error { return nil }

func (m *mockHistory) SetDwell(context.Context, string, int64) error { return nil }

func (m *mockHistory) List(_ context.Context, f history.Filter) (*history.ListResult, error) {
	m.filter = f
	if m.err != nil {
		return nil, m.err
	}
	return &history.ListResult{Entries: []history.Entry{{ID: "evt-1", Kind: "phase_started"}}, Total: 1, Limit: 50}, nil
}

func (m *mockHistory) SceneStats(_ context.Context, since time.Time) ([]history.SceneStat, error) {
	m.since = since
	return []history.SceneStat{{SceneID: "supply", Activations: 3}}, m.err
}

type mockBroker struct{ connected bool }

func (m mockBroker) IsConnected() bool { return m.connected }

// ─── Helpers ────────────────────────────────────────────────────────────────

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, _, err := catalog.New([]catalog.Scene{
		{ID: "intro", Title: "Company", Content: catalog.Content{Kind: catalog.KindStatic}},
		{
			ID:    "supply",
			Title: "Supply Heatmap",
			Intro: &catalog.Intro{Title: "Supply", Role: "Supply Chain Manager"},
			Content: catalog.Content{
				Kind:     catalog.KindScripted,
				Source:   "/demos/supply.html",
				Timeline: map[string]int64{"routeSelect": 10000, "switchCategory1": 2000},
			},
		},
		{ID: "guide", Title: "Store Guide", Content: catalog.Content{Kind: catalog.KindInteractive}},
	})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	return cat
}

func testLogger() *logging.Logger {
	return logging.NewWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	ctrl    *mockController
	history *mockHistory
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()

	ctrl := &mockController{state: playback.Snapshot{SceneID: "intro", SceneCount: 3, Phase: playback.PhaseContent, Playing: true, Activation: 4}}
	hist := &mockHistory{}
	deps := Deps{
		Config:    config.APIConfig{Host: "127.0.0.1"},
		WS:        config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security:  config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}},
		Logger:    testLogger(),
		PlayerID:  "lobby",
		PublicURL: "http://kiosk.local:8080",
		Player:    ctrl,
		Catalog:   testCatalog(t),
		History:   hist,
		Version:   "test",
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{srv: srv, handler: srv.buildRouter(), ctrl: ctrl, history: hist}
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, role, "tester-"+string(role), "lobby", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Construction ───────────────────────────────────────────────────────────

func TestNew_RequiredDeps(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"no logger", func(d *Deps) { d.Logger = nil }},
		{"no player", func(d *Deps) { d.Player = nil }},
		{"no catalog", func(d *Deps) { d.Catalog = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{Logger: testLogger(), Player: &mockController{}, Catalog: testCatalog(t)}
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestNew_ExternalHub(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	env := newTestEnv(t, func(d *Deps) { d.Hub = hub })
	if env.srv.Hub() != hub || !env.srv.externalHub {
		t.Error("injected hub not used")
	}
}

func TestHealthCheck_NotStarted(t *testing.T) {
	env := newTestEnv(t)
	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail before Start")
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}

// ─── Public routes ──────────────────────────────────────────────────────────

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/health", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "ok" || body["player"] != "lobby" || body["scenes"] != float64(3) {
		t.Errorf("body = %v", body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestHandleGetPlayback(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/playback", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	snap := decode[playback.Snapshot](t, w)
	if snap.SceneID != "intro" || snap.Activation != 4 || !snap.Playing {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestHandleScenes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/scenes", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[struct {
		Scenes []struct {
			ID    string        `json:"id"`
			Index int           `json:"index"`
			Cues  []catalog.Cue `json:"cues"`
		} `json:"scenes"`
		Count int `json:"count"`
	}](t, w)
	if list.Count != 3 || list.Scenes[1].ID != "supply" || list.Scenes[1].Index != 1 {
		t.Errorf("list = %+v", list)
	}
	if cues := list.Scenes[1].Cues; len(cues) != 2 || cues[0].Name != "switchCategory1" {
		t.Errorf("cues = %+v, want ordered by offset", cues)
	}

	w = env.do(t, http.MethodGet, "/api/v1/scenes/guide", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if scene := decode[map[string]any](t, w); scene["id"] != "guide" || scene["index"] != float64(2) {
		t.Errorf("scene = %v", scene)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/scenes/nope", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown scene status = %d, want 404", w.Code)
	}
}

type mockRenderer struct{ stats process.Stats }

func (m mockRenderer) Stats() process.Stats { return m.stats }

func TestHandleSystemMetrics(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.MQTT = mockBroker{connected: true}
		d.Renderer = mockRenderer{stats: process.Stats{Name: "renderer", Status: process.StatusRunning, PID: 4242, RestartCount: 1}}
	})
	w := env.do(t, http.MethodGet, "/api/v1/system/metrics", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	m := decode[SystemMetrics](t, w)
	if m.Player.ID != "lobby" || m.Player.SceneID != "intro" {
		t.Errorf("player = %+v", m.Player)
	}
	if m.Runtime.Goroutines == 0 || m.Host == nil {
		t.Error("runtime or host metrics missing")
	}
	if m.MQTT == nil || !m.MQTT.Connected {
		t.Errorf("mqtt = %+v", m.MQTT)
	}
	if m.Database != nil {
		t.Error("database status reported without a database")
	}
	if m.Renderer == nil || m.Renderer.Status != process.StatusRunning || m.Renderer.PID != 4242 {
		t.Errorf("renderer = %+v", m.Renderer)
	}
}

func TestHandleControlQR(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/control/qr.png?size=200", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "\x89PNG") {
		t.Error("body is not a PNG")
	}
	if got := env.srv.controlURL(); got != "http://kiosk.local:8080/panel/#control" {
		t.Errorf("controlURL() = %q", got)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/control/qr.png?size=big", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad size status = %d, want 400", w.Code)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/metrics", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("/metrics without handler status = %d, want 404", w.Code)
	}

	env = newTestEnv(t, func(d *Deps) {
		d.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "showloop_playing 1\n") //nolint:errcheck // test
		})
	})
	w := env.do(t, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "showloop_playing") {
		t.Errorf("/metrics = %d %q", w.Code, w.Body.String())
	}
}

func TestPanelRoutes(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, http.MethodGet, "/panel", "", ""); w.Code != http.StatusMovedPermanently {
		t.Errorf("/panel status = %d, want 301", w.Code)
	}
	w := env.do(t, http.MethodGet, "/panel/", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
		t.Errorf("/panel/ = %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Config.CORS.AllowedOrigins = []string{"http://ops.local"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/playback/skip", nil)
	req.Header.Set("Origin", "http://ops.local")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://ops.local" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.local")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin %q", got)
	}
}

// ─── Protected routes ───────────────────────────────────────────────────────

func TestPlaybackCommands_Auth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		bearer   string
		wantCode int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "abc.def.ghi", http.StatusUnauthorized},
		{"display token", token(t, auth.RoleDisplay), http.StatusForbidden},
		{"viewer token", token(t, auth.RoleViewer), http.StatusForbidden},
		{"operator token", token(t, auth.RoleOperator), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPost, "/api/v1/playback/skip", tt.bearer, ""); w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}

	if got := env.ctrl.executed(); len(got) != 1 {
		t.Errorf("executed %d commands, want only the authorised one", len(got))
	}
}

func TestPlaybackCommands_Kinds(t *testing.T) {
	env := newTestEnv(t)
	op := token(t, auth.RoleOperator)

	kinds := []playback.CommandKind{
		playback.CommandPlay, playback.CommandPause, playback.CommandToggle,
		playback.CommandSkip, playback.CommandReload,
	}
	for _, kind := range kinds {
		if w := env.do(t, http.MethodPost, "/api/v1/playback/"+string(kind), op, ""); w.Code != http.StatusOK {
			t.Errorf("%s status = %d", kind, w.Code)
		}
	}

	got := env.ctrl.executed()
	if len(got) != len(kinds) {
		t.Fatalf("executed = %+v", got)
	}
	for i, cmd := range got {
		if cmd.Kind != kinds[i] || cmd.Source != SourceAPI || cmd.Actor != "tester-operator" {
			t.Errorf("command %d = %+v", i, cmd)
		}
	}

	if w := env.do(t, http.MethodPost, "/api/v1/playback/rewind", op, ""); w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("unknown command status = %d", w.Code)
	}
}

func TestHandleJump(t *testing.T) {
	op := token(t, auth.RoleOperator)

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantIndex int
	}{
		{"by scene id", `{"scene_id":"guide"}`, http.StatusOK, 2},
		{"by index", `{"index":1}`, http.StatusOK, 1},
		{"scene id wins", `{"scene_id":"intro","index":2}`, http.StatusOK, 0},
		{"unknown scene", `{"scene_id":"nope"}`, http.StatusNotFound, 0},
		{"no target", ``, http.StatusUnprocessableEntity, 0},
		{"bad json", `{`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, http.MethodPost, "/api/v1/playback/jump", op, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			got := env.ctrl.executed()
			if tt.wantCode != http.StatusOK {
				if len(got) != 0 {
					t.Errorf("rejected jump executed: %+v", got)
				}
				return
			}
			if len(got) != 1 || got[0].Kind != playback.CommandJump || got[0].Index != tt.wantIndex {
				t.Errorf("executed = %+v, want jump to %d", got, tt.wantIndex)
			}
		})
	}
}

func TestHandleComplete(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, http.MethodPost, "/api/v1/playback/complete", token(t, auth.RoleViewer), ""); w.Code != http.StatusForbidden {
		t.Errorf("viewer status = %d, want 403", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/playback/complete", token(t, auth.RoleDisplay), ""); w.Code != http.StatusAccepted {
		t.Errorf("display empty body status = %d, want 202", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/playback/complete", token(t, auth.RoleOperator), `{"activation":9}`); w.Code != http.StatusAccepted {
		t.Errorf("operator status = %d, want 202", w.Code)
	}

	got := env.ctrl.executed()
	if len(got) != 2 {
		t.Fatalf("executed = %+v", got)
	}
	if got[0].Kind != playback.CommandComplete || got[0].Activation != 0 || got[0].Actor != "tester-display" {
		t.Errorf("display completion = %+v", got[0])
	}
	if got[1].Activation != 9 {
		t.Errorf("addressed completion = %+v", got[1])
	}
}

func TestHistoryRoutes(t *testing.T) {
	env := newTestEnv(t)
	op := token(t, auth.RoleOperator)

	if w := env.do(t, http.MethodGet, "/api/v1/history", token(t, auth.RoleDisplay), ""); w.Code != http.StatusForbidden {
		t.Errorf("display status = %d, want 403", w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/v1/history?kind=command&scene_id=supply&limit=10&offset=5&since=2026-03-01T12:00:00Z", op, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d (%s)", w.Code, w.Body.String())
	}
	f := env.history.filter
	if f.Kind != "command" || f.SceneID != "supply" || f.Limit != 10 || f.Offset != 5 {
		t.Errorf("filter = %+v", f)
	}
	if want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC); !f.Since.Equal(want) {
		t.Errorf("since = %v, want %v", f.Since, want)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/history?since=yesterday", op, ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/history/stats", token(t, auth.RoleViewer), "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	if body := decode[map[string]any](t, w); body["count"] != float64(1) {
		t.Errorf("stats = %v", body)
	}

	env.history.err = errors.New("disk full")
	if w := env.do(t, http.MethodGet, "/api/v1/history", op, ""); w.Code != http.StatusInternalServerError {
		t.Errorf("repository failure status = %d, want 500", w.Code)
	}
}

func TestHistoryRoutes_NotConfigured(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.History = nil })
	op := token(t, auth.RoleOperator)

	for _, path := range []string{"/api/v1/history", "/api/v1/history/stats"} {
		if w := env.do(t, http.MethodGet, path, op, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, w.Code)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if e := decode[Error](t, w); e.Code != ErrCodeInternal {
		t.Errorf("error = %+v", e)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		if got := bearerToken(req); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	env := newTestEnv(t, func(d *Deps) { d.Config.Port = port })
	if err := env.srv.Start(context.Background()); err == nil {
		env.srv.Close()
		t.Fatal("Start() on a busy port succeeded")
	}
}
