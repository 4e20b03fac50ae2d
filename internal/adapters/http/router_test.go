package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/TicTacToe/internal/app"
	"github.com/dkeye/TicTacToe/internal/app/orch"
	"github.com/dkeye/TicTacToe/internal/config"
	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/storage/memory"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>tic-tac-toe</h1>"), 0o644))
	cfg := &config.Config{Mode: "test", Port: 8080, StaticPath: static, Secret: "test-secret"}
	cfg.WS = config.WSConfig{ReadLimit: 4096, PingPeriod: 50 * time.Second, PongWait: time.Minute, WriteWait: time.Second, SendBuffer: 16}
	cfg.Rate = config.RateConfig{Limit: 100, Interval: time.Second}
	cfg.Rooms.ListLimit = 2
	return cfg
}

func newRouter(t *testing.T, health Pinger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	stats := app.NewStatsAggregator(store)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomRegistry(store, stats),
		Policy:   app.KickPolicy{},
	}
	if health == nil {
		health = store
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return SetupRouter(ctx, testConfig(t), o, stats, health)
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthz(t *testing.T) {
	w := do(newRouter(t, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	down := newRouter(t, pingFunc(func(context.Context) error { return errors.New("store down") }))
	w = do(down, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRoomsEndpoints(t *testing.T) {
	r := newRouter(t, nil)

	w := do(r, http.MethodPost, "/api/rooms", `{"name":"  Ann "}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[domain.PublicRoom](t, w)
	assert.Len(t, string(created.ID), 8)
	assert.Equal(t, "Ann", created.PlayerXName)
	assert.Equal(t, "Waiting", created.Status)
	assert.Nil(t, created.PlayerOName)
	assert.Equal(t, "000000000", created.Board)

	w = do(r, http.MethodGet, "/api/rooms/"+string(created.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[domain.PublicRoom](t, w).ID)

	w = do(r, http.MethodGet, "/api/rooms/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RoomNotFound", decode[map[string]string](t, w)["code"])

	for _, name := range []string{"Bo", "Cy"} {
		require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/rooms", `{"name":"`+name+`"}`).Code)
	}
	w = do(r, http.MethodGet, "/api/rooms", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.PublicRoom](t, w), 2, "capped by the list limit")

	w = do(r, http.MethodGet, "/api/rooms?status=waiting&limit=1", "")
	assert.Len(t, decode[[]domain.PublicRoom](t, w), 1)

	w = do(r, http.MethodGet, "/api/rooms?status=Playing", "")
	assert.Empty(t, decode[[]domain.PublicRoom](t, w))
}

func TestCreateRoomRejectsBadInput(t *testing.T) {
	r := newRouter(t, nil)

	w := do(r, http.MethodPost, "/api/rooms", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidName", decode[map[string]string](t, w)["code"])

	w = do(r, http.MethodPost, "/api/rooms", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BadRequest", decode[map[string]string](t, w)["code"])

	w = do(r, http.MethodPost, "/api/rooms", `{"name":"`+strings.Repeat("x", 37)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsDefault(t *testing.T) {
	r := newRouter(t, nil)

	w := do(r, http.MethodGet, "/api/stats/Ann", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[domain.PlayerStats](t, w)
	assert.Equal(t, "Ann", st.Name)
	assert.Zero(t, st.GamesPlayed)
	assert.Zero(t, st.Wins)
	assert.False(t, st.LastSeen.IsZero())
}

func TestIndexServed(t *testing.T) {
	w := do(newRouter(t, nil), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tic-tac-toe")
}

func TestSessionNameFlowsToRoomsAndSocket(t *testing.T) {
	srv := httptest.NewServer(newRouter(t, nil))
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	getName := func() string {
		resp, err := client.Get(srv.URL + "/api/session")
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body["playerName"]
	}
	assert.Empty(t, getName())

	resp, err := client.Post(srv.URL+"/api/session", "application/json", strings.NewReader(`{"name":"Sam"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Sam", getName())

	resp, err = client.Post(srv.URL+"/api/rooms", "application/json", nil)
	require.NoError(t, err)
	var room domain.PublicRoom
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Sam", room.PlayerXName)

	dialer := websocket.Dialer{Jar: jar}
	ws, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/game", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))

	var hello struct {
		Type       string `json:"type"`
		PlayerName string `json:"playerName"`
	}
	require.NoError(t, ws.ReadJSON(&hello))
	assert.Equal(t, orch.EventWhoAmI, hello.Type)
	assert.Equal(t, "Sam", hello.PlayerName)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "join", "roomId": room.ID}))
	var role struct {
		Type string `json:"type"`
		Seat string `json:"seat"`
	}
	require.NoError(t, ws.ReadJSON(&role))
	assert.Equal(t, orch.EventAssignRole, role.Type)
	assert.Equal(t, "X", role.Seat)
}

func TestOnlySessionCookieIsSet(t *testing.T) {
	r := newRouter(t, nil)

	w := do(r, http.MethodGet, "/healthz", "")
	assert.Empty(t, w.Result().Cookies())

	w = do(r, http.MethodPost, "/api/session", `{"name":"Sam"}`)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
}
