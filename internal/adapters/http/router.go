package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/TicTacToe/internal/adapters/signal"
	"github.com/dkeye/TicTacToe/internal/app/orch"
	"github.com/dkeye/TicTacToe/internal/config"
	"github.com/dkeye/TicTacToe/internal/domain"
)

const (
	sessionCookie = "TicTacToeSessions"
	sessionName   = "player_name"
)

// StatsSource serves the per-player scoreboard.
type StatsSource interface {
	Stats(ctx context.Context, name string) (domain.PlayerStats, error)
}

// Pinger reports backing store liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, stats StatsSource, health Pinger) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 30, HttpOnly: true})
	r.Use(sessions.Sessions(sessionCookie, store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	r.GET("/healthz", func(c *gin.Context) {
		if err := health.Ping(c.Request.Context()); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{orch: o, stats: stats, listLimit: cfg.Rooms.ListLimit}
	api := r.Group("/api")
	api.GET("/rooms", h.listRooms)
	api.POST("/rooms", h.createRoom)
	api.GET("/rooms/:id", h.getRoom)
	api.GET("/stats/:name", h.getStats)
	api.GET("/session", h.getSession)
	api.POST("/session", h.setSession)

	ctrl := signal.NewSignalWSController(o, signal.OptionsFrom(cfg))
	api.GET("/ws/game", func(c *gin.Context) {
		if name, ok := sessions.Default(c).Get(sessionName).(string); ok {
			c.Set(signal.SessionNameKey, name)
		}
		log.Debug().Str("module", "adapters.http").Msg("ws game endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}

type handlers struct {
	orch      *orch.Orchestrator
	stats     StatsSource
	listLimit int
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *handlers) listRooms(c *gin.Context) {
	status, err := domain.ParseStatus(c.DefaultQuery("status", "waiting"))
	if err != nil {
		status = domain.StatusWaiting
	}
	limit := h.listLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	rooms, err := h.orch.Rooms.List(c.Request.Context(), status, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]domain.PublicRoom, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Public())
	}
	c.JSON(http.StatusOK, out)
}

// createRoom seats the creator as X. Without a body name the session name is used.
func (h *handlers) createRoom(c *gin.Context) {
	var req nameRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, domain.ErrBadRequest)
			return
		}
	}
	sess := sessions.Default(c)
	if req.Name == "" {
		req.Name, _ = sess.Get(sessionName).(string)
	}
	rs, err := h.orch.Rooms.Create(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	room := rs.Snapshot()
	sess.Set(sessionName, room.X.Name)
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
	}
	log.Info().Str("module", "adapters.http").Str("room_id", string(room.ID)).Msg("room created")
	c.JSON(http.StatusCreated, room.Public())
}

func (h *handlers) getRoom(c *gin.Context) {
	rs, err := h.orch.Rooms.Get(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rs.Snapshot().Public())
}

func (h *handlers) getStats(c *gin.Context) {
	name, err := domain.NormalizePlayerName(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	st, err := h.stats.Stats(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) getSession(c *gin.Context) {
	name, _ := sessions.Default(c).Get(sessionName).(string)
	c.JSON(http.StatusOK, gin.H{"playerName": name})
}

func (h *handlers) setSession(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ErrBadRequest)
		return
	}
	name, err := domain.NormalizePlayerName(req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	sess := sessions.Default(c)
	sess.Set(sessionName, name)
	if err := sess.Save(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"playerName": name})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRoomFull), errors.Is(err, domain.ErrInvalidGameState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	code, msg := domain.ErrorCode(err)
	c.JSON(status, gin.H{"code": code, "message": msg})
}
