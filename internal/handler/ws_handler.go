package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hirepath/assess-backend/internal/config"
	"github.com/hirepath/assess-backend/internal/middleware"
	"github.com/hirepath/assess-backend/internal/model"
	"github.com/hirepath/assess-backend/internal/service"
	ws "github.com/hirepath/assess-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams live proctoring events for a session over WebSocket.
type WSHandler struct {
	rdb            *redis.Client
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:            rdb,
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// MonitorStream godoc
// WS /ws/v1/sessions/:session_id/monitor
// Upgrades to WebSocket and forwards the session's violation events as they
// are recorded. Client messages other than pings are ignored.
func (h *WSHandler) MonitorStream(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	// Ownership check happens before the upgrade so the client gets a real
	// HTTP status instead of an immediate close.
	if err := h.sessionService.VerifyOwner(c.Request.Context(), userID, sessionID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", userID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Monitor connected")

	ctx := c.Request.Context()
	sub := h.rdb.Subscribe(ctx, config.CacheKey.SessionMonitorChannel(sessionID.String()))
	defer sub.Close()

	// Reader goroutine: answers pings and unblocks on close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				return
			}
			if msg.Action == ws.ActionPing {
				ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			}
		}
	}()

	events := sub.Channel()
	for {
		select {
		case <-done:
			wsLog.Debug().Msg("Monitor disconnected")
			return
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			var event model.ViolationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				wsLog.Warn().Err(err).Msg("Dropping malformed monitor event")
				continue
			}
			notice := ws.ViolationNotice{
				Event:      ws.EventViolation,
				Type:       string(event.Type),
				RecordedAt: event.RecordedAt.UTC().Format(time.RFC3339),
			}
			if err := ws.WriteTyped(conn, notice); err != nil {
				wsLog.Debug().Err(err).Msg("Monitor write failed, closing")
				return
			}
		}
	}
}
