package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/middleware"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/response"
	"github.com/toanlab/lms-backend/internal/service"
	ws "github.com/toanlab/lms-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
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

// WSHandler streams attempt events and accepts attempt actions over WebSocket.
type WSHandler struct {
	quizService *service.QuizService
	events      *service.AttemptEventBus
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(quizService *service.QuizService, events *service.AttemptEventBus, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		quizService: quizService,
		events:      events,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:id/stream
// Upgrades to WebSocket for answer actions and live attempt events.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Ownership is checked before the upgrade so failures surface as HTTP errors.
	if err := h.quizService.Owns(session, attemptID); err != nil {
		failWithError(c, h.log, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", session.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := h.events.Subscribe(ctx, attemptID)
	defer sub.Close()
	go h.forward(ctx, cancel, conn, sub.Channel(), wsLog)

	if snap, err := h.quizService.Snapshot(session, attemptID); err == nil {
		_ = conn.WriteTyped(ws.SnapshotResponse{Event: ws.EventSnapshot, Attempt: snap})
	}

	wsLog.Info().Msg("Attempt stream connected")

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		h.dispatch(ctx, conn, session, attemptID, &msg, wsLog)
	}
}

// dispatch runs one client action against the attempt.
func (h *WSHandler) dispatch(ctx context.Context, conn *ws.Conn, session model.SessionHandle, id uuid.UUID, msg *ws.RequestPayload, log zerolog.Logger) {
	var (
		reply any
		err   error
	)

	switch msg.Action {
	case ws.ActionSelectAnswer:
		var ans model.Answer
		ans, err = h.quizService.SelectAnswer(ctx, session, id, msg.Index, msg.Value)
		reply = ws.SavedResponse{Event: ws.EventSaved, Index: msg.Index, Answer: ans}
	case ws.ActionUpdatePart:
		var ans model.Answer
		ans, err = h.quizService.UpdatePart(ctx, session, id, msg.Index, msg.Part, msg.Mark)
		reply = ws.SavedResponse{Event: ws.EventSaved, Index: msg.Index, Answer: ans}
	case ws.ActionNext, ws.ActionPrevious:
		delta := 1
		if msg.Action == ws.ActionPrevious {
			delta = -1
		}
		var idx int
		idx, err = h.quizService.Move(session, id, delta)
		reply = ws.MovedResponse{Event: ws.EventMoved, CurrentIndex: idx}
	case ws.ActionVisibility:
		var snap model.AttemptSnapshot
		snap, err = h.quizService.Visibility(ctx, session, id, msg.Hidden)
		reply = ws.SnapshotResponse{Event: ws.EventSnapshot, Attempt: snap}
	case ws.ActionFinish:
		var res model.QuizResult
		res, err = h.quizService.Finish(ctx, session, id)
		reply = ws.ResultResponse{Event: ws.EventResult, Result: res}
	case ws.ActionPing:
		reply = ws.PongResponse{Event: ws.EventPong}
	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		return
	}

	if err != nil {
		_, code, known := errorStatus(err)
		if !known {
			log.Error().Err(err).Str("action", string(msg.Action)).Msg("Action failed")
		}
		_ = conn.WriteError(string(code), response.GetMessage(code))
		return
	}
	_ = conn.WriteTyped(reply)
}

// forward relays published attempt events until the session is logged out
// or the client goes away. Closing the connection unblocks the read loop.
func (h *WSHandler) forward(ctx context.Context, cancel context.CancelFunc, conn *ws.Conn, ch <-chan *redis.Message, log zerolog.Logger) {
	defer func() {
		cancel()
		_ = conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteTyped(ws.AttemptEventResponse{Event: ws.EventAttempt, Data: json.RawMessage(m.Payload)}); err != nil {
				log.Debug().Err(err).Msg("Event forward failed")
				return
			}

			var ev model.AttemptEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				continue
			}
			if ev.Type == model.EventForcedLogout {
				_ = conn.CloseNormal(string(ev.Type))
				return
			}
		}
	}
}
