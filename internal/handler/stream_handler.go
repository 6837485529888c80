package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizguard/internal/middleware"
	"github.com/stemsi/quizguard/internal/model"
	"github.com/stemsi/quizguard/internal/response"
	"github.com/stemsi/quizguard/internal/service"
	ws "github.com/stemsi/quizguard/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
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

// AnswerSaver persists autosaved answers.
type AnswerSaver interface {
	SaveAnswer(ctx context.Context, attempt *model.Attempt, index int, answer string) error
}

// StreamHandler serves the websocket autosave stream.
type StreamHandler struct {
	answers  AnswerSaver
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(answers AnswerSaver, log zerolog.Logger, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		answers:  answers,
		log:      log.With().Str("component", "stream_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempt/:token/stream?attempt=<attemptId>
// Acknowledges each autosaved answer with a saved or error event.
func (h *StreamHandler) AttemptStream(c *gin.Context) {
	attempt := middleware.GetAttempt(c)
	if attempt == nil || attempt.InvitationToken != c.Param("token") {
		response.Fail(c, http.StatusForbidden, response.ErrInvalidAttemptToken)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("attempt_id", attempt.ID.String()).Logger()
	wsLog.Info().Msg("Autosave stream connected")

	for {
		var msg ws.AnswerRequest
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(c.Request.Context(), conn, wsLog, attempt, &msg)
		case ws.ActionPing:
			_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = ws.WriteError(conn, msg.Seq, "unknown action: "+string(msg.Action))
		}
	}
}

func (h *StreamHandler) handleAnswer(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, attempt *model.Attempt, msg *ws.AnswerRequest) {
	err := h.answers.SaveAnswer(ctx, attempt, msg.Index, msg.Answer)
	switch {
	case err == nil:
		_ = ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Seq: msg.Seq, Index: msg.Index})
	case errors.Is(err, service.ErrAnswerOutOfRange):
		_ = ws.WriteError(conn, msg.Seq, "answer index out of range")
	default:
		log.Error().Err(err).Int("index", msg.Index).Msg("Autosave failed")
		_ = ws.WriteError(conn, msg.Seq, "save failed")
	}
}
