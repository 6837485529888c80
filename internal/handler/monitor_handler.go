package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizguard/internal/config"
	"github.com/stemsi/quizguard/internal/response"
	"github.com/stemsi/quizguard/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second
)

// Snapshotter builds the full monitor state of a quiz.
type Snapshotter interface {
	GetSnapshot(ctx context.Context, quizID uuid.UUID) (*service.Snapshot, error)
}

// Subscriber opens a pubsub subscription. *redis.Client satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// MonitorHandler gives proctors a live view of a quiz's attempts.
type MonitorHandler struct {
	pubsub   Subscriber
	monitors Snapshotter
	log      zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(pubsub Subscriber, monitors Snapshotter, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		pubsub:   pubsub,
		monitors: monitors,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

// GetSnapshot godoc
// GET /api/v1/monitor/quizzes/:quiz_id
func (h *MonitorHandler) GetSnapshot(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	snap, err := h.monitors.GetSnapshot(c.Request.Context(), quizID)
	if err != nil {
		h.log.Error().Err(err).Str("quiz_id", quizID.String()).Msg("Snapshot failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// StreamQuiz godoc
// GET /api/v1/monitor/quizzes/:quiz_id/stream
// Server-sent events: an initial snapshot, then every started/flagged/submitted
// event as it is published, with periodic refresh snapshots.
func (h *MonitorHandler) StreamQuiz(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, quizID)

	sub := h.pubsub.Subscribe(reqCtx, config.CacheKey.QuizMonitorChannel(quizID.String()))
	defer sub.Close()
	ch := sub.Channel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()

	// Skip refresh queries until something has happened on the quiz.
	dirty := false
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("quiz_id", quizID.String()).Msg("Proctor attached to monitor stream")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("quiz_id", quizID.String()).Msg("Proctor detached from monitor stream")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(c, []byte(msg.Payload))
			dirty = true

		case <-refresh.C:
			if !dirty {
				continue
			}
			dirty = false
			h.sendSnapshot(c, reqCtx, quizID)

		case <-keepAlive.C:
			writeSSE(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, quizID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitors.GetSnapshot(ctx, quizID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to build monitor snapshot")
		return
	}
	data, _ := json.Marshal(snap)
	writeSSE(c, data)
}

// writeSSE forwards a raw JSON payload as one data event.
func writeSSE(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
