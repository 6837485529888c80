package attempt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	ws "github.com/stemsi/quizguard/internal/websocket"
)

// ErrNoAttempt is returned by SaveAnswer before the attempt has started.
var ErrNoAttempt = errors.New("attempt not started")

const ackWait = 10 * time.Second

// Autosaver streams answers over one websocket and waits for each ack. It
// redials after any failure.
type Autosaver struct {
	client *Client
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	seq  int64
}

// NewAutosaver creates an Autosaver bound to client's invitation.
func NewAutosaver(client *Client) *Autosaver {
	return &Autosaver{
		client: client,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    client.log.With().Str("component", "autosave").Logger(),
	}
}

// SaveAnswer sends one answer and blocks until the server confirms it.
func (a *Autosaver) SaveAnswer(ctx context.Context, index int, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}

	a.seq++
	seq := a.seq
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteJSON(ws.AnswerRequest{Action: ws.ActionAnswer, Seq: seq, Index: index, Answer: text}); err != nil {
		a.reset()
		return fmt.Errorf("send answer: %w", err)
	}

	deadline := time.Now().Add(ackWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	for {
		var msg ws.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			a.reset()
			return fmt.Errorf("await ack: %w", err)
		}
		if msg.Seq != seq {
			continue
		}
		switch msg.Event {
		case ws.EventSaved:
			return nil
		case ws.EventError:
			return fmt.Errorf("answer %d rejected: %s", index, msg.Error)
		}
	}
}

// Close shuts the stream down.
func (a *Autosaver) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	_ = a.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := a.conn.Close()
	a.conn = nil
	return err
}

func (a *Autosaver) connect(ctx context.Context) (*websocket.Conn, error) {
	if a.conn != nil {
		return a.conn, nil
	}
	attemptID := a.client.AttemptID()
	if attemptID == "" {
		return nil, ErrNoAttempt
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+attemptID)
	conn, resp, err := a.dialer.DialContext(ctx, a.client.streamURL(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial stream: http %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	a.log.Debug().Msg("Autosave stream connected")
	a.conn = conn
	return conn, nil
}

func (a *Autosaver) reset() {
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}
