package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/quizguard/internal/model"
	"github.com/stemsi/quizguard/internal/proctor"
	"github.com/stemsi/quizguard/internal/response"
	ws "github.com/stemsi/quizguard/internal/websocket"
)

const invitation = "inv-0123456789"

func writeEnvelope(w http.ResponseWriter, status int, data interface{}, body *response.ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response.Response{
		Data:     data,
		Error:    body,
		Metadata: response.Metadata{RequestID: "req-1"},
	})
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, invitation)
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsUnsupportedScheme(t *testing.T) {
	_, err := NewClient("ftp://example.com", invitation)
	assert.Error(t, err)
}

func TestLoad_DecodesViewAndRemembersAttempt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/attempt/"+invitation, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeEnvelope(w, http.StatusOK, model.AttemptView{
			HasStarted:   true,
			AttemptID:    "att-jwt",
			WarningCount: 2,
			Answers:      map[int]string{0: "B"},
		}, nil)
	})
	c := newTestClient(t, mux)

	view, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, view.HasStarted)
	assert.Equal(t, 2, view.WarningCount)
	assert.Equal(t, "B", view.Answers[0])
	assert.Equal(t, "att-jwt", c.AttemptID())
}

func TestLoad_NotFoundIsAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/attempt/"+invitation, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, nil, &response.ErrorBody{
			Code: response.ErrInvalidInvitation, Message: "not found",
		})
	})
	c := newTestClient(t, mux)

	_, err := c.Load(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, response.ErrInvalidInvitation, apiErr.Code)
}

func TestStart_SendsTokenAndIdentity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/attempt/start", func(w http.ResponseWriter, r *http.Request) {
		var req model.StartAttemptRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, invitation, req.Token)
		assert.Equal(t, "Ada", req.StudentInfo.Name)
		writeEnvelope(w, http.StatusCreated, model.StartAttemptResponse{
			AttemptID: "att-new", DurationSeconds: 600,
		}, nil)
	})
	c := newTestClient(t, mux)

	resp, err := c.Start(context.Background(), model.StudentInfo{Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, 600, resp.DurationSeconds)
	assert.Equal(t, "att-new", c.AttemptID())
}

func TestStart_ClientErrorBecomesValidationError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/attempt/start", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, nil, &response.ErrorBody{
			Code:    response.ErrValidation,
			Message: "invalid",
			Fields:  map[string]string{"email": "email must be a valid email address"},
		})
	})
	c := newTestClient(t, mux)

	_, err := c.Start(context.Background(), model.StudentInfo{})
	var ve *proctor.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "email")
}

func TestStart_ConflictWithoutFieldsCarriesMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/attempt/start", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, nil, &response.ErrorBody{
			Code: response.ErrAlreadySubmitted, Message: "already submitted",
		})
	})
	c := newTestClient(t, mux)

	_, err := c.Start(context.Background(), model.StudentInfo{})
	var ve *proctor.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "already submitted", ve.Fields["detail"])
}

func TestStart_ServerErrorIsNotValidation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/attempt/start", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusInternalServerError, nil, &response.ErrorBody{Code: response.ErrInternal})
	})
	c := newTestClient(t, mux)

	_, err := c.Start(context.Background(), model.StudentInfo{})
	var ve *proctor.ValidationError
	require.Error(t, err)
	assert.False(t, errors.As(err, &ve))
}

func TestFlag_SwallowsFailures(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/attempt/flag", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req model.FlagRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tab-switch", req.Reason)
		writeEnvelope(w, http.StatusServiceUnavailable, nil, nil)
	})
	c := newTestClient(t, mux)

	c.Flag(context.Background(), "tab-switch")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmit_ReturnsResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/attempt/submit", func(w http.ResponseWriter, r *http.Request) {
		var req model.SubmitRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "att-1", req.AttemptID)
		assert.Equal(t, "A", req.Answers[1])
		writeEnvelope(w, http.StatusOK, model.SubmitResult{TotalMarks: 3, MaxMarks: 4, Percentage: 75}, nil)
	})
	c := newTestClient(t, mux)

	res, err := c.Submit(context.Background(), "att-1", map[int]string{1: "A"})
	require.NoError(t, err)
	assert.InDelta(t, 75.0, res.Percentage, 0.001)
}

func TestSubmit_FailureIsSubmissionError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/attempt/submit", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, nil, &response.ErrorBody{Code: response.ErrSubmitInProgress})
	})
	c := newTestClient(t, mux)

	_, err := c.Submit(context.Background(), "att-1", nil)
	var se *proctor.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.StatusCode)
}

func TestSubmit_TransportFailureHasNoStatus(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", invitation)
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), "att-1", nil)
	var se *proctor.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Zero(t, se.StatusCode)
}

func TestAutosaver_RequiresAttempt(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", invitation)
	require.NoError(t, err)

	err = NewAutosaver(c).SaveAnswer(context.Background(), 0, "A")
	assert.ErrorIs(t, err, ErrNoAttempt)
}

func TestAutosaver_WaitsForMatchingAck(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotAuth atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/v1/attempt/"+invitation+"/stream", func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg ws.AnswerRequest
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			// A stale ack first, then the real one.
			_ = conn.WriteJSON(ws.SavedResponse{Event: ws.EventSaved, Seq: msg.Seq + 100})
			if msg.Index < 0 {
				_ = conn.WriteJSON(ws.ErrorResponse{Event: ws.EventError, Seq: msg.Seq, Error: "answer index out of range"})
				continue
			}
			_ = conn.WriteJSON(ws.SavedResponse{Event: ws.EventSaved, Seq: msg.Seq, Index: msg.Index})
		}
	})
	c := newTestClient(t, mux)
	c.setAttemptID("att-jwt")

	saver := NewAutosaver(c)
	defer saver.Close()

	require.NoError(t, saver.SaveAnswer(context.Background(), 2, "C"))
	require.NoError(t, saver.SaveAnswer(context.Background(), 3, "D"))
	assert.Equal(t, "Bearer att-jwt", gotAuth.Load())

	err := saver.SaveAnswer(context.Background(), -1, "X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestStreamURL_UsesWebsocketScheme(t *testing.T) {
	c, err := NewClient("https://quiz.example.com/base/", invitation)
	require.NoError(t, err)
	assert.Equal(t, "wss://quiz.example.com/base/ws/v1/attempt/"+invitation+"/stream", c.streamURL())
}
