package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionPing   Action = "ping"
)

// AnswerRequest autosaves the latest answer for one question. Seq is echoed
// back so the client can match acknowledgements.
type AnswerRequest struct {
	Action Action `json:"action"`
	Seq    int64  `json:"seq,omitempty"`
	Index  int    `json:"index"`
	Answer string `json:"answer"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSaved Event = "saved"
	EventError Event = "error"
	EventPong  Event = "pong"
)

type SavedResponse struct {
	Event Event `json:"event"`
	Seq   int64 `json:"seq,omitempty"`
	Index int   `json:"index"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Seq   int64  `json:"seq,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// ServerMessage is the union of every server event, used for decoding.
type ServerMessage struct {
	Event Event  `json:"event"`
	Seq   int64  `json:"seq,omitempty"`
	Index int    `json:"index,omitempty"`
	Error string `json:"error,omitempty"`
}
