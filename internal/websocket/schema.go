package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventViolation Event = "violation"
	EventPong      Event = "pong"
)

// ViolationNotice is pushed whenever a violation is recorded against the
// monitored session.
type ViolationNotice struct {
	Event      Event  `json:"event"`
	Type       string `json:"type"`
	RecordedAt string `json:"recorded_at"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
