package websocket

import "github.com/prepware/examhall-backend/internal/exam"

// Wire event names not covered by the exam runtime's own event set.
const (
	EventError = "error"
	EventPong  = "pong"
)

// Envelope is the outbound frame: every runtime event travels as-is, so
// the wire type is just the runtime's event shape.
type Envelope = exam.Event

// ClientMessage is the inbound frame from the student client. Ping is
// handled at the socket layer; everything else is forwarded to the
// session runtime as an action.
type ClientMessage struct {
	Type     string `json:"type"`
	QID      string `json:"q_id,omitempty"`
	Answer   string `json:"answer,omitempty"`
	Complete bool   `json:"complete,omitempty"`
	Enter    bool   `json:"enter,omitempty"`
}

// Action converts an inbound frame into a runtime action.
func (m ClientMessage) Action() exam.Action {
	return exam.Action{
		Type:     m.Type,
		QID:      m.QID,
		Answer:   m.Answer,
		Complete: m.Complete,
		Enter:    m.Enter,
	}
}

// ErrorResponse is the typed error frame.
type ErrorResponse struct {
	Event string `json:"type"`
	Error string `json:"error"`
}

// PongResponse answers a client keepalive.
type PongResponse struct {
	Event string `json:"type"`
}
