package types

import (
	"encoding/json"
	"time"
)

// Real-time event names. Client events arrive inside an Envelope,
// server events are pushed to connections with the same envelope shape.
const (
	EventCheckSession   = "check-session"
	EventJoinSession    = "join-session"
	EventSubmitQuestion = "submit-question"
	EventDeleteQuestion = "delete-question"

	EventNewQuestion      = "new-question"
	EventRemoveQuestion   = "remove-question"
	EventQuestionAccepted = "question-accepted"
	EventAck              = "ack"
)

// Role of a connection inside one session.
type Role string

const (
	RoleUnassigned Role = ""
	RoleTeacher    Role = "teacher"
	RoleStudent    Role = "student"
)

// Envelope is the frame a client sends over the real-time channel.
// Ack is set on events that expect a callback; the server echoes it back
// inside an "ack" frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *int64          `json:"ack,omitempty"`
}

// OutboundEnvelope is the server side frame. Data is marshalled as-is.
type OutboundEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// AckPayload answers an event that carried an ack id, such as
// check-session.
type AckPayload struct {
	Ack    *int64      `json:"ack,omitempty"`
	Result interface{} `json:"result"`
}

// Question is one accepted entry of a session ledger.
type Question struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// QuestionPayload is what the teacher receives on new-question.
type QuestionPayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Payload returns the broadcast form of the question.
func (q Question) Payload() QuestionPayload {
	return QuestionPayload{ID: q.ID, Text: q.Text}
}

// CodeRequest carries the session code for check-session and join-session.
type CodeRequest struct {
	Code string `json:"code"`
}

// SubmitRequest is the submit-question payload.
type SubmitRequest struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// DeleteRequest is the delete-question payload.
type DeleteRequest struct {
	Code       string `json:"code"`
	QuestionID string `json:"question_id"`
}

// Audit event kinds written to the moderation log.
const (
	AuditSessionCreated   = "session_created"
	AuditQuestionAccepted = "question_accepted"
	AuditQuestionBlocked  = "question_blocked"
	AuditQuestionDeleted  = "question_deleted"
)

// AuditEvent is one row of the moderation log.
type AuditEvent struct {
	ID           int64     `json:"id" db:"id"`
	SessionCode  string    `json:"session_code" db:"session_code"`
	Kind         string    `json:"kind" db:"kind"`
	QuestionID   string    `json:"question_id,omitempty" db:"question_id"`
	Text         string    `json:"text,omitempty" db:"text"`
	ConnectionID string    `json:"connection_id,omitempty" db:"connection_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
