package router

import (
	"askboard/internal/session"
	"askboard/pkg/interfaces"
)

// Audience selects which members of a session receive a notification.
type Audience string

const (
	AudienceTeacher  Audience = "teacher"
	AudienceStudents Audience = "students"
	AudienceEveryone Audience = "everyone"
	AudienceNone     Audience = "none"
)

// Policy is the single place deciding who hears about what.
type Policy struct {
	NewQuestion     Audience `json:"new_question"`
	QuestionRemoved Audience `json:"question_removed"`

	// AckSubmitter sends question-accepted back to the submitting connection.
	AckSubmitter bool `json:"ack_submitter"`

	// ReplayBacklog sends the current ledger to a connection when it
	// becomes teacher.
	ReplayBacklog bool `json:"replay_backlog"`
}

// DefaultPolicy delivers both notifications to the teacher only, with no
// submitter ack and no backlog replay.
func DefaultPolicy() Policy {
	return Policy{
		NewQuestion:     AudienceTeacher,
		QuestionRemoved: AudienceTeacher,
	}
}

// Validate rejects unknown audiences.
func (p Policy) Validate() error {
	for _, a := range []Audience{p.NewQuestion, p.QuestionRemoved} {
		if !a.valid() {
			return ErrInvalidAudience
		}
	}
	return nil
}

func (a Audience) valid() bool {
	switch a {
	case AudienceTeacher, AudienceStudents, AudienceEveryone, AudienceNone:
		return true
	default:
		return false
	}
}

// recipients resolves an audience against the current session membership.
// An empty teacher slot yields no teacher recipient.
func recipients(s *session.Session, a Audience) []interfaces.Connection {
	var conns []interfaces.Connection
	switch a {
	case AudienceTeacher:
		if t := s.Teacher(); t != nil {
			conns = append(conns, t)
		}
	case AudienceStudents:
		conns = s.Students()
	case AudienceEveryone:
		if t := s.Teacher(); t != nil {
			conns = append(conns, t)
		}
		conns = append(conns, s.Students()...)
	}
	return conns
}
