package session

import (
	"fmt"
	"sync"
	"time"

	"askboard/pkg/interfaces"
	"askboard/pkg/types"
)

// Session is the state behind one shareable code: the teacher slot, the
// student set and the question ledger. All fields are guarded by mu.
// The teacher is never a member of students.
type Session struct {
	code      string
	createdAt time.Time

	mu        sync.Mutex
	teacher   interfaces.Connection
	students  map[string]interfaces.Connection // connection ID -> connection
	questions []types.Question
	seq       uint64
	lastAt    time.Time // SubmittedAt of the most recent append, deleted or not
}

// Snapshot is a point-in-time summary used by health and API endpoints.
type Snapshot struct {
	Code          string    `json:"code"`
	CreatedAt     time.Time `json:"created_at"`
	HasTeacher    bool      `json:"has_teacher"`
	StudentCount  int       `json:"student_count"`
	QuestionCount int       `json:"question_count"`
}

func newSession(code string, createdAt time.Time) *Session {
	return &Session{
		code:      code,
		createdAt: createdAt,
		students:  make(map[string]interfaces.Connection),
	}
}

// Code returns the immutable session code.
func (s *Session) Code() string {
	return s.code
}

// CreatedAt returns when the session was installed in the registry.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Join assigns a role to conn. The first joiner takes the empty teacher
// slot, everyone after that becomes a student. A connection that already
// holds a role keeps it.
func (s *Session) Join(conn interfaces.Connection) types.Role {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := conn.ID()
	if s.teacher != nil && s.teacher.ID() == id {
		return types.RoleTeacher
	}
	if _, ok := s.students[id]; ok {
		return types.RoleStudent
	}

	if s.teacher == nil {
		s.teacher = conn
		return types.RoleTeacher
	}
	s.students[id] = conn
	return types.RoleStudent
}

// Leave removes the connection from whichever role it holds. The teacher
// slot is cleared without promoting a student.
func (s *Session) Leave(connID string) types.Role {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.teacher != nil && s.teacher.ID() == connID {
		s.teacher = nil
		return types.RoleTeacher
	}
	if _, ok := s.students[connID]; ok {
		delete(s.students, connID)
		return types.RoleStudent
	}
	return types.RoleUnassigned
}

// RoleOf returns the role connID holds in this session.
func (s *Session) RoleOf(connID string) types.Role {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.teacher != nil && s.teacher.ID() == connID {
		return types.RoleTeacher
	}
	if _, ok := s.students[connID]; ok {
		return types.RoleStudent
	}
	return types.RoleUnassigned
}

// Teacher returns the current teacher connection or nil.
func (s *Session) Teacher() interfaces.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teacher
}

// Students returns the current student connections in no particular order.
func (s *Session) Students() []interfaces.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	students := make([]interfaces.Connection, 0, len(s.students))
	for _, conn := range s.students {
		students = append(students, conn)
	}
	return students
}

// Submit appends an already validated question to the ledger and returns
// it. Ids come from a per-session counter so back-to-back submissions in
// the same clock tick never collide. SubmittedAt never goes backwards
// relative to the previous submission, even one since deleted.
func (s *Session) Submit(text string, now time.Time) (types.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Before(s.lastAt) {
		now = s.lastAt
	}

	s.seq++
	q := types.Question{
		ID:          fmt.Sprintf("question-%d", s.seq),
		Text:        text,
		SubmittedAt: now,
	}
	for _, existing := range s.questions {
		if existing.ID == q.ID {
			return types.Question{}, fmt.Errorf("%w: %s", ErrDuplicateQuestionID, q.ID)
		}
	}

	s.questions = append(s.questions, q)
	s.lastAt = now
	return q, nil
}

// Delete removes the question with the given id, keeping the order of the
// rest. It reports false when no such question exists.
func (s *Session) Delete(id string) (types.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, q := range s.questions {
		if q.ID == id {
			s.questions = append(s.questions[:i:i], s.questions[i+1:]...)
			return q, true
		}
	}
	return types.Question{}, false
}

// Questions returns a copy of the ledger in display order.
func (s *Session) Questions() []types.Question {
	s.mu.Lock()
	defer s.mu.Unlock()

	questions := make([]types.Question, len(s.questions))
	copy(questions, s.questions)
	return questions
}

// Snapshot summarizes the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Code:          s.code,
		CreatedAt:     s.createdAt,
		HasTeacher:    s.teacher != nil,
		StudentCount:  len(s.students),
		QuestionCount: len(s.questions),
	}
}
