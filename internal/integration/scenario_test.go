package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"askboard/internal/config"
	"askboard/internal/database"
	dbconfig "askboard/pkg/database"
	"askboard/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassroomScenario(t *testing.T) {
	srv := startServer(t, nil)
	code := srv.generateCode(t)

	teacher := Dial(t, srv.baseURL)
	student := Dial(t, srv.baseURL)

	exists, _ := student.CheckSession(code)
	require.True(t, exists)

	teacher.Join(code)
	student.Join(code)

	// clean question reaches the teacher only
	student.Submit(code, "What is recursion?")
	q := questionOf(t, teacher.ReceiveEvent(types.EventNewQuestion))
	assert.Equal(t, "question-1", q.ID)
	assert.Equal(t, "What is recursion?", q.Text)
	assert.Empty(t, student.Sync())

	// blacklisted question is dropped silently
	student.Submit(code, "this is spam-word")
	assert.Empty(t, student.Sync())
	assert.Empty(t, teacher.Sync())

	qs := srv.questions(t, code)
	require.Len(t, qs, 1)
	assert.Equal(t, "question-1", qs[0].ID)

	// teacher removes it
	teacher.Delete(code, "question-1")
	removed := teacher.ReceiveEvent(types.EventRemoveQuestion)
	var removedID string
	require.NoError(t, json.Unmarshal(removed.Data, &removedID))
	assert.Equal(t, "question-1", removedID)
	assert.Empty(t, student.Sync())
	assert.Empty(t, srv.questions(t, code))

	// teacher leaves; the next joiner takes the slot, not the waiting student
	teacher.Close()
	require.Eventually(t, func() bool { return srv.liveConnections(t) == 1 }, waitTimeout, 10*time.Millisecond)

	newcomer := Dial(t, srv.baseURL)
	newcomer.Join(code)

	student.Submit(code, "Is anyone there?")
	q = questionOf(t, newcomer.ReceiveEvent(types.EventNewQuestion))
	assert.Equal(t, "question-2", q.ID)
	assert.Empty(t, student.Sync())

	// the audit trail saw every decision
	srv.stop()
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = srv.auditPath
	m, err := database.NewManager(cfg, database.Options{})
	require.NoError(t, err)
	defer m.Close()

	events, err := m.ListEvents(context.Background(), code)
	require.NoError(t, err)
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []string{
		types.AuditSessionCreated,
		types.AuditQuestionAccepted,
		types.AuditQuestionBlocked,
		types.AuditQuestionDeleted,
		types.AuditQuestionAccepted,
	}, kinds)
}

func TestJoinUnknownSession(t *testing.T) {
	srv := startServer(t, nil)

	client := Dial(t, srv.baseURL)
	exists, _ := client.CheckSession("nosuch")
	assert.False(t, exists)

	// joining and submitting to an unknown code produce nothing
	client.Emit(types.EventJoinSession, types.CodeRequest{Code: "nosuch"})
	client.Submit("nosuch", "hello?")
	assert.Empty(t, client.Sync())
}

func TestSubmitWithoutTeacher(t *testing.T) {
	srv := startServer(t, nil)
	code := srv.generateCode(t)

	resp, _ := srv.postJSON(t, "/api/submit", map[string]string{"code": code, "question": "Anyone?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the question is kept even though nobody heard about it
	qs := srv.questions(t, code)
	require.Len(t, qs, 1)
	assert.Equal(t, "Anyone?", qs[0].Text)

	// a teacher joining later is not told about it by default
	teacher := Dial(t, srv.baseURL)
	teacher.Join(code)
	assert.Empty(t, teacher.Sync())
}

func TestRESTSubmissionReachesTeacher(t *testing.T) {
	srv := startServer(t, nil)
	code := srv.generateCode(t)

	teacher := Dial(t, srv.baseURL)
	teacher.Join(code)

	resp, _ := srv.postJSON(t, "/api/submit", map[string]string{"code": code, "question": "Via REST"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	q := questionOf(t, teacher.ReceiveEvent(types.EventNewQuestion))
	assert.Equal(t, "Via REST", q.Text)

	resp, _ = srv.postJSON(t, "/api/submit", map[string]string{"code": code, "question": "so much BADWORD"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Empty(t, teacher.Sync())
}

func TestReconnectingTeacherGetsBacklog(t *testing.T) {
	srv := startServer(t, func(cfg *config.Config) {
		cfg.Broadcast.ReplayBacklog = true
		cfg.Broadcast.AckSubmitter = true
		cfg.Broadcast.RemovalAudience = "everyone"
	})
	code := srv.generateCode(t)

	first := Dial(t, srv.baseURL)
	first.Emit(types.EventJoinSession, types.CodeRequest{Code: code})
	assert.Empty(t, first.Sync())

	asker := Dial(t, srv.baseURL)
	asker.Join(code)
	asker.Submit(code, "First")
	asker.Submit(code, "Second")

	acks := asker.Sync()
	require.Len(t, acks, 2)
	assert.Equal(t, types.EventQuestionAccepted, acks[0].Event)
	assert.Equal(t, "question-1", questionOf(t, acks[0]).ID)

	require.Len(t, first.Sync(), 2)

	first.Close()
	require.Eventually(t, func() bool { return srv.liveConnections(t) == 1 }, waitTimeout, 10*time.Millisecond)

	teacher := Dial(t, srv.baseURL)
	teacher.Emit(types.EventJoinSession, types.CodeRequest{Code: code})
	backlog := teacher.Sync()
	require.Len(t, backlog, 2)
	assert.Equal(t, "First", questionOf(t, backlog[0]).Text)
	assert.Equal(t, "Second", questionOf(t, backlog[1]).Text)

	// removals go to everyone under this policy
	teacher.Delete(code, "question-1")
	teacher.ReceiveEvent(types.EventRemoveQuestion)
	asker.ReceiveEvent(types.EventRemoveQuestion)
}

func TestAuditDisabled(t *testing.T) {
	srv := startServer(t, func(cfg *config.Config) {
		cfg.Audit.Enabled = false
		cfg.Audit.Path = filepath.Join(t.TempDir(), "unused.db")
	})

	resp, err := http.Get(srv.baseURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
