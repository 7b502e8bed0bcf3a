package router

import (
	"context"
	"errors"
	"testing"

	"askboard/internal/common/clock"
	"askboard/internal/session"
	"askboard/internal/testutil"
	"askboard/pkg/interfaces/mocks"
	"askboard/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMockedRouter(t *testing.T, ctrl *gomock.Controller) (*Router, *session.Session, *mocks.MockContentFilter, *mocks.MockAuditLog) {
	t.Helper()

	reg, err := session.NewRegistry(&session.Config{
		Codes: testutil.NewSequenceCodes("abc123"),
	})
	require.NoError(t, err)

	f := mocks.NewMockContentFilter(ctrl)
	audit := mocks.NewMockAuditLog(ctrl)

	r, err := NewRouter(&Config{
		Registry: reg,
		Filter:   f,
		Audit:    audit,
		Clock:    clock.Fixed{At: testNow},
	})
	require.NoError(t, err)

	s, err := reg.Create(context.Background())
	require.NoError(t, err)
	return r, s, f, audit
}

func TestRouter_SubmitSurvivesFailedDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, s, f, audit := newMockedRouter(t, ctrl)

	teacher := mocks.NewMockConnection(ctrl)
	teacher.EXPECT().ID().Return("T").AnyTimes()
	teacher.EXPECT().
		Send(types.EventNewQuestion, gomock.Any()).
		Return(errors.New("send buffer full"))

	f.EXPECT().IsBlocked("What is a closure?").Return(false)
	audit.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, e *types.AuditEvent) {
			assert.Equal(t, types.AuditQuestionAccepted, e.Kind)
			assert.Equal(t, "abc123", e.SessionCode)
		})

	role, err := r.Join(context.Background(), teacher, s.Code())
	require.NoError(t, err)
	assert.Equal(t, types.RoleTeacher, role)

	q, err := r.Submit(context.Background(), nil, s.Code(), "  What is a closure?  ")
	require.NoError(t, err)
	assert.Equal(t, "What is a closure?", q.Text)
	assert.Len(t, s.Questions(), 1)
}

func TestRouter_BlockedQuestionNeverReachesTeacher(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, s, f, audit := newMockedRouter(t, ctrl)

	// No Send expectation: any delivery fails the test.
	teacher := mocks.NewMockConnection(ctrl)
	teacher.EXPECT().ID().Return("T").AnyTimes()

	f.EXPECT().IsBlocked(gomock.Any()).Return(true)
	audit.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, e *types.AuditEvent) {
			assert.Equal(t, types.AuditQuestionBlocked, e.Kind)
		})

	_, err := r.Join(context.Background(), teacher, s.Code())
	require.NoError(t, err)

	_, err = r.Submit(context.Background(), nil, s.Code(), "buy now")
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Empty(t, s.Questions())
}

func TestRouter_CheckSessionAckFailureIsNotAnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, s, _, _ := newMockedRouter(t, ctrl)

	ack := int64(7)
	conn := mocks.NewMockConnection(ctrl)
	conn.EXPECT().ID().Return("C").AnyTimes()
	conn.EXPECT().
		Send(types.EventAck, types.AckPayload{Ack: &ack, Result: true}).
		Return(errors.New("connection closed"))

	err := r.Dispatch(context.Background(), conn, &types.Envelope{
		Event: types.EventCheckSession,
		Data:  []byte(`{"code":"` + s.Code() + `"}`),
		Ack:   &ack,
	})
	assert.NoError(t, err)
}
