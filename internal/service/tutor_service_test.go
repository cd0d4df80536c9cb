package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/model"
	"studybuddy-backend/internal/session"
	"studybuddy-backend/internal/subject"
	"studybuddy-backend/internal/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, scripts ...model.Script) (*TutorService, *model.ScriptedChatModel, *session.Factory) {
	t.Helper()
	m := model.NewScriptedChatModel(scripts...)
	f := session.NewFactoryWithModel(context.Background(), m, "scripted")
	return NewTutorService(f, Options{}), m, f
}

func waitDone(t *testing.T, ex *Exchange) {
	t.Helper()
	select {
	case <-ex.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("exchange %s did not finish", ex.ID)
	}
}

type nilFactory struct{}

func (nilFactory) Create(string) *session.Session { return nil }

func TestNewTutorService_StartsWithWelcome(t *testing.T) {
	svc, _, f := newTestService(t)

	msgs := svc.Snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, WelcomeMessageID, msgs[0].ID)
	assert.Equal(t, transcript.RoleModel, msgs[0].Role)
	assert.Equal(t, config.DefaultWelcomeMessage, msgs[0].Text)
	assert.False(t, msgs[0].IsStreaming)

	assert.Equal(t, subject.General, svc.Subject())
	assert.Equal(t, StateIdle, svc.State())
	assert.False(t, svc.Busy())
	assert.Equal(t, 1, svc.SessionsCreated())
	assert.EqualValues(t, 1, f.Created())
	assert.NotEmpty(t, svc.SessionID())
	assert.Equal(t, "Ask a general question...", svc.Placeholder())
}

func TestSubmit_AppendsUserAndPlaceholderBeforeStreaming(t *testing.T) {
	gate := make(chan struct{})
	svc, _, _ := newTestService(t, model.Script{Fragments: []string{"4"}, Gate: gate})

	ex, err := svc.Submit(context.Background(), "  2+2=?  ")
	require.NoError(t, err)

	msgs := svc.Snapshot()
	require.Len(t, msgs, 3)
	assert.Equal(t, WelcomeMessageID, msgs[0].ID)

	assert.Equal(t, ex.UserMessageID, msgs[1].ID)
	assert.Equal(t, transcript.RoleUser, msgs[1].Role)
	assert.Equal(t, "2+2=?", msgs[1].Text)
	assert.False(t, msgs[1].IsStreaming)

	assert.Equal(t, ex.ModelMessageID, msgs[2].ID)
	assert.Equal(t, transcript.RoleModel, msgs[2].Role)
	assert.Equal(t, "", msgs[2].Text)
	assert.True(t, msgs[2].IsStreaming)
	assert.NotEqual(t, msgs[1].ID, msgs[2].ID)

	assert.True(t, svc.Busy())
	assert.Equal(t, StateAwaitingFirstFragment, svc.State())

	close(gate)
	waitDone(t, ex)
}

func TestSubmit_FragmentsConcatenateInOrder(t *testing.T) {
	svc, _, _ := newTestService(t, model.Script{Fragments: []string{"4", " equals", " 4."}})

	ex, err := svc.Submit(context.Background(), "2+2=?")
	require.NoError(t, err)
	waitDone(t, ex)

	msg, ok := svc.Message(ex.ModelMessageID)
	require.True(t, ok)
	assert.Equal(t, "4 equals 4.", msg.Text)
	assert.False(t, msg.IsStreaming)

	assert.NoError(t, ex.Err())
	assert.Equal(t, 3, ex.Fragments())
	assert.Equal(t, StateFinalized, ex.State())
	assert.Equal(t, []State{StateAwaitingFirstFragment, StateStreaming, StateFinalized}, ex.Transitions())
	assert.False(t, svc.Busy())
	assert.Equal(t, StateIdle, svc.State())
}

func TestSubmit_RandomFragmentSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		n := 1 + rng.Intn(12)
		frags := make([]string, n)
		for i := range frags {
			frags[i] = fmt.Sprintf("<%d:%d>", round, rng.Intn(1000))
		}

		svc, _, _ := newTestService(t, model.Script{Fragments: frags})
		ex, err := svc.Submit(context.Background(), "go")
		require.NoError(t, err)
		waitDone(t, ex)

		msg, _ := svc.Message(ex.ModelMessageID)
		assert.Equal(t, strings.Join(frags, ""), msg.Text)
		assert.False(t, msg.IsStreaming)
	}
}

func TestSubmit_MidStreamFailureShowsApology(t *testing.T) {
	svc, _, _ := newTestService(t, model.Script{Fragments: []string{"Sor"}, Err: errors.New("stream reset")})
	events, cancel := svc.Subscribe(64)
	defer cancel()

	ex, err := svc.Submit(context.Background(), "tell me a story")
	require.NoError(t, err)
	waitDone(t, ex)

	msg, _ := svc.Message(ex.ModelMessageID)
	assert.Equal(t, config.DefaultApologyMessage, msg.Text)
	assert.False(t, msg.IsStreaming)

	var failure *session.SendFailure
	require.ErrorAs(t, ex.Err(), &failure)
	assert.Equal(t, []State{StateAwaitingFirstFragment, StateStreaming, StateFailed, StateFinalized}, ex.Transitions())
	assert.False(t, svc.Busy())

	// the partial text was visible before it was replaced
	var sawPartial bool
	for len(events) > 0 {
		ev := <-events
		if ev.Type == transcript.EventUpdated && ev.Message.Text == "Sor" {
			sawPartial = true
		}
	}
	assert.True(t, sawPartial)
}

func TestSubmit_FailureBeforeFirstFragment(t *testing.T) {
	svc, _, _ := newTestService(t, model.Script{FailBeforeStream: true, Err: errors.New("503")})

	ex, err := svc.Submit(context.Background(), "hello")
	require.NoError(t, err)
	waitDone(t, ex)

	msg, _ := svc.Message(ex.ModelMessageID)
	assert.Equal(t, config.DefaultApologyMessage, msg.Text)
	assert.Equal(t, []State{StateAwaitingFirstFragment, StateFailed, StateFinalized}, ex.Transitions())
	assert.False(t, svc.Busy())
}

func TestSubmit_ConfigurationErrorFailsExchange(t *testing.T) {
	cfg := &config.Config{}
	cfg.Model.Provider = "openai"
	svc := NewTutorService(session.NewFactory(context.Background(), cfg), Options{ApologyMessage: "sorry!"})

	ex, err := svc.Submit(context.Background(), "hello")
	require.NoError(t, err)
	waitDone(t, ex)

	var cfgErr *session.ConfigError
	require.ErrorAs(t, ex.Err(), &cfgErr)
	msg, _ := svc.Message(ex.ModelMessageID)
	assert.Equal(t, "sorry!", msg.Text)
	assert.False(t, svc.Busy())
}

func TestSubmit_EmptyInputIsIgnored(t *testing.T) {
	svc, m, _ := newTestService(t)
	svc.SetDraft("keep me")

	for _, in := range []string{"", "   ", "\n\t "} {
		ex, err := svc.Submit(context.Background(), in)
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Nil(t, ex)
	}

	assert.Equal(t, 1, len(svc.Snapshot()))
	assert.False(t, svc.Busy())
	assert.Equal(t, "keep me", svc.Draft())
	assert.Empty(t, m.Calls())
}

func TestSubmit_WhileBusyIsIgnored(t *testing.T) {
	gate := make(chan struct{})
	svc, _, _ := newTestService(t, model.Script{Fragments: []string{"a"}, Gate: gate})

	ex, err := svc.Submit(context.Background(), "first")
	require.NoError(t, err)
	before := len(svc.Snapshot())

	_, err = svc.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, before, len(svc.Snapshot()))

	close(gate)
	waitDone(t, ex)
}

func TestSubmit_NoSession(t *testing.T) {
	svc := NewTutorService(nilFactory{}, Options{})
	assert.Equal(t, 0, svc.SessionsCreated())

	_, err := svc.Submit(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Len(t, svc.Snapshot(), 1)
	assert.False(t, svc.Busy())
}

func TestSubmit_ClearsDraft(t *testing.T) {
	svc, _, _ := newTestService(t, model.Script{Fragments: []string{"ok"}})
	svc.SetDraft("what is a prime?")

	ex, err := svc.Submit(context.Background(), svc.Draft())
	require.NoError(t, err)
	assert.Empty(t, svc.Draft())
	waitDone(t, ex)
}

func TestSubmit_NotCancelledByCallerContext(t *testing.T) {
	gate := make(chan struct{})
	svc, _, _ := newTestService(t, model.Script{Fragments: []string{"still ", "here"}, Gate: gate})

	ctx, cancel := context.WithCancel(context.Background())
	ex, err := svc.Submit(ctx, "hello")
	require.NoError(t, err)
	cancel()
	close(gate)
	waitDone(t, ex)

	msg, _ := svc.Message(ex.ModelMessageID)
	assert.Equal(t, "still here", msg.Text)
	assert.NoError(t, ex.Err())
}

func TestSubmit_SequentialExchangesShareSession(t *testing.T) {
	svc, m, _ := newTestService(t,
		model.Script{Fragments: []string{"first"}},
		model.Script{Fragments: []string{"second"}},
	)

	ex, err := svc.Submit(context.Background(), "one")
	require.NoError(t, err)
	waitDone(t, ex)
	ex, err = svc.Submit(context.Background(), "two")
	require.NoError(t, err)
	waitDone(t, ex)

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1], 4)
	assert.Len(t, svc.Snapshot(), 5)
}

func TestSwitchSubject_SameSubjectIsNoop(t *testing.T) {
	svc, _, f := newTestService(t)

	switched, err := svc.SwitchSubject(subject.General)
	require.NoError(t, err)
	assert.False(t, switched)
	assert.Len(t, svc.Snapshot(), 1)
	assert.EqualValues(t, 1, f.Created())
}

func TestSwitchSubject_TwiceToMath(t *testing.T) {
	svc, _, f := newTestService(t)
	firstSession := svc.SessionID()

	switched, err := svc.SwitchSubject(subject.Math)
	require.NoError(t, err)
	assert.True(t, switched)

	switched, err = svc.SwitchSubject(subject.Math)
	require.NoError(t, err)
	assert.False(t, switched)

	var system []transcript.Message
	for _, m := range svc.Snapshot() {
		if m.Role == transcript.RoleSystem {
			system = append(system, m)
		}
	}
	require.Len(t, system, 1)
	assert.Equal(t, "Switched context to **Math**. How can I help with that?", system[0].Text)

	// one session for the switch on top of the initial one
	assert.EqualValues(t, 2, f.Created())
	assert.Equal(t, 2, svc.SessionsCreated())
	assert.NotEqual(t, firstSession, svc.SessionID())
	assert.Equal(t, subject.Math, svc.Subject())
	assert.Equal(t, "Ask a math question...", svc.Placeholder())
}

func TestSwitchSubject_KeepsHistoryAndResetsConversation(t *testing.T) {
	svc, m, _ := newTestService(t,
		model.Script{Fragments: []string{"hello there"}},
		model.Script{Fragments: []string{"x = 2"}},
	)

	ex, err := svc.Submit(context.Background(), "hi")
	require.NoError(t, err)
	waitDone(t, ex)
	before := svc.Snapshot()

	_, err = svc.SwitchSubject(subject.Math)
	require.NoError(t, err)

	after := svc.Snapshot()
	require.Len(t, after, len(before)+1)
	assert.Equal(t, before, after[:len(before)])
	assert.Equal(t, transcript.RoleSystem, after[len(after)-1].Role)

	ex, err = svc.Submit(context.Background(), "solve 2x = 4")
	require.NoError(t, err)
	waitDone(t, ex)

	calls := m.Calls()
	require.Len(t, calls, 2)
	// fresh session: no earlier turns, math instruction
	require.Len(t, calls[1], 2)
	assert.Contains(t, calls[1][0].Content, subject.MustLookup(subject.Math).SystemPromptAddon)
	assert.Contains(t, calls[0][0].Content, subject.MustLookup(subject.General).SystemPromptAddon)
}

func TestSwitchSubject_RejectedWhileBusy(t *testing.T) {
	gate := make(chan struct{})
	svc, _, f := newTestService(t, model.Script{Fragments: []string{"a"}, Gate: gate})

	ex, err := svc.Submit(context.Background(), "question")
	require.NoError(t, err)
	n := len(svc.Snapshot())

	_, err = svc.SwitchSubject(subject.History)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, n, len(svc.Snapshot()))
	assert.Equal(t, subject.General, svc.Subject())
	assert.EqualValues(t, 1, f.Created())

	close(gate)
	waitDone(t, ex)

	switched, err := svc.SwitchSubject(subject.History)
	require.NoError(t, err)
	assert.True(t, switched)
}

func TestSwitchSubject_Unknown(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.SwitchSubject(subject.ID("Art"))
	assert.ErrorIs(t, err, ErrUnknownSubject)
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(config.TutorConfig{DefaultSubject: "logic"})
	require.NoError(t, err)
	assert.Equal(t, subject.Logic, opts.DefaultSubject)
	assert.Equal(t, config.DefaultApologyMessage, opts.ApologyMessage)
	assert.Equal(t, "StudyBuddy", opts.AppName)

	_, err = OptionsFromConfig(config.TutorConfig{DefaultSubject: "art"})
	assert.ErrorIs(t, err, ErrUnknownSubject)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_first_fragment", StateAwaitingFirstFragment.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestExchangeWait(t *testing.T) {
	gate := make(chan struct{})
	svc, _, _ := newTestService(t, model.Script{Fragments: []string{"ok"}, Gate: gate})

	ex, err := svc.Submit(context.Background(), "q")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ex.Wait(ctx), context.DeadlineExceeded)
	assert.True(t, svc.Busy())

	close(gate)
	require.NoError(t, ex.Wait(context.Background()))
	assert.Equal(t, StateFinalized, ex.State())
}
