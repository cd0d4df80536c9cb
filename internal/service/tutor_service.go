package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/session"
	"studybuddy-backend/internal/subject"
	"studybuddy-backend/internal/transcript"
	"studybuddy-backend/pkg/logger"

	"github.com/sirupsen/logrus"
)

// WelcomeMessageID is the id of the greeting every transcript starts with.
const WelcomeMessageID = "welcome"

// SessionFactory creates conversation sessions bound to a system instruction.
type SessionFactory interface {
	Create(systemInstruction string) *session.Session
}

type Options struct {
	AppName         string
	BaseInstruction string
	WelcomeMessage  string
	ApologyMessage  string
	DefaultSubject  subject.ID
}

// OptionsFromConfig validates the tutor section of the configuration.
func OptionsFromConfig(cfg config.TutorConfig) (Options, error) {
	id, ok := subject.Parse(cfg.DefaultSubject)
	if !ok {
		return Options{}, fmt.Errorf("%w: %q", ErrUnknownSubject, cfg.DefaultSubject)
	}
	opts := Options{
		AppName:         cfg.AppName,
		BaseInstruction: cfg.BaseInstruction,
		WelcomeMessage:  cfg.WelcomeMessage,
		ApologyMessage:  cfg.ApologyMessage,
		DefaultSubject:  id,
	}
	return opts.withDefaults(), nil
}

func (o Options) withDefaults() Options {
	if o.AppName == "" {
		o.AppName = "StudyBuddy"
	}
	if o.BaseInstruction == "" {
		o.BaseInstruction = config.DefaultBaseInstruction
	}
	if o.WelcomeMessage == "" {
		o.WelcomeMessage = config.DefaultWelcomeMessage
	}
	if o.ApologyMessage == "" {
		o.ApologyMessage = config.DefaultApologyMessage
	}
	if o.DefaultSubject == "" {
		o.DefaultSubject = subject.General
	}
	return o
}

// TutorService drives exchanges against the current session and owns the
// transcript. One exchange runs at a time; a subject switch is refused while
// it runs.
type TutorService struct {
	opts       Options
	factory    SessionFactory
	transcript *transcript.Transcript

	mu       sync.Mutex
	session  *session.Session
	subject  subject.ID
	busy     bool
	draft    string
	current  *Exchange
	sessions int
}

func NewTutorService(factory SessionFactory, opts Options) *TutorService {
	opts = opts.withDefaults()

	s := &TutorService{
		opts:       opts,
		factory:    factory,
		transcript: transcript.New(),
		subject:    opts.DefaultSubject,
	}

	welcome := transcript.Message{
		ID:        WelcomeMessageID,
		Role:      transcript.RoleModel,
		Text:      opts.WelcomeMessage,
		CreatedAt: time.Now(),
	}
	if err := s.transcript.Append(welcome); err != nil {
		logger.Errorf("Failed to append welcome message: %v", err)
	}

	s.session = s.newSessionLocked(opts.DefaultSubject)
	return s
}

func (s *TutorService) newSessionLocked(id subject.ID) *session.Session {
	sess := s.factory.Create(subject.SystemInstruction(s.opts.BaseInstruction, id))
	if sess != nil {
		s.sessions++
	}
	return sess
}

// Submit starts an exchange for text. Empty input, a running exchange or a
// missing session leave everything untouched and return a validation error.
// On accept the user message and the streaming placeholder are in the
// transcript before Submit returns; the reply is streamed in the background
// and cannot be cancelled through ctx.
func (s *TutorService) Submit(ctx context.Context, text string) (*Exchange, error) {
	question := strings.TrimSpace(text)

	s.mu.Lock()
	if question == "" {
		s.mu.Unlock()
		return nil, ErrEmptyInput
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.session == nil {
		s.mu.Unlock()
		return nil, ErrNoSession
	}

	userMsg := transcript.NewMessage(transcript.RoleUser, question, false)
	modelMsg := transcript.NewMessage(transcript.RoleModel, "", true)
	if err := s.transcript.Append(userMsg, modelMsg); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("append exchange messages: %w", err)
	}

	sess := s.session
	ex := newExchange(transcript.NewID(), userMsg.ID, modelMsg.ID, sess.ID(), question)
	s.draft = ""
	s.busy = true
	s.current = ex
	s.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"exchange_id": ex.ID,
		"session_id":  ex.SessionID,
		"subject":     s.Subject(),
	}).Info("exchange accepted")

	go s.run(context.WithoutCancel(ctx), sess, ex)
	return ex, nil
}

func (s *TutorService) run(ctx context.Context, sess *session.Session, ex *Exchange) {
	stream, err := sess.SendStreaming(ctx, ex.Question)
	if err != nil {
		s.fail(ex, err)
		return
	}
	defer stream.Close()

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			s.complete(ex)
			return
		}
		if err != nil {
			s.fail(ex, err)
			return
		}
		s.applyFragment(ex, fragment)
	}
}

func (s *TutorService) applyFragment(ex *Exchange, fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transcript.AppendText(ex.ModelMessageID, fragment); err != nil {
		logger.Errorf("exchange %s: append fragment: %v", ex.ID, err)
		return
	}

	ex.mu.Lock()
	ex.transitionLocked(StateStreaming)
	ex.fragments++
	ex.mu.Unlock()
}

func (s *TutorService) complete(ex *Exchange) {
	s.mu.Lock()
	if err := s.transcript.Finalize(ex.ModelMessageID); err != nil {
		logger.Errorf("exchange %s: finalize: %v", ex.ID, err)
	}
	ex.setState(StateFinalized)
	s.busy = false
	s.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"exchange_id": ex.ID,
		"fragments":   ex.Fragments(),
		"elapsed":     time.Since(ex.StartedAt).String(),
	}).Info("exchange finalized")
	close(ex.done)
}

// fail replaces whatever streamed with the apology text.
func (s *TutorService) fail(ex *Exchange, cause error) {
	entry := logger.WithFields(logrus.Fields{
		"exchange_id": ex.ID,
		"session_id":  ex.SessionID,
		"fragments":   ex.Fragments(),
	})
	var cfgErr *session.ConfigError
	if errors.As(cause, &cfgErr) {
		entry.Errorf("exchange failed, model provider is misconfigured: %v", cause)
	} else {
		entry.Warnf("exchange failed: %v", cause)
	}

	s.mu.Lock()
	ex.mu.Lock()
	ex.transitionLocked(StateFailed)
	ex.err = cause
	ex.mu.Unlock()

	if err := s.transcript.FinalizeWith(ex.ModelMessageID, s.opts.ApologyMessage); err != nil {
		logger.Errorf("exchange %s: finalize after failure: %v", ex.ID, err)
	}
	ex.setState(StateFinalized)
	s.busy = false
	s.mu.Unlock()

	close(ex.done)
}

// SwitchSubject starts a fresh session for id and announces it in the
// transcript. Switching to the current subject does nothing.
func (s *TutorService) SwitchSubject(id subject.ID) (bool, error) {
	cfg, ok := subject.Lookup(id)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownSubject, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id == s.subject {
		return false, nil
	}
	if s.busy {
		return false, ErrBusy
	}

	s.session = s.newSessionLocked(id)
	s.subject = id

	notice := transcript.NewMessage(transcript.RoleSystem,
		fmt.Sprintf("Switched context to **%s**. How can I help with that?", cfg.Name), false)
	if err := s.transcript.Append(notice); err != nil {
		return true, fmt.Errorf("append switch notice: %w", err)
	}

	logger.WithFields(logrus.Fields{"subject": id}).Info("subject switched")
	return true, nil
}

// Snapshot returns copies of the transcript messages in display order.
func (s *TutorService) Snapshot() []transcript.Message {
	return s.transcript.Snapshot()
}

func (s *TutorService) Message(id string) (transcript.Message, bool) {
	return s.transcript.Get(id)
}

// Subscribe observes every transcript change.
func (s *TutorService) Subscribe(buffer int) (<-chan transcript.Event, func()) {
	return s.transcript.Subscribe(buffer)
}

func (s *TutorService) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// State is the state of the running exchange, or StateIdle.
func (s *TutorService) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy || s.current == nil {
		return StateIdle
	}
	return s.current.State()
}

func (s *TutorService) Subject() subject.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

func (s *TutorService) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID()
}

// SessionsCreated counts sessions this service has created, the initial one
// included.
func (s *TutorService) SessionsCreated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

func (s *TutorService) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *TutorService) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

func (s *TutorService) AppName() string {
	return s.opts.AppName
}

// Placeholder is the input hint for the current subject.
func (s *TutorService) Placeholder() string {
	return fmt.Sprintf("Ask a %s question...", strings.ToLower(string(s.Subject())))
}
