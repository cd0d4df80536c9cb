// Package session binds one system instruction to a remote chat model and
// streams the model's reply to each message as text fragments.
package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"studybuddy-backend/pkg/logger"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// Session is one conversation context. Completed turns are kept and resent
// with later messages; a failed turn is not recorded.
type Session struct {
	id          string
	instruction string
	factory     *Factory

	inFlight atomic.Bool

	mu      sync.Mutex
	history []*schema.Message
}

func newSession(f *Factory, instruction string) *Session {
	return &Session{
		id:          uuid.New().String(),
		instruction: instruction,
		factory:     f,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) SystemInstruction() string {
	return s.instruction
}

// Turns returns the number of completed exchanges.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) / 2
}

// SendStreaming starts one round trip. The returned Stream must be drained
// until io.EOF or an error, or closed.
func (s *Session) SendStreaming(ctx context.Context, text string) (*Stream, error) {
	if err := s.factory.err; err != nil {
		return nil, err
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSessionBusy
	}

	s.mu.Lock()
	history := make([]*schema.Message, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	reader, err := s.factory.runner.Stream(ctx, map[string]any{
		keyInstruction: s.instruction,
		keyHistory:     history,
		keyMessage:     text,
	}, compose.WithCallbacks(s.factory.handler))
	if err != nil {
		s.inFlight.Store(false)
		return nil, &SendFailure{SessionID: s.id, Err: err}
	}

	return &Stream{session: s, reader: reader, question: text}, nil
}

func (s *Session) commit(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		schema.UserMessage(question),
		schema.AssistantMessage(answer, nil),
	)
}

// Stream is a finite, non-restartable sequence of fragments.
type Stream struct {
	session  *Session
	reader   *schema.StreamReader[*schema.Message]
	question string
	answer   strings.Builder

	once sync.Once
	err  error
}

// Recv returns the next non-empty fragment, io.EOF once the model signals
// completion, or a *SendFailure. After either terminal result every further
// call returns the same result.
func (st *Stream) Recv() (string, error) {
	if st.err != nil {
		return "", st.err
	}

	for {
		chunk, err := st.reader.Recv()
		if errors.Is(err, io.EOF) {
			st.finish(io.EOF)
			return "", io.EOF
		}
		if err != nil {
			failure := &SendFailure{SessionID: st.session.id, Err: err}
			st.finish(failure)
			return "", failure
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		st.answer.WriteString(chunk.Content)
		return chunk.Content, nil
	}
}

// Close releases the stream. Closing before io.EOF abandons the turn.
func (st *Stream) Close() {
	st.finish(ErrStreamClosed)
}

func (st *Stream) finish(result error) {
	st.once.Do(func() {
		st.err = result
		st.reader.Close()
		if errors.Is(result, io.EOF) {
			st.session.commit(st.question, st.answer.String())
		} else if !errors.Is(result, ErrStreamClosed) {
			logger.Warnf("session %s: turn not recorded: %v", st.session.id, result)
		}
		st.session.inFlight.Store(false)
	})
}
