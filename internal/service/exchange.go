package service

import (
	"context"
	"sync"
	"time"
)

// State of one exchange. The controller reports StateIdle between exchanges.
type State int

const (
	StateIdle State = iota
	StateAwaitingFirstFragment
	StateStreaming
	StateFailed
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFirstFragment:
		return "awaiting_first_fragment"
	case StateStreaming:
		return "streaming"
	case StateFailed:
		return "failed"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Exchange is one user submission and the model reply it produced.
type Exchange struct {
	ID             string
	UserMessageID  string
	ModelMessageID string
	SessionID      string
	Question       string
	StartedAt      time.Time

	mu          sync.Mutex
	state       State
	transitions []State
	err         error
	fragments   int
	done        chan struct{}
}

func newExchange(id, userID, modelID, sessionID, question string) *Exchange {
	return &Exchange{
		ID:             id,
		UserMessageID:  userID,
		ModelMessageID: modelID,
		SessionID:      sessionID,
		Question:       question,
		StartedAt:      time.Now(),
		state:          StateAwaitingFirstFragment,
		transitions:    []State{StateAwaitingFirstFragment},
		done:           make(chan struct{}),
	}
}

func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err is the send failure that ended the exchange, nil on success or while
// it is still running.
func (e *Exchange) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Exchange) Failed() bool {
	return e.Err() != nil
}

// Fragments counts the fragments folded into the model message.
func (e *Exchange) Fragments() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fragments
}

// Done is closed once the exchange is finalized.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the exchange is finalized or ctx ends. It does not
// cancel the exchange.
func (e *Exchange) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transitions lists every state the exchange has entered, in order.
func (e *Exchange) Transitions() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]State, len(e.transitions))
	copy(out, e.transitions)
	return out
}

func (e *Exchange) setState(s State) {
	e.mu.Lock()
	e.transitionLocked(s)
	e.mu.Unlock()
}

func (e *Exchange) transitionLocked(s State) {
	if e.state == s {
		return
	}
	e.state = s
	e.transitions = append(e.transitions, s)
}
