// Package transcript is the ordered, user-visible message history.
//
// Messages live in an arena keyed by id; display order is a separate slice of
// ids. At most one message streams at a time, its text only grows while it
// streams and is frozen once finalized. Every mutation is published to
// subscribers as one Event.
package transcript

import (
	"sync"
	"time"

	"studybuddy-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

type Message struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	IsStreaming bool      `json:"is_streaming"`
}

type EventType string

const (
	EventAppended  EventType = "appended"
	EventUpdated   EventType = "updated"
	EventFinalized EventType = "finalized"
)

// Event carries a copy of the message after the mutation. Fragment is set on
// EventUpdated only.
type Event struct {
	Seq      uint64    `json:"seq"`
	Type     EventType `json:"type"`
	Message  Message   `json:"message"`
	Fragment string    `json:"fragment,omitempty"`
}

const DefaultSubscriberBuffer = 256

type Transcript struct {
	mu        sync.RWMutex
	messages  map[string]*Message
	order     []string
	streaming string
	seq       uint64

	subs    map[uint64]chan Event
	nextSub uint64
}

func New() *Transcript {
	return &Transcript{
		messages: make(map[string]*Message),
		subs:     make(map[uint64]chan Event),
	}
}

// NewID returns a time-ordered unique id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// NewMessage builds a message stamped with a fresh id and the current time.
func NewMessage(role Role, text string, streaming bool) Message {
	return Message{
		ID:          NewID(),
		Role:        role,
		Text:        text,
		CreatedAt:   time.Now(),
		IsStreaming: streaming,
	}
}

// Append adds msgs in order as one step: if any of them is rejected none is
// stored.
func (t *Transcript) Append(msgs ...Message) error {
	for _, msg := range msgs {
		if msg.ID == "" || msg.Role == "" {
			return ErrInvalidMessage
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	streaming := t.streaming
	seen := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		if _, exists := t.messages[msg.ID]; exists {
			return ErrDuplicateID
		}
		if _, dup := seen[msg.ID]; dup {
			return ErrDuplicateID
		}
		seen[msg.ID] = struct{}{}
		if msg.IsStreaming {
			if streaming != "" {
				return ErrAlreadyStreaming
			}
			streaming = msg.ID
		}
	}

	t.streaming = streaming
	for _, msg := range msgs {
		stored := msg
		t.messages[msg.ID] = &stored
		t.order = append(t.order, msg.ID)
		t.publishLocked(EventAppended, &stored, "")
	}
	return nil
}

// AppendText concatenates fragment onto a streaming message.
func (t *Transcript) AppendText(id, fragment string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg, err := t.streamingLocked(id)
	if err != nil {
		return err
	}

	msg.Text += fragment
	t.publishLocked(EventUpdated, msg, fragment)
	return nil
}

// Finalize ends streaming and freezes the text as it is.
func (t *Transcript) Finalize(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg, err := t.streamingLocked(id)
	if err != nil {
		return err
	}

	msg.IsStreaming = false
	t.streaming = ""
	t.publishLocked(EventFinalized, msg, "")
	return nil
}

// FinalizeWith replaces the streamed text and ends streaming in one step.
func (t *Transcript) FinalizeWith(id, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg, err := t.streamingLocked(id)
	if err != nil {
		return err
	}

	msg.Text = text
	msg.IsStreaming = false
	t.streaming = ""
	t.publishLocked(EventFinalized, msg, "")
	return nil
}

func (t *Transcript) streamingLocked(id string) (*Message, error) {
	msg, exists := t.messages[id]
	if !exists {
		return nil, ErrMessageNotFound
	}
	if !msg.IsStreaming {
		return nil, ErrNotStreaming
	}
	return msg, nil
}

func (t *Transcript) Get(id string) (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	msg, exists := t.messages[id]
	if !exists {
		return Message{}, false
	}
	return *msg, true
}

// Snapshot returns copies of all messages in display order.
func (t *Transcript) Snapshot() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, len(t.order))
	for i, id := range t.order {
		out[i] = *t.messages[id]
	}
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Streaming returns the message currently streaming, if any.
func (t *Transcript) Streaming() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.streaming == "" {
		return Message{}, false
	}
	return *t.messages[t.streaming], true
}

// Subscribe registers an observer. The returned func unregisters it and
// closes the channel. A subscriber that falls behind by more than buffer
// events misses events; Snapshot resynchronises it.
func (t *Transcript) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	ch := make(chan Event, buffer)
	t.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (t *Transcript) publishLocked(typ EventType, msg *Message, fragment string) {
	t.seq++
	ev := Event{
		Seq:      t.seq,
		Type:     typ,
		Message:  *msg,
		Fragment: fragment,
	}

	for id, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			logger.WithFields(logrus.Fields{
				"subscriber": id,
				"seq":        ev.Seq,
				"message_id": msg.ID,
			}).Warn("transcript subscriber is full, dropping event")
		}
	}
}
