package model

import (
	"context"
	"errors"
	"sync"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Script is one scripted reply: fragments are streamed in order, then Err
// (if set) ends the stream. FailBeforeStream makes Stream itself return Err.
// A non-nil Gate holds the stream until it is closed.
type Script struct {
	Fragments        []string
	Err              error
	FailBeforeStream bool
	Gate             <-chan struct{}
}

var ErrScriptExhausted = errors.New("scripted model: no script left")

// ScriptedChatModel replays Scripts, one per call, and records the messages
// it was called with. Tests use it to drive exact fragment sequences.
type ScriptedChatModel struct {
	mu      sync.Mutex
	scripts []Script
	calls   [][]*schema.Message
}

var _ einoModel.BaseChatModel = (*ScriptedChatModel)(nil)

func NewScriptedChatModel(scripts ...Script) *ScriptedChatModel {
	return &ScriptedChatModel{scripts: scripts}
}

func (m *ScriptedChatModel) Push(s Script) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, s)
}

// Calls returns the message lists of every call so far.
func (m *ScriptedChatModel) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*schema.Message, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *ScriptedChatModel) next(messages []*schema.Message) (Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)
	if len(m.scripts) == 0 {
		return Script{}, ErrScriptExhausted
	}
	s := m.scripts[0]
	m.scripts = m.scripts[1:]
	return s, nil
}

func (m *ScriptedChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	s, err := m.next(messages)
	if err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	var text string
	for _, f := range s.Fragments {
		text += f
	}
	return schema.AssistantMessage(text, nil), nil
}

func (m *ScriptedChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	s, err := m.next(messages)
	if err != nil {
		return nil, err
	}
	if s.FailBeforeStream {
		return nil, s.Err
	}

	reader, writer := schema.Pipe[*schema.Message](len(s.Fragments) + 1)
	go func() {
		defer writer.Close()
		if s.Gate != nil {
			select {
			case <-s.Gate:
			case <-ctx.Done():
				writer.Send(nil, ctx.Err())
				return
			}
		}
		for _, f := range s.Fragments {
			if closed := writer.Send(schema.AssistantMessage(f, nil), nil); closed {
				return
			}
		}
		if s.Err != nil {
			writer.Send(nil, s.Err)
		}
	}()
	return reader, nil
}
