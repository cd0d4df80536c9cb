package model

import (
	"context"
	"fmt"
	"strings"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const MockModelName = "studybuddy-mock"

// MockChatModel answers locally without a provider, word by word, so the
// streaming path can be exercised offline.
type MockChatModel struct{}

var _ einoModel.BaseChatModel = (*MockChatModel)(nil)

func NewMockChatModel() *MockChatModel {
	return &MockChatModel{}
}

func (m *MockChatModel) reply(messages []*schema.Message) string {
	var question string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == schema.User {
			question = messages[i].Content
			break
		}
	}
	return fmt.Sprintf("Great question! You asked: **%s**. Let's work through it step by step.", question)
}

func (m *MockChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.reply(messages), nil), nil
}

func (m *MockChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	words := strings.SplitAfter(m.reply(messages), " ")

	reader, writer := schema.Pipe[*schema.Message](len(words))
	go func() {
		defer writer.Close()
		for _, w := range words {
			if ctx.Err() != nil {
				writer.Send(nil, ctx.Err())
				return
			}
			if closed := writer.Send(schema.AssistantMessage(w, nil), nil); closed {
				return
			}
		}
	}()
	return reader, nil
}
