package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/model"
	"studybuddy-backend/pkg/logger"

	"github.com/cloudwego/eino/callbacks"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

const (
	keyInstruction = "system_instruction"
	keyHistory     = "history"
	keyMessage     = "message"
)

type turnRunner = compose.Runnable[map[string]any, *schema.Message]

// Factory creates sessions bound to one chat model. The credential is read
// once, here; a problem with it is reported by the first send rather than at
// construction.
type Factory struct {
	provider  string
	modelName string
	runner    turnRunner
	handler   callbacks.Handler
	err       error
	created   atomic.Int64
}

func NewFactory(ctx context.Context, cfg *config.Config) *Factory {
	f := &Factory{
		provider:  cfg.Model.Provider,
		modelName: model.Name(cfg),
	}

	chatModel, err := model.NewChatModel(ctx, cfg)
	if err != nil {
		f.err = &ConfigError{Provider: cfg.Model.Provider, Err: err}
		logger.Errorf("Chat model unavailable, every exchange will fail: %v", f.err)
		return f
	}

	f.init(ctx, chatModel)
	return f
}

// NewFactoryWithModel binds sessions to an already constructed model.
func NewFactoryWithModel(ctx context.Context, chatModel einoModel.BaseChatModel, modelName string) *Factory {
	f := &Factory{provider: "custom", modelName: modelName}
	f.init(ctx, chatModel)
	return f
}

func (f *Factory) init(ctx context.Context, chatModel einoModel.BaseChatModel) {
	runner, err := composeTurn(ctx, chatModel)
	if err != nil {
		f.err = &ConfigError{Provider: f.provider, Err: err}
		logger.Errorf("Failed to compose chat chain: %v", err)
		return
	}
	f.runner = runner
	f.handler = newLogHandler()
}

// composeTurn builds template -> model. The instruction is passed as a
// variable so braces inside it are never parsed as placeholders.
func composeTurn(ctx context.Context, chatModel einoModel.BaseChatModel) (turnRunner, error) {
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage("{"+keyInstruction+"}"),
		schema.MessagesPlaceholder(keyHistory, true),
		schema.UserMessage("{"+keyMessage+"}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(tpl).AppendChatModel(chatModel)

	runner, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile chain: %w", err)
	}
	return runner, nil
}

// Create never fails and performs no I/O.
func (f *Factory) Create(systemInstruction string) *Session {
	f.created.Add(1)
	s := newSession(f, systemInstruction)
	logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"model":      f.modelName,
	}).Debug("conversation session created")
	return s
}

// Err reports the configuration problem every session will fail with, if any.
func (f *Factory) Err() error {
	return f.err
}

func (f *Factory) Created() int64 {
	return f.created.Load()
}

func (f *Factory) ModelName() string {
	return f.modelName
}

func newLogHandler() callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			if info != nil {
				logger.Debugf("chain node start: %s (%v)", info.Name, info.Component)
			}
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			name := "unknown"
			if info != nil {
				name = info.Name
			}
			logger.Warnf("chain node %s failed: %v", name, err)
			return ctx
		}).
		Build()
}
