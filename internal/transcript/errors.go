package transcript

import "errors"

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrDuplicateID      = errors.New("duplicate message id")
	ErrInvalidMessage   = errors.New("invalid message")
	ErrAlreadyStreaming = errors.New("another message is already streaming")
	ErrNotStreaming     = errors.New("message is not streaming")
)
