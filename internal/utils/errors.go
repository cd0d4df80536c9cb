package utils

import "errors"

var ErrSSEClosed = errors.New("sse stream already closed")
