package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"studybuddy-backend/pkg/logger"

	"github.com/sirupsen/logrus"
)

// DebugTransport logs outgoing provider requests. Credentials in headers and
// well-known JSON fields are redacted.
type DebugTransport struct {
	base     http.RoundTripper
	provider string
}

func NewDebugTransport(base http.RoundTripper, provider string) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base, provider: provider}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	entry := logger.WithFields(logrus.Fields{
		"provider": t.provider,
		"method":   req.Method,
		"url":      req.URL.String(),
	})

	if req.Method == http.MethodPost && req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			entry.Errorf("read request body: %v", err)
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
		entry = entry.WithField("body", redactBody(body))
	}
	entry.WithField("headers", redactHeaders(req.Header)).Debug("provider request")

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		entry.Errorf("provider request failed: %v", err)
		return nil, err
	}
	entry.WithField("status", resp.StatusCode).Debug("provider response")
	return resp, nil
}

var sensitiveHeaders = []string{"authorization", "x-api-key", "x-goog-api-key", "x-auth-token", "cookie"}

func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
		for _, s := range sensitiveHeaders {
			if strings.EqualFold(name, s) {
				out[name] = "[REDACTED]"
				break
			}
		}
	}
	return out
}

var sensitiveFields = []string{"api_key", "apikey", "password", "secret", "token"}

// redactBody masks sensitive top-level JSON fields; non-JSON bodies are
// reported by size only.
func redactBody(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return fmt.Sprintf("(non-json, %d bytes)", len(body))
	}
	for key := range fields {
		for _, s := range sensitiveFields {
			if strings.EqualFold(key, s) {
				fields[key] = json.RawMessage(`"[REDACTED]"`)
			}
		}
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return "(unprintable)"
	}
	return string(out)
}
