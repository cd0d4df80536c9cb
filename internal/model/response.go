package model

import (
	"time"

	"studybuddy-backend/internal/subject"
	"studybuddy-backend/internal/transcript"
)

// MessageView is a transcript message as sent to the browser. HTML is only
// filled when the client asked for rendered output.
type MessageView struct {
	transcript.Message
	HTML string `json:"html,omitempty"`
}

type TranscriptResponse struct {
	AppName     string        `json:"app_name"`
	Subject     subject.ID    `json:"subject"`
	Placeholder string        `json:"placeholder"`
	Busy        bool          `json:"busy"`
	State       string        `json:"state"`
	Messages    []MessageView `json:"messages"`
}

type SubjectView struct {
	subject.Config
	Current bool `json:"current"`
}

type SubjectsResponse struct {
	Current  subject.ID    `json:"current"`
	Subjects []SubjectView `json:"subjects"`
}

type SwitchResponse struct {
	Switched bool       `json:"switched"`
	Subject  subject.ID `json:"subject"`
}

// ExchangeStatus closes an exchange stream. Message is the finalized reply
// as stored in the transcript.
type ExchangeStatus struct {
	ExchangeID     string             `json:"exchange_id"`
	UserMessageID  string             `json:"user_message_id"`
	ModelMessageID string             `json:"model_message_id"`
	State          string             `json:"state"`
	Failed         bool               `json:"failed"`
	Message        transcript.Message `json:"message"`
	Timestamp      int64              `json:"timestamp"`
}

type Heartbeat struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func NewHeartbeat() Heartbeat {
	return Heartbeat{Type: "heartbeat", Timestamp: time.Now().Unix()}
}
