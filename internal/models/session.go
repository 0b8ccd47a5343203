package models

import (
	"encoding/json"
	"time"
)

type SessionStatus string

const (
	StatusInProgress SessionStatus = "in-progress"
	StatusCompleted  SessionStatus = "completed"
)

// Session groups a startup's metadata and the documents uploaded for it.
type Session struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	Name         string           `json:"name"`
	Website      string           `json:"website"`
	Pitch        string           `json:"pitch"`
	TargetMarket string           `json:"target_market"`
	Files        []FileDescriptor `json:"files"`
	Status       SessionStatus    `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Analysis     json.RawMessage  `json:"analysis,omitempty"`
}

// FileDescriptor describes one stored document. Path is {userId}/{sessionId}/{name}.
type FileDescriptor struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	Path         string `json:"path"`
}

// StartupData is the user-entered metadata for an analysis.
type StartupData struct {
	Name         string `json:"name" form:"name"`
	Website      string `json:"website" form:"website"`
	Pitch        string `json:"pitch" form:"pitch"`
	TargetMarket string `json:"target_market" form:"targetMarket"`
}

// Clone returns a deep copy so callers can hand sessions to subscribers safely.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Files != nil {
		out.Files = append([]FileDescriptor(nil), s.Files...)
	}
	if s.Analysis != nil {
		out.Analysis = append(json.RawMessage(nil), s.Analysis...)
	}
	return &out
}
