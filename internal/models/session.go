// Package models contains domain types shared by the ocrdesk server and client.
package models

import (
	"fmt"
	"time"
)

// TimestampLayout is the wire format of SessionRecord.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// DefaultSessionName is used when a save request carries no name.
const DefaultSessionName = "Untitled"

// SessionType selects the OCR prompt and the shape of workspace entries.
type SessionType string

const (
	SessionTypeTable SessionType = "table"
	SessionTypeText  SessionType = "text"
)

// ParseSessionType validates a type string. Empty input means table.
func ParseSessionType(s string) (SessionType, error) {
	switch SessionType(s) {
	case "", SessionTypeTable:
		return SessionTypeTable, nil
	case SessionTypeText:
		return SessionTypeText, nil
	default:
		return "", fmt.Errorf("unknown session type %q", s)
	}
}

// Label returns the human readable name used in session titles.
func (t SessionType) Label() string {
	if t == SessionTypeText {
		return "Text"
	}
	return "Table"
}

// SessionRecord is a persisted, named snapshot of a workspace.
type SessionRecord struct {
	ID        string `json:"id" msgpack:"id"`
	Name      string `json:"name" msgpack:"name"`
	Content   string `json:"content" msgpack:"content"`
	Timestamp string `json:"timestamp" msgpack:"timestamp"`
}

// Summary drops the content payload.
func (r *SessionRecord) Summary() SessionSummary {
	return SessionSummary{ID: r.ID, Name: r.Name, Timestamp: r.Timestamp}
}

// Time parses Timestamp. A malformed timestamp yields the zero time.
func (r *SessionRecord) Time() time.Time {
	t, err := time.ParseInLocation(TimestampLayout, r.Timestamp, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SessionSummary is one row of the history list.
type SessionSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

// SaveRequest is the body of POST /save. ID is nil for a never-saved session.
type SaveRequest struct {
	Name    string  `json:"name"`
	Content string  `json:"content"`
	ID      *string `json:"id"`
}

// SaveResponse is returned by POST /save.
type SaveResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// StatusResponse is the generic {status, message} acknowledgement.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
