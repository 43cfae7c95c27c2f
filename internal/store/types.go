package store

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

type Score struct {
	ID          string
	TraceID     string
	Name        string
	Value       float64
	StringValue string
	Source      string
}

type TraceSummary struct {
	ID        string
	Name      string
	Timestamp time.Time
	UserID    string
	Scores    []Score
}

// Trace is a trace with its input and output payloads, kept as raw JSON
// text. Either may be empty.
type Trace struct {
	TraceSummary
	SessionID string
	ProjectID string
	Input     string
	Output    string
}

func (t Trace) HasIO() bool {
	return !EmptyPayload(t.Input) || !EmptyPayload(t.Output)
}

// EmptyPayload reports whether a raw payload carries nothing to show:
// missing, null or an empty JSON string.
func EmptyPayload(raw string) bool {
	switch strings.TrimSpace(raw) {
	case "", "null", `""`:
		return true
	}
	return false
}

type Session struct {
	ID         string
	ProjectID  string
	Public     bool
	Bookmarked bool
	Users      []string
	TotalCost  float64
	Traces     []TraceSummary
}

func (s Session) TraceIDs() []string {
	out := make([]string, 0, len(s.Traces))
	for _, t := range s.Traces {
		out = append(out, t.ID)
	}
	return out
}

type SessionSummary struct {
	ID             string
	ProjectID      string
	TraceCount     int
	LastActivityTS int64
	Bookmarked     bool
	Public         bool
}

func FormatUnix(ts int64) string {
	if ts <= 0 {
		return "n/a"
	}
	return time.Unix(ts, 0).Local().Format("2006-01-02 15:04")
}
