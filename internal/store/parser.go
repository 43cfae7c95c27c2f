package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const defaultProjectID = "default"

type recordKind int

const (
	kindSkip recordKind = iota
	kindSession
	kindTrace
	kindScore
)

type rawRecord struct {
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	ProjectID   string          `json:"projectId"`
	TraceID     string          `json:"traceId"`
	Name        string          `json:"name"`
	Timestamp   json.RawMessage `json:"timestamp"`
	UserID      string          `json:"userId"`
	Input       json.RawMessage `json:"input"`
	Output      json.RawMessage `json:"output"`
	Cost        float64         `json:"cost"`
	Public      *bool           `json:"public"`
	Bookmarked  *bool           `json:"bookmarked"`
	Value       *float64        `json:"value"`
	StringValue string          `json:"stringValue"`
	Source      string          `json:"source"`
}

// record is one normalised JSONL line.
type record struct {
	Kind        recordKind
	ID          string
	SessionID   string
	ProjectID   string
	TraceID     string
	Name        string
	TS          *int64
	UserID      string
	Input       string
	Output      string
	Cost        float64
	Public      bool
	Bookmarked  bool
	Value       float64
	StringValue string
	Source      string
}

func parseLine(line []byte) (record, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return record{}, nil
	}
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return record{}, fmt.Errorf("decode line: %w", err)
	}

	rec := record{
		ID:          strings.TrimSpace(raw.ID),
		SessionID:   strings.TrimSpace(raw.SessionID),
		ProjectID:   strings.TrimSpace(raw.ProjectID),
		TraceID:     strings.TrimSpace(raw.TraceID),
		Name:        strings.TrimSpace(raw.Name),
		TS:          parseTimestamp(raw.Timestamp),
		UserID:      strings.TrimSpace(raw.UserID),
		Input:       payloadText(raw.Input),
		Output:      payloadText(raw.Output),
		Cost:        raw.Cost,
		StringValue: raw.StringValue,
		Source:      raw.Source,
	}
	if raw.Public != nil {
		rec.Public = *raw.Public
	}
	if raw.Bookmarked != nil {
		rec.Bookmarked = *raw.Bookmarked
	}
	if raw.Value != nil {
		rec.Value = *raw.Value
	}
	if rec.ProjectID == "" {
		rec.ProjectID = defaultProjectID
	}

	switch strings.ToLower(strings.TrimSpace(raw.Type)) {
	case "session":
		rec.Kind = kindSession
	case "trace":
		rec.Kind = kindTrace
	case "score":
		rec.Kind = kindScore
	case "":
		switch {
		case rec.TraceID != "":
			rec.Kind = kindScore
		case rec.SessionID != "":
			rec.Kind = kindTrace
		}
	}

	switch rec.Kind {
	case kindSession:
		if rec.ID == "" {
			return record{}, fmt.Errorf("session record without id")
		}
	case kindTrace:
		if rec.SessionID == "" {
			// traces outside a session have no page to show on
			return record{Kind: kindSkip}, nil
		}
		if rec.ID == "" {
			rec.ID = ulid.Make().String()
		}
	case kindScore:
		if rec.TraceID == "" {
			return record{}, fmt.Errorf("score record without traceId")
		}
		if rec.ID == "" {
			rec.ID = ulid.Make().String()
		}
	}
	return rec, nil
}

// payloadText keeps a payload as compact JSON text; null and absent values
// become empty.
func payloadText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return string(raw)
	}
	if EmptyPayload(b.String()) {
		return ""
	}
	return b.String()
}

// parseTimestamp accepts RFC 3339 strings and unix seconds or milliseconds.
// The result is in milliseconds.
func parseTimestamp(raw json.RawMessage) *int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				ms := t.UnixMilli()
				return &ms
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return unixToMillis(n)
		}
		return nil
	}
	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return nil
	}
	return unixToMillis(n)
}

func unixToMillis(n float64) *int64 {
	if n <= 0 {
		return nil
	}
	var ms int64
	if n > 1e12 {
		ms = int64(n)
	} else {
		ms = int64(n * 1000)
	}
	return &ms
}
