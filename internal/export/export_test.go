package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-trace/internal/store"
)

func sampleSession() (store.Session, []store.Trace) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sess := store.Session{
		ID:        "s1",
		ProjectID: "p1",
		Users:     []string{"", "u1"},
		TotalCost: 1234.5,
		Traces: []store.TraceSummary{
			{ID: "t1", Name: "first", Timestamp: ts, Scores: []store.Score{
				{Name: "quality", Value: 0.9},
				{Name: "label", StringValue: "good"},
				{Name: "quality", Value: 0.5},
			}},
			{ID: "t2", Name: "second", Timestamp: ts},
			{ID: "t3", Name: "third", Timestamp: ts},
		},
	}
	traces := []store.Trace{
		{TraceSummary: sess.Traces[0], Input: `"hi"`, Output: `{"a":1}`},
		{TraceSummary: sess.Traces[1]},
	}
	return sess, traces
}

func TestBuildSessionMarkdown(t *testing.T) {
	sess, traces := sampleSession()
	out := BuildSessionMarkdown(sess, traces, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	assert.Contains(t, out, "# Session s1")
	assert.Contains(t, out, "users: u1\n")
	assert.Contains(t, out, "traces: 3")
	assert.Contains(t, out, "total_cost: $1,234.50")
	assert.Contains(t, out, "Scores: quality: 0.9, 0.5; label: good")
	assert.Contains(t, out, "**Input**\n\n```text\nhi\n```")
	assert.Contains(t, out, "```json\n{\n  \"a\": 1\n}\n```")
	assert.Contains(t, out, "## Trace: second (t2)\n")
	assert.Contains(t, out, "_This trace has no input or output._")
	assert.Contains(t, out, "_Trace content unavailable._")
}

func TestIOMarkdownSkipsMissingFields(t *testing.T) {
	out := IOMarkdown("", `[1,2]`)
	assert.NotContains(t, out, "Input")
	assert.Contains(t, out, "**Output**")
	assert.Empty(t, IOMarkdown("", " "))
}

func TestPrettyPayload(t *testing.T) {
	text, lang := PrettyPayload(`"line1\nline2"`)
	assert.Equal(t, "line1\nline2", text)
	assert.Equal(t, "text", lang)

	text, lang = PrettyPayload(`not json`)
	assert.Equal(t, "not json", text)
	assert.Equal(t, "text", lang)
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$0.00", FormatUSD(0))
	assert.Equal(t, "$0.13", FormatUSD(0.125001))
	assert.Equal(t, "$12,345.68", FormatUSD(12345.678))
	assert.Equal(t, "-$1.50", FormatUSD(-1.5))
}

func TestExportWritesFile(t *testing.T) {
	dir := t.TempDir()
	e := &Exporter{overrideDir: "out", cwd: dir}
	sess, traces := sampleSession()
	sess.ID = "a/b"

	path, err := e.Export(sess, traces)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "a_b.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Session a/b"))
}

func TestCollectSkipsUnreadableTraces(t *testing.T) {
	sess, _ := sampleSession()
	load := func(_ context.Context, id string) (store.Trace, error) {
		switch id {
		case "t2":
			return store.Trace{}, fmt.Errorf("get trace: %w", store.ErrNotFound)
		case "t3":
			return store.Trace{}, store.ErrUnauthorized
		}
		return store.Trace{TraceSummary: store.TraceSummary{ID: id}, Input: `"x"`}, nil
	}

	got, err := Collect(context.Background(), sess, load)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)
}

func TestCollectFailsOnOtherErrors(t *testing.T) {
	sess, _ := sampleSession()
	boom := errors.New("disk on fire")
	_, err := Collect(context.Background(), sess, func(context.Context, string) (store.Trace, error) {
		return store.Trace{}, boom
	})
	assert.ErrorIs(t, err, boom)
}
