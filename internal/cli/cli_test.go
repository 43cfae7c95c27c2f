package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-trace/internal/config"
)

const fixture = `{"type":"trace","id":"t1","sessionId":"s1","projectId":"acme","name":"plan","timestamp":"2024-05-01T10:00:00Z","userId":"u1","input":"hello","output":{"ok":true},"cost":0.25}
{"type":"trace","id":"t2","sessionId":"s1","projectId":"acme","name":"act","timestamp":"2024-05-01T10:01:00Z","cost":1}
{"type":"score","traceId":"t1","name":"quality","value":0.8}
{"type":"trace","id":"t3","sessionId":"s2","projectId":"other","name":"x","timestamp":"2024-05-01T11:00:00Z"}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	traces := filepath.Join(dir, "traces")
	require.NoError(t, os.MkdirAll(traces, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(traces, "log.jsonl"), []byte(fixture), 0o644))
	t.Setenv(config.EnvConfigPath, filepath.Join(dir, "missing.yaml"))

	var out bytes.Buffer
	root := NewRootCmd("test")
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args,
		"--project", "acme",
		"--db-path", filepath.Join(dir, "db", "index.sqlite"),
		"--traces-dir", traces,
		"--export-dir", filepath.Join(dir, "exports"),
	))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSessionsListsProjectSessions(t *testing.T) {
	out, err := execute(t, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "s1")
	assert.NotContains(t, out, "s2")
}

func TestIngestReportsSessionCount(t *testing.T) {
	out, err := execute(t, "ingest")
	require.NoError(t, err)
	assert.Contains(t, out, "1 sessions in project acme")
}

func TestExportToStdout(t *testing.T) {
	out, err := execute(t, "export", "s1", "--stdout")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Session s1"))
	assert.Contains(t, out, "total_cost: $1.25")
	assert.Contains(t, out, "Scores: quality: 0.8")
	assert.Contains(t, out, "_This trace has no input or output._")
}

func TestExportDeniedSession(t *testing.T) {
	_, err := execute(t, "export", "s2", "--stdout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "you do not have access to session s2")
}

func TestExportMissingSession(t *testing.T) {
	_, err := execute(t, "export", "nope", "--stdout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session nope not found")
}

func TestExportWritesFile(t *testing.T) {
	out, err := execute(t, "export", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported:")
	path := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "Exported:"))
	assert.FileExists(t, path)
	assert.Equal(t, "s1.md", filepath.Base(path))
}
