package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"session-trace/internal/fetch"
	"session-trace/internal/nav"
	"session-trace/internal/prefs"
	"session-trace/internal/store"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu         sync.Mutex
	sessions   map[string]store.Session
	traces     map[string]store.Trace
	sessionErr error
	traceErrs  map[string]error

	sessionCalls map[string]int
	traceCalls   map[string]int
	bookmarked   map[string]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		sessions:     make(map[string]store.Session),
		traces:       make(map[string]store.Trace),
		traceErrs:    make(map[string]error),
		sessionCalls: make(map[string]int),
		traceCalls:   make(map[string]int),
		bookmarked:   make(map[string]bool),
	}
}

func (f *fakeSource) addSession(id string, traces ...store.Trace) {
	sess := store.Session{ID: id, ProjectID: "p1", Users: []string{"u1", ""}, TotalCost: 1.5}
	for _, t := range traces {
		sess.Traces = append(sess.Traces, t.TraceSummary)
		f.traces[t.ID] = t
	}
	f.sessions[id] = sess
}

func (f *fakeSource) GetSession(_ context.Context, _, id string) (store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionCalls[id]++
	if f.sessionErr != nil {
		return store.Session{}, f.sessionErr
	}
	sess, ok := f.sessions[id]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	return sess, nil
}

func (f *fakeSource) GetTrace(_ context.Context, _, id string) (store.Trace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traceCalls[id]++
	if err := f.traceErrs[id]; err != nil {
		return store.Trace{}, err
	}
	t, ok := f.traces[id]
	if !ok {
		return store.Trace{}, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeSource) SetBookmarked(_ context.Context, _, id string, v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookmarked[id] = v
	return nil
}

func (f *fakeSource) SetPublic(context.Context, string, string, bool) error {
	return store.ErrUnauthorized
}

func (f *fakeSource) traceCallCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.traceCalls[id]
}

func (f *fakeSource) totalTraceCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.traceCalls {
		n += c
	}
	return n
}

type memPrefs map[string]string

func (p memPrefs) Read(key string) (string, bool, error) {
	v, ok := p[key]
	return v, ok, nil
}

func (p memPrefs) Write(key, value string) error {
	p[key] = value
	return nil
}

type fakeClipboard struct {
	mu  sync.Mutex
	got []string
}

func (c *fakeClipboard) WriteAll(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, text)
	return nil
}

func trace(id string, input, output string) store.Trace {
	return store.Trace{
		TraceSummary: store.TraceSummary{
			ID:        id,
			Name:      "trace-" + id,
			Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		Input:  input,
		Output: output,
	}
}

func manyTraces(n int) []store.Trace {
	out := make([]store.Trace, n)
	for i := range out {
		out[i] = trace(fmt.Sprintf("t%02d", i), "", "")
	}
	return out
}

type harness struct {
	src   *fakeSource
	nav   *nav.Registry
	prefs memPrefs
	clip  *fakeClipboard
	model Model
}

func newHarness(t *testing.T, src *fakeSource, sessionID string) *harness {
	t.Helper()
	h := &harness{src: src, nav: nav.NewRegistry(), prefs: memPrefs{}, clip: &fakeClipboard{}}
	h.model = NewModel(src, h.nav, h.prefs, nil, Options{
		ProjectID:  "p1",
		SessionID:  sessionID,
		Overscan:   1,
		RowRefetch: fetch.RefetchNever,
		RetryDelay: func(int) time.Duration { return 0 },
		Clipboard:  h.clip,
	})
	return h
}

// start sizes the window and runs the initial session load to completion.
func (h *harness) start(t *testing.T) {
	t.Helper()
	h.send(t, tea.WindowSizeMsg{Width: 120, Height: 40})
	h.run(t, h.model.Init())
}

func (h *harness) send(t *testing.T, msg tea.Msg) {
	t.Helper()
	next, cmd := h.model.Update(msg)
	h.model = next.(Model)
	h.run(t, cmd)
}

func (h *harness) key(t *testing.T, k string) {
	t.Helper()
	h.send(t, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
}

// run executes commands synchronously, feeding each result back into the
// model until nothing is left. Spinner ticks are dropped.
func (h *harness) run(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 10_000, "command queue did not settle")
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil, spinner.TickMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			next, more := h.model.Update(msg)
			h.model = next.(Model)
			queue = append(queue, more)
		}
	}
}

func TestUnauthorizedSessionShowsAccessDeniedWithoutRetry(t *testing.T) {
	src := newFakeSource()
	src.sessionErr = fmt.Errorf("get session: %w", store.ErrUnauthorized)
	h := newHarness(t, src, "s1")
	h.start(t)

	assert.Equal(t, 1, src.sessionCalls["s1"])
	assert.Contains(t, h.model.View(), accessDeniedMessage)

	h.key(t, "r")
	assert.Equal(t, 1, src.sessionCalls["s1"], "denied sessions are never requested again")
	assert.Nil(t, h.model.loadSession())
}

func TestTransientSessionErrorRetriesThenShowsError(t *testing.T) {
	src := newFakeSource()
	src.sessionErr = errors.New("connection reset")
	h := newHarness(t, src, "s1")
	h.start(t)

	assert.Equal(t, 4, src.sessionCalls["s1"])
	view := h.model.View()
	assert.Contains(t, view, "Error loading session: connection reset")
	assert.NotContains(t, view, accessDeniedMessage)
	assert.Empty(t, h.nav.List(nav.ListTraces))
}

func TestEmptySessionRendersZeroHeightList(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1")
	h := newHarness(t, src, "s1")
	h.start(t)

	assert.Contains(t, h.model.View(), "Traces: 0")
	assert.Zero(t, h.model.list.TotalSize())
	assert.Empty(t, h.model.list.VirtualItems())
	assert.Zero(t, src.totalTraceCalls())
}

func TestHeaderBadges(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1", trace("a", `"hi"`, ""))
	h := newHarness(t, src, "s1")
	h.start(t)

	view := h.model.View()
	assert.Contains(t, view, "Sessions / s1")
	assert.Contains(t, view, "User ID: u1")
	assert.Equal(t, 1, strings.Count(view, "User ID:"), "blank users get no badge")
	assert.Contains(t, view, "Traces: 1")
	assert.Contains(t, view, "Total cost: $1.50")
}

func TestRowsRenderTheirOwnState(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1", trace("empty", "", ""), trace("broken", `"x"`, ""))
	src.traceErrs["broken"] = errors.New("timeout")
	h := newHarness(t, src, "s1")
	h.start(t)

	view := h.model.View()
	assert.Contains(t, view, emptyTraceMessage)
	assert.Contains(t, view, "Failed to load trace")
	assert.Contains(t, view, "Trace: trace-empty (empty)")
	assert.Equal(t, fetch.StatusSuccess, h.model.sessions.Get("s1").Status, "row failures stay local")
	assert.Equal(t, 4, src.traceCallCount("broken"))
}

func TestEmptyStringPayloadCountsAsEmpty(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1", trace("blank", `""`, "null"))
	h := newHarness(t, src, "s1")
	h.start(t)

	view := h.model.View()
	assert.Contains(t, view, emptyTraceMessage)
	assert.NotContains(t, view, "Input")
}

func TestClampPayloadKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", maxPreviewBytes-1) + "é" + strings.Repeat("b", 10)
	got := clampPayload(s)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxPreviewBytes-1)

	s = strings.Repeat("日本", maxPreviewBytes)
	got = clampPayload(s)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxPreviewBytes)
	assert.Greater(t, len(got), maxPreviewBytes-utf8.UTFMax)

	assert.Equal(t, "short", clampPayload("short"))
}

func TestRowsAreNotRefetchedOnRemount(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1", manyTraces(30)...)
	h := newHarness(t, src, "s1")
	h.start(t)

	require.Equal(t, 1, src.traceCallCount("t00"))
	require.Zero(t, src.traceCallCount("t29"), "rows outside the window are not loaded")

	h.key(t, "G")
	assert.Equal(t, 1, src.traceCallCount("t29"))
	assert.NotContains(t, h.model.mounted, "t00")

	h.key(t, "g")
	assert.Contains(t, h.model.mounted, "t00")
	assert.Equal(t, 1, src.traceCallCount("t00"))
	assert.Equal(t, 1, src.traceCallCount("t29"))
}

func TestOnlyWindowedRowsAreRendered(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1", manyTraces(200)...)
	h := newHarness(t, src, "s1")
	h.start(t)

	items := h.model.list.VirtualItems()
	require.NotEmpty(t, items)
	assert.Less(t, len(items), 10)
	assert.Equal(t, len(items), len(h.model.mounted))
	assert.Equal(t, len(items), src.totalTraceCalls())
}

func TestRowHeightChangeRemeasures(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1", manyTraces(10)...)
	h := newHarness(t, src, "s1")
	h.start(t)

	n := 10
	assert.Equal(t, n*prefs.RowHeightMedium.Lines()+(n-1)*rowGap, h.model.list.TotalSize())

	h.key(t, "h")
	assert.Equal(t, n*prefs.RowHeightLarge.Lines()+(n-1)*rowGap, h.model.list.TotalSize())
	assert.Equal(t, "l", h.prefs["rowHeight-single-session"])

	first, ok := h.model.list.Item(0)
	require.True(t, ok)
	assert.Equal(t, prefs.RowHeightLarge.Lines(), first.Size)
	assert.Len(t, h.model.renderCard(src.sessions["s1"].Traces[0], first.Size, false), first.Size)
}

func TestPersistedRowHeightIsUsed(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1", manyTraces(3)...)
	h := newHarness(t, src, "s1")
	h.prefs["rowHeight-single-session"] = "s"
	h.model = NewModel(src, h.nav, h.prefs, nil, Options{ProjectID: "p1", SessionID: "s1"})
	h.start(t)

	assert.Equal(t, 3*prefs.RowHeightSmall.Lines()+2*rowGap, h.model.list.TotalSize())
}

func TestTraceListRegisteredOnlyOnSuccessTransition(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1", trace("a", "", ""), trace("b", "", ""))
	h := newHarness(t, src, "s1")
	h.start(t)

	assert.Equal(t, []string{"a", "b"}, h.nav.List(nav.ListTraces))

	h.nav.Register(nav.ListTraces, []string{"other"})
	h.key(t, "r")
	assert.Equal(t, 2, src.sessionCalls["s1"])
	assert.Equal(t, []string{"other"}, h.nav.List(nav.ListTraces), "background refetch must not register again")
}

func TestSessionNavigation(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1", trace("a", "", ""))
	src.addSession("s2", trace("b", "", ""), trace("c", "", ""))
	h := newHarness(t, src, "s1")
	h.nav.Register(nav.ListSessions, []string{"s1", "s2"})
	h.start(t)

	h.key(t, "[")
	assert.Contains(t, h.model.status, "No previous session")

	h.key(t, "]")
	assert.Equal(t, "s2", h.model.sessionID)
	assert.Equal(t, []string{"b", "c"}, h.nav.List(nav.ListTraces))
	assert.Contains(t, h.model.View(), "Sessions / s2")

	h.key(t, "[")
	assert.Equal(t, "s1", h.model.sessionID)
	assert.Equal(t, 1, src.sessionCalls["s1"], "cached session is not reloaded")
	assert.Equal(t, []string{"a"}, h.nav.List(nav.ListTraces))
}

func TestBookmarkAndPublishToggles(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1", trace("a", "", ""))
	h := newHarness(t, src, "s1")
	h.start(t)

	h.key(t, "b")
	assert.True(t, src.bookmarked["s1"])
	assert.True(t, h.model.sessions.Get("s1").Data.Bookmarked)
	assert.Contains(t, h.model.View(), "★ Bookmarked")

	h.key(t, "P")
	assert.False(t, h.model.sessions.Get("s1").Data.Public)
	assert.Contains(t, h.model.status, "Only the owning project")
}

func TestCopySelectedTraceID(t *testing.T) {
	src := newFakeSource()
	src.addSession("s1", trace("a", "", ""), trace("b", "", ""))
	h := newHarness(t, src, "s1")
	h.start(t)

	h.key(t, "j")
	h.key(t, "c")
	assert.Equal(t, []string{"b"}, h.clip.got)
	assert.Contains(t, h.model.status, "Copied trace id b")
}

func TestSearchJumpsBetweenMatchingRows(t *testing.T) {
	src := newFakeSource()
	traces := manyTraces(20)
	traces[3].Name = "needle one"
	traces[12].Name = "Needle two"
	src.addSession("s1", traces...)
	h := newHarness(t, src, "s1")
	h.start(t)

	h.key(t, "/")
	for _, r := range "needle" {
		h.key(t, string(r))
	}
	h.send(t, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "needle", h.model.searchQuery)
	assert.Equal(t, 2, h.model.matchCount)

	h.key(t, "n")
	assert.Equal(t, 3, h.model.selected)
	h.key(t, "n")
	assert.Equal(t, 12, h.model.selected)
	assert.Contains(t, h.model.mounted, "t12")
	h.key(t, "n")
	assert.Equal(t, 3, h.model.selected)
	h.key(t, "N")
	assert.Equal(t, 12, h.model.selected)
}
