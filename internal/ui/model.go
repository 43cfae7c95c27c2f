package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"session-trace/internal/clipboard"
	"session-trace/internal/config"
	"session-trace/internal/export"
	"session-trace/internal/fetch"
	"session-trace/internal/highlight"
	"session-trace/internal/nav"
	"session-trace/internal/prefs"
	"session-trace/internal/store"
	"session-trace/internal/virtual"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/rs/zerolog"
)

const (
	rowHeightScope = "single-session"
	rowGap         = 1
	wheelStep      = 3

	accessDeniedMessage = "You do not have access to this session."
)

// Source is what the session page reads and mutates.
type Source interface {
	GetSession(ctx context.Context, projectID, sessionID string) (store.Session, error)
	GetTrace(ctx context.Context, projectID, traceID string) (store.Trace, error)
	SetBookmarked(ctx context.Context, projectID, sessionID string, v bool) error
	SetPublic(ctx context.Context, projectID, sessionID string, v bool) error
}

type Options struct {
	ProjectID    string
	SessionID    string
	Overscan     int
	RowRefetch   fetch.RefetchPolicy
	RowStaleTime time.Duration
	GlamourStyle string
	// RetryDelay overrides the fetch backoff; tests pass a zero delay.
	RetryDelay func(failureCount int) time.Duration
	Clipboard  clipboard.Writer
	Logger     zerolog.Logger
}

type Model struct {
	src       Source
	opts      Options
	nav       *nav.Registry
	exporter  *export.Exporter
	rowHeight *prefs.RowHeightSetting
	log       zerolog.Logger

	sessions *fetch.Client[string, store.Session]
	traces   *fetch.Client[string, store.Trace]
	list     *virtual.Virtualizer

	help    help.Model
	spinner spinner.Model
	search  textinput.Model
	keys    keyMap

	width  int
	height int

	sessionID  string
	registered bool
	rowSize    prefs.RowHeight
	selected   int
	ticking    bool

	mounted   map[string]struct{}
	previews  map[string]string
	rendering map[string]bool

	searchMode  bool
	searchQuery string
	matchIndex  int
	matchCount  int

	status string
	err    error
}

type previewMsg struct {
	key      string
	rendered string
}

type flagField int

const (
	flagBookmarked flagField = iota
	flagPublic
)

type flagMsg struct {
	sessionID string
	field     flagField
	value     bool
	err       error
}

type exportMsg struct {
	path string
	err  error
}

type copyMsg struct {
	traceID string
	err     error
}

func isUnauthorized(err error) bool {
	return errors.Is(err, store.ErrUnauthorized)
}

func sessionRetry(failureCount int, err error) bool {
	return !isUnauthorized(err) && fetch.DefaultRetry(failureCount, err)
}

func NewModel(src Source, registry *nav.Registry, prefStore prefs.Store, exp *export.Exporter, opts Options) Model {
	if opts.GlamourStyle == "" {
		opts.GlamourStyle = config.DefaultGlamourStyle
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.System
	}
	if registry == nil {
		registry = nav.NewRegistry()
	}
	log := opts.Logger.With().Str("component", "session-page").Logger()

	sessions := fetch.NewClient(func(ctx context.Context, id string) (store.Session, error) {
		return src.GetSession(ctx, opts.ProjectID, id)
	}, fetch.Options{
		Retry:          sessionRetry,
		RetryDelay:     opts.RetryDelay,
		Unauthorized:   isUnauthorized,
		RefetchOnMount: fetch.RefetchNever,
		Logger:         &log,
		Name:           "session",
	})
	traces := fetch.NewClient(func(ctx context.Context, id string) (store.Trace, error) {
		return src.GetTrace(ctx, opts.ProjectID, id)
	}, fetch.Options{
		Retry:          sessionRetry,
		RetryDelay:     opts.RetryDelay,
		Unauthorized:   isUnauthorized,
		RefetchOnMount: opts.RowRefetch,
		StaleTime:      opts.RowStaleTime,
		Logger:         &log,
		Name:           "trace",
	})

	setting := prefs.NewRowHeightSetting(prefStore, rowHeightScope, prefs.RowHeightMedium)
	size, err := setting.Get()
	if err != nil {
		log.Warn().Err(err).Str("key", setting.Key()).Msg("read row height preference")
	}

	h := help.New()
	h.ShowAll = false

	sp := spinner.New()
	sp.Spinner = spinner.Points

	ti := textinput.New()
	ti.Placeholder = "Search traces..."
	ti.Prompt = "/ "
	ti.CharLimit = 256

	m := Model{
		src:        src,
		opts:       opts,
		nav:        registry,
		exporter:   exp,
		rowHeight:  setting,
		log:        log,
		sessions:   sessions,
		traces:     traces,
		help:       h,
		spinner:    sp,
		search:     ti,
		keys:       defaultKeys(),
		sessionID:  opts.SessionID,
		rowSize:    size,
		mounted:    make(map[string]struct{}),
		previews:   make(map[string]string),
		rendering:  make(map[string]bool),
		matchIndex: -1,
	}
	m.list = virtual.New(m.listOptions())
	return m
}

func (m Model) Init() tea.Cmd {
	return m.loadSession()
}

func (m Model) loadSession() tea.Cmd {
	return m.sessions.Mount(m.sessionID)
}

func fixedEstimate(lines int) func(int) int {
	return func(int) int { return lines }
}

func (m *Model) listOptions() virtual.Options {
	count := 0
	if sess, ok := m.session(); ok {
		count = len(sess.Traces)
	}
	return virtual.Options{
		Count:        count,
		EstimateSize: fixedEstimate(m.rowSize.Lines()),
		Overscan:     m.opts.Overscan,
		ScrollMargin: len(m.headerLines()),
		Gap:          rowGap,
	}
}

func (m Model) session() (store.Session, bool) {
	res := m.sessions.Get(m.sessionID)
	return res.Data, res.Status == fetch.StatusSuccess
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width != m.width {
			m.previews = make(map[string]string)
		}
		m.width, m.height = msg.Width, msg.Height
		cmds = append(cmds, m.layout())

	case fetch.Msg[string, store.Session]:
		if !m.sessions.Resolve(msg) || msg.Key != m.sessionID {
			break
		}
		m.observeSession()
		cmds = append(cmds, m.layout())

	case fetch.Msg[string, store.Trace]:
		if !m.traces.Resolve(msg) {
			break
		}
		if _, ok := m.mounted[msg.Key]; ok {
			cmds = append(cmds, m.previewCmd(msg.Key))
		}

	case previewMsg:
		delete(m.rendering, msg.key)
		m.previews[msg.key] = msg.rendered

	case flagMsg:
		m.applyFlag(msg)

	case exportMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Export failed: " + msg.err.Error()
		} else {
			m.status = "Exported: " + msg.path
		}

	case copyMsg:
		if msg.err != nil {
			m.err = msg.err
			if errors.Is(msg.err, clipboard.ErrUnavailable) {
				m.status = "Could not copy: clipboard unavailable"
			} else {
				m.status = "Could not copy: " + msg.err.Error()
			}
		} else {
			m.status = "Copied trace id " + msg.traceID
		}

	case spinner.TickMsg:
		if !m.loading() {
			m.ticking = false
			break
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		if msg.Action != tea.MouseActionPress {
			break
		}
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.list.ScrollBy(-wheelStep)
		case tea.MouseButtonWheelDown:
			m.list.ScrollBy(wheelStep)
		default:
			return m, nil
		}
		m.followScroll()
		cmds = append(cmds, m.syncRows())

	case tea.KeyMsg:
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		cmds = append(cmds, cmd)
	}

	if m.loading() && !m.ticking {
		m.ticking = true
		cmds = append(cmds, m.spinner.Tick)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.searchMode {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.moveSelection(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveSelection(1)
	case key.Matches(msg, m.keys.PageUp):
		m.list.ScrollBy(-max(m.list.Viewport()/2, 1))
		m.followScroll()
	case key.Matches(msg, m.keys.PageDown):
		m.list.ScrollBy(max(m.list.Viewport()/2, 1))
		m.followScroll()
	case key.Matches(msg, m.keys.Top):
		m.selected = 0
		m.list.ScrollTo(0)
	case key.Matches(msg, m.keys.Bottom):
		if sess, ok := m.session(); ok && len(sess.Traces) > 0 {
			m.selected = len(sess.Traces) - 1
		}
		m.list.ScrollTo(m.list.MaxScroll())
	case key.Matches(msg, m.keys.RowHeight):
		m.cycleRowHeight()
	case key.Matches(msg, m.keys.Bookmark):
		return m, m.toggleFlagCmd(flagBookmarked)
	case key.Matches(msg, m.keys.Publish):
		return m, m.toggleFlagCmd(flagPublic)
	case key.Matches(msg, m.keys.PrevSession), key.Matches(msg, m.keys.NextSession):
		prev, next := m.nav.Neighbors(nav.ListSessions, m.sessionID)
		target, label := next, "next"
		if key.Matches(msg, m.keys.PrevSession) {
			target, label = prev, "previous"
		}
		if target == "" {
			m.status = "No " + label + " session"
			return m, nil
		}
		cmd := m.switchSession(target)
		return m, cmd
	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.search.SetValue(m.searchQuery)
		m.search.CursorEnd()
		m.search.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.NextMatch):
		m.jumpToMatch(1)
	case key.Matches(msg, m.keys.PrevMatch):
		m.jumpToMatch(-1)
	case key.Matches(msg, m.keys.Copy):
		return m, m.copyCmd()
	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()
	case key.Matches(msg, m.keys.Reload):
		cmd := m.reload()
		return m, cmd
	default:
		return m, nil
	}
	cmd := m.syncRows()
	return m, cmd
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searchMode = false
		m.searchQuery = ""
		m.search.SetValue("")
		m.search.Blur()
		m.matchCount, m.matchIndex = 0, -1
		return m, nil
	case "enter":
		m.searchMode = false
		m.search.Blur()
		m.searchQuery = strings.TrimSpace(m.search.Value())
		m.matchIndex = -1
		m.matchCount = len(m.matchingRows())
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.searchQuery = strings.TrimSpace(m.search.Value())
	return m, cmd
}

// observeSession registers the trace order with the navigation registry on
// the transition into success. Background refetches of an already
// successful session do not register again.
func (m *Model) observeSession() {
	res := m.sessions.Get(m.sessionID)
	switch res.Status {
	case fetch.StatusSuccess:
		if m.registered {
			return
		}
		m.registered = true
		m.nav.Register(nav.ListTraces, res.Data.TraceIDs())
		m.err = nil
		m.log.Debug().Str("session_id", m.sessionID).Int("traces", len(res.Data.Traces)).Msg("session loaded")
	case fetch.StatusUnauthorized:
		m.registered = false
		m.log.Info().Str("session_id", m.sessionID).Msg("session access denied")
	case fetch.StatusError:
		m.registered = false
		m.err = res.Err
	case fetch.StatusIdle, fetch.StatusPending:
		m.registered = false
	}
}

// layout sizes the virtualizer from the current session and window, then
// mounts the rows that came into view.
func (m *Model) layout() tea.Cmd {
	m.list.SetOptions(m.listOptions())
	m.list.SetViewport(m.bodyHeight())
	m.clampSelection()
	return m.syncRows()
}

func (m *Model) bodyHeight() int {
	return max(m.height-2, 1)
}

func (m *Model) switchSession(id string) tea.Cmd {
	m.unmountAll()
	m.sessionID = id
	m.registered = false
	m.selected = 0
	m.err = nil
	m.status = ""
	m.matchCount, m.matchIndex = 0, -1
	m.list.ScrollTo(0)

	load := m.sessions.Mount(id)
	m.observeSession()
	m.log.Debug().Str("session_id", id).Bool("cached", load == nil).Msg("switch session")
	return tea.Batch(load, m.layout())
}

// reload refetches the session and drops every cached trace. A session
// the user may not read stays denied.
func (m *Model) reload() tea.Cmd {
	load := m.sessions.Refetch(m.sessionID)
	if load == nil {
		return nil
	}
	m.unmountAll()
	m.traces.Reset()
	m.previews = make(map[string]string)
	m.rendering = make(map[string]bool)
	m.status = "Reloading..."
	return tea.Batch(load, m.layout())
}

func (m *Model) cycleRowHeight() {
	size, err := m.rowHeight.Cycle()
	if err != nil {
		m.err = err
		m.log.Warn().Err(err).Str("key", m.rowHeight.Key()).Msg("persist row height")
	}
	m.rowSize = size
	m.list.SetOptions(m.listOptions())
	m.list.Measure()
	if m.selected > 0 {
		m.list.ScrollToIndex(m.selected, virtual.AlignStart)
	}
	m.status = "Row height: " + size.Label()
}

func (m *Model) clampSelection() {
	n := 0
	if sess, ok := m.session(); ok {
		n = len(sess.Traces)
	}
	switch {
	case n == 0:
		m.selected = 0
	case m.selected >= n:
		m.selected = n - 1
	case m.selected < 0:
		m.selected = 0
	}
}

func (m *Model) moveSelection(delta int) {
	m.selected += delta
	m.clampSelection()
	if m.selected == 0 {
		m.list.ScrollTo(0)
		return
	}
	m.list.ScrollToIndex(m.selected, virtual.AlignAuto)
}

// followScroll keeps the selection on a visible row after a page scroll.
func (m *Model) followScroll() {
	start, end, ok := m.list.Range()
	if !ok {
		return
	}
	if m.selected < start {
		m.selected = start
	} else if m.selected >= end {
		m.selected = end - 1
	}
}

func (m *Model) loading() bool {
	res := m.sessions.Get(m.sessionID)
	if res.Status == fetch.StatusPending || res.Fetching {
		return true
	}
	for id := range m.mounted {
		if m.traces.Get(id).Status == fetch.StatusPending {
			return true
		}
	}
	return len(m.rendering) > 0
}

func (m *Model) matchingRows() []int {
	sess, ok := m.session()
	h := highlight.New(m.searchQuery, nil)
	if !ok || h == nil {
		return nil
	}
	var out []int
	for i, t := range sess.Traces {
		if m.rowMatches(h, t) {
			out = append(out, i)
		}
	}
	return out
}

func (m *Model) rowMatches(h *highlight.Highlighter, t store.TraceSummary) bool {
	if h.Matches(t.Name) || h.Matches(t.ID) {
		return true
	}
	for _, s := range export.FormatScores(t.Scores) {
		if h.Matches(s) {
			return true
		}
	}
	res := m.traces.Get(t.ID)
	return res.Status == fetch.StatusSuccess && (h.Matches(res.Data.Input) || h.Matches(res.Data.Output))
}

// jumpToMatch selects the next matching row after the selection, wrapping
// around. Rows whose content has not loaded match on name and scores only.
func (m *Model) jumpToMatch(delta int) {
	rows := m.matchingRows()
	m.matchCount = len(rows)
	if len(rows) == 0 {
		m.matchIndex = -1
		if m.searchQuery != "" {
			m.status = "No matches for " + strconv.Quote(m.searchQuery)
		}
		return
	}
	idx := -1
	if delta > 0 {
		for i, r := range rows {
			if r > m.selected {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = 0
		}
	} else {
		for i := len(rows) - 1; i >= 0; i-- {
			if rows[i] < m.selected {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = len(rows) - 1
		}
	}
	m.matchIndex = idx
	m.selected = rows[idx]
	m.list.ScrollToIndex(m.selected, virtual.AlignStart)
}

func (m Model) toggleFlagCmd(field flagField) tea.Cmd {
	sess, ok := m.session()
	if !ok {
		return nil
	}
	value := !sess.Bookmarked
	if field == flagPublic {
		value = !sess.Public
	}
	src, projectID, id := m.src, m.opts.ProjectID, sess.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var err error
		switch field {
		case flagBookmarked:
			err = src.SetBookmarked(ctx, projectID, id, value)
		case flagPublic:
			err = src.SetPublic(ctx, projectID, id, value)
		}
		return flagMsg{sessionID: id, field: field, value: value, err: err}
	}
}

func (m *Model) applyFlag(msg flagMsg) {
	if msg.err != nil {
		m.err = msg.err
		if isUnauthorized(msg.err) {
			m.status = "Only the owning project can change this session"
		} else {
			m.status = "Could not update session: " + msg.err.Error()
		}
		return
	}
	m.sessions.Update(msg.sessionID, func(s store.Session) store.Session {
		switch msg.field {
		case flagBookmarked:
			s.Bookmarked = msg.value
		case flagPublic:
			s.Public = msg.value
		}
		return s
	})
	switch {
	case msg.field == flagBookmarked && msg.value:
		m.status = "Bookmarked session"
	case msg.field == flagBookmarked:
		m.status = "Removed bookmark"
	case msg.value:
		m.status = "Session is now public"
	default:
		m.status = "Session is now private"
	}
}

func (m Model) copyCmd() tea.Cmd {
	sess, ok := m.session()
	if !ok || m.selected >= len(sess.Traces) {
		return nil
	}
	id := sess.Traces[m.selected].ID
	w := m.opts.Clipboard
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return copyMsg{traceID: id, err: clipboard.Copy(ctx, w, id)}
	}
}

func (m Model) exportCmd() tea.Cmd {
	sess, ok := m.session()
	if !ok || m.exporter == nil {
		return nil
	}
	traces, exporter := m.traces, m.exporter
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		loaded, err := export.Collect(ctx, sess, traces.Load)
		if err != nil {
			return exportMsg{err: err}
		}
		path, err := exporter.Export(sess, loaded)
		return exportMsg{path: path, err: err}
	}
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	status := m.statusLine()
	helpView := m.help.View(m.keys)
	if m.searchMode {
		helpView = m.search.View() + "  " + helpView
	} else if m.searchQuery != "" {
		helpView = "search: " + m.searchQuery + "  " + helpView
	}

	var body string
	if m.sessions.Get(m.sessionID).Status == fetch.StatusUnauthorized {
		body = lipgloss.Place(m.width, m.bodyHeight(), lipgloss.Center, lipgloss.Center,
			errorStyle.Render(accessDeniedMessage))
	} else {
		body = m.pageView()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		status,
		body,
		helpView,
	)
}

// pageView draws the scrolled page: the header followed by the cards of
// the current window. Rows outside the window are never rendered.
func (m Model) pageView() string {
	height := m.bodyHeight()
	lines := make([]string, height)
	scroll := m.list.ScrollOffset()
	place := func(row int, line string) {
		if y := row - scroll; y >= 0 && y < height {
			lines[y] = line
		}
	}

	for i, line := range m.headerLines() {
		place(i, line)
	}
	if sess, ok := m.session(); ok {
		for _, it := range m.list.VirtualItems() {
			card := m.renderCard(sess.Traces[it.Index], it.Size, it.Index == m.selected)
			for j, line := range card {
				place(it.Start+j, line)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) pageWidth() int {
	return max(m.width, 40)
}

func (m Model) headerLines() []string {
	width := m.pageWidth()
	title := titleStyle.Render("Session")
	actions := m.actionsView()
	pad := max(width-lipgloss.Width(title)-lipgloss.Width(actions), 1)

	lines := []string{
		ansi.Truncate(title+strings.Repeat(" ", pad)+actions, width, "…"),
		breadcrumbStyle.Render(ansi.Truncate("Sessions / "+m.sessionID, width, "…")),
	}
	lines = append(lines, wrapBadges(m.badges(), width)...)
	lines = append(lines, mutedStyle.Render(strings.Repeat("─", width)))

	res := m.sessions.Get(m.sessionID)
	switch res.Status {
	case fetch.StatusIdle, fetch.StatusPending:
		lines = append(lines, m.spinner.View()+" Loading session...")
	case fetch.StatusError:
		msg := "Error loading session"
		if res.Err != nil {
			msg += ": " + res.Err.Error()
		}
		lines = append(lines, errorStyle.Render(ansi.Truncate(msg, width, "…")))
	case fetch.StatusSuccess:
		if len(res.Data.Traces) == 0 {
			lines = append(lines, mutedStyle.Render("No traces in this session."))
		}
	case fetch.StatusUnauthorized:
	}
	return lines
}

func (m Model) actionsView() string {
	var parts []string
	if sess, ok := m.session(); ok {
		if sess.Bookmarked {
			parts = append(parts, actionOnStyle.Render("★ Bookmarked"))
		} else {
			parts = append(parts, actionOffStyle.Render("☆ Bookmark"))
		}
		if sess.Public {
			parts = append(parts, actionOnStyle.Render("● Public"))
		} else {
			parts = append(parts, actionOffStyle.Render("○ Private"))
		}
	}
	if idx, total := m.nav.Position(nav.ListSessions, m.sessionID); idx >= 0 {
		parts = append(parts, mutedStyle.Render(fmt.Sprintf("‹ %d/%d ›", idx+1, total)))
	}
	parts = append(parts, mutedStyle.Render("Rows: "+m.rowSize.Label()))
	return strings.Join(parts, "  ")
}

func (m Model) badges() []string {
	res := m.sessions.Get(m.sessionID)
	ok := res.Status == fetch.StatusSuccess

	var out []string
	if ok {
		for _, u := range export.NonEmpty(res.Data.Users) {
			out = append(out, outlineBadgeStyle.Render("User ID: "+u))
		}
	}
	count := ""
	if ok {
		count = strconv.Itoa(len(res.Data.Traces))
	}
	out = append(out, badgeStyle.Render("Traces: "+count))
	if ok {
		out = append(out, badgeStyle.Render("Total cost: "+export.FormatUSD(res.Data.TotalCost)))
	}
	return out
}

func wrapBadges(badges []string, width int) []string {
	var lines []string
	cur := ""
	for _, b := range badges {
		switch {
		case cur == "":
			cur = b
		case lipgloss.Width(cur)+1+lipgloss.Width(b) > width:
			lines = append(lines, cur)
			cur = b
		default:
			cur += " " + b
		}
	}
	if cur != "" {
		lines = append(lines, ansi.Truncate(cur, width, "…"))
	}
	return lines
}

func (m Model) statusLine() string {
	res := m.sessions.Get(m.sessionID)
	status := fmt.Sprintf("session=%s  state=%s", shorten(m.sessionID, 24), res.Status)
	if sess, ok := m.session(); ok && len(sess.Traces) > 0 {
		status += fmt.Sprintf("  trace %d/%d", m.selected+1, len(sess.Traces))
	}
	if m.loading() {
		status += "  " + m.spinner.View()
	}
	if m.searchQuery != "" || m.searchMode {
		status += "  [search]"
		if m.searchQuery != "" && m.matchCount > 0 {
			status += fmt.Sprintf("  [match %d/%d]", max(m.matchIndex+1, 1), m.matchCount)
		}
	}
	if strings.TrimSpace(m.status) != "" {
		status += "  " + shorten(strings.TrimSpace(m.status), 80)
	}
	if m.err != nil {
		status += "  err=" + m.err.Error()
	}
	return statusStyle.Render(ansi.Truncate(status, max(m.width-2, 10), "…"))
}

func shorten(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
