package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"session-trace/internal/export"
	"session-trace/internal/fetch"
	"session-trace/internal/highlight"
	"session-trace/internal/store"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const (
	emptyTraceMessage = "This trace has no input or output."
	// previews only ever show the first screenful of a payload
	maxPreviewBytes = 20_000
	skeletonRows    = 4
)

// syncRows mounts the rows of the current window and unmounts the rest.
// Unmounting abandons an in-flight load; cached rows stay cached.
func (m *Model) syncRows() tea.Cmd {
	sess, ok := m.session()
	if !ok || m.height <= 0 {
		m.unmountAll()
		return nil
	}

	want := make(map[string]struct{})
	var cmds []tea.Cmd
	for _, it := range m.list.VirtualItems() {
		id := sess.Traces[it.Index].ID
		want[id] = struct{}{}
		if _, mounted := m.mounted[id]; !mounted {
			cmds = append(cmds, m.traces.Mount(id))
		}
		cmds = append(cmds, m.previewCmd(id))
	}
	for id := range m.mounted {
		if _, keep := want[id]; !keep {
			m.traces.Unmount(id)
		}
	}
	m.mounted = want
	return tea.Batch(cmds...)
}

func (m *Model) unmountAll() {
	for id := range m.mounted {
		m.traces.Unmount(id)
	}
	m.mounted = make(map[string]struct{})
}

func (m Model) cardWidths() (inner, left, right int) {
	inner = m.pageWidth() - 4
	left = inner * 2 / 3
	right = inner - left - 1
	return inner, left, right
}

func (m Model) previewKey(traceID string) string {
	_, left, _ := m.cardWidths()
	return fmt.Sprintf("%s|w=%d|s=%s", traceID, left, m.opts.GlamourStyle)
}

// previewCmd renders the payload preview of a loaded trace once per width.
func (m *Model) previewCmd(traceID string) tea.Cmd {
	res := m.traces.Get(traceID)
	if res.Status != fetch.StatusSuccess || !res.Data.HasIO() {
		return nil
	}
	key := m.previewKey(traceID)
	if _, ok := m.previews[key]; ok || m.rendering[key] {
		return nil
	}
	m.rendering[key] = true
	_, width, _ := m.cardWidths()
	return renderPreviewCmd(key, res.Data, width, m.opts.GlamourStyle)
}

func renderPreviewCmd(key string, t store.Trace, width int, style string) tea.Cmd {
	return func() tea.Msg {
		md := export.IOMarkdown(clampPayload(t.Input), clampPayload(t.Output))
		rendered := md
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			if out, renderErr := r.Render(md); renderErr == nil {
				rendered = out
			}
		}
		return previewMsg{key: key, rendered: strings.Trim(rendered, "\n")}
	}
}

func clampPayload(s string) string {
	if len(s) <= maxPreviewBytes {
		return s
	}
	n := maxPreviewBytes
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// renderCard draws one trace card at exactly height lines so a loaded card
// occupies the same space as its skeleton.
func (m Model) renderCard(t store.TraceSummary, height int, active bool) []string {
	inner, leftW, rightW := m.cardWidths()
	innerH := max(height-2, 1)

	h := highlight.New(m.searchQuery, func(s string) string { return searchMatchStyle.Render(s) })
	content, _ := h.Lines(m.rowContent(t.ID, leftW, innerH))
	meta, _ := h.Lines(rowMeta(t, rightW))

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		fitBlock(content, leftW, innerH),
		" ",
		fitBlock(meta, rightW, innerH),
	)
	card := strings.Split(cardStyle(active).Width(inner+2).Render(body), "\n")
	for len(card) < height {
		card = append(card, "")
	}
	return card[:height]
}

func (m Model) rowContent(traceID string, width, height int) []string {
	res := m.traces.Get(traceID)
	switch res.Status {
	case fetch.StatusIdle, fetch.StatusPending:
		return skeletonLines(width, height)
	case fetch.StatusUnauthorized:
		return []string{errorStyle.Render("You do not have access to this trace.")}
	case fetch.StatusError:
		msg := "Failed to load trace"
		if res.Err != nil {
			msg += ": " + res.Err.Error()
		}
		return strings.Split(ansi.Wrap(errorStyle.Render(msg), width, ""), "\n")
	case fetch.StatusSuccess:
		if !res.Data.HasIO() {
			return []string{mutedStyle.Render(emptyTraceMessage)}
		}
		if out, ok := m.previews[m.previewKey(traceID)]; ok {
			return strings.Split(out, "\n")
		}
		return plainPreview(res.Data)
	}
	return nil
}

// plainPreview is shown until the styled preview has been rendered.
func plainPreview(t store.Trace) []string {
	var lines []string
	for _, p := range []struct {
		title string
		raw   string
	}{
		{"Input", t.Input},
		{"Output", t.Output},
	} {
		if store.EmptyPayload(p.raw) {
			continue
		}
		text, _ := export.PrettyPayload(clampPayload(p.raw))
		lines = append(lines, titleStyle.Render(p.title))
		lines = append(lines, strings.Split(text, "\n")...)
		lines = append(lines, "")
	}
	return lines
}

func rowMeta(t store.TraceSummary, width int) []string {
	name := t.Name
	if strings.TrimSpace(name) == "" {
		name = "(unnamed)"
	}
	link := ansi.Wrap(linkStyle.Render("Trace: "+name+" ("+t.ID+") ↗"), width, "")
	lines := strings.Split(link, "\n")
	if !t.Timestamp.IsZero() {
		lines = append(lines, mutedStyle.Render(t.Timestamp.Local().Format("2006-01-02 15:04:05")))
	}
	if len(t.Scores) > 0 {
		lines = append(lines, "", titleStyle.Render("Scores"))
		for _, s := range export.FormatScores(t.Scores) {
			lines = append(lines, scoreStyle.Render(s))
		}
	}
	return lines
}

func skeletonLines(width, height int) []string {
	fractions := []int{60, 85, 40, 70}
	lines := make([]string, 0, skeletonRows)
	for i := 0; i < skeletonRows && i < height; i++ {
		n := max(width*fractions[i%len(fractions)]/100, 1)
		lines = append(lines, skeletonStyle.Render(strings.Repeat("░", n)))
	}
	return lines
}

// fitBlock clips lines to a width by height box and pads it out, marking
// clipped content with an ellipsis line.
func fitBlock(lines []string, width, height int) string {
	if len(lines) > height {
		lines = append(lines[:height-1:height-1], mutedStyle.Render("…"))
	}
	out := make([]string, height)
	for i := range out {
		line := ""
		if i < len(lines) {
			line = ansi.Truncate(lines[i], width, "…")
		}
		if pad := width - ansi.StringWidth(line); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		out[i] = line
	}
	return strings.Join(out, "\n")
}
