// Package highlight marks case-insensitive matches inside already styled
// terminal text without breaking escape sequences.
package highlight

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

var ansiCSI = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)

type Highlighter struct {
	query string
	lower string
	wrap  func(string) string
}

// New returns nil for a blank query; a nil Highlighter leaves text alone.
func New(query string, wrap func(string) string) *Highlighter {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if wrap == nil {
		wrap = func(s string) string { return s }
	}
	return &Highlighter{query: query, lower: strings.ToLower(query), wrap: wrap}
}

// Matches reports whether the visible text of s contains the query.
func (h *Highlighter) Matches(s string) bool {
	if h == nil {
		return false
	}
	return strings.Contains(strings.ToLower(ansi.Strip(s)), h.lower)
}

// Lines highlights each line and returns the total match count.
func (h *Highlighter) Lines(lines []string) ([]string, int) {
	if h == nil {
		return lines, 0
	}
	out := make([]string, len(lines))
	total := 0
	for i, line := range lines {
		var n int
		out[i], n = h.Line(line)
		total += n
	}
	return out, total
}

// Line highlights matches in the plain segments between escape sequences.
// A match never spans two segments.
func (h *Highlighter) Line(s string) (string, int) {
	if h == nil {
		return s, 0
	}
	indices := ansiCSI.FindAllStringIndex(s, -1)
	if len(indices) == 0 {
		return h.plain(s)
	}

	var out strings.Builder
	total := 0
	pos := 0
	for _, idx := range indices {
		if idx[0] > pos {
			seg, n := h.plain(s[pos:idx[0]])
			out.WriteString(seg)
			total += n
		}
		out.WriteString(s[idx[0]:idx[1]])
		pos = idx[1]
	}
	if pos < len(s) {
		seg, n := h.plain(s[pos:])
		out.WriteString(seg)
		total += n
	}
	return out.String(), total
}

func (h *Highlighter) plain(s string) (string, int) {
	if s == "" {
		return s, 0
	}
	lower := strings.ToLower(s)
	if len(lower) != len(s) || !strings.Contains(lower, h.lower) {
		return s, 0
	}

	var out strings.Builder
	count := 0
	start := 0
	for {
		rel := strings.Index(lower[start:], h.lower)
		if rel < 0 {
			out.WriteString(s[start:])
			break
		}
		idx := start + rel
		out.WriteString(s[start:idx])
		end := idx + len(h.lower)
		out.WriteString(h.wrap(s[idx:end]))
		count++
		start = end
	}
	return out.String(), count
}
