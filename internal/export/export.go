package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"session-trace/internal/store"
)

type Exporter struct {
	overrideDir string
	cwd         string
}

func New(overrideDir string) (*Exporter, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}
	return &Exporter{overrideDir: strings.TrimSpace(overrideDir), cwd: cwd}, nil
}

// Export writes the session with the given trace payloads as markdown and
// returns the file path.
func (e *Exporter) Export(sess store.Session, traces []store.Trace) (string, error) {
	path := e.outputPath(sess)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	md := BuildSessionMarkdown(sess, traces, time.Now().UTC())
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

const collectWorkers = 4

// Collect loads the payload of every trace in sess. Traces that are gone or
// not readable are skipped and exported without content.
func Collect(ctx context.Context, sess store.Session, load func(context.Context, string) (store.Trace, error)) ([]store.Trace, error) {
	loaded := make([]store.Trace, len(sess.Traces))
	found := make([]bool, len(sess.Traces))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(collectWorkers)
	for i, summary := range sess.Traces {
		g.Go(func() error {
			t, err := load(ctx, summary.ID)
			switch {
			case err == nil:
				loaded[i], found[i] = t, true
			case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUnauthorized):
			default:
				return fmt.Errorf("load trace %s: %w", summary.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]store.Trace, 0, len(loaded))
	for i, t := range loaded {
		if found[i] {
			out = append(out, t)
		}
	}
	return out, nil
}

func BuildSessionMarkdown(sess store.Session, traces []store.Trace, now time.Time) string {
	byID := make(map[string]store.Trace, len(traces))
	for _, t := range traces {
		byID[t.ID] = t
	}

	var b strings.Builder
	b.WriteString("# Session " + sess.ID + "\n\n")
	b.WriteString("Exported: " + now.Format(time.RFC3339) + "\n\n")
	b.WriteString("```text\n")
	b.WriteString("project: " + safeValue(sess.ProjectID) + "\n")
	b.WriteString("users: " + safeValue(strings.Join(NonEmpty(sess.Users), ", ")) + "\n")
	b.WriteString(fmt.Sprintf("traces: %d\n", len(sess.Traces)))
	b.WriteString("total_cost: " + FormatUSD(sess.TotalCost) + "\n")
	b.WriteString(fmt.Sprintf("public: %t\n", sess.Public))
	b.WriteString(fmt.Sprintf("bookmarked: %t\n", sess.Bookmarked))
	b.WriteString("```\n\n")

	for _, summary := range sess.Traces {
		b.WriteString("## Trace: " + safeValue(summary.Name) + " (" + summary.ID + ")\n\n")
		b.WriteString(summary.Timestamp.Local().Format("2006-01-02 15:04:05") + "\n\n")
		if len(summary.Scores) > 0 {
			b.WriteString("Scores: " + strings.Join(FormatScores(summary.Scores), "; ") + "\n\n")
		}
		t, ok := byID[summary.ID]
		switch {
		case !ok:
			b.WriteString("_Trace content unavailable._\n\n")
		case !t.HasIO():
			b.WriteString("_This trace has no input or output._\n\n")
		default:
			b.WriteString(IOMarkdown(t.Input, t.Output))
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String()) + "\n"
}

// IOMarkdown renders the non-empty payloads as fenced blocks.
func IOMarkdown(input, output string) string {
	var b strings.Builder
	for _, p := range []struct {
		title string
		raw   string
	}{
		{"Input", input},
		{"Output", output},
	} {
		if store.EmptyPayload(p.raw) {
			continue
		}
		text, lang := PrettyPayload(p.raw)
		b.WriteString("**" + p.title + "**\n\n")
		b.WriteString("```" + lang + "\n")
		b.WriteString(text + "\n")
		b.WriteString("```\n\n")
	}
	return b.String()
}

// PrettyPayload turns a raw JSON payload into display text. Plain JSON
// strings are unquoted; objects and arrays are indented.
func PrettyPayload(raw string) (text, lang string) {
	raw = strings.TrimSpace(raw)
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s, "text"
	}
	var b bytes.Buffer
	if err := json.Indent(&b, []byte(raw), "", "  "); err == nil {
		return b.String(), "json"
	}
	return raw, "text"
}

// FormatScores groups scores by name, keeping first-seen name order.
func FormatScores(scores []store.Score) []string {
	order := make([]string, 0, len(scores))
	grouped := make(map[string][]string)
	for _, sc := range scores {
		if _, ok := grouped[sc.Name]; !ok {
			order = append(order, sc.Name)
		}
		v := sc.StringValue
		if v == "" {
			v = trimFloat(sc.Value)
		}
		grouped[sc.Name] = append(grouped[sc.Name], v)
	}
	out := make([]string, 0, len(order))
	for _, name := range order {
		out = append(out, name+": "+strings.Join(grouped[name], ", "))
	}
	return out
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

var usdPrinter = message.NewPrinter(language.English)

// FormatUSD formats an amount with two decimals and thousands separators.
func FormatUSD(v float64) string {
	if v < 0 {
		return "-" + usdPrinter.Sprintf("$%.2f", -v)
	}
	return usdPrinter.Sprintf("$%.2f", v)
}

func NonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func (e *Exporter) outputPath(sess store.Session) string {
	if e.overrideDir != "" {
		dir := e.overrideDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(e.cwd, dir)
		}
		return filepath.Join(dir, safeFileName(sess.ID)+".md")
	}
	return filepath.Join(e.cwd, "docs", "sessions", safeFileName(sess.ID)+".md")
}

func safeFileName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "session"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}

func safeValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "n/a"
	}
	return s
}
