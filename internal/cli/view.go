package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"session-trace/internal/config"
	"session-trace/internal/export"
	"session-trace/internal/fetch"
	"session-trace/internal/nav"
	"session-trace/internal/store"
	"session-trace/internal/ui"
)

const sessionListLimit = 500

func newViewCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "view <session-id>",
		Short: "Open a session in the trace viewer",
		Long:  "Open a session in the trace viewer. When stdout is not a terminal the session is written as markdown instead.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(cmd, flags, args[0])
		},
	}
}

func runView(cmd *cobra.Command, flags *globalFlags, sessionID string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	if !isTerminal(os.Stdout) {
		return writeSessionMarkdown(ctx, cmd.OutOrStdout(), a.store, a.cfg.ProjectID, sessionID)
	}

	registry := nav.NewRegistry()
	summaries, err := a.store.ListSessions(ctx, a.cfg.ProjectID, sessionListLimit)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	registry.Register(nav.ListSessions, ids)

	policy, err := fetch.ParseRefetchPolicy(a.cfg.RowRefetch)
	if err != nil {
		return fmt.Errorf("row_refetch: %w", err)
	}
	exp, err := export.New(a.cfg.ExportDir)
	if err != nil {
		return err
	}

	m := ui.NewModel(a.store, registry, a.store, exp, ui.Options{
		ProjectID:    a.cfg.ProjectID,
		SessionID:    sessionID,
		Overscan:     a.cfg.Overscan,
		RowRefetch:   policy,
		RowStaleTime: a.cfg.RowStaleTime,
		GlamourStyle: a.cfg.GlamourStyle,
		Logger:       config.Logger,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run viewer: %w", err)
	}
	return nil
}

// writeSessionMarkdown renders a session with every readable trace payload.
func writeSessionMarkdown(ctx context.Context, w io.Writer, st *store.Store, projectID, sessionID string) error {
	sess, traces, err := collectSession(ctx, st, projectID, sessionID)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, export.BuildSessionMarkdown(sess, traces, time.Now().UTC()))
	return err
}

func collectSession(ctx context.Context, st *store.Store, projectID, sessionID string) (store.Session, []store.Trace, error) {
	sess, err := st.GetSession(ctx, projectID, sessionID)
	switch {
	case errors.Is(err, store.ErrUnauthorized):
		return sess, nil, fmt.Errorf("you do not have access to session %s", sessionID)
	case errors.Is(err, store.ErrNotFound):
		return sess, nil, fmt.Errorf("session %s not found", sessionID)
	case err != nil:
		return sess, nil, err
	}
	traces, err := export.Collect(ctx, sess, func(ctx context.Context, id string) (store.Trace, error) {
		return st.GetTrace(ctx, projectID, id)
	})
	if err != nil {
		return sess, nil, err
	}
	return sess, traces, nil
}
