package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"session-trace/internal/store"
)

func newSessionsCmd(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the sessions of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			summaries, err := a.store.ListSessions(cmd.Context(), a.cfg.ProjectID, limit)
			if err != nil {
				return err
			}
			return printSessions(cmd, summaries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", sessionListLimit, "maximum number of sessions")
	return cmd
}

func printSessions(cmd *cobra.Command, summaries []store.SessionSummary) error {
	if len(summaries) == 0 {
		cmd.Println("No sessions indexed.")
		return nil
	}

	const tabPadding = 2
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(w, "SESSION\tTRACES\tLAST ACTIVITY\tFLAGS")
	for _, s := range summaries {
		flags := ""
		if s.Bookmarked {
			flags += "★"
		}
		if s.Public {
			flags += "public"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.ID, s.TraceCount, store.FormatUnix(s.LastActivityTS), flags)
	}
	return w.Flush()
}
