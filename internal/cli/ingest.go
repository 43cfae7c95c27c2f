package cli

import (
	"github.com/spf13/cobra"
)

func newIngestCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Index new trace log lines",
		Long:  "Read every *.jsonl file below the traces directory into the index, continuing from the last indexed offset of each file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			summaries, err := a.store.ListSessions(cmd.Context(), a.cfg.ProjectID, 0)
			if err != nil {
				return err
			}
			cmd.Printf("Indexed %s into %s (%d sessions in project %s)\n",
				a.cfg.TracesDir, a.cfg.DBPath, len(summaries), a.cfg.ProjectID)
			return nil
		},
	}
}
