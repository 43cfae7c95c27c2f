package cli

import (
	"github.com/spf13/cobra"

	"session-trace/internal/export"
)

func newExportCmd(flags *globalFlags) *cobra.Command {
	var toStdout bool

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Write a session and its trace payloads as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if toStdout {
				return writeSessionMarkdown(ctx, cmd.OutOrStdout(), a.store, a.cfg.ProjectID, args[0])
			}
			sess, traces, err := collectSession(ctx, a.store, a.cfg.ProjectID, args[0])
			if err != nil {
				return err
			}
			exp, err := export.New(a.cfg.ExportDir)
			if err != nil {
				return err
			}
			path, err := exp.Export(sess, traces)
			if err != nil {
				return err
			}
			cmd.Println("Exported:", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "write to stdout instead of a file")
	return cmd
}
