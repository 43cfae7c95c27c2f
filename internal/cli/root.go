package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"session-trace/internal/config"
	"session-trace/internal/store"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// globalFlags are the persistent flags shared by every subcommand. Empty
// values leave the config file setting alone.
type globalFlags struct {
	configPath string
	project    string
	dbPath     string
	tracesDir  string
	exportDir  string
	logLevel   string
	reindex    bool
}

// NewRootCmd creates the root command. Without a subcommand it behaves like
// "view".
func NewRootCmd(ver string) *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "session-trace [session-id]",
		Short:         "Browse the traces of a session in the terminal",
		Long:          "session-trace indexes JSONL trace logs into a local SQLite database and shows one session at a time as a scrollable list of trace cards.",
		Version:       ver,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       rootCmdExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runView(cmd, flags, args[0])
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default $"+config.EnvConfigPath+" or ~/.config/session-trace/config.yaml)")
	pf.StringVar(&flags.project, "project", "", "project the viewer acts for")
	pf.StringVar(&flags.dbPath, "db-path", "", "SQLite index location")
	pf.StringVar(&flags.tracesDir, "traces-dir", "", "directory of *.jsonl trace logs")
	pf.StringVar(&flags.exportDir, "export-dir", "", "markdown export directory")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&flags.reindex, "reindex", false, "drop the index and ingest every log again")

	cmd.AddCommand(newViewCmd(flags), newSessionsCmd(flags), newIngestCmd(flags), newExportCmd(flags))
	return cmd
}

const rootCmdExample = `  # Open a session
  session-trace view 01HZX3K8

  # List the sessions of a project
  session-trace sessions --project acme

  # Index new log lines without opening the viewer
  session-trace ingest --traces-dir ./logs

  # Write a session to markdown
  session-trace export 01HZX3K8 --stdout`

// loadConfig reads the config file and applies flag overrides.
func loadConfig(flags *globalFlags) (config.AppConfig, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	for _, o := range []struct {
		dst *string
		val string
	}{
		{&cfg.ProjectID, flags.project},
		{&cfg.DBPath, flags.dbPath},
		{&cfg.TracesDir, flags.tracesDir},
		{&cfg.ExportDir, flags.exportDir},
		{&cfg.LogLevel, flags.logLevel},
	} {
		if o.val != "" {
			*o.dst = o.val
		}
	}
	cfg.Reindex = flags.reindex
	if err := cfg.Finalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// app is an opened, freshly ingested index plus its config.
type app struct {
	cfg   config.AppConfig
	store *store.Store
}

func openApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	if err := config.InitLogger(cfg.LogLevel, cfg.LogFile, nil); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath, cfg.Reindex, config.Logger)
	if err != nil {
		config.CloseLogFile()
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := st.Ingest(ctx, cfg.TracesDir); err != nil {
		_ = st.Close()
		config.CloseLogFile()
		return nil, fmt.Errorf("ingest %s: %w", cfg.TracesDir, err)
	}
	config.Logger.Debug().Str("db_path", cfg.DBPath).Str("project", cfg.ProjectID).Msg("index ready")
	return &app{cfg: cfg, store: st}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		config.Logger.Warn().Err(err).Msg("close index")
	}
	config.CloseLogFile()
}
