package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/ecomap/internal/cmd/output"
	"github.com/agentstation/ecomap/pkg/logging"
)

// Execute runs the ecomap CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	if a.out != nil {
		rootCmd.SetOut(a.out)
	}
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ecomap",
		Short:   "Startup ecosystem map pipeline",
		Version: a.version,
		Long: `Ecomap collects records about startups, investors, accelerators,
spaces and events from many sources, resolves them into deduplicated
entities, scores their growth and keeps the catalog clean.

Collection, analysis and cleanup run as scheduled jobs with "ecomap serve",
or on demand with "ecomap run <job>".`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "pipeline", Title: "Pipeline Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "catalog", Title: "Catalog Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "feedback", Title: "Feedback Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "jobs", Title: "Job Commands:"})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.config.ConfigFile, "config", "", "config file (default is $HOME/.ecomap.yaml)")
	flags.BoolVarP(&a.config.Verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	flags.BoolVarP(&a.config.Quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	flags.BoolVar(&a.config.NoColor, "no-color", false, "disable colored output")
	flags.StringVarP(&a.config.Format, "format", "o", "", "output format: table, json, yaml, wide")
	flags.StringVar(&a.config.LogLevel, "log-level", a.config.LogLevel, "log level: trace, debug, info, warn, error (overrides -v/-q)")
	flags.StringVar(&a.config.Store, "store", a.config.Store, "entity store: memory, sqlite")
	flags.StringVar(&a.config.DBPath, "db", a.config.DBPath, "sqlite database path")

	rootCmd.SetVersionTemplate("ecomap {{.Version}}\n")

	a.registerCommands(rootCmd)
	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	verbose := mustGetBool(cmd, "verbose")
	quiet := mustGetBool(cmd, "quiet")
	noColor := mustGetBool(cmd, "no-color")
	format := mustGetString(cmd, "format")
	logLevel := mustGetString(cmd, "log-level")
	a.config.UpdateFromFlags(verbose, quiet, noColor, format, logLevel)

	if _, err := output.ParseFormat(a.config.Format); err != nil {
		return err
	}
	if err := a.config.Validate(); err != nil {
		return err
	}

	logging.Configure(loggerConfig(a.config))
	a.logger = logging.Default()

	return a.initTelemetry(cmd.Context())
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Pipeline commands
	rootCmd.AddCommand(a.NewIngestCommand())
	rootCmd.AddCommand(a.NewAnalyzeCommand())
	rootCmd.AddCommand(a.NewCleanupCommand())

	// Catalog commands
	rootCmd.AddCommand(a.NewEntitiesCommand())
	rootCmd.AddCommand(a.NewExportCommand())

	// Feedback commands
	rootCmd.AddCommand(a.NewCorrectCommand())
	rootCmd.AddCommand(a.NewReportCommand())
	rootCmd.AddCommand(a.NewReviewCommand())

	// Job commands
	rootCmd.AddCommand(a.NewRunCommand())
	rootCmd.AddCommand(a.NewScheduleCommand())
	rootCmd.AddCommand(a.NewServeCommand())

	rootCmd.AddCommand(a.NewVersionCommand())
}

// format returns the output format for the command, auto-detected when unset.
func (a *App) format() output.Format {
	return output.DetectFormat(a.config.Format)
}

// ExitOnError is a helper that prints an error and exits with status 1.
// This is meant to be used in main.go for top-level error handling.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
