package app

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/agentstation/ecomap/internal/cmd/output"
	"github.com/agentstation/ecomap/internal/server"
	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/metrics"
	"github.com/agentstation/ecomap/pkg/scheduler"
)

// NewRunCommand creates the run command.
func (a *App) NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run <job>",
		GroupID: "jobs",
		Short:   "Run a job now and wait for it",
		Long: `Run triggers one job class now. Jobs:

  daily-collection   ingest every configured feed
  weekly-analysis    recompute growth scores
  monthly-cleanup    run the quality audit`,
		Example:   `  ecomap run daily-collection`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: classNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, ok := scheduler.ParseClass(args[0])
			if !ok {
				return errors.NewValidationError("job", args[0], "unknown job class")
			}
			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			ack, err := client.Trigger(cmd.Context(), class)
			if err != nil {
				return err
			}
			run, err := client.Wait(cmd.Context(), ack.RunID)
			if err != nil {
				client.Cancel(class)
				return err
			}
			if err := output.Runs(cmd.OutOrStdout(), a.format(), []scheduler.Run{run}); err != nil {
				return err
			}
			if run.Status != scheduler.StatusSucceeded {
				return errors.WrapResource("run", "job", run.ID, run.Err)
			}
			return nil
		},
	}
	return cmd
}

// NewScheduleCommand creates the schedule command.
func (a *App) NewScheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "schedule",
		GroupID: "jobs",
		Short:   "Show job cadences and next fire times",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			return output.Entries(cmd.OutOrStdout(), a.format(), client.Entries())
		},
	}
}

// NewServeCommand creates the serve command.
func (a *App) NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		GroupID: "jobs",
		Short:   "Run the jobs on their cadences until interrupted",
		Long: `Serve starts the scheduler, the HTTP API with its realtime update
streams, and a Prometheus metrics endpoint, then blocks until SIGINT or
SIGTERM. In-flight runs finish before exit.`,
		Example: `  ecomap serve
  ecomap serve --api-addr :8080 --metrics-addr ""`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr, _ := cmd.Flags().GetString("metrics-addr"); cmd.Flags().Changed("metrics-addr") {
				a.config.MetricsAddr = addr
			}
			if addr, _ := cmd.Flags().GetString("api-addr"); cmd.Flags().Changed("api-addr") {
				a.config.APIAddr = addr
			}

			client, err := a.Client(ctx)
			if err != nil {
				return err
			}

			serveErr := make(chan error, 2)
			var api *server.Server
			if a.config.APIAddr != "" {
				api, err = server.New(client, a.apiConfig(), a.logger)
				if err != nil {
					return err
				}
				go func() {
					if err := api.Serve(); err != nil {
						serveErr <- err
					}
				}()
			}
			// hooks are connected before the scheduler fires its first run
			if err := client.Start(ctx); err != nil {
				return err
			}

			var srv *metrics.Server
			if a.config.MetricsAddr != "" {
				srv = metrics.NewServer(a.config.MetricsAddr)
				go func() {
					if err := srv.Serve(); err != nil {
						serveErr <- err
					}
				}()
				a.logger.Info().Str("addr", a.config.MetricsAddr).Msg("Metrics endpoint listening")
			}
			for _, e := range client.Entries() {
				a.logger.Info().Str("job", string(e.Class)).Str("schedule", e.Schedule).Time("next", e.Next).Msg("Job scheduled")
			}

			var runErr error
			select {
			case <-ctx.Done():
				a.logger.Info().Msg("Shutting down")
			case runErr = <-serveErr:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			var stopErr error
			if api != nil {
				stopErr = api.Shutdown(shutdownCtx)
			}
			stopErr = errors.Join(stopErr, client.Stop(shutdownCtx))
			if srv != nil {
				stopErr = errors.Join(stopErr, srv.Shutdown(shutdownCtx))
			}
			return errors.Join(runErr, stopErr)
		},
	}
	cmd.Flags().String("metrics-addr", ":9090", "address of the Prometheus metrics endpoint (empty disables it)")
	cmd.Flags().String("api-addr", ":8080", "address of the HTTP API (empty disables it)")
	return cmd
}

// apiConfig maps application configuration onto the HTTP API.
func (a *App) apiConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = a.config.APIAddr
	cfg.APIKey = a.config.APIKey
	cfg.ProtectReads = a.config.ProtectReads
	cfg.CORSOrigins = a.config.CORSOrigins
	cfg.RateLimit = a.config.RateLimit
	cfg.Tracing = a.config.OTelEndpoint != ""
	return cfg
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// version needs no client or telemetry
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ecomap version %s\n", a.version)
			fmt.Fprintf(w, "commit: %s\n", a.commit)
			fmt.Fprintf(w, "built: %s\n", a.date)
			fmt.Fprintf(w, "built by: %s\n", a.builtBy)
			fmt.Fprintf(w, "go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func classNames() []string {
	names := make([]string, 0, len(scheduler.Classes))
	for _, c := range scheduler.Classes {
		names = append(names, string(c))
	}
	return names
}
