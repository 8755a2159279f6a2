package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/ecomap/internal/cmd/output"
	"github.com/agentstation/ecomap/internal/feed"
	"github.com/agentstation/ecomap/pkg/entity"
)

// ingestSummary is the printable result of an ingest.
type ingestSummary struct {
	Received  int `json:"received" yaml:"received"`
	Rejected  int `json:"rejected" yaml:"rejected"`
	Created   int `json:"created" yaml:"created"`
	Updated   int `json:"updated" yaml:"updated"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
	Absorbed  int `json:"absorbed" yaml:"absorbed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Failed    int `json:"failed" yaml:"failed"`
	Conflicts int `json:"conflicts" yaml:"conflicts"`
}

// NewIngestCommand creates the ingest command.
func (a *App) NewIngestCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ingest <path>...",
		GroupID: "pipeline",
		Short:   "Normalize and resolve raw records from feed files",
		Long: `Ingest reads raw records from JSON, JSONL or YAML feed files (or
directories of them), normalizes them and resolves them into entities.

Malformed records are reported and skipped.`,
		Example: `  ecomap ingest ./feeds
  ecomap ingest crawl.jsonl gov.yaml --store sqlite --db ecomap.db`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var records []entity.RawRecord
			for _, path := range args {
				src, err := feed.Open(path)
				if err != nil {
					return err
				}
				recs, err := src.Records()
				if err != nil {
					return err
				}
				records = append(records, recs...)
			}

			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			res, err := client.Ingest(cmd.Context(), records)
			if err != nil {
				return err
			}
			for _, r := range res.Rejected {
				a.logger.Warn().Str("source_id", r.Raw.SourceID).Err(r.Err).Msg("Record rejected")
			}

			summary := ingestSummary{Received: res.Received, Rejected: len(res.Rejected)}
			if r := res.Resolve; r != nil {
				summary.Created = len(r.Created)
				summary.Updated = len(r.Updated)
				summary.Unchanged = len(r.Unchanged)
				summary.Absorbed = len(r.Absorbed)
				summary.Skipped = len(r.Skipped)
				summary.Failed = len(r.Failed)
				summary.Conflicts = len(r.Conflicts)
			}
			return output.Any(cmd.OutOrStdout(), a.format(), summary)
		},
	}
}

// analyzeSummary is the printable result of a scoring run.
type analyzeSummary struct {
	Scored    int `json:"scored" yaml:"scored"`
	Unscored  int `json:"unscored" yaml:"unscored"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
	Failed    int `json:"failed" yaml:"failed"`
}

// NewAnalyzeCommand creates the analyze command.
func (a *App) NewAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analyze [entity-id]",
		GroupID: "pipeline",
		Short:   "Recompute growth scores",
		Long: `Analyze fetches growth signals and recomputes the growth score of
every active and flagged entity, or of a single entity.

Signals come from the file set by "signals" in the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("signals"); path != "" {
				a.config.SignalsPath = path
			}
			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				e, err := client.Score(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return output.Entity(cmd.OutOrStdout(), a.format(), e)
			}

			res, err := client.Analyze(cmd.Context())
			if err != nil {
				return err
			}
			return output.Any(cmd.OutOrStdout(), a.format(), analyzeSummary{
				Scored:    len(res.Scored),
				Unscored:  len(res.Unscored),
				Unchanged: len(res.Unchanged),
				Failed:    len(res.Failed),
			})
		},
	}
	cmd.Flags().String("signals", "", "signal feed file (JSON, JSONL or YAML)")
	return cmd
}

// cleanupSummary is the printable result of a quality audit.
type cleanupSummary struct {
	Flagged     int `json:"flagged" yaml:"flagged"`
	Cleared     int `json:"cleared" yaml:"cleared"`
	Archived    int `json:"archived" yaml:"archived"`
	Reactivated int `json:"reactivated" yaml:"reactivated"`
	Failed      int `json:"failed" yaml:"failed"`
}

// NewCleanupCommand creates the cleanup command.
func (a *App) NewCleanupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cleanup",
		GroupID: "pipeline",
		Short:   "Run the quality audit",
		Long: `Cleanup flags entities with missing or implausible data or disputed
fields, archives stale low-growth entities and reactivates archived
entities that fresh, confident sources have confirmed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path, _ := cmd.Flags().GetString("rules"); path != "" {
				a.config.RulesPath = path
			}
			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			res, err := client.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			return output.Any(cmd.OutOrStdout(), a.format(), cleanupSummary{
				Flagged:     len(res.Flagged),
				Cleared:     len(res.Cleared),
				Archived:    len(res.Archived),
				Reactivated: len(res.Reactivated),
				Failed:      len(res.Failed),
			})
		},
	}
	cmd.Flags().String("rules", "", "quality rules file (YAML)")
	return cmd
}
