package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/ecomap"
	"github.com/agentstation/ecomap/internal/cmd/output"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/save"
)

// addQueryFlags registers the catalog filter flags.
func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("status", nil, "filter by status (active, flagged, archived)")
	cmd.Flags().StringSlice("type", nil, "filter by type (startup, investor, accelerator, space, event)")
	cmd.Flags().Float64("min-score", 0, "minimum growth score")
	cmd.Flags().Float64("max-score", 100, "maximum growth score")
	cmd.Flags().String("country", "", "filter by country")
	cmd.Flags().Bool("absorbed", false, "include entities merged into others")
	cmd.Flags().Int("limit", 0, "maximum number of entities")
}

// parseQuery builds a catalog query from the filter flags.
func parseQuery(cmd *cobra.Command) (ecomap.Query, error) {
	var q ecomap.Query
	statuses, _ := cmd.Flags().GetStringSlice("status")
	for _, s := range statuses {
		st := entity.Status(s)
		if !st.Valid() {
			return q, errors.NewValidationError("status", s, "unknown status")
		}
		q.Statuses = append(q.Statuses, st)
	}
	types, _ := cmd.Flags().GetStringSlice("type")
	for _, t := range types {
		et := entity.Type(t)
		if !et.Valid() {
			return q, errors.NewValidationError("type", t, "unknown entity type")
		}
		q.Types = append(q.Types, et)
	}
	if cmd.Flags().Changed("min-score") {
		v, _ := cmd.Flags().GetFloat64("min-score")
		q.MinScore = &v
	}
	if cmd.Flags().Changed("max-score") {
		v, _ := cmd.Flags().GetFloat64("max-score")
		q.MaxScore = &v
	}
	q.Country, _ = cmd.Flags().GetString("country")
	q.IncludeAbsorbed, _ = cmd.Flags().GetBool("absorbed")
	q.Limit, _ = cmd.Flags().GetInt("limit")
	return q, nil
}

// NewEntitiesCommand creates the entities command.
func (a *App) NewEntitiesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entities [entity-id]",
		GroupID: "catalog",
		Aliases: []string{"ls", "list"},
		Short:   "List entities ranked by growth score",
		Example: `  ecomap entities --limit 20
  ecomap entities --type investor --status active -o wide
  ecomap entities 6f1c2b7e-...                  # one entity
  ecomap entities 6f1c2b7e-... --members        # its source records`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if len(args) == 1 {
				if members, _ := cmd.Flags().GetBool("members"); members {
					recs, err := client.Members(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return output.Members(w, a.format(), recs)
				}
				e, err := client.Entity(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return output.Entity(w, a.format(), e)
			}

			q, err := parseQuery(cmd)
			if err != nil {
				return err
			}
			entities, err := client.Entities(cmd.Context(), q)
			if err != nil {
				return err
			}
			return output.Entities(w, a.format(), entities)
		},
	}
	addQueryFlags(cmd)
	cmd.Flags().Bool("members", false, "show the source records of an entity")
	return cmd
}

// NewExportCommand creates the export command.
func (a *App) NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "export <path>",
		GroupID: "catalog",
		Short:   "Write a catalog snapshot to a JSON or YAML file",
		Long: `Export writes the ranked entities matching the filters to a file.
The format follows the file extension unless --as is given.`,
		Example: `  ecomap export catalog.yaml --status active
  ecomap export top.json --limit 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(cmd)
			if err != nil {
				return err
			}
			opts := []save.Option{save.WithPath(args[0])}
			switch as, _ := cmd.Flags().GetString("as"); as {
			case "":
			case "json":
				opts = append(opts, save.WithFormat(save.FormatJSON))
			case "yaml":
				opts = append(opts, save.WithFormat(save.FormatYAML))
			default:
				return errors.NewValidationError("as", as, "must be json or yaml")
			}

			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			if err := client.Save(cmd.Context(), q, opts...); err != nil {
				return err
			}
			a.logger.Info().Str("path", args[0]).Msg("Catalog exported")
			return nil
		},
	}
	addQueryFlags(cmd)
	cmd.Flags().String("as", "", "file format: json, yaml (default from extension)")
	return cmd
}
