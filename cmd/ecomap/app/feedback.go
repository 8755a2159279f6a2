package app

import (
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/agentstation/ecomap/internal/cmd/output"
	"github.com/agentstation/ecomap/internal/feed"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
)

// parseValue reads a corrected value as YAML so numbers, booleans and lists
// keep their type. Anything that does not parse is taken as a string.
func parseValue(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	return v
}

// NewCorrectCommand creates the correct command.
func (a *App) NewCorrectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "correct [entity-id field value]",
		GroupID: "feedback",
		Short:   "Apply a user correction to an entity field",
		Long: `Correct overrides one field of an entity. Corrections outrank every
other source and settle open disputes of the field.

Values are read as YAML: 2019 is a number, "[a, b]" a list.`,
		Example: `  ecomap correct 6f1c2b7e-... city Seoul --by alice
  ecomap correct 6f1c2b7e-... founded_year 2019 --by alice
  ecomap correct --file corrections.yaml`,
		Args: func(cmd *cobra.Command, args []string) error {
			if file, _ := cmd.Flags().GetString("file"); file != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var corrections []entity.UserCorrection
			if file, _ := cmd.Flags().GetString("file"); file != "" {
				src, err := feed.Open(file)
				if err != nil {
					return err
				}
				if corrections, err = src.Corrections(); err != nil {
					return err
				}
			} else {
				by, _ := cmd.Flags().GetString("by")
				corrections = []entity.UserCorrection{{
					EntityID:     args[0],
					Field:        args[1],
					NewValue:     parseValue(args[2]),
					SubmittedAt:  time.Now().UTC(),
					SubmitterRef: by,
				}}
			}

			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			var errs []error
			var corrected []*entity.Entity
			for _, c := range corrections {
				e, err := client.Correct(cmd.Context(), c)
				if err != nil {
					a.logger.Warn().Err(err).Str("entity_id", c.EntityID).Str("field", c.Field).Msg("Correction rejected")
					errs = append(errs, err)
					continue
				}
				corrected = append(corrected, e)
			}
			if len(corrected) == 1 && len(corrections) == 1 {
				if err := output.Entity(cmd.OutOrStdout(), a.format(), corrected[0]); err != nil {
					return err
				}
			} else if len(corrected) > 0 {
				if err := output.Entities(cmd.OutOrStdout(), a.format(), corrected); err != nil {
					return err
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().String("by", "", "submitter reference")
	cmd.Flags().String("file", "", "corrections feed file")
	return cmd
}

// NewReportCommand creates the report command.
func (a *App) NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "report <entity-id> <field>",
		GroupID: "feedback",
		Short:   "Dispute an entity field",
		Long: `Report files a dispute of one field. Once enough distinct users
dispute the same field, the next cleanup flags the entity for review.`,
		Example: `  ecomap report 6f1c2b7e-... website --by bob --reason "domain expired"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			by, _ := cmd.Flags().GetString("by")
			reason, _ := cmd.Flags().GetString("reason")
			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			r, err := client.Report(cmd.Context(), entity.UserReport{
				EntityID:     args[0],
				Field:        args[1],
				Reason:       reason,
				SubmitterRef: by,
			})
			if err != nil {
				return err
			}
			return output.Any(cmd.OutOrStdout(), a.format(), r)
		},
	}
	cmd.Flags().String("by", "", "submitter reference")
	cmd.Flags().String("reason", "", "why the field is wrong")
	return cmd
}

// NewReviewCommand creates the review command.
func (a *App) NewReviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "review <entity-id>",
		GroupID: "feedback",
		Short:   "Clear the flags of a reviewed entity",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			by, _ := cmd.Flags().GetString("by")
			client, err := a.Client(cmd.Context())
			if err != nil {
				return err
			}
			e, err := client.Review(cmd.Context(), args[0], by)
			if err != nil {
				return err
			}
			return output.Entity(cmd.OutOrStdout(), a.format(), e)
		},
	}
	cmd.Flags().String("by", "", "reviewer reference")
	return cmd
}
