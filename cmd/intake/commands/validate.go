package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"intake/internal/form"
	"intake/internal/pathway"
	"intake/internal/validation"
	"intake/internal/validation/validationtest"
	dErrors "intake/pkg/domain-errors"
)

func readDraft(path string) (form.Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return form.Draft{}, err
	}
	var d form.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return form.Draft{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "draft file is not valid JSON")
	}
	return d, nil
}

func validateCmd() *cobra.Command {
	var step string
	cmd := &cobra.Command{
		Use:   "validate <draft.json>",
		Short: "Validate a draft file against its pathway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readDraft(args[0])
			if err != nil {
				return err
			}
			var res validation.Result
			if step != "" {
				res = validator.ValidateStep(d, pathway.StepID(step))
			} else {
				res = validator.ValidateAll(d)
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid() {
				return fmt.Errorf("%d field errors, %d aggregate errors", len(res.FieldErrors), len(res.AggregateErrors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&step, "step", "", "validate only this step")
	return cmd
}

func sampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample <activity-type>",
		Short: "Print a complete draft for a pathway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseActivity(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), validationtest.CompleteDraft(t))
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for --caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if callerID == "" {
				return fmt.Errorf("--caller is required")
			}
			token, err := jwt.IssueToken(callerID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", tokenTTL, "token lifetime")
	return cmd
}
