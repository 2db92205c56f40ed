package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/tadp"
)

func newEvaluateCmd(opts *options) *cobra.Command {
	var asJSON, rationale bool

	cmd := &cobra.Command{
		Use:   "evaluate <case-id>",
		Short: "Evaluate a stored case against the current policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			ev, err := a.pipeline.EvaluateCase(cmd.Context(), args[0], uuid.New().String())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ev.Decision.ToResponse())
			}

			result := ev.Decision.Result
			fmt.Fprintf(out, "Case %s (%s, %s %.2f to %s)\n\n",
				ev.Case.ID, ev.Case.Type, ev.Case.Currency, ev.Case.Amount, ev.Case.CounterpartyCountry)
			for _, item := range tadp.Snapshot(result) {
				mark := " "
				if item.Met {
					mark = "x"
				}
				fmt.Fprintf(out, "  [%s] %s\n", mark, item.Label)
			}
			fmt.Fprintf(out, "\nRecommendation: %s (%s)\n", ev.Decision.Status, result.Summary())

			if rationale {
				fmt.Fprintf(out, "\n%s\n", strings.TrimSpace(tadp.DefaultRationale(ev.Case, result)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the decision as JSON")
	cmd.Flags().BoolVar(&rationale, "rationale", false, "print the pre-filled escalation rationale")
	return cmd
}
