package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
)

func newPolicyCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show, reset, export or import the escalation policy",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			cfg := a.policy.Load(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Policy %q: escalate on any critical trigger or %d of %d regular triggers\n\n",
				a.policy.Key(), cfg.MinRegularTriggersToEscalate, policy.RegularTriggerCount(cfg))
			for _, t := range cfg.Triggers {
				fmt.Fprintf(out, "  %s\n", describeTrigger(t))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore the default policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			saved := a.policy.Save(cmd.Context(), policy.ResetToDefaults())
			fmt.Fprintf(cmd.OutOrStdout(), "policy reset to defaults (%d triggers)\n", len(saved.Triggers))
			return nil
		},
	})

	cmd.AddCommand(newPolicyExportCmd(opts))
	cmd.AddCommand(newPolicyImportCmd(opts))
	return cmd
}

func newPolicyExportCmd(opts *options) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current policy as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format: %s", format)
			}

			a, err := newApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			data, err := encodePolicy(a.policy.Load(cmd.Context()), format)
			if err != nil {
				return err
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "policy written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json|yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newPolicyImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load a JSON or YAML policy document and store it",
		Long: `Reads a policy document in JSON or YAML. The document is merged against
the default trigger set the same way a stored policy is, so unknown fields are
ignored and missing predefined triggers are restored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			cfg, err := decodePolicy(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			a, err := newApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			saved := a.policy.Save(cmd.Context(), cfg)
			fmt.Fprintf(cmd.OutOrStdout(), "policy imported (%d triggers, minimum %d)\n",
				len(saved.Triggers), saved.MinRegularTriggersToEscalate)
			return nil
		},
	}
}

// encodePolicy renders cfg with the JSON field names in either format.
func encodePolicy(cfg domain.PolicyConfig, format string) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy: %w", err)
	}
	if format == "json" {
		return append(data, '\n'), nil
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode policy: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy as yaml: %w", err)
	}
	return out, nil
}

// decodePolicy parses a JSON or YAML document and reconciles it against
// the defaults.
func decodePolicy(raw []byte) (domain.PolicyConfig, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.PolicyConfig{}, fmt.Errorf("%w: %v", policy.ErrMalformed, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return domain.PolicyConfig{}, fmt.Errorf("%w: %v", policy.ErrMalformed, err)
	}
	return policy.Reconcile(data, policy.Defaults())
}

func describeTrigger(t domain.Trigger) string {
	state := "on "
	if !t.Enabled {
		state = "off"
	}
	kind := "regular"
	if t.IsCritical {
		kind = "critical"
	}

	cond := fmt.Sprintf("%s %g %s", t.ComparisonOperator.OrDefault(), t.ThresholdValue, t.ThresholdUnit)
	if t.ThresholdUnit.IsBoolean() {
		cond = "is true"
	}
	return fmt.Sprintf("[%s] %-32s %-8s %-9s %s", state, t.Label, kind, t.Kind, cond)
}
