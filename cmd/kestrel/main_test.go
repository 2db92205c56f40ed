package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setupEnv points the commands at a throwaway SQLite database.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KESTREL_REPOSITORY__SQLITE_PATH", filepath.Join(dir, "kestrel.db"))
	t.Setenv("KESTREL_LOGGING__LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPolicyCommands(t *testing.T) {
	dir := setupEnv(t)

	t.Run("Show", func(t *testing.T) {
		out, err := run(t, "policy", "show")
		if err != nil {
			t.Fatalf("policy show failed: %v", err)
		}
		if !strings.Contains(out, "3 of 11 regular triggers") {
			t.Errorf("unexpected summary line: %s", out)
		}
		if !strings.Contains(out, "Sanctions match") {
			t.Errorf("expected sanctions trigger in output: %s", out)
		}
	})

	t.Run("ExportYAML", func(t *testing.T) {
		out, err := run(t, "policy", "export", "--format", "yaml")
		if err != nil {
			t.Fatalf("policy export failed: %v", err)
		}
		if !strings.Contains(out, "minRegularTriggersToEscalate: 3") {
			t.Errorf("expected minimum in yaml output: %s", out)
		}
		if !strings.Contains(out, "id: rapid_movement") {
			t.Errorf("expected trigger ids in yaml output: %s", out)
		}
	})

	t.Run("ExportToFile", func(t *testing.T) {
		path := filepath.Join(dir, "policy.json")
		if _, err := run(t, "policy", "export", "-o", path); err != nil {
			t.Fatalf("policy export failed: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read export: %v", err)
		}
		if !strings.Contains(string(data), `"minRegularTriggersToEscalate": 3`) {
			t.Errorf("unexpected export: %s", data)
		}
	})

	t.Run("ExportRejectsFormat", func(t *testing.T) {
		if _, err := run(t, "policy", "export", "--format", "xml"); err == nil {
			t.Error("expected error for unsupported format")
		}
	})

	t.Run("Import", func(t *testing.T) {
		path := filepath.Join(dir, "policy.yaml")
		doc := "minRegularTriggersToEscalate: 5\n"
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatalf("failed to write policy: %v", err)
		}

		out, err := run(t, "policy", "import", path)
		if err != nil {
			t.Fatalf("policy import failed: %v", err)
		}
		if !strings.Contains(out, "13 triggers, minimum 5") {
			t.Errorf("unexpected import output: %s", out)
		}

		out, err = run(t, "policy", "show")
		if err != nil {
			t.Fatalf("policy show failed: %v", err)
		}
		if !strings.Contains(out, "5 of 11 regular triggers") {
			t.Errorf("imported minimum not stored: %s", out)
		}
	})

	t.Run("ImportMalformed", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		if err := os.WriteFile(path, []byte("- just\n- a list\n"), 0o644); err != nil {
			t.Fatalf("failed to write policy: %v", err)
		}
		if _, err := run(t, "policy", "import", path); err == nil {
			t.Error("expected error for a non-object document")
		}
	})

	t.Run("Reset", func(t *testing.T) {
		out, err := run(t, "policy", "reset")
		if err != nil {
			t.Fatalf("policy reset failed: %v", err)
		}
		if !strings.Contains(out, "13 triggers") {
			t.Errorf("unexpected reset output: %s", out)
		}

		out, _ = run(t, "policy", "show")
		if !strings.Contains(out, "3 of 11 regular triggers") {
			t.Errorf("reset did not restore the minimum: %s", out)
		}
	})
}

func TestEvaluateCommand(t *testing.T) {
	setupEnv(t)

	t.Run("Checklist", func(t *testing.T) {
		out, err := run(t, "evaluate", "ALRT-2024-001")
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		if !strings.Contains(out, "[x] Baseline deviation") {
			t.Errorf("expected baseline deviation to be met: %s", out)
		}
		if !strings.Contains(out, "Recommendation: ESCALATE") {
			t.Errorf("expected escalation: %s", out)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		out, err := run(t, "evaluate", "ALRT-2024-001", "--json")
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		if !strings.Contains(out, `"recommendation": "escalate"`) {
			t.Errorf("unexpected json output: %s", out)
		}
	})

	t.Run("Rationale", func(t *testing.T) {
		out, err := run(t, "evaluate", "ALRT-2024-001", "--rationale")
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		if !strings.Contains(out, "Escalation Rationale:") {
			t.Errorf("expected rationale block: %s", out)
		}
	})

	t.Run("UnknownCase", func(t *testing.T) {
		if _, err := run(t, "evaluate", "ALRT-0000-000"); err == nil {
			t.Error("expected error for unknown case")
		}
	})
}
