package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const backtestCSV = `case_id,escalated,baseline_deviation,first_time_beneficiary,documentation_gap,sanctions_match
A-1,true,250,true,true,false
A-2,false,10,false,false,false
A-3,true,,false,false,true
A-4,false,150,true,true,
A-5,true,20,false,false,false
A-6,maybe,20,false,false,false
A-7,false,lots,false,false,false
`

func TestReadLabelledCases(t *testing.T) {
	cases, skipped, err := readLabelledCases(strings.NewReader(backtestCSV), 0)
	require.NoError(t, err)
	assert.Len(t, cases, 5)
	assert.Equal(t, 2, skipped)

	first := cases[0]
	assert.Equal(t, "A-1", first.ID)
	assert.True(t, first.Escalated)
	assert.Equal(t, domain.NumberFact(250), first.Facts["baseline_deviation"])
	assert.Equal(t, domain.BoolFact(true), first.Facts["first_time_beneficiary"])

	_, ok := cases[2].Facts["baseline_deviation"]
	assert.False(t, ok, "empty cell should be a missing fact")

	t.Run("Limit", func(t *testing.T) {
		cases, _, err := readLabelledCases(strings.NewReader(backtestCSV), 2)
		require.NoError(t, err)
		assert.Len(t, cases, 2)
	})

	t.Run("MissingLabel", func(t *testing.T) {
		_, _, err := readLabelledCases(strings.NewReader("case_id,baseline_deviation\nA,1\n"), 0)
		assert.Error(t, err)
	})
}

func TestBacktestStats(t *testing.T) {
	s := &backtestStats{TruePositives: 6, FalsePositives: 2, TrueNegatives: 10, FalseNegatives: 2}
	assert.InDelta(t, 0.75, s.Precision(), 1e-9)
	assert.InDelta(t, 0.75, s.Recall(), 1e-9)
	assert.InDelta(t, 0.75, s.F1(), 1e-9)
	assert.InDelta(t, 0.8, s.Accuracy(), 1e-9)

	empty := &backtestStats{}
	assert.Zero(t, empty.Precision())
	assert.Zero(t, empty.F1())
}

func TestBacktestCommand(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "history.csv")
	require.NoError(t, os.WriteFile(path, []byte(backtestCSV), 0o644))

	// A-1 meets three regular triggers and A-3 a critical one; A-4 also
	// meets three but was dismissed. A-5 was escalated without any trigger.
	out, err := run(t, "backtest", path, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Cases replayed:  5")
	assert.Contains(t, out, "Rows skipped:    2")
	assert.Contains(t, out, "Recorded escalated         2          1")
	assert.Contains(t, out, "Recorded dismissed         1          1")

	t.Run("CandidatePolicy", func(t *testing.T) {
		policyPath := filepath.Join(dir, "strict.yaml")
		require.NoError(t, os.WriteFile(policyPath, []byte("minRegularTriggersToEscalate: 4\n"), 0o644))

		out, err := run(t, "backtest", path, "--policy", policyPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Recorded escalated         1          2")
		assert.Contains(t, out, "Recorded dismissed         0          2")
	})
}
