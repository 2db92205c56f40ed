package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/tadp"
)

// labelledCase is one historical case with the analyst's final outcome.
type labelledCase struct {
	ID        string
	Facts     domain.FactSet
	Escalated bool
}

// backtestStats tracks how a policy's recommendations compare with the
// recorded outcomes.
type backtestStats struct {
	TruePositives  int64 // escalated, recommended escalate
	FalsePositives int64 // dismissed, recommended escalate
	TrueNegatives  int64 // dismissed, recommended dismiss
	FalseNegatives int64 // escalated, recommended dismiss

	TotalProcessed int64
	Skipped        int64

	ProcessingTimeUs int64
}

func newBacktestCmd(opts *options) *cobra.Command {
	var (
		policyPath string
		workers    int
		limit      int
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "backtest <csv>",
		Short: "Replay labelled historical cases against a policy",
		Long: `Reads a CSV of historical cases and compares the policy's recommendation
with the recorded outcome. The header must contain an "escalated" column
(true/false or 1/0); an optional "case_id" column names the row. Every other
column is a fact keyed by trigger id: true/false for boolean triggers, a number
otherwise. Empty cells are missing facts.

By default the stored policy is used; --policy evaluates a JSON or YAML policy
document instead without saving it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			cases, skipped, err := readLabelledCases(f, limit)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			var candidate *domain.PolicyConfig
			if policyPath != "" {
				raw, err := os.ReadFile(policyPath)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", policyPath, err)
				}
				cfg, err := decodePolicy(raw)
				if err != nil {
					return fmt.Errorf("%s: %w", policyPath, err)
				}
				candidate = &cfg
			}

			a, err := newApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			start := time.Now()
			stats := runBacktest(cmd.Context(), a.pipeline, candidate, cases, workers, verbose, out)
			stats.Skipped = int64(skipped)
			printBacktest(out, stats, time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVar(&policyPath, "policy", "", "evaluate a policy document instead of the stored policy")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "number of concurrent evaluators")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to replay (0 = all)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every case")
	return cmd
}

// readLabelledCases parses the backtest CSV. Rows with unparseable cells are
// skipped and counted.
func readLabelledCases(r io.Reader, limit int) ([]labelledCase, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	labelCol, ok := colIndex["escalated"]
	if !ok {
		return nil, 0, errors.New(`missing "escalated" column`)
	}
	idCol, hasID := colIndex["case_id"]

	var (
		cases   []labelledCase
		skipped int
		row     int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			skipped++
			continue
		}

		escalated, err := parseBool(record[labelCol])
		if err != nil {
			skipped++
			continue
		}

		lc := labelledCase{
			ID:        fmt.Sprintf("row-%d", row),
			Facts:     make(domain.FactSet),
			Escalated: escalated,
		}
		if hasID && record[idCol] != "" {
			lc.ID = record[idCol]
		}

		valid := true
		for name, i := range colIndex {
			if i == labelCol || (hasID && i == idCol) {
				continue
			}
			fact, present, err := parseFact(record[i])
			if err != nil {
				valid = false
				break
			}
			if present {
				lc.Facts[name] = fact
			}
		}
		if !valid {
			skipped++
			continue
		}

		cases = append(cases, lc)
		if limit > 0 && len(cases) >= limit {
			break
		}
	}

	return cases, skipped, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true, nil
	case "false", "no", "n", "0":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", s)
	}
}

// parseFact reads one cell. An empty cell is a missing fact.
func parseFact(s string) (domain.Fact, bool, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return domain.Fact{}, false, nil
	case "true", "yes":
		return domain.BoolFact(true), true, nil
	case "false", "no":
		return domain.BoolFact(false), true, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return domain.Fact{}, false, fmt.Errorf("not a number: %q", s)
	}
	return domain.NumberFact(v), true, nil
}

func runBacktest(ctx context.Context, p *tadp.Pipeline, policy *domain.PolicyConfig, cases []labelledCase, numWorkers int, verbose bool, out io.Writer) *backtestStats {
	stats := &backtestStats{}
	if numWorkers < 1 {
		numWorkers = 1
	}

	work := make(chan labelledCase, numWorkers)
	var (
		wg    sync.WaitGroup
		outMu sync.Mutex
	)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for lc := range work {
				start := time.Now()
				d := p.EvaluateFacts(ctx, lc.Facts, policy, lc.ID)
				atomic.AddInt64(&stats.ProcessingTimeUs, time.Since(start).Microseconds())
				atomic.AddInt64(&stats.TotalProcessed, 1)

				predicted := d.Status == domain.StatusEscalate
				switch {
				case predicted && lc.Escalated:
					atomic.AddInt64(&stats.TruePositives, 1)
				case predicted && !lc.Escalated:
					atomic.AddInt64(&stats.FalsePositives, 1)
				case !predicted && !lc.Escalated:
					atomic.AddInt64(&stats.TrueNegatives, 1)
				default:
					atomic.AddInt64(&stats.FalseNegatives, 1)
				}

				if verbose {
					mark := "ok  "
					if predicted != lc.Escalated {
						mark = "MISS"
					}
					outMu.Lock()
					fmt.Fprintf(out, "%s %-16s | recorded escalated=%-5t | %-8s %s\n",
						mark, lc.ID, lc.Escalated, d.Status, d.Result.Summary())
					outMu.Unlock()
				}
			}
		}()
	}

	for _, lc := range cases {
		work <- lc
	}
	close(work)
	wg.Wait()

	return stats
}

// Precision is the share of recommended escalations that were escalated.
func (s *backtestStats) Precision() float64 {
	return ratio(s.TruePositives, s.TruePositives+s.FalsePositives)
}

// Recall is the share of recorded escalations the policy recommends.
func (s *backtestStats) Recall() float64 {
	return ratio(s.TruePositives, s.TruePositives+s.FalseNegatives)
}

func (s *backtestStats) F1() float64 {
	p, r := s.Precision(), s.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (s *backtestStats) Accuracy() float64 {
	total := s.TruePositives + s.TrueNegatives + s.FalsePositives + s.FalseNegatives
	return ratio(s.TruePositives+s.TrueNegatives, total)
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func printBacktest(w io.Writer, s *backtestStats, duration time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "BACKTEST RESULTS")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Cases replayed:  %d\n", s.TotalProcessed)
	fmt.Fprintf(w, "  Rows skipped:    %d\n", s.Skipped)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "                         Recommended")
	fmt.Fprintln(w, "                     ESCALATE    DISMISS")
	fmt.Fprintf(w, "  Recorded escalated  %8d   %8d\n", s.TruePositives, s.FalseNegatives)
	fmt.Fprintf(w, "  Recorded dismissed  %8d   %8d\n", s.FalsePositives, s.TrueNegatives)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Precision:  %.4f\n", s.Precision())
	fmt.Fprintf(w, "  Recall:     %.4f\n", s.Recall())
	fmt.Fprintf(w, "  F1-Score:   %.4f\n", s.F1())
	fmt.Fprintf(w, "  Accuracy:   %.4f\n", s.Accuracy())

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Duration:     %v\n", duration.Round(time.Millisecond))
	if s.TotalProcessed > 0 {
		fmt.Fprintf(w, "  Avg latency:  %.1f µs\n", float64(s.ProcessingTimeUs)/float64(s.TotalProcessed))
	}
}
