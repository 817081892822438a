package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"dbload/internal/db"
	"dbload/internal/metrics"
	"dbload/internal/profile"
	"dbload/internal/runner"
)

// PrintHeader announces a run before the engine starts.
func PrintHeader(cfg db.Config, p profile.Profile, testType string) {
	fmt.Printf("\nSTARTING DBLOAD TEST\n")
	fmt.Printf("======================================================================\n")
	fmt.Printf("Target      : %s (%s)\n", cfg.Addr(), cfg.Driver)
	fmt.Printf("Test type   : %s\n", testType)
	fmt.Printf("Profile     : %s\n", p.Name)
	fmt.Printf("Connections : %d\n", p.Connections)
	fmt.Printf("Ops/sec     : %d (total %d)\n", p.OpsPerSecond, p.TotalOperations())
	fmt.Printf("Data size   : %d KB\n", p.DataSizeKB)
	fmt.Printf("Think time  : %s\n", p.ThinkTime)
	fmt.Printf("Duration    : %s\n", p.Duration)
	fmt.Printf("TLS         : %v\n", cfg.UseTLS)
	fmt.Printf("======================================================================\n\n")
}

// WatchProgress renders a progress bar from engine snapshots until ctx is
// cancelled. total is the expected operation count (0 disables the
// percentage).
func WatchProgress(ctx context.Context, updates runner.UpdateChan, total int) {
	start := time.Now()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var last runner.Snapshot
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case s := <-updates:
			last = s
		case <-ticker.C:
			pct := 0.0
			if total > 0 {
				pct = float64(last.Ops) / float64(total)
				if pct > 1.0 {
					pct = 1.0
				}
			}
			elapsed := time.Since(start).Round(time.Second)
			fmt.Printf("\r%s %3.0f%% | %s | Ops: %d | OK: %d | Err: %d | avg: %.1fms | p95: %.1fms",
				progressBar(pct, 20), pct*100,
				elapsed,
				last.Ops, last.Success, last.Fail, last.AvgMs, last.P95Ms,
			)
		}
	}
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

// PrintSummary renders a full summary the way the suite reports results.
func PrintSummary(s metrics.Summary) {
	fmt.Printf("\n\nTEST RESULTS\n")
	fmt.Printf("======================================================================\n")
	fmt.Printf("Profile          : %s\n", s.Profile)
	fmt.Printf("Total operations : %d\n", s.TotalOperations)
	fmt.Printf("Successful       : %d\n", s.SuccessfulOperations)
	fmt.Printf("Failed           : %d\n", s.FailedOperations)
	fmt.Printf("Success rate     : %.2f%%\n", s.SuccessRate)
	fmt.Printf("Data transferred : %.2f MB\n", s.TotalDataMB)

	if s.Durations != nil {
		fmt.Printf("\nLATENCY (ms) [success only]\n")
		fmt.Printf("   Avg    : %.2f\n", s.Durations.AvgMs)
		fmt.Printf("   Median : %.2f\n", s.Durations.MedianMs)
		fmt.Printf("   Min    : %.2f\n", s.Durations.MinMs)
		fmt.Printf("   Max    : %.2f\n", s.Durations.MaxMs)
		fmt.Printf("   P95    : %.2f\n", s.Durations.P95Ms)
		fmt.Printf("   P99    : %.2f\n", s.Durations.P99Ms)
	}

	if s.Throughput != nil {
		fmt.Printf("\nTHROUGHPUT (MB/s)\n")
		fmt.Printf("   Avg : %.2f\n", s.Throughput.AvgMBps)
		fmt.Printf("   Min : %.2f\n", s.Throughput.MinMBps)
		fmt.Printf("   Max : %.2f\n", s.Throughput.MaxMBps)
	}

	printCategory("READS", s.Read)
	printCategory("WRITES", s.Write)
	fmt.Printf("======================================================================\n")
}

func printCategory(label string, c *metrics.CategorySummary) {
	if c == nil {
		return
	}
	fmt.Printf("\n%s\n", label)
	fmt.Printf("   Operations : %d\n", c.Operations)
	fmt.Printf("   Data       : %.2f MB\n", c.DataMB)
	fmt.Printf("   Avg / P95  : %.2f / %.2f ms\n", c.Durations.AvgMs, c.Durations.P95Ms)
	if c.Throughput != nil {
		fmt.Printf("   Throughput : %.2f MB/s avg\n", c.Throughput.AvgMBps)
	}
}

// SuiteEntry names one scenario's summary within a full pass.
type SuiteEntry struct {
	Scenario string
	Summary  metrics.Summary
}

// PrintSuiteSummary renders the compact combined view of a full pass, one
// block per scenario.
func PrintSuiteSummary(entries []SuiteEntry) {
	fmt.Printf("\n\nTEST RESULTS SUMMARY\n")
	fmt.Printf("======================================================================\n")
	for _, e := range entries {
		fmt.Printf("\n%s (%s profile):\n", strings.ToUpper(e.Scenario), e.Summary.Profile)
		fmt.Printf("  Total operations : %d\n", e.Summary.TotalOperations)
		fmt.Printf("  Success rate     : %.2f%%\n", e.Summary.SuccessRate)
		fmt.Printf("  Data transferred : %.2f MB\n", e.Summary.TotalDataMB)
		if e.Summary.Durations != nil {
			fmt.Printf("  Avg duration     : %.2f ms\n", e.Summary.Durations.AvgMs)
			fmt.Printf("  P95 duration     : %.2f ms\n", e.Summary.Durations.P95Ms)
			fmt.Printf("  P99 duration     : %.2f ms\n", e.Summary.Durations.P99Ms)
		}
		if e.Summary.Throughput != nil {
			fmt.Printf("  Avg throughput   : %.2f MB/s\n", e.Summary.Throughput.AvgMBps)
		}
	}
	fmt.Printf("======================================================================\n")
}

// PrintComparison renders the prepared-vs-direct verdict.
func PrintComparison(prepared, direct metrics.Summary) {
	fmt.Printf("\n\nPREPARED vs DIRECT SQL\n")
	fmt.Printf("======================================================================\n")
	for _, v := range []struct {
		name string
		s    metrics.Summary
	}{{"PREPARED", prepared}, {"DIRECT", direct}} {
		fmt.Printf("\n%s:\n", v.name)
		fmt.Printf("   Success rate : %.2f%%\n", v.s.SuccessRate)
		if v.s.Durations != nil {
			fmt.Printf("   Avg duration : %.2f ms\n", v.s.Durations.AvgMs)
			fmt.Printf("   P95 duration : %.2f ms\n", v.s.Durations.P95Ms)
		}
	}

	if prepared.Durations != nil && direct.Durations != nil && direct.Durations.AvgMs > 0 {
		improvement := (direct.Durations.AvgMs - prepared.Durations.AvgMs) / direct.Durations.AvgMs * 100
		fmt.Printf("\nPrepared statements are %.1f%% faster\n", improvement)
	}
	fmt.Printf("======================================================================\n")
}

// ExportJSON writes any result document as indented JSON.
func ExportJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
