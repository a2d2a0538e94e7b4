package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/changedetect"
	"github.com/cinebyhub/catalog-sync/pkg/runlog"
	"github.com/cinebyhub/catalog-sync/pkg/syncer"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"sync", "detect", "run", "history"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}

	for _, flag := range []string{"once", "interval", "skip-wrap", "force-wrap", "no-scrape"} {
		if runCmd.Flags().Lookup(flag) == nil {
			t.Errorf("run flag --%s missing", flag)
		}
	}
	if syncCmd.Flags().Lookup("full") == nil {
		t.Error("sync flag --full missing")
	}
	for _, flag := range []string{"config", "log-level", "pretty", "metrics-addr"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s := &syncer.Summary{
		RunID:      "abc",
		Mode:       syncer.ModeIncremental,
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Minute),
		Categories: []syncer.CategoryResult{
			{Sheet: "🎬 Movies", Existing: 100, Fetched: 40, New: 12, Total: 112, Pages: 9},
			{Sheet: "📡 Channels", Fetched: 3, New: 3, Total: 3, RecordErrors: 1},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, s)
	out := buf.String()

	for _, want := range []string{"Run abc (incremental) finished in 2m0s", "🎬 Movies", "112", "TOTAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrintVerdict(t *testing.T) {
	tests := []struct {
		name string
		res  changedetect.Result
		want string
	}{
		{"bootstrap", changedetect.Result{HasGrowth: true, Bootstrap: true}, "growth: yes (no baseline yet)"},
		{"growth", changedetect.Result{HasGrowth: true, Grown: []changedetect.Delta{{Sheet: "🎬 Movies", Previous: 10, Current: 12}}}, "+ 🎬 Movies: 10 -> 12 (+2)"},
		{"none", changedetect.Result{}, "growth: no"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printVerdict(&buf, tt.res)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("printVerdict() = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	printRuns(&buf, nil)
	if !strings.Contains(buf.String(), "No runs recorded") {
		t.Errorf("printRuns(nil) = %q", buf.String())
	}

	buf.Reset()
	start := time.Now()
	printRuns(&buf, []runlog.Run{{
		ID: "run-1", Mode: "full", StartedAt: start, FinishedAt: start.Add(time.Minute),
		Fetched: 5, Added: 2, WrapStatus: runlog.WrapDone,
	}})
	out := buf.String()
	for _, want := range []string{"run-1", "full", "1m0s", "done"} {
		if !strings.Contains(out, want) {
			t.Errorf("printRuns() missing %q:\n%s", want, out)
		}
	}
}
