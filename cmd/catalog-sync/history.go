package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/runlog"
	"github.com/cinebyhub/catalog-sync/pkg/syncer"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		ledger, err := a.openLedger()
		if err != nil {
			return err
		}
		defer ledger.Close()

		if historyRun != "" {
			cats, err := ledger.Categories(cmd.Context(), historyRun)
			if err != nil {
				return err
			}
			printCategories(os.Stdout, cats)
			return nil
		}

		runs, err := ledger.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		printRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to list")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "show per-category results of one run")
}

func printRuns(w io.Writer, runs []runlog.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODE\tSTARTED\tDURATION\tFETCHED\tNEW\tERRORS\tWRAP")
	for _, r := range runs {
		wrap := r.WrapStatus
		if wrap == runlog.WrapPending {
			wrap = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Mode, r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Duration().Round(time.Second), r.Fetched, r.Added, r.Errors, wrap)
	}
	_ = tw.Flush()
}

func printCategories(w io.Writer, cats []syncer.CategoryResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tEXISTING\tFETCHED\tNEW\tTOTAL\tPAGES\tEARLY STOPS\tERRORS\tWRITTEN")
	for _, c := range cats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%t\n",
			c.Sheet, c.Existing, c.Fetched, c.New, c.Total, c.Pages, c.EarlyStops, c.Errors(), c.Written)
	}
	_ = tw.Flush()
}
