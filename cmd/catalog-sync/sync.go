package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/pipeline"
	"github.com/cinebyhub/catalog-sync/pkg/syncer"
	"github.com/spf13/cobra"
)

var fullSync bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass",
	Long: `Run one synchronization pass over every configured category.

Incremental mode (the default) loads the workbook, skips ids already
present and stops a query once a page brings nothing new. --full ignores
the workbook and replaces each category's sheet with everything fetched.

The store is locked for the duration of the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		mode := syncer.Mode("")
		if fullSync {
			mode = syncer.ModeFull
		}
		engine, err := a.newEngine(cmd.Context(), mode)
		if err != nil {
			return err
		}

		lock, err := pipeline.AcquireLock(a.cfg.Store.Path)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()

		summary, runErr := engine.Run(cmd.Context())
		if summary != nil {
			printSummary(os.Stdout, summary)

			ledger, err := a.openLedger()
			if err != nil {
				a.logger.Warn().Err(err).Msg("Run ledger unavailable")
			} else {
				defer ledger.Close()
				if err := ledger.Record(cmd.Context(), summary); err != nil {
					a.logger.Warn().Err(err).Msg("Failed to record run")
				}
			}
		}
		return runErr
	},
}

func init() {
	syncCmd.Flags().BoolVar(&fullSync, "full", false, "ignore the existing store and refetch everything")
}

func printSummary(w io.Writer, s *syncer.Summary) {
	fetched, added, errs := s.Totals()
	fmt.Fprintf(w, "\nRun %s (%s) finished in %s\n\n", s.RunID, s.Mode, s.Duration().Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tEXISTING\tFETCHED\tNEW\tTOTAL\tPAGES\tERRORS")
	for _, c := range s.Categories {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			c.Sheet, c.Existing, c.Fetched, c.New, c.Total, c.Pages, c.Errors())
	}
	fmt.Fprintf(tw, "TOTAL\t\t%d\t%d\t\t\t%d\n", fetched, added, errs)
	_ = tw.Flush()
	fmt.Fprintln(w)
}
