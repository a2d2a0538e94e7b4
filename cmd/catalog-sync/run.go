package main

import (
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/pipeline"
	"github.com/spf13/cobra"
)

var (
	runOnce      bool
	runInterval  time.Duration
	runSkipWrap  bool
	runForceWrap bool
	runNoScrape  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync and wrap scheduler",
	Long: `Run scheduler cycles until interrupted. Each cycle:
  1. syncs the store (skipped with --no-scrape)
  2. counts rows per sheet and compares them with the baseline
  3. runs the configured link wrapper when the store grew
  4. saves the counts as the new baseline

A failed sync skips the wrapper for that cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		engine, err := a.newEngine(cmd.Context(), "")
		if err != nil {
			return err
		}

		cfg := a.cfg.Scheduler()
		cfg.Once = runOnce
		cfg.SkipSync = runNoScrape
		cfg.SkipWrap = runSkipWrap
		cfg.ForceWrap = runForceWrap
		if cmd.Flags().Changed("interval") {
			cfg.Interval = runInterval
		}

		var wrapper pipeline.LinkWrapper
		if argv := pipeline.ParseCommand(a.cfg.Schedule.WrapCommand); len(argv) > 0 {
			wrapper = &pipeline.CommandWrapper{Command: argv, Dir: a.cfg.Schedule.WrapDir}
		} else if !runSkipWrap {
			a.logger.Warn().Msg("No wrap command configured, wrapper disabled")
		}

		var recorder pipeline.RunRecorder
		ledger, err := a.openLedger()
		if err != nil {
			a.logger.Warn().Err(err).Msg("Run ledger unavailable")
		} else {
			defer ledger.Close()
			recorder = ledger
		}

		return pipeline.NewScheduler(cfg, engine, a.newDetector(), wrapper, recorder).Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
	runCmd.Flags().DurationVar(&runInterval, "interval", pipeline.DefaultInterval, "time between cycles")
	runCmd.Flags().BoolVar(&runSkipWrap, "skip-wrap", false, "never run the link wrapper")
	runCmd.Flags().BoolVar(&runForceWrap, "force-wrap", false, "run the link wrapper even without growth")
	runCmd.Flags().BoolVar(&runNoScrape, "no-scrape", false, "skip the sync and only check growth")
}
