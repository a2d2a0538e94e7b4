// Command catalog-sync keeps a TMDB catalog workbook up to date.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	logLevel    string
	prettyLogs  bool
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "catalog-sync",
	Short: "Incremental TMDB catalog synchronization",
	Long: `catalog-sync maintains a spreadsheet catalog of movies, TV shows, anime
and TV networks from The Movie Database.

Each run reads the existing workbook, walks the TMDB listing and discover
queries, appends only records whose id is not yet present and writes every
category back before moving to the next. A scheduler loop repeats the sync
and runs a downstream link generator whenever the catalog grew.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./catalog-sync.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", false, "human-readable console logs")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(syncCmd, detectCmd, runCmd, historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
