package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cinebyhub/catalog-sync/pkg/changedetect"
	"github.com/cinebyhub/catalog-sync/pkg/snapshot"
	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Report whether the store grew since the last check",
	Long: `Count the data rows of every sheet in the store, compare them with the
saved baseline and print the verdict. The counts then become the new
baseline. An empty baseline always reports growth.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		counts, err := snapshot.CountRows(a.cfg.Store.Path)
		if err != nil {
			return err
		}
		res, err := a.newDetector().Check(counts)
		if err != nil {
			return err
		}
		printVerdict(os.Stdout, res)
		return nil
	},
}

func printVerdict(w io.Writer, res changedetect.Result) {
	switch {
	case res.Bootstrap:
		fmt.Fprintln(w, "growth: yes (no baseline yet)")
	case res.HasGrowth:
		fmt.Fprintln(w, "growth: yes")
	default:
		fmt.Fprintln(w, "growth: no")
	}
	for _, d := range res.Grown {
		fmt.Fprintf(w, "  + %s: %d -> %d (+%d)\n", d.Sheet, d.Previous, d.Current, d.Diff())
	}
	for _, d := range res.Shrunk {
		fmt.Fprintf(w, "  - %s: %d -> %d (%d)\n", d.Sheet, d.Previous, d.Current, d.Diff())
	}
}
