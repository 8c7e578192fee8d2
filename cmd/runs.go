package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	runsLimit int  // Maximum records to list
	runsJSON  bool // Print records as JSON
)

// runsCmd lists the run catalog, newest first
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := openCatalog(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cat.Close()
		records, err := cat.List(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		if runsJSON {
			return printJSON(cmd, records)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tMODEL\tSTATUS\tSAMPLES\tSTARTED\tSTORE")
		for _, r := range records {
			status := string(r.Status)
			if r.ErrorKind != "" {
				status += " (" + r.ErrorKind + ")"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				r.ID, r.ModelID, status, r.NumSamples, r.StartedAt.Local().Format(time.DateTime), r.StoreKey)
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Print records as JSON")
}
