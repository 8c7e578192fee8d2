package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/qca-lab/qca-sim/sim"
)

var (
	inspectFile string // Store key
	inspectJSON bool   // Print {design, metadata} as JSON
)

// inspectCmd reads only a store's design and metadata
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show a stored simulation's design summary and metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectFile == "" {
			return fmt.Errorf("%w: --file", sim.ErrMissingParameter)
		}
		repo, err := openRepository(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		design, meta, err := repo.LoadMetadata(cmd.Context(), inspectFile)
		if err != nil {
			return err
		}
		if inspectJSON {
			return printJSON(cmd, map[string]any{"design": design, "metadata": meta})
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "store:\t%s\n", inspectFile)
		fmt.Fprintf(w, "model:\t%s\n", design.SimulationSettings.SelectedSimulationModelID)
		fmt.Fprintf(w, "core version:\t%s\n", meta.QCACoreVersion)
		fmt.Fprintf(w, "started:\t%s\n", meta.StartTime.Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(w, "duration:\t%s\n", meta.Duration.Duration())
		fmt.Fprintf(w, "layers:\t%d (%d cells)\n", len(design.Layers), design.CellCount())
		fmt.Fprintf(w, "samples:\t%d\n", meta.NumSamples)
		fmt.Fprintf(w, "stored cells:\t%d\n", len(meta.StoredCells))
		for i, idx := range meta.StoredCells {
			cell, arch, err := design.CellAt(idx)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  [%d]\t%s\t%s\t%q\twidth %d\n", i, idx, cell.Typ, cell.Label, arch.FeatureWidth())
		}
		return w.Flush()
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFile, "file", "", "Store key")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print design and metadata as JSON")
}
