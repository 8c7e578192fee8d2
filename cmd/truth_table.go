package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qca-lab/qca-sim/sim"
	"github.com/qca-lab/qca-sim/sim/truthtable"
)

var (
	ttFile             string         // Store key
	ttCells            string         // Comma-separated cell indices
	ttDelays           map[string]int // Per-cell clock delay in samples
	ttClockThreshold   float64        // Stable window cut point
	ttLogicalThreshold float64        // Binarization cut point
	ttJSON             bool           // Print the table as JSON
)

// truthTableCmd derives a truth table from a stored simulation
var truthTableCmd = &cobra.Command{
	Use:   "truth-table",
	Short: "Derive a truth table from a stored simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cells, err := sim.ParseCellIndexList(ttCells)
		if err != nil {
			return err
		}
		req := truthtable.Request{
			Filename:         ttFile,
			Cells:            cells,
			CellClockDelay:   ttDelays,
			ClockThreshold:   ttClockThreshold,
			LogicalThreshold: ttLogicalThreshold,
		}
		if req.Filename == "" {
			return fmt.Errorf("%w: --file", sim.ErrMissingParameter)
		}
		repo, err := openRepository(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		table, err := truthtable.Resolve(cmd.Context(), repo, req)
		if err != nil {
			return err
		}
		if ttJSON {
			return printJSON(cmd, table)
		}
		return table.WriteText(cmd.OutOrStdout())
	},
}

func init() {
	truthTableCmd.Flags().StringVar(&ttFile, "file", "", "Store key")
	truthTableCmd.Flags().StringVar(&ttCells, "cells", "", "Cells to observe, e.g. 0-0,0-4")
	truthTableCmd.Flags().StringToIntVar(&ttDelays, "delay", nil, "Clock delay per cell in samples, e.g. 0-0=0,0-4=25")
	truthTableCmd.Flags().Float64Var(&ttClockThreshold, "clock-threshold", 0.5, "Clock level at or above which a window is stable")
	truthTableCmd.Flags().Float64Var(&ttLogicalThreshold, "logical-threshold", 0, "Polarization above which a component reads as 1")
	truthTableCmd.Flags().BoolVar(&ttJSON, "json", false, "Print the table as JSON")
}
