package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/qca-lab/qca-sim/sim"
	"github.com/qca-lab/qca-sim/sim/query"
)

var (
	queryFile    string // Store key
	queryIndices string // JSON array of stored-cell positions
	queryOut     string // Output path; stdout when empty
)

// queryCmd writes the raw sample body the /load-sim endpoint would serve
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Write raw clock and cell samples from a store",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := query.Request{Filename: queryFile}
		if req.Filename == "" {
			return fmt.Errorf("%w: --file", sim.ErrMissingParameter)
		}
		if queryIndices != "" {
			indices, err := query.ParseIndices(queryIndices)
			if err != nil {
				return err
			}
			req.Indices = indices
		}
		repo, err := openRepository(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		body, err := query.Resolve(cmd.Context(), repo, req)
		if err != nil {
			return err
		}
		if queryOut == "" {
			_, err = cmd.OutOrStdout().Write(body)
			return err
		}
		if err := os.WriteFile(queryOut, body, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", queryOut, err)
		}
		logrus.Infof("[cmd] wrote %d float64 values to %s", len(body)/8, queryOut)
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryFile, "file", "", "Store key")
	queryCmd.Flags().StringVar(&queryIndices, "indices", "", "JSON array of stored-cell positions, e.g. [2,0]")
	queryCmd.Flags().StringVar(&queryOut, "out", "", "Output file (default stdout)")
}
