package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qca-lab/qca-sim/sim"
	"github.com/qca-lab/qca-sim/sim/pipeline"
)

var (
	runDesignPath string // Design JSON to simulate
	runModelID    string // Overrides the design's selected model
	runQuiet      bool   // Suppress the progress line
)

// runCmd executes a design through the pipeline and prints the store key
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a design and persist the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		design, err := readDesign(runDesignPath)
		if err != nil {
			return err
		}
		if runModelID != "" {
			design.SimulationSettings.SelectedSimulationModelID = runModelID
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		repo, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		cat, err := openCatalog(ctx, cfg)
		if err != nil {
			return err
		}
		defer cat.Close()

		errOut := cmd.ErrOrStderr()
		report, err := pipeline.NewExecutor(repo, cat).Execute(ctx, design, func(ev sim.ProgressEvent) {
			if !runQuiet && ev.State == sim.ProgressRunning {
				fmt.Fprintf(errOut, "\r%5.1f%% (%d/%d samples)", ev.Percent(), ev.CurrentSample, ev.TotalSamples)
			}
		})
		if !runQuiet {
			fmt.Fprintln(errOut)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.StoreKey)
		return nil
	},
}

// readDesign loads a design JSON file.
func readDesign(path string) (*sim.Design, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: --design", sim.ErrMissingParameter)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading design: %w", err)
	}
	var design sim.Design
	if err := json.Unmarshal(data, &design); err != nil {
		return nil, fmt.Errorf("%w: design %s: %v", sim.ErrInvalidRequest, path, err)
	}
	return &design, nil
}

func init() {
	runCmd.Flags().StringVar(&runDesignPath, "design", "", "Design JSON file")
	runCmd.Flags().StringVar(&runModelID, "model", "", "Model id; overrides selected_simulation_model_id")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Do not print progress")
}
