package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/qca-lab/qca-sim/sim"
	_ "github.com/qca-lab/qca-sim/sim/models" // registers the simulation models
)

var (
	logLevel   string // Log verbosity level
	configPath string // Optional YAML config file
	cfg        Config // Loaded in PersistentPreRunE
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:          "qca-sim",
	Short:        "Simulation data pipeline for QCA cellular-automata designs",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := LoadConfig(configPath, os.Getenv)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log") {
			loaded.LogLevel = logLevel
		}
		level, err := logrus.ParseLevel(loaded.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", loaded.LogLevel, err)
		}
		logrus.SetLevel(level)
		cfg = loaded
		return nil
	},
}

// modelsCmd prints every model descriptor with its default settings.
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the available simulation models",
	RunE: func(cmd *cobra.Command, args []string) error {
		descriptors, err := sim.ModelDescriptors()
		if err != nil {
			return err
		}
		return printJSON(cmd, descriptors)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up global flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a qca-sim YAML config")

	rootCmd.AddCommand(modelsCmd, runCmd, inspectCmd, queryCmd, truthTableCmd, runsCmd, serveCmd)
}
