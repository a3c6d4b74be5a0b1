package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/pkg/config"
	"github.com/noah-isme/timetable-engine/pkg/logger"
)

var (
	logr    *zap.Logger
	cfg     *config.Config
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "timetable",
	Short: "Generate weekly term timetables",
	Long:  "timetable schedules lectures, tutorials and labs for one or more terms without teacher clashes and writes them to spreadsheets.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log placement progress")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr = logger.ForCLI(verbose)
	return nil
}
