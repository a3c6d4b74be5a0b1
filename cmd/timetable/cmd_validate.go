package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/timetable-engine/internal/service"
)

var validateCmd = &cobra.Command{
	Use:   "validate <run-file>",
	Short: "Check a run file without scheduling it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	rf, err := loadRunFile(args[0])
	if err != nil {
		return err
	}
	problems := rf.check()
	if _, err := service.ResolveGrid(rf.TimeGrid); err != nil {
		problems = append(problems, fmt.Errorf("time grid: %w", err))
	}
	for _, p := range problems {
		fmt.Fprintln(cmd.ErrOrStderr(), p)
	}
	if len(problems) > 0 {
		return errors.Join(problems...)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d terms ok\n", args[0], len(rf.Terms))
	return nil
}
