package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	"github.com/noah-isme/timetable-engine/internal/service"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

var generateCmd = &cobra.Command{
	Use:   "generate <run-file>",
	Short: "Schedule every term of a run file and write the timetables",
	Long:  "Schedule the terms of a YAML run file in order against one teacher ledger and write one file per term into each term's output directory.",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

var (
	generateFormat string
	generateSeed   int64
	generateOutDir string
)

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&generateFormat, "format", "f", "xlsx", "Output format: xlsx, csv or pdf")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 0, "Override the run file seed")
	generateCmd.Flags().StringVarP(&generateOutDir, "out", "o", "", "Write every term here instead of its output_dir")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	rf, err := loadRunFile(args[0])
	if err != nil {
		return err
	}
	format := models.ExportFormat(generateFormat)
	if !format.Valid() {
		return fmt.Errorf("unsupported format %q", generateFormat)
	}

	engineCfg, err := service.EngineConfig(cfg.Scheduler)
	if err != nil {
		return err
	}
	grid, err := service.ResolveGrid(rf.TimeGrid)
	if err != nil {
		return fmt.Errorf("time grid: %w", err)
	}
	ledger := scheduler.NewLedger()
	if err := service.BlockUnavailable(ledger, rf.TeacherUnavailable); err != nil {
		return err
	}

	seed := pickSeed(cmd, rf)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := scheduler.NewEngine(grid, engineCfg, scheduler.WithSeed(seed), scheduler.WithLogger(logr))
	timetables, err := engine.ScheduleAll(ctx, rf.Terms, ledger)
	if err != nil {
		logr.Error("scheduling failed", zap.Int64("seed", seed), zap.Int("terms_completed", len(timetables)))
		return err
	}

	run := dto.TimetableRunResponse{Status: models.RunStatusCompleted, Seed: seed, CreatedAt: time.Now().UTC()}
	for i, tt := range timetables {
		run.Timetables = append(run.Timetables, service.BuildTermView(fmt.Sprintf("term-%d", i+1), tt, grid))
	}
	files, err := service.NewTimetableRenderer(nil, nil, nil).Render(run, format, true)
	if err != nil {
		return err
	}

	for _, file := range files {
		dir := outputDir(rf.Terms[file.Term])
		store, err := storage.NewLocalStorage(dir)
		if err != nil {
			return err
		}
		if _, err := store.Save(file.Name, file.Data); err != nil {
			return fmt.Errorf("write %s: %w", file.Name, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(dir, file.Name))
	}
	logr.Info("timetables written", zap.Int("files", len(files)), zap.Int64("seed", seed))
	return nil
}

func pickSeed(cmd *cobra.Command, rf *runFile) int64 {
	switch {
	case cmd.Flags().Changed("seed"):
		return generateSeed
	case rf.Seed != nil:
		return *rf.Seed
	case cfg.Scheduler.Seed != 0:
		return cfg.Scheduler.Seed
	default:
		return time.Now().UnixNano()
	}
}

func outputDir(term models.TermDescription) string {
	if generateOutDir != "" {
		return generateOutDir
	}
	if term.OutputDir != "" {
		return term.OutputDir
	}
	return "."
}
