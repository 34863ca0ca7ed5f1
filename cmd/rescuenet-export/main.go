package main

import (
	"context"
	"fmt"
	"os"

	"rescuenet/common/database"
	"rescuenet/common/logger"
	"rescuenet/internal/config"
	"rescuenet/internal/report"
	"rescuenet/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var output string
	var limit int

	rootCmd := &cobra.Command{
		Use:     "rescuenet-export <subject id>",
		Short:   "Export emergency history to xlsx",
		Long:    "Export the emergencies and notification outcomes of one subject to an Excel workbook",
		Example: "rescuenet-export subject-1 --out history.xlsx --limit 100",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subjectID := args[0]
			if output == "" {
				output = fmt.Sprintf("emergencies-%s.xlsx", subjectID)
			}
			return export(cmd.Context(), subjectID, output, limit)
		},
	}
	rootCmd.Flags().StringVarP(&output, "out", "o", "", "output path (default emergencies-<subject>.xlsx)")
	rootCmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of emergencies, 0 for all")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func export(ctx context.Context, subjectID, output string, limit int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewLogger(cfg.Log.Level, "console", "rescuenet-export")
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)

	list, err := repository.NewEmergencyRepository(db, log).ListBySubject(ctx, subjectID, limit)
	if err != nil {
		return err
	}

	data, err := report.GenerateEmergencyHistory(list, cfg.Location())
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	log.Info("Emergency history exported",
		zap.String("subject_id", subjectID),
		zap.String("path", output),
		zap.Int("emergency_count", len(list)),
	)
	return nil
}
