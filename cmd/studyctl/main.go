package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"studyplan/backend/internal/clock"
	"studyplan/backend/internal/config"
	"studyplan/backend/internal/db"
	"studyplan/backend/internal/logging"
	"studyplan/backend/internal/repository"
	"studyplan/backend/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, true)

	root := &cobra.Command{
		Use:           "studyctl",
		Short:         "Operator tools for the study session store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")

	root.AddCommand(newReclaimCmd(&cfg))
	root.AddCommand(newStatsCmd(&cfg))
	return root
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

func newReclaimCmd(cfg *config.Config) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Force-complete active sessions older than the staleness threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			reclaimer := service.NewReclaimer(repository.NewSessionRepository(database), clock.SystemClock{}, cfg.StaleSessionAfter)
			sessions, err := reclaimer.Run(context.Background(), dryRun)
			if err != nil {
				return err
			}

			verb := "reclaimed"
			if dryRun {
				verb = "would reclaim"
			}
			out := cmd.OutOrStdout()
			for _, s := range sessions {
				_, _ = fmt.Fprintf(out, "%s %s user=%s subject=%s started=%s\n", verb, s.ID, s.UserID, s.SubjectID, s.StartedAt.Format(db.TimeLayout))
			}
			_, _ = fmt.Fprintf(out, "%d session(s) %s\n", len(sessions), verb)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list stale sessions without completing them")
	return cmd
}

func newStatsCmd(cfg *config.Config) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-subject statistics for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			stats := service.NewStatisticsService(repository.NewStatisticsRepository(database), clock.SystemClock{})
			items, err := stats.ListForUser(context.Background(), userID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "SUBJECT\tSESSIONS\tFOCUS MINUTES\tLAST COMPLETED")
			for _, item := range items {
				last := "-"
				if item.LastSessionCompletedAt != nil {
					last = item.LastSessionCompletedAt.Format("2006-01-02 15:04")
				}
				_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", item.SubjectID, item.SessionsCompleted, item.TotalFocusSeconds/60, last)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
