package chronicler

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	platformcmd "github.com/louisbranch/chronicler/internal/platform/cmd"
	"github.com/louisbranch/chronicler/internal/storage"
	"github.com/louisbranch/chronicler/internal/storage/sqlite"
)

func statusCmd() *cobra.Command {
	var dbPath string
	var sessionID string
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect durable pipeline state: schedules, retry jobs, telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg Config
			if err := platformcmd.ParseConfig(&cfg); err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("a database path is required (--db or CHRONICLER_DB_PATH)")
			}

			store, err := sqlite.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					log.Printf("close storage: %v", err)
				}
			}()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if sessionID != "" {
				schedule, err := store.GetSchedule(ctx, sessionID)
				switch {
				case errors.Is(err, storage.ErrNotFound):
					fmt.Fprintf(out, "Session %s: no schedule.\n", sessionID)
				case err != nil:
					return err
				default:
					for _, batch := range schedule.Batches {
						fmt.Fprintf(out, "Session %s batch %s: %s (run %s, %d deltas)\n",
							sessionID, batch.BatchID, batch.Status, batch.RunAt.Format(time.RFC3339), batch.DeltaCount)
					}
				}

				jobs, err := store.ListRetryJobs(ctx, sessionID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Retry jobs: %d\n", len(jobs))
				for _, job := range jobs {
					fmt.Fprintf(out, "  %s %s/%s attempt %d at %s (%s)\n",
						job.JobID, job.Index, job.DocumentID, job.Attempt, job.RetryAt.Format(time.RFC3339), job.Reason)
				}
			}

			events, err := store.ListTelemetryEvents(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Telemetry events: %d\n", len(events))
			for _, event := range events {
				fmt.Fprintf(out, "  %s %s session=%s batch=%s\n",
					event.Timestamp.Format(time.RFC3339), event.Kind, event.SessionID, event.BatchID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to CHRONICLER_DB_PATH)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to show schedule and retry jobs for")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum telemetry events to show")
	return cmd
}
