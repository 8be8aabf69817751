package chronicler

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/louisbranch/chronicler/internal/canon"
	platformcmd "github.com/louisbranch/chronicler/internal/platform/cmd"
	"github.com/louisbranch/chronicler/internal/publish/coordinator"
	"github.com/louisbranch/chronicler/internal/qa"
	"github.com/louisbranch/chronicler/internal/storage"
	"github.com/louisbranch/chronicler/internal/storage/memory"
	"github.com/louisbranch/chronicler/internal/storage/sqlite"
	"github.com/louisbranch/chronicler/internal/telemetry"
)

func runCmd() *cobra.Command {
	var dir string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the publishing pipeline over a directory of session files",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg Config
			if err := platformcmd.ParseConfig(&cfg); err != nil {
				return err
			}
			if dir != "" {
				cfg.SessionsDir = dir
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			return platformcmd.RunWithTelemetry(cmd.Context(), platformcmd.ServiceChronicler, func(ctx context.Context) error {
				return runPipeline(ctx, cmd, cfg)
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory of session JSON files (defaults to CHRONICLER_SESSIONS_DIR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path for durable pipeline state (defaults to CHRONICLER_DB_PATH; empty runs in memory)")
	return cmd
}

// pipelineStore is the storage surface the driver needs from either backend.
type pipelineStore interface {
	storage.ScheduleStore
	storage.RetryJobStore
	storage.TelemetryStore
}

func runPipeline(ctx context.Context, cmd *cobra.Command, cfg Config) error {
	var store pipelineStore
	if cfg.DBPath != "" {
		sqliteStore, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := sqliteStore.Close(); err != nil {
				log.Printf("close storage: %v", err)
			}
		}()
		store = sqliteStore
	} else {
		store = memory.NewStore()
	}

	lexicon, capabilities, err := loadCatalogs(cfg)
	if err != nil {
		return err
	}

	coord, err := coordinator.New(coordinator.Deps{
		Schedules: store,
		RetryJobs: store,
		Recorder:  telemetry.NewEmitter(store),
	})
	if err != nil {
		return err
	}
	runner, err := qa.NewRunner(qa.Deps{
		Lexicon:      lexicon,
		Capabilities: capabilities,
		Coordinator:  coord,
	}, qa.WithMinConfidence(cfg.MinConfidence))
	if err != nil {
		return err
	}

	reports, aggregate, err := runner.RunDirectory(ctx, cfg.SessionsDir)
	if err != nil {
		return err
	}

	failures := 0
	for _, report := range reports {
		if report.Status == qa.StatusError {
			failures++
			log.Printf("session %s failed (%s): %s", report.SessionID, report.Code, report.Message)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Processed %d sessions (%d moderated, %d failed).\n",
		aggregate.TotalSessions, aggregate.SessionsWithModeration, failures)
	if failures > 0 {
		return fmt.Errorf("%d of %d sessions failed", failures, aggregate.TotalSessions)
	}
	return nil
}

func loadCatalogs(cfg Config) (*canon.Lexicon, *canon.CapabilityRegistry, error) {
	lexicon := canon.DefaultLexicon()
	if cfg.LexiconPath != "" {
		loaded, err := canon.LoadLexicon(cfg.LexiconPath)
		if err != nil {
			return nil, nil, err
		}
		lexicon = loaded
	}
	capabilities := canon.DefaultCapabilityRegistry()
	if cfg.CapabilitiesPath != "" {
		loaded, err := canon.LoadCapabilityRegistry(cfg.CapabilitiesPath)
		if err != nil {
			return nil, nil, err
		}
		capabilities = loaded
	}
	return lexicon, capabilities, nil
}
