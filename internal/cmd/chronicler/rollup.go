package chronicler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	platformcmd "github.com/louisbranch/chronicler/internal/platform/cmd"
	"github.com/louisbranch/chronicler/internal/qa"
)

func rollupCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Aggregate existing per-session QA reports without re-running the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg Config
			if err := platformcmd.ParseConfig(&cfg); err != nil {
				return err
			}
			if dir != "" {
				cfg.SessionsDir = dir
			}

			reports, err := readReports(cfg.SessionsDir)
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				return fmt.Errorf("no QA reports found in %s", cfg.SessionsDir)
			}

			aggregate := qa.Rollup(reports)
			data, err := json.MarshalIndent(aggregate, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal rollup: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding *-offline-qa.json reports (defaults to CHRONICLER_SESSIONS_DIR)")
	return cmd
}

func readReports(dir string) ([]qa.Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read report dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, "-offline-qa.json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var reports []qa.Report
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read report %s: %w", name, err)
		}
		var report qa.Report
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("parse report %s: %w", name, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}
