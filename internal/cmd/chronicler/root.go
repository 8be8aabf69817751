// Package chronicler implements the offline pipeline driver CLI.
package chronicler

import (
	"github.com/spf13/cobra"
)

// Config holds driver settings loaded from CHRONICLER_* environment
// variables; flags override per invocation.
type Config struct {
	SessionsDir      string  `env:"CHRONICLER_SESSIONS_DIR" envDefault:"."`
	DBPath           string  `env:"CHRONICLER_DB_PATH"`
	LexiconPath      string  `env:"CHRONICLER_LEXICON_PATH"`
	CapabilitiesPath string  `env:"CHRONICLER_CAPABILITIES_PATH"`
	MinConfidence    float64 `env:"CHRONICLER_MIN_CONFIDENCE" envDefault:"0.4"`
}

// NewRootCommand builds the chronicler command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "chronicler",
		Short:         "Offline world-fact publishing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(rollupCmd())
	root.AddCommand(catalogCmd())
	return root
}
