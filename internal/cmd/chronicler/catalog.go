package chronicler

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louisbranch/chronicler/internal/canon"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect lexicon and capability catalogs",
	}
	cmd.AddCommand(catalogValidateCmd())
	return cmd
}

func catalogValidateCmd() *cobra.Command {
	var lexiconPath string
	var capabilitiesPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate catalog YAML files before a pipeline run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if lexiconPath == "" && capabilitiesPath == "" {
				return fmt.Errorf("at least one of --lexicon or --capabilities is required")
			}

			if lexiconPath != "" {
				lexicon, err := canon.LoadLexicon(lexiconPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "lexicon %s: %d entities (%d regions)\n",
					lexiconPath, lexicon.Len(), len(lexicon.Regions()))
			}
			if capabilitiesPath != "" {
				registry, err := canon.LoadCapabilityRegistry(capabilitiesPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "capabilities %s: %d entries\n",
					capabilitiesPath, len(registry.Entries()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lexiconPath, "lexicon", "", "Lexicon YAML file to validate")
	cmd.Flags().StringVar(&capabilitiesPath, "capabilities", "", "Capability catalog YAML file to validate")
	return cmd
}
