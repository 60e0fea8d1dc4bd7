package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"zapp/internal/locator"
	"zapp/pkg/logging"
)

// locatorsCmd represents the locators command
var locatorsCmd = &cobra.Command{
	Use:   "locators [name-prefix]",
	Short: "List the locator registry",
	Long: `List every locator loaded from the locators directory with its
selector, the selector kind and the file it came from.

Names are matched case-insensitively against the optional prefix.

Examples:
  zapp locators
  zapp locators Кнопка -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLocators,
}

func init() {
	rootCmd.AddCommand(locatorsCmd)
}

func runLocators(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	formatter, err := newFormatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	registry, _, err := loadLocators(settings)
	if err != nil {
		return err
	}

	prefix := ""
	if len(args) == 1 {
		prefix = strings.ToLower(args[0])
	}
	entries := filterLocators(registry, prefix)
	logging.Debug("Locators", "%d of %d locators match %q", len(entries), registry.Len(), prefix)

	fmt.Fprint(cmd.OutOrStdout(), formatter.FormatLocators(entries))
	return nil
}

func filterLocators(registry *locator.Registry, prefix string) []locator.Entry {
	var entries []locator.Entry
	for _, name := range registry.Names() {
		if !strings.HasPrefix(strings.ToLower(name), prefix) {
			continue
		}
		if e, ok := registry.Entry(name); ok {
			entries = append(entries, e)
		}
	}
	return entries
}
