package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"zapp/internal/steps"
)

var stepsSection string

// stepsCmd represents the steps command
var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Print the step catalogue",
	Long: `Print every built-in step pattern grouped by section, with the
platforms a step is unavailable on and the replacement of deprecated steps.

Examples:
  zapp steps
  zapp steps --section "Работа с API" -o yaml`,
	Args: cobra.NoArgs,
	RunE: runSteps,
}

func init() {
	rootCmd.AddCommand(stepsCmd)

	stepsCmd.Flags().StringVarP(&stepsSection, "section", "s", "", "Only print one section")
}

func runSteps(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), formatter.FormatSteps(catalogue(stepsSection)))
	return nil
}

// catalogue lists the library definitions, optionally of one section.
// Handlers are never called, so the session is left empty.
func catalogue(section string) []steps.Definition {
	defs := steps.Library(&steps.Session{})
	if section == "" {
		return defs
	}
	var out []steps.Definition
	for _, d := range defs {
		if strings.EqualFold(string(d.Section), section) {
			out = append(out, d)
		}
	}
	return out
}
