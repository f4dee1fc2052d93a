package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mesh-mac-simulation/internal/sim"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Print the effective scenario as YAML",
	Long:  `Prints the default scenario, or the one given with --scenario after defaults and validation, as a starting point for new runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := loadScenario(cmd)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(sc)
	},
}

func init() {
	rootCmd.AddCommand(scenarioCmd)
}

func loadScenario(cmd *cobra.Command) (*sim.Scenario, error) {
	path, _ := cmd.Flags().GetString("scenario")
	if path == "" {
		sc := sim.DefaultScenario()
		return &sc, nil
	}
	return sim.LoadScenario(path)
}
