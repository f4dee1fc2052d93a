package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meshsim",
	Short: "IEEE 802.15.4 CSMA/CA mesh simulator",
	Long: `meshsim runs a population of IEEE 802.15.4 MAC engines on a shared
radio medium and reports delivery, retries, drops and link quality.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("scenario", "s", "", "YAML or JSON scenario description (defaults apply when empty)")
}
