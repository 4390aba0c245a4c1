package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev" // set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "abcsim",
	Short: "Sequential likelihood-free Bayesian inference (ABC) sampler",
	Long: `abcsim runs Approximate Bayesian Computation samplers — Rejection,
PMC-ABC, PMC, SABC, ABCsubsim, RSMC-ABC, APMC-ABC, and SMC-ABC — against a
probabilistic model graph, driven by a YAML configuration file.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./abcsim.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
