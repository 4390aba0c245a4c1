package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/abcforge/abcsim/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or scaffold the run configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Args:  cobra.NoArgs,
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal configuration: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Args:  cobra.MaximumNArgs(1),
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "abcsim.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return fmt.Errorf("failed to write configuration: %w", err)
		}
		fmt.Printf("wrote default configuration to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
