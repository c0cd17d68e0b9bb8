package main

import (
	"context"
	"fmt"
	"os"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/config"
	"github.com/spf13/cobra"
)

// --- COMMANDS ---
var (
	configPath string
	addr       string
	dataDir    string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "coyoacan-server",
		Short: "Serves the Coyoacán dashboard map layers and statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the server configuration",
	}

	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := config.Write(args[0], config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}

	configCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration given by --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config ok")
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "CSV directory, overrides source.data_dir")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "overrides log.level")

	configCmd.AddCommand(configInitCmd, configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads --config and applies the flags that were set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if flags.Changed("data-dir") {
		cfg.Source.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	return cfg, cfg.Validate()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
