package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dray-io/brokerstats/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "brokerstatsd",
		Short: "Broker runtime statistics and consumer lag service",
		Long: `brokerstatsd keeps named runtime statistics, reports their increments
periodically, exposes them to Prometheus, and answers consumer lag queries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to configuration file (env: "+config.PathEnv+")")

	root.AddCommand(newRunCmd(), newQueryCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "brokerstatsd version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
		},
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}
