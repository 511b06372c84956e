package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reasongate-gateway/internal/version"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "reasongate",
		Short: "Gateway combining a reasoning model and an answer model into one response",
		Long: `reasongate calls a reasoning provider, feeds its reasoning trace back as
context to an answer provider and returns one unified response or event
stream with combined token and cost accounting.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(pricingCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
