// Package app provides the command-line interface of the MCP adapter
// gateway.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcpgateway/mcpgateway/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "mcpgateway",
	DisableAutoGenTag: true,
	Short:             "Gateway for MCP adapters and tools running in Kubernetes",
	Long: `mcpgateway fronts MCP (Model Context Protocol) servers running as
Kubernetes workloads. It manages their lifecycle through a REST control
plane, proxies streamable HTTP traffic to them with session affinity, and
exposes registered tools through a single aggregated MCP endpoint.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the gateway CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Panicf("Failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(toolGatewayCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// Version is set at build time via ldflags.
var Version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
