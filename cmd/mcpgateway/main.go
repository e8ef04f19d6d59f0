// Package main is the entry point for the MCP adapter gateway.
package main

import (
	"os"

	"github.com/mcpgateway/mcpgateway/cmd/mcpgateway/app"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
