package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mcpgateway/mcpgateway/pkg/api"
	"github.com/mcpgateway/mcpgateway/pkg/auth"
	"github.com/mcpgateway/mcpgateway/pkg/config"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
	"github.com/mcpgateway/mcpgateway/pkg/store"
	"github.com/mcpgateway/mcpgateway/pkg/toolgateway"
)

func toolGatewayCmd() *cobra.Command {
	var (
		configPath string
		address    string
		opsAddress string
	)

	cmd := &cobra.Command{
		Use:   "toolgateway",
		Short: "Run the tool-gateway workload: the aggregated MCP tool endpoint",
		Long: `Runs the tool-gateway as a standalone workload. The gateway proxies
bare /mcp traffic here; caller identity arrives in the forwarded identity
headers set by the gateway.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToolGateway(cmd.Context(), configPath, address, opsAddress)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration file")
	cmd.Flags().StringVar(&address, "address", ":8000", "Listen address for the MCP endpoint")
	cmd.Flags().StringVar(&opsAddress, "ops-address", ":9090", "Listen address for health and metrics")

	return cmd
}

func runToolGateway(ctx context.Context, configPath, address, opsAddress string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	stores, err := store.NewStores(ctx, cfg.ResourceStore)
	if err != nil {
		return fmt.Errorf("failed to create resource stores: %w", err)
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			logger.Warnf("Failed to close resource stores: %v", err)
		}
	}()

	gw := toolgateway.NewServer(stores.Tools, cfg.Orchestrator.Namespace, Version)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// The gateway strips these headers at the edge, so inside the cluster
	// they are authoritative.
	r.With(auth.ForwardedPrincipalMiddleware).Handle("/mcp", gw.Handler())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return api.Serve(ctx, address, r)
	})
	group.Go(func() error {
		return api.Serve(ctx, opsAddress, api.NewOperationalRouter())
	})
	return group.Wait()
}
