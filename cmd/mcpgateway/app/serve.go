package app

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/mcpgateway/mcpgateway/pkg/api"
	"github.com/mcpgateway/mcpgateway/pkg/auth"
	"github.com/mcpgateway/mcpgateway/pkg/config"
	"github.com/mcpgateway/mcpgateway/pkg/deploy"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
	"github.com/mcpgateway/mcpgateway/pkg/nodeinfo"
	"github.com/mcpgateway/mcpgateway/pkg/proxy"
	"github.com/mcpgateway/mcpgateway/pkg/services"
	"github.com/mcpgateway/mcpgateway/pkg/sessions"
	"github.com/mcpgateway/mcpgateway/pkg/store"
	"github.com/mcpgateway/mcpgateway/pkg/toolgateway"
)

func serveCmd() *cobra.Command {
	var (
		configPath   string
		address      string
		opsAddress   string
		embedToolsGW bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway: control plane, data-plane proxy, and tool routing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, address, opsAddress, embedToolsGW)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration file")
	cmd.Flags().StringVar(&address, "address", ":8080", "Listen address for the gateway")
	cmd.Flags().StringVar(&opsAddress, "ops-address", ":9090", "Listen address for health and metrics")
	cmd.Flags().BoolVar(&embedToolsGW, "embedded-tool-gateway", false,
		"Serve the tool-gateway MCP endpoint in-process instead of proxying to its workload")

	return cmd
}

func runServe(ctx context.Context, configPath, address, opsAddress string, embedToolsGW bool) error {
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

	sessionStore, err := sessions.NewStore(ctx, cfg.SessionStore)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}
	defer func() {
		if err := sessionStore.Close(); err != nil {
			logger.Warnf("Failed to close session store: %v", err)
		}
	}()

	client, err := kubernetesClient()
	if err != nil {
		return err
	}

	deployer := deploy.NewKubernetesManager(client, cfg.Orchestrator.Namespace, cfg.ContainerRegistry.Endpoint)
	adapters := services.NewAdapterService(stores.Adapters, deployer)
	tools := services.NewToolService(stores.Tools, deployer)

	nodes := nodeinfo.NewKubernetesProvider(client, cfg.Orchestrator.Namespace)
	router := proxy.NewRouter(nodes, sessionStore)
	proxyHandler := proxy.NewHandler(router, adapters, cfg.ToolGatewayWorkloadName)

	authMiddleware, err := authMiddleware(ctx, cfg)
	if err != nil {
		return err
	}

	opts := api.Options{
		Adapters:       adapters,
		Tools:          tools,
		Proxy:          proxyHandler,
		AuthMiddleware: authMiddleware,
	}
	if embedToolsGW {
		gw := toolgateway.NewServer(stores.Tools, cfg.Orchestrator.Namespace, Version)
		opts.ToolGateway = gw.Handler()
		opts.OnToolsChanged = gw.Invalidate
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return api.Serve(ctx, address, api.NewRouter(opts))
	})
	group.Go(func() error {
		return api.Serve(ctx, opsAddress, api.NewOperationalRouter())
	})
	return group.Wait()
}

func authMiddleware(ctx context.Context, cfg *config.Config) (func(http.Handler) http.Handler, error) {
	if cfg.Development.Mode {
		logger.Warnf("Development mode is enabled; requests are authenticated from X-Dev-* headers")
		return auth.DevPrincipalMiddleware, nil
	}

	validator, err := auth.NewJWTValidator(ctx, auth.JWTValidatorConfig{
		Issuer:   cfg.IdentityProvider.Issuer,
		Audience: cfg.IdentityProvider.Audience,
		JWKSURL:  cfg.IdentityProvider.JwksURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token validator: %w", err)
	}
	return auth.Middleware(validator), nil
}

// kubernetesClient prefers the in-cluster service account and falls back to
// the local kubeconfig for development.
func kubernetesClient() (kubernetes.Interface, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			loadingRules, &clientcmd.ConfigOverrides{},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load kubernetes configuration: %w", err)
		}
	}
	return kubernetes.NewForConfig(restConfig)
}
