// Package config loads the gateway configuration.
//
// Configuration is resolved once at startup from an optional YAML file plus
// environment variables (prefix MCPGW_, dots replaced by underscores) and
// command-line flags bound through viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Store kinds recognized for the resource and session stores.
const (
	StoreKindInMemory         = "in-memory"
	StoreKindDistributedCache = "distributed-cache"
	StoreKindDocumentDB       = "document-db"
)

// Config holds the gateway configuration, resolved once at startup.
type Config struct {
	// PublicOrigin is the externally visible base URL, used in
	// authentication challenge metadata.
	PublicOrigin string `mapstructure:"publicOrigin"`

	// IdentityProvider holds the token-verifier parameters. These are
	// consumed by the external token validator, not by the gateway itself.
	IdentityProvider IdentityProviderConfig `mapstructure:"identityProvider"`

	// ResourceStore selects and configures the durable record store.
	ResourceStore StoreConfig `mapstructure:"resourceStore"`

	// SessionStore selects and configures the session-affinity store.
	SessionStore StoreConfig `mapstructure:"sessionStore"`

	// Orchestrator configures the Kubernetes side of the gateway.
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`

	// ContainerRegistry configures where adapter images are pulled from.
	ContainerRegistry ContainerRegistryConfig `mapstructure:"containerRegistry"`

	// ToolGatewayWorkloadName is the workload that serves the bare /mcp
	// entry point.
	ToolGatewayWorkloadName string `mapstructure:"toolGatewayWorkloadName"`

	// Development enables a mock principal sourced from X-Dev-* headers.
	Development DevelopmentConfig `mapstructure:"development"`
}

// IdentityProviderConfig holds token-verifier parameters.
type IdentityProviderConfig struct {
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
	TenantID string `mapstructure:"tenantId"`
	ClientID string `mapstructure:"clientId"`

	// JwksURL overrides the issuer-derived JWKS endpoint.
	JwksURL string `mapstructure:"jwksUrl"`
}

// StoreConfig selects a store backend and its connection parameters.
type StoreConfig struct {
	// Kind is one of in-memory, distributed-cache, or document-db.
	Kind string `mapstructure:"kind"`

	// Address is the backend address (redis host:port, mongo URI).
	Address string `mapstructure:"address"`

	// Username and Password authenticate against the backend.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// Database is the mongo database name or redis DB index.
	Database string `mapstructure:"database"`
}

// OrchestratorConfig holds Kubernetes settings.
type OrchestratorConfig struct {
	// Namespace is where adapter workloads are created.
	Namespace string `mapstructure:"namespace"`
}

// ContainerRegistryConfig holds the image registry settings.
type ContainerRegistryConfig struct {
	// Endpoint is prefixed onto every record's imageName.
	Endpoint string `mapstructure:"endpoint"`
}

// DevelopmentConfig gates local development behavior.
type DevelopmentConfig struct {
	// Mode enables the mock principal middleware.
	Mode bool `mapstructure:"mode"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("resourceStore.kind", StoreKindInMemory)
	v.SetDefault("sessionStore.kind", StoreKindInMemory)
	v.SetDefault("orchestrator.namespace", "adapter")
	v.SetDefault("toolGatewayWorkloadName", "toolgateway")
	v.SetDefault("development.mode", false)
}

// Load reads the configuration from the given file (optional) and the
// environment, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.GetViper()
	setDefaults(v)

	v.SetEnvPrefix("MCPGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the enumerated options carry recognized values.
func (c *Config) Validate() error {
	if err := validateStoreKind("resourceStore", c.ResourceStore.Kind); err != nil {
		return err
	}
	if err := validateStoreKind("sessionStore", c.SessionStore.Kind); err != nil {
		return err
	}
	if c.Orchestrator.Namespace == "" {
		return fmt.Errorf("orchestrator.namespace must not be empty")
	}
	if c.ToolGatewayWorkloadName == "" {
		return fmt.Errorf("toolGatewayWorkloadName must not be empty")
	}
	return nil
}

func validateStoreKind(field, kind string) error {
	switch kind {
	case StoreKindInMemory, StoreKindDistributedCache, StoreKindDocumentDB:
		return nil
	default:
		return fmt.Errorf("%s.kind: unrecognized store kind %q", field, kind)
	}
}
