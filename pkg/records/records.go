// Package records defines the adapter and tool records persisted by the
// gateway, along with their validation rules.
package records

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

// ResourceType distinguishes plain MCP adapters from tool backends. It
// selects the adapter/type pod label and the companion service shape.
type ResourceType string

// Resource types.
const (
	ResourceTypeMCP  ResourceType = "mcp"
	ResourceTypeTool ResourceType = "tool"
)

// namePattern is the only accepted shape for record names. Names become
// Kubernetes object names and DNS labels, so the pattern is strict.
var namePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidName reports whether name is a valid, non-empty record name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// AdapterRecord is a user-visible record representing one MCP server
// deployment. Name, CreatedBy and CreatedAt are immutable after create.
type AdapterRecord struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	ImageName            string            `json:"imageName"`
	ImageVersion         string            `json:"imageVersion"`
	EnvironmentVariables map[string]string `json:"environmentVariables"`
	ReplicaCount         int32             `json:"replicaCount"`
	Description          string            `json:"description"`
	UseWorkloadIdentity  bool              `json:"useWorkloadIdentity"`
	RequiredRoles        []string          `json:"requiredRoles"`
	CreatedBy            string            `json:"createdBy"`
	CreatedAt            time.Time         `json:"createdAt"`
	LastUpdatedAt        time.Time         `json:"lastUpdatedAt"`
}

// Owner returns the principal that created the record.
func (r *AdapterRecord) Owner() string {
	return r.CreatedBy
}

// ReadRoles returns the roles that grant non-owner read access.
func (r *AdapterRecord) ReadRoles() []string {
	return r.RequiredRoles
}

// ToolRecord is an adapter-shaped record that additionally carries an MCP
// tool definition. Modeled as composition, not inheritance: the adapter
// fields are embedded and serialize flat.
type ToolRecord struct {
	AdapterRecord

	ToolDefinition ToolDefinition `json:"toolDefinition"`
}

// ToolDefinition describes the MCP tool exposed by a tool record and where
// its scoring endpoint lives.
type ToolDefinition struct {
	Tool ToolSchema `json:"tool"`

	// Port defaults to 443 when unset.
	Port int `json:"port,omitempty"`

	// Path defaults to "/score" when unset.
	Path string `json:"path,omitempty"`
}

// ToolSchema is the MCP-facing tool object. InputSchema is kept as raw JSON
// since the gateway never interprets it.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Defaults for the tool execution endpoint.
const (
	DefaultToolPort = 443
	DefaultToolPath = "/score"
)

// EffectivePort returns the configured port or the default.
func (d *ToolDefinition) EffectivePort() int {
	if d.Port == 0 {
		return DefaultToolPort
	}
	return d.Port
}

// EffectivePath returns the configured path or the default.
func (d *ToolDefinition) EffectivePath() string {
	if d.Path == "" {
		return DefaultToolPath
	}
	return d.Path
}

// NormalizeRoles trims, lowercases, and deduplicates role values,
// preserving the order of first occurrence.
func NormalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

// DeploymentDirty reports whether an update to the record requires touching
// the orchestrator. Only image coordinates, replica count, and environment
// variables are deployment-relevant; everything else is metadata.
func DeploymentDirty(existing, updated *AdapterRecord) bool {
	if existing.ImageName != updated.ImageName ||
		existing.ImageVersion != updated.ImageVersion ||
		existing.ReplicaCount != updated.ReplicaCount {
		return true
	}
	return !envEqual(existing.EnvironmentVariables, updated.EnvironmentVariables)
}

// envEqual compares environment maps as sorted key-value sequences.
func envEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		bv, ok := b[k]
		if !ok || a[k] != bv {
			return false
		}
	}
	return true
}
