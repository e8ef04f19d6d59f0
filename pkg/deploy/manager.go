// Package deploy reconciles adapter and tool records onto orchestrator
// workloads: a stateful replica set plus a companion service per record.
//
// The manager holds no state of its own. The orchestrator is the source of
// truth for runtime status; records are the source of truth for desired
// state.
package deploy

import (
	"context"

	"github.com/mcpgateway/mcpgateway/pkg/records"
)

// WorkloadStatus is the runtime view of a record's workload, derived from
// the stateful replica set on every call.
type WorkloadStatus struct {
	ReadyReplicas     int32  `json:"readyReplicas"`
	UpdatedReplicas   int32  `json:"updatedReplicas"`
	AvailableReplicas int32  `json:"availableReplicas"`
	Image             string `json:"image"`
	ReplicaStatus     string `json:"replicaStatus"`
}

// Workload describes what the manager should reconcile for one record.
type Workload struct {
	// Record is the record as persisted (or about to be persisted). It is
	// the single source of truth for both create and update.
	Record *records.AdapterRecord

	// Type selects the adapter/type label and the companion service shape:
	// headless for mcp (per-pod DNS, ordinal-addressed sessions), clustered
	// virtual-IP for tool (name-based routing).
	Type records.ResourceType

	// ServicePort is the port the companion service exposes. Zero means
	// the container port.
	ServicePort int32
}

// Manager drives orchestrator state for records.
type Manager interface {
	// Create builds the replica set and companion service. An existing
	// object is treated as an upsert: the conflict is logged and creation
	// proceeds.
	Create(ctx context.Context, workload Workload) error

	// Update patches only the deployment-relevant fields of the replica
	// set. Identity labels are never changed and objects are never
	// recreated.
	Update(ctx context.Context, workload Workload) error

	// Delete removes the replica set and service. Absent objects are
	// success.
	Delete(ctx context.Context, name string) error

	// Status derives the workload status from the replica set.
	Status(ctx context.Context, name string) (*WorkloadStatus, error)

	// Logs returns a bounded tail of the logs of pod <name>-<ordinal>.
	Logs(ctx context.Context, name string, ordinal int) (string, error)
}
