package services

import (
	"context"
	"fmt"

	"github.com/mcpgateway/mcpgateway/pkg/authz"
	"github.com/mcpgateway/mcpgateway/pkg/deploy"
	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
	"github.com/mcpgateway/mcpgateway/pkg/records"
	"github.com/mcpgateway/mcpgateway/pkg/store"
)

// ToolService manages tool records. It shares the adapter service's shape
// and additionally threads the tool definition through to the deployment
// manager as a tool-typed workload.
type ToolService struct {
	store    store.Store[records.ToolRecord]
	deployer deploy.Manager
}

// NewToolService creates a tool service over the given store and deployment
// manager.
func NewToolService(s store.Store[records.ToolRecord], d deploy.Manager) *ToolService {
	return &ToolService{store: s, deployer: d}
}

// workload projects the tool record down to its adapter view for the
// deployment manager, carrying the tool's service port along.
func toolWorkload(record *records.ToolRecord) deploy.Workload {
	adapter := record.AdapterRecord
	return deploy.Workload{
		Record:      &adapter,
		Type:        records.ResourceTypeTool,
		ServicePort: int32(record.ToolDefinition.EffectivePort()),
	}
}

// Create validates and deploys a new tool, then persists its record.
func (s *ToolService) Create(
	ctx context.Context,
	principal *authz.Principal,
	data *records.ToolRecord,
) (*records.ToolRecord, error) {
	if err := validateNew(&data.AdapterRecord); err != nil {
		return nil, err
	}
	if err := validateToolDefinition(data); err != nil {
		return nil, err
	}

	existing, err := s.store.TryGet(ctx, data.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, gwerrors.NewConflictError(
			fmt.Sprintf("tool %q already exists", data.Name), nil)
	}

	record := *data
	record.AdapterRecord = *stampNew(&data.AdapterRecord, principal)

	if err := s.deployer.Create(ctx, toolWorkload(&record)); err != nil {
		return nil, err
	}

	if err := s.store.Upsert(ctx, record.Name, &record); err != nil {
		return nil, err
	}
	logger.Infow("Created tool", "name", record.Name, "createdBy", record.CreatedBy)
	return &record, nil
}

// Get returns the record when the principal may read it.
func (s *ToolService) Get(
	ctx context.Context,
	principal *authz.Principal,
	name string,
) (*records.ToolRecord, error) {
	record, err := s.fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	if !authz.Allowed(principal, record, authz.OperationRead) {
		return nil, readForbidden(name)
	}
	return record, nil
}

// Update applies changes to an existing tool record.
func (s *ToolService) Update(
	ctx context.Context,
	principal *authz.Principal,
	name string,
	data *records.ToolRecord,
) (*records.ToolRecord, error) {
	existing, err := s.fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	if !authz.Allowed(principal, existing, authz.OperationWrite) {
		return nil, writeForbidden(name)
	}
	if err := validateUpdate(&existing.AdapterRecord, name, &data.AdapterRecord); err != nil {
		return nil, err
	}
	if err := validateToolDefinition(data); err != nil {
		return nil, err
	}

	updated := *data
	updated.AdapterRecord = *mergeUpdate(&existing.AdapterRecord, &data.AdapterRecord)

	if records.DeploymentDirty(&existing.AdapterRecord, &updated.AdapterRecord) {
		if err := s.deployer.Update(ctx, toolWorkload(&updated)); err != nil {
			return nil, err
		}
	}

	if err := s.store.Upsert(ctx, updated.Name, &updated); err != nil {
		return nil, err
	}
	logger.Infow("Updated tool", "name", updated.Name)
	return &updated, nil
}

// Delete removes the record and then, best-effort, its workload.
func (s *ToolService) Delete(ctx context.Context, principal *authz.Principal, name string) error {
	existing, err := s.fetch(ctx, name)
	if err != nil {
		return err
	}
	if !authz.Allowed(principal, existing, authz.OperationWrite) {
		return writeForbidden(name)
	}

	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	if err := s.deployer.Delete(ctx, name); err != nil {
		logger.Errorf("Failed to remove workload for deleted tool %s: %v", name, err)
	}
	logger.Infow("Deleted tool", "name", name)
	return nil
}

// List returns the records the principal may read.
func (s *ToolService) List(ctx context.Context, principal *authz.Principal) ([]*records.ToolRecord, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	visible, filtered := authz.Filter(principal, all, authz.OperationRead)
	if filtered > 0 {
		logger.Debugf("Filtered %d tools from list for user %s", filtered, principal.UserID)
	}
	return visible, nil
}

// Status derives the workload status for a readable record.
func (s *ToolService) Status(
	ctx context.Context,
	principal *authz.Principal,
	name string,
) (*deploy.WorkloadStatus, error) {
	if _, err := s.Get(ctx, principal, name); err != nil {
		return nil, err
	}
	return s.deployer.Status(ctx, name)
}

// Logs returns a bounded log tail for one replica of a readable record.
func (s *ToolService) Logs(
	ctx context.Context,
	principal *authz.Principal,
	name string,
	ordinal int,
) (string, error) {
	if _, err := s.Get(ctx, principal, name); err != nil {
		return "", err
	}
	return s.deployer.Logs(ctx, name, ordinal)
}

func (s *ToolService) fetch(ctx context.Context, name string) (*records.ToolRecord, error) {
	record, err := s.store.TryGet(ctx, name)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, gwerrors.NewNotFoundError(fmt.Sprintf("tool %q not found", name), nil)
	}
	return record, nil
}

// validateToolDefinition enforces the invariant that the embedded tool's
// name matches the record name.
func validateToolDefinition(data *records.ToolRecord) error {
	if data.ToolDefinition.Tool.Name != data.Name {
		return gwerrors.NewValidationError(
			fmt.Sprintf("toolDefinition.tool.name %q must equal record name %q",
				data.ToolDefinition.Tool.Name, data.Name), nil)
	}
	return nil
}
