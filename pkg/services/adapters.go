// Package services implements the control-plane operations over adapter and
// tool records: CRUD with validation, authorization, and deployment
// orchestration.
//
// Ordering is deliberate and load-bearing. Create deploys before it
// persists, so a persisted record always corresponds to an attempted
// deployment. Delete removes the record before the workload, so a partially
// deleted state presents to users as already gone.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcpgateway/mcpgateway/pkg/authz"
	"github.com/mcpgateway/mcpgateway/pkg/deploy"
	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
	"github.com/mcpgateway/mcpgateway/pkg/records"
	"github.com/mcpgateway/mcpgateway/pkg/store"
)

// AdapterService manages adapter records and their workloads.
type AdapterService struct {
	store    store.Store[records.AdapterRecord]
	deployer deploy.Manager
}

// NewAdapterService creates an adapter service over the given store and
// deployment manager.
func NewAdapterService(s store.Store[records.AdapterRecord], d deploy.Manager) *AdapterService {
	return &AdapterService{store: s, deployer: d}
}

// Create validates and deploys a new adapter, then persists its record.
// The deployment happens first: a failed deployment leaves no record.
func (s *AdapterService) Create(
	ctx context.Context,
	principal *authz.Principal,
	data *records.AdapterRecord,
) (*records.AdapterRecord, error) {
	if err := validateNew(data); err != nil {
		return nil, err
	}

	existing, err := s.store.TryGet(ctx, data.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, gwerrors.NewConflictError(
			fmt.Sprintf("adapter %q already exists", data.Name), nil)
	}

	record := stampNew(data, principal)

	if err := s.deployer.Create(ctx, deploy.Workload{
		Record: record,
		Type:   records.ResourceTypeMCP,
	}); err != nil {
		return nil, err
	}

	if err := s.store.Upsert(ctx, record.Name, record); err != nil {
		return nil, err
	}
	logger.Infow("Created adapter", "name", record.Name, "createdBy", record.CreatedBy)
	return record, nil
}

// Get returns the record when the principal may read it.
func (s *AdapterService) Get(
	ctx context.Context,
	principal *authz.Principal,
	name string,
) (*records.AdapterRecord, error) {
	record, err := s.fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	if !authz.Allowed(principal, record, authz.OperationRead) {
		return nil, readForbidden(name)
	}
	return record, nil
}

// Update applies changes to an existing record. Immutable fields must not
// change; the orchestrator is only touched when a deployment-relevant field
// differs.
func (s *AdapterService) Update(
	ctx context.Context,
	principal *authz.Principal,
	name string,
	data *records.AdapterRecord,
) (*records.AdapterRecord, error) {
	existing, err := s.fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	if !authz.Allowed(principal, existing, authz.OperationWrite) {
		return nil, writeForbidden(name)
	}
	if err := validateUpdate(existing, name, data); err != nil {
		return nil, err
	}

	updated := mergeUpdate(existing, data)

	if records.DeploymentDirty(existing, updated) {
		if err := s.deployer.Update(ctx, deploy.Workload{
			Record: updated,
			Type:   records.ResourceTypeMCP,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.store.Upsert(ctx, updated.Name, updated); err != nil {
		return nil, err
	}
	logger.Infow("Updated adapter", "name", updated.Name)
	return updated, nil
}

// Delete removes the record and then, best-effort, its workload.
func (s *AdapterService) Delete(ctx context.Context, principal *authz.Principal, name string) error {
	existing, err := s.fetch(ctx, name)
	if err != nil {
		return err
	}
	if !authz.Allowed(principal, existing, authz.OperationWrite) {
		return writeForbidden(name)
	}

	// Store first: once the record is gone the resource reads as deleted,
	// and workload removal is background cleanup.
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	if err := s.deployer.Delete(ctx, name); err != nil {
		logger.Errorf("Failed to remove workload for deleted adapter %s: %v", name, err)
	}
	logger.Infow("Deleted adapter", "name", name)
	return nil
}

// List returns the records the principal may read, preserving store order.
func (s *AdapterService) List(ctx context.Context, principal *authz.Principal) ([]*records.AdapterRecord, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	visible, filtered := authz.Filter(principal, all, authz.OperationRead)
	if filtered > 0 {
		logger.Debugf("Filtered %d adapters from list for user %s", filtered, principal.UserID)
	}
	return visible, nil
}

// CheckRead resolves adapter-level read permission for the data plane.
// Fails with NotFound when the adapter does not exist and Forbidden when
// the principal may not read it.
func (s *AdapterService) CheckRead(ctx context.Context, principal *authz.Principal, name string) error {
	_, err := s.Get(ctx, principal, name)
	return err
}

// Status derives the workload status for a readable record.
func (s *AdapterService) Status(
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
func (s *AdapterService) Logs(
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

func (s *AdapterService) fetch(ctx context.Context, name string) (*records.AdapterRecord, error) {
	record, err := s.store.TryGet(ctx, name)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, gwerrors.NewNotFoundError(fmt.Sprintf("adapter %q not found", name), nil)
	}
	return record, nil
}

// validateNew checks a record supplied for create.
func validateNew(data *records.AdapterRecord) error {
	if !records.ValidName(data.Name) {
		return gwerrors.NewValidationError(
			fmt.Sprintf("invalid name %q: must match ^[a-z0-9-]+$", data.Name), nil)
	}
	if data.ImageName == "" || data.ImageVersion == "" {
		return gwerrors.NewValidationError("imageName and imageVersion are required", nil)
	}
	if data.ReplicaCount < 1 {
		return gwerrors.NewValidationError("replicaCount must be a positive integer", nil)
	}
	return nil
}

// validateUpdate checks a record supplied for update against the existing
// one. The only mutable identity check is the name, which must match both
// the URL and the stored record.
func validateUpdate(existing *records.AdapterRecord, urlName string, data *records.AdapterRecord) error {
	if data.Name != urlName || data.Name != existing.Name {
		return gwerrors.NewValidationError("name is immutable and must match the URL", nil)
	}
	if data.ImageName == "" || data.ImageVersion == "" {
		return gwerrors.NewValidationError("imageName and imageVersion are required", nil)
	}
	if data.ReplicaCount < 1 {
		return gwerrors.NewValidationError("replicaCount must be a positive integer", nil)
	}
	return nil
}

// stampNew captures server-side fields on a new record.
func stampNew(data *records.AdapterRecord, principal *authz.Principal) *records.AdapterRecord {
	now := time.Now().UTC()
	record := *data
	record.ID = uuid.NewString()
	record.RequiredRoles = records.NormalizeRoles(data.RequiredRoles)
	record.CreatedBy = principal.UserID
	record.CreatedAt = now
	record.LastUpdatedAt = now
	return &record
}

// mergeUpdate combines an update request with the stored record, keeping
// the immutable fields from the latter.
func mergeUpdate(existing, data *records.AdapterRecord) *records.AdapterRecord {
	updated := *data
	updated.ID = existing.ID
	updated.Name = existing.Name
	updated.CreatedBy = existing.CreatedBy
	updated.CreatedAt = existing.CreatedAt
	updated.RequiredRoles = records.NormalizeRoles(data.RequiredRoles)
	updated.LastUpdatedAt = time.Now().UTC()
	return &updated
}

func readForbidden(name string) error {
	return gwerrors.NewForbiddenError(
		fmt.Sprintf("you do not have permission to read %q", name), nil)
}

func writeForbidden(name string) error {
	return gwerrors.NewForbiddenError(
		fmt.Sprintf("you do not have permission to modify %q", name), nil)
}
