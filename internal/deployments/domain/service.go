package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pendergraft/contraharness/internal/storage"
	"github.com/pendergraft/contraharness/internal/validation"
)

// Common errors returned by the deployment service.
var (
	ErrNotFound            = errors.New("deployment not found")
	ErrAlreadyRecorded     = errors.New("deployment already recorded")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidChainID      = errors.New("invalid chain ID")
	ErrInvalidContract     = errors.New("invalid contract name")
	ErrInvalidTxHash       = errors.New("invalid transaction hash")
	ErrInvalidReleaseLabel = errors.New("invalid release label")
	ErrInvalidInvocation   = errors.New("invalid invocation")
	ErrInvalidCursor       = errors.New("invalid cursor")
)

// Invocation kinds and statuses accepted by RecordInvocation
var (
	validKinds    = map[string]bool{"call": true, "send": true}
	validStatuses = map[string]bool{"ok": true, "reverted": true, "failed": true}
)

// Service defines the deployment service interface.
type Service interface {
	// Record records a new deployment.
	Record(ctx context.Context, req RecordRequest) (*Deployment, error)

	// Get retrieves a deployment by chain and address.
	Get(ctx context.Context, chainID int64, address string) (*Deployment, error)

	// List lists deployments with filtering and pagination.
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)

	// Latest returns the deployment of a contract with the highest release label.
	Latest(ctx context.Context, contract string, chainID int64) (*Deployment, error)

	// RecordInvocation records a call or transaction against an address.
	RecordInvocation(ctx context.Context, req InvocationRequest) (*Invocation, error)

	// Invocations lists invocations against an address, oldest first.
	Invocations(ctx context.Context, chainID int64, address string, pagination PaginationParams) (*InvocationResult, error)
}

// Store is the subset of storage the service needs
type Store interface {
	storage.DeploymentStore
	storage.InvocationStore
}

// service implements the Service interface.
type service struct {
	store Store
}

// NewService creates a new deployment service.
func NewService(store Store) Service {
	return &service{store: store}
}

// Record records a new deployment.
func (s *service) Record(ctx context.Context, req RecordRequest) (*Deployment, error) {
	if err := validation.ValidateContractName(req.Contract); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContract, err)
	}

	// Validate address
	if err := validation.ValidateAddress(req.Address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	// Validate chain ID
	if err := validation.ValidateChainID(req.ChainID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}

	if req.TxHash != "" {
		if err := validation.ValidateTxHash(req.TxHash); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTxHash, err)
		}
	}
	if req.DeployerAddress != "" {
		if err := validation.ValidateAddress(req.DeployerAddress); err != nil {
			return nil, fmt.Errorf("%w: deployer: %v", ErrInvalidAddress, err)
		}
	}

	label := req.ReleaseLabel
	if label != "" {
		if err := validation.ValidateReleaseLabel(label); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidReleaseLabel, err)
		}
		label = validation.NormalizeReleaseLabel(label)
	}

	deployment := &storage.Deployment{
		ContractName:    req.Contract,
		ChainID:         req.ChainID,
		Address:         req.Address,
		DeployerAddress: req.DeployerAddress,
		TxHash:          req.TxHash,
		BlockNumber:     req.BlockNumber,
		Args:            req.Args,
		ReleaseLabel:    label,
		CodeMatch:       req.CodeMatch,
	}

	if err := s.store.RecordDeployment(ctx, deployment); err != nil {
		if errors.Is(err, storage.ErrAlreadyRecorded) {
			return nil, fmt.Errorf("%w: %s on chain %d", ErrAlreadyRecorded, req.Address, req.ChainID)
		}
		return nil, fmt.Errorf("recording deployment: %w", err)
	}

	// Re-read to pick up defaults assigned by the database
	stored, err := s.store.GetDeployment(ctx, req.ChainID, req.Address)
	if err != nil {
		return toDeployment(deployment), nil
	}
	return toDeployment(stored), nil
}

// Get retrieves a deployment by chain and address.
func (s *service) Get(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	deployment, err := s.store.GetDeployment(ctx, chainID, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}

	return toDeployment(deployment), nil
}

// List lists deployments with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	result, err := s.store.ListDeployments(ctx, storage.DeploymentFilter{
		ContractName: filter.Contract,
		ChainID:      filter.ChainID,
		ReleaseLabel: filter.ReleaseLabel,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			return nil, ErrInvalidCursor
		}
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	deployments := make([]Deployment, len(result.Data))
	for i, d := range result.Data {
		deployments[i] = *toDeployment(&d)
	}

	return &ListResult{
		Deployments: deployments,
		HasMore:     result.HasMore,
		NextCursor:  result.NextCursor,
	}, nil
}

// Latest returns the deployment of a contract with the highest release
// label, preferring stable releases. Unlabelled deployments are ignored.
func (s *service) Latest(ctx context.Context, contract string, chainID int64) (*Deployment, error) {
	byLabel := make(map[string]storage.Deployment)
	var labels []string

	pagination := storage.PaginationParams{Limit: 100}
	for {
		result, err := s.store.ListDeployments(ctx, storage.DeploymentFilter{ContractName: contract, ChainID: chainID}, pagination)
		if err != nil {
			return nil, fmt.Errorf("listing deployments: %w", err)
		}
		for _, d := range result.Data {
			if d.ReleaseLabel == "" {
				continue
			}
			if _, seen := byLabel[d.ReleaseLabel]; !seen {
				byLabel[d.ReleaseLabel] = d
				labels = append(labels, d.ReleaseLabel)
			}
		}
		if !result.HasMore {
			break
		}
		pagination.Cursor = result.NextCursor
	}

	latest := validation.LatestReleaseLabel(labels)
	if latest == "" {
		return nil, ErrNotFound
	}
	d := byLabel[latest]
	return toDeployment(&d), nil
}

// RecordInvocation records a call or transaction against an address.
func (s *service) RecordInvocation(ctx context.Context, req InvocationRequest) (*Invocation, error) {
	if err := validation.ValidateAddress(req.Address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if err := validation.ValidateMethodName(req.Method); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvocation, err)
	}
	if !validKinds[req.Kind] {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInvocation, req.Kind)
	}
	if !validStatuses[req.Status] {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInvocation, req.Status)
	}

	inv := &storage.Invocation{
		ChainID:      req.ChainID,
		Address:      req.Address,
		Method:       req.Method,
		Kind:         req.Kind,
		TxHash:       req.TxHash,
		Status:       req.Status,
		RevertReason: req.RevertReason,
		BlockNumber:  req.BlockNumber,
	}
	if err := s.store.RecordInvocation(ctx, inv); err != nil {
		return nil, fmt.Errorf("recording invocation: %w", err)
	}
	return toInvocation(inv), nil
}

// Invocations lists invocations against an address, oldest first.
func (s *service) Invocations(ctx context.Context, chainID int64, address string, pagination PaginationParams) (*InvocationResult, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	result, err := s.store.ListInvocations(ctx, chainID, address, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			return nil, ErrInvalidCursor
		}
		return nil, fmt.Errorf("listing invocations: %w", err)
	}

	invocations := make([]Invocation, len(result.Data))
	for i, inv := range result.Data {
		invocations[i] = *toInvocation(&inv)
	}
	return &InvocationResult{
		Invocations: invocations,
		HasMore:     result.HasMore,
		NextCursor:  result.NextCursor,
	}, nil
}

// parseTime parses the timestamp formats written by the storage backends
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	// Fractional seconds are accepted even though the layout omits them
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

func toDeployment(d *storage.Deployment) *Deployment {
	return &Deployment{
		ID:              d.ID,
		ContractName:    d.ContractName,
		ChainID:         d.ChainID,
		Address:         d.Address,
		DeployerAddress: d.DeployerAddress,
		TxHash:          d.TxHash,
		BlockNumber:     d.BlockNumber,
		Args:            d.Args,
		ReleaseLabel:    d.ReleaseLabel,
		CodeMatch:       d.CodeMatch,
		CreatedAt:       parseTime(d.CreatedAt),
	}
}

func toInvocation(inv *storage.Invocation) *Invocation {
	return &Invocation{
		ID:           inv.ID,
		DeploymentID: inv.DeploymentID,
		ChainID:      inv.ChainID,
		Address:      inv.Address,
		Method:       inv.Method,
		Kind:         inv.Kind,
		TxHash:       inv.TxHash,
		Status:       inv.Status,
		RevertReason: inv.RevertReason,
		BlockNumber:  inv.BlockNumber,
		CreatedAt:    parseTime(inv.CreatedAt),
	}
}
