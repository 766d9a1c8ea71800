package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/contraharness/internal/config"
)

// DeploymentStore handles deployment records
type DeploymentStore interface {
	RecordDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error)
}

// InvocationStore handles calls and transactions against deployments
type InvocationStore interface {
	RecordInvocation(ctx context.Context, inv *Invocation) error
	ListInvocations(ctx context.Context, chainID int64, address string, pagination PaginationParams) (*PaginatedResult[Invocation], error)
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	DeploymentStore
	InvocationStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Deployment is a confirmed contract deployment
type Deployment struct {
	ID              string
	ContractName    string
	ChainID         int64
	Address         string
	DeployerAddress string
	TxHash          string
	BlockNumber     int64
	Args            []string
	ReleaseLabel    string
	CodeMatch       string
	CreatedAt       string
}

// Invocation is a read-only call or a transaction against a deployed address.
// DeploymentID is empty when the address was never recorded as a deployment.
type Invocation struct {
	ID           string
	DeploymentID string
	ChainID      int64
	Address      string
	Method       string
	Kind         string // "call" or "send"
	TxHash       string
	Status       string // "ok", "reverted" or "failed"
	RevertReason string
	BlockNumber  int64
	CreatedAt    string
}

// DeploymentFilter contains filter options for listing deployments
type DeploymentFilter struct {
	ContractName string
	ChainID      int64
	ReleaseLabel string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
