// Package domain contains the business logic for the deployment journal.
package domain

import (
	"time"
)

// Deployment represents a recorded deployment.
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
	CreatedAt       time.Time
}

// Invocation represents a recorded call or transaction against a deployment.
type Invocation struct {
	ID           string
	DeploymentID string
	ChainID      int64
	Address      string
	Method       string
	Kind         string
	TxHash       string
	Status       string
	RevertReason string
	BlockNumber  int64
	CreatedAt    time.Time
}

// RecordRequest is the request to record a new deployment.
type RecordRequest struct {
	Contract        string   `json:"contract"`
	ChainID         int64    `json:"chainId"`
	Address         string   `json:"address"`
	TxHash          string   `json:"txHash,omitempty"`
	DeployerAddress string   `json:"deployerAddress,omitempty"`
	BlockNumber     int64    `json:"blockNumber,omitempty"`
	Args            []string `json:"args,omitempty"`
	ReleaseLabel    string   `json:"releaseLabel,omitempty"`
	CodeMatch       string   `json:"codeMatch,omitempty"`
}

// InvocationRequest is the request to record an invocation.
type InvocationRequest struct {
	ChainID      int64
	Address      string
	Method       string
	Kind         string
	TxHash       string
	Status       string
	RevertReason string
	BlockNumber  int64
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	Contract     string
	ChainID      int64
	ReleaseLabel string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Deployments []Deployment
	HasMore     bool
	NextCursor  string
}

// InvocationResult contains a page of invocations.
type InvocationResult struct {
	Invocations []Invocation
	HasMore     bool
	NextCursor  string
}
