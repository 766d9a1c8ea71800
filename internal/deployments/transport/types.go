// Package transport provides HTTP request/response types for the deployment journal.
package transport

import (
	"time"

	"github.com/pendergraft/contraharness/internal/deployments/domain"
)

// RecordRequest is the HTTP request body for recording a deployment.
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

// ToDomain converts RecordRequest to domain.RecordRequest.
func (r RecordRequest) ToDomain() domain.RecordRequest {
	return domain.RecordRequest{
		Contract:        r.Contract,
		ChainID:         r.ChainID,
		Address:         r.Address,
		TxHash:          r.TxHash,
		DeployerAddress: r.DeployerAddress,
		BlockNumber:     r.BlockNumber,
		Args:            r.Args,
		ReleaseLabel:    r.ReleaseLabel,
		CodeMatch:       r.CodeMatch,
	}
}

// DeploymentListResponse is the response for listing deployments.
type DeploymentListResponse struct {
	Data       []DeploymentItem `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// DeploymentItem is a deployment in a list.
type DeploymentItem struct {
	ChainID      int64  `json:"chainId"`
	Address      string `json:"address"`
	ContractName string `json:"contractName"`
	ReleaseLabel string `json:"releaseLabel,omitempty"`
	TxHash       string `json:"txHash,omitempty"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor"`
}

// DeploymentResponse is the response for getting a deployment.
type DeploymentResponse struct {
	ID              string   `json:"id"`
	ChainID         int64    `json:"chainId"`
	Address         string   `json:"address"`
	ContractName    string   `json:"contractName"`
	DeployerAddress string   `json:"deployerAddress"`
	TxHash          string   `json:"txHash"`
	BlockNumber     int64    `json:"blockNumber"`
	Args            []string `json:"args"`
	ReleaseLabel    string   `json:"releaseLabel,omitempty"`
	CodeMatch       string   `json:"codeMatch,omitempty"`
	CreatedAt       string   `json:"createdAt"`
}

// RecordResponse is the response for recording a deployment.
type RecordResponse struct {
	ID      string `json:"id"`
	ChainID int64  `json:"chainId"`
	Address string `json:"address"`
	Message string `json:"message"`
}

// InvocationRecordRequest is the HTTP request body for recording an invocation.
// Chain and address come from the path.
type InvocationRecordRequest struct {
	Method       string `json:"method"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	TxHash       string `json:"txHash,omitempty"`
	RevertReason string `json:"revertReason,omitempty"`
	BlockNumber  int64  `json:"blockNumber,omitempty"`
}

// ToDomain converts the request to domain.InvocationRequest.
func (r InvocationRecordRequest) ToDomain(chainID int64, address string) domain.InvocationRequest {
	return domain.InvocationRequest{
		ChainID:      chainID,
		Address:      address,
		Method:       r.Method,
		Kind:         r.Kind,
		TxHash:       r.TxHash,
		Status:       r.Status,
		RevertReason: r.RevertReason,
		BlockNumber:  r.BlockNumber,
	}
}

// InvocationItem is an invocation in a list.
type InvocationItem struct {
	Method       string `json:"method"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	TxHash       string `json:"txHash,omitempty"`
	RevertReason string `json:"revertReason,omitempty"`
	BlockNumber  int64  `json:"blockNumber,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

// InvocationListResponse is the response for listing invocations.
type InvocationListResponse struct {
	Data       []InvocationItem `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toDeploymentResponse(d *domain.Deployment) DeploymentResponse {
	args := d.Args
	if args == nil {
		args = []string{}
	}
	return DeploymentResponse{
		ID:              d.ID,
		ChainID:         d.ChainID,
		Address:         d.Address,
		ContractName:    d.ContractName,
		DeployerAddress: d.DeployerAddress,
		TxHash:          d.TxHash,
		BlockNumber:     d.BlockNumber,
		Args:            args,
		ReleaseLabel:    d.ReleaseLabel,
		CodeMatch:       d.CodeMatch,
		CreatedAt:       formatTime(d.CreatedAt),
	}
}

func toInvocationItem(inv domain.Invocation) InvocationItem {
	return InvocationItem{
		Method:       inv.Method,
		Kind:         inv.Kind,
		Status:       inv.Status,
		TxHash:       inv.TxHash,
		RevertReason: inv.RevertReason,
		BlockNumber:  inv.BlockNumber,
		CreatedAt:    formatTime(inv.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
