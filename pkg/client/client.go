// Package client provides a Go client for the contraharness journal API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a journal API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new journal client. The API key is only needed for writes.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Deployment represents a recorded deployment
type Deployment struct {
	ID              string   `json:"id"`
	ChainID         int64    `json:"chainId"`
	Address         string   `json:"address"`
	ContractName    string   `json:"contractName"`
	DeployerAddress string   `json:"deployerAddress,omitempty"`
	TxHash          string   `json:"txHash,omitempty"`
	BlockNumber     int64    `json:"blockNumber,omitempty"`
	Args            []string `json:"args,omitempty"`
	ReleaseLabel    string   `json:"releaseLabel,omitempty"`
	CodeMatch       string   `json:"codeMatch,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
}

// Invocation represents a recorded call or transaction
type Invocation struct {
	Method       string `json:"method"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	TxHash       string `json:"txHash,omitempty"`
	RevertReason string `json:"revertReason,omitempty"`
	BlockNumber  int64  `json:"blockNumber,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// DeploymentRequest is the request for recording a deployment
type DeploymentRequest struct {
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

// RecordResponse is the response for recording a deployment
type RecordResponse struct {
	ID      string `json:"id"`
	ChainID int64  `json:"chainId"`
	Address string `json:"address"`
	Message string `json:"message"`
}

// ListOptions filters and pages ListDeployments
type ListOptions struct {
	Contract     string
	ChainID      int64
	ReleaseLabel string
	Limit        int
	Cursor       string
}

// ListDeploymentsResponse is the response for listing deployments
type ListDeploymentsResponse struct {
	Data       []Deployment `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// ListInvocationsResponse is the response for listing invocations
type ListInvocationsResponse struct {
	Data       []Invocation `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConflict reports whether err is a 409 from the API
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// RecordDeployment records a deployment
func (c *Client) RecordDeployment(ctx context.Context, req DeploymentRequest) (*RecordResponse, error) {
	var resp RecordResponse
	if err := c.post(ctx, "/api/v1/deployments", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordInvocation records an invocation against a deployment address
func (c *Client) RecordInvocation(ctx context.Context, chainID int64, address string, inv Invocation) error {
	return c.post(ctx, deploymentPath(chainID, address)+"/invocations", inv, nil)
}

// GetDeployment gets a deployment by chain ID and address
func (c *Client) GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	var resp Deployment
	if err := c.get(ctx, deploymentPath(chainID, address), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDeployments lists deployments, newest first
func (c *Client) ListDeployments(ctx context.Context, opts ListOptions) (*ListDeploymentsResponse, error) {
	q := url.Values{}
	if opts.Contract != "" {
		q.Set("contract", opts.Contract)
	}
	if opts.ChainID != 0 {
		q.Set("chain_id", strconv.FormatInt(opts.ChainID, 10))
	}
	if opts.ReleaseLabel != "" {
		q.Set("release", opts.ReleaseLabel)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}

	var resp ListDeploymentsResponse
	if err := c.get(ctx, "/api/v1/deployments/", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LatestDeployment returns the deployment of a contract with the highest release label
func (c *Client) LatestDeployment(ctx context.Context, contract string, chainID int64) (*Deployment, error) {
	q := url.Values{"contract": {contract}}
	if chainID != 0 {
		q.Set("chain_id", strconv.FormatInt(chainID, 10))
	}
	var resp Deployment
	if err := c.get(ctx, "/api/v1/deployments/latest", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListInvocations lists invocations against a deployment address, oldest first
func (c *Client) ListInvocations(ctx context.Context, chainID int64, address string) (*ListInvocationsResponse, error) {
	var resp ListInvocationsResponse
	if err := c.get(ctx, deploymentPath(chainID, address)+"/invocations", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func deploymentPath(chainID int64, address string) string {
	return fmt.Sprintf("/api/v1/deployments/%d/%s", chainID, url.PathEscape(address))
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}
	errResp.Error.Status = resp.StatusCode
	return &errResp.Error
}
