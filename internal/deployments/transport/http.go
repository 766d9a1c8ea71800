// Package transport provides HTTP handlers for the deployment journal.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/contraharness/internal/deployments/domain"
)

// Service defines the deployment service interface for HTTP transport.
type Service interface {
	Record(ctx context.Context, req domain.RecordRequest) (*domain.Deployment, error)
	Get(ctx context.Context, chainID int64, address string) (*domain.Deployment, error)
	List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error)
	Latest(ctx context.Context, contract string, chainID int64) (*domain.Deployment, error)
	RecordInvocation(ctx context.Context, req domain.InvocationRequest) (*domain.Invocation, error)
	Invocations(ctx context.Context, chainID int64, address string, pagination domain.PaginationParams) (*domain.InvocationResult, error)
}

// Handler handles HTTP requests for deployments.
type Handler struct {
	svc Service
}

// NewHandler creates a new deployments HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterReadRoutes registers read-only deployment routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/latest", h.handleLatest)
	r.Get("/{chainId}/{address}", h.handleGet)
	r.Get("/{chainId}/{address}/invocations", h.handleInvocations)
}

// RegisterWriteRoutes registers write deployment routes (auth required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/", h.handleRecord)
	r.Post("/{chainId}/{address}/invocations", h.handleRecordInvocation)
}

func parseLimit(r *http.Request) int {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return limit
}

// parseChainID parses an optional chain id; empty means any chain
func parseChainID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("chain id must be a positive integer")
	}
	return id, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	chainID, err := parseChainID(r.URL.Query().Get("chain_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.svc.List(r.Context(), domain.ListFilter{
		Contract:     r.URL.Query().Get("contract"),
		ChainID:      chainID,
		ReleaseLabel: r.URL.Query().Get("release"),
	}, domain.PaginationParams{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid cursor")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list deployments")
		return
	}

	data := make([]DeploymentItem, len(result.Deployments))
	for i, d := range result.Deployments {
		data[i] = DeploymentItem{
			ChainID:      d.ChainID,
			Address:      d.Address,
			ContractName: d.ContractName,
			ReleaseLabel: d.ReleaseLabel,
			TxHash:       d.TxHash,
		}
	}

	writeJSON(w, http.StatusOK, DeploymentListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}

	var req RecordRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	deployment, err := h.svc.Record(r.Context(), req.ToDomain())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyRecorded):
			writeError(w, http.StatusConflict, "ALREADY_EXISTS", err.Error())
		case errors.Is(err, domain.ErrInvalidAddress),
			errors.Is(err, domain.ErrInvalidChainID),
			errors.Is(err, domain.ErrInvalidContract),
			errors.Is(err, domain.ErrInvalidTxHash),
			errors.Is(err, domain.ErrInvalidReleaseLabel):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record deployment")
		}
		return
	}

	writeJSON(w, http.StatusCreated, RecordResponse{
		ID:      deployment.ID,
		ChainID: deployment.ChainID,
		Address: deployment.Address,
		Message: "Deployment recorded successfully",
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	chainID, err := parseChainID(chi.URLParam(r, "chainId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	address := chi.URLParam(r, "address")

	deployment, err := h.svc.Get(r.Context(), chainID, address)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment not found")
		case errors.Is(err, domain.ErrInvalidAddress):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get deployment")
		}
		return
	}

	writeJSON(w, http.StatusOK, toDeploymentResponse(deployment))
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	contract := r.URL.Query().Get("contract")
	if contract == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "contract is required")
		return
	}
	chainID, err := parseChainID(r.URL.Query().Get("chain_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	deployment, err := h.svc.Latest(r.Context(), contract, chainID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "No labelled deployment found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to find latest deployment")
		return
	}

	writeJSON(w, http.StatusOK, toDeploymentResponse(deployment))
}

func (h *Handler) handleRecordInvocation(w http.ResponseWriter, r *http.Request) {
	chainID, err := parseChainID(chi.URLParam(r, "chainId"))
	if err != nil || chainID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "chain id must be a positive integer")
		return
	}

	var req InvocationRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	inv, err := h.svc.RecordInvocation(r.Context(), req.ToDomain(chainID, chi.URLParam(r, "address")))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, domain.ErrInvalidInvocation):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record invocation")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toInvocationItem(*inv))
}

func (h *Handler) handleInvocations(w http.ResponseWriter, r *http.Request) {
	chainID, err := parseChainID(chi.URLParam(r, "chainId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	limit := parseLimit(r)

	result, err := h.svc.Invocations(r.Context(), chainID, chi.URLParam(r, "address"), domain.PaginationParams{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, domain.ErrInvalidCursor):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list invocations")
		}
		return
	}

	data := make([]InvocationItem, len(result.Invocations))
	for i, inv := range result.Invocations {
		data[i] = toInvocationItem(inv)
	}

	writeJSON(w, http.StatusOK, InvocationListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
