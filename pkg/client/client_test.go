package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const gameAddress = "0x5fbdb2315678afecb367f032d93f642f64180aa3"

func TestClient_ListDeployments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/deployments/" {
			t.Errorf("Expected path /api/v1/deployments/, got %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET method, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("contract") != "NFTGame" || q.Get("chain_id") != "31337" || q.Get("limit") != "5" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"contractName": "NFTGame", "chainId": 31337, "address": gameAddress},
			},
			"pagination": map[string]any{
				"limit":      5,
				"hasMore":    true,
				"nextCursor": "abc",
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	resp, err := client.ListDeployments(context.Background(), ListOptions{Contract: "NFTGame", ChainID: 31337, Limit: 5})
	if err != nil {
		t.Fatalf("ListDeployments() error = %v", err)
	}

	if len(resp.Data) != 1 {
		t.Fatalf("ListDeployments() returned %d deployments, want 1", len(resp.Data))
	}
	if resp.Data[0].ContractName != "NFTGame" {
		t.Errorf("ListDeployments()[0].ContractName = %s, want NFTGame", resp.Data[0].ContractName)
	}
	if !resp.Pagination.HasMore || resp.Pagination.NextCursor != "abc" {
		t.Errorf("ListDeployments().Pagination = %+v", resp.Pagination)
	}
}

func TestClient_RecordDeployment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/deployments" {
			t.Errorf("Expected path /api/v1/deployments, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		if r.Header.Get("X-API-Key") != "ch_key_test" {
			t.Errorf("Expected X-API-Key header, got %s", r.Header.Get("X-API-Key"))
		}

		var req DeploymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.Contract != "NFTGame" || req.ChainID != 31337 {
			t.Errorf("Unexpected request %+v", req)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "deploy-1",
			"chainId": 31337,
			"address": gameAddress,
			"message": "Deployment recorded successfully",
		})
	}))
	defer server.Close()

	client := New(server.URL+"/", "ch_key_test")
	resp, err := client.RecordDeployment(context.Background(), DeploymentRequest{
		Contract: "NFTGame",
		ChainID:  31337,
		Address:  gameAddress,
	})
	if err != nil {
		t.Fatalf("RecordDeployment() error = %v", err)
	}
	if resp.ID != "deploy-1" {
		t.Errorf("RecordDeployment().ID = %s, want deploy-1", resp.ID)
	}
}

func TestClient_RecordInvocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/api/v1/deployments/31337/" + gameAddress + "/invocations"
		if r.URL.Path != want {
			t.Errorf("Expected path %s, got %s", want, r.URL.Path)
		}
		var inv Invocation
		if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if inv.Method != "createLobby" || inv.Status != "reverted" {
			t.Errorf("Unexpected invocation %+v", inv)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(inv)
	}))
	defer server.Close()

	client := New(server.URL, "ch_key_test")
	err := client.RecordInvocation(context.Background(), 31337, gameAddress, Invocation{
		Method:       "createLobby",
		Kind:         "send",
		Status:       "reverted",
		RevertReason: "NFTGame: cannot challenge yourself",
	})
	if err != nil {
		t.Fatalf("RecordInvocation() error = %v", err)
	}
}

func TestClient_GetDeployment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/deployments/31337/"+gameAddress {
			t.Errorf("Expected path /api/v1/deployments/31337/%s, got %s", gameAddress, r.URL.Path)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id":           "deploy-123",
			"contractName": "NFTGame",
			"chainId":      31337,
			"address":      gameAddress,
			"blockNumber":  12345,
			"args":         []string{},
			"releaseLabel": "1.0.0",
			"createdAt":    "2026-01-15T10:30:00Z",
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	deployment, err := client.GetDeployment(context.Background(), 31337, gameAddress)
	if err != nil {
		t.Fatalf("GetDeployment() error = %v", err)
	}

	if deployment.ID != "deploy-123" {
		t.Errorf("GetDeployment().ID = %s, want deploy-123", deployment.ID)
	}
	if deployment.BlockNumber != 12345 {
		t.Errorf("GetDeployment().BlockNumber = %d, want 12345", deployment.BlockNumber)
	}
	if deployment.ReleaseLabel != "1.0.0" {
		t.Errorf("GetDeployment().ReleaseLabel = %s, want 1.0.0", deployment.ReleaseLabel)
	}
}

func TestClient_LatestDeployment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/deployments/latest" {
			t.Errorf("Expected path /api/v1/deployments/latest, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("contract") != "NFTGame" {
			t.Errorf("Expected contract query, got %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{"contractName": "NFTGame", "releaseLabel": "2.0.0"})
	}))
	defer server.Close()

	client := New(server.URL, "")
	d, err := client.LatestDeployment(context.Background(), "NFTGame", 31337)
	if err != nil {
		t.Fatalf("LatestDeployment() error = %v", err)
	}
	if d.ReleaseLabel != "2.0.0" {
		t.Errorf("LatestDeployment().ReleaseLabel = %s, want 2.0.0", d.ReleaseLabel)
	}
}

func TestClient_ErrorHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": "ALREADY_EXISTS", "message": "deployment already recorded"},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"code":    "NOT_FOUND",
				"message": "Deployment not found",
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	_, err := client.GetDeployment(context.Background(), 31337, gameAddress)
	if err == nil {
		t.Fatal("Expected error for 404 response")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected APIError, got %T", err)
	}
	if apiErr.Code != "NOT_FOUND" {
		t.Errorf("Expected code NOT_FOUND, got %s", apiErr.Code)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false, want true")
	}

	_, err = client.RecordDeployment(context.Background(), DeploymentRequest{Contract: "NFTGame", ChainID: 1, Address: gameAddress})
	if !IsConflict(err) {
		t.Errorf("IsConflict(%v) = false, want true", err)
	}
}

func TestClient_ErrorWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "")
	_, err := client.ListInvocations(context.Background(), 31337, gameAddress)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected APIError, got %T", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("APIError.Status = %d, want 502", apiErr.Status)
	}
}
