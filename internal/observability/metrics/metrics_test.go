package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraharness/internal/harness"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/api/v1/deployments", "/api/v1/deployments"},
		{"/api/v1/deployments/", "/api/v1/deployments"},
		{"/api/v1/deployments/latest", "/api/v1/deployments/latest"},
		{
			"/api/v1/deployments/31337/0x5fbdb2315678afecb367f032d93f642f64180aa3",
			"/api/v1/deployments/{id}/{id}",
		},
		{
			"/api/v1/deployments/31337/0x5fbdb2315678afecb367f032d93f642f64180aa3/invocations",
			"/api/v1/deployments/{id}/{id}/invocations",
		},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestDisabled(t *testing.T) {
	Init(false, "contraharness")
	t.Cleanup(func() { enabled = false })

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// No collectors touched while disabled
	Observer{}.Observe(harness.Event{Op: "deploy", State: harness.StateConfirmed})
	RPCRetry("eth_blockNumber")
	require.NoError(t, Recorder{}.RecordInvocation(context.Background(), harness.InvocationRecord{}))
}

func TestHarnessMetrics(t *testing.T) {
	Init(true, "contraharness")
	t.Cleanup(func() { enabled = false })

	before := testutil.ToFloat64(transactionsTotal.WithLabelValues("deploy", "NFTGame", "confirmed"))
	Observer{}.Observe(harness.Event{Op: "deploy", Contract: "NFTGame", State: harness.StatePending})
	Observer{}.Observe(harness.Event{Op: "deploy", Contract: "NFTGame", State: harness.StateConfirmed, Elapsed: 2 * time.Second})
	assert.Equal(t, before+1, testutil.ToFloat64(transactionsTotal.WithLabelValues("deploy", "NFTGame", "confirmed")))

	retries := testutil.ToFloat64(rpcRetriesTotal.WithLabelValues("eth_getTransactionReceipt"))
	RPCRetry("eth_getTransactionReceipt")
	assert.Equal(t, retries+1, testutil.ToFloat64(rpcRetriesTotal.WithLabelValues("eth_getTransactionReceipt")))

	calls := testutil.ToFloat64(invocationsTotal.WithLabelValues("NFTGame", "getHashes", "call", "ok"))
	require.NoError(t, Recorder{}.RecordInvocation(context.Background(), harness.InvocationRecord{
		Contract: "NFTGame", Method: "getHashes", Kind: harness.InvocationCall, Status: harness.StatusOK,
	}))
	assert.Equal(t, calls+1, testutil.ToFloat64(invocationsTotal.WithLabelValues("NFTGame", "getHashes", "call", "ok")))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "harness_confirmation_seconds")
}

type countingRecorder struct {
	deployments, invocations int
}

func (c *countingRecorder) RecordDeployment(context.Context, harness.DeploymentRecord) error {
	c.deployments++
	return nil
}

func (c *countingRecorder) RecordInvocation(context.Context, harness.InvocationRecord) error {
	c.invocations++
	return nil
}

func TestRecorderForwards(t *testing.T) {
	next := &countingRecorder{}
	r := Recorder{Next: next}
	ctx := context.Background()

	require.NoError(t, r.RecordDeployment(ctx, harness.DeploymentRecord{Contract: "NFTGame"}))
	require.NoError(t, r.RecordInvocation(ctx, harness.InvocationRecord{Contract: "NFTGame", Method: "createLobby", Kind: "send", Status: "reverted"}))
	assert.Equal(t, 1, next.deployments)
	assert.Equal(t, 1, next.invocations)
}

func TestMiddleware(t *testing.T) {
	Init(true, "contraharness")
	t.Cleanup(func() { enabled = false })

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	path := "/api/v1/deployments/31337/0x5fbdb2315678afecb367f032d93f642f64180aa3"
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/v1/deployments/{id}/{id}", "418"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/v1/deployments/{id}/{id}", "418")))
}
