package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitrustlab/pitrust/internal/chain"
	"github.com/pitrustlab/pitrust/internal/config"
	"github.com/pitrustlab/pitrust/internal/payments"
)

type stubAuthority struct{}

func (stubAuthority) ApprovePayment(ctx context.Context, paymentID string) error { return nil }
func (stubAuthority) CompletePayment(ctx context.Context, paymentID, txid string) error {
	return nil
}
func (stubAuthority) CreatePayout(ctx context.Context, req payments.PayoutOrder) (string, error) {
	return "pay_test", nil
}

type stubLedger struct{}

func (stubLedger) FetchWallet(ctx context.Context, address string) (*chain.WalletAggregate, error) {
	return nil, chain.ErrAccountNotFound
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                "8080",
		Env:                 "development",
		LogLevel:            "error",
		PiAPIURL:            "http://localhost:1", // never reached in tests
		PiAPIKey:            "test-key",
		HorizonURL:          "http://localhost:1",
		LedgerTimeout:       time.Second,
		LedgerCacheTTL:      time.Minute,
		ReferralAwardPoints: 100,
		RecordCacheTTL:      time.Minute,
		ReconcileInterval:   time.Hour,
		AdminSecret:         "test-admin-secret",
		RateLimitRPM:        10000,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv, err := New(testConfig(),
		WithLedgerSource(stubLedger{}),
		WithAuthority(stubAuthority{}),
	)
	require.NoError(t, err)
	return srv
}

func TestPaymentFlowThroughRouter(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"uid": "buyer1", "amount": 1.5}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/pi_abc/approve", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	body = strings.NewReader(`{"txid": "tx_123"}`)
	req = httptest.NewRequest(http.MethodPost, "/v1/payments/pi_abc/complete", body)
	req.Header.Set("Content-Type", "application/json")

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "completed")

	// Completing a payment grants VIP
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/vip/buyer1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"vip":true`)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/health/live"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	// Readiness flips only once Run has started
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	srv.ready.Store(true)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInfoEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "PiTrust")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckInThroughRouter(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/reputation/user1/checkin", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "awardedPoints")

	// Second check-in the same day is rejected
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/reputation/user1/checkin", nil)
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminRoutesRequireSecret(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"delta": 100, "reason": "test"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/reputation/user1/adjust", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	body = strings.NewReader(`{"delta": 100, "reason": "test"}`)
	req = httptest.NewRequest(http.MethodPost, "/v1/admin/reputation/user1/adjust", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "test-admin-secret")

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScanWithUnknownAccount(t *testing.T) {
	srv := newTestServer(t)

	addr := "GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVW"
	body := strings.NewReader(`{"address": "` + addr + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/reputation/user1/scan", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "account_not_found")
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// Existing request IDs are preserved
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "test-id-123")
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, "test-id-123", w.Header().Get("X-Request-ID"))
}
