package reputation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitrustlab/pitrust/internal/cache"
	"github.com/pitrustlab/pitrust/internal/chain"
)

const testAddress = "GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVW"

// stubLedger is a test double for LedgerSource.
type stubLedger struct {
	aggregate *chain.WalletAggregate
	err       error
	calls     int
}

func (s *stubLedger) FetchWallet(_ context.Context, _ string) (*chain.WalletAggregate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.aggregate, nil
}

// stubVIP is a test double for VIPChecker.
type stubVIP struct{ vip bool }

func (s *stubVIP) IsVIP(_ context.Context, _ string) (bool, error) { return s.vip, nil }

func newTestRouter(t *testing.T, ledger LedgerSource, vip VIPChecker) (*gin.Engine, *MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	svc := NewService(store, testLogger())
	h := NewHandler(svc, NewCalculator(), ledger, vip, cache.New(time.Minute), "admin-secret")

	r := gin.New()
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)
	adminGroup := v1.Group("/admin", h.AdminAuth())
	h.RegisterAdminRoutes(adminGroup)
	return r, store
}

func doJSON(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestGetRecordCreatesLazily(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	w := doJSON(r, "GET", "/v1/reputation/user1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Record struct {
			UID        string `json:"uid"`
			TotalScore int    `json:"totalReputationScore"`
			Level      int    `json:"reputationLevel"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "user1", body.Record.UID)
	assert.Equal(t, 0, body.Record.TotalScore)
	assert.Equal(t, 1, body.Record.Level)
}

func TestGetRecordInvalidUID(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	w := doJSON(r, "GET", "/v1/reputation/bad%20uid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckInEndpointConflict(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	w := doJSON(r, "POST", "/v1/reputation/user1/checkin", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, "POST", "/v1/reputation/user1/checkin", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already_checked_in")
}

func TestGetRecordCacheInvalidatedByCheckIn(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	// Prime the cache.
	w := doJSON(r, "GET", "/v1/reputation/user1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, "POST", "/v1/reputation/user1/checkin", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The follow-up read must see the new score, not the cached zero.
	w = doJSON(r, "GET", "/v1/reputation/user1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Record struct {
			TotalScore int `json:"totalReputationScore"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, CheckInBasePoints, body.Record.TotalScore)
}

func TestScanEndpoint(t *testing.T) {
	ledger := &stubLedger{aggregate: &chain.WalletAggregate{
		Address:               testAddress,
		BalanceNative:         42.5,
		AccountAgeDays:        0,
		TotalTransactionCount: 10,
	}}
	r, store := newTestRouter(t, ledger, nil)

	w := doJSON(r, "POST", "/v1/reputation/user1/scan",
		`{"walletAddress":"`+testAddress+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Scan struct {
			Delta       int  `json:"delta"`
			IsFirstScan bool `json:"isFirstScan"`
		} `json:"scan"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Scan.IsFirstScan)
	assert.Equal(t, 50, body.Scan.Delta)
	assert.Equal(t, 1, ledger.calls)

	rec, err := store.Get(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, testAddress, rec.WalletAddress)
}

func TestScanEndpointRejectsBadAddress(t *testing.T) {
	r, _ := newTestRouter(t, &stubLedger{}, nil)

	w := doJSON(r, "POST", "/v1/reputation/user1/scan",
		`{"walletAddress":"not-a-pi-address"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_address")
}

func TestScanEndpointAccountNotFound(t *testing.T) {
	r, _ := newTestRouter(t, &stubLedger{err: chain.ErrAccountNotFound}, nil)

	w := doJSON(r, "POST", "/v1/reputation/user1/scan",
		`{"walletAddress":"`+testAddress+`"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportEndpointVIPBreakdown(t *testing.T) {
	ledger := &stubLedger{aggregate: &chain.WalletAggregate{
		Address:               testAddress,
		AccountAgeDays:        400,
		TotalTransactionCount: 20,
	}}
	r, _ := newTestRouter(t, ledger, &stubVIP{vip: true})

	w := doJSON(r, "POST", "/v1/reputation/user1/report",
		`{"walletAddress":"`+testAddress+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Report struct {
			Total     int      `json:"total"`
			TrustRank string   `json:"trustRank"`
			Breakdown []string `json:"breakdown"`
		} `json:"report"`
		VIP bool `json:"vip"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.VIP)
	assert.NotEmpty(t, body.Report.Breakdown)
	assert.NotEmpty(t, body.Report.TrustRank)
}

func TestReferralEndpointDuplicate(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	body := `{"referrerId":"alice","referredId":"bob"}`
	w := doJSON(r, "POST", "/v1/reputation/referrals", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, "POST", "/v1/reputation/referrals", body, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate_referral")
}

func TestLeaderboardEndpoint(t *testing.T) {
	r, store := newTestRouter(t, nil, nil)
	ctx := context.Background()

	for _, uid := range []string{"a", "b", "c"} {
		rec, err := store.GetOrCreate(ctx, uid)
		require.NoError(t, err)
		rec.AppPoints = len(uid) * 100
		rec.RecomputeTotal()
		require.NoError(t, store.Update(ctx, rec))
	}

	w := doJSON(r, "GET", "/v1/reputation/leaderboard?limit=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}

func TestAdminAdjustRequiresSecret(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)
	body := `{"delta":500,"reason":"support ticket 123"}`

	w := doJSON(r, "POST", "/v1/admin/reputation/user1/adjust", body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, "POST", "/v1/admin/reputation/user1/adjust", body,
		map[string]string{"X-Admin-Secret": "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, "POST", "/v1/admin/reputation/user1/adjust", body,
		map[string]string{"X-Admin-Secret": "admin-secret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Record struct {
			TotalScore      int `json:"totalReputationScore"`
			AdminAdjustment int `json:"adminAdjustment"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 500, resp.Record.TotalScore)
	assert.Equal(t, 500, resp.Record.AdminAdjustment)
}
