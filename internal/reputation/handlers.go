package reputation

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pitrustlab/pitrust/internal/cache"
	"github.com/pitrustlab/pitrust/internal/chain"
	"github.com/pitrustlab/pitrust/internal/validation"
)

// LedgerSource fetches an aggregated wallet view from the Pi ledger.
// Satisfied by *chain.Client.
type LedgerSource interface {
	FetchWallet(ctx context.Context, address string) (*chain.WalletAggregate, error)
}

// VIPChecker reports whether a user currently holds an active VIP grant.
type VIPChecker interface {
	IsVIP(ctx context.Context, uid string) (bool, error)
}

// Handler provides HTTP endpoints for reputation operations.
type Handler struct {
	service     *Service
	calculator  *Calculator
	ledger      LedgerSource
	vip         VIPChecker
	recordCache *cache.Cache
	adminSecret string
}

// NewHandler creates a reputation handler. ledger and vip may be nil;
// the scan and report endpoints return 503 without a ledger source, and
// reports degrade to the non-VIP view without a VIP checker.
func NewHandler(service *Service, calculator *Calculator, ledger LedgerSource, vip VIPChecker, recordCache *cache.Cache, adminSecret string) *Handler {
	return &Handler{
		service:     service,
		calculator:  calculator,
		ledger:      ledger,
		vip:         vip,
		recordCache: recordCache,
		adminSecret: adminSecret,
	}
}

// RegisterRoutes sets up public reputation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/reputation/leaderboard", h.GetLeaderboard)
	r.GET("/reputation/:uid", h.GetRecord)
	r.POST("/reputation/:uid/checkin", h.CheckIn)
	r.POST("/reputation/:uid/adbonus", h.ClaimAdBonus)
	r.POST("/reputation/:uid/scan", h.ScanWallet)
	r.POST("/reputation/:uid/report", h.WalletReport)
	r.POST("/reputation/referrals", h.ApplyReferral)
}

// RegisterAdminRoutes sets up secret-gated admin routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/reputation/:uid/adjust", h.AdminAdjust)
}

// AdminAuth gates a route group on the X-Admin-Secret header.
func (h *Handler) AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader("X-Admin-Secret")
		if h.adminSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.adminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin secret",
			})
			return
		}
		c.Next()
	}
}

// GetRecord handles GET /v1/reputation/:uid
func (h *Handler) GetRecord(c *gin.Context) {
	uid := c.Param("uid")
	if !validation.IsValidUID(uid) {
		badUID(c)
		return
	}

	if h.recordCache != nil {
		if cached, ok := h.recordCache.Get(uid); ok {
			c.JSON(http.StatusOK, gin.H{"record": cached, "cached": true})
			return
		}
	}

	rec, err := h.service.Record(c.Request.Context(), uid)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if h.recordCache != nil {
		h.recordCache.Set(uid, rec)
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// CheckIn handles POST /v1/reputation/:uid/checkin
func (h *Handler) CheckIn(c *gin.Context) {
	uid := c.Param("uid")
	if !validation.IsValidUID(uid) {
		badUID(c)
		return
	}

	result, err := h.service.CheckIn(c.Request.Context(), uid)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.invalidate(uid)
	c.JSON(http.StatusOK, gin.H{"checkin": result})
}

// ClaimAdBonus handles POST /v1/reputation/:uid/adbonus
func (h *Handler) ClaimAdBonus(c *gin.Context) {
	uid := c.Param("uid")
	if !validation.IsValidUID(uid) {
		badUID(c)
		return
	}

	result, err := h.service.ClaimAdBonus(c.Request.Context(), uid)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.invalidate(uid)
	c.JSON(http.StatusOK, gin.H{"bonus": result})
}

// ScanRequest is the body for POST /v1/reputation/:uid/scan.
type ScanRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
}

// ScanWallet handles POST /v1/reputation/:uid/scan
func (h *Handler) ScanWallet(c *gin.Context) {
	uid := c.Param("uid")
	if !validation.IsValidUID(uid) {
		badUID(c)
		return
	}

	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "walletAddress is required",
		})
		return
	}

	address := validation.SanitizeAddress(req.WalletAddress)
	if !validation.IsValidPiAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Not a valid Pi wallet address",
		})
		return
	}

	if h.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "ledger_unavailable",
			"message": "Ledger source not configured",
		})
		return
	}

	agg, err := h.ledger.FetchWallet(c.Request.Context(), address)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	summary := chain.Analyze(address, agg.Transactions)
	snap := WalletSnapshot{
		Address:          address,
		Balance:          agg.BalanceNative,
		TransactionCount: agg.TotalTransactionCount,
		ContactsCount:    summary.UniqueCounterparties,
		WalletAgeDays:    agg.AccountAgeDays,
	}

	result, err := h.service.ApplyWalletScan(c.Request.Context(), uid, snap)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.invalidate(uid)
	c.JSON(http.StatusOK, gin.H{"scan": result})
}

// ReportRequest is the body for POST /v1/reputation/:uid/report.
// Staking and mining are self-reported and optional.
type ReportRequest struct {
	WalletAddress string           `json:"walletAddress" binding:"required"`
	Staking       *StakingEstimate `json:"staking"`
	Mining        *MiningProof     `json:"mining"`
}

// WalletReport handles POST /v1/reputation/:uid/report
func (h *Handler) WalletReport(c *gin.Context) {
	uid := c.Param("uid")
	if !validation.IsValidUID(uid) {
		badUID(c)
		return
	}

	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "walletAddress is required",
		})
		return
	}

	address := validation.SanitizeAddress(req.WalletAddress)
	if !validation.IsValidPiAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Not a valid Pi wallet address",
		})
		return
	}

	if h.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "ledger_unavailable",
			"message": "Ledger source not configured",
		})
		return
	}

	agg, err := h.ledger.FetchWallet(c.Request.Context(), address)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	isVIP := false
	if h.vip != nil {
		if v, err := h.vip.IsVIP(c.Request.Context(), uid); err == nil {
			isVIP = v
		}
	}

	summary := chain.Analyze(address, agg.Transactions)
	report := h.calculator.Calculate(
		WalletInput{
			BalanceNative:         agg.BalanceNative,
			AccountAgeDays:        agg.AccountAgeDays,
			TotalTransactionCount: agg.TotalTransactionCount,
		},
		TxSummary{
			TotalScore:      summary.TotalScore,
			InternalCount:   summary.InternalCount,
			ExternalCount:   summary.ExternalCount,
			SuspiciousCount: summary.SuspiciousCount,
		},
		req.Staking,
		req.Mining,
		isVIP,
	)

	c.JSON(http.StatusOK, gin.H{"report": report, "vip": isVIP})
}

// ReferralRequest is the body for POST /v1/reputation/referrals.
type ReferralRequest struct {
	ReferrerID string `json:"referrerId" binding:"required"`
	ReferredID string `json:"referredId" binding:"required"`
}

// ApplyReferral handles POST /v1/reputation/referrals
func (h *Handler) ApplyReferral(c *gin.Context) {
	var req ReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "referrerId and referredId are required",
		})
		return
	}
	if !validation.IsValidUID(req.ReferrerID) || !validation.IsValidUID(req.ReferredID) {
		badUID(c)
		return
	}

	result, err := h.service.ApplyReferral(c.Request.Context(), req.ReferrerID, req.ReferredID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.invalidate(req.ReferrerID)
	c.JSON(http.StatusOK, gin.H{"referral": result})
}

// GetLeaderboard handles GET /v1/reputation/leaderboard
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 100 {
				limit = 100
			}
		}
	}

	entries, err := h.service.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard": entries,
		"count":       len(entries),
	})
}

// AdjustRequest is the body for POST /v1/admin/reputation/:uid/adjust.
type AdjustRequest struct {
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// AdminAdjust handles POST /v1/admin/reputation/:uid/adjust
func (h *Handler) AdminAdjust(c *gin.Context) {
	uid := c.Param("uid")
	if !validation.IsValidUID(uid) {
		badUID(c)
		return
	}

	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "delta and reason are required",
		})
		return
	}

	rec, err := h.service.AdminAdjust(c.Request.Context(), uid, req.Delta, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.invalidate(uid)
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

func (h *Handler) invalidate(uid string) {
	if h.recordCache != nil {
		h.recordCache.Invalidate(uid)
	}
}

func badUID(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_uid",
		"message": "uid must be 1-64 characters of [A-Za-z0-9_-]",
	})
}

func respondServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrMissingUID):
		status = http.StatusBadRequest
		code = "invalid_uid"
	case errors.Is(err, ErrReasonRequired), errors.Is(err, ErrSelfReferral):
		status = http.StatusBadRequest
		code = "invalid_request"
	case errors.Is(err, ErrAlreadyCheckedIn):
		status = http.StatusConflict
		code = "already_checked_in"
	case errors.Is(err, ErrDuplicateReferral):
		status = http.StatusConflict
		code = "duplicate_referral"
	case errors.Is(err, ErrRecordNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrVersionConflict):
		status = http.StatusConflict
		code = "conflict"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func respondLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chain.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "account_not_found",
			"message": "Wallet address not found on the ledger",
		})
	default:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "ledger_unavailable",
			"message": "Failed to fetch wallet from the ledger",
		})
	}
}
