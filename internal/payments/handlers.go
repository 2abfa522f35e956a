package payments

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pitrustlab/pitrust/internal/pagination"
	"github.com/pitrustlab/pitrust/internal/validation"
)

// Handler provides HTTP endpoints for payment operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/:id/approve", h.ApprovePayment)
	r.POST("/payments/:id/complete", h.CompletePayment)
	r.POST("/payments/:id/cancel", h.CancelPayment)
	r.GET("/payments/:id", h.GetPayment)
	r.GET("/users/:uid/payments", h.ListPayments)
	r.POST("/payouts", h.RequestPayout)
}

// RegisterAdminRoutes sets up secret-gated admin payment routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.DELETE("/payouts/:uid/pending", h.ClearPendingPayout)
}

// ApproveRequest is the body for POST /v1/payments/:id/approve.
type ApproveRequest struct {
	UID    string  `json:"uid" binding:"required"`
	Amount float64 `json:"amount"`
}

// ApprovePayment handles POST /v1/payments/:id/approve
func (h *Handler) ApprovePayment(c *gin.Context) {
	id := c.Param("id")

	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "uid is required",
		})
		return
	}
	if !validation.IsValidUID(req.UID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_uid",
			"message": "uid must be 1-64 characters of [A-Za-z0-9_-]",
		})
		return
	}

	payment, err := h.service.Approve(c.Request.Context(), id, req.UID, req.Amount)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// CompleteRequest is the body for POST /v1/payments/:id/complete.
type CompleteRequest struct {
	TxID string `json:"txid" binding:"required"`
}

// CompletePayment handles POST /v1/payments/:id/complete
func (h *Handler) CompletePayment(c *gin.Context) {
	id := c.Param("id")

	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "txid is required",
		})
		return
	}

	payment, err := h.service.Complete(c.Request.Context(), id, req.TxID)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// CancelPayment handles POST /v1/payments/:id/cancel
func (h *Handler) CancelPayment(c *gin.Context) {
	id := c.Param("id")

	payment, err := h.service.Cancel(c.Request.Context(), id)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	// A cancel for an unknown payment still reports success.
	if payment == nil {
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true, "payment": payment})
}

// GetPayment handles GET /v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	payment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondPaymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// ListPayments handles GET /v1/users/:uid/payments
func (h *Handler) ListPayments(c *gin.Context) {
	uid := c.Param("uid")
	if !validation.IsValidUID(uid) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_uid",
			"message": "uid must be 1-64 characters of [A-Za-z0-9_-]",
		})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	before, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is not valid",
		})
		return
	}

	list, next, err := h.service.ListByUID(c.Request.Context(), uid, before, limit)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	resp := gin.H{"payments": list, "count": len(list)}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// PayoutRequest is the body for POST /v1/payouts.
type PayoutRequest struct {
	UID        string  `json:"uid" binding:"required"`
	Address    string  `json:"address" binding:"required"`
	Amount     float64 `json:"amount" binding:"required"`
	PurposeTag string  `json:"purposeTag"`
}

// RequestPayout handles POST /v1/payouts
func (h *Handler) RequestPayout(c *gin.Context) {
	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "uid, address, and amount are required",
		})
		return
	}

	result, err := h.service.RequestPayout(c.Request.Context(), req.UID, req.Address, req.Amount, req.PurposeTag)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"payout": result})
}

// ClearPendingPayout handles DELETE /v1/admin/payouts/:uid/pending
func (h *Handler) ClearPendingPayout(c *gin.Context) {
	uid := c.Param("uid")
	if !validation.IsValidUID(uid) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_uid",
			"message": "uid must be 1-64 characters of [A-Za-z0-9_-]",
		})
		return
	}

	if err := h.service.ClearPendingPayout(c.Request.Context(), uid); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func respondPaymentError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrInvalidStatus):
		status = http.StatusConflict
		code = "invalid_state"
	case errors.Is(err, ErrPayoutPending):
		status = http.StatusConflict
		code = "payout_pending"
	case errors.Is(err, ErrInvalidUID):
		status = http.StatusBadRequest
		code = "invalid_uid"
	case errors.Is(err, ErrInvalidAddress):
		status = http.StatusBadRequest
		code = "invalid_address"
	case errors.Is(err, ErrInvalidAmount):
		status = http.StatusBadRequest
		code = "invalid_amount"
	case errors.Is(err, ErrAuthority):
		status = http.StatusBadGateway
		code = "authority_unavailable"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
