package vip

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pitrustlab/pitrust/internal/validation"
)

// Handler provides HTTP endpoints for VIP status.
type Handler struct {
	service *Service
}

// NewHandler creates a new VIP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public VIP routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/vip/:uid", h.GetStatus)
}

// RegisterAdminRoutes sets up secret-gated admin VIP routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/vip/:uid/grant", h.AdminGrant)
}

// GetStatus handles GET /v1/vip/:uid
func (h *Handler) GetStatus(c *gin.Context) {
	uid := c.Param("uid")
	if !validation.IsValidUID(uid) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_uid",
			"message": "uid must be 1-64 characters of [A-Za-z0-9_-]",
		})
		return
	}

	grant, active, err := h.service.Status(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	resp := gin.H{"uid": uid, "vip": active}
	if grant != nil {
		resp["grant"] = grant
	}
	c.JSON(http.StatusOK, resp)
}

// AdminGrant handles POST /v1/admin/vip/:uid/grant
func (h *Handler) AdminGrant(c *gin.Context) {
	uid := c.Param("uid")
	if !validation.IsValidUID(uid) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_uid",
			"message": "uid must be 1-64 characters of [A-Za-z0-9_-]",
		})
		return
	}

	grant, err := h.service.Grant(c.Request.Context(), uid, "admin")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "grant_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"grant": grant, "vip": true})
}
