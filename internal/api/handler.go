package api

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nitesh/bizrank/internal/ranking"
	"github.com/nitesh/bizrank/internal/scoring"
	"github.com/nitesh/bizrank/internal/service"
	"github.com/nitesh/bizrank/pkg/models"
)

const adminTokenHeader = "X-Admin-Token"

type Handler struct {
	svc        *service.Service
	adminToken string
}

func NewHandler(svc *service.Service, adminToken string) *Handler {
	return &Handler{svc: svc, adminToken: adminToken}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	v1 := r.Group("/v1")
	{
		v1.GET("/rankings", h.Rankings)
		v1.GET("/businesses/:id/badges", h.Badges)
		v1.GET("/businesses/:id/reviews", h.Reviews)
		v1.GET("/businesses/:id/performance", h.Performance)
	}

	admin := v1.Group("/admin", h.requireAdmin)
	{
		admin.POST("/businesses/:id/analyze", h.Analyze)
		admin.POST("/businesses/:id/performance", h.CalculatePerformance)
		admin.POST("/businesses/:id/analysis/reset-failed", h.ResetFailed)
		admin.POST("/businesses/:id/reviews/import", h.ImportReviews)
		admin.POST("/rankings/update", h.UpdateRankings)
		admin.POST("/rankings/refresh-badges", h.RefreshBadges)
		admin.POST("/rankings/cleanup", h.Cleanup)
		admin.GET("/rankings/status", h.Status)
	}
}

// requireAdmin rejects requests whose X-Admin-Token does not match. An empty
// configured token locks the admin surface entirely.
func (h *Handler) requireAdmin(c *gin.Context) {
	got := c.GetHeader(adminTokenHeader)
	if h.adminToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": models.ErrUnauthorized.Error()})
		return
	}
	c.Next()
}

// Analyze: POST /v1/admin/businesses/:id/analyze
func (h *Handler) Analyze(c *gin.Context) {
	ack, err := h.svc.TriggerAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ack)
}

// CalculatePerformance: POST /v1/admin/businesses/:id/performance
// The id "all" recalculates every active business.
func (h *Handler) CalculatePerformance(c *gin.Context) {
	ack, err := h.svc.TriggerPerformance(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ack)
}

// ResetFailed: POST /v1/admin/businesses/:id/analysis/reset-failed
func (h *Handler) ResetFailed(c *gin.Context) {
	ack, err := h.svc.ResetFailedAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ack)
}

type importReview struct {
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
	Verified bool   `json:"verified"`
}

// ImportReviews: POST /v1/admin/businesses/:id/reviews/import
// Body: JSON array of {rating, comment, verified}
func (h *Handler) ImportReviews(c *gin.Context) {
	var payload []importReview
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	reviews := make([]*models.Review, 0, len(payload))
	for _, p := range payload {
		reviews = append(reviews, &models.Review{Rating: p.Rating, Comment: p.Comment, Verified: p.Verified})
	}
	batch, ack, err := h.svc.ImportReviews(c.Request.Context(), c.Param("id"), reviews)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":            ack.Message,
		"estimated_duration": ack.EstimatedDuration,
		"meta":               gin.H{"batch_id": batch.ID, "imported": batch.ReviewCount},
	})
}

// UpdateRankings: POST /v1/admin/rankings/update
// Body (optional): {"include_aspects":true,"force_recalculate":false,"cleanup_first":false}
func (h *Handler) UpdateRankings(c *gin.Context) {
	var opts ranking.Options
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
			return
		}
	}
	ack, err := h.svc.UpdateRankings(c.Request.Context(), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ack)
}

// RefreshBadges: POST /v1/admin/rankings/refresh-badges
func (h *Handler) RefreshBadges(c *gin.Context) {
	ack, err := h.svc.RefreshBadges(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ack)
}

// Cleanup: POST /v1/admin/rankings/cleanup
func (h *Handler) Cleanup(c *gin.Context) {
	ack, err := h.svc.CleanupRankings(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ack)
}

// Status: GET /v1/admin/rankings/status
func (h *Handler) Status(c *gin.Context) {
	st, err := h.svc.RankingStatus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

// Rankings: GET /v1/rankings?city=austin&category=hvac&type=overall
func (h *Handler) Rankings(c *gin.Context) {
	city := c.Query("city")
	category := c.Query("category")
	t := models.RankingType(c.DefaultQuery("type", string(models.RankingOverall)))

	view, err := h.svc.Rankings(c.Request.Context(), city, category, t)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{
			"city":         city,
			"category":     category,
			"ranking_type": view.RankingType,
			"count":        len(view.Rankings),
			"last_updated": view.LastUpdated,
			"freshness":    view.Freshness,
		},
		"data": view.Rankings,
	})
}

// Badges: GET /v1/businesses/:id/badges
func (h *Handler) Badges(c *gin.Context) {
	id := c.Param("id")
	res, err := h.svc.BusinessBadges(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{"business_id": id, "count": len(res)},
		"data": res,
	})
}

// Reviews: GET /v1/businesses/:id/reviews
func (h *Handler) Reviews(c *gin.Context) {
	id := c.Param("id")
	res, limit, err := h.svc.BusinessReviews(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{"business_id": id, "count": len(res), "limit": limit},
		"data": res,
	})
}

// Performance: GET /v1/businesses/:id/performance
func (h *Handler) Performance(c *gin.Context) {
	m, err := h.svc.Performance(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": m})
}

// writeError maps service errors onto status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, scoring.ErrScoringInProgress):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
