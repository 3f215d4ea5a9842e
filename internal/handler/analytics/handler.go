package analytics

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/pharmacare-api/internal/handler"
	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/service/analytics"
)

type Handler struct {
	service *analytics.Service
}

func NewHandler(service *analytics.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	group := r.Group("/analytics")
	{
		group.GET("/utilization", h.GetUtilization)
		group.GET("/overbooking", h.GetOverbooking)
	}
}

func (h *Handler) GetUtilization(c *gin.Context) {
	report, err := h.report(c)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(report))
}

// GetOverbooking returns just the alerting view of the utilization report.
func (h *Handler) GetOverbooking(c *gin.Context) {
	report, err := h.report(c)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"alerts":          report.Alerts,
		"recommendations": report.Recommendations,
	}))
}

// report parses the shared query parameters and computes the report. On error
// the response has already been written.
func (h *Handler) report(c *gin.Context) (*model.UtilizationReport, error) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid from time, expected RFC3339"))
		return nil, err
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid to time, expected RFC3339"))
		return nil, err
	}

	granularity := model.Granularity(c.DefaultQuery("granularity", string(model.GranularityByResource)))

	var resourceID *uuid.UUID
	if raw := c.Query("resource_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid resource ID"))
			return nil, err
		}
		resourceID = &id
	}

	report, err := h.service.GetUtilization(c.Request.Context(), model.DateRange{From: from, To: to}, resourceID, granularity)
	if err != nil {
		handler.Error(c, err)
		return nil, err
	}
	return report, nil
}
