package suggestion

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/pharmacare-api/internal/handler"
	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/service/suggestion"
)

type Handler struct {
	service *suggestion.Service
}

func NewHandler(service *suggestion.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/appointments/suggest", h.SuggestSlots)
}

func (h *Handler) SuggestSlots(c *gin.Context) {
	var req model.SuggestSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	suggestions, err := h.service.Suggest(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(suggestions))
}
