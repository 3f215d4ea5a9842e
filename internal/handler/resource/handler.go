package resource

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/pharmacare-api/internal/handler"
	"github.com/jwalitptl/pharmacare-api/internal/service/directory"
)

type Handler struct {
	directory *directory.Service
}

func NewHandler(dir *directory.Service) *Handler {
	return &Handler{directory: dir}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	resources := r.Group("/resources")
	{
		resources.GET("", h.ListResources)
		resources.GET("/:id", h.GetResource)
	}
}

func (h *Handler) ListResources(c *gin.Context) {
	var workplaceID *uuid.UUID
	if raw := c.Query("workplace_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid workplace ID"))
			return
		}
		workplaceID = &id
	}

	resources, err := h.directory.List(c.Request.Context(), workplaceID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(resources))
}

func (h *Handler) GetResource(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid resource ID"))
		return
	}

	resource, err := h.directory.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(resource))
}
