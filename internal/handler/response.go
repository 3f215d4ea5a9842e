package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/pharmacare-api/internal/middleware"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Error writes the application error with its mapped HTTP status.
func Error(c *gin.Context, err error) {
	c.JSON(middleware.StatusFor(err), NewErrorResponse(err.Error()))
}
