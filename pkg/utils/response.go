package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response standard response envelope
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success returns a success response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// Error returns an error response for a response code
func Error(c *gin.Context, code ResponseCode, message string) {
	c.JSON(HTTPStatus(code), Response{
		Success: false,
		Message: message,
	})
}

// ErrorFromErr renders an error, mapping AppError codes to HTTP statuses
func ErrorFromErr(c *gin.Context, err error) {
	if appErr, ok := IsAppError(err); ok {
		Error(c, appErr.Code, appErr.Message)
		return
	}
	Error(c, CodeInternalError, "internal server error")
}

// PageData pagination payload
type PageData struct {
	List       interface{} `json:"list"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Size       int         `json:"size"`
	TotalPages int         `json:"total_pages"`
}
