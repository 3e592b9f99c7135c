package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
)

// ErrorResponse define la estructura estándar para las respuestas de error.
type ErrorResponse struct {
	Status           int               `json:"status"`
	Error            string            `json:"error"`
	Message          string            `json:"message"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// SendError envía una respuesta de error con un formato estandarizado.
func SendError(c *gin.Context, statusCode int, title, message string) {
	c.JSON(statusCode, ErrorResponse{
		Status:    statusCode,
		Error:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// --- Helpers específicos para errores comunes ---

func SendBadRequest(c *gin.Context, message string) {
	SendError(c, http.StatusBadRequest, "Bad Request", message)
}

func SendNotFound(c *gin.Context, message string) {
	SendError(c, http.StatusNotFound, "Not Found", message)
}

func SendInternalServerError(c *gin.Context, message string) {
	SendError(c, http.StatusInternalServerError, "Internal Server Error", message)
}

// SendValidationError informa de los campos inválidos de la petición.
func SendValidationError(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Status:           http.StatusBadRequest,
		Error:            "Validation Failed",
		Message:          "Request validation failed",
		ValidationErrors: fields,
		Timestamp:        time.Now().UTC(),
	})
}

// SendDomainError traduce la taxonomía de errores a HTTP.
// Los errores no clasificados no exponen su mensaje.
func SendDomainError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, sharedDomain.ErrNotFound):
		log.Warn("Order not found", zap.Error(err))
		SendError(c, http.StatusNotFound, "Order Not Found", err.Error())
	case errors.Is(err, sharedDomain.ErrInvalidState):
		log.Warn("Invalid order state", zap.Error(err))
		SendError(c, http.StatusBadRequest, "Invalid Order State", err.Error())
	case errors.Is(err, sharedDomain.ErrProcessing):
		log.Error("Order processing error", zap.Error(err))
		SendError(c, http.StatusInternalServerError, "Order Processing Error", err.Error())
	default:
		log.Error("Unexpected error", zap.Error(err))
		SendInternalServerError(c, "An unexpected error occurred")
	}
}
