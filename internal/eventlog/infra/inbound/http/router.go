package http

import "github.com/gin-gonic/gin"

// RegisterEventRoutes registra las rutas de consulta del historial y de la DLQ.
func RegisterEventRoutes(r *gin.Engine, handler *EventHandler) {
	r.GET("/events", handler.ListEvents)
	r.GET("/events/stats", handler.EventStats)
	r.GET("/dlq", handler.ListDeadLetters)
	r.POST("/test/simulate-dlq", handler.SimulateDLQ)
}
