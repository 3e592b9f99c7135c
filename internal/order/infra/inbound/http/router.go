package http

import "github.com/gin-gonic/gin"

// RegisterOrderRoutes registra las rutas HTTP del dominio de órdenes.
func RegisterOrderRoutes(r *gin.Engine, handler *OrderHandler) {
	orders := r.Group("/orders")
	{
		orders.POST("", handler.CreateOrder)
		orders.GET("", handler.ListOrders)
		orders.GET("/:id", handler.GetOrder)
		orders.POST("/:id/cancel", handler.CancelOrder)
		orders.POST("/simulation-execution", handler.SimulateExecution)
	}
}
