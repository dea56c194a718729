package routes

import (
	"veyra_back_end/internal/handlers/order"
	"veyra_back_end/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine) {
	r.Use(cors.Default())

	api := r.Group("/api")

	// Commandes (authentifié)
	ordersGroup := api.Group("/orders", middleware.AuthRequired())
	{
		ordersGroup.POST("", middleware.OrderRateLimit(), order.CreateOrder)
		ordersGroup.POST("/verify", order.VerifyPayment)
		ordersGroup.GET("", order.GetMyOrders)

		// Admin (avant /:id pour éviter la capture de route)
		admin := ordersGroup.Group("/admin", middleware.RequireAdmin)
		{
			admin.GET("/all", order.GetAllOrders)
			admin.GET("/search", order.SearchOrders)
		}

		ordersGroup.GET("/:id", order.GetOrderByID)
		ordersGroup.PUT("/:id/status", middleware.RequireAdmin, order.UpdateOrderStatus)
		ordersGroup.DELETE("/:id", middleware.RequireAdmin, order.DeleteOrder)
	}
}
