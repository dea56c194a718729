package order

import (
	"net/http"

	services "veyra_back_end/internal/service"

	"github.com/gin-gonic/gin"
)

// UpdateOrderStatus applique une transition administrative
// (PENDING → CONFIRMED → SHIPPED → DELIVERED, annulation avant livraison).
func UpdateOrderStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	order, err := Service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	go services.IndexOrder(order)

	c.JSON(http.StatusOK, order)
}

// GetAllOrders retourne le listing complet pour le back-office.
func GetAllOrders(c *gin.Context) {
	list, err := Service.AllOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

// SearchOrders interroge l'index Elasticsearch des commandes.
func SearchOrders(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Paramètre q requis"})
		return
	}

	results, err := services.SearchOrders(query)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Recherche indisponible"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// DeleteOrder supprime définitivement une commande (action admin explicite,
// jamais automatique).
func DeleteOrder(c *gin.Context) {
	if err := Service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}
