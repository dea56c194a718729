package order

import (
	"errors"
	"log"
	"net/http"

	"veyra_back_end/internal/middleware"
	"veyra_back_end/internal/models"
	"veyra_back_end/internal/orders"
	services "veyra_back_end/internal/service"
	"veyra_back_end/internal/utils"

	"github.com/gin-gonic/gin"
)

// Service est câblé une fois au démarrage (voir cmd/server/main.go).
var Service *orders.Service

func Init(svc *orders.Service) {
	Service = svc
}

// CreateOrder crée une commande depuis la soumission de checkout.
// La panne passerelle n'est pas fatale : le client reçoit gateway_mode
// pour savoir s'il peut payer tout de suite ou non.
func CreateOrder(c *gin.Context) {
	var req struct {
		Items           []orders.SubmittedItem `json:"items" binding:"required"`
		ShippingAddress models.ShippingAddress `json:"shipping_address"`
		PaymentMethod   string                 `json:"payment_method" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	result, err := Service.CreateOrder(c.Request.Context(), orders.CreateOrderRequest{
		UserID:         userID,
		Items:          req.Items,
		Shipping:       req.ShippingAddress,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: c.GetHeader("X-Idempotency-Key"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// Indexation meilleur effort pour la recherche admin
	go services.IndexOrder(result.Order)

	response := gin.H{
		"local_order_id":    result.Order.ID,
		"gateway_order_ref": result.Order.GatewayOrderRef,
		"amount":            result.AmountMinor,
		"currency":          result.Currency,
		"gateway_mode":      result.GatewayMode,
		"reused":            result.Reused,
	}

	// QR d'intention UPI quand le moyen de paiement s'y prête
	if result.Order.PaymentMethod == orders.MethodUPI && result.GatewayMode == orders.GatewayModeOnline {
		if qr, err := utils.GenerateUPIQR(result.Order.GatewayOrderRef, result.Order.TotalPrice); err == nil {
			response["upi_qr"] = qr
		}
	}

	c.JSON(http.StatusCreated, response)
}

// VerifyPayment authentifie la preuve de paiement renvoyée par le client
// et confirme la commande (chemin en ligne ou contre-remboursement).
func VerifyPayment(c *gin.Context) {
	var req struct {
		LocalOrderID     string `json:"local_order_id" binding:"required"`
		RemoteOrderRef   string `json:"remote_order_ref"`
		RemotePaymentRef string `json:"remote_payment_ref"`
		Signature        string `json:"signature"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	order, err := Service.VerifyPayment(c.Request.Context(), orders.VerifyPaymentRequest{
		UserID:           userID,
		OrderID:          req.LocalOrderID,
		RemoteOrderRef:   req.RemoteOrderRef,
		RemotePaymentRef: req.RemotePaymentRef,
		Signature:        req.Signature,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	go services.IndexOrder(order)

	// Confirmation par e-mail, sans bloquer la réponse
	if email := order.Shipping.Email; email != "" {
		go func() {
			if err := utils.SendOrderConfirmationEmail(email, order); err != nil {
				log.Println("❌ Erreur envoi e-mail confirmation :", err)
			}
		}()
	}

	c.JSON(http.StatusOK, order)
}

// GetMyOrders récupère toutes les commandes de l'utilisateur connecté,
// de la plus récente à la plus ancienne.
func GetMyOrders(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	list, err := Service.OrdersOf(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": list})
}

// GetOrderByID récupère une commande : propriétaire ou admin uniquement.
func GetOrderByID(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	order, err := Service.Get(c.Request.Context(), c.Param("id"), userID, middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// respondError traduit la taxonomie d'erreurs du service en HTTP.
// Les erreurs d'infrastructure sont loggées en détail, jamais renvoyées.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
	case errors.Is(err, orders.ErrPaymentVerificationFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Vérification du paiement échouée"})
	case errors.Is(err, orders.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orders.ErrInvalidOrderRequest), errors.Is(err, orders.ErrUnrecognizedPaymentMethod):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("❌ Erreur interne commande: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur interne"})
	}
}
