package models

import "time"

// Statuts de commande
const (
	OrderPending   = "PENDING"
	OrderConfirmed = "CONFIRMED"
	OrderShipped   = "SHIPPED"
	OrderDelivered = "DELIVERED"
	OrderCancelled = "CANCELLED"
)

// Statuts de paiement
const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
	PaymentRefunded  = "REFUNDED"
)

// OrderItem est une ligne de commande figée à la création.
// Les changements ultérieurs du catalogue ne touchent jamais une commande passée.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Brand     string  `json:"brand"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image"`
}

// ShippingAddress : tous les champs sont obligatoires à la création
type ShippingAddress struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zip_code"`
}

type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Items             []OrderItem     `json:"items"`
	TotalPrice        float64         `json:"total_price"`
	TotalItems        int             `json:"total_items"`
	Shipping          ShippingAddress `json:"shipping_address"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentStatus     string          `json:"payment_status"`
	Status            string          `json:"status"`
	GatewayOrderRef   string          `json:"gateway_order_ref"`
	GatewayPaymentRef string          `json:"gateway_payment_ref,omitempty"`
	GatewaySignature  string          `json:"gateway_signature,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	EstimatedDelivery time.Time       `json:"estimated_delivery"`
}
