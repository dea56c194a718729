package orders

import (
	"fmt"
	"strings"

	"veyra_back_end/internal/models"
)

// Machine à états des commandes :
//
//	PENDING → CONFIRMED → SHIPPED → DELIVERED
//	CANCELLED accessible depuis PENDING, CONFIRMED et SHIPPED.
//	DELIVERED et CANCELLED sont terminaux.
var allowedTransitions = map[string][]string{
	models.OrderPending:   {models.OrderConfirmed, models.OrderCancelled},
	models.OrderConfirmed: {models.OrderShipped, models.OrderCancelled},
	models.OrderShipped:   {models.OrderDelivered, models.OrderCancelled},
	models.OrderDelivered: {},
	models.OrderCancelled: {},
}

// ParseOrderStatus valide un statut fourni par l'extérieur (admin).
func ParseOrderStatus(raw string) (string, error) {
	status := strings.ToUpper(strings.TrimSpace(raw))
	if _, ok := allowedTransitions[status]; !ok {
		return "", fmt.Errorf("%w: statut inconnu %q", ErrInvalidTransition, raw)
	}
	return status, nil
}

// CanTransition indique si le passage from → to est permis.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition rejette tout saut d'état non prévu par la machine.
func CheckTransition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	return nil
}
