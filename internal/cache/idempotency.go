package cache

import (
	"context"
	"time"

	"veyra_back_end/internal/database"

	"github.com/redis/go-redis/v9"
)

// Durée de vie d'un jeton d'idempotence : au-delà, un retry client
// recrée légitimement une commande.
const IdempotencyTTL = 24 * time.Hour

const idemKeyPrefix = "order_idem:"

// OrderIdempotency relie les jetons d'idempotence de création de commande
// à l'identifiant de la commande qu'ils ont produite, dans Redis.
type OrderIdempotency struct{}

func NewOrderIdempotency() *OrderIdempotency { return &OrderIdempotency{} }

// Existing retourne la commande déjà associée au jeton, s'il y en a une.
func (i *OrderIdempotency) Existing(ctx context.Context, token string) (string, bool, error) {
	id, err := database.Redis.Get(ctx, idemKeyPrefix+token).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Remember associe le jeton à la commande, une fois celle-ci persistée.
// SET simple (pas de SETNX) : un jeton orphelin doit pouvoir être écrasé.
func (i *OrderIdempotency) Remember(ctx context.Context, token, orderID string) error {
	return database.Redis.Set(ctx, idemKeyPrefix+token, orderID, IdempotencyTTL).Err()
}
