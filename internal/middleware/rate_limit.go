package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"veyra_back_end/internal/database"

	"github.com/gin-gonic/gin"
)

const (
	// Plafond de créations de commandes par utilisateur et par minute
	OrderMaxRequests = 20
	OrderCooldown    = 1 * time.Minute
)

// OrderRateLimit limite les créations de commandes par utilisateur.
// Compteur Redis avec expiration glissante.
func OrderRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.Next()
			return
		}

		ctx := context.Background()
		key := "order_rate:" + userID

		count, err := database.Redis.Incr(ctx, key).Result()
		if err != nil {
			// Redis en panne ne doit pas bloquer le checkout
			c.Next()
			return
		}
		if count == 1 {
			database.Redis.Expire(ctx, key, OrderCooldown)
		}

		if count > OrderMaxRequests {
			ttl := database.Redis.TTL(ctx, key).Val()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Trop de commandes, réessayez dans un instant",
				"retry_after": int(ttl.Seconds()),
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", OrderMaxRequests-count))
		c.Next()
	}
}
