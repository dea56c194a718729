package main

import (
	"log"
	"os"

	"veyra_back_end/internal/cache"
	"veyra_back_end/internal/config"
	"veyra_back_end/internal/database"
	"veyra_back_end/internal/gateway"
	"veyra_back_end/internal/handlers/order"
	"veyra_back_end/internal/orders"
	"veyra_back_end/internal/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	config.Load()

	// La passerelle de paiement est indispensable : sans secret partagé,
	// aucune signature ne peut être vérifiée
	gw, err := gateway.NewFromEnv()
	if err != nil {
		log.Fatal("❌ Impossible d'initialiser la passerelle de paiement : ", err)
	}
	log.Println("✅ Passerelle de paiement initialisée")

	database.ConnectDatabases()

	// Câblage du cœur commandes : toute l'initialisation ponctuelle se fait
	// ici, au démarrage, jamais au fil des requêtes
	svc := orders.NewService(
		orders.NewScyllaStore(),
		orders.NewScyllaCatalog(),
		gw,
		cache.NewOrderIdempotency(),
	)
	svc.SkipVerification = os.Getenv("GATEWAY_SKIP_VERIFY") == "true"
	if svc.SkipVerification {
		log.Println("⚠️ GATEWAY_SKIP_VERIFY actif — vérification de signature désactivée (test uniquement)")
	}
	order.Init(svc)

	r := gin.Default()
	routes.RegisterRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Println("🚀 Serveur Veyra lancé sur le port", port)
	r.Run(":" + port)
}
