package models

// ProductSnapshot : ce que le catalogue fournit au moment de la commande.
// Le prix sert de référence côté serveur, jamais celui envoyé par le client.
type ProductSnapshot struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Brand    string  `json:"brand"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
	Image    string  `json:"image"`
}
