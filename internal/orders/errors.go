package orders

import "errors"

// Taxonomie d'erreurs du cœur commandes/paiements.
// Les handlers les traduisent en codes HTTP ; rien d'autre ne fuit au client.
var (
	// ErrInvalidOrderRequest : soumission malformée ou incomplète. Aucun état persisté.
	ErrInvalidOrderRequest = errors.New("requête de commande invalide")

	// ErrOrderNotFound couvre aussi le cas "commande d'un autre utilisateur" :
	// on ne révèle jamais l'existence d'une commande qui ne vous appartient pas.
	ErrOrderNotFound = errors.New("commande introuvable")

	// ErrPaymentVerificationFailed : signature invalide en mode strict.
	// La commande reste en PENDING — réconciliation manuelle, jamais de
	// passage automatique en FAILED.
	ErrPaymentVerificationFailed = errors.New("vérification du paiement échouée")

	// ErrInvalidTransition : changement de statut interdit depuis l'état courant.
	ErrInvalidTransition = errors.New("transition de statut non autorisée")

	// ErrUnrecognizedPaymentMethod : moyen de paiement hors du jeu fermé.
	ErrUnrecognizedPaymentMethod = errors.New("moyen de paiement non reconnu")
)
