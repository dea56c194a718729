package orders

import (
	"fmt"
	"strings"
)

// Jeu fermé de moyens de paiement
const (
	MethodUPI            = "UPI"
	MethodCard           = "CARD"
	MethodNetBanking     = "NETBANKING"
	MethodWallet         = "WALLET"
	MethodCashOnDelivery = "COD"
)

// synonymes acceptés après normalisation (minuscules, sans espaces/tirets)
var methodSynonyms = map[string]string{
	"upi":            MethodUPI,
	"card":           MethodCard,
	"creditcard":     MethodCard,
	"debitcard":      MethodCard,
	"netbanking":     MethodNetBanking,
	"banktransfer":   MethodNetBanking,
	"wallet":         MethodWallet,
	"cod":            MethodCashOnDelivery,
	"cash":           MethodCashOnDelivery,
	"cashondelivery": MethodCashOnDelivery,
}

// ParsePaymentMethod normalise l'entrée libre du client vers le jeu fermé.
// Pas de valeur par défaut silencieuse : inconnu = erreur.
func ParsePaymentMethod(raw string) (string, error) {
	key := strings.ToLower(raw)
	for _, r := range []string{" ", "-", "_", "."} {
		key = strings.ReplaceAll(key, r, "")
	}

	if method, ok := methodSynonyms[key]; ok {
		return method, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnrecognizedPaymentMethod, raw)
}
