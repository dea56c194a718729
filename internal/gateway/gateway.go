package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ErrGatewayUnavailable : panne transport/auth côté passerelle.
// Ne doit JAMAIS remonter comme erreur fatale au client — le checkout
// bascule sur une référence de repli (voir orders.Service).
var ErrGatewayUnavailable = errors.New("passerelle de paiement indisponible")

const defaultTimeout = 10 * time.Second

// Client encapsule l'API de la passerelle de paiement :
// création de commande distante + vérification de signature HMAC.
// Aucun autre état que la configuration.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

func NewClient(baseURL, keyID, keySecret string) *Client {
	return &Client{
		baseURL:    baseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// NewFromEnv construit le client depuis les variables d'environnement.
// Le secret est obligatoire : sans lui, impossible de vérifier les signatures.
func NewFromEnv() (*Client, error) {
	keyID := os.Getenv("GATEWAY_KEY_ID")
	keySecret := os.Getenv("GATEWAY_KEY_SECRET")
	if keyID == "" || keySecret == "" {
		return nil, errors.New("GATEWAY_KEY_ID ou GATEWAY_KEY_SECRET manquant dans .env")
	}

	baseURL := os.Getenv("GATEWAY_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.gateway.example.com"
	}

	return NewClient(baseURL, keyID, keySecret), nil
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"` // en unités mineures (paise)
	Currency string            `json:"currency"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

// CreateRemoteOrder crée une commande côté passerelle et retourne sa référence.
// amountMinor doit être strictement positif, currency un code ISO à 3 lettres.
// Toute erreur transport/HTTP est repliée sur ErrGatewayUnavailable.
func (g *Client) CreateRemoteOrder(ctx context.Context, amountMinor int64, currency string, notes map[string]string) (string, error) {
	if amountMinor <= 0 {
		return "", fmt.Errorf("montant invalide: %d", amountMinor)
	}
	if len(currency) != 3 {
		return "", fmt.Errorf("devise invalide: %q", currency)
	}

	body, err := json.Marshal(createOrderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Notes:    notes,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// timeout, DNS, refus de connexion... tout est traité pareil
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("%w: statut %d: %s", ErrGatewayUnavailable, resp.StatusCode, raw)
	}

	var out createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: réponse illisible: %v", ErrGatewayUnavailable, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: réponse sans identifiant", ErrGatewayUnavailable)
	}

	return out.ID, nil
}

// VerifySignature recalcule le HMAC-SHA256 de "orderRef|paymentRef" avec le
// secret partagé et le compare en temps constant à la signature fournie.
// false sur simple divergence ; erreur uniquement sur entrée malformée.
func (g *Client) VerifySignature(remoteOrderRef, remotePaymentRef, signature string) (bool, error) {
	if remoteOrderRef == "" || remotePaymentRef == "" || signature == "" {
		return false, errors.New("référence ou signature manquante")
	}

	expected := SignPayment(g.keySecret, remoteOrderRef, remotePaymentRef)
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

// SignPayment calcule la signature attendue. Exporté pour les tests et les
// outils internes ; c'est exactement le schéma de la passerelle.
func SignPayment(secret, remoteOrderRef, remotePaymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(remoteOrderRef + "|" + remotePaymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}
