package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"veyra_back_end/internal/gateway"
	"veyra_back_end/internal/models"

	"github.com/google/uuid"
)

const (
	// Devise unique de la boutique, en unités mineures côté passerelle (paise).
	Currency = "INR"

	// Les références de repli sont synthétisées localement quand la passerelle
	// est injoignable à la création ; le préfixe permet de les distinguer.
	fallbackRefPrefix = "offline_"

	// Marqueur de "paiement" pour le contre-remboursement
	codRefPrefix = "cod_"

	deliveryOffset = 7 * 24 * time.Hour
	gatewayTimeout = 8 * time.Second
)

// Modes retournés à la création, pour que le front sache quoi afficher
const (
	GatewayModeOnline   = "online"
	GatewayModeFallback = "fallback"
)

// GatewayClient : le sous-ensemble de la passerelle dont le service a besoin.
type GatewayClient interface {
	CreateRemoteOrder(ctx context.Context, amountMinor int64, currency string, notes map[string]string) (string, error)
	VerifySignature(remoteOrderRef, remotePaymentRef, signature string) (bool, error)
}

// IdempotencyStore relie un jeton de création à l'identifiant de la commande
// qu'il a produite. Remember n'est appelé qu'après persistance réussie : un
// jeton ne doit jamais pointer vers une commande qui n'a pas été écrite.
type IdempotencyStore interface {
	Existing(ctx context.Context, token string) (orderID string, found bool, err error)
	Remember(ctx context.Context, token, orderID string) error
}

// Service orchestre création, vérification et transitions de commandes.
type Service struct {
	store   Store
	catalog Catalog
	gateway GatewayClient
	idem    IdempotencyStore

	// SkipVerification court-circuite le contrôle de signature (environnements
	// de test uniquement). Un seul interrupteur, pas de chemin de code caché.
	SkipVerification bool

	now func() time.Time
}

func NewService(store Store, catalog Catalog, gw GatewayClient, idem IdempotencyStore) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		gateway: gw,
		idem:    idem,
		now:     time.Now,
	}
}

// =============================================
// CRÉATION DE COMMANDE
// =============================================

type SubmittedItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequest struct {
	UserID         string
	Items          []SubmittedItem
	Shipping       models.ShippingAddress
	PaymentMethod  string
	IdempotencyKey string
}

type CreateOrderResult struct {
	Order       models.Order
	AmountMinor int64
	Currency    string
	GatewayMode string
	Reused      bool // jeton d'idempotence déjà consommé : commande existante
}

// CreateOrder valide la soumission, fige les lignes depuis le catalogue,
// tente la création côté passerelle et persiste la commande en PENDING.
// Une panne passerelle ne fait PAS échouer le checkout : on bascule sur une
// référence de repli pour ne pas perdre l'intention d'achat.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error) {
	if err := validateCreateRequest(req); err != nil {
		return CreateOrderResult{}, err
	}

	method, err := ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return CreateOrderResult{}, fmt.Errorf("%w: %v", ErrInvalidOrderRequest, err)
	}

	// Prix figés côté serveur : le total déclaré par le client est ignoré
	items := make([]models.OrderItem, 0, len(req.Items))
	var totalPrice float64
	var totalItems int
	for _, sub := range req.Items {
		p, err := s.catalog.Product(ctx, sub.ProductID)
		if err != nil {
			return CreateOrderResult{}, err
		}
		items = append(items, models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Category:  p.Category,
			Brand:     p.Brand,
			Price:     p.Price,
			Quantity:  sub.Quantity,
			Image:     p.Image,
		})
		totalPrice += p.Price * float64(sub.Quantity)
		totalItems += sub.Quantity
	}

	amountMinor := int64(math.Round(totalPrice * 100))
	orderID := uuid.NewString()

	// Jeton d'idempotence : un retry client ne doit pas dupliquer la commande
	if req.IdempotencyKey != "" && s.idem != nil {
		existingID, found, err := s.idem.Existing(ctx, req.IdempotencyKey)
		if err != nil {
			log.Printf("⚠️ Lecture idempotence échouée (%v), on continue sans garde", err)
		} else if found {
			existing, err := s.store.FindByID(ctx, existingID)
			if err == nil {
				return CreateOrderResult{
					Order:       existing,
					AmountMinor: int64(math.Round(existing.TotalPrice * 100)),
					Currency:    Currency,
					GatewayMode: gatewayModeOf(existing),
					Reused:      true,
				}, nil
			}
			if !errors.Is(err, ErrOrderNotFound) {
				return CreateOrderResult{}, err
			}
			// Jeton orphelin : la commande référencée n'existe pas (ou plus),
			// le retry est traité comme une première soumission
			log.Printf("⚠️ Jeton d'idempotence orphelin (commande %s absente), recréation", existingID)
		}
	}

	// Création de la commande distante, avec timeout dédié : un dépassement
	// est une indisponibilité passerelle, pas un échec du checkout
	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	mode := GatewayModeOnline
	gatewayRef, err := s.gateway.CreateRemoteOrder(gwCtx, amountMinor, Currency, map[string]string{
		"local_order_id": orderID,
		"user_id":        req.UserID,
	})
	if err != nil {
		if !errors.Is(err, gateway.ErrGatewayUnavailable) {
			return CreateOrderResult{}, fmt.Errorf("%w: %v", ErrInvalidOrderRequest, err)
		}
		gatewayRef = fallbackRefPrefix + uuid.NewString()
		mode = GatewayModeFallback
		log.Printf("⚠️ Passerelle indisponible, référence de repli %s pour la commande %s", gatewayRef, orderID)
	}

	now := s.now()
	order := models.Order{
		ID:                orderID,
		UserID:            req.UserID,
		Items:             items,
		TotalPrice:        totalPrice,
		TotalItems:        totalItems,
		Shipping:          req.Shipping,
		PaymentMethod:     method,
		PaymentStatus:     models.PaymentPending,
		Status:            models.OrderPending,
		GatewayOrderRef:   gatewayRef,
		CreatedAt:         now,
		EstimatedDelivery: now.Add(deliveryOffset),
	}

	if err := s.store.Insert(ctx, order); err != nil {
		return CreateOrderResult{}, err
	}

	// Le jeton n'est mémorisé qu'une fois la commande écrite : une insertion
	// échouée laisse le retry libre de recréer
	if req.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.Remember(ctx, req.IdempotencyKey, orderID); err != nil {
			log.Printf("⚠️ Mémorisation du jeton d'idempotence échouée: %v", err)
		}
	}
	log.Printf("🧾 Commande %s créée (%d articles, %.2f %s, mode %s)", orderID, totalItems, totalPrice, Currency, mode)

	return CreateOrderResult{
		Order:       order,
		AmountMinor: amountMinor,
		Currency:    Currency,
		GatewayMode: mode,
	}, nil
}

func validateCreateRequest(req CreateOrderRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: utilisateur manquant", ErrInvalidOrderRequest)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: panier vide", ErrInvalidOrderRequest)
	}
	for _, item := range req.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: identifiant produit manquant", ErrInvalidOrderRequest)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantité invalide pour %s", ErrInvalidOrderRequest, item.ProductID)
		}
	}

	a := req.Shipping
	fields := map[string]string{
		"full_name": a.FullName,
		"email":     a.Email,
		"phone":     a.Phone,
		"address":   a.Address,
		"city":      a.City,
		"state":     a.State,
		"zip_code":  a.ZipCode,
	}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: champ d'adresse %s manquant", ErrInvalidOrderRequest, name)
		}
	}
	return nil
}

// IsFallbackRef distingue une référence locale de repli d'une vraie
// référence passerelle.
func IsFallbackRef(ref string) bool {
	return strings.HasPrefix(ref, fallbackRefPrefix)
}

func gatewayModeOf(o models.Order) string {
	if IsFallbackRef(o.GatewayOrderRef) {
		return GatewayModeFallback
	}
	return GatewayModeOnline
}

// =============================================
// VÉRIFICATION DE PAIEMENT
// =============================================

type VerifyPaymentRequest struct {
	UserID           string
	OrderID          string
	RemoteOrderRef   string
	RemotePaymentRef string
	Signature        string
}

// VerifyPayment authentifie une preuve de paiement et confirme la commande.
// Deux chemins disjoints selon le moyen de paiement ENREGISTRÉ sur la
// commande (jamais celui envoyé par le client, qui pourrait choisir le
// chemin sans signature).
func (s *Service) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (models.Order, error) {
	order, err := s.lookupOwned(ctx, req.OrderID, req.UserID)
	if err != nil {
		return models.Order{}, err
	}

	// Revérification d'une commande déjà confirmée : idempotent, on renvoie
	// l'état stocké tel quel
	if order.Status != models.OrderPending {
		return order, nil
	}

	if order.PaymentMethod == MethodCashOnDelivery {
		return s.confirmCashOnDelivery(ctx, order)
	}
	return s.confirmOnlinePayment(ctx, order, req)
}

// Contre-remboursement : pas de preuve cryptographique, l'argent n'est pas
// encore encaissé. paymentStatus reste PENDING, paidAt reste vide.
func (s *Service) confirmCashOnDelivery(ctx context.Context, order models.Order) (models.Order, error) {
	order.Status = models.OrderConfirmed
	order.PaymentStatus = models.PaymentPending
	order.GatewayPaymentRef = codRefPrefix + uuid.NewString()
	order.PaidAt = nil

	return s.persistPayment(ctx, order)
}

func (s *Service) confirmOnlinePayment(ctx context.Context, order models.Order, req VerifyPaymentRequest) (models.Order, error) {
	if !s.SkipVerification {
		// Une signature ne vaut que pour la commande passerelle qu'elle couvre ;
		// les références de repli n'ont jamais eu de pendant distant
		if !IsFallbackRef(order.GatewayOrderRef) && req.RemoteOrderRef != order.GatewayOrderRef {
			return models.Order{}, fmt.Errorf("%w: référence passerelle inattendue", ErrPaymentVerificationFailed)
		}

		ok, err := s.gateway.VerifySignature(req.RemoteOrderRef, req.RemotePaymentRef, req.Signature)
		if err != nil {
			return models.Order{}, fmt.Errorf("%w: %v", ErrPaymentVerificationFailed, err)
		}
		if !ok {
			// La commande reste en PENDING : le paiement a peut-être réussi et
			// seule la preuve est corrompue. Un humain tranchera.
			return models.Order{}, ErrPaymentVerificationFailed
		}
	}

	now := s.now()
	order.PaymentStatus = models.PaymentCompleted
	order.Status = models.OrderConfirmed
	order.GatewayPaymentRef = req.RemotePaymentRef
	order.GatewaySignature = req.Signature
	order.PaidAt = &now

	return s.persistPayment(ctx, order)
}

func (s *Service) persistPayment(ctx context.Context, order models.Order) (models.Order, error) {
	applied, err := s.store.ApplyPayment(ctx, order)
	if err != nil {
		return models.Order{}, err
	}
	if !applied {
		// Une vérification concurrente a gagné le CAS : on renvoie son résultat
		log.Printf("🔁 Vérification concurrente sur la commande %s, relecture", order.ID)
		return s.store.FindByID(ctx, order.ID)
	}
	log.Printf("✅ Commande %s confirmée (paiement %s)", order.ID, order.PaymentStatus)
	return order, nil
}

// =============================================
// TRANSITIONS DE STATUT (admin)
// =============================================

// UpdateStatus applique une transition administrative. Le statut de paiement
// n'est jamais touché ici.
func (s *Service) UpdateStatus(ctx context.Context, orderID, requested string) (models.Order, error) {
	status, err := ParseOrderStatus(requested)
	if err != nil {
		return models.Order{}, err
	}

	order, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}

	if err := CheckTransition(order.Status, status); err != nil {
		return models.Order{}, err
	}

	applied, err := s.store.UpdateStatus(ctx, orderID, order.Status, status)
	if err != nil {
		return models.Order{}, err
	}
	if !applied {
		// L'état a bougé sous nos pieds : la précondition n'est plus vraie
		return models.Order{}, fmt.Errorf("%w: la commande a changé d'état entre-temps", ErrInvalidTransition)
	}

	order.Status = status
	return order, nil
}

// =============================================
// LECTURES
// =============================================

func (s *Service) OrdersOf(ctx context.Context, userID string) ([]models.Order, error) {
	return s.store.ListByUser(ctx, userID)
}

// Get renvoie une commande à son propriétaire, ou à un admin.
func (s *Service) Get(ctx context.Context, orderID, userID string, isAdmin bool) (models.Order, error) {
	if isAdmin {
		return s.store.FindByID(ctx, orderID)
	}
	return s.lookupOwned(ctx, orderID, userID)
}

func (s *Service) AllOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.ListAll(ctx)
}

func (s *Service) Delete(ctx context.Context, orderID string) error {
	return s.store.Delete(ctx, orderID)
}

// lookupOwned traite "commande d'un autre" exactement comme "introuvable"
func (s *Service) lookupOwned(ctx context.Context, orderID, userID string) (models.Order, error) {
	order, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.UserID != userID {
		return models.Order{}, ErrOrderNotFound
	}
	return order, nil
}
