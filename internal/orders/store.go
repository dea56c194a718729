package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"veyra_back_end/internal/database"
	"veyra_back_end/internal/models"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// Store : persistance des commandes. Les écritures de statut passent par des
// CAS (LWT côté ScyllaDB) pour que deux vérifications concurrentes ne
// s'écrasent pas silencieusement.
type Store interface {
	Insert(ctx context.Context, o models.Order) error
	FindByID(ctx context.Context, id string) (models.Order, error)
	// ApplyPayment persiste le résultat d'une vérification de paiement.
	// CAS sur status = PENDING ; retourne false si la commande a déjà bougé.
	ApplyPayment(ctx context.Context, o models.Order) (bool, error)
	// UpdateStatus applique une transition admin. CAS sur le statut attendu.
	UpdateStatus(ctx context.Context, id, from, to string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
	Delete(ctx context.Context, id string) error
}

// Catalog fournit l'instantané produit au moment de la commande.
// C'est la seule consultation du catalogue : aucune revalidation ultérieure.
type Catalog interface {
	Product(ctx context.Context, productID string) (models.ProductSnapshot, error)
}

// =============================================
// IMPLÉMENTATION SCYLLADB
// =============================================

// ScyllaStore écrit dans le keyspace orders : table `orders` par identifiant
// et table de recherche `orders_by_user` (même motif que users_by_email).
type ScyllaStore struct{}

func NewScyllaStore() *ScyllaStore { return &ScyllaStore{} }

const orderColumns = `order_id, user_id, items, total_price, total_items, shipping,
	payment_method, payment_status, status, gateway_order_ref, gateway_payment_ref,
	gateway_signature, paid_at, created_at, estimated_delivery`

func (s *ScyllaStore) Insert(ctx context.Context, o models.Order) error {
	session, err := database.GetOrdersSession()
	if err != nil {
		return err
	}

	orderUUID, err := parseOrderID(o.ID)
	if err != nil {
		return err
	}

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	shippingJSON, err := json.Marshal(o.Shipping)
	if err != nil {
		return err
	}

	var paidAt time.Time
	if o.PaidAt != nil {
		paidAt = *o.PaidAt
	}

	if err := session.Query(`INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orderUUID, o.UserID, string(itemsJSON), o.TotalPrice, o.TotalItems, string(shippingJSON),
		o.PaymentMethod, o.PaymentStatus, o.Status, o.GatewayOrderRef, o.GatewayPaymentRef,
		o.GatewaySignature, paidAt, o.CreatedAt, o.EstimatedDelivery).
		WithContext(ctx).Exec(); err != nil {
		return err
	}

	// Table de recherche par utilisateur (tri par date décroissante)
	return session.Query(`INSERT INTO orders_by_user (user_id, created_at, order_id) VALUES (?, ?, ?)`,
		o.UserID, o.CreatedAt, orderUUID).WithContext(ctx).Exec()
}

func (s *ScyllaStore) FindByID(ctx context.Context, id string) (models.Order, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return models.Order{}, err
	}

	orderUUID, err := parseOrderID(id)
	if err != nil {
		return models.Order{}, ErrOrderNotFound
	}

	o, err := scanOrder(session.Query(`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderUUID).
		WithContext(ctx))
	if err == gocql.ErrNotFound {
		return models.Order{}, ErrOrderNotFound
	}
	return o, err
}

func (s *ScyllaStore) ApplyPayment(ctx context.Context, o models.Order) (bool, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return false, err
	}

	orderUUID, err := parseOrderID(o.ID)
	if err != nil {
		return false, err
	}

	var paidAt time.Time
	if o.PaidAt != nil {
		paidAt = *o.PaidAt
	}

	applied, err := session.Query(`UPDATE orders SET payment_status = ?, status = ?,
		gateway_payment_ref = ?, gateway_signature = ?, paid_at = ?
		WHERE order_id = ? IF status = ?`,
		o.PaymentStatus, o.Status, o.GatewayPaymentRef, o.GatewaySignature, paidAt,
		orderUUID, models.OrderPending).
		WithContext(ctx).MapScanCAS(map[string]interface{}{})
	return applied, err
}

func (s *ScyllaStore) UpdateStatus(ctx context.Context, id, from, to string) (bool, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return false, err
	}

	orderUUID, err := parseOrderID(id)
	if err != nil {
		return false, ErrOrderNotFound
	}

	applied, err := session.Query(`UPDATE orders SET status = ? WHERE order_id = ? IF status = ?`,
		to, orderUUID, from).
		WithContext(ctx).MapScanCAS(map[string]interface{}{})
	return applied, err
}

func (s *ScyllaStore) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query(`SELECT order_id FROM orders_by_user WHERE user_id = ?`, userID).
		WithContext(ctx).Iter()

	var ids []gocql.UUID
	var oid gocql.UUID
	for iter.Scan(&oid) {
		ids = append(ids, oid)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		o, err := scanOrder(session.Query(`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, id).
			WithContext(ctx))
		if err == gocql.ErrNotFound {
			continue // supprimée entre-temps par un admin
		}
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *ScyllaStore) ListAll(ctx context.Context) ([]models.Order, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query(`SELECT ` + orderColumns + ` FROM orders`).WithContext(ctx).Iter()

	var orders []models.Order
	for {
		o, ok, err := scanOrderIter(iter)
		if err != nil {
			iter.Close()
			return nil, err
		}
		if !ok {
			break
		}
		orders = append(orders, o)
	}
	return orders, iter.Close()
}

func (s *ScyllaStore) Delete(ctx context.Context, id string) error {
	session, err := database.GetOrdersSession()
	if err != nil {
		return err
	}

	o, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}

	orderUUID, _ := parseOrderID(id)
	if err := session.Query(`DELETE FROM orders WHERE order_id = ?`, orderUUID).
		WithContext(ctx).Exec(); err != nil {
		return err
	}
	return session.Query(`DELETE FROM orders_by_user WHERE user_id = ? AND created_at = ? AND order_id = ?`,
		o.UserID, o.CreatedAt, orderUUID).WithContext(ctx).Exec()
}

// =============================================
// CATALOGUE (keyspace products)
// =============================================

// ScyllaCatalog lit les produits tels que le service catalogue les stocke.
type ScyllaCatalog struct{}

func NewScyllaCatalog() *ScyllaCatalog { return &ScyllaCatalog{} }

func (c *ScyllaCatalog) Product(ctx context.Context, productID string) (models.ProductSnapshot, error) {
	session, err := database.GetProductsSession()
	if err != nil {
		return models.ProductSnapshot{}, err
	}

	pid, err := uuid.Parse(productID)
	if err != nil {
		return models.ProductSnapshot{}, fmt.Errorf("%w: identifiant produit invalide %q", ErrInvalidOrderRequest, productID)
	}

	var p models.ProductSnapshot
	err = session.Query(`SELECT name, category, brand, price, stock, image FROM products WHERE product_id = ?`,
		gocql.UUID(pid)).WithContext(ctx).
		Scan(&p.Name, &p.Category, &p.Brand, &p.Price, &p.Stock, &p.Image)
	if err == gocql.ErrNotFound {
		return models.ProductSnapshot{}, fmt.Errorf("%w: produit introuvable %q", ErrInvalidOrderRequest, productID)
	}
	if err != nil {
		return models.ProductSnapshot{}, err
	}
	p.ID = productID
	return p, nil
}

// =============================================
// HELPERS DE SCAN
// =============================================

func parseOrderID(id string) (gocql.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return gocql.UUID{}, fmt.Errorf("identifiant de commande invalide: %q", id)
	}
	return gocql.UUID(uid), nil
}

func scanOrder(q *gocql.Query) (models.Order, error) {
	var o models.Order
	var orderUUID gocql.UUID
	var itemsJSON, shippingJSON string
	var paidAt time.Time

	err := q.Scan(&orderUUID, &o.UserID, &itemsJSON, &o.TotalPrice, &o.TotalItems, &shippingJSON,
		&o.PaymentMethod, &o.PaymentStatus, &o.Status, &o.GatewayOrderRef, &o.GatewayPaymentRef,
		&o.GatewaySignature, &paidAt, &o.CreatedAt, &o.EstimatedDelivery)
	if err != nil {
		return models.Order{}, err
	}
	return assembleOrder(o, orderUUID, itemsJSON, shippingJSON, paidAt)
}

func scanOrderIter(iter *gocql.Iter) (models.Order, bool, error) {
	var o models.Order
	var orderUUID gocql.UUID
	var itemsJSON, shippingJSON string
	var paidAt time.Time

	if !iter.Scan(&orderUUID, &o.UserID, &itemsJSON, &o.TotalPrice, &o.TotalItems, &shippingJSON,
		&o.PaymentMethod, &o.PaymentStatus, &o.Status, &o.GatewayOrderRef, &o.GatewayPaymentRef,
		&o.GatewaySignature, &paidAt, &o.CreatedAt, &o.EstimatedDelivery) {
		return models.Order{}, false, nil
	}

	order, err := assembleOrder(o, orderUUID, itemsJSON, shippingJSON, paidAt)
	return order, err == nil, err
}

func assembleOrder(o models.Order, orderUUID gocql.UUID, itemsJSON, shippingJSON string, paidAt time.Time) (models.Order, error) {
	o.ID = orderUUID.String()
	if err := json.Unmarshal([]byte(itemsJSON), &o.Items); err != nil {
		return models.Order{}, err
	}
	if err := json.Unmarshal([]byte(shippingJSON), &o.Shipping); err != nil {
		return models.Order{}, err
	}
	if !paidAt.IsZero() {
		o.PaidAt = &paidAt
	}
	return o, nil
}
