package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"veyra_back_end/internal/gateway"
	"veyra_back_end/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Doubles de test ---

type fakeStore struct {
	orders  map[string]models.Order
	inserts int

	insertFn       func(models.Order) error
	applyPaymentFn func(models.Order) (bool, error)
	updateStatusFn func(id, from, to string) (bool, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]models.Order)}
}

func (s *fakeStore) Insert(_ context.Context, o models.Order) error {
	if s.insertFn != nil {
		return s.insertFn(o)
	}
	s.inserts++
	s.orders[o.ID] = o
	return nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (s *fakeStore) ApplyPayment(_ context.Context, o models.Order) (bool, error) {
	if s.applyPaymentFn != nil {
		return s.applyPaymentFn(o)
	}
	current, ok := s.orders[o.ID]
	if !ok || current.Status != models.OrderPending {
		return false, nil
	}
	s.orders[o.ID] = o
	return true, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id, from, to string) (bool, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(id, from, to)
	}
	current, ok := s.orders[id]
	if !ok || current.Status != from {
		return false, nil
	}
	current.Status = to
	s.orders[id] = current
	return true, nil
}

func (s *fakeStore) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) ListAll(_ context.Context) ([]models.Order, error) {
	var out []models.Order
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	delete(s.orders, id)
	return nil
}

type fakeCatalog struct {
	products map[string]models.ProductSnapshot
}

func (c *fakeCatalog) Product(_ context.Context, id string) (models.ProductSnapshot, error) {
	p, ok := c.products[id]
	if !ok {
		return models.ProductSnapshot{}, fmt.Errorf("%w: produit introuvable %q", ErrInvalidOrderRequest, id)
	}
	return p, nil
}

type fakeGateway struct {
	createFn func(amountMinor int64, currency string) (string, error)
	verifyFn func(orderRef, paymentRef, signature string) (bool, error)

	createCalls int
	verifyCalls int
}

func (g *fakeGateway) CreateRemoteOrder(_ context.Context, amountMinor int64, currency string, _ map[string]string) (string, error) {
	g.createCalls++
	if g.createFn != nil {
		return g.createFn(amountMinor, currency)
	}
	return "order_remote_1", nil
}

func (g *fakeGateway) VerifySignature(orderRef, paymentRef, signature string) (bool, error) {
	g.verifyCalls++
	if g.verifyFn != nil {
		return g.verifyFn(orderRef, paymentRef, signature)
	}
	return true, nil
}

type fakeIdem struct {
	remembered map[string]string
}

func (i *fakeIdem) Existing(_ context.Context, token string) (string, bool, error) {
	id, ok := i.remembered[token]
	return id, ok, nil
}

func (i *fakeIdem) Remember(_ context.Context, token, orderID string) error {
	i.remembered[token] = orderID
	return nil
}

// --- Montage ---

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]models.ProductSnapshot{
		"p1": {ID: "p1", Name: "Lampe en laiton", Category: "Maison", Brand: "Veyra", Price: 1000, Stock: 12, Image: "p1.jpg"},
		"p2": {ID: "p2", Name: "Tapis tissé", Category: "Maison", Brand: "Atelier", Price: 249.50, Stock: 3, Image: "p2.jpg"},
	}}
}

func newTestService(store *fakeStore, gw *fakeGateway) *Service {
	svc := NewService(store, testCatalog(), gw, &fakeIdem{remembered: make(map[string]string)})
	svc.now = func() time.Time { return testNow }
	return svc
}

func validRequest() CreateOrderRequest {
	return CreateOrderRequest{
		UserID: "user-1",
		Items:  []SubmittedItem{{ProductID: "p1", Quantity: 2}},
		Shipping: models.ShippingAddress{
			FullName: "Asha Rao",
			Email:    "asha@example.com",
			Phone:    "+911234567890",
			Address:  "14 MG Road",
			City:     "Bengaluru",
			State:    "Karnataka",
			ZipCode:  "560001",
		},
		PaymentMethod: "upi",
	}
}

// --- Création ---

func TestCreateOrderComputesServerSideTotals(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	result, err := svc.CreateOrder(context.Background(), validRequest())
	require.NoError(t, err)

	// panier [{prix 1000, qté 2}] → 2000 INR, soit 200000 paise
	assert.Equal(t, int64(200000), result.AmountMinor)
	assert.Equal(t, "INR", result.Currency)
	assert.Equal(t, GatewayModeOnline, result.GatewayMode)
	assert.Equal(t, 1, store.inserts, "exactement une commande persistée")

	o := result.Order
	assert.Equal(t, 2000.0, o.TotalPrice)
	assert.Equal(t, 2, o.TotalItems)
	assert.Equal(t, models.OrderPending, o.Status)
	assert.Equal(t, models.PaymentPending, o.PaymentStatus)
	assert.Equal(t, MethodUPI, o.PaymentMethod)
	assert.Equal(t, "order_remote_1", o.GatewayOrderRef)
	assert.Equal(t, testNow.Add(7*24*time.Hour), o.EstimatedDelivery)
	assert.Nil(t, o.PaidAt)

	// Lignes figées depuis le catalogue, pas depuis le client
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Lampe en laiton", o.Items[0].Name)
	assert.Equal(t, 1000.0, o.Items[0].Price)
}

func TestCreateOrderGatewayDownFallsBack(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{createFn: func(int64, string) (string, error) {
		return "", fmt.Errorf("%w: connexion refusée", gateway.ErrGatewayUnavailable)
	}}
	svc := newTestService(store, gw)

	result, err := svc.CreateOrder(context.Background(), validRequest())
	require.NoError(t, err, "une panne passerelle ne doit pas faire échouer le checkout")

	assert.Equal(t, GatewayModeFallback, result.GatewayMode)
	assert.True(t, IsFallbackRef(result.Order.GatewayOrderRef))
	assert.Equal(t, models.PaymentPending, result.Order.PaymentStatus)
	assert.Equal(t, 1, store.inserts, "l'intention d'achat est conservée")
}

func TestCreateOrderOtherGatewayErrorIsFatal(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{createFn: func(int64, string) (string, error) {
		return "", errors.New("montant invalide")
	}}
	svc := newTestService(store, gw)

	_, err := svc.CreateOrder(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrInvalidOrderRequest)
	assert.Equal(t, 0, store.inserts)
}

func TestCreateOrderValidation(t *testing.T) {
	cases := map[string]func(*CreateOrderRequest){
		"panier vide":       func(r *CreateOrderRequest) { r.Items = nil },
		"quantité nulle":    func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 },
		"quantité négative": func(r *CreateOrderRequest) { r.Items[0].Quantity = -1 },
		"produit sans id":   func(r *CreateOrderRequest) { r.Items[0].ProductID = "" },
		"produit inconnu":   func(r *CreateOrderRequest) { r.Items[0].ProductID = "p404" },
		"ville manquante":   func(r *CreateOrderRequest) { r.Shipping.City = "" },
		"email manquant":    func(r *CreateOrderRequest) { r.Shipping.Email = "   " },
		"sans utilisateur":  func(r *CreateOrderRequest) { r.UserID = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestService(store, &fakeGateway{})

			req := validRequest()
			mutate(&req)

			_, err := svc.CreateOrder(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidOrderRequest)
			assert.Equal(t, 0, store.inserts, "aucun état partiel persisté")
		})
	}
}

func TestCreateOrderRejectsUnknownPaymentMethod(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	req := validRequest()
	req.PaymentMethod = "chèque"

	_, err := svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidOrderRequest)
	assert.ErrorIs(t, err, ErrUnrecognizedPaymentMethod)
	assert.Equal(t, 0, store.inserts)
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	req := validRequest()
	req.IdempotencyKey = "retry-token-1"

	first, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	second, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.Order.ID, second.Order.ID, "un retry ne duplique pas la commande")
	assert.Equal(t, first.AmountMinor, second.AmountMinor)
	assert.Equal(t, 1, store.inserts)
}

func TestCreateOrderIdempotencyKeyRetryAfterFailedInsert(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	req := validRequest()
	req.IdempotencyKey = "retry-token-2"

	// Première tentative : l'écriture échoue, le jeton ne doit pas être consommé
	store.insertFn = func(models.Order) error { return errors.New("écriture refusée") }
	_, err := svc.CreateOrder(context.Background(), req)
	require.Error(t, err)

	// Le retry avec le même jeton crée la commande au lieu de renvoyer
	// "commande introuvable"
	store.insertFn = nil
	result, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Reused)
	assert.Equal(t, 1, store.inserts)

	stored, err := store.FindByID(context.Background(), result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, stored.Status)
}

func TestCreateOrderOrphanIdempotencyTokenIsReclaimed(t *testing.T) {
	store := newFakeStore()
	idem := &fakeIdem{remembered: map[string]string{"retry-token-3": "commande-fantôme"}}
	svc := NewService(store, testCatalog(), &fakeGateway{}, idem)
	svc.now = func() time.Time { return testNow }

	req := validRequest()
	req.IdempotencyKey = "retry-token-3"

	// Le jeton pointe vers une commande qui n'a jamais été écrite :
	// il est traité comme neuf, pas comme un 404
	result, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Reused)
	assert.Equal(t, 1, store.inserts)
	assert.Equal(t, result.Order.ID, idem.remembered["retry-token-3"],
		"le jeton est réassocié à la nouvelle commande")
}

// --- Vérification en ligne ---

func confirmableOrder(t *testing.T, svc *Service, method string) models.Order {
	t.Helper()
	req := validRequest()
	req.PaymentMethod = method
	result, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	return result.Order
}

func TestVerifyPaymentOnlineSuccess(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	created := confirmableOrder(t, svc, "upi")

	updated, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:           "user-1",
		OrderID:          created.ID,
		RemoteOrderRef:   created.GatewayOrderRef,
		RemotePaymentRef: "pay_77",
		Signature:        "sig_ok",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentCompleted, updated.PaymentStatus)
	assert.Equal(t, models.OrderConfirmed, updated.Status)
	assert.Equal(t, "pay_77", updated.GatewayPaymentRef)
	assert.Equal(t, "sig_ok", updated.GatewaySignature)
	require.NotNil(t, updated.PaidAt)
	assert.Equal(t, testNow, *updated.PaidAt)

	// Persisté, pas seulement retourné
	stored, _ := store.FindByID(context.Background(), created.ID)
	assert.Equal(t, models.PaymentCompleted, stored.PaymentStatus)
}

func TestVerifyPaymentBadSignatureLeavesOrderUntouched(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{verifyFn: func(string, string, string) (bool, error) { return false, nil }}
	svc := newTestService(store, gw)

	created := confirmableOrder(t, svc, "card")

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:           "user-1",
		OrderID:          created.ID,
		RemoteOrderRef:   created.GatewayOrderRef,
		RemotePaymentRef: "pay_77",
		Signature:        "sig_forgée",
	})
	assert.ErrorIs(t, err, ErrPaymentVerificationFailed)

	// Jamais de passage automatique en FAILED : réconciliation manuelle
	stored, _ := store.FindByID(context.Background(), created.ID)
	assert.Equal(t, models.OrderPending, stored.Status)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
	assert.Empty(t, stored.GatewayPaymentRef)
}

func TestVerifyPaymentRejectsForeignOrderRef(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	created := confirmableOrder(t, svc, "upi")

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:           "user-1",
		OrderID:          created.ID,
		RemoteOrderRef:   "order_autre",
		RemotePaymentRef: "pay_77",
		Signature:        "sig",
	})
	assert.ErrorIs(t, err, ErrPaymentVerificationFailed)
	assert.Equal(t, 0, gw.verifyCalls, "signature jamais consultée pour une référence étrangère")
}

func TestVerifyPaymentSkipVerificationMode(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{verifyFn: func(string, string, string) (bool, error) { return false, nil }}
	svc := newTestService(store, gw)
	svc.SkipVerification = true

	created := confirmableOrder(t, svc, "upi")

	updated, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:           "user-1",
		OrderID:          created.ID,
		RemotePaymentRef: "pay_sans_preuve",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, updated.PaymentStatus)
	assert.Equal(t, 0, gw.verifyCalls)
}

func TestVerifyPaymentOwnerMismatchIsNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	created := confirmableOrder(t, svc, "upi")

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:  "user-2",
		OrderID: created.ID,
	})
	// Ne pas révéler l'existence de la commande d'un autre
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestVerifyPaymentIdempotentOnConfirmedOrder(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	created := confirmableOrder(t, svc, "upi")

	req := VerifyPaymentRequest{
		UserID:           "user-1",
		OrderID:          created.ID,
		RemoteOrderRef:   created.GatewayOrderRef,
		RemotePaymentRef: "pay_77",
		Signature:        "sig_ok",
	}

	first, err := svc.VerifyPayment(context.Background(), req)
	require.NoError(t, err)

	second, err := svc.VerifyPayment(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second, "revérifier une commande confirmée est idempotent")
	assert.Equal(t, 1, gw.verifyCalls, "la signature n'est contrôlée qu'une fois")
}

func TestVerifyPaymentConcurrentLoserReturnsWinnerState(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	created := confirmableOrder(t, svc, "upi")

	// Le CAS échoue : une vérification concurrente a confirmé entre-temps
	winner := created
	winner.Status = models.OrderConfirmed
	winner.PaymentStatus = models.PaymentCompleted
	winner.GatewayPaymentRef = "pay_gagnant"
	store.applyPaymentFn = func(models.Order) (bool, error) {
		store.orders[created.ID] = winner
		return false, nil
	}

	got, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:           "user-1",
		OrderID:          created.ID,
		RemoteOrderRef:   created.GatewayOrderRef,
		RemotePaymentRef: "pay_perdant",
		Signature:        "sig",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_gagnant", got.GatewayPaymentRef, "le perdant relit l'état du gagnant")
}

// --- Contre-remboursement ---

func TestVerifyPaymentCashOnDelivery(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	created := confirmableOrder(t, svc, "cod")

	updated, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:  "user-1",
		OrderID: created.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderConfirmed, updated.Status)
	assert.Equal(t, models.PaymentPending, updated.PaymentStatus, "l'argent n'est pas encore encaissé")
	assert.Nil(t, updated.PaidAt)
	assert.Contains(t, updated.GatewayPaymentRef, "cod_")
	assert.Equal(t, 0, gw.verifyCalls, "pas de preuve cryptographique en COD")
}

func TestVerifyPaymentCODIgnoresClientSuppliedPath(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{verifyFn: func(string, string, string) (bool, error) { return false, nil }}
	svc := newTestService(store, gw)

	// Commande en ligne : même si le client n'envoie aucune signature,
	// le chemin COD ne doit pas être accessible
	created := confirmableOrder(t, svc, "upi")

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:         "user-1",
		OrderID:        created.ID,
		RemoteOrderRef: created.GatewayOrderRef,
	})
	assert.ErrorIs(t, err, ErrPaymentVerificationFailed)

	stored, _ := store.FindByID(context.Background(), created.ID)
	assert.Equal(t, models.OrderPending, stored.Status)
}

// --- Transitions admin ---

func TestUpdateStatusFollowsStateMachine(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	created := confirmableOrder(t, svc, "cod")
	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{UserID: "user-1", OrderID: created.ID})
	require.NoError(t, err)

	for _, next := range []string{"shipped", "delivered"} {
		updated, err := svc.UpdateStatus(context.Background(), created.ID, next)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, updated.PaymentStatus, "le statut de paiement n'est jamais touché ici")
	}

	// DELIVERED est terminal
	_, err = svc.UpdateStatus(context.Background(), created.ID, "shipped")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.UpdateStatus(context.Background(), created.ID, "cancelled")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusRejectsSkipsAndUnknownOrders(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	created := confirmableOrder(t, svc, "upi")

	// PENDING → SHIPPED saute la confirmation
	_, err := svc.UpdateStatus(context.Background(), created.ID, "shipped")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateStatus(context.Background(), "00000000-0000-0000-0000-000000000000", "confirmed")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatusLostRaceIsReported(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	created := confirmableOrder(t, svc, "upi")
	store.updateStatusFn = func(string, string, string) (bool, error) { return false, nil }

	_, err := svc.UpdateStatus(context.Background(), created.ID, "confirmed")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancellableBeforeDelivery(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	created := confirmableOrder(t, svc, "upi")

	updated, err := svc.UpdateStatus(context.Background(), created.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, updated.Status)

	// Et plus rien ne bouge ensuite
	_, err = svc.UpdateStatus(context.Background(), created.ID, "pending")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
