package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRemoteOrder(t *testing.T) {
	var got createOrderRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key_test", user)
		assert.Equal(t, "secret_test", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "order_remote_42"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key_test", "secret_test")

	ref, err := client.CreateRemoteOrder(context.Background(), 200000, "INR", map[string]string{"local_order_id": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "order_remote_42", ref)
	assert.Equal(t, int64(200000), got.Amount)
	assert.Equal(t, "INR", got.Currency)
	assert.Equal(t, "abc", got.Notes["local_order_id"])
}

func TestCreateRemoteOrderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k", "s")

	_, err := client.CreateRemoteOrder(context.Background(), 1000, "INR", nil)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCreateRemoteOrderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // plus personne n'écoute

	client := NewClient(srv.URL, "k", "s")

	_, err := client.CreateRemoteOrder(context.Background(), 1000, "INR", nil)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCreateRemoteOrderRejectsBadInput(t *testing.T) {
	client := NewClient("http://localhost:0", "k", "s")

	_, err := client.CreateRemoteOrder(context.Background(), 0, "INR", nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGatewayUnavailable), "un montant invalide n'est pas une panne passerelle")

	_, err = client.CreateRemoteOrder(context.Background(), 1000, "ROUPIES", nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGatewayUnavailable))
}

func TestVerifySignature(t *testing.T) {
	client := NewClient("http://unused", "k", "secret_partagé")

	sig := SignPayment("secret_partagé", "order_1", "pay_1")

	ok, err := client.VerifySignature("order_1", "pay_1", sig)
	require.NoError(t, err)
	assert.True(t, ok)

	// Signature d'une autre paire de références
	ok, err = client.VerifySignature("order_1", "pay_2", sig)
	require.NoError(t, err)
	assert.False(t, ok)

	// Signature altérée
	ok, err = client.VerifySignature("order_1", "pay_1", sig+"00")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySignatureMalformedInput(t *testing.T) {
	client := NewClient("http://unused", "k", "s")

	_, err := client.VerifySignature("", "pay_1", "deadbeef")
	assert.Error(t, err)

	_, err = client.VerifySignature("order_1", "", "deadbeef")
	assert.Error(t, err)

	_, err = client.VerifySignature("order_1", "pay_1", "")
	assert.Error(t, err)
}
