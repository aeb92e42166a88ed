package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	t *testing.T

	tokenRequests   int
	executeRequests int
	refundBody      map[string]interface{}
	failExecute     bool
}

func (s *stubProvider) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		s.tokenRequests++
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-1",
			"expires_in":   3600,
		})
	})

	mux.HandleFunc("/v1/payments/payment", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]interface{}
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(s.t, "sale", body["intent"])
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "PAY-123",
			"links": []map[string]string{
				{"rel": "self", "href": "https://example.com/self"},
				{"rel": "approval_url", "href": "https://example.com/approve"},
			},
		})
	})

	mux.HandleFunc("/v1/payments/payment/PAY-123/execute", func(w http.ResponseWriter, r *http.Request) {
		s.executeRequests++
		if s.failExecute {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(paypalErrorBody{
				Name:    "INSTRUMENT_DECLINED",
				Message: "the instrument was declined",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"state": "approved"})
	})

	mux.HandleFunc("/v1/payments/payment/PAY-123", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "PAY-123",
			"transactions": []map[string]interface{}{{
				"related_resources": []map[string]interface{}{
					{"sale": map[string]string{"id": "SALE-9"}},
				},
			}},
		})
	})

	mux.HandleFunc("/v1/payments/sale/SALE-9/refund", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&s.refundBody))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"state": "completed"})
	})

	return mux
}

func newTestClient(t *testing.T, stub *stubProvider) *PayPalClient {
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return NewPayPalClientWithBaseURL(srv.URL, "client", "secret")
}

func TestCreatePayment(t *testing.T) {
	stub := &stubProvider{t: t}
	client := newTestClient(t, stub)

	created, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount:      decimal.RequireFromString("100.00"),
		Currency:    "USD",
		Description: "Book purchase: Kobzar",
		ReturnURL:   "http://localhost:5173/book/1",
		CancelURL:   "http://localhost:5173/book/1?cancelled=true",
	})
	require.NoError(t, err)
	assert.Equal(t, "PAY-123", created.PaymentID)
	assert.Equal(t, "https://example.com/approve", created.ApprovalURL)
}

func TestExecutePaymentReusesToken(t *testing.T) {
	stub := &stubProvider{t: t}
	client := newTestClient(t, stub)

	require.NoError(t, client.ExecutePayment(context.Background(), "PAY-123", "PAYER-7"))
	require.NoError(t, client.ExecutePayment(context.Background(), "PAY-123", "PAYER-7"))

	assert.Equal(t, 2, stub.executeRequests)
	assert.Equal(t, 1, stub.tokenRequests, "token should be cached across calls")
}

func TestExecutePaymentProviderError(t *testing.T) {
	stub := &stubProvider{t: t, failExecute: true}
	client := newTestClient(t, stub)

	err := client.ExecutePayment(context.Background(), "PAY-123", "PAYER-7")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
	assert.Contains(t, err.Error(), "INSTRUMENT_DECLINED")
}

func TestRefundResolvesSale(t *testing.T) {
	stub := &stubProvider{t: t}
	client := newTestClient(t, stub)

	err := client.Refund(context.Background(), "PAY-123", decimal.RequireFromString("100.00"), "USD")
	require.NoError(t, err)

	amount, ok := stub.refundBody["amount"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "100.00", amount["total"])
	assert.Equal(t, "USD", amount["currency"])
}
