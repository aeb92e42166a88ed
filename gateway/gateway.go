// Package gateway abstracts the third-party payment provider behind the three
// operations the transaction engine needs: create, execute, refund.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrProvider marks failures reported by the payment provider itself, as
// opposed to transport errors. Callers match it with errors.Is.
var ErrProvider = errors.New("payment provider error")

// CreatePaymentRequest describes a payment to be approved by the buyer.
type CreatePaymentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	ReturnURL   string
	CancelURL   string
}

// CreatedPayment is the provider's handle for an approved-but-unexecuted payment.
type CreatedPayment struct {
	PaymentID   string
	ApprovalURL string
}

// Gateway is the narrow provider contract. Implementations must not mutate
// local state; the transaction engine owns all persistence.
type Gateway interface {
	// CreatePayment registers a payment with the provider and returns the
	// provider payment id plus the URL the buyer must visit to approve it.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatedPayment, error)

	// ExecutePayment captures an approved payment.
	ExecutePayment(ctx context.Context, paymentID, payerID string) error

	// Refund returns the given amount of an executed payment to the buyer.
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal, currency string) error
}
