// Package store persists listings and transactions, and serializes status
// transitions per transaction row.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/avelychko/bookmarket-backend/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// TransitionFunc mutates a transaction and its listing in place. Returning an
// error aborts the transition; nothing is persisted.
type TransitionFunc func(txn *models.Transaction, listing *models.BookListing) error

// Store is the persistence contract consumed by the transaction engine.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error

	CreateListing(ctx context.Context, listing *models.BookListing) error
	GetListing(ctx context.Context, id uint) (*models.BookListing, error)
	ListListings(ctx context.Context) ([]models.BookListing, error)

	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	GetTransaction(ctx context.Context, id uint) (*models.Transaction, error)
	GetTransactionByProviderID(ctx context.Context, providerID string) (*models.Transaction, error)
	ListTransactionsByBuyer(ctx context.Context, buyerID uint) ([]models.Transaction, error)
	ListTransactionsBySeller(ctx context.Context, sellerID uint) ([]models.Transaction, error)

	// ListExpiredSellerConfirmed returns ids of SELLER_CONFIRMED transactions
	// whose buyer confirmation deadline is at or before now.
	ListExpiredSellerConfirmed(ctx context.Context, now time.Time) ([]uint, error)

	// Transition loads the transaction and its listing under an exclusive
	// per-row lock, applies fn, and commits both rows atomically. Concurrent
	// transitions on the same transaction are serialized; the later one
	// observes the state the earlier one committed.
	Transition(ctx context.Context, id uint, fn TransitionFunc) error
}
