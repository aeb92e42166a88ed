package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/avelychko/bookmarket-backend/models"
)

// newTestGormStore connects to the database named by TEST_DATABASE_URL, or
// skips the test when it is unset.
func newTestGormStore(t *testing.T) *GormStore {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := NewGormStore(db)
	require.NoError(t, s.AutoMigrate())
	return s
}

func seedTransaction(t *testing.T, s *GormStore, status models.TransactionStatus) *models.Transaction {
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	seller := &models.User{Email: fmt.Sprintf("seller-%d@test", suffix)}
	buyer := &models.User{Email: fmt.Sprintf("buyer-%d@test", suffix)}
	require.NoError(t, s.CreateUser(ctx, seller))
	require.NoError(t, s.CreateUser(ctx, buyer))

	listing := &models.BookListing{
		UserID: seller.ID,
		Title:  "Kobzar",
		Price:  decimal.RequireFromString("100.00"),
	}
	require.NoError(t, s.CreateListing(ctx, listing))

	pid := fmt.Sprintf("PAY-%d", suffix)
	txn := &models.Transaction{
		ListingID:          listing.ID,
		BuyerID:            buyer.ID,
		SellerID:           seller.ID,
		Amount:             listing.Price,
		PlatformCommission: decimal.RequireFromString("5.00"),
		SellerAmount:       decimal.RequireFromString("95.00"),
		ProviderPaymentID:  &pid,
		Status:             status,
	}
	require.NoError(t, s.CreateTransaction(ctx, txn))
	return txn
}

func TestGormStoreRoundTrip(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	txn := seedTransaction(t, s, models.StatusPending)

	got, err := s.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, txn.Amount.Equal(got.Amount))

	byProvider, err := s.GetTransactionByProviderID(ctx, *txn.ProviderPaymentID)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, byProvider.ID)

	_, err = s.GetTransactionByProviderID(ctx, "PAY-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	purchases, err := s.ListTransactionsByBuyer(ctx, txn.BuyerID)
	require.NoError(t, err)
	require.NotEmpty(t, purchases)
	require.NotNil(t, purchases[0].Listing)
	assert.Equal(t, "Kobzar", purchases[0].Listing.Title)
}

func TestGormStoreTransitionCommitsBothRows(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	txn := seedTransaction(t, s, models.StatusPending)

	err := s.Transition(ctx, txn.ID, func(txn *models.Transaction, listing *models.BookListing) error {
		txn.Status = models.StatusPaid
		listing.IsSold = true
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, got.Status)

	listing, err := s.GetListing(ctx, txn.ListingID)
	require.NoError(t, err)
	assert.True(t, listing.IsSold)
}

func TestGormStoreTransitionRollsBackOnError(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	txn := seedTransaction(t, s, models.StatusPending)

	err := s.Transition(ctx, txn.ID, func(txn *models.Transaction, listing *models.BookListing) error {
		txn.Status = models.StatusPaid
		listing.IsSold = true
		return fmt.Errorf("provider exploded")
	})
	require.Error(t, err)

	got, err := s.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	listing, err := s.GetListing(ctx, txn.ListingID)
	require.NoError(t, err)
	assert.False(t, listing.IsSold)
}

func TestGormStoreListExpiredSellerConfirmed(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	expired := seedTransaction(t, s, models.StatusSellerConfirmed)
	pending := seedTransaction(t, s, models.StatusSellerConfirmed)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	require.NoError(t, s.Transition(ctx, expired.ID, func(txn *models.Transaction, _ *models.BookListing) error {
		txn.BuyerConfirmationDeadline = &past
		return nil
	}))
	require.NoError(t, s.Transition(ctx, pending.ID, func(txn *models.Transaction, _ *models.BookListing) error {
		txn.BuyerConfirmationDeadline = &future
		return nil
	}))

	ids, err := s.ListExpiredSellerConfirmed(ctx, time.Now())
	require.NoError(t, err)
	assert.Contains(t, ids, expired.ID)
	assert.NotContains(t, ids, pending.ID)
}
