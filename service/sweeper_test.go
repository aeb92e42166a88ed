package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelychko/bookmarket-backend/models"
)

func newSweeperFixture(t *testing.T) (*fixture, *Sweeper) {
	f := newFixture(t)
	return f, NewSweeper(f.svc, f.store, zerolog.Nop())
}

// seedSellerConfirmed creates an extra listing and drives a transaction on it
// to SELLER_CONFIRMED with the given buyer deadline.
func seedSellerConfirmed(t *testing.T, f *fixture, deadline time.Time) uint {
	ctx := context.Background()

	listing := &models.BookListing{
		UserID: f.seller.ID,
		Title:  "Another book",
		Price:  f.listing.Price,
	}
	require.NoError(t, f.store.CreateListing(ctx, listing))

	pid := "PAY-sweep-" + time.Now().Format("150405.000000000")
	txn := &models.Transaction{
		ListingID:                 listing.ID,
		BuyerID:                   f.buyer.ID,
		SellerID:                  f.seller.ID,
		Amount:                    listing.Price,
		ProviderPaymentID:         &pid,
		Status:                    models.StatusSellerConfirmed,
		BuyerConfirmationDeadline: &deadline,
	}
	require.NoError(t, f.store.CreateTransaction(ctx, txn))
	return txn.ID
}

func TestSweepCompletesExpiredOnly(t *testing.T) {
	f, sweeper := newSweeperFixture(t)
	now := f.clock()

	expired1 := seedSellerConfirmed(t, f, now.Add(-time.Hour))
	expired2 := seedSellerConfirmed(t, f, now.Add(-time.Minute))
	future := seedSellerConfirmed(t, f, now.Add(time.Hour))
	paid := f.toPaid(t)

	completed, failed := sweeper.Sweep(context.Background())
	assert.Equal(t, 2, completed)
	assert.Equal(t, 0, failed)

	assert.Equal(t, models.StatusCompleted, f.status(t, expired1))
	assert.Equal(t, models.StatusCompleted, f.status(t, expired2))
	assert.Equal(t, models.StatusSellerConfirmed, f.status(t, future))
	assert.Equal(t, models.StatusPaid, f.status(t, paid))
}

func TestSweepIsIdempotent(t *testing.T) {
	f, sweeper := newSweeperFixture(t)
	id := seedSellerConfirmed(t, f, f.clock().Add(-time.Hour))

	completed, failed := sweeper.Sweep(context.Background())
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, failed)

	completed, failed = sweeper.Sweep(context.Background())
	assert.Equal(t, 0, completed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, models.StatusCompleted, f.status(t, id))
}

func TestSweepIsolatesFailures(t *testing.T) {
	f, sweeper := newSweeperFixture(t)
	now := f.clock()

	broken := seedSellerConfirmed(t, f, now.Add(-time.Hour))
	healthy := seedSellerConfirmed(t, f, now.Add(-time.Hour))
	f.store.TransitionErr = map[uint]error{broken: errors.New("row update failed")}

	completed, failed := sweeper.Sweep(context.Background())
	assert.Equal(t, 1, completed, "one failing row must not abort the sweep")
	assert.Equal(t, 1, failed)
	assert.Equal(t, models.StatusCompleted, f.status(t, healthy))
	assert.Equal(t, models.StatusSellerConfirmed, f.status(t, broken))
}

func TestSweepRacesBuyerDispute(t *testing.T) {
	f, sweeper := newSweeperFixture(t)
	id := seedSellerConfirmed(t, f, f.clock().Add(-time.Hour))

	done := make(chan error, 1)
	go func() {
		done <- f.svc.BuyerDispute(context.Background(), id, f.buyer.ID)
	}()
	sweeper.Sweep(context.Background())
	disputeErr := <-done

	// Past the deadline a dispute can never win: the sweep and the dispute
	// both force-complete, and whoever loses the race sees the advanced row.
	require.Error(t, disputeErr)
	assert.True(t, errors.Is(disputeErr, ErrDeadlineExpired) || errors.Is(disputeErr, ErrInvalidState),
		"unexpected error: %v", disputeErr)
	assert.Equal(t, models.StatusCompleted, f.status(t, id))
}

func TestSweeperStartStop(t *testing.T) {
	f, sweeper := newSweeperFixture(t)
	f.svc.cfg.SweepInterval = time.Hour

	require.NoError(t, sweeper.Start())
	sweeper.Stop()
}
