// Package service implements the transaction lifecycle state machine:
// PENDING -> PAID -> SELLER_CONFIRMED -> COMPLETED, with CANCELLED and
// DISPUTED side branches and deadline-forced transitions.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/avelychko/bookmarket-backend/config"
	"github.com/avelychko/bookmarket-backend/gateway"
	"github.com/avelychko/bookmarket-backend/ledger"
	"github.com/avelychko/bookmarket-backend/metrics"
	"github.com/avelychko/bookmarket-backend/models"
	"github.com/avelychko/bookmarket-backend/store"
)

// Service drives all transaction status transitions. Every mutating operation
// runs inside store.Transition, so concurrent triggers on the same row
// serialize and side effects apply exactly once; the losing caller sees the
// already-advanced status as ErrInvalidState.
type Service struct {
	store   store.Store
	gateway gateway.Gateway
	cfg     config.PaymentsConfig
	logger  zerolog.Logger

	// now is the wall clock, injectable for deadline tests.
	now func() time.Time
}

func New(st store.Store, gw gateway.Gateway, cfg config.PaymentsConfig, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		gateway: gw,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// InitiateResult is returned to the buyer after a purchase is initiated.
type InitiateResult struct {
	TransactionID uint   `json:"transaction_id"`
	ApprovalURL   string `json:"approval_url"`
}

// Initiate starts a purchase: validates the listing, computes the money
// split, registers the payment with the provider, and persists the PENDING
// transaction. The provider call precedes the local insert, so a provider
// failure leaves no local state behind.
func (s *Service) Initiate(ctx context.Context, listingID, buyerID uint) (*InitiateResult, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, s.wrapStoreErr(err, "listing %d", listingID)
	}
	if listing.IsSold {
		return nil, fmt.Errorf("%w: listing %d is already sold", ErrInvalidState, listingID)
	}
	if listing.UserID == buyerID {
		return nil, fmt.Errorf("%w: cannot buy your own listing", ErrValidation)
	}

	commission, sellerAmount := ledger.Split(listing.Price, s.cfg.CommissionPercent)
	sellerDeadline := s.now().Add(s.cfg.SellerConfirmationWindow)

	listingURL := fmt.Sprintf("%s/book/%d", s.cfg.FrontendBaseURL, listingID)
	created, err := s.gateway.CreatePayment(ctx, gateway.CreatePaymentRequest{
		Amount:      listing.Price,
		Currency:    s.cfg.Currency,
		Description: fmt.Sprintf("Book purchase: %s", listing.Title),
		ReturnURL:   listingURL,
		CancelURL:   listingURL + "?cancelled=true",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create payment: %v", ErrGateway, err)
	}

	txn := &models.Transaction{
		ListingID:                  listing.ID,
		BuyerID:                    buyerID,
		SellerID:                   listing.UserID,
		Amount:                     listing.Price,
		PlatformCommission:         commission,
		SellerAmount:               sellerAmount,
		ProviderPaymentID:          &created.PaymentID,
		Status:                     models.StatusPending,
		SellerConfirmationDeadline: &sellerDeadline,
	}
	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	metrics.TransactionTransitions.WithLabelValues(string(models.StatusPending)).Inc()
	s.logger.Info().
		Uint("transaction_id", txn.ID).
		Uint("listing_id", listingID).
		Uint("buyer_id", buyerID).
		Str("amount", listing.Price.StringFixed(2)).
		Msg("transaction initiated")

	return &InitiateResult{TransactionID: txn.ID, ApprovalURL: created.ApprovalURL}, nil
}

// Execute captures the approved payment identified by the provider payment
// id. Success commits PAID and marks the listing sold in the same unit; a
// provider execute failure commits CANCELLED and reports ErrGateway.
func (s *Service) Execute(ctx context.Context, paymentID, payerID string, actorID uint) error {
	txn, err := s.store.GetTransactionByProviderID(ctx, paymentID)
	if err != nil {
		return s.wrapStoreErr(err, "payment %s", paymentID)
	}
	if txn.BuyerID != actorID {
		return fmt.Errorf("%w: only the buyer can execute the payment", ErrForbidden)
	}

	var gatewayErr error
	err = s.store.Transition(ctx, txn.ID, func(txn *models.Transaction, listing *models.BookListing) error {
		if txn.Status != models.StatusPending {
			return fmt.Errorf("%w: transaction is %s, expected %s", ErrInvalidState, txn.Status, models.StatusPending)
		}

		// Provider call before the local commit; the row lock is held so a
		// racing execute cannot double-capture.
		if gatewayErr = s.gateway.ExecutePayment(ctx, paymentID, payerID); gatewayErr != nil {
			txn.Status = models.StatusCancelled
			return nil
		}

		txn.Status = models.StatusPaid
		listing.IsSold = true
		return nil
	})
	if err != nil {
		return err
	}

	if gatewayErr != nil {
		metrics.TransactionTransitions.WithLabelValues(string(models.StatusCancelled)).Inc()
		s.logger.Warn().
			Uint("transaction_id", txn.ID).
			Err(gatewayErr).
			Msg("payment execution failed, transaction cancelled")
		return fmt.Errorf("%w: execute payment: %v", ErrGateway, gatewayErr)
	}

	metrics.TransactionTransitions.WithLabelValues(string(models.StatusPaid)).Inc()
	s.logger.Info().Uint("transaction_id", txn.ID).Msg("payment executed")
	return nil
}

// Cancel aborts a PENDING payment at the buyer's request (provider cancel
// redirect). No money has moved, so the only effect is the status change.
func (s *Service) Cancel(ctx context.Context, paymentID string, actorID uint) error {
	txn, err := s.store.GetTransactionByProviderID(ctx, paymentID)
	if err != nil {
		return s.wrapStoreErr(err, "payment %s", paymentID)
	}
	if txn.BuyerID != actorID {
		return fmt.Errorf("%w: only the buyer can cancel the payment", ErrForbidden)
	}

	err = s.store.Transition(ctx, txn.ID, func(txn *models.Transaction, _ *models.BookListing) error {
		if txn.Status != models.StatusPending {
			return fmt.Errorf("%w: transaction is %s, expected %s", ErrInvalidState, txn.Status, models.StatusPending)
		}
		txn.Status = models.StatusCancelled
		return nil
	})
	if err != nil {
		return err
	}

	metrics.TransactionTransitions.WithLabelValues(string(models.StatusCancelled)).Inc()
	s.logger.Info().Uint("transaction_id", txn.ID).Msg("payment cancelled by buyer")
	return nil
}

// SellerConfirm records the seller's shipment confirmation. Confirming after
// the seller deadline instead refunds the buyer in full and cancels the
// transaction; a refund failure leaves the transaction PAID for retry.
func (s *Service) SellerConfirm(ctx context.Context, txnID, actorID uint) error {
	var expired bool
	err := s.store.Transition(ctx, txnID, func(txn *models.Transaction, listing *models.BookListing) error {
		if txn.SellerID != actorID {
			return fmt.Errorf("%w: only the seller can confirm shipment", ErrForbidden)
		}
		if txn.Status != models.StatusPaid {
			return fmt.Errorf("%w: transaction is %s, expected %s", ErrInvalidState, txn.Status, models.StatusPaid)
		}

		now := s.now()
		if txn.SellerConfirmationDeadline != nil && now.After(*txn.SellerConfirmationDeadline) {
			// Forced cancel: refund the full amount before committing
			// anything. A refund failure aborts the whole transition.
			if txn.ProviderPaymentID == nil {
				return fmt.Errorf("%w: transaction %d has no provider payment", ErrGateway, txn.ID)
			}
			if err := s.gateway.Refund(ctx, *txn.ProviderPaymentID, txn.Amount, s.cfg.Currency); err != nil {
				return fmt.Errorf("%w: refund: %v", ErrGateway, err)
			}
			txn.Status = models.StatusCancelled
			listing.IsSold = false
			expired = true
			return nil
		}

		buyerDeadline := now.Add(s.cfg.BuyerConfirmationWindow)
		txn.Status = models.StatusSellerConfirmed
		txn.BuyerConfirmationDeadline = &buyerDeadline
		return nil
	})
	if err != nil {
		return err
	}

	if expired {
		metrics.TransactionTransitions.WithLabelValues(string(models.StatusCancelled)).Inc()
		s.logger.Warn().Uint("transaction_id", txnID).Msg("seller confirmed too late, transaction refunded and cancelled")
		return fmt.Errorf("%w: transaction cancelled and refunded", ErrDeadlineExpired)
	}

	metrics.TransactionTransitions.WithLabelValues(string(models.StatusSellerConfirmed)).Inc()
	s.logger.Info().Uint("transaction_id", txnID).Msg("seller confirmed shipment")
	return nil
}

// BuyerConfirm records the buyer's receipt confirmation and completes the
// transaction. BUYER_CONFIRMED is transient: the row goes straight to
// COMPLETED in one commit.
func (s *Service) BuyerConfirm(ctx context.Context, txnID, actorID uint) error {
	err := s.store.Transition(ctx, txnID, func(txn *models.Transaction, _ *models.BookListing) error {
		if txn.BuyerID != actorID {
			return fmt.Errorf("%w: only the buyer can confirm receipt", ErrForbidden)
		}
		if txn.Status != models.StatusSellerConfirmed {
			return fmt.Errorf("%w: transaction is %s, expected %s", ErrInvalidState, txn.Status, models.StatusSellerConfirmed)
		}
		txn.Status = models.StatusCompleted
		return nil
	})
	if err != nil {
		return err
	}

	metrics.TransactionTransitions.WithLabelValues(string(models.StatusCompleted)).Inc()
	s.logger.Info().Uint("transaction_id", txnID).Msg("buyer confirmed receipt, transaction completed")
	return nil
}

// BuyerDispute opens a dispute on a shipped transaction. Disputing after the
// buyer deadline instead force-completes the transaction and reports
// ErrDeadlineExpired.
func (s *Service) BuyerDispute(ctx context.Context, txnID, actorID uint) error {
	var expired bool
	err := s.store.Transition(ctx, txnID, func(txn *models.Transaction, _ *models.BookListing) error {
		if txn.BuyerID != actorID {
			return fmt.Errorf("%w: only the buyer can open a dispute", ErrForbidden)
		}
		if txn.Status != models.StatusSellerConfirmed {
			return fmt.Errorf("%w: transaction is %s, expected %s", ErrInvalidState, txn.Status, models.StatusSellerConfirmed)
		}
		if txn.BuyerConfirmationDeadline != nil && s.now().After(*txn.BuyerConfirmationDeadline) {
			txn.Status = models.StatusCompleted
			expired = true
			return nil
		}
		txn.Status = models.StatusDisputed
		return nil
	})
	if err != nil {
		return err
	}

	if expired {
		metrics.TransactionTransitions.WithLabelValues(string(models.StatusCompleted)).Inc()
		s.logger.Warn().Uint("transaction_id", txnID).Msg("dispute after deadline, transaction force-completed")
		return fmt.Errorf("%w: transaction completed", ErrDeadlineExpired)
	}

	metrics.TransactionTransitions.WithLabelValues(string(models.StatusDisputed)).Inc()
	s.logger.Info().Uint("transaction_id", txnID).Msg("buyer opened dispute")
	return nil
}

// ForceComplete completes a SELLER_CONFIRMED transaction whose buyer deadline
// has elapsed. Used by the reconciliation sweep; a row that advanced in the
// meantime yields ErrInvalidState and is treated as a lost race.
func (s *Service) ForceComplete(ctx context.Context, txnID uint) error {
	err := s.store.Transition(ctx, txnID, func(txn *models.Transaction, _ *models.BookListing) error {
		if txn.Status != models.StatusSellerConfirmed {
			return fmt.Errorf("%w: transaction is %s, expected %s", ErrInvalidState, txn.Status, models.StatusSellerConfirmed)
		}
		if txn.BuyerConfirmationDeadline == nil || s.now().Before(*txn.BuyerConfirmationDeadline) {
			return fmt.Errorf("%w: buyer confirmation deadline has not elapsed", ErrInvalidState)
		}
		txn.Status = models.StatusCompleted
		return nil
	})
	if err != nil {
		return err
	}

	metrics.TransactionTransitions.WithLabelValues(string(models.StatusCompleted)).Inc()
	return nil
}

// ListPurchases returns the transactions where the user is the buyer.
func (s *Service) ListPurchases(ctx context.Context, userID uint) ([]models.Transaction, error) {
	return s.store.ListTransactionsByBuyer(ctx, userID)
}

// ListSales returns the transactions where the user is the seller.
func (s *Service) ListSales(ctx context.Context, userID uint) ([]models.Transaction, error) {
	return s.store.ListTransactionsBySeller(ctx, userID)
}

func (s *Service) wrapStoreErr(err error, format string, args ...interface{}) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
