package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avelychko/bookmarket-backend/models"
)

// GormStore implements Store on a gorm-managed postgres database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the schema for all engine models.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&models.User{}, &models.BookListing{}, &models.Transaction{})
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *GormStore) CreateListing(ctx context.Context, listing *models.BookListing) error {
	return s.db.WithContext(ctx).Create(listing).Error
}

func (s *GormStore) GetListing(ctx context.Context, id uint) (*models.BookListing, error) {
	var listing models.BookListing
	err := s.db.WithContext(ctx).First(&listing, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &listing, nil
}

func (s *GormStore) ListListings(ctx context.Context) ([]models.BookListing, error) {
	var listings []models.BookListing
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&listings).Error
	return listings, err
}

func (s *GormStore) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return s.db.WithContext(ctx).Create(txn).Error
}

func (s *GormStore) GetTransaction(ctx context.Context, id uint) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.WithContext(ctx).First(&txn, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &txn, nil
}

func (s *GormStore) GetTransactionByProviderID(ctx context.Context, providerID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.WithContext(ctx).Where("provider_payment_id = ?", providerID).First(&txn).Error
	if err != nil {
		return nil, translate(err)
	}
	return &txn, nil
}

func (s *GormStore) ListTransactionsByBuyer(ctx context.Context, buyerID uint) ([]models.Transaction, error) {
	return s.listTransactions(ctx, "buyer_id = ?", buyerID)
}

func (s *GormStore) ListTransactionsBySeller(ctx context.Context, sellerID uint) ([]models.Transaction, error) {
	return s.listTransactions(ctx, "seller_id = ?", sellerID)
}

func (s *GormStore) listTransactions(ctx context.Context, cond string, arg uint) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.db.WithContext(ctx).
		Where(cond, arg).
		Preload("Listing").
		Preload("Buyer").
		Preload("Seller").
		Order("created_at DESC").
		Find(&txns).Error
	return txns, err
}

func (s *GormStore) ListExpiredSellerConfirmed(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("status = ? AND buyer_confirmation_deadline <= ?", models.StatusSellerConfirmed, now).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// Transition runs fn inside a database transaction holding FOR UPDATE locks
// on the transaction row and its listing row. Both rows commit together or
// not at all; concurrent transitions on the same row serialize on the lock.
func (s *GormStore) Transition(ctx context.Context, id uint, fn TransitionFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txn models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&txn, id).Error; err != nil {
			return translate(err)
		}

		var listing models.BookListing
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&listing, txn.ListingID).Error; err != nil {
			return translate(err)
		}

		if err := fn(&txn, &listing); err != nil {
			return err
		}

		if err := tx.Save(&txn).Error; err != nil {
			return err
		}
		return tx.Save(&listing).Error
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
