package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a purchase.
type TransactionStatus string

const (
	StatusPending         TransactionStatus = "PENDING"
	StatusPaid            TransactionStatus = "PAID"
	StatusSellerConfirmed TransactionStatus = "SELLER_CONFIRMED"
	// StatusBuyerConfirmed is transient: a buyer receipt confirmation advances
	// straight to COMPLETED within the same commit, so this value is never
	// observable in a persisted row.
	StatusBuyerConfirmed TransactionStatus = "BUYER_CONFIRMED"
	StatusCompleted      TransactionStatus = "COMPLETED"
	StatusCancelled      TransactionStatus = "CANCELLED"
	StatusDisputed       TransactionStatus = "DISPUTED"
)

// Terminal reports whether the status permits no further transitions.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Transaction is one purchase attempt for a listing. Rows are never deleted;
// they are the financial audit record.
type Transaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ListingID uint `gorm:"index" json:"listing_id"`
	BuyerID   uint `gorm:"index" json:"buyer_id"`
	SellerID  uint `gorm:"index" json:"seller_id"`

	Amount             decimal.Decimal `gorm:"type:numeric(10,2)" json:"amount"`
	PlatformCommission decimal.Decimal `gorm:"type:numeric(10,2)" json:"platform_commission"`
	SellerAmount       decimal.Decimal `gorm:"type:numeric(10,2)" json:"seller_amount"`

	// ProviderPaymentID joins provider callbacks back to the local row.
	ProviderPaymentID *string           `gorm:"uniqueIndex" json:"provider_payment_id,omitempty"`
	Status            TransactionStatus `gorm:"size:20;default:PENDING;index" json:"status"`

	SellerConfirmationDeadline *time.Time `json:"seller_confirmation_deadline,omitempty"`
	BuyerConfirmationDeadline  *time.Time `json:"buyer_confirmation_deadline,omitempty"`

	Listing *BookListing `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
	Buyer   *User        `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	Seller  *User        `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
}
