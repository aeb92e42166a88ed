package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ConditionNew  = "new"
	ConditionUsed = "used"
)

// BookListing is a book offered for sale. The transaction engine only ever
// reads Price/UserID and toggles IsSold; everything else is catalog glue.
type BookListing struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	UserID      uint            `gorm:"index" json:"user_id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2)" json:"price"`
	Condition   string          `gorm:"size:20;default:new" json:"condition"`
	IsSold      bool            `gorm:"default:false" json:"is_sold"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}
