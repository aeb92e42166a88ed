package models

import "time"

type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Email       string    `gorm:"uniqueIndex" json:"email"`
	DisplayName string    `json:"display_name"`
	Region      string    `json:"region,omitempty"`
}
