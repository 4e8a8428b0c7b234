package models

import (
	"gbs/src/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Booking is one user's reservation of one product inside a drop, with a
// pre-authorized payment hold. AuthorizedAmount and DiscountPercentage are
// snapshots taken at authorization time; FinalPrice stays nil until the
// settlement engine closes the drop. A booking's payment_status moves from
// authorized to exactly one of captured/released/failed and never again.
type Booking struct {
	ID        uint `gorm:"primarykey" json:"id"`
	DropID    uint `json:"drop_id,omitempty"`
	UserID    uint `json:"user_id,omitempty"`
	ProductID uint `json:"product_id,omitempty"`

	OriginalPrice      decimal.Decimal  `gorm:"type:decimal(12,2)" json:"original_price"`
	AuthorizedAmount   decimal.Decimal  `gorm:"type:decimal(12,2)" json:"authorized_amount"`
	DiscountPercentage float64          `json:"discount_percentage"`
	FinalPrice         *decimal.Decimal `gorm:"type:decimal(12,2)" json:"final_price,omitempty"`

	PaymentStatus   types.PaymentStatus `gorm:"default:'pending'" json:"payment_status,omitempty"`
	Status          types.BookingStatus `gorm:"default:'interested'" json:"status,omitempty"`
	AuthorizationID string              `json:"-"`
	ReferenceID     uuid.UUID           `gorm:"type:uuid" json:"reference_id,omitempty"`
	PickupCode      *string             `json:"-"`

	Drop    Drop    `gorm:"foreignKey:drop_id" json:"drop,omitempty"`
	User    User    `gorm:"foreignKey:user_id" json:"user,omitempty"`
	Product Product `gorm:"foreignKey:product_id" json:"product,omitempty"`

	types.Timestamps
}
