package models

import (
	"gbs/src/types"
	"time"
)

type User struct {
	ID               uint            `gorm:"primarykey" json:"id"`
	Name             string          `json:"name,omitempty"`
	Email            string          `gorm:"unique" json:"email,omitempty"`
	Role             string          `json:"role,omitempty"`
	EmailVerified    bool            `json:"email_verified,omitempty"`
	VerifiedAt       time.Time       `json:"verified_at,omitempty"`
	StripeCustomerId string          `json:"-"`
	DeviceToken      string          `json:"-"`
	Metadata         *types.Metadata `gorm:"type:jsonb"`

	Bookings      []Booking      `gorm:"foreignKey:user_id" json:"bookings,omitempty"`
	SupplierLists []SupplierList `gorm:"foreignKey:supplier_id" json:"supplier_lists,omitempty"`
	PickupPoints  []PickupPoint  `gorm:"foreignKey:owner_id" json:"pickup_points,omitempty"`

	types.Timestamps
}
