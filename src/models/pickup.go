package models

import "gbs/src/types"

type PickupPoint struct {
	ID           uint   `gorm:"primarykey" json:"id"`
	Name         string `json:"name,omitempty"`
	Slug         string `gorm:"unique" json:"slug,omitempty"`
	Address      string `json:"address,omitempty"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	OwnerID      uint   `json:"owner_id,omitempty"`

	Owner User   `gorm:"foreignKey:owner_id" json:"-"`
	Drops []Drop `gorm:"foreignKey:pickup_point_id" json:"drops,omitempty"`

	types.Timestamps
}
