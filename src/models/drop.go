package models

import (
	"gbs/src/types"
	"time"

	"github.com/shopspring/decimal"
)

// Drop is a time-boxed group-buying campaign at a pickup point. Discount and
// value are derived from the authorized bookings and only ever move through
// the aggregator; status only moves through the state machine. Drops are
// archived in place once terminal, never deleted.
type Drop struct {
	ID             uint   `gorm:"primarykey" json:"id"`
	Name           string `json:"name,omitempty"`
	PickupPointID  uint   `json:"pickup_point_id,omitempty"`
	SupplierListID uint   `json:"supplier_list_id,omitempty"`

	CurrentDiscount float64         `json:"current_discount"`
	CurrentValue    decimal.Decimal `gorm:"type:decimal(14,2)" json:"current_value"`
	TargetValue     decimal.Decimal `gorm:"type:decimal(14,2)" json:"target_value"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   time.Time  `json:"end_time,omitempty"`

	Status  types.DropStatus `gorm:"default:'pending_approval'" json:"status,omitempty"`
	Version uint             `json:"-"`

	UnderfundedNotifiedAt *time.Time `json:"underfunded_notified_at,omitempty"`
	CreatedBy             uint       `json:"created_by,omitempty"`

	PickupPoint  PickupPoint  `gorm:"foreignKey:pickup_point_id" json:"pickup_point,omitempty"`
	SupplierList SupplierList `gorm:"foreignKey:supplier_list_id" json:"supplier_list,omitempty"`
	Bookings     []Booking    `gorm:"foreignKey:drop_id" json:"bookings,omitempty"`

	types.Timestamps
}

// Window reports whether t falls inside the drop's half-open [start, end)
// interval. A drop with no start time yet is never inside its window.
func (d *Drop) Window(t time.Time) bool {
	if d.StartTime == nil {
		return false
	}
	return !t.Before(*d.StartTime) && t.Before(d.EndTime)
}

func (d *Drop) Due(t time.Time) bool {
	return !t.Before(d.EndTime)
}
