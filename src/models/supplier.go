package models

import (
	"gbs/src/types"

	"github.com/shopspring/decimal"
)

// SupplierList bounds every drop created from it: the drop's discount must
// stay within [MinDiscount, MaxDiscount] and its reservation value within
// [MinReservationValue, MaxReservationValue].
type SupplierList struct {
	ID         uint   `gorm:"primarykey" json:"id"`
	Name       string `json:"name,omitempty"`
	SupplierID uint   `json:"supplier_id,omitempty"`

	MinDiscount float64 `json:"min_discount"`
	MaxDiscount float64 `json:"max_discount"`

	MinReservationValue decimal.Decimal `gorm:"type:decimal(14,2)" json:"min_reservation_value"`
	MaxReservationValue decimal.Decimal `gorm:"type:decimal(14,2)" json:"max_reservation_value"`

	Products []Product `gorm:"foreignKey:supplier_list_id" json:"products,omitempty"`
	Supplier User      `gorm:"foreignKey:supplier_id" json:"-"`

	types.Timestamps
}

type Product struct {
	ID             uint            `gorm:"primarykey" json:"id"`
	SupplierListID uint            `json:"supplier_list_id,omitempty"`
	Name           string          `json:"name,omitempty"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	Status         string          `gorm:"default:'available'" json:"status,omitempty"`

	types.Timestamps
}
