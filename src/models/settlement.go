package models

import (
	"gbs/src/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettlementRecord is written exactly once per drop, inside the same
// transaction that moves the drop into its terminal status.
type SettlementRecord struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`

	DropID  uint                    `gorm:"unique" json:"drop_id"`
	Outcome types.SettlementOutcome `json:"outcome"`

	CapturedCount int `json:"captured_count"`
	ReleasedCount int `json:"released_count"`
	FailedCount   int `json:"failed_count"`

	TotalAuthorized decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_authorized"`
	TotalCharged    decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_charged"`
	TotalSavings    decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_savings"`

	Results types.JSONB `gorm:"type:jsonb" json:"results,omitempty"`

	types.Timestamps

	Drop Drop `gorm:"foreignKey:drop_id" json:"-"`
}

func (s *SettlementRecord) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type TrailLog struct {
	ID        uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	Type      string
	Initiator string
	Group     string
	Payload   types.JSONB `gorm:"type:jsonb"`

	types.Timestamps
}

func (t *TrailLog) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
