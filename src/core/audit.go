package core

import (
	"log"

	"gbs/src/models"
	"gbs/src/types"

	"gorm.io/gorm"
)

// AuditSink receives one record per state transition and per settlement
// report. Implementations must never block the caller; failures are logged
// and dropped.
type AuditSink interface {
	RecordTransition(dropID uint, from, to types.DropStatus, initiator string)
	RecordSettlement(report *SettlementReport)
}

// PublishFunc pushes an audit payload to a topic. Locally this is the kafka
// producer, in production the SNS publisher; wired at boot so the engine does
// not care which.
type PublishFunc func(topic string, payload *types.JSONB)

type BrokerAuditSink struct {
	db      *gorm.DB
	publish PublishFunc
}

func NewBrokerAuditSink(db *gorm.DB, publish PublishFunc) *BrokerAuditSink {
	return &BrokerAuditSink{db: db, publish: publish}
}

func (s *BrokerAuditSink) RecordTransition(dropID uint, from, to types.DropStatus, initiator string) {
	payload := types.JSONB{
		"drop_id":   dropID,
		"from":      string(from),
		"to":        string(to),
		"initiator": initiator,
	}
	trail := models.TrailLog{
		Type:      "drop.transition",
		Initiator: initiator,
		Group:     "drops",
		Payload:   payload,
	}
	if err := s.db.Create(&trail).Error; err != nil {
		log.Printf("Failed to write transition audit for drop %d: %s\n", dropID, err.Error())
	}
	if s.publish != nil {
		go s.publish("drop-transitions", &payload)
	}
}

func (s *BrokerAuditSink) RecordSettlement(report *SettlementReport) {
	payload := types.JSONB{
		"drop_id":       report.DropID,
		"outcome":       string(report.Outcome),
		"captured":      report.CapturedCount,
		"released":      report.ReleasedCount,
		"failed":        report.FailedCount,
		"total_charged": report.TotalCharged.StringFixed(2),
		"total_savings": report.TotalSavings.StringFixed(2),
	}
	trail := models.TrailLog{
		Type:      "drop.settlement",
		Initiator: "settlement",
		Group:     "drops",
		Payload:   payload,
	}
	if err := s.db.Create(&trail).Error; err != nil {
		log.Printf("Failed to write settlement audit for drop %d: %s\n", report.DropID, err.Error())
	}
	if s.publish != nil {
		go s.publish("drop-settlements", &payload)
	}
}

type nopAuditSink struct{}

func (nopAuditSink) RecordTransition(uint, types.DropStatus, types.DropStatus, string) {}
func (nopAuditSink) RecordSettlement(*SettlementReport)                                {}
