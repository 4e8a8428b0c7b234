package core

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"gbs/src/models"
	"gbs/src/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BookingResult struct {
	BookingID      uint                `json:"booking_id"`
	PaymentStatus  types.PaymentStatus `json:"payment_status"`
	FinalPrice     decimal.Decimal     `json:"final_price"`
	AlreadySettled bool                `json:"already_settled,omitempty"`
	Error          string              `json:"error,omitempty"`
}

type SettlementReport struct {
	DropID              uint                    `json:"drop_id"`
	Outcome             types.SettlementOutcome `json:"outcome"`
	CapturedCount       int                     `json:"captured_count"`
	ReleasedCount       int                     `json:"released_count"`
	FailedCount         int                     `json:"failed_count"`
	AlreadySettledCount int                     `json:"already_settled_count"`
	TotalAuthorized     decimal.Decimal         `json:"total_authorized"`
	TotalCharged        decimal.Decimal         `json:"total_charged"`
	TotalSavings        decimal.Decimal         `json:"total_savings"`
	Results             []BookingResult         `json:"results"`
}

// SettleDrop processes every authorized booking of a drop exactly once. Used
// by the retry consumer to re-attempt bookings a previous pass reported
// failed; the drop keeps its terminal status on such re-runs.
func (e *Engine) SettleDrop(ctx context.Context, dropID uint, outcome types.SettlementOutcome) (*SettlementReport, error) {
	drop, err := loadDrop(e.db, dropID)
	if err != nil {
		return nil, err
	}
	terminal := drop.Status
	if !terminal.Terminal() {
		if outcome == types.SETTLE_CAPTURED {
			terminal = types.DROP_COMPLETED
		} else {
			terminal = types.DROP_UNDERFUNDED
		}
	}
	return e.settle(ctx, dropID, terminal, outcome, "settlement")
}

// settle is the single settlement path: snapshot, fan out provider calls over
// a bounded worker pool, aggregate the report, then persist the report and
// the terminal transition in one transaction. Individual booking failures are
// recorded and never abort the batch.
func (e *Engine) settle(ctx context.Context, dropID uint, terminal types.DropStatus, outcome types.SettlementOutcome, initiator string) (*SettlementReport, error) {
	mu := e.lock(dropID)
	mu.Lock()
	defer mu.Unlock()

	drop, err := loadDrop(e.db, dropID)
	if err != nil {
		return nil, err
	}

	var all []models.Booking
	if err := e.db.Where("drop_id = ?", dropID).Order("id asc").Find(&all).Error; err != nil {
		return nil, err
	}

	report := &SettlementReport{
		DropID:          dropID,
		Outcome:         outcome,
		TotalAuthorized: decimal.Zero,
		TotalCharged:    decimal.Zero,
		TotalSavings:    decimal.Zero,
		Results:         make([]BookingResult, len(all)),
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.settlementWorkers)
	for i, booking := range all {
		if booking.PaymentStatus.Terminal() {
			report.Results[i] = BookingResult{
				BookingID:      booking.ID,
				PaymentStatus:  booking.PaymentStatus,
				FinalPrice:     finalOrZero(booking.FinalPrice),
				AlreadySettled: true,
				Error:          types.ErrAlreadySettled.Error(),
			}
			continue
		}
		if booking.PaymentStatus != types.PAYMENT_AUTHORIZED {
			report.Results[i] = BookingResult{BookingID: booking.ID, PaymentStatus: booking.PaymentStatus}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, b models.Booking) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Results[i] = e.settleBooking(ctx, &b, drop.CurrentDiscount, outcome)
		}(i, booking)
	}
	wg.Wait()

	for _, r := range report.Results {
		switch {
		case r.AlreadySettled:
			report.AlreadySettledCount++
		case r.PaymentStatus == types.PAYMENT_CAPTURED:
			report.CapturedCount++
		case r.PaymentStatus == types.PAYMENT_RELEASED:
			report.ReleasedCount++
		case r.PaymentStatus == types.PAYMENT_FAILED:
			report.FailedCount++
		}
	}
	for i, r := range report.Results {
		if r.AlreadySettled || r.PaymentStatus == types.PAYMENT_FAILED {
			continue
		}
		if r.PaymentStatus == types.PAYMENT_CAPTURED || r.PaymentStatus == types.PAYMENT_RELEASED {
			report.TotalAuthorized = report.TotalAuthorized.Add(all[i].AuthorizedAmount)
			report.TotalCharged = report.TotalCharged.Add(r.FinalPrice)
		}
	}
	report.TotalSavings = report.TotalAuthorized.Sub(report.TotalCharged)

	transitioned := false
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if !drop.Status.Terminal() {
			updates := map[string]interface{}{
				"status":  terminal,
				"version": drop.Version + 1,
			}
			if terminal == types.DROP_UNDERFUNDED {
				updates["underfunded_notified_at"] = time.Now().UTC()
			}
			res := tx.Model(&models.Drop{}).
				Where("id = ? AND status = ? AND version = ?", dropID, drop.Status, drop.Version).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return types.ErrConcurrencyConflict
			}
			transitioned = true
		}
		return e.persistRecord(tx, report)
	})
	if err != nil {
		return report, err
	}

	if transitioned {
		e.audit.RecordTransition(dropID, drop.Status, terminal, initiator)
	}
	e.audit.RecordSettlement(report)
	e.notifyDrop(dropID)
	if report.FailedCount > 0 && e.retryPublish != nil {
		e.retryPublish(dropID, outcome)
	}
	return report, nil
}

// settleBooking runs one provider call with a timeout. A failed or timed-out
// call leaves the booking authorized so a later retry pass can pick it up.
func (e *Engine) settleBooking(ctx context.Context, b *models.Booking, discount float64, outcome types.SettlementOutcome) BookingResult {
	callCtx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()

	var final decimal.Decimal
	var terminal types.PaymentStatus
	var err error
	if outcome == types.SETTLE_CAPTURED {
		final = priceAfterDiscount(b.OriginalPrice, discount)
		terminal = types.PAYMENT_CAPTURED
		err = e.provider.Capture(callCtx, b.AuthorizationID, final)
		if err != nil {
			err = &types.PaymentProviderError{Op: types.PAYMENT_OP_CAPTURE, Err: err}
		}
	} else {
		final = decimal.Zero
		terminal = types.PAYMENT_RELEASED
		err = e.provider.Release(callCtx, b.AuthorizationID)
		if err != nil {
			err = &types.PaymentProviderError{Op: types.PAYMENT_OP_RELEASE, Err: err}
		}
	}
	if err != nil {
		log.Printf("Settlement failed for booking %d: %s\n", b.ID, err.Error())
		return BookingResult{BookingID: b.ID, PaymentStatus: types.PAYMENT_FAILED, FinalPrice: decimal.Zero, Error: err.Error()}
	}

	updated, err := e.MarkSettled(b.ID, final, terminal)
	if err != nil {
		if errors.Is(err, types.ErrAlreadySettled) {
			return BookingResult{
				BookingID:      b.ID,
				PaymentStatus:  updated.PaymentStatus,
				FinalPrice:     finalOrZero(updated.FinalPrice),
				AlreadySettled: true,
				Error:          err.Error(),
			}
		}
		return BookingResult{BookingID: b.ID, PaymentStatus: types.PAYMENT_FAILED, Error: err.Error()}
	}
	if terminal == types.PAYMENT_CAPTURED {
		e.issuePickupCode(b.ID)
	}
	return BookingResult{BookingID: b.ID, PaymentStatus: terminal, FinalPrice: final}
}

// persistRecord writes the per-drop settlement record, accumulating counts
// across retry passes. A pass that settled nothing new leaves the record
// untouched.
func (e *Engine) persistRecord(tx *gorm.DB, report *SettlementReport) error {
	results := types.JSONB{}
	for _, r := range report.Results {
		results[intKey(r.BookingID)] = map[string]interface{}{
			"payment_status":  string(r.PaymentStatus),
			"final_price":     r.FinalPrice.StringFixed(2),
			"already_settled": r.AlreadySettled,
			"error":           r.Error,
		}
	}

	var existing models.SettlementRecord
	err := tx.Where("drop_id = ?", report.DropID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record := models.SettlementRecord{
			DropID:          report.DropID,
			Outcome:         report.Outcome,
			CapturedCount:   report.CapturedCount,
			ReleasedCount:   report.ReleasedCount,
			FailedCount:     report.FailedCount,
			TotalAuthorized: report.TotalAuthorized,
			TotalCharged:    report.TotalCharged,
			TotalSavings:    report.TotalSavings,
			Results:         results,
		}
		return tx.Create(&record).Error
	}
	if err != nil {
		return err
	}
	if report.CapturedCount == 0 && report.ReleasedCount == 0 {
		return nil
	}
	return tx.Model(&existing).Updates(map[string]interface{}{
		"captured_count":   existing.CapturedCount + report.CapturedCount,
		"released_count":   existing.ReleasedCount + report.ReleasedCount,
		"failed_count":     report.FailedCount,
		"total_authorized": existing.TotalAuthorized.Add(report.TotalAuthorized),
		"total_charged":    existing.TotalCharged.Add(report.TotalCharged),
		"total_savings":    existing.TotalSavings.Add(report.TotalSavings),
		"results":          results,
	}).Error
}

// issuePickupCode attaches a short collection code to a captured booking so
// the pickup point can verify it, QR-rendered by the bookings API.
func (e *Engine) issuePickupCode(bookingID uint) {
	code := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	if err := e.db.Model(&models.Booking{}).
		Where("id = ? AND pickup_code IS NULL", bookingID).
		Update("pickup_code", code).Error; err != nil {
		log.Printf("Failed to issue pickup code for booking %d: %s\n", bookingID, err.Error())
	}
}

func finalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func intKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
