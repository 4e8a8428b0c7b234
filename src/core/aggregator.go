package core

import (
	"context"
	"log"

	"gbs/src/models"
	"gbs/src/types"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DiscountFor computes the discount a drop earns at a given reservation
// value: linear interpolation between the list's min and max discount,
// clamped at the target. Pure so the curve is testable without a database.
func DiscountFor(minDiscount, maxDiscount float64, value, target decimal.Decimal) float64 {
	if maxDiscount < minDiscount {
		maxDiscount = minDiscount
	}
	if !target.IsPositive() {
		return maxDiscount
	}
	ratio, _ := value.Div(target).Float64()
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return minDiscount + (maxDiscount-minDiscount)*ratio
}

// Recompute re-derives a drop's current value and discount from its
// authorized bookings. Serialized per drop; the discount never decreases
// while the drop is active.
func (e *Engine) Recompute(ctx context.Context, dropID uint) (float64, decimal.Decimal, error) {
	mu := e.lock(dropID)
	mu.Lock()
	defer mu.Unlock()

	var discount float64
	var value decimal.Decimal
	err := e.withRetry(func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			drop, err := loadDrop(tx, dropID)
			if err != nil {
				return err
			}
			if drop.Status != types.DROP_ACTIVE {
				return types.ErrDropNotActive
			}
			d, v, err := e.recomputeTx(tx, drop)
			if err != nil {
				return err
			}
			discount, value = d, v
			return nil
		})
	})
	if err != nil {
		return 0, decimal.Zero, err
	}
	e.notifyDrop(dropID)
	return discount, value, nil
}

// recomputeTx does the actual aggregation inside an open transaction while
// the caller holds the drop's lock. The UPDATE is guarded on status and
// version so a stale writer touches zero rows.
func (e *Engine) recomputeTx(tx *gorm.DB, drop *models.Drop) (float64, decimal.Decimal, error) {
	var bookings []models.Booking
	if err := tx.
		Where("drop_id = ? AND payment_status = ?", drop.ID, types.PAYMENT_AUTHORIZED).
		Find(&bookings).Error; err != nil {
		return 0, decimal.Zero, err
	}
	value := decimal.Zero
	for _, b := range bookings {
		value = value.Add(b.AuthorizedAmount)
	}
	list := drop.SupplierList
	discount := DiscountFor(list.MinDiscount, list.MaxDiscount, value, drop.TargetValue)
	if discount < drop.CurrentDiscount {
		discount = drop.CurrentDiscount
	}
	res := tx.Model(&models.Drop{}).
		Where("id = ? AND status = ? AND version = ?", drop.ID, types.DROP_ACTIVE, drop.Version).
		Updates(map[string]interface{}{
			"current_discount": discount,
			"current_value":    value,
			"version":          drop.Version + 1,
		})
	if res.Error != nil {
		return 0, decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, decimal.Zero, types.ErrConcurrencyConflict
	}
	drop.CurrentDiscount = discount
	drop.CurrentValue = value
	drop.Version++
	return discount, value, nil
}

func loadDrop(tx *gorm.DB, dropID uint) (*models.Drop, error) {
	var drop models.Drop
	if err := tx.Preload("SupplierList").First(&drop, dropID).Error; err != nil {
		return nil, err
	}
	return &drop, nil
}

// notifyDrop publishes the drop's latest snapshot on the realtime channel.
// Best effort, never blocks a caller on the notification path.
func (e *Engine) notifyDrop(dropID uint) {
	var drop models.Drop
	if err := e.db.First(&drop, dropID).Error; err != nil {
		log.Printf("Could not load drop %d for notification: %s\n", dropID, err.Error())
		return
	}
	cv, _ := drop.CurrentValue.Float64()
	e.notifier.DropChanged(types.DropChange{
		ID:              drop.ID,
		CurrentDiscount: drop.CurrentDiscount,
		CurrentValue:    cv,
		Status:          drop.Status,
		UpdatedAt:       drop.UpdatedAt,
		PickupPointID:   drop.PickupPointID,
	})
}
