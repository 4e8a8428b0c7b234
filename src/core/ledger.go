package core

import (
	"context"
	"errors"
	"log"
	"time"

	"gbs/src/models"
	"gbs/src/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var oneHundred = decimal.NewFromInt(100)

// priceAfterDiscount applies a percentage discount with two-decimal rounding.
// This is the only place charge amounts are rounded.
func priceAfterDiscount(price decimal.Decimal, discount float64) decimal.Decimal {
	factor := oneHundred.Sub(decimal.NewFromFloat(discount)).Div(oneHundred)
	return price.Mul(factor).Round(2)
}

// RecordBooking reserves one product in a drop for a user. The payment is
// authorized with the provider first, outside the drop lock; only a
// successful authorization is recorded in the ledger. The insert and the
// discount recomputation share one transaction under the drop's lock.
func (e *Engine) RecordBooking(ctx context.Context, dropID, userID uint, body *types.CreateBookingRequestBody) (*models.Booking, error) {
	var drop models.Drop
	if err := e.db.Preload("SupplierList").First(&drop, dropID).Error; err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if drop.Status != types.DROP_ACTIVE || !drop.Window(now) {
		return nil, types.ErrDropNotActive
	}

	var product models.Product
	if err := e.db.First(&product, body.ProductID).Error; err != nil {
		return nil, err
	}
	if product.SupplierListID != drop.SupplierListID {
		return nil, types.ErrOutOfBounds
	}

	discountAtAuth := drop.CurrentDiscount
	authorized := priceAfterDiscount(product.UnitPrice, discountAtAuth)
	projected := drop.CurrentValue.Add(authorized)
	list := drop.SupplierList
	if list.MaxReservationValue.IsPositive() && projected.GreaterThan(list.MaxReservationValue) {
		return nil, types.ErrOutOfBounds
	}

	var user models.User
	if err := e.db.First(&user, userID).Error; err != nil {
		return nil, err
	}

	refID := uuid.New()
	authCtx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()
	authID, err := e.provider.Authorize(authCtx, types.AuthorizeInput{
		ReferenceID:   refID,
		Amount:        authorized,
		Currency:      "eur",
		PaymentMethod: body.PaymentMethodID,
		CustomerID:    user.StripeCustomerId,
	})
	if err != nil {
		return nil, &types.PaymentProviderError{Op: types.PAYMENT_OP_AUTHORIZE, Err: err}
	}

	mu := e.lock(dropID)
	mu.Lock()
	defer mu.Unlock()

	booking := models.Booking{
		DropID:             dropID,
		UserID:             userID,
		ProductID:          product.ID,
		OriginalPrice:      product.UnitPrice,
		AuthorizedAmount:   authorized,
		DiscountPercentage: discountAtAuth,
		PaymentStatus:      types.PAYMENT_AUTHORIZED,
		Status:             types.BOOKING_BOOKED,
		AuthorizationID:    authID,
		ReferenceID:        refID,
	}
	err = e.withRetry(func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			fresh, err := loadDrop(tx, dropID)
			if err != nil {
				return err
			}
			if fresh.Status != types.DROP_ACTIVE || !fresh.Window(time.Now().UTC()) {
				return types.ErrDropNotActive
			}
			// Re-check the reservation cap against the current value; the
			// pre-authorization check read a snapshot other bookings may have
			// advanced since.
			max := fresh.SupplierList.MaxReservationValue
			if max.IsPositive() && fresh.CurrentValue.Add(authorized).GreaterThan(max) {
				return types.ErrOutOfBounds
			}
			booking.ID = 0
			if err := tx.Create(&booking).Error; err != nil {
				return err
			}
			if _, _, err := e.recomputeTx(tx, fresh); err != nil {
				return err
			}
			return nil
		})
	})
	if err != nil {
		// The hold was placed but never recorded; release it so no money is
		// left reserved against a booking that does not exist.
		relCtx, relCancel := context.WithTimeout(context.Background(), e.providerTimeout)
		defer relCancel()
		if relErr := e.provider.Release(relCtx, authID); relErr != nil {
			log.Printf("Failed to release orphaned authorization %s: %s\n", authID, relErr.Error())
		}
		return nil, err
	}
	e.notifyDrop(dropID)
	return &booking, nil
}

// ListAuthorizedBookings returns the settlement snapshot of a drop: every
// booking still holding an authorization. Called with the drop lock held.
func (e *Engine) ListAuthorizedBookings(dropID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := e.db.
		Where("drop_id = ? AND payment_status = ?", dropID, types.PAYMENT_AUTHORIZED).
		Order("id asc").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// MarkSettled moves a booking's payment_status from authorized to a terminal
// state exactly once. A booking already terminal is returned unchanged with
// ErrAlreadySettled so callers can count it without treating it as fatal.
func (e *Engine) MarkSettled(bookingID uint, finalPrice decimal.Decimal, terminal types.PaymentStatus) (*models.Booking, error) {
	if !terminal.Terminal() {
		return nil, errors.New("markSettled requires a terminal payment status")
	}
	var booking models.Booking
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&booking, bookingID).Error; err != nil {
			return err
		}
		if booking.PaymentStatus.Terminal() {
			return types.ErrAlreadySettled
		}
		status := types.BOOKING_COMPLETED
		if terminal != types.PAYMENT_CAPTURED {
			status = types.BOOKING_CANCELED
		}
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND payment_status = ?", bookingID, types.PAYMENT_AUTHORIZED).
			Updates(map[string]interface{}{
				"final_price":    finalPrice,
				"payment_status": terminal,
				"status":         status,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrConcurrencyConflict
		}
		booking.FinalPrice = &finalPrice
		booking.PaymentStatus = terminal
		booking.Status = status
		return nil
	})
	if err != nil {
		return &booking, err
	}
	return &booking, nil
}
