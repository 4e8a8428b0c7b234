package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("unsupported source type for JSONB")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type Metadata map[string]any

type Environment string

const (
	Development Environment = "development"
	Test        Environment = "test"
	Production  Environment = "production"
)

type DropStatus string

const (
	DROP_PENDING_APPROVAL DropStatus = "pending_approval"
	DROP_APPROVED         DropStatus = "approved"
	DROP_ACTIVE           DropStatus = "active"
	DROP_UNDERFUNDED      DropStatus = "underfunded"
	DROP_COMPLETED        DropStatus = "completed"
	DROP_EXPIRED          DropStatus = "expired"
	DROP_CANCELED         DropStatus = "canceled"
)

// Terminal reports whether a drop in this status can never transition again.
// An underfunded drop counts as terminal once settlement has released its
// authorizations; the state machine only assigns the status after that pass.
func (s DropStatus) Terminal() bool {
	switch s {
	case DROP_COMPLETED, DROP_EXPIRED, DROP_CANCELED, DROP_UNDERFUNDED:
		return true
	}
	return false
}

type BookingStatus string

const (
	BOOKING_INTERESTED BookingStatus = "interested"
	BOOKING_BOOKED     BookingStatus = "booked"
	BOOKING_PAID       BookingStatus = "paid"
	BOOKING_READY      BookingStatus = "ready"
	BOOKING_COMPLETED  BookingStatus = "completed"
	BOOKING_CANCELED   BookingStatus = "canceled"
)

type PaymentStatus string

const (
	PAYMENT_PENDING    PaymentStatus = "pending"
	PAYMENT_AUTHORIZED PaymentStatus = "authorized"
	PAYMENT_CAPTURED   PaymentStatus = "captured"
	PAYMENT_RELEASED   PaymentStatus = "released"
	PAYMENT_FAILED     PaymentStatus = "failed"
)

func (s PaymentStatus) Terminal() bool {
	switch s {
	case PAYMENT_CAPTURED, PAYMENT_RELEASED, PAYMENT_FAILED:
		return true
	}
	return false
}

// SettlementOutcome is what the state machine asks the settlement engine to
// do with every authorized booking of a closing drop.
type SettlementOutcome string

const (
	SETTLE_CAPTURED SettlementOutcome = "captured"
	SETTLE_RELEASED SettlementOutcome = "released"
)

type CreateDropRequestBody struct {
	Name           string  `json:"name" binding:"required"`
	PickupPointID  uint    `json:"pickup_point" binding:"required"`
	SupplierListID uint    `json:"supplier_list" binding:"required"`
	TargetValue    float64 `json:"target_value" binding:"required,gt=0"`
	StartTime      string  `json:"start_time" binding:"required,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
	EndTime        string  `json:"end_time" binding:"required,bookabledate,gtdate=StartTime" time_format:"2006-01-02 15:04:05 -07:00"`
}

type CreateBookingRequestBody struct {
	ProductID       uint   `json:"product" binding:"required"`
	PaymentMethodID string `json:"pm_id" binding:"required"`
}

type CreateSupplierListRequestBody struct {
	Name                string                `json:"name" binding:"required"`
	MinDiscount         float64               `json:"min_discount" binding:"min=0,max=100"`
	MaxDiscount         float64               `json:"max_discount" binding:"required,min=0,max=100,gtefield=MinDiscount"`
	MinReservationValue float64               `json:"min_reservation_value" binding:"min=0"`
	MaxReservationValue float64               `json:"max_reservation_value" binding:"required,gtefield=MinReservationValue"`
	Products            []SupplierProductBody `json:"products" binding:"required,min=1,dive"`
}

type SupplierProductBody struct {
	Name      string  `json:"name" binding:"required"`
	UnitPrice float64 `json:"unit_price" binding:"required,gt=0"`
}

type CreatePickupPointRequestBody struct {
	Name         string `json:"name" binding:"required"`
	Address      string `json:"address" binding:"required"`
	ContactEmail string `json:"email" binding:"required,email"`
}

type RegisterUserRequestBody struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name" binding:"required"`
	Role  string `json:"role" binding:"omitempty,oneof=buyer supplier admin"`
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type DropsQueryFilters struct {
	Status      string `form:"status"`
	PickupPoint uint   `form:"pickup_point"`
}

type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthorizeInput carries everything the payment provider needs to place a
// hold for one booking. ReferenceID doubles as the idempotency key.
type AuthorizeInput struct {
	ReferenceID   uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	CustomerID    string
}

// DropChange is the payload published on the realtime channel every time a
// drop's discount, value or status moves. Consumers deduplicate on the
// composite of ID, UpdatedAt, CurrentValue and CurrentDiscount.
type DropChange struct {
	ID              uint       `json:"id"`
	CurrentDiscount float64    `json:"current_discount"`
	CurrentValue    float64    `json:"current_value"`
	Status          DropStatus `json:"status"`
	UpdatedAt       time.Time  `json:"updated_at"`
	PickupPointID   uint       `json:"pickup_point_id,omitempty"`
}

type Handler func(payload string)
