package core

import (
	"context"

	"gbs/src/types"

	"github.com/shopspring/decimal"
)

// PaymentProvider is the capability interface over the upstream payment
// processor. All three operations must be idempotent keyed by the
// authorization id (Stripe satisfies this natively, test fakes must too).
type PaymentProvider interface {
	Authorize(ctx context.Context, in types.AuthorizeInput) (string, error)
	Capture(ctx context.Context, authorizationID string, finalAmount decimal.Decimal) error
	Release(ctx context.Context, authorizationID string) error
}
