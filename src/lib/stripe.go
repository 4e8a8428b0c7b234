package lib

import (
	"context"
	"os"

	"gbs/src/types"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

var stripeClient *stripe.Client

func GetStripeClient() *stripe.Client {
	if stripeClient != nil {
		return stripeClient
	}
	apiKey := os.Getenv("STRIPE_SECRET_KEY")
	sc := stripe.NewClient(apiKey)
	stripeClient = sc

	return sc
}

func NewStripeClient(c *stripe.Client) {
	stripeClient = c
}

// StripeProvider implements the payment provider over PaymentIntents with
// manual capture: Authorize confirms an intent that only places a hold,
// Capture charges the final (discounted) amount, Release cancels the intent.
// Stripe keys all three idempotently by intent id / idempotency key.
type StripeProvider struct{}

func NewStripeProvider() *StripeProvider {
	return &StripeProvider{}
}

func toCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (p *StripeProvider) Authorize(ctx context.Context, in types.AuthorizeInput) (string, error) {
	sc := GetStripeClient()
	params := stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(toCents(in.Amount)),
		Currency:      stripe.String(in.Currency),
		PaymentMethod: stripe.String(in.PaymentMethod),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	}
	params.SetIdempotencyKey(in.ReferenceID.String())
	intent, err := sc.V1PaymentIntents.Create(ctx, &params)
	if err != nil {
		return "", err
	}
	return intent.ID, nil
}

func (p *StripeProvider) Capture(ctx context.Context, authorizationID string, finalAmount decimal.Decimal) error {
	sc := GetStripeClient()
	params := stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(toCents(finalAmount)),
	}
	_, err := sc.V1PaymentIntents.Capture(ctx, authorizationID, &params)
	return err
}

func (p *StripeProvider) Release(ctx context.Context, authorizationID string) error {
	sc := GetStripeClient()
	_, err := sc.V1PaymentIntents.Cancel(ctx, authorizationID, &stripe.PaymentIntentCancelParams{})
	return err
}
