// Package payment is the boundary to the external payment provider.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusExpired Status = "expired"
)

// Intent is a created invoice the user has to pay.
type Intent struct {
	ID     string
	PayURL string
}

// ErrUnknownIntent is returned by PollStatus when the provider has no such invoice.
var ErrUnknownIntent = errors.New("payment intent not found")

type Gate interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, userID uint64, memo string) (Intent, error)
	PollStatus(ctx context.Context, intentID string) (Status, error)
}
