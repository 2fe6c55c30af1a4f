package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/repository"
)

func TestPaymentTransition_OnlyFromPending(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPaymentRepository(setupTestDB(t, 1))

	p := &db.Payment{IntentID: "inv-1", UserID: 1, Amount: decimal.NewFromInt(2), Purpose: repository.PurposeTopUp}
	require.NoError(t, repo.Create(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, repository.PaymentPending, p.Status)

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	ok, err := repo.Transition(ctx, "inv-1", repository.PaymentCompleted)
	require.NoError(t, err)
	assert.True(t, ok)

	// a late expiry loses the race
	ok, err = repo.Transition(ctx, "inv-1", repository.PaymentExpired)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByIntent(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, repository.PaymentCompleted, got.Status)

	pending, err = repo.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingOlderThan(t *testing.T) {
	now := time.Now()
	p := db.Payment{Status: repository.PaymentPending, CreatedAt: now.Add(-11 * time.Minute)}
	assert.True(t, repository.PendingOlderThan(p, now, 10*time.Minute))

	p.CreatedAt = now.Add(-time.Minute)
	assert.False(t, repository.PendingOlderThan(p, now, 10*time.Minute))

	p.Status = repository.PaymentCompleted
	p.CreatedAt = now.Add(-time.Hour)
	assert.False(t, repository.PendingOlderThan(p, now, 10*time.Minute))
}

func TestLedger_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPaymentRepository(setupTestDB(t, 1))

	require.NoError(t, repo.Record(ctx, 1, decimal.NewFromInt(5), repository.LedgerTopUp, "inv-1"))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.Record(ctx, 1, decimal.NewFromInt(-2), repository.LedgerTour, "match:1"))

	entries, err := repo.Ledger(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, repository.LedgerTour, entries[0].Kind)
	assert.Equal(t, "-2.00", entries[0].Amount.StringFixed(2))
}

func TestCouponRedeem_OncePerUser(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCouponRepository(setupTestDB(t, 1, 2))

	created, err := repo.Create(ctx, &db.BalanceCoupon{Code: "GIFT", Amount: decimal.NewFromInt(1), MaxUses: 5, Active: true})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.Create(ctx, &db.BalanceCoupon{Code: "GIFT", Amount: decimal.NewFromInt(9), MaxUses: 1, Active: true})
	require.NoError(t, err)
	assert.False(t, created)

	ok, err := repo.Redeem(ctx, "GIFT", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Redeem(ctx, "GIFT", 1)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.Redeem(ctx, "GIFT", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	c, err := repo.GetForUpdate(ctx, "GIFT")
	require.NoError(t, err)
	assert.Equal(t, 2, c.CurrentUses)
	assert.Equal(t, "1.00", c.Amount.StringFixed(2))

	c, err = repo.GetForUpdate(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestBoost_Extends(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCouponRepository(setupTestDB(t, 1))
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, ok, err := repo.ActiveBoost(ctx, 1, now)
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := repo.CreateBoost(ctx, 1, now, time.Hour)
	require.NoError(t, err)
	second, err := repo.CreateBoost(ctx, 1, now, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, first.Add(time.Hour), second, time.Millisecond)

	until, ok, err := repo.ActiveBoost(ctx, 1, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, second, until, time.Millisecond)
}

func TestCouponDeactivate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCouponRepository(setupTestDB(t))

	_, err := repo.Create(ctx, &db.BalanceCoupon{Code: "OFF", Amount: decimal.NewFromInt(1), MaxUses: 1, Active: true})
	require.NoError(t, err)

	ok, err := repo.Deactivate(ctx, "OFF")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Deactivate(ctx, "OFF")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.Deactivate(ctx, "MISSING")
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := repo.GetForUpdate(ctx, "OFF")
	require.NoError(t, err)
	assert.False(t, c.Active)
}
