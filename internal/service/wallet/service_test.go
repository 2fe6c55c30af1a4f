package wallet_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/payment"
	"github.com/oggyb/wetogether/internal/repository"
	"github.com/oggyb/wetogether/internal/service/match"
	"github.com/oggyb/wetogether/internal/service/wallet"
	"github.com/oggyb/wetogether/internal/testutil"
)

const admin uint64 = 1000

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T) (*testutil.Env, *wallet.Service) {
	t.Helper()
	env := testutil.New(t)
	env.SeedUser(t, 1, "female", "5.00")
	env.SeedUser(t, 2, "male", "0")
	env.SeedUser(t, 3, "male", "0")
	return env, wallet.NewService(env.App)
}

// startedMatch returns a match between 1 and 2 in regular_tasks.
func startedMatch(t *testing.T, env *testutil.Env) *db.Match {
	t.Helper()
	m := env.SeedMatch(t, 1, 2)
	_, err := match.NewService(env.App).StartTasks(context.Background(), m.ID, 1)
	require.NoError(t, err)
	env.Notifier.Reset()
	return m
}

func paymentStatus(t *testing.T, env *testutil.Env, intentID string) string {
	t.Helper()
	p, err := repository.NewPaymentRepository(env.DB).GetByIntent(context.Background(), intentID)
	require.NoError(t, err)
	return p.Status
}

func TestAdjust(t *testing.T) {
	env, svc := setup(t)
	ctx := context.Background()

	bal, err := svc.Adjust(ctx, 1, dec("-2.50"), "manual")
	require.NoError(t, err)
	assert.Equal(t, "2.50", bal.StringFixed(2))

	_, err = svc.Adjust(ctx, 1, dec("-3"), "manual")
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
	assert.Equal(t, "2.50", env.Balance(t, 1).StringFixed(2))

	_, err = svc.Adjust(ctx, 42, dec("1"), "manual")
	assert.ErrorIs(t, err, wallet.ErrUnknownUser)

	entries, err := svc.Ledger(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, repository.LedgerAdjust, entries[0].Kind)
}

func TestTopUp_AppliedOnce(t *testing.T) {
	env, svc := setup(t)
	ctx := context.Background()

	_, err := svc.TopUp(ctx, 2, dec("0.50"))
	assert.ErrorIs(t, err, wallet.ErrAmountOutOfRange)
	_, err = svc.TopUp(ctx, 2, dec("1000"))
	assert.ErrorIs(t, err, wallet.ErrAmountOutOfRange)

	p, err := svc.TopUp(ctx, 2, dec("10"))
	require.NoError(t, err)
	assert.Equal(t, repository.PaymentPending, p.Status)
	assert.NotEmpty(t, p.PayURL)
	assert.Equal(t, "10.00", env.Gate.Amount(p.IntentID).StringFixed(2))

	applied, err := svc.ApplyPayment(ctx, p.IntentID, dec("10"), 2)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.ApplyPayment(ctx, p.IntentID, dec("10"), 2)
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Equal(t, "10.00", env.Balance(t, 2).StringFixed(2))
	assert.Equal(t, repository.PaymentCompleted, paymentStatus(t, env, p.IntentID))
	assert.Len(t, env.Notifier.OfKind(2, notify.KindPaymentApplied), 1)
}

func TestApplyPayment_Mismatch(t *testing.T) {
	env, svc := setup(t)
	ctx := context.Background()

	p, err := svc.TopUp(ctx, 2, dec("10"))
	require.NoError(t, err)

	_, err = svc.ApplyPayment(ctx, p.IntentID, dec("11"), 2)
	assert.ErrorIs(t, err, wallet.ErrPaymentMismatch)
	_, err = svc.ApplyPayment(ctx, p.IntentID, dec("10"), 3)
	assert.ErrorIs(t, err, wallet.ErrPaymentMismatch)
	_, err = svc.ApplyPayment(ctx, "nope", dec("10"), 2)
	assert.ErrorIs(t, err, wallet.ErrUnknownPayment)

	assert.True(t, env.Balance(t, 2).IsZero())
	assert.Equal(t, repository.PaymentPending, paymentStatus(t, env, p.IntentID))
}

func TestTopUp_GateDown(t *testing.T) {
	env, svc := setup(t)
	env.Gate.SetDown(true)

	_, err := svc.TopUp(context.Background(), 2, dec("10"))
	require.Error(t, err)

	var count int64
	require.NoError(t, env.DB.Model(&db.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

// Applying the same tour payment twice credits and starts the tour once.
func TestBuyTourWithCrypto_Idempotent(t *testing.T) {
	env, svc := setup(t)
	ctx := context.Background()
	m := startedMatch(t, env)

	p, err := svc.BuyTourWithCrypto(ctx, 2, m.ID)
	require.NoError(t, err)
	require.NotNil(t, p.MatchID)
	assert.Equal(t, m.ID, *p.MatchID)

	for i := 0; i < 2; i++ {
		_, err := svc.ApplyPayment(ctx, p.IntentID, dec("2"), 2)
		require.NoError(t, err)
	}

	stored := env.Match(t, m.ID)
	assert.True(t, stored.TourPaid)
	assert.Equal(t, string(match.StageRegularTasks), stored.Stage)
	assert.True(t, env.Balance(t, 2).IsZero())

	entries, err := svc.Ledger(ctx, 2, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Len(t, env.Notifier.OfKind(1, notify.KindTourArmed), 1)
	assert.Len(t, env.Notifier.OfKind(2, notify.KindPaymentApplied), 1)

	_, err = svc.BuyTourWithCrypto(ctx, 2, m.ID)
	assert.ErrorIs(t, err, match.ErrTourAlreadyPaid)
}

func TestBuyTourWithCrypto_NotStarted(t *testing.T) {
	env, svc := setup(t)
	m := env.SeedMatch(t, 1, 2)

	_, err := svc.BuyTourWithCrypto(context.Background(), 1, m.ID)
	assert.ErrorIs(t, err, match.ErrTourNotAvailable)

	_, err = svc.BuyTourWithCrypto(context.Background(), 3, m.ID)
	assert.ErrorIs(t, err, match.ErrNotParticipant)
}

func TestApplyPayment_TourForVanishedMatchKeepsCredit(t *testing.T) {
	env, svc := setup(t)
	ctx := context.Background()
	m := startedMatch(t, env)

	p, err := svc.BuyTourWithCrypto(ctx, 2, m.ID)
	require.NoError(t, err)
	require.NoError(t, repository.NewMatchRepository(env.DB).DeleteCascade(ctx, m.ID))

	applied, err := svc.ApplyPayment(ctx, p.IntentID, dec("2"), 2)
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, "2.00", env.Balance(t, 2).StringFixed(2))
	assert.Len(t, env.Notifier.OfKind(2, notify.KindTourRefunded), 1)
	assert.Equal(t, repository.PaymentCompleted, paymentStatus(t, env, p.IntentID))
}

func TestBuyTourWithBalance(t *testing.T) {
	env, svc := setup(t)
	ctx := context.Background()
	m := startedMatch(t, env)

	// user 2 cannot afford it: nothing changes
	_, err := svc.BuyTourWithBalance(ctx, 2, m.ID)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
	assert.False(t, env.Match(t, m.ID).TourPaid)

	got, err := svc.BuyTourWithBalance(ctx, 1, m.ID)
	require.NoError(t, err)
	assert.True(t, got.TourPaid)
	assert.Equal(t, "3.00", env.Balance(t, 1).StringFixed(2))

	_, err = svc.BuyTourWithBalance(ctx, 1, m.ID)
	assert.ErrorIs(t, err, match.ErrTourAlreadyPaid)
	assert.Equal(t, "3.00", env.Balance(t, 1).StringFixed(2))
}

func TestCheckPayment(t *testing.T) {
	env, svc := setup(t)
	ctx := context.Background()

	p, err := svc.TopUp(ctx, 2, dec("5"))
	require.NoError(t, err)

	st, err := svc.CheckPayment(ctx, 2, p.IntentID)
	require.NoError(t, err)
	assert.Equal(t, repository.PaymentPending, st)

	_, err = svc.CheckPayment(ctx, 3, p.IntentID)
	assert.ErrorIs(t, err, wallet.ErrUnknownPayment)

	env.Gate.SetStatus(p.IntentID, payment.StatusPaid)
	st, err = svc.CheckPayment(ctx, 2, p.IntentID)
	require.NoError(t, err)
	assert.Equal(t, repository.PaymentCompleted, st)
	assert.Equal(t, "5.00", env.Balance(t, 2).StringFixed(2))
}

func TestCoupons(t *testing.T) {
	env, svc := setup(t)
	ctx := context.Background()

	_, err := svc.CreateCoupon(ctx, 1, "WELCOME", dec("1.5"), 2)
	assert.ErrorIs(t, err, wallet.ErrAdminOnly)
	_, err = svc.CreateCoupon(ctx, admin, "WELCOME", dec("0"), 2)
	assert.ErrorIs(t, err, wallet.ErrInvalidCoupon)

	c, err := svc.CreateCoupon(ctx, admin, " welcome ", dec("1.5"), 2)
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", c.Code)

	_, err = svc.CreateCoupon(ctx, admin, "WELCOME", dec("3"), 1)
	assert.ErrorIs(t, err, wallet.ErrCouponExists)

	random, err := svc.CreateCoupon(ctx, admin, "", dec("1"), 1)
	require.NoError(t, err)
	assert.Len(t, random.Code, 10)

	amount, err := svc.RedeemCoupon(ctx, 2, "welcome")
	require.NoError(t, err)
	assert.Equal(t, "1.50", amount.StringFixed(2))

	_, err = svc.RedeemCoupon(ctx, 2, "WELCOME")
	assert.ErrorIs(t, err, wallet.ErrCouponUsed)

	_, err = svc.RedeemCoupon(ctx, 3, "WELCOME")
	require.NoError(t, err)

	_, err = svc.RedeemCoupon(ctx, 1, "WELCOME")
	assert.ErrorIs(t, err, wallet.ErrCouponExhausted)

	_, err = svc.RedeemCoupon(ctx, 1, "MISSING")
	assert.ErrorIs(t, err, wallet.ErrCouponNotFound)

	assert.Equal(t, "1.50", env.Balance(t, 2).StringFixed(2))
	assert.Equal(t, "5.00", env.Balance(t, 1).StringFixed(2))

	list, err := svc.Coupons(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDeleteCoupon(t *testing.T) {
	env, svc := setup(t)
	ctx := context.Background()

	_, err := svc.CreateCoupon(ctx, admin, "SPRING", dec("2"), 10)
	require.NoError(t, err)
	_, err = svc.RedeemCoupon(ctx, 2, "SPRING")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteCoupon(ctx, 1, "SPRING"), wallet.ErrAdminOnly)
	assert.ErrorIs(t, svc.DeleteCoupon(ctx, admin, "NOPE"), wallet.ErrCouponNotFound)

	require.NoError(t, svc.DeleteCoupon(ctx, admin, " spring "))
	assert.ErrorIs(t, svc.DeleteCoupon(ctx, admin, "SPRING"), wallet.ErrCouponNotFound)

	_, err = svc.RedeemCoupon(ctx, 3, "SPRING")
	assert.ErrorIs(t, err, wallet.ErrCouponNotFound)
	assert.Equal(t, "0.00", env.Balance(t, 3).StringFixed(2))
	assert.Equal(t, "2.00", env.Balance(t, 2).StringFixed(2))

	// the code stays taken
	_, err = svc.CreateCoupon(ctx, admin, "SPRING", dec("1"), 1)
	assert.ErrorIs(t, err, wallet.ErrCouponExists)

	list, err := svc.Coupons(ctx, admin)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Active)
	assert.Equal(t, 1, list[0].CurrentUses)
}

func TestBuyBoost(t *testing.T) {
	env, svc := setup(t)
	ctx := context.Background()

	first, err := svc.BuyBoost(ctx, 1)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), first, time.Minute)
	assert.Equal(t, "2.00", env.Balance(t, 1).StringFixed(2))

	// a second boost would overdraw
	_, err = svc.BuyBoost(ctx, 1)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	_, err = svc.Adjust(ctx, 1, dec("3"), "gift")
	require.NoError(t, err)
	second, err := svc.BuyBoost(ctx, 1)
	require.NoError(t, err)
	assert.WithinDuration(t, first.Add(24*time.Hour), second, time.Second)
}
