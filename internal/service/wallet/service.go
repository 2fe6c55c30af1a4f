package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/db"
	svcErr "github.com/oggyb/wetogether/internal/errors"
	"github.com/oggyb/wetogether/internal/logger"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/payment"
	"github.com/oggyb/wetogether/internal/repository"
	"github.com/oggyb/wetogether/internal/service/match"
)

var (
	ErrUnknownUser       = svcErr.NotFound("profile not found")
	ErrAmountOutOfRange  = svcErr.Validation("top-up amount is outside the allowed range")
	ErrUnknownPayment    = svcErr.NotFound("payment not found")
	ErrPaymentMismatch   = svcErr.Validation("payment amount or user does not match the intent")
	ErrGateUnavailable   = svcErr.Unavailable("payments are not configured", nil)
	ErrCouponNotFound    = svcErr.NotFound("coupon not found")
	ErrCouponExhausted   = svcErr.Precondition("this coupon has been fully used")
	ErrCouponUsed        = svcErr.Precondition("you already used this coupon")
	ErrCouponExists      = svcErr.Precondition("a coupon with this code already exists")
	ErrInvalidCoupon     = svcErr.Validation("coupon amount and max uses must be positive")
	ErrAdminOnly         = svcErr.Forbidden("only admins can do this")
	ErrInvalidAdjustment = svcErr.Validation("adjustment must not be zero")
)

// Service owns balances and the payments that move them.
type Service struct {
	appCtx   *app.AppContext
	users    *repository.UserRepository
	payments *repository.PaymentRepository
	coupons  *repository.CouponRepository
	matches  *match.Service
	now      func() time.Time
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		users:    repository.NewUserRepository(appCtx.DB),
		payments: repository.NewPaymentRepository(appCtx.DB),
		coupons:  repository.NewCouponRepository(appCtx.DB),
		matches:  match.NewService(appCtx),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Balance returns the user's current balance.
func (s *Service) Balance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, ErrUnknownUser
	}
	if err != nil {
		return decimal.Zero, err
	}
	return u.Balance, nil
}

// Adjust adds delta to the balance and records it in the ledger.
// A result below zero fails with repository.ErrInsufficientFunds and changes nothing.
func (s *Service) Adjust(ctx context.Context, userID uint64, delta decimal.Decimal, reference string) (decimal.Decimal, error) {
	if delta.IsZero() {
		return decimal.Zero, ErrInvalidAdjustment
	}
	var bal decimal.Decimal
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		bal, err = s.adjust(ctx, tx, userID, delta, repository.LedgerAdjust, reference)
		return err
	})
	return bal, err
}

func (s *Service) adjust(ctx context.Context, tx *gorm.DB, userID uint64, delta decimal.Decimal, kind, ref string) (decimal.Decimal, error) {
	bal, err := s.users.WithTx(tx).AdjustBalance(ctx, userID, delta)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, ErrUnknownUser
	}
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.payments.WithTx(tx).Record(ctx, userID, delta, kind, ref); err != nil {
		return decimal.Zero, err
	}
	return bal, nil
}

// Ledger returns the user's latest balance movements.
func (s *Service) Ledger(ctx context.Context, userID uint64, limit int) ([]db.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.payments.Ledger(ctx, userID, limit)
}

// TopUp creates a payment intent crediting amount to the balance once paid.
func (s *Service) TopUp(ctx context.Context, userID uint64, amount decimal.Decimal) (*db.Payment, error) {
	prices := s.appCtx.Config.Prices
	if amount.LessThan(prices.TopUpMin) || amount.GreaterThan(prices.TopUpMax) {
		return nil, ErrAmountOutOfRange
	}
	if _, err := s.Balance(ctx, userID); err != nil {
		return nil, err
	}
	return s.createPayment(ctx, userID, amount.Round(2), repository.PurposeTopUp, nil, "Balance top-up")
}

// BuyTourWithCrypto creates a payment intent for the romantic tour of matchID.
// The tour is applied to that match only, when the payment completes.
func (s *Service) BuyTourWithCrypto(ctx context.Context, userID, matchID uint64) (*db.Payment, error) {
	if _, err := s.matches.CheckTourEligible(ctx, matchID, userID); err != nil {
		return nil, err
	}
	price := s.appCtx.Config.Prices.RomanticTour
	return s.createPayment(ctx, userID, price, repository.PurposeTour, &matchID, "Romantic tour")
}

func (s *Service) createPayment(ctx context.Context, userID uint64, amount decimal.Decimal, purpose string, matchID *uint64, memo string) (*db.Payment, error) {
	if s.appCtx.Gate == nil {
		return nil, ErrGateUnavailable
	}
	intent, err := s.appCtx.Gate.CreateIntent(ctx, amount, userID, memo)
	if err != nil {
		s.appCtx.Logger.Error("payment intent failed", "user", userID, "purpose", purpose, "err", err)
		return nil, svcErr.Unavailable("payment provider is unavailable, try again later", err)
	}

	p := &db.Payment{
		IntentID: intent.ID,
		UserID:   userID,
		Amount:   amount,
		Purpose:  purpose,
		MatchID:  matchID,
		PayURL:   intent.PayURL,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	logger.ForUser(s.appCtx.Logger, userID).Info("payment intent created", "intent", intent.ID, "purpose", purpose, "amount", amount.StringFixed(2))
	return p, nil
}

// BuyTourWithBalance pays the romantic tour of matchID from the balance.
// Debit and tour activation commit together or not at all.
func (s *Service) BuyTourWithBalance(ctx context.Context, userID, matchID uint64) (*db.Match, error) {
	if _, err := s.matches.Get(ctx, matchID, userID); err != nil {
		return nil, err
	}
	price := s.appCtx.Config.Prices.RomanticTour

	var (
		m  *db.Match
		tr match.Transition
	)
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, tr, err = s.matches.MarkTourPaid(ctx, tx, matchID)
		if err != nil {
			return err
		}
		_, err = s.adjust(ctx, tx, userID, price.Neg(), repository.LedgerTour, matchRef(matchID))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.matches.NotifyTransition(ctx, m, tr)
	return m, nil
}

// ApplyPayment settles a completed payment intent. It is idempotent per intent id.
//
// Behavior:
//   - The intent must exist and match userID and amount, or nothing is mutated.
//   - A conditional pending → completed update decides who applies it; every later
//     call returns applied=false without side effects.
//   - Top-up: credit the balance.
//   - Tour: credit, then debit the price and mark the tour paid on the referenced
//     match. When that match is gone or cannot take the tour, the credit stays on
//     the balance and the user is told.
func (s *Service) ApplyPayment(ctx context.Context, intentID string, amount decimal.Decimal, userID uint64) (bool, error) {
	log := logger.ForUser(s.appCtx.Logger, userID).With("intent", intentID)

	var (
		applied  bool
		p        *db.Payment
		m        *db.Match
		tr       match.Transition
		refunded bool
	)
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)
		var err error
		p, err = payments.GetByIntent(ctx, intentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownPayment
		}
		if err != nil {
			return err
		}
		if p.UserID != userID || !p.Amount.Equal(amount) {
			return ErrPaymentMismatch
		}

		ok, err := payments.Transition(ctx, intentID, repository.PaymentCompleted)
		if err != nil || !ok {
			return err
		}
		applied = true

		if p.Purpose != repository.PurposeTour {
			_, err = s.adjust(ctx, tx, userID, p.Amount, repository.LedgerTopUp, intentID)
			return err
		}

		if _, err := s.adjust(ctx, tx, userID, p.Amount, repository.LedgerTourCredit, intentID); err != nil {
			return err
		}
		if p.MatchID == nil {
			refunded = true
			return nil
		}
		m, tr, err = s.matches.MarkTourPaid(ctx, tx, *p.MatchID)
		if err != nil {
			if svcErr.KindOf(err) == svcErr.KindInternal {
				return err
			}
			log.Warn("tour could not be applied, credit kept on balance", "match", *p.MatchID, "err", err)
			m, refunded = nil, true
			return nil
		}
		_, err = s.adjust(ctx, tx, userID, p.Amount.Neg(), repository.LedgerTour, matchRef(*p.MatchID))
		return err
	})
	if err != nil {
		log.Error("apply payment failed", "err", err)
		return false, err
	}
	if !applied {
		log.Debug("payment already settled")
		return false, nil
	}

	log.Info("payment applied", "purpose", p.Purpose, "amount", p.Amount.StringFixed(2))
	n := notify.Notification{
		Kind:      notify.KindPaymentApplied,
		TaskIndex: match.NotAwaiting,
		Amount:    p.Amount.StringFixed(2),
	}
	if p.MatchID != nil {
		n.MatchID = *p.MatchID
	}
	notify.Dispatch(ctx, s.appCtx.Notifier, log, userID, n)

	switch {
	case refunded:
		n.Kind = notify.KindTourRefunded
		notify.Dispatch(ctx, s.appCtx.Notifier, log, userID, n)
	case m != nil:
		s.matches.NotifyTransition(ctx, m, tr)
	}
	return true, nil
}

// ExpirePayment marks a pending intent expired. Returns false when it was not pending.
func (s *Service) ExpirePayment(ctx context.Context, intentID string) (bool, error) {
	ok, err := s.payments.Transition(ctx, intentID, repository.PaymentExpired)
	if err != nil {
		return false, err
	}
	if ok {
		s.appCtx.Logger.Info("payment expired", "intent", intentID)
	}
	return ok, nil
}

// RedeemCoupon credits the coupon amount to userID, once per user and at most MaxUses times.
func (s *Service) RedeemCoupon(ctx context.Context, userID uint64, code string) (decimal.Decimal, error) {
	code = normalizeCode(code)

	var amount decimal.Decimal
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		coupons := s.coupons.WithTx(tx)
		c, err := coupons.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if c == nil || !c.Active {
			return ErrCouponNotFound
		}
		if c.CurrentUses >= c.MaxUses {
			return ErrCouponExhausted
		}
		ok, err := coupons.Redeem(ctx, code, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCouponUsed
		}
		amount = c.Amount
		_, err = s.adjust(ctx, tx, userID, c.Amount, repository.LedgerCoupon, code)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	logger.ForUser(s.appCtx.Logger, userID).Info("coupon redeemed", "code", code, "amount", amount.StringFixed(2))
	return amount, nil
}

// CreateCoupon issues a balance coupon. Only ids listed in ADMIN_IDS may call it.
// An empty code gets a random one.
func (s *Service) CreateCoupon(ctx context.Context, adminID uint64, code string, amount decimal.Decimal, maxUses int) (*db.BalanceCoupon, error) {
	if !s.appCtx.Config.IsAdmin(adminID) {
		return nil, ErrAdminOnly
	}
	if !amount.IsPositive() || maxUses <= 0 {
		return nil, ErrInvalidCoupon
	}
	code = normalizeCode(code)
	if code == "" {
		code = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	}

	c := &db.BalanceCoupon{
		Code:      code,
		Amount:    amount.Round(2),
		MaxUses:   maxUses,
		Active:    true,
		CreatedBy: adminID,
	}
	created, err := s.coupons.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrCouponExists
	}
	return c, nil
}

// DeleteCoupon deactivates code so it can no longer be redeemed. Admin only.
// The row and its redemptions are kept.
func (s *Service) DeleteCoupon(ctx context.Context, adminID uint64, code string) error {
	if !s.appCtx.Config.IsAdmin(adminID) {
		return ErrAdminOnly
	}
	code = normalizeCode(code)
	ok, err := s.coupons.Deactivate(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCouponNotFound
	}
	logger.ForUser(s.appCtx.Logger, adminID).Info("coupon deactivated", "code", code)
	return nil
}

// Coupons lists every coupon. Admin only.
func (s *Service) Coupons(ctx context.Context, adminID uint64) ([]db.BalanceCoupon, error) {
	if !s.appCtx.Config.IsAdmin(adminID) {
		return nil, ErrAdminOnly
	}
	return s.coupons.List(ctx)
}

// BuyBoost debits BOOST_PROFILE_PRICE and lifts the profile in discovery for BOOST_DURATION.
// Buying while a boost runs extends it.
func (s *Service) BuyBoost(ctx context.Context, userID uint64) (time.Time, error) {
	price := s.appCtx.Config.Prices.Boost
	var until time.Time
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.adjust(ctx, tx, userID, price.Neg(), repository.LedgerBoost, "boost"); err != nil {
			return err
		}
		var err error
		until, err = s.coupons.WithTx(tx).CreateBoost(ctx, userID, s.now(), s.appCtx.Config.Boost.Duration)
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	logger.ForUser(s.appCtx.Logger, userID).Info("profile boosted", "until", until)
	return until, nil
}

func matchRef(matchID uint64) string { return fmt.Sprintf("match:%d", matchID) }

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckPayment asks the gate about one of the user's intents right away instead of
// waiting for the poller, and settles it when paid. Returns the stored status.
func (s *Service) CheckPayment(ctx context.Context, userID uint64, intentID string) (string, error) {
	p, err := s.payments.GetByIntent(ctx, intentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrUnknownPayment
	}
	if err != nil {
		return "", err
	}
	if p.UserID != userID {
		return "", ErrUnknownPayment
	}
	if p.Status != repository.PaymentPending {
		return p.Status, nil
	}
	if s.appCtx.Gate == nil {
		return "", ErrGateUnavailable
	}

	st, err := s.appCtx.Gate.PollStatus(ctx, intentID)
	if err != nil {
		return "", svcErr.Unavailable("payment provider is unavailable, try again later", err)
	}
	switch st {
	case payment.StatusPaid:
		if _, err := s.ApplyPayment(ctx, intentID, p.Amount, userID); err != nil {
			return "", err
		}
		return repository.PaymentCompleted, nil
	case payment.StatusExpired:
		if _, err := s.ExpirePayment(ctx, intentID); err != nil {
			return "", err
		}
		return repository.PaymentExpired, nil
	}
	return repository.PaymentPending, nil
}
