package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oggyb/wetogether/internal/db"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentExpired   = "expired"
)

// Ledger entry kinds.
const (
	LedgerTopUp      = "top_up"
	LedgerTourCredit = "tour_credit"
	LedgerTour       = "romantic_tour"
	LedgerSuperLike  = "super_like"
	LedgerBoost      = "boost"
	LedgerCoupon     = "coupon"
	LedgerAdjust     = "adjustment"
)

// Payment purposes.
const (
	PurposeTopUp = "top_up"
	PurposeTour  = "romantic_tour"
)

// PaymentRepository stores payment intents and the balance ledger.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(database *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: database}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

// Create inserts p as pending. ID is generated when empty.
func (r *PaymentRepository) Create(ctx context.Context, p *db.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = PaymentPending
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByIntent(ctx context.Context, intentID string) (*db.Payment, error) {
	var p db.Payment
	if err := r.db.WithContext(ctx).First(&p, "intent_id = ?", intentID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Transition moves the payment from pending to status.
//
// Behavior:
//   - Conditional UPDATE ... WHERE status = 'pending'.
//   - Returns false when the row was already moved by someone else; the caller
//     must then skip every side effect.
//
// Example:
//
//	ok, _ := repo.Transition(ctx, "991", repository.PaymentCompleted)
func (r *PaymentRepository) Transition(ctx context.Context, intentID, status string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Payment{}).
		Where("intent_id = ? AND status = ?", intentID, PaymentPending).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListPending returns up to limit pending payments, oldest first.
func (r *PaymentRepository) ListPending(ctx context.Context, limit int) ([]db.Payment, error) {
	var out []db.Payment
	err := r.db.WithContext(ctx).
		Where("status = ?", PaymentPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Record appends a ledger entry. Amount is signed: credits positive, debits negative.
func (r *PaymentRepository) Record(ctx context.Context, userID uint64, amount decimal.Decimal, kind, reference string) error {
	entry := db.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Kind:      kind,
		Reference: reference,
	}
	return r.db.WithContext(ctx).Create(&entry).Error
}

// Ledger returns the user's entries, newest first.
func (r *PaymentRepository) Ledger(ctx context.Context, userID uint64, limit int) ([]db.LedgerEntry, error) {
	var out []db.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// PendingOlderThan reports whether p was created before now-age.
func PendingOlderThan(p db.Payment, now time.Time, age time.Duration) bool {
	return p.Status == PaymentPending && now.Sub(p.CreatedAt) > age
}
