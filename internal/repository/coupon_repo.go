package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/wetogether/internal/db"
)

// CouponRepository covers balance coupons and profile boosts.
type CouponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(database *gorm.DB) *CouponRepository {
	return &CouponRepository{db: database}
}

func (r *CouponRepository) WithTx(tx *gorm.DB) *CouponRepository {
	return &CouponRepository{db: tx}
}

// Create inserts c. created is false when the code already exists.
func (r *CouponRepository) Create(ctx context.Context, c *db.BalanceCoupon) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetForUpdate locks the coupon row. Returns nil when the code is unknown.
func (r *CouponRepository) GetForUpdate(ctx context.Context, code string) (*db.BalanceCoupon, error) {
	var c db.BalanceCoupon
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Redeem records that userID used code and bumps the use counter.
// redeemed is false when the user had already used it.
func (r *CouponRepository) Redeem(ctx context.Context, code string, userID uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.CouponRedemption{Code: code, UserID: userID})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := r.db.WithContext(ctx).
		Model(&db.BalanceCoupon{}).
		Where("code = ?", code).
		Update("current_uses", gorm.Expr("current_uses + 1")).Error
	return err == nil, err
}

// Deactivate switches code off. found is false when no active coupon has that code.
func (r *CouponRepository) Deactivate(ctx context.Context, code string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.BalanceCoupon{}).
		Where("code = ? AND active = ?", code, true).
		Update("active", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *CouponRepository) List(ctx context.Context) ([]db.BalanceCoupon, error) {
	var out []db.BalanceCoupon
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// CreateBoost starts a boost, or extends the user's running one, until now+d.
// Returns the new expiry.
func (r *CouponRepository) CreateBoost(ctx context.Context, userID uint64, now time.Time, d time.Duration) (time.Time, error) {
	start := now
	if until, ok, err := r.ActiveBoost(ctx, userID, now); err != nil {
		return time.Time{}, err
	} else if ok {
		start = until
	}
	b := db.ProfileBoost{UserID: userID, ExpiresAt: start.Add(d)}
	if err := r.db.WithContext(ctx).Create(&b).Error; err != nil {
		return time.Time{}, err
	}
	return b.ExpiresAt, nil
}

// ActiveBoost returns the latest expiry of the user's boosts if it is after now.
func (r *CouponRepository) ActiveBoost(ctx context.Context, userID uint64, now time.Time) (time.Time, bool, error) {
	var b db.ProfileBoost
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("expires_at DESC").
		Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return b.ExpiresAt, true, nil
}
