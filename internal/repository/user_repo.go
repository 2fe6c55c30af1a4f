package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/wetogether/internal/db"
	svcErr "github.com/oggyb/wetogether/internal/errors"
)

// ErrInsufficientFunds is returned when a balance adjustment would go negative.
var ErrInsufficientFunds = svcErr.Validation("not enough balance, top up and try again")

// UserRepository provides data access for profiles, balances and balance snapshots.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// WithTx returns a repository bound to tx.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Get(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetForUpdate loads the user row with a write lock. Must run inside a transaction.
func (r *UserRepository) GetForUpdate(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&u, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// LockPair locks both user rows in ascending id order and returns them keyed by id.
// Missing ids are simply absent from the map.
//
// Behavior:
//   - A single ordered SELECT ... FOR UPDATE, so two transactions touching the
//     same pair always acquire locks in the same order.
//
// Example:
//
//	users, _ := repo.WithTx(tx).LockPair(ctx, 9, 4) // locks 4 then 9
func (r *UserRepository) LockPair(ctx context.Context, a, b uint64) (map[uint64]*db.User, error) {
	var users []db.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", []uint64{a, b}).
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]*db.User, len(users))
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// Upsert inserts the profile or overwrites its public fields. Balance is never touched here.
func (r *UserRepository) Upsert(ctx context.Context, u *db.User) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "gender", "age", "city", "bio", "photo_ref", "deleted", "updated_at",
			}),
		}).
		Create(u).Error
}

// AdjustBalance adds delta to the user's balance and returns the new balance.
//
// Behavior:
//   - Locks the user row, computes the result in decimal, writes it back.
//   - A negative result fails with ErrInsufficientFunds and writes nothing.
//   - Must run inside a transaction so the lock spans read and write.
//
// Example:
//
//	bal, err := repo.WithTx(tx).AdjustBalance(ctx, 42, decimal.NewFromInt(-2))
func (r *UserRepository) AdjustBalance(ctx context.Context, userID uint64, delta decimal.Decimal) (decimal.Decimal, error) {
	u, err := r.GetForUpdate(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	next := u.Balance.Add(delta)
	if next.IsNegative() {
		return u.Balance, ErrInsufficientFunds
	}
	if err := r.setBalance(ctx, userID, next); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

func (r *UserRepository) setBalance(ctx context.Context, userID uint64, bal decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", userID).
		Update("balance", bal).Error
}

// MarkDeleted zeroes the balance and flags the profile as deleted.
func (r *UserRepository) MarkDeleted(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"deleted": true, "balance": decimal.Zero}).Error
}

// SaveSnapshot stores bal for a deleted user, replacing any older snapshot.
func (r *UserRepository) SaveSnapshot(ctx context.Context, userID uint64, bal decimal.Decimal) error {
	snap := db.BalanceSnapshot{UserID: userID, Balance: bal}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"balance", "created_at"}),
		}).
		Create(&snap).Error
}

// TakeSnapshot returns and deletes the user's snapshot. ok is false when none exists.
func (r *UserRepository) TakeSnapshot(ctx context.Context, userID uint64) (bal decimal.Decimal, ok bool, err error) {
	var snap db.BalanceSnapshot
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&snap, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	if err := r.db.WithContext(ctx).Delete(&db.BalanceSnapshot{}, "user_id = ?", userID).Error; err != nil {
		return decimal.Zero, false, err
	}
	return snap.Balance, true, nil
}

// CandidateFilter narrows discovery. Zero ages mean unbounded.
type CandidateFilter struct {
	Gender string
	City   string
	MinAge int
	MaxAge int
}

// FindCandidate returns the next profile userID has not liked yet.
//
// Behavior:
//   - Excludes self, deleted profiles and profiles already liked by userID.
//   - City match is case-insensitive.
//   - Profiles with an active boost come first, then ascending id.
//   - Returns gorm.ErrRecordNotFound when nothing matches.
func (r *UserRepository) FindCandidate(ctx context.Context, userID uint64, f CandidateFilter, now time.Time) (*db.User, error) {
	q := r.db.WithContext(ctx).
		Table("users u").
		Select("u.*").
		Where("u.id <> ? AND u.deleted = ?", userID, false).
		Where("NOT EXISTS (SELECT 1 FROM likes l WHERE l.liker_id = ? AND l.target_id = u.id)", userID)

	if f.Gender != "" {
		q = q.Where("u.gender = ?", f.Gender)
	}
	if city := strings.TrimSpace(f.City); city != "" {
		q = q.Where("LOWER(u.city) = ?", strings.ToLower(city))
	}
	if f.MinAge > 0 {
		q = q.Where("u.age >= ?", f.MinAge)
	}
	if f.MaxAge > 0 {
		q = q.Where("u.age <= ?", f.MaxAge)
	}

	var u db.User
	err := q.
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:  "CASE WHEN EXISTS (SELECT 1 FROM profile_boosts b WHERE b.user_id = u.id AND b.expires_at > ?) THEN 0 ELSE 1 END, u.id ASC",
			Vars: []any{now},
		}}).
		Limit(1).
		Take(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}
