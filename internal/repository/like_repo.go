package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/utils/pagination"
)

// LikeRepository provides data access methods for the Like model.
// It encapsulates all queries related to interest edges between users.
type LikeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new repository bound to the given DB connection.
func NewLikeRepository(database *gorm.DB) *LikeRepository {
	return &LikeRepository{db: database}
}

func (r *LikeRepository) WithTx(tx *gorm.DB) *LikeRepository {
	return &LikeRepository{db: tx}
}

// Insert stores the edge liker -> target.
//
// Behavior:
//   - If the (liker_id, target_id) pair exists → nothing changes, created is false.
//   - If it doesn't exist → a new row is inserted, created is true.
//
// Example:
//
//	created, err := repo.Insert(ctx, 1, 2, false) // user 1 liked user 2
func (r *LikeRepository) Insert(ctx context.Context, likerID, targetID uint64, isSuper bool) (bool, error) {
	like := db.Like{
		LikerID:  likerID,
		TargetID: targetID,
		IsSuper:  isSuper,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "liker_id"}, {Name: "target_id"}},
			DoNothing: true,
		}).
		Create(&like)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// HasLiked checks whether liker has an edge towards target.
//
// Example:
//
//	repo.HasLiked(ctx, 1, 2) // -> true if user 1 liked user 2
func (r *LikeRepository) HasLiked(ctx context.Context, likerID, targetID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("liker_id = ? AND target_id = ?", likerID, targetID).
		Count(&count).Error
	return count > 0, err
}

// DeleteEdge removes the single edge liker -> target.
func (r *LikeRepository) DeleteEdge(ctx context.Context, likerID, targetID uint64) error {
	return r.db.WithContext(ctx).
		Where("liker_id = ? AND target_id = ?", likerID, targetID).
		Delete(&db.Like{}).Error
}

// DeletePair removes both directed edges between a and b.
func (r *LikeRepository) DeletePair(ctx context.Context, a, b uint64) error {
	return r.db.WithContext(ctx).
		Where("(liker_id = ? AND target_id = ?) OR (liker_id = ? AND target_id = ?)", a, b, b, a).
		Delete(&db.Like{}).Error
}

// TargetsOf returns everyone likerID has liked.
func (r *LikeRepository) TargetsOf(ctx context.Context, likerID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("liker_id = ?", likerID).
		Pluck("target_id", &ids).Error
	return ids, err
}

// DeleteForUser removes every edge from or to userID.
func (r *LikeRepository) DeleteForUser(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).
		Where("liker_id = ? OR target_id = ?", userID, userID).
		Delete(&db.Like{}).Error
}

// pendingQuery selects one-way likes towards targetID: the target has not liked back
// and the liker is still an active profile.
func (r *LikeRepository) pendingQuery(ctx context.Context, targetID uint64) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("likes l").
		Joins("JOIN users u ON u.id = l.liker_id AND u.deleted = ?", false).
		Where("l.target_id = ?", targetID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM likes l2
				WHERE l2.liker_id = ?
				  AND l2.target_id = l.liker_id
			)`, targetID)
}

// ListPendingLikers returns users who liked targetID and have not been answered.
//
// Behavior:
//   - Excludes likers the target already liked back (those became matches).
//   - Excludes deleted likers.
//   - Ordered by is_super DESC, created_at DESC, liker_id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.ListPendingLikers(ctx, 42, nil, 20) // first 20 unanswered likes for user 42
func (r *LikeRepository) ListPendingLikers(
	ctx context.Context,
	targetID uint64,
	paginationToken *string,
	limit int,
) ([]db.Like, *string, error) {
	var likes []db.Like

	// decode cursor if provided
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.pendingQuery(ctx, targetID).
		Select("l.*").
		Order("l.is_super DESC, l.created_at DESC, l.liker_id DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where(
			"(l.is_super < ? OR (l.is_super = ? AND (l.created_at < ? OR (l.created_at = ? AND l.liker_id < ?))))",
			cursor.Super, cursor.Super, ts, ts, cursor.LikerID,
		)
	}

	if err := query.Find(&likes).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(likes) > limit {
		last := likes[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			LikerID:     last.LikerID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
			Super:       last.IsSuper,
		})
		nextToken = &token
		likes = likes[:limit]
	}

	return likes, nextToken, nil
}

// CountPendingLikers returns how many unanswered likes targetID has.
// Used in conjunction with Redis cache (DB is fallback).
//
// Example:
//
//	repo.CountPendingLikers(ctx, 42) // -> 3
func (r *LikeRepository) CountPendingLikers(ctx context.Context, targetID uint64) (int64, error) {
	var count int64
	if err := r.pendingQuery(ctx, targetID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
