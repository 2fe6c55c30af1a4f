package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/wetogether/internal/db"
)

// AnswerRepository stores task answers keyed by (match, category, index, user).
type AnswerRepository struct {
	db *gorm.DB
}

func NewAnswerRepository(database *gorm.DB) *AnswerRepository {
	return &AnswerRepository{db: database}
}

func (r *AnswerRepository) WithTx(tx *gorm.DB) *AnswerRepository {
	return &AnswerRepository{db: tx}
}

// Upsert inserts the answer or overwrites content and kind of the existing one.
//
// Behavior:
//   - One row per (match_id, category, task_index, user_id); a resubmission
//     replaces the payload instead of adding a row.
//
// Example:
//
//	repo.Upsert(ctx, &db.TaskAnswer{MatchID: 1, Category: "regular", TaskIndex: 0, UserID: 7, Kind: "text", Content: "hi"})
func (r *AnswerRepository) Upsert(ctx context.Context, a *db.TaskAnswer) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "match_id"}, {Name: "category"}, {Name: "task_index"}, {Name: "user_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "content", "updated_at"}),
		}).
		Create(a).Error
}

// CountParticipants returns how many distinct users answered at (match, category, index).
// This count is the only input to the "both answered" decision.
func (r *AnswerRepository) CountParticipants(ctx context.Context, matchID uint64, category string, index int) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.TaskAnswer{}).
		Where("match_id = ? AND category = ? AND task_index = ?", matchID, category, index).
		Distinct("user_id").
		Count(&n).Error
	return n, err
}

// ListAt returns all answers stored at (match, category, index).
func (r *AnswerRepository) ListAt(ctx context.Context, matchID uint64, category string, index int) ([]db.TaskAnswer, error) {
	var out []db.TaskAnswer
	err := r.db.WithContext(ctx).
		Where("match_id = ? AND category = ? AND task_index = ?", matchID, category, index).
		Order("user_id ASC").
		Find(&out).Error
	return out, err
}

// ListForMatch returns the full answer history of a match.
func (r *AnswerRepository) ListForMatch(ctx context.Context, matchID uint64) ([]db.TaskAnswer, error) {
	var out []db.TaskAnswer
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("category DESC, task_index ASC, user_id ASC").
		Find(&out).Error
	return out, err
}
