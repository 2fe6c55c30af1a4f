package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/wetogether/internal/db"
)

// MatchRepository owns match rows and their children (answers, sessions, messages).
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

// OrderedPair returns (a, b) sorted so that the first id is the smaller one.
func OrderedPair(a, b uint64) (uint64, uint64) {
	if a > b {
		return b, a
	}
	return a, b
}

func (r *MatchRepository) Create(ctx context.Context, m *db.Match) error {
	m.User1ID, m.User2ID = OrderedPair(m.User1ID, m.User2ID)
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MatchRepository) Get(ctx context.Context, id uint64) (*db.Match, error) {
	var m db.Match
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetForUpdate loads the match row with a write lock. Every state transition starts here.
func (r *MatchRepository) GetForUpdate(ctx context.Context, id uint64) (*db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindByPair returns the match between a and b, or nil when there is none.
func (r *MatchRepository) FindByPair(ctx context.Context, a, b uint64) (*db.Match, error) {
	u1, u2 := OrderedPair(a, b)
	var m db.Match
	err := r.db.WithContext(ctx).
		Where("user1_id = ? AND user2_id = ?", u1, u2).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes every column of m, zero values included.
func (r *MatchRepository) Save(ctx context.Context, m *db.Match) error {
	return r.db.WithContext(ctx).Save(m).Error
}

// LatestInStages returns the user's most recently updated match in one of stages.
func (r *MatchRepository) LatestInStages(ctx context.Context, userID uint64, stages []string) (*db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).
		Where("(user1_id = ? OR user2_id = ?) AND stage IN ?", userID, userID, stages).
		Order("updated_at DESC, id DESC").
		Take(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListForUser returns every match userID takes part in, newest first.
func (r *MatchRepository) ListForUser(ctx context.Context, userID uint64) ([]db.Match, error) {
	var ms []db.Match
	err := r.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("id DESC").
		Find(&ms).Error
	return ms, err
}

// DeleteCascade removes the match with its answers, chat sessions and messages.
func (r *MatchRepository) DeleteCascade(ctx context.Context, matchID uint64) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("match_id = ?", matchID).Delete(&db.TaskAnswer{}).Error; err != nil {
		return err
	}
	if err := tx.Where("match_id = ?", matchID).Delete(&db.ChatSession{}).Error; err != nil {
		return err
	}
	if err := tx.Where("match_id = ?", matchID).Delete(&db.Message{}).Error; err != nil {
		return err
	}
	return tx.Delete(&db.Match{}, "id = ?", matchID).Error
}
