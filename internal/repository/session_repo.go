package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/oggyb/wetogether/internal/db"
)

// SessionRepository keeps the chat session and relayed messages of each match.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(database *gorm.DB) *SessionRepository {
	return &SessionRepository{db: database}
}

func (r *SessionRepository) WithTx(tx *gorm.DB) *SessionRepository {
	return &SessionRepository{db: tx}
}

// Supersede deactivates the current session of the match and opens a new one in mode.
// Must run inside a transaction so at most one session is ever active.
func (r *SessionRepository) Supersede(ctx context.Context, matchID uint64, mode string) (*db.ChatSession, error) {
	err := r.db.WithContext(ctx).
		Model(&db.ChatSession{}).
		Where("match_id = ? AND active = ?", matchID, true).
		Update("active", false).Error
	if err != nil {
		return nil, err
	}

	s := &db.ChatSession{MatchID: matchID, Mode: mode, Active: true}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// Active returns the active session of the match, or nil when there is none.
func (r *SessionRepository) Active(ctx context.Context, matchID uint64) (*db.ChatSession, error) {
	var s db.ChatSession
	err := r.db.WithContext(ctx).
		Where("match_id = ? AND active = ?", matchID, true).
		Order("id DESC").
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) CreateMessage(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns the last limit messages of a match, oldest first.
func (r *SessionRepository) ListMessages(ctx context.Context, matchID uint64, limit int) ([]db.Message, error) {
	var out []db.Message
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
