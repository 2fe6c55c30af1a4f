package chat

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/db"
	svcErr "github.com/oggyb/wetogether/internal/errors"
	"github.com/oggyb/wetogether/internal/logger"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/repository"
	"github.com/oggyb/wetogether/internal/service/match"
)

const maxMessageLen = 4096

var (
	ErrChatLocked   = svcErr.Precondition("chat is locked for this match")
	ErrEmptyMessage = svcErr.Validation("message cannot be empty")
	ErrTooLong      = svcErr.Validation("message is too long")
)

// Service decides whether free-form messages may flow between a matched pair
// and relays the ones that may.
type Service struct {
	appCtx   *app.AppContext
	matches  *repository.MatchRepository
	sessions *repository.SessionRepository
	limits   match.Limits
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		matches:  repository.NewMatchRepository(appCtx.DB),
		sessions: repository.NewSessionRepository(appCtx.DB),
		limits:   match.NewService(appCtx).Limits(),
	}
}

// MaySend reports whether userID may send a free-form message in matchID right now.
// It never writes.
//
// Behavior:
//   - Unknown match, non-participant or no active session → false.
//   - Task-gated session → true only in a task stage whose counter is below its total.
//   - Free session → true.
func (s *Service) MaySend(ctx context.Context, matchID, userID uint64) (bool, error) {
	_, ok, err := s.gate(ctx, s.matches.Get, s.sessions, matchID, userID)
	return ok, err
}

// gate loads the match with load and applies the session rules for userID.
func (s *Service) gate(
	ctx context.Context,
	load func(context.Context, uint64) (*db.Match, error),
	sessions *repository.SessionRepository,
	matchID, userID uint64,
) (*db.Match, bool, error) {
	m, err := load(ctx, matchID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !match.IsParticipant(m, userID) {
		return m, false, nil
	}

	session, err := sessions.Active(ctx, matchID)
	if err != nil || session == nil {
		return m, false, err
	}
	return m, s.allowed(m, session), nil
}

func (s *Service) allowed(m *db.Match, session *db.ChatSession) bool {
	switch session.Mode {
	case match.ModeFree:
		return true
	case match.ModeTasks:
		switch match.Stage(m.Stage) {
		case match.StageRegularTasks:
			return m.TasksCompleted < s.limits.Regular
		case match.StageRomanticTasks:
			return m.RomanticTasksCompleted < s.limits.Romantic
		}
	}
	return false
}

// Relay stores a message from userID and forwards it to the partner.
func (s *Service) Relay(ctx context.Context, matchID, userID uint64, content string) (*db.Message, error) {
	log := logger.ForUser(logger.ForMatch(s.appCtx.Logger, matchID), userID)

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if len(content) > maxMessageLen {
		return nil, ErrTooLong
	}

	var msg *db.Message
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the match row stays locked until the message is stored
		sessions := s.sessions.WithTx(tx)
		m, ok, err := s.gate(ctx, s.matches.WithTx(tx).GetForUpdate, sessions, matchID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrChatLocked
		}
		msg = &db.Message{
			MatchID:     matchID,
			SenderID:    userID,
			RecipientID: match.PartnerOf(m, userID),
			Content:     content,
		}
		return sessions.CreateMessage(ctx, msg)
	})
	if errors.Is(err, ErrChatLocked) {
		log.Debug("relay refused")
	}
	if err != nil {
		return nil, err
	}

	notify.Dispatch(ctx, s.appCtx.Notifier, log, msg.RecipientID, notify.Notification{
		Kind:        notify.KindChatMessage,
		MatchID:     matchID,
		FromUserID:  userID,
		TaskIndex:   match.NotAwaiting,
		ContentKind: string(match.KindText),
		Content:     content,
	})
	return msg, nil
}

// History returns the last limit relayed messages of a match the user takes part in.
func (s *Service) History(ctx context.Context, matchID, userID uint64, limit int) ([]db.Message, error) {
	m, err := s.matches.Get(ctx, matchID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, match.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	if !match.IsParticipant(m, userID) {
		return nil, match.ErrNotParticipant
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.sessions.ListMessages(ctx, matchID, limit)
}
