package match

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/logger"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/repository"
)

// Chat session modes.
const (
	ModeTasks = "tasks"
	ModeFree  = "free"
)

// Service owns the lifecycle of a match. Every mutation of a match row goes through it,
// under a row lock, inside one transaction.
type Service struct {
	appCtx   *app.AppContext
	matches  *repository.MatchRepository
	answers  *repository.AnswerRepository
	sessions *repository.SessionRepository
	users    *repository.UserRepository
	likes    *repository.LikeRepository
	limits   Limits
}

func NewService(appCtx *app.AppContext) *Service {
	limits := Limits{
		Regular:  appCtx.Config.Tasks.RegularCount,
		Romantic: appCtx.Config.Tasks.RomanticCount,
	}
	if c := appCtx.Catalogue; c != nil {
		limits = Limits{Regular: len(c.Regular), Romantic: len(c.Romantic)}
	}
	return &Service{
		appCtx:   appCtx,
		matches:  repository.NewMatchRepository(appCtx.DB),
		answers:  repository.NewAnswerRepository(appCtx.DB),
		sessions: repository.NewSessionRepository(appCtx.DB),
		users:    repository.NewUserRepository(appCtx.DB),
		likes:    repository.NewLikeRepository(appCtx.DB),
		limits:   limits,
	}
}

func (s *Service) Limits() Limits { return s.limits }

// IsParticipant reports whether userID is one of the pair.
func IsParticipant(m *db.Match, userID uint64) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// PartnerOf returns the other participant.
func PartnerOf(m *db.Match, userID uint64) uint64 {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}

func expectedFor(m *db.Match, userID uint64) int {
	if m.User1ID == userID {
		return m.User1Expected
	}
	return m.User2Expected
}

// lockParticipant loads and locks the match, checking that userID belongs to it.
func (s *Service) lockParticipant(ctx context.Context, tx *gorm.DB, matchID, userID uint64) (*db.Match, error) {
	m, err := s.matches.WithTx(tx).GetForUpdate(ctx, matchID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	if !IsParticipant(m, userID) {
		return nil, ErrNotParticipant
	}
	return m, nil
}

// Get returns the match if userID takes part in it.
func (s *Service) Get(ctx context.Context, matchID, userID uint64) (*db.Match, error) {
	m, err := s.matches.Get(ctx, matchID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	if !IsParticipant(m, userID) {
		return nil, ErrNotParticipant
	}
	return m, nil
}

// StartTasks moves the match from AwaitingStart into RegularTasks(0) and opens a
// task-gated chat session. Either participant may call it; repeating it is harmless.
func (s *Service) StartTasks(ctx context.Context, matchID, userID uint64) (*db.Match, error) {
	log := logger.ForUser(logger.ForMatch(s.appCtx.Logger, matchID), userID)
	log.Debug("StartTasks called")

	var (
		m  *db.Match
		tr Transition
	)
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = s.lockParticipant(ctx, tx, matchID, userID)
		if err != nil {
			return err
		}

		next, t, err := Start(progressOf(m))
		if err != nil {
			return err
		}
		if t.Event == EventNone {
			return nil
		}
		applyProgress(m, next)
		if err := s.matches.WithTx(tx).Save(ctx, m); err != nil {
			return err
		}
		if _, err := s.sessions.WithTx(tx).Supersede(ctx, m.ID, ModeTasks); err != nil {
			return err
		}
		tr = t
		return nil
	})
	if err != nil {
		log.Debug("StartTasks rejected", "err", err)
		return nil, err
	}

	s.NotifyTransition(ctx, m, tr)
	return m, nil
}

// Ignore removes a match that has not started yet. The ignoring user's like is
// withdrawn too, so the pair only re-matches if that user likes again.
func (s *Service) Ignore(ctx context.Context, matchID, userID uint64) error {
	log := logger.ForUser(logger.ForMatch(s.appCtx.Logger, matchID), userID)
	log.Debug("Ignore called")

	var partner uint64
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.lockParticipant(ctx, tx, matchID, userID)
		if err != nil {
			return err
		}
		if Stage(m.Stage) != StageAwaitingStart {
			return ErrAlreadyStarted
		}
		partner = PartnerOf(m, userID)
		if err := s.matches.WithTx(tx).DeleteCascade(ctx, m.ID); err != nil {
			return err
		}
		return s.likes.WithTx(tx).DeleteEdge(ctx, userID, partner)
	})
	if err != nil {
		return err
	}

	notify.Dispatch(ctx, s.appCtx.Notifier, log, partner, notify.Notification{
		Kind:       notify.KindMatchIgnored,
		MatchID:    matchID,
		FromUserID: userID,
	})
	return nil
}

// MarkTourPaid applies a paid romantic tour to the match inside the caller's transaction.
// The caller sends NotifyTransition after commit.
func (s *Service) MarkTourPaid(ctx context.Context, tx *gorm.DB, matchID uint64) (*db.Match, Transition, error) {
	m, err := s.matches.WithTx(tx).GetForUpdate(ctx, matchID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Transition{}, ErrMatchNotFound
	}
	if err != nil {
		return nil, Transition{}, err
	}

	next, tr, err := PayTour(progressOf(m), s.appCtx.Config.Payment.AllowTourReopen)
	if err != nil {
		return m, Transition{}, err
	}
	applyProgress(m, next)
	if err := s.matches.WithTx(tx).Save(ctx, m); err != nil {
		return nil, Transition{}, err
	}
	if tr.From == StageAwaitingReveal {
		if _, err := s.sessions.WithTx(tx).Supersede(ctx, m.ID, ModeTasks); err != nil {
			return nil, Transition{}, err
		}
	}

	logger.ForMatch(s.appCtx.Logger, matchID).Info("romantic tour paid", "event", tr.Event, "stage", m.Stage)
	return m, tr, nil
}

// CheckTourEligible verifies, without writing, that userID could pay the tour for matchID now.
func (s *Service) CheckTourEligible(ctx context.Context, matchID, userID uint64) (*db.Match, error) {
	m, err := s.Get(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	if _, _, err := PayTour(progressOf(m), s.appCtx.Config.Payment.AllowTourReopen); err != nil {
		return nil, err
	}
	return m, nil
}

// TaskView is what a participant should be answering right now.
type TaskView struct {
	MatchID   uint64
	PartnerID uint64
	Stage     Stage
	Category  Category
	Index     int
	Total     int
	Prompt    string
	Answered  bool
}

// CurrentTask returns the open task of the user's most recently active task-stage match.
func (s *Service) CurrentTask(ctx context.Context, userID uint64) (*TaskView, error) {
	m, err := s.matches.LatestInStages(ctx, userID, TaskStages)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoTaskPending
	}
	if err != nil {
		return nil, err
	}

	p := progressOf(m)
	cat, _ := p.Stage.Category()
	idx := p.CurrentIndex()
	return &TaskView{
		MatchID:   m.ID,
		PartnerID: PartnerOf(m, userID),
		Stage:     p.Stage,
		Category:  cat,
		Index:     idx,
		Total:     s.total(cat),
		Prompt:    s.prompt(cat, idx),
		Answered:  expectedFor(m, userID) == NotAwaiting,
	}, nil
}

// RevealProfile returns the partner's public profile once the regular tasks are done.
func (s *Service) RevealProfile(ctx context.Context, matchID, userID uint64) (*notify.Profile, error) {
	m, err := s.Get(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	switch Stage(m.Stage) {
	case StageAwaitingReveal, StageConcluded:
	default:
		return nil, ErrRevealNotAvailable
	}

	u, err := s.users.Get(ctx, PartnerOf(m, userID))
	if err != nil {
		return nil, err
	}
	return PublicProfile(u), nil
}

// PublicProfile strips private fields from u.
func PublicProfile(u *db.User) *notify.Profile {
	return &notify.Profile{
		UserID:   u.ID,
		Name:     u.Name,
		Gender:   u.Gender,
		Age:      u.Age,
		City:     u.City,
		Bio:      u.Bio,
		PhotoRef: u.PhotoRef,
	}
}

func (s *Service) total(c Category) int {
	if c == CategoryRomantic {
		return s.limits.Romantic
	}
	return s.limits.Regular
}

func (s *Service) prompt(c Category, index int) string {
	cat := s.appCtx.Catalogue
	if cat == nil || index < 0 {
		return ""
	}
	list := cat.Regular
	if c == CategoryRomantic {
		list = cat.Romantic
	}
	if index >= len(list) {
		return ""
	}
	return list[index]
}

// NotifyTransition tells both participants what a transition changed.
// Call it only after the transaction that applied tr has committed.
func (s *Service) NotifyTransition(ctx context.Context, m *db.Match, tr Transition) {
	var n notify.Notification
	switch tr.Event {
	case EventStarted:
		n = notify.Notification{Kind: notify.KindTasksStarted}
	case EventAdvanced:
		n = notify.Notification{Kind: notify.KindNextTask}
	case EventTourStarted:
		n = notify.Notification{Kind: notify.KindTourStarted}
	case EventTourArmed:
		n = notify.Notification{Kind: notify.KindTourArmed, TaskIndex: NotAwaiting}
	case EventRevealReady:
		n = notify.Notification{Kind: notify.KindRevealAvailable, TaskIndex: NotAwaiting}
	case EventConcluded:
		n = notify.Notification{Kind: notify.KindTasksConcluded, TaskIndex: NotAwaiting}
	default:
		return
	}
	n.MatchID = m.ID

	if cat, ok := tr.To.Category(); ok && tr.Event != EventTourArmed {
		n.Category = string(cat)
		n.TaskIndex = tr.Index
		n.Prompt = s.prompt(cat, tr.Index)
	}

	log := logger.ForMatch(s.appCtx.Logger, m.ID)
	for _, uid := range []uint64{m.User1ID, m.User2ID} {
		notify.Dispatch(ctx, s.appCtx.Notifier, log, uid, n)
	}
}
