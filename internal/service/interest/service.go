package interest

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/db"
	svcErr "github.com/oggyb/wetogether/internal/errors"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/repository"
	"github.com/oggyb/wetogether/internal/service/match"
)

var (
	ErrSelfLike      = svcErr.Validation("you cannot like yourself")
	ErrUnknownUser   = svcErr.Validation("this profile does not exist")
	ErrDeletedUser   = svcErr.Validation("this profile was deleted")
	ErrNotRegistered = svcErr.Validation("register a profile before liking others")
)

// Outcome is the result of RegisterLike. MatchID is set only when Mutual.
type Outcome struct {
	Mutual  bool
	MatchID uint64
}

// Liker is one pending like shown to the target.
type Liker struct {
	Profile   *notify.Profile
	IsSuper   bool
	CreatedAt int64
}

// Service maintains the directed like graph and detects mutual interest.
type Service struct {
	appCtx   *app.AppContext
	users    *repository.UserRepository
	likes    *repository.LikeRepository
	matches  *repository.MatchRepository
	payments *repository.PaymentRepository
}

// NewService creates the interest service with dependencies from AppContext.
// Dependencies include:
//   - DB connection (users, likes, matches, ledger)
//   - RedisCache for liker counts and the prompt queue
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		users:    repository.NewUserRepository(appCtx.DB),
		likes:    repository.NewLikeRepository(appCtx.DB),
		matches:  repository.NewMatchRepository(appCtx.DB),
		payments: repository.NewPaymentRepository(appCtx.DB),
	}
}

// RegisterLike records that liker is interested in target and reports whether the
// interest is now mutual.
//
// Behavior:
//   - Both user rows are locked in ascending id order for the whole transaction.
//   - An existing match for the pair is cleared together with both like edges, so
//     a new cycle needs fresh interest from both sides. A repeated like while the
//     match has not started is a retry and returns the existing match unchanged.
//   - A super-like debits SUPER_LIKE_PRICE only when the edge is new; insufficient
//     funds roll back everything.
//   - Notifications go out after commit only.
//
// Example:
//
//	out, err := svc.RegisterLike(ctx, 1, 2, false)
func (s *Service) RegisterLike(ctx context.Context, likerID, targetID uint64, isSuper bool) (Outcome, error) {
	log := s.appCtx.Logger.With("liker", likerID, "target", targetID)
	log.Debug("RegisterLike called", "super", isSuper)

	if likerID == targetID {
		return Outcome{}, ErrSelfLike
	}

	var (
		out     Outcome
		liker   *db.User
		created bool
		cleared bool
		matched bool
	)
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users, err := s.users.WithTx(tx).LockPair(ctx, likerID, targetID)
		if err != nil {
			return err
		}
		l, ok := users[likerID]
		if !ok || l.Deleted {
			return ErrNotRegistered
		}
		t, ok := users[targetID]
		if !ok {
			return ErrUnknownUser
		}
		if t.Deleted {
			return ErrDeletedUser
		}
		liker = l

		likes := s.likes.WithTx(tx)
		matches := s.matches.WithTx(tx)

		existing, err := matches.FindByPair(ctx, likerID, targetID)
		if err != nil {
			return err
		}
		if existing != nil {
			already, err := likes.HasLiked(ctx, likerID, targetID)
			if err != nil {
				return err
			}
			if already && match.Stage(existing.Stage) == match.StageAwaitingStart {
				out = Outcome{Mutual: true, MatchID: existing.ID}
				return nil
			}
			if err := matches.DeleteCascade(ctx, existing.ID); err != nil {
				return err
			}
			if err := likes.DeletePair(ctx, likerID, targetID); err != nil {
				return err
			}
			cleared = true
		}

		created, err = likes.Insert(ctx, likerID, targetID, isSuper)
		if err != nil {
			return err
		}
		if created && isSuper {
			price := s.appCtx.Config.Prices.SuperLike
			if _, err := s.users.WithTx(tx).AdjustBalance(ctx, likerID, price.Neg()); err != nil {
				return err
			}
			ref := fmt.Sprintf("like:%d", targetID)
			if err := s.payments.WithTx(tx).Record(ctx, likerID, price.Neg(), repository.LedgerSuperLike, ref); err != nil {
				return err
			}
		}

		mutual, err := likes.HasLiked(ctx, targetID, likerID)
		if err != nil {
			return err
		}
		if !mutual {
			out = Outcome{}
			return nil
		}

		m := &db.Match{User1ID: likerID, User2ID: targetID}
		p := match.Initial()
		m.Stage = string(p.Stage)
		m.Active = p.Active
		m.User1Expected = p.User1Expected
		m.User2Expected = p.User2Expected
		if err := matches.Create(ctx, m); err != nil {
			return err
		}
		out = Outcome{Mutual: true, MatchID: m.ID}
		matched = true
		return nil
	})
	if err != nil {
		log.Debug("RegisterLike rejected", "err", err)
		return Outcome{}, err
	}

	if cleared || created {
		if err := s.appCtx.RedisCache.InvalidateLikeCount(ctx, likerID, targetID); err != nil {
			log.Warn("like count invalidation failed", "err", err)
		}
	}

	switch {
	case matched:
		log.Info("mutual like", "match", out.MatchID)
		for _, uid := range []uint64{likerID, targetID} {
			from := likerID
			if uid == likerID {
				from = targetID
			}
			notify.Dispatch(ctx, s.appCtx.Notifier, log, uid, notify.Notification{
				Kind:       notify.KindMutualLike,
				MatchID:    out.MatchID,
				FromUserID: from,
				TaskIndex:  match.NotAwaiting,
			})
		}

	case !out.Mutual && created:
		if err := s.appCtx.RedisCache.PushPrompt(ctx, targetID, likerID); err != nil {
			log.Warn("prompt queue push failed", "err", err)
		}
		notify.Dispatch(ctx, s.appCtx.Notifier, log, targetID, notify.Notification{
			Kind:       notify.KindPendingLike,
			FromUserID: likerID,
			TaskIndex:  match.NotAwaiting,
			IsSuper:    isSuper,
			Profile:    match.PublicProfile(liker),
		})
	}

	return out, nil
}

// ListPendingLikers returns the likes towards userID that userID has not answered.
//
// Behavior:
//   - Super-likes first, then newest first.
//   - Supports cursor-based pagination with token.
func (s *Service) ListPendingLikers(ctx context.Context, userID uint64, token *string, limit int) ([]Liker, *string, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	likes, next, err := s.likes.ListPendingLikers(ctx, userID, token, limit)
	if err != nil {
		return nil, nil, err
	}

	out := make([]Liker, 0, len(likes))
	for _, l := range likes {
		u, err := s.users.Get(ctx, l.LikerID)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, Liker{
			Profile:   match.PublicProfile(u),
			IsSuper:   l.IsSuper,
			CreatedAt: l.CreatedAt.UnixMilli(),
		})
	}
	return out, next, nil
}

// CountLikers returns how many pending likes userID has.
// Cache-first strategy:
//  1. Attempts to read from Redis (likes:count:userID), refreshing the TTL on hit.
//  2. On miss or cache failure, falls back to the DB.
//  3. On DB fetch, updates Redis with a 1h TTL.
func (s *Service) CountLikers(ctx context.Context, userID uint64) (int64, error) {
	if n, ok, err := s.appCtx.RedisCache.GetLikeCount(ctx, userID); err == nil && ok {
		return n, nil
	}

	n, err := s.likes.CountPendingLikers(ctx, userID)
	if err != nil {
		return 0, err
	}
	_ = s.appCtx.RedisCache.UpdateLikeCount(ctx, userID, n)
	return n, nil
}

// NextPrompt pops the next queued liker for userID and returns their profile.
// Entries whose like was answered or withdrawn since are skipped. ok is false when
// nothing is left.
func (s *Service) NextPrompt(ctx context.Context, userID uint64) (*Liker, bool, error) {
	for {
		likerID, ok, err := s.appCtx.RedisCache.PopPrompt(ctx, userID)
		if err != nil || !ok {
			return nil, false, err
		}

		pending, err := s.likes.HasLiked(ctx, likerID, userID)
		if err != nil {
			return nil, false, err
		}
		answered, err := s.likes.HasLiked(ctx, userID, likerID)
		if err != nil {
			return nil, false, err
		}
		if !pending || answered {
			continue
		}

		u, err := s.users.Get(ctx, likerID)
		if err != nil {
			return nil, false, err
		}
		if u.Deleted {
			continue
		}
		return &Liker{Profile: match.PublicProfile(u)}, true, nil
	}
}
