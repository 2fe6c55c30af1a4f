package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/db"
	svcErr "github.com/oggyb/wetogether/internal/errors"
	"github.com/oggyb/wetogether/internal/logger"
	"github.com/oggyb/wetogether/internal/repository"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"

	minAge = 14
	maxAge = 100
)

var (
	ErrNotFound      = svcErr.NotFound("profile not found")
	ErrInvalidAge    = svcErr.Validation("age must be between 14 and 100")
	ErrInvalidGender = svcErr.Validation("gender must be male or female")
	ErrNameRequired  = svcErr.Validation("name is required")
	ErrNoCandidates  = svcErr.NotFound("no more profiles match your search")
)

// RegisterInput carries the public fields of a profile.
type RegisterInput struct {
	UserID   uint64
	Name     string
	Gender   string
	Age      int
	City     string
	Bio      string
	PhotoRef string
}

// Filter narrows Discover. Zero ages mean unbounded.
type Filter struct {
	City   string
	MinAge int
	MaxAge int
}

// Service manages profiles and their lifecycle.
type Service struct {
	appCtx  *app.AppContext
	users   *repository.UserRepository
	likes   *repository.LikeRepository
	matches *repository.MatchRepository
	now     func() time.Time
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:  appCtx,
		users:   repository.NewUserRepository(appCtx.DB),
		likes:   repository.NewLikeRepository(appCtx.DB),
		matches: repository.NewMatchRepository(appCtx.DB),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register creates or updates the profile of in.UserID.
//
// Behavior:
//   - Re-registering a deleted profile revives it.
//   - A balance snapshot left by Delete is restored and removed in the same transaction;
//     restored reports the amount, zero when there was none.
//
// Example:
//
//	u, restored, err := svc.Register(ctx, profile.RegisterInput{UserID: 7, Name: "Aziza", Gender: "female", Age: 23})
func (s *Service) Register(ctx context.Context, in RegisterInput) (*db.User, decimal.Decimal, error) {
	u, err := normalize(in)
	if err != nil {
		return nil, decimal.Zero, err
	}

	var restored decimal.Decimal
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		if err := users.Upsert(ctx, u); err != nil {
			return err
		}
		bal, ok, err := users.TakeSnapshot(ctx, u.ID)
		if err != nil || !ok {
			return err
		}
		restored = bal
		_, err = users.AdjustBalance(ctx, u.ID, bal)
		return err
	})
	if err != nil {
		return nil, decimal.Zero, err
	}

	log := logger.ForUser(s.appCtx.Logger, u.ID)
	if restored.IsPositive() {
		log.Info("profile registered, balance restored", "restored", restored.StringFixed(2))
	} else {
		log.Info("profile registered")
	}

	stored, err := s.users.Get(ctx, u.ID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return stored, restored, nil
}

func normalize(in RegisterInput) (*db.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	gender := strings.ToLower(strings.TrimSpace(in.Gender))
	if gender != GenderMale && gender != GenderFemale {
		return nil, ErrInvalidGender
	}
	if in.Age < minAge || in.Age > maxAge {
		return nil, ErrInvalidAge
	}
	return &db.User{
		ID:       in.UserID,
		Name:     name,
		Gender:   gender,
		Age:      in.Age,
		City:     strings.TrimSpace(in.City),
		Bio:      strings.TrimSpace(in.Bio),
		PhotoRef: in.PhotoRef,
	}, nil
}

// Delete removes the profile from circulation and keeps its balance for a later return.
//
// Behavior:
//   - Snapshots the balance, zeroes it and flags the profile deleted.
//   - Drops every like from or to the user and every match with its answers,
//     sessions and messages.
//   - All of it commits in one transaction.
func (s *Service) Delete(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	var (
		saved   decimal.Decimal
		touched []uint64
	)
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		u, err := users.GetForUpdate(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if u.Deleted {
			return ErrNotFound
		}

		saved = u.Balance
		if err := users.SaveSnapshot(ctx, userID, saved); err != nil {
			return err
		}
		if err := users.MarkDeleted(ctx, userID); err != nil {
			return err
		}

		likes := s.likes.WithTx(tx)
		if touched, err = likes.TargetsOf(ctx, userID); err != nil {
			return err
		}
		if err := likes.DeleteForUser(ctx, userID); err != nil {
			return err
		}

		matches := s.matches.WithTx(tx)
		list, err := matches.ListForUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, m := range list {
			if err := matches.DeleteCascade(ctx, m.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	touched = append(touched, userID)
	if err := s.appCtx.RedisCache.InvalidateLikeCount(ctx, touched...); err != nil {
		s.appCtx.Logger.Warn("like count invalidation failed", "user", userID, "err", err)
	}
	logger.ForUser(s.appCtx.Logger, userID).Info("profile deleted", "saved", saved.StringFixed(2))
	return saved, nil
}

// Get returns an active profile.
func (s *Service) Get(ctx context.Context, userID uint64) (*db.User, error) {
	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Deleted {
		return nil, ErrNotFound
	}
	return u, nil
}

// Discover returns the next candidate of the opposite gender that userID has not liked yet.
// Boosted profiles come first.
func (s *Service) Discover(ctx context.Context, userID uint64, f Filter) (*db.User, error) {
	me, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if f.MinAge > 0 && f.MaxAge > 0 && f.MinAge > f.MaxAge {
		f.MinAge, f.MaxAge = f.MaxAge, f.MinAge
	}

	u, err := s.users.FindCandidate(ctx, userID, repository.CandidateFilter{
		Gender: opposite(me.Gender),
		City:   f.City,
		MinAge: f.MinAge,
		MaxAge: f.MaxAge,
	}, s.now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoCandidates
	}
	return u, err
}

func opposite(gender string) string {
	if gender == GenderMale {
		return GenderFemale
	}
	return GenderMale
}
