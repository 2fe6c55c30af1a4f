package match

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/logger"
	"github.com/oggyb/wetogether/internal/notify"
)

type OutcomeKind string

const (
	// OutcomeWaiting: the answer is stored, the partner has not answered this task yet.
	OutcomeWaiting OutcomeKind = "waiting"
	// OutcomeAdvanced: this answer completed the task and the match moved on.
	OutcomeAdvanced OutcomeKind = "advanced"
	// OutcomeSuperseded: the answer was for an already completed task; it replaced the
	// stored one and nothing else happened.
	OutcomeSuperseded OutcomeKind = "superseded"
)

type Outcome struct {
	Kind       OutcomeKind
	Stage      Stage
	TaskIndex  int
	Transition Transition
}

type SubmitInput struct {
	MatchID   uint64
	UserID    uint64
	TaskIndex int
	Kind      ContentKind
	Content   string
}

// SubmitAnswer stores a participant's answer and advances the match when both answered.
//
// Behavior:
//   - Everything happens in one transaction with the match row locked, so two
//     answers arriving together produce exactly one advancement.
//   - The decision uses the stored count of distinct answering users at the
//     current index, never an in-memory counter.
//   - Answers for an earlier index overwrite the stored answer and return
//     OutcomeSuperseded without forwarding anything. This includes retries for
//     a category the match has already finished.
//   - Partner answers and the next prompt are sent only after commit.
//
// Example:
//
//	out, err := svc.SubmitAnswer(ctx, match.SubmitInput{MatchID: 1, UserID: 7, TaskIndex: 0, Kind: match.KindText, Content: "pizza"})
func (s *Service) SubmitAnswer(ctx context.Context, in SubmitInput) (Outcome, error) {
	log := logger.ForUser(logger.ForMatch(s.appCtx.Logger, in.MatchID), in.UserID)
	log.Debug("SubmitAnswer called", "index", in.TaskIndex, "kind", in.Kind)

	var (
		out      Outcome
		m        *db.Match
		cat      Category
		answered []db.TaskAnswer
	)
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = s.lockParticipant(ctx, tx, in.MatchID, in.UserID)
		if err != nil {
			return err
		}

		answers := s.answers.WithTx(tx)
		store := func(c Category) error {
			return answers.Upsert(ctx, &db.TaskAnswer{
				MatchID:   m.ID,
				Category:  string(c),
				TaskIndex: in.TaskIndex,
				UserID:    in.UserID,
				Kind:      string(in.Kind),
				Content:   in.Content,
			})
		}

		p := progressOf(m)

		// a retry for a category the match already left
		if done, ok := categoryOf(in.Kind); ok && p.Finished(done) &&
			in.TaskIndex >= 0 && in.TaskIndex < s.total(done) {
			if in.Content == "" {
				return ErrEmptyAnswer
			}
			cat = done
			if err := store(done); err != nil {
				return err
			}
			out = Outcome{Kind: OutcomeSuperseded, Stage: p.Stage, TaskIndex: p.CurrentIndex()}
			return nil
		}

		c, ok := p.Stage.Category()
		if !ok {
			return ErrNoTaskPending
		}
		cat = c
		if err := checkContent(c, in.Kind, in.Content); err != nil {
			return err
		}

		cur := p.CurrentIndex()
		if in.TaskIndex < 0 || in.TaskIndex > cur {
			return ErrTaskNotOpen
		}

		if err := store(c); err != nil {
			return err
		}

		if in.TaskIndex < cur {
			out = Outcome{Kind: OutcomeSuperseded, Stage: p.Stage, TaskIndex: cur}
			return nil
		}

		n, err := answers.CountParticipants(ctx, m.ID, string(c), cur)
		if err != nil {
			return err
		}

		if n < 2 {
			if m.User1ID == in.UserID {
				p.User1Expected = NotAwaiting
			} else {
				p.User2Expected = NotAwaiting
			}
			applyProgress(m, p)
			if err := s.matches.WithTx(tx).Save(ctx, m); err != nil {
				return err
			}
			out = Outcome{Kind: OutcomeWaiting, Stage: p.Stage, TaskIndex: cur}
			return nil
		}

		next, tr, err := BothAnswered(p, s.limits)
		if err != nil {
			return err
		}
		applyProgress(m, next)
		if err := s.matches.WithTx(tx).Save(ctx, m); err != nil {
			return err
		}
		if tr.Event == EventConcluded {
			if _, err := s.sessions.WithTx(tx).Supersede(ctx, m.ID, ModeFree); err != nil {
				return err
			}
		}

		answered, err = answers.ListAt(ctx, m.ID, string(c), cur)
		if err != nil {
			return err
		}
		out = Outcome{Kind: OutcomeAdvanced, Stage: next.Stage, TaskIndex: next.CurrentIndex(), Transition: tr}
		return nil
	})
	if err != nil {
		log.Debug("SubmitAnswer rejected", "err", err)
		return Outcome{}, err
	}

	switch out.Kind {
	case OutcomeWaiting:
		notify.Dispatch(ctx, s.appCtx.Notifier, log, in.UserID, notify.Notification{
			Kind:      notify.KindAnswerSaved,
			MatchID:   m.ID,
			Category:  string(cat),
			TaskIndex: in.TaskIndex,
		})

	case OutcomeAdvanced:
		log.Info("task completed", "category", cat, "index", in.TaskIndex, "event", out.Transition.Event)
		// each side receives the other's answer for this index
		for _, a := range answered {
			notify.Dispatch(ctx, s.appCtx.Notifier, log, PartnerOf(m, a.UserID), notify.Notification{
				Kind:        notify.KindPartnerAnswer,
				MatchID:     m.ID,
				FromUserID:  a.UserID,
				Category:    a.Category,
				TaskIndex:   a.TaskIndex,
				ContentKind: a.Kind,
				Content:     a.Content,
			})
		}
		s.NotifyTransition(ctx, m, out.Transition)
	}

	return out, nil
}
