package match_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/wetogether/internal/config"
	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/service/match"
	"github.com/oggyb/wetogether/internal/testutil"
)

const (
	alice uint64 = 1
	bob   uint64 = 2
	carol uint64 = 3
)

// setupService wires a match service over fresh in-memory stores with a started
// match between alice and bob.
func setupService(t *testing.T, mutate ...func(*config.Config)) (*testutil.Env, *match.Service, *db.Match) {
	t.Helper()
	env := testutil.New(t, mutate...)
	env.SeedUser(t, alice, "female", "0")
	env.SeedUser(t, bob, "male", "0")
	env.SeedUser(t, carol, "female", "0")

	svc := match.NewService(env.App)
	m := env.SeedMatch(t, alice, bob)
	_, err := svc.StartTasks(context.Background(), m.ID, alice)
	require.NoError(t, err)
	env.Notifier.Reset()
	return env, svc, m
}

func text(matchID, userID uint64, index int, content string) match.SubmitInput {
	return match.SubmitInput{MatchID: matchID, UserID: userID, TaskIndex: index, Kind: match.KindText, Content: content}
}

func voice(matchID, userID uint64, index int) match.SubmitInput {
	return match.SubmitInput{MatchID: matchID, UserID: userID, TaskIndex: index, Kind: match.KindVoice, Content: fmt.Sprintf("voice-%d-%d", userID, index)}
}

// finishRegular has both participants answer every regular task.
func finishRegular(t *testing.T, svc *match.Service, m *db.Match) match.Outcome {
	t.Helper()
	ctx := context.Background()
	var out match.Outcome
	for i := 0; i < svc.Limits().Regular; i++ {
		_, err := svc.SubmitAnswer(ctx, text(m.ID, alice, i, "a"))
		require.NoError(t, err)
		var err2 error
		out, err2 = svc.SubmitAnswer(ctx, text(m.ID, bob, i, "b"))
		require.NoError(t, err2)
		require.Equal(t, match.OutcomeAdvanced, out.Kind)
	}
	return out
}

func TestStartTasks(t *testing.T) {
	env := testutil.New(t)
	env.SeedUser(t, alice, "female", "0")
	env.SeedUser(t, bob, "male", "0")
	svc := match.NewService(env.App)
	ctx := context.Background()

	m := env.SeedMatch(t, alice, bob)

	started, err := svc.StartTasks(ctx, m.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, string(match.StageRegularTasks), started.Stage)

	// both sides are told about the first task with its prompt
	for _, uid := range []uint64{alice, bob} {
		got := env.Notifier.OfKind(uid, notify.KindTasksStarted)
		require.Len(t, got, 1)
		assert.Equal(t, 0, got[0].TaskIndex)
		assert.Equal(t, env.App.Catalogue.Regular[0], got[0].Prompt)
	}

	// retry is harmless and silent
	env.Notifier.Reset()
	_, err = svc.StartTasks(ctx, m.ID, alice)
	require.NoError(t, err)
	assert.Empty(t, env.Notifier.For(alice))

	_, err = svc.StartTasks(ctx, m.ID, carol)
	assert.ErrorIs(t, err, match.ErrNotParticipant)

	_, err = svc.StartTasks(ctx, 999, alice)
	assert.ErrorIs(t, err, match.ErrMatchNotFound)
}

// End-to-end answer exchange at index 0.
func TestSubmitAnswer_ExchangesAnswersAndAdvances(t *testing.T) {
	env, svc, m := setupService(t)
	ctx := context.Background()

	out, err := svc.SubmitAnswer(ctx, text(m.ID, alice, 0, "pizza"))
	require.NoError(t, err)
	assert.Equal(t, match.OutcomeWaiting, out.Kind)
	assert.Len(t, env.Notifier.OfKind(alice, notify.KindAnswerSaved), 1)
	assert.Empty(t, env.Notifier.OfKind(bob, notify.KindPartnerAnswer))

	view, err := svc.CurrentTask(ctx, alice)
	require.NoError(t, err)
	assert.True(t, view.Answered)

	out, err = svc.SubmitAnswer(ctx, text(m.ID, bob, 0, "sushi"))
	require.NoError(t, err)
	assert.Equal(t, match.OutcomeAdvanced, out.Kind)
	assert.Equal(t, match.StageRegularTasks, out.Stage)
	assert.Equal(t, 1, out.TaskIndex)

	toAlice := env.Notifier.OfKind(alice, notify.KindPartnerAnswer)
	require.Len(t, toAlice, 1)
	assert.Equal(t, "sushi", toAlice[0].Content)
	assert.Equal(t, bob, toAlice[0].FromUserID)

	toBob := env.Notifier.OfKind(bob, notify.KindPartnerAnswer)
	require.Len(t, toBob, 1)
	assert.Equal(t, "pizza", toBob[0].Content)

	for _, uid := range []uint64{alice, bob} {
		next := env.Notifier.OfKind(uid, notify.KindNextTask)
		require.Len(t, next, 1)
		assert.Equal(t, 1, next[0].TaskIndex)
		assert.Equal(t, env.App.Catalogue.Regular[1], next[0].Prompt)
	}

	stored := env.Match(t, m.ID)
	assert.Equal(t, 1, stored.TasksCompleted)
	assert.Equal(t, 1, stored.User1Expected)
	assert.Equal(t, 1, stored.User2Expected)
}

func TestSubmitAnswer_DuplicateOverwritesWithoutCounting(t *testing.T) {
	env, svc, m := setupService(t)
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		out, err := svc.SubmitAnswer(ctx, text(m.ID, alice, 0, content))
		require.NoError(t, err)
		assert.Equal(t, match.OutcomeWaiting, out.Kind)
	}
	assert.Equal(t, 0, env.Match(t, m.ID).TasksCompleted)

	var answers []db.TaskAnswer
	require.NoError(t, env.DB.Where("match_id = ?", m.ID).Find(&answers).Error)
	require.Len(t, answers, 1)
	assert.Equal(t, "third", answers[0].Content)

	out, err := svc.SubmitAnswer(ctx, text(m.ID, bob, 0, "b"))
	require.NoError(t, err)
	assert.Equal(t, match.OutcomeAdvanced, out.Kind)
	assert.Equal(t, "third", env.Notifier.OfKind(bob, notify.KindPartnerAnswer)[0].Content)
}

func TestSubmitAnswer_StaleAndFutureIndexes(t *testing.T) {
	env, svc, m := setupService(t)
	ctx := context.Background()

	_, err := svc.SubmitAnswer(ctx, text(m.ID, alice, 1, "too early"))
	assert.ErrorIs(t, err, match.ErrTaskNotOpen)

	_, err = svc.SubmitAnswer(ctx, text(m.ID, alice, 0, "a"))
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, text(m.ID, bob, 0, "b"))
	require.NoError(t, err)
	env.Notifier.Reset()

	// late retry for the finished task: stored, nothing forwarded, no advance
	out, err := svc.SubmitAnswer(ctx, text(m.ID, bob, 0, "b again"))
	require.NoError(t, err)
	assert.Equal(t, match.OutcomeSuperseded, out.Kind)
	assert.Equal(t, 1, out.TaskIndex)
	assert.Empty(t, env.Notifier.For(alice))
	assert.Equal(t, 1, env.Match(t, m.ID).TasksCompleted)
}

// A retry of the last regular answer lands after the match left the regular stage.
func TestSubmitAnswer_RetryAfterRegularTasks(t *testing.T) {
	ctx := context.Background()
	last := func(svc *match.Service) int { return svc.Limits().Regular - 1 }

	t.Run("awaiting reveal", func(t *testing.T) {
		env, svc, m := setupService(t)
		finishRegular(t, svc, m)
		env.Notifier.Reset()

		out, err := svc.SubmitAnswer(ctx, text(m.ID, bob, last(svc), "b again"))
		require.NoError(t, err)
		assert.Equal(t, match.OutcomeSuperseded, out.Kind)
		assert.Equal(t, match.StageAwaitingReveal, out.Stage)
		assert.Empty(t, env.Notifier.For(alice))
		assert.Empty(t, env.Notifier.For(bob))

		stored := env.Match(t, m.ID)
		assert.Equal(t, string(match.StageAwaitingReveal), stored.Stage)
		assert.Equal(t, svc.Limits().Regular, stored.TasksCompleted)

		var a db.TaskAnswer
		require.NoError(t, env.DB.Where("match_id = ? AND category = ? AND task_index = ? AND user_id = ?",
			m.ID, "regular", last(svc), bob).Take(&a).Error)
		assert.Equal(t, "b again", a.Content)

		_, err = svc.SubmitAnswer(ctx, text(m.ID, bob, svc.Limits().Regular, "x"))
		assert.ErrorIs(t, err, match.ErrNoTaskPending)
		_, err = svc.SubmitAnswer(ctx, text(m.ID, bob, last(svc), ""))
		assert.ErrorIs(t, err, match.ErrEmptyAnswer)
	})

	t.Run("romantic tasks", func(t *testing.T) {
		env, svc, m := setupService(t)
		require.NoError(t, env.DB.Transaction(func(tx *gorm.DB) error {
			_, _, err := svc.MarkTourPaid(ctx, tx, m.ID)
			return err
		}))
		finishRegular(t, svc, m)
		env.Notifier.Reset()

		out, err := svc.SubmitAnswer(ctx, text(m.ID, bob, last(svc), "b again"))
		require.NoError(t, err)
		assert.Equal(t, match.OutcomeSuperseded, out.Kind)
		assert.Equal(t, match.StageRomanticTasks, out.Stage)
		assert.Equal(t, 0, out.TaskIndex)
		assert.Empty(t, env.Notifier.For(alice))

		stored := env.Match(t, m.ID)
		assert.Equal(t, 0, stored.RomanticTasksCompleted)
		assert.Equal(t, 0, stored.User2Expected)

		// the romantic task is still open for bob
		out, err = svc.SubmitAnswer(ctx, voice(m.ID, bob, 0))
		require.NoError(t, err)
		assert.Equal(t, match.OutcomeWaiting, out.Kind)
	})
}

func TestSubmitAnswer_Validation(t *testing.T) {
	env, svc, m := setupService(t)
	ctx := context.Background()

	_, err := svc.SubmitAnswer(ctx, voice(m.ID, alice, 0))
	assert.ErrorIs(t, err, match.ErrTextRequired)

	_, err = svc.SubmitAnswer(ctx, text(m.ID, alice, 0, ""))
	assert.ErrorIs(t, err, match.ErrEmptyAnswer)

	_, err = svc.SubmitAnswer(ctx, text(m.ID, carol, 0, "hi"))
	assert.ErrorIs(t, err, match.ErrNotParticipant)

	pending := env.SeedMatch(t, alice, carol)
	_, err = svc.SubmitAnswer(ctx, text(pending.ID, alice, 0, "hi"))
	assert.ErrorIs(t, err, match.ErrNoTaskPending)

	var count int64
	require.NoError(t, env.DB.Model(&db.TaskAnswer{}).Count(&count).Error)
	assert.Zero(t, count)
}

// Both answers race; exactly one of them advances the match.
func TestSubmitAnswer_ConcurrentAnswersAdvanceOnce(t *testing.T) {
	env, svc, m := setupService(t)
	ctx := context.Background()

	outcomes := make([]match.Outcome, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, uid := range []uint64{alice, bob} {
		wg.Add(1)
		go func(i int, uid uint64) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.SubmitAnswer(ctx, text(m.ID, uid, 0, "x"))
		}(i, uid)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	kinds := []match.OutcomeKind{outcomes[0].Kind, outcomes[1].Kind}
	assert.ElementsMatch(t, []match.OutcomeKind{match.OutcomeWaiting, match.OutcomeAdvanced}, kinds)
	assert.Equal(t, 1, env.Match(t, m.ID).TasksCompleted)
	assert.Len(t, env.Notifier.OfKind(alice, notify.KindPartnerAnswer), 1)
	assert.Len(t, env.Notifier.OfKind(bob, notify.KindPartnerAnswer), 1)
}

func TestSubmitAnswer_RegularDoneWithoutTourAwaitsReveal(t *testing.T) {
	env, svc, m := setupService(t)
	ctx := context.Background()

	out := finishRegular(t, svc, m)
	assert.Equal(t, match.StageAwaitingReveal, out.Stage)
	assert.Equal(t, match.EventRevealReady, out.Transition.Event)

	stored := env.Match(t, m.ID)
	assert.Equal(t, svc.Limits().Regular, stored.TasksCompleted)
	assert.False(t, stored.Active)
	assert.Len(t, env.Notifier.OfKind(alice, notify.KindRevealAvailable), 1)

	// no romantic task is issued
	_, err := svc.SubmitAnswer(ctx, voice(m.ID, alice, 0))
	assert.ErrorIs(t, err, match.ErrNoTaskPending)
	_, err = svc.CurrentTask(ctx, alice)
	assert.ErrorIs(t, err, match.ErrNoTaskPending)

	profile, err := svc.RevealProfile(ctx, m.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, bob, profile.UserID)
	assert.Equal(t, "user2", profile.Name)
}

func TestSubmitAnswer_ArmedTourEntersRomanticDirectly(t *testing.T) {
	env, svc, m := setupService(t)
	ctx := context.Background()

	require.NoError(t, env.DB.Transaction(func(tx *gorm.DB) error {
		_, tr, err := svc.MarkTourPaid(ctx, tx, m.ID)
		assert.Equal(t, match.EventTourArmed, tr.Event)
		return err
	}))

	out := finishRegular(t, svc, m)
	assert.Equal(t, match.StageRomanticTasks, out.Stage)
	assert.Equal(t, 0, out.TaskIndex)
	assert.Empty(t, env.Notifier.OfKind(alice, notify.KindRevealAvailable))

	started := env.Notifier.OfKind(bob, notify.KindTourStarted)
	require.Len(t, started, 1)
	assert.Equal(t, "romantic", started[0].Category)
	assert.Equal(t, env.App.Catalogue.Romantic[0], started[0].Prompt)

	_, err := svc.RevealProfile(ctx, m.ID, alice)
	assert.ErrorIs(t, err, match.ErrRevealNotAvailable)

	// text past the regular tasks is refused in the romantic stage and nothing moves
	_, err = svc.SubmitAnswer(ctx, text(m.ID, alice, svc.Limits().Regular, "hello"))
	assert.ErrorIs(t, err, match.ErrMediaRequired)
	assert.Equal(t, string(match.StageRomanticTasks), env.Match(t, m.ID).Stage)

	for i := 0; i < svc.Limits().Romantic; i++ {
		_, err := svc.SubmitAnswer(ctx, voice(m.ID, alice, i))
		require.NoError(t, err)
		out, err = svc.SubmitAnswer(ctx, match.SubmitInput{MatchID: m.ID, UserID: bob, TaskIndex: i, Kind: match.KindVideo, Content: "video"})
		require.NoError(t, err)
	}
	assert.Equal(t, match.StageConcluded, out.Stage)

	stored := env.Match(t, m.ID)
	assert.Equal(t, svc.Limits().Romantic, stored.RomanticTasksCompleted)
	assert.Equal(t, svc.Limits().Regular, stored.TasksCompleted)
	assert.False(t, stored.Active)
	assert.Len(t, env.Notifier.OfKind(alice, notify.KindTasksConcluded), 1)

	var session db.ChatSession
	require.NoError(t, env.DB.Where("match_id = ? AND active = ?", m.ID, true).Take(&session).Error)
	assert.Equal(t, match.ModeFree, session.Mode)
}

func TestMarkTourPaid_ReopensRevealedMatch(t *testing.T) {
	env, svc, m := setupService(t)
	ctx := context.Background()
	finishRegular(t, svc, m)

	_, err := svc.CheckTourEligible(ctx, m.ID, alice)
	require.NoError(t, err)

	require.NoError(t, env.DB.Transaction(func(tx *gorm.DB) error {
		_, tr, err := svc.MarkTourPaid(ctx, tx, m.ID)
		assert.Equal(t, match.EventTourStarted, tr.Event)
		return err
	}))

	stored := env.Match(t, m.ID)
	assert.Equal(t, string(match.StageRomanticTasks), stored.Stage)
	assert.True(t, stored.Active)
	assert.True(t, stored.TourPaid)
	assert.Equal(t, 0, stored.RomanticTasksCompleted)

	view, err := svc.CurrentTask(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, match.CategoryRomantic, view.Category)
	assert.Equal(t, 0, view.Index)
	assert.Equal(t, svc.Limits().Romantic, view.Total)

	_, err = svc.CheckTourEligible(ctx, m.ID, alice)
	assert.ErrorIs(t, err, match.ErrTourAlreadyPaid)
}

func TestMarkTourPaid_ReopenDisabled(t *testing.T) {
	env, svc, m := setupService(t, func(c *config.Config) { c.Payment.AllowTourReopen = false })
	ctx := context.Background()
	finishRegular(t, svc, m)

	err := env.DB.Transaction(func(tx *gorm.DB) error {
		_, _, err := svc.MarkTourPaid(ctx, tx, m.ID)
		return err
	})
	assert.ErrorIs(t, err, match.ErrTourNotAvailable)
	assert.Equal(t, string(match.StageAwaitingReveal), env.Match(t, m.ID).Stage)
}

func TestIgnore(t *testing.T) {
	env := testutil.New(t)
	env.SeedUser(t, alice, "female", "0")
	env.SeedUser(t, bob, "male", "0")
	svc := match.NewService(env.App)
	ctx := context.Background()

	require.NoError(t, env.DB.Create(&[]db.Like{
		{LikerID: alice, TargetID: bob},
		{LikerID: bob, TargetID: alice},
	}).Error)
	m := env.SeedMatch(t, alice, bob)

	require.NoError(t, svc.Ignore(ctx, m.ID, bob))

	var count int64
	require.NoError(t, env.DB.Model(&db.Match{}).Count(&count).Error)
	assert.Zero(t, count)

	var likes []db.Like
	require.NoError(t, env.DB.Find(&likes).Error)
	require.Len(t, likes, 1)
	assert.Equal(t, alice, likes[0].LikerID)

	assert.Len(t, env.Notifier.OfKind(alice, notify.KindMatchIgnored), 1)

	started := env.SeedMatch(t, alice, bob)
	_, err := svc.StartTasks(ctx, started.ID, alice)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Ignore(ctx, started.ID, bob), match.ErrAlreadyStarted)
}

func TestNotificationFailuresDoNotFailTheCall(t *testing.T) {
	env, svc, m := setupService(t)
	env.Notifier.FailAll(true)

	_, err := svc.SubmitAnswer(context.Background(), text(m.ID, alice, 0, "a"))
	require.NoError(t, err)
	out, err := svc.SubmitAnswer(context.Background(), text(m.ID, bob, 0, "b"))
	require.NoError(t, err)
	assert.Equal(t, match.OutcomeAdvanced, out.Kind)
}
