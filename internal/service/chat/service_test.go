package chat_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/repository"
	"github.com/oggyb/wetogether/internal/service/chat"
	"github.com/oggyb/wetogether/internal/service/match"
	"github.com/oggyb/wetogether/internal/testutil"
)

func setup(t *testing.T) (*testutil.Env, *chat.Service, *match.Service) {
	t.Helper()
	env := testutil.New(t)
	for _, id := range []uint64{1, 2, 3} {
		env.SeedUser(t, id, "male", "0")
	}
	return env, chat.NewService(env.App), match.NewService(env.App)
}

func maySend(t *testing.T, svc *chat.Service, matchID, userID uint64) bool {
	t.Helper()
	ok, err := svc.MaySend(context.Background(), matchID, userID)
	require.NoError(t, err)
	return ok
}

func TestMaySend_FollowsStageAndSession(t *testing.T) {
	env, svc, matches := setup(t)
	ctx := context.Background()

	m := env.SeedMatch(t, 1, 2)
	assert.False(t, maySend(t, svc, m.ID, 1), "no session before tasks start")

	_, err := matches.StartTasks(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.True(t, maySend(t, svc, m.ID, 1))
	assert.True(t, maySend(t, svc, m.ID, 2))
	assert.False(t, maySend(t, svc, m.ID, 3), "outsider")
	assert.False(t, maySend(t, svc, 999, 1), "unknown match")

	for i := 0; i < matches.Limits().Regular; i++ {
		for _, uid := range []uint64{1, 2} {
			_, err := matches.SubmitAnswer(ctx, match.SubmitInput{MatchID: m.ID, UserID: uid, TaskIndex: i, Kind: match.KindText, Content: "x"})
			require.NoError(t, err)
		}
	}
	require.Equal(t, string(match.StageAwaitingReveal), env.Match(t, m.ID).Stage)
	assert.False(t, maySend(t, svc, m.ID, 1), "regular tasks done, reveal pending")
}

func TestMaySend_Concluded(t *testing.T) {
	env, svc, _ := setup(t)
	ctx := context.Background()

	m := env.SeedMatch(t, 1, 2, func(m *db.Match) {
		m.Stage = string(match.StageConcluded)
		m.Active = false
		m.TourPaid = true
		m.TasksCompleted = 5
		m.RomanticTasksCompleted = 3
	})
	assert.False(t, maySend(t, svc, m.ID, 1), "concluded without session")

	_, err := repository.NewSessionRepository(env.DB).Supersede(ctx, m.ID, match.ModeFree)
	require.NoError(t, err)
	assert.True(t, maySend(t, svc, m.ID, 1))
}

func TestMaySend_TaskSessionAtCounterLimit(t *testing.T) {
	env, svc, _ := setup(t)
	ctx := context.Background()

	// a tasks session must not leak once the counter reached its total
	m := env.SeedMatch(t, 1, 2, func(m *db.Match) {
		m.Stage = string(match.StageRegularTasks)
		m.TasksCompleted = 5
	})
	_, err := repository.NewSessionRepository(env.DB).Supersede(ctx, m.ID, match.ModeTasks)
	require.NoError(t, err)
	assert.False(t, maySend(t, svc, m.ID, 1))
}

func TestRelay(t *testing.T) {
	env, svc, matches := setup(t)
	ctx := context.Background()
	m := env.SeedMatch(t, 1, 2)

	_, err := svc.Relay(ctx, m.ID, 1, "hello")
	assert.ErrorIs(t, err, chat.ErrChatLocked)

	_, err = matches.StartTasks(ctx, m.ID, 2)
	require.NoError(t, err)

	_, err = svc.Relay(ctx, m.ID, 1, "   ")
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)

	msg, err := svc.Relay(ctx, m.ID, 1, "hello")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), msg.RecipientID)

	got := env.Notifier.OfKind(2, notify.KindChatMessage)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Content)
	assert.Equal(t, uint64(1), got[0].FromUserID)

	_, err = svc.Relay(ctx, m.ID, 2, "hi back")
	require.NoError(t, err)

	history, err := svc.History(ctx, m.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "hi back", history[1].Content)

	_, err = svc.History(ctx, m.ID, 3, 10)
	assert.ErrorIs(t, err, match.ErrNotParticipant)
}

func TestRelay_LockedWhenRegularTasksEnd(t *testing.T) {
	env, svc, matches := setup(t)
	ctx := context.Background()
	m := env.SeedMatch(t, 1, 2)
	_, err := matches.StartTasks(ctx, m.ID, 1)
	require.NoError(t, err)

	answer := func(uid uint64, i int) error {
		_, err := matches.SubmitAnswer(ctx, match.SubmitInput{MatchID: m.ID, UserID: uid, TaskIndex: i, Kind: match.KindText, Content: "x"})
		return err
	}
	last := matches.Limits().Regular - 1
	for i := 0; i < last; i++ {
		require.NoError(t, answer(1, i))
		require.NoError(t, answer(2, i))
	}
	require.NoError(t, answer(1, last))

	var (
		wg       sync.WaitGroup
		relayErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, answer(2, last))
	}()
	go func() {
		defer wg.Done()
		_, relayErr = svc.Relay(ctx, m.ID, 1, "still there?")
	}()
	wg.Wait()

	var stored int64
	require.NoError(t, env.DB.Model(&db.Message{}).Where("match_id = ?", m.ID).Count(&stored).Error)
	if relayErr == nil {
		assert.Equal(t, int64(1), stored)
	} else {
		assert.ErrorIs(t, relayErr, chat.ErrChatLocked)
		assert.Zero(t, stored)
	}

	require.Equal(t, string(match.StageAwaitingReveal), env.Match(t, m.ID).Stage)
	env.Notifier.Reset()
	_, err = svc.Relay(ctx, m.ID, 1, "hello?")
	assert.ErrorIs(t, err, chat.ErrChatLocked)
	assert.Empty(t, env.Notifier.OfKind(2, notify.KindChatMessage))

	var after int64
	require.NoError(t, env.DB.Model(&db.Message{}).Where("match_id = ?", m.ID).Count(&after).Error)
	assert.Equal(t, stored, after)
}
