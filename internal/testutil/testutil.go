// Package testutil wires isolated in-memory dependencies for service tests.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/cache"
	"github.com/oggyb/wetogether/internal/config"
	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/payment"
)

// Env bundles everything a service test touches.
type Env struct {
	App      *app.AppContext
	DB       *gorm.DB
	Redis    *miniredis.Miniredis
	Notifier *notify.Recorder
	Gate     *payment.FakeGate
}

// OpenDB spins up an in-memory SQLite DB with the full schema.
// Each test gets its own database, named after the test.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// one connection: transactions serialize like row locks would on MySQL
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// Config returns defaults independent of the host environment.
func Config() *config.Config {
	cfg := &config.Config{}
	cfg.App.ENV = "test"
	cfg.Tasks.RegularCount = 5
	cfg.Tasks.RomanticCount = 3
	cfg.Prices.RomanticTour = decimal.RequireFromString("2.00")
	cfg.Prices.SuperLike = decimal.RequireFromString("1.00")
	cfg.Prices.Boost = decimal.RequireFromString("3.00")
	cfg.Prices.TopUpMin = decimal.RequireFromString("1.00")
	cfg.Prices.TopUpMax = decimal.RequireFromString("100.00")
	cfg.Payment.PollInterval = 10 * time.Millisecond
	cfg.Payment.MaxAge = 10 * time.Minute
	cfg.Payment.LeaseTTL = 30 * time.Second
	cfg.Payment.AllowTourReopen = true
	cfg.Boost.Duration = 24 * time.Hour
	cfg.Admin.IDs = []uint64{1000}
	return cfg
}

// New builds an Env. mutate, when given, adjusts the config before wiring.
func New(t testing.TB, mutate ...func(*config.Config)) *Env {
	t.Helper()

	cfg := Config()
	for _, m := range mutate {
		m(cfg)
	}

	gdb := OpenDB(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })

	cat, err := config.LoadCatalogue(cfg)
	require.NoError(t, err)

	rec := notify.NewRecorder()
	gate := payment.NewFakeGate()
	log := slog.New(slog.NewTextHandler(io.Discard, nil)) // discard logs in tests

	appCtx := app.New(cfg, gdb, rc, log,
		app.WithCatalogue(cat),
		app.WithNotifier(rec),
		app.WithGate(gate),
	)

	return &Env{App: appCtx, DB: gdb, Redis: mr, Notifier: rec, Gate: gate}
}

// SeedUser inserts an active profile with the given balance.
func (e *Env) SeedUser(t testing.TB, id uint64, gender string, balance string) *db.User {
	t.Helper()
	u := &db.User{
		ID:      id,
		Name:    fmt.Sprintf("user%d", id),
		Gender:  gender,
		Age:     25,
		City:    "Tashkent",
		Balance: decimal.RequireFromString(balance),
	}
	require.NoError(t, e.DB.Create(u).Error)
	return u
}

// Balance reads the stored balance of id.
func (e *Env) Balance(t testing.TB, id uint64) decimal.Decimal {
	t.Helper()
	var u db.User
	require.NoError(t, e.DB.First(&u, "id = ?", id).Error)
	return u.Balance
}

// Match reads the stored match row.
func (e *Env) Match(t testing.TB, id uint64) *db.Match {
	t.Helper()
	var m db.Match
	require.NoError(t, e.DB.First(&m, "id = ?", id).Error)
	return &m
}

// SeedMatch inserts a fresh match between a and b in the awaiting_start stage.
// mutate adjusts the row before insert.
func (e *Env) SeedMatch(t testing.TB, a, b uint64, mutate ...func(*db.Match)) *db.Match {
	t.Helper()
	if a > b {
		a, b = b, a
	}
	m := &db.Match{
		User1ID:       a,
		User2ID:       b,
		Stage:         "awaiting_start",
		Active:        true,
		User1Expected: -1,
		User2Expected: -1,
	}
	for _, fn := range mutate {
		fn(m)
	}
	require.NoError(t, e.DB.Create(m).Error)
	return m
}
