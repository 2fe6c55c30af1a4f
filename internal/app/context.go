package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/wetogether/internal/cache"
	"github.com/oggyb/wetogether/internal/config"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/payment"
)

// AppContext holds shared dependencies (config, DB, Redis, Logger, collaborators)
type AppContext struct {
	Config     *config.Config
	Catalogue  *config.Catalogue
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Notifier   notify.Notifier
	Gate       payment.Gate
	Logger     *slog.Logger
}

type Option func(*AppContext)

func WithCatalogue(c *config.Catalogue) Option {
	return func(a *AppContext) { a.Catalogue = c }
}

func WithNotifier(n notify.Notifier) Option {
	return func(a *AppContext) { a.Notifier = n }
}

func WithGate(g payment.Gate) Option {
	return func(a *AppContext) { a.Gate = g }
}

// New creates a new AppContext. Notifier defaults to notify.Nop.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, opts ...Option) *AppContext {
	a := &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Notifier == nil {
		a.Notifier = notify.Nop{}
	}
	return a
}
