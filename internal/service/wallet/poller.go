package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/payment"
	"github.com/oggyb/wetogether/internal/repository"
)

const pollBatch = 50

// Poller settles pending payments by asking the gate for their status on a fixed interval.
// Several server instances may run one; a Redis lease per intent keeps them from
// polling the same intent at once, and ApplyPayment stays idempotent regardless.
type Poller struct {
	svc      *Service
	log      *slog.Logger
	interval time.Duration
	maxAge   time.Duration
	leaseTTL time.Duration
	owner    string

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

func NewPoller(svc *Service) *Poller {
	cfg := svc.appCtx.Config.Payment
	host, _ := os.Hostname()
	return &Poller{
		svc:      svc,
		log:      svc.appCtx.Logger.With("worker", "payment_poller"),
		interval: cfg.PollInterval,
		maxAge:   cfg.MaxAge,
		leaseTTL: cfg.LeaseTTL,
		owner:    fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start runs the poll loop in the background until Stop is called or ctx is done.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.log.Info("starting payment poller", "interval", p.interval, "max_age", p.maxAge)
		go p.pollLoop(ctx)
	})
}

// Stop gracefully stops the poller and waits for the current pass to finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	<-p.doneChan
	p.log.Info("payment poller stopped")
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.PollOnce(ctx)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PollResult counts what one pass did.
type PollResult struct {
	Applied int
	Expired int
	Skipped int
	Failed  int
}

// PollOnce runs a single pass over pending payments.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	var res PollResult

	pending, err := p.svc.payments.ListPending(ctx, pollBatch)
	if err != nil {
		p.log.Error("list pending payments failed", "err", err)
		return res
	}

	now := p.svc.now()
	for _, pay := range pending {
		key := "lease:payment:" + pay.IntentID
		ok, err := p.svc.appCtx.RedisCache.AcquireLease(ctx, key, p.owner, p.leaseTTL)
		if err != nil {
			p.log.Warn("lease unavailable", "intent", pay.IntentID, "err", err)
			res.Failed++
			continue
		}
		if !ok {
			res.Skipped++
			continue
		}

		switch p.settle(ctx, pay, now) {
		case payment.StatusPaid:
			res.Applied++
		case payment.StatusExpired:
			res.Expired++
		case "":
			res.Failed++
		}

		if err := p.svc.appCtx.RedisCache.ReleaseLease(ctx, key, p.owner); err != nil {
			p.log.Warn("lease release failed", "intent", pay.IntentID, "err", err)
		}
	}

	if res != (PollResult{}) {
		p.log.Debug("poll pass done", "applied", res.Applied, "expired", res.Expired, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res
}

// settle checks one intent and applies or expires it. It returns the status acted
// on, payment.StatusPending when nothing changed, and "" on failure.
func (p *Poller) settle(ctx context.Context, pay db.Payment, now time.Time) payment.Status {
	intentID := pay.IntentID
	log := p.log.With("intent", intentID, "user", pay.UserID)

	stale := repository.PendingOlderThan(pay, now, p.maxAge)
	st, err := p.svc.appCtx.Gate.PollStatus(ctx, intentID)
	switch {
	case errors.Is(err, payment.ErrUnknownIntent) && stale:
		st = payment.StatusExpired
	case err != nil:
		// retried next tick
		log.Warn("poll status failed", "err", err)
		return ""
	case st == payment.StatusPending && stale:
		st = payment.StatusExpired
	}

	switch st {
	case payment.StatusPaid:
		applied, err := p.svc.ApplyPayment(ctx, intentID, pay.Amount, pay.UserID)
		if err != nil {
			log.Error("apply payment failed", "err", err)
			return ""
		}
		if !applied {
			return payment.StatusPending
		}
	case payment.StatusExpired:
		expired, err := p.svc.ExpirePayment(ctx, intentID)
		if err != nil {
			log.Error("expire payment failed", "err", err)
			return ""
		}
		if !expired {
			return payment.StatusPending
		}
	}
	return st
}
