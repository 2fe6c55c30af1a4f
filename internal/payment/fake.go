package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// FakeGate is an in-memory Gate for tests and local runs without a provider token.
type FakeGate struct {
	mu       sync.Mutex
	next     int
	statuses map[string]Status
	amounts  map[string]decimal.Decimal
	down     bool
}

func NewFakeGate() *FakeGate {
	return &FakeGate{
		statuses: make(map[string]Status),
		amounts:  make(map[string]decimal.Decimal),
	}
}

// SetDown makes every call fail as if the provider were unreachable.
func (g *FakeGate) SetDown(down bool) {
	g.mu.Lock()
	g.down = down
	g.mu.Unlock()
}

func (g *FakeGate) SetStatus(intentID string, st Status) {
	g.mu.Lock()
	g.statuses[intentID] = st
	g.mu.Unlock()
}

func (g *FakeGate) Amount(intentID string) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.amounts[intentID]
}

func (g *FakeGate) CreateIntent(_ context.Context, amount decimal.Decimal, userID uint64, _ string) (Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return Intent{}, errors.New("payment provider unreachable")
	}
	g.next++
	id := fmt.Sprintf("fake-%d-%d", userID, g.next)
	g.statuses[id] = StatusPending
	g.amounts[id] = amount
	return Intent{ID: id, PayURL: "https://pay.example/" + id}, nil
}

func (g *FakeGate) PollStatus(_ context.Context, intentID string) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return "", errors.New("payment provider unreachable")
	}
	st, ok := g.statuses[intentID]
	if !ok {
		return "", ErrUnknownIntent
	}
	return st, nil
}
