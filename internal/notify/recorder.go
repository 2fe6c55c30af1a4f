package notify

import (
	"context"
	"errors"
	"sync"
)

// Recorder keeps every notification in memory. Used by tests.
type Recorder struct {
	mu   sync.Mutex
	sent map[uint64][]Notification
	fail bool
}

func NewRecorder() *Recorder {
	return &Recorder{sent: make(map[uint64][]Notification)}
}

// FailAll makes subsequent Notify calls return an error without recording.
func (r *Recorder) FailAll(fail bool) {
	r.mu.Lock()
	r.fail = fail
	r.mu.Unlock()
}

func (r *Recorder) Notify(_ context.Context, userID uint64, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("transport unavailable")
	}
	r.sent[userID] = append(r.sent[userID], n)
	return nil
}

// For returns what userID received, in order.
func (r *Recorder) For(userID uint64) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent[userID]...)
}

// OfKind returns what userID received with the given kind.
func (r *Recorder) OfKind(userID uint64, kind Kind) []Notification {
	var out []Notification
	for _, n := range r.For(userID) {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.sent = make(map[uint64][]Notification)
	r.mu.Unlock()
}
