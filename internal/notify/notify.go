// Package notify delivers structured notifications to the chat transport.
// Delivery is fire-and-forget: callers log failures and move on.
package notify

import (
	"context"
	"log/slog"
)

type Kind string

const (
	KindPendingLike     Kind = "pending_like"
	KindMutualLike      Kind = "mutual_like"
	KindMatchIgnored    Kind = "match_ignored"
	KindTasksStarted    Kind = "tasks_started"
	KindAnswerSaved     Kind = "answer_saved"
	KindPartnerAnswer   Kind = "partner_answer"
	KindNextTask        Kind = "next_task"
	KindRevealAvailable Kind = "reveal_available"
	KindTourStarted     Kind = "tour_started"
	KindTourArmed       Kind = "tour_armed"
	KindTasksConcluded  Kind = "tasks_concluded"
	KindChatMessage     Kind = "chat_message"
	KindPaymentApplied  Kind = "payment_applied"
	KindTourRefunded    Kind = "tour_refunded"
)

// Profile is the public part of a user record shown to other users.
type Profile struct {
	UserID   uint64 `json:"user_id"`
	Name     string `json:"name"`
	Gender   string `json:"gender"`
	Age      int    `json:"age"`
	City     string `json:"city"`
	Bio      string `json:"bio,omitempty"`
	PhotoRef string `json:"photo_ref,omitempty"`
}

type Notification struct {
	Kind        Kind     `json:"kind"`
	MatchID     uint64   `json:"match_id,omitempty"`
	FromUserID  uint64   `json:"from_user_id,omitempty"`
	Category    string   `json:"category,omitempty"`
	TaskIndex   int      `json:"task_index"`
	Prompt      string   `json:"prompt,omitempty"`
	ContentKind string   `json:"content_kind,omitempty"`
	Content     string   `json:"content,omitempty"`
	Amount      string   `json:"amount,omitempty"`
	IsSuper     bool     `json:"is_super,omitempty"`
	Profile     *Profile `json:"profile,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, userID uint64, n Notification) error
}

// Dispatch sends n and logs a failure instead of returning it.
func Dispatch(ctx context.Context, notifier Notifier, log *slog.Logger, userID uint64, n Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, userID, n); err != nil {
		log.Warn("notification dropped", "user_id", userID, "kind", n.Kind, "err", err)
	}
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, uint64, Notification) error { return nil }
