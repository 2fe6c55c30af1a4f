package db

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a registered profile. ID is the transport identity and is never generated here.
//
// Balance is kept non-negative by repository.UserRepository.AdjustBalance.
// Deleted profiles keep their row so likes pointing at them can be rejected cleanly.
type User struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement:false"`
	Name      string          `gorm:"size:64;not null"`
	Gender    string          `gorm:"size:16;not null;index:idx_user_discover,priority:2"`
	Age       int             `gorm:"not null;index:idx_user_discover,priority:4"`
	City      string          `gorm:"size:64;not null;index:idx_user_discover,priority:3"`
	Bio       string          `gorm:"size:512"`
	PhotoRef  string          `gorm:"size:255"`
	Balance   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Deleted   bool            `gorm:"not null;index:idx_user_discover,priority:1"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

// BalanceSnapshot holds the balance of a deleted profile until it registers again.
type BalanceSnapshot struct {
	UserID    uint64          `gorm:"primaryKey;autoIncrement:false"`
	Balance   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
}

// Like is a directed interest edge liker -> target.
//
// Composite PK: (LikerID, TargetID)
//   - A second like for the same pair is a no-op.
//
// Indexes:
//   - idx_like_target_created(target_id, created_at DESC)
//     Serves the pending likers list.
type Like struct {
	LikerID   uint64    `gorm:"primaryKey;autoIncrement:false"`
	TargetID  uint64    `gorm:"primaryKey;autoIncrement:false;index:idx_like_target_created,priority:1"`
	IsSuper   bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_like_target_created,priority:2,sort:desc"`
}

// Match pairs two users (User1ID < User2ID) and carries the whole task lifecycle.
//
// Stage and the two counters describe where the pair is. User1Expected and User2Expected
// hold the task index each participant still owes an answer for, -1 when they owe nothing.
type Match struct {
	ID                     uint64    `gorm:"primaryKey;autoIncrement"`
	User1ID                uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:1"`
	User2ID                uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:2;index"`
	Stage                  string    `gorm:"size:32;not null"`
	TasksCompleted         int       `gorm:"not null"`
	RomanticTasksCompleted int       `gorm:"not null"`
	TourPaid               bool      `gorm:"not null"`
	Active                 bool      `gorm:"not null"`
	User1Expected          int       `gorm:"not null"`
	User2Expected          int       `gorm:"not null"`
	CreatedAt              time.Time `gorm:"autoCreateTime"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime"`
}

// TaskAnswer is one participant's answer to one task. Resubmissions overwrite the row.
type TaskAnswer struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	MatchID   uint64    `gorm:"not null;uniqueIndex:idx_answer_slot,priority:1"`
	Category  string    `gorm:"size:16;not null;uniqueIndex:idx_answer_slot,priority:2"`
	TaskIndex int       `gorm:"not null;uniqueIndex:idx_answer_slot,priority:3"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_answer_slot,priority:4"`
	Kind      string    `gorm:"size:16;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// ChatSession records which chat mode governs a match. At most one row per match is active.
type ChatSession struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	MatchID   uint64    `gorm:"not null;index:idx_session_match_active,priority:1"`
	Mode      string    `gorm:"size:16;not null"`
	Active    bool      `gorm:"not null;index:idx_session_match_active,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Message is a relayed free-form chat message.
type Message struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	MatchID     uint64    `gorm:"not null;index"`
	SenderID    uint64    `gorm:"not null"`
	RecipientID uint64    `gorm:"not null"`
	Content     string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// Payment tracks one payment intent. Status moves pending -> completed or pending -> expired, once.
type Payment struct {
	ID        string          `gorm:"primaryKey;size:36"`
	IntentID  string          `gorm:"size:64;not null;uniqueIndex"`
	UserID    uint64          `gorm:"not null;index"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Purpose   string          `gorm:"size:32;not null"`
	MatchID   *uint64
	Status    string    `gorm:"size:16;not null;index"`
	PayURL    string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// LedgerEntry is an append-only record of a balance movement. Amount is signed.
type LedgerEntry struct {
	ID        string          `gorm:"primaryKey;size:36"`
	UserID    uint64          `gorm:"not null;index"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Kind      string          `gorm:"size:32;not null"`
	Reference string          `gorm:"size:64"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
}

// BalanceCoupon credits a fixed amount, at most MaxUses times and once per user.
type BalanceCoupon struct {
	Code        string          `gorm:"primaryKey;size:32"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	MaxUses     int             `gorm:"not null"`
	CurrentUses int             `gorm:"not null"`
	Active      bool            `gorm:"not null"`
	CreatedBy   uint64          `gorm:"not null"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
}

type CouponRedemption struct {
	Code      string    `gorm:"primaryKey;size:32"`
	UserID    uint64    `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// ProfileBoost lifts a profile to the top of discovery until ExpiresAt.
type ProfileBoost struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `gorm:"not null;index:idx_boost_user_expires,priority:1"`
	ExpiresAt time.Time `gorm:"not null;index:idx_boost_user_expires,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
