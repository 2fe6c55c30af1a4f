package match

import (
	"github.com/oggyb/wetogether/internal/db"
)

type Stage string

const (
	StageAwaitingStart  Stage = "awaiting_start"
	StageRegularTasks   Stage = "regular_tasks"
	StageAwaitingReveal Stage = "awaiting_profile_reveal"
	StageRomanticTasks  Stage = "romantic_tasks"
	StageConcluded      Stage = "concluded"
)

// TaskStages are the stages in which an answer is expected.
var TaskStages = []string{string(StageRegularTasks), string(StageRomanticTasks)}

// Category returns the task category answered in s. ok is false outside task stages.
func (s Stage) Category() (Category, bool) {
	switch s {
	case StageRegularTasks:
		return CategoryRegular, true
	case StageRomanticTasks:
		return CategoryRomantic, true
	}
	return "", false
}

// Event names what a transition did. Notifications are derived from it.
type Event string

const (
	EventNone        Event = ""
	EventStarted     Event = "started"
	EventAdvanced    Event = "advanced"
	EventRevealReady Event = "reveal_ready"
	EventTourArmed   Event = "tour_armed"
	EventTourStarted Event = "tour_started"
	EventConcluded   Event = "concluded"
)

// NotAwaiting marks a participant who owes no answer.
const NotAwaiting = -1

// Limits are the task counts per category.
type Limits struct {
	Regular  int
	Romantic int
}

// Progress is the part of a match the state machine reads and writes.
type Progress struct {
	Stage                  Stage
	TasksCompleted         int
	RomanticTasksCompleted int
	TourPaid               bool
	Active                 bool
	User1Expected          int
	User2Expected          int
}

// Transition describes one applied step. Index is the new current task index, or NotAwaiting.
type Transition struct {
	From  Stage
	To    Stage
	Event Event
	Index int
}

func progressOf(m *db.Match) Progress {
	return Progress{
		Stage:                  Stage(m.Stage),
		TasksCompleted:         m.TasksCompleted,
		RomanticTasksCompleted: m.RomanticTasksCompleted,
		TourPaid:               m.TourPaid,
		Active:                 m.Active,
		User1Expected:          m.User1Expected,
		User2Expected:          m.User2Expected,
	}
}

func applyProgress(m *db.Match, p Progress) {
	m.Stage = string(p.Stage)
	m.TasksCompleted = p.TasksCompleted
	m.RomanticTasksCompleted = p.RomanticTasksCompleted
	m.TourPaid = p.TourPaid
	m.Active = p.Active
	m.User1Expected = p.User1Expected
	m.User2Expected = p.User2Expected
}

// Initial is the progress of a freshly created match.
func Initial() Progress {
	return Progress{
		Stage:         StageAwaitingStart,
		Active:        true,
		User1Expected: NotAwaiting,
		User2Expected: NotAwaiting,
	}
}

// CurrentIndex is the task index both participants are working on, or NotAwaiting.
func (p Progress) CurrentIndex() int {
	switch p.Stage {
	case StageRegularTasks:
		return p.TasksCompleted
	case StageRomanticTasks:
		return p.RomanticTasksCompleted
	}
	return NotAwaiting
}

// Finished reports whether every task of category c already lies behind p.
func (p Progress) Finished(c Category) bool {
	switch c {
	case CategoryRegular:
		return p.Stage == StageAwaitingReveal || p.Stage == StageRomanticTasks || p.Stage == StageConcluded
	case CategoryRomantic:
		return p.Stage == StageConcluded && p.TourPaid
	}
	return false
}

func (p Progress) expectBoth(index int) Progress {
	p.User1Expected = index
	p.User2Expected = index
	return p
}

// Start moves AwaitingStart to RegularTasks(0).
// Already in RegularTasks returns p unchanged with EventNone so retries are harmless.
func Start(p Progress) (Progress, Transition, error) {
	switch p.Stage {
	case StageAwaitingStart:
		next := p
		next.Stage = StageRegularTasks
		next.TasksCompleted = 0
		next.Active = true
		next = next.expectBoth(0)
		return next, Transition{From: p.Stage, To: next.Stage, Event: EventStarted, Index: 0}, nil
	case StageRegularTasks:
		return p, Transition{From: p.Stage, To: p.Stage, Event: EventNone, Index: p.CurrentIndex()}, nil
	}
	return p, Transition{}, ErrAlreadyStarted
}

// BothAnswered advances past the current task once both participants answered it.
//
// The last regular task leads to RomanticTasks(0) when the tour is paid and to
// AwaitingReveal (inactive) otherwise. The last romantic task concludes the match.
func BothAnswered(p Progress, l Limits) (Progress, Transition, error) {
	next := p
	switch p.Stage {
	case StageRegularTasks:
		k := p.TasksCompleted + 1
		next.TasksCompleted = k
		switch {
		case k < l.Regular:
			next = next.expectBoth(k)
			return next, Transition{From: p.Stage, To: next.Stage, Event: EventAdvanced, Index: k}, nil
		case p.TourPaid:
			next.Stage = StageRomanticTasks
			next.RomanticTasksCompleted = 0
			next = next.expectBoth(0)
			return next, Transition{From: p.Stage, To: next.Stage, Event: EventTourStarted, Index: 0}, nil
		default:
			next.Stage = StageAwaitingReveal
			next.Active = false
			next = next.expectBoth(NotAwaiting)
			return next, Transition{From: p.Stage, To: next.Stage, Event: EventRevealReady, Index: NotAwaiting}, nil
		}

	case StageRomanticTasks:
		k := p.RomanticTasksCompleted + 1
		next.RomanticTasksCompleted = k
		if k < l.Romantic {
			next = next.expectBoth(k)
			return next, Transition{From: p.Stage, To: next.Stage, Event: EventAdvanced, Index: k}, nil
		}
		next.Stage = StageConcluded
		next.Active = false
		next = next.expectBoth(NotAwaiting)
		return next, Transition{From: p.Stage, To: next.Stage, Event: EventConcluded, Index: NotAwaiting}, nil
	}
	return p, Transition{}, ErrNoTaskPending
}

// PayTour records a paid romantic tour.
//
// In RegularTasks it only arms the flag. In AwaitingReveal it reopens the match
// into RomanticTasks(0) when allowReopen is set.
func PayTour(p Progress, allowReopen bool) (Progress, Transition, error) {
	if p.TourPaid {
		return p, Transition{}, ErrTourAlreadyPaid
	}
	next := p
	switch p.Stage {
	case StageAwaitingStart:
		return p, Transition{}, ErrTourNotAvailable
	case StageRegularTasks:
		next.TourPaid = true
		return next, Transition{From: p.Stage, To: p.Stage, Event: EventTourArmed, Index: p.CurrentIndex()}, nil
	case StageAwaitingReveal:
		if !allowReopen {
			return p, Transition{}, ErrTourNotAvailable
		}
		next.TourPaid = true
		next.Stage = StageRomanticTasks
		next.RomanticTasksCompleted = 0
		next.Active = true
		next = next.expectBoth(0)
		return next, Transition{From: p.Stage, To: next.Stage, Event: EventTourStarted, Index: 0}, nil
	}
	return p, Transition{}, ErrTourAlreadyPaid
}
