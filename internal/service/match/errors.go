package match

import (
	svcErr "github.com/oggyb/wetogether/internal/errors"
)

var (
	ErrMatchNotFound      = svcErr.NotFound("match not found")
	ErrNotParticipant     = svcErr.Forbidden("you are not part of this match")
	ErrAlreadyStarted     = svcErr.Precondition("tasks already started for this match")
	ErrNoTaskPending      = svcErr.Precondition("no task is waiting for an answer")
	ErrTourNotAvailable   = svcErr.Precondition("romantic tour is not available for this match, start the tasks first")
	ErrTourAlreadyPaid    = svcErr.Precondition("romantic tour is already paid for this match")
	ErrRevealNotAvailable = svcErr.Precondition("profile is revealed after the regular tasks are done")

	ErrTextRequired  = svcErr.Validation("send a text message for this task")
	ErrMediaRequired = svcErr.Validation("send a voice, video or audio message for this task")
	ErrEmptyAnswer   = svcErr.Validation("answer cannot be empty")
	ErrTaskNotOpen   = svcErr.Validation("this task is not open yet, answer the current one first")
)
