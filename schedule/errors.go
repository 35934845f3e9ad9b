package schedule

import "errors"

var (
	// ErrWrongThread is returned when a queue is pumped by a thread other than its owner
	ErrWrongThread = errors.New("schedule: pump called from non-owner thread")

	// ErrClosed faults actions left in a closed queue and actions scheduled after Close
	ErrClosed = errors.New("schedule: scheduler closed")

	// ErrOwnerAlreadyBound is returned when Bind is called on a scheduler that has an owner
	ErrOwnerAlreadyBound = errors.New("schedule: owner already bound")
)
