package scheduler

import "errors"

var (
	ErrInvalidTransition = errors.New("scheduler: invalid state transition")
	ErrNotStarted        = errors.New("scheduler: not started")
	ErrInvalidConfig     = errors.New("scheduler: invalid config")
)

// State is the single authoritative lifecycle field of a Scheduler.
type State int32

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// transitions lists every legal edge of the state machine.
var transitions = map[State][]State{
	Stopped: {Running},
	Running: {Paused, Stopped},
	Paused:  {Running, Stopped},
}

func (s State) canTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Status classifies the outcome of one execution.
type Status int

const (
	StatusSucceeded Status = iota + 1
	StatusFailed           // task returned an error
	StatusFaulted          // task panicked or overran its timeout
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "Succeeded"
	case StatusFailed:
		return "Failed"
	case StatusFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}
