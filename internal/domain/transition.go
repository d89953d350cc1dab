package domain

import "fmt"

// Transition is a timed lifecycle step of a contest
type Transition int

const (
	TransitionStart Transition = iota + 1
	TransitionEnd
)

// From returns the only status the transition may be applied to
func (t Transition) From() ContestStatus {
	switch t {
	case TransitionStart:
		return StatusActive
	case TransitionEnd:
		return StatusRunning
	}
	panic(fmt.Sprintf("unknown transition %d", int(t)))
}

// To returns the status the contest holds after the transition
func (t Transition) To() ContestStatus {
	switch t {
	case TransitionStart:
		return StatusRunning
	case TransitionEnd:
		return StatusEnded
	}
	panic(fmt.Sprintf("unknown transition %d", int(t)))
}

func (t Transition) String() string {
	switch t {
	case TransitionStart:
		return "start"
	case TransitionEnd:
		return "end"
	}
	return fmt.Sprintf("transition(%d)", int(t))
}

// Check returns ErrInvalidState when a contest in status s cannot take the transition
func (t Transition) Check(s ContestStatus) error {
	if s != t.From() {
		return fmt.Errorf("%w: cannot %s a contest that is %s", ErrInvalidState, t, s)
	}
	return nil
}
