package session

import (
	"errors"
	"fmt"
)

// State is the phase of a question attempt.
type State string

// Attempt phases.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateResulted  State = "resulted"
	StateSubmitted State = "submitted"
)

// Action is an input to the attempt state machine.
type Action string

// Attempt actions.
const (
	ActionRun     Action = "run"
	ActionFinish  Action = "finish"
	ActionReset   Action = "reset"
	ActionSubmit  Action = "submit"
	ActionRestart Action = "restart"
)

var (
	// ErrInvalidTransition is returned for an action the current state does not accept.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrRunRequired is returned when submitting before any run produced results.
	ErrRunRequired = errors.New("run the code before submitting")
)

// Next returns the state reached by applying action to current.
func Next(current State, action Action) (State, error) {
	if current == "" {
		current = StateIdle
	}

	switch action {
	case ActionRun:
		if current == StateIdle || current == StateResulted {
			return StateRunning, nil
		}
	case ActionFinish:
		if current == StateRunning {
			return StateResulted, nil
		}
	case ActionReset:
		if current != StateRunning && current != StateSubmitted {
			return StateIdle, nil
		}
	case ActionSubmit:
		switch current {
		case StateResulted:
			return StateSubmitted, nil
		case StateIdle:
			return current, ErrRunRequired
		}
	case ActionRestart:
		return StateIdle, nil
	}

	return current, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, current)
}

// RestoredState is the phase a restored snapshot resumes in.
func RestoredState(snapshot Snapshot) State {
	if snapshot.State == StateSubmitted {
		return StateSubmitted
	}
	if snapshot.HasResults() {
		return StateResulted
	}
	return StateIdle
}
