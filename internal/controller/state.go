package controller

import (
	"fmt"
	"sync"
	"time"

	pkgerrors "pingmon/pkg/errors"
)

// State is the probe lifecycle as seen by the controller.
//
// idle     -> starting
// starting -> running | idle
// running  -> stopping | idle   (idle when the probe exits on its own)
// stopping -> idle
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

func allowedTransition(cur, next State) bool {
	switch cur {
	case StateIdle:
		return next == StateStarting
	case StateStarting:
		return next == StateRunning || next == StateIdle
	case StateRunning:
		return next == StateStopping || next == StateIdle
	case StateStopping:
		return next == StateIdle
	default:
		return false
	}
}

// Status is a consistent view of the state for other goroutines.
type Status struct {
	State     State
	Target    string
	Session   uint64
	StartedAt time.Time
}

type stateBox struct {
	mu     sync.RWMutex
	status Status
}

func (b *stateBox) get() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// set moves to next. Setting the current state again is a no-op.
func (b *stateBox) set(next State, target string, session uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.status.State
	if cur == next {
		return nil
	}
	if !allowedTransition(cur, next) {
		return fmt.Errorf("%w: %s -> %s", pkgerrors.ErrInvalidTransition, cur, next)
	}

	switch next {
	case StateStarting:
		b.status.Target = target
		b.status.Session = 0
		b.status.StartedAt = time.Time{}
	case StateRunning:
		b.status.Session = session
		b.status.StartedAt = time.Now()
	case StateIdle:
		b.status.StartedAt = time.Time{}
	}
	b.status.State = next
	return nil
}
