// Package access holds the door state machine and the per-face access decision
package access

import (
	"context"
	"image"
	"time"
)

// UnknownLabel is the identity label reported below the matcher threshold
const UnknownLabel = "unknown"

// DoorState is the logical state of the lock
type DoorState int

const (
	Locked DoorState = iota
	Unlocked
)

func (s DoorState) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return "invalid"
	}
}

// Outcome classifies one evaluated face
type Outcome int

const (
	// OutcomeFake means the liveness gate rejected the face
	OutcomeFake Outcome = iota
	// OutcomeRealUnknown means a live face did not match any enrolled identity
	OutcomeRealUnknown
	// OutcomeRecognized means a live face matched an enrolled identity
	OutcomeRecognized
	// OutcomeRelockTimer marks a re-lock issued without a face (timer relock mode)
	OutcomeRelockTimer
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFake:
		return "fake"
	case OutcomeRealUnknown:
		return "real_unknown"
	case OutcomeRecognized:
		return "recognized"
	case OutcomeRelockTimer:
		return "relock_timer"
	default:
		return "invalid"
	}
}

// Action is the actuator command an event decided on
type Action int

const (
	ActionNone Action = iota
	ActionUnlock
	ActionLock
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionUnlock:
		return "unlock"
	case ActionLock:
		return "lock"
	default:
		return "invalid"
	}
}

// Actuation records what happened to the decided action
type Actuation int

const (
	ActuationNotAttempted Actuation = iota
	ActuationSucceeded
	ActuationFailed
	// ActuationSimulated means no actuator link is configured
	ActuationSimulated
)

func (a Actuation) String() string {
	switch a {
	case ActuationNotAttempted:
		return "not_attempted"
	case ActuationSucceeded:
		return "succeeded"
	case ActuationFailed:
		return "failed"
	case ActuationSimulated:
		return "simulated"
	default:
		return "invalid"
	}
}

// FaceRegion is one located face: its rectangle in the frame and the normalized crop
type FaceRegion struct {
	Rect  image.Rectangle
	Image image.Image
}

// Empty reports whether the region is degenerate and must be skipped
func (r FaceRegion) Empty() bool {
	return r.Image == nil || r.Rect.Empty() || r.Image.Bounds().Empty()
}

// LivenessVerdict is the liveness gate's answer for one face crop
type LivenessVerdict struct {
	Real  bool
	Score float64 // [0,1]
}

// Identity is the matcher's answer for one face crop
type Identity struct {
	Label      string
	Confidence float64 // percent
}

// Known reports whether the identity names an enrolled person
func (i Identity) Known() bool {
	return i.Label != "" && i.Label != UnknownLabel
}

// Event is the outcome of evaluating one face (or one timer re-lock)
type Event struct {
	ID        string
	Timestamp time.Time
	Region    image.Rectangle
	Outcome   Outcome
	Identity  Identity
	Liveness  LivenessVerdict
	Action    Action
	Actuation Actuation
	Door      DoorState
	Error     string
}

// LivenessGate decides whether a face crop shows a live subject
type LivenessGate interface {
	Check(ctx context.Context, face image.Image) (LivenessVerdict, error)
}

// IdentityMatcher maps a face crop to an enrolled identity
type IdentityMatcher interface {
	Identify(ctx context.Context, face image.Image) (Identity, error)
}

// Actuator drives the physical lock. Both calls block until the mechanism has settled.
type Actuator interface {
	Unlock() error
	Lock() error
}
