package access

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// DefaultCooldown is the minimum time between two actuator-affecting decisions
const DefaultCooldown = 5 * time.Second

// Cooldown tracks the last unlock and the enforced gap after it
type Cooldown struct {
	Duration time.Duration
	last     time.Time
}

// Elapsed reports whether now is at least Duration after the last unlock.
// A timestamp earlier than the last unlock never counts as elapsed.
func (c *Cooldown) Elapsed(now time.Time) bool {
	if now.Before(c.last) {
		return false
	}
	return now.Sub(c.last) >= c.Duration
}

// Mark records an unlock at now. The timestamp never moves backwards.
func (c *Cooldown) Mark(now time.Time) {
	if now.After(c.last) {
		c.last = now
	}
}

// Last returns the last unlock time (zero before the first unlock)
func (c *Cooldown) Last() time.Time {
	return c.last
}

// Options configures a Controller
type Options struct {
	// Cooldown between actuator-affecting decisions; zero means DefaultCooldown
	Cooldown time.Duration

	// SimulateTransitions applies the logical door transition when no actuator
	// link is configured. Off by default: a simulated command leaves the door as it was.
	SimulateTransitions bool

	Logger logrus.FieldLogger
}

// Controller owns the door state and decides, face by face, whether to actuate.
// It is not safe for concurrent use; the control loop is its only caller.
type Controller struct {
	gate     LivenessGate
	matcher  IdentityMatcher
	link     Actuator
	opts     Options
	logger   logrus.FieldLogger
	state    DoorState
	cooldown Cooldown
}

// NewController creates a controller starting Locked. A nil link selects simulation mode.
func NewController(gate LivenessGate, matcher IdentityMatcher, link Actuator, opts Options) *Controller {
	if opts.Cooldown == 0 {
		opts.Cooldown = DefaultCooldown
	}
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		logger = l
	}

	return &Controller{
		gate:     gate,
		matcher:  matcher,
		link:     link,
		opts:     opts,
		logger:   logger,
		state:    Locked,
		cooldown: Cooldown{Duration: opts.Cooldown},
	}
}

// State returns the current door state
func (c *Controller) State() DoorState {
	return c.state
}

// LastUnlock returns the time of the last unlock
func (c *Controller) LastUnlock() time.Time {
	return c.cooldown.Last()
}

// Simulated reports whether the controller runs without an actuator link
func (c *Controller) Simulated() bool {
	return c.link == nil
}

// Evaluate runs the liveness gate, the identity matcher and the cooldown-gated
// actuation for one face region. Fake faces, unknown faces and actuator failures
// are reported on the returned event, never as errors.
func (c *Controller) Evaluate(ctx context.Context, region FaceRegion, now time.Time) Event {
	ev := c.newEvent(now)
	ev.Region = region.Rect

	// 1. Liveness gate
	verdict, err := c.gate.Check(ctx, region.Image)
	if err != nil {
		c.logger.Warnf("Liveness check error: %v", err)
		ev.Error = err.Error()
		verdict = LivenessVerdict{Real: false}
	}
	ev.Liveness = verdict

	if !verdict.Real {
		ev.Outcome = OutcomeFake
		ev.Door = c.state
		return ev
	}

	// 2. Identification
	identity, err := c.matcher.Identify(ctx, region.Image)
	if err != nil {
		c.logger.Warnf("Identification error: %v", err)
		ev.Error = err.Error()
		identity = Identity{Label: UnknownLabel}
	}
	ev.Identity = identity

	if !identity.Known() {
		ev.Outcome = OutcomeRealUnknown
		ev.Door = c.state
		return ev
	}

	// 3. Cooldown-gated actuation
	ev.Outcome = OutcomeRecognized
	c.decide(&ev, now)
	ev.Door = c.state

	return ev
}

// Expire re-locks the door once the cooldown since the last unlock has elapsed,
// without needing a face. It reports false when there was nothing to do.
func (c *Controller) Expire(now time.Time) (Event, bool) {
	if c.state != Unlocked || !c.cooldown.Elapsed(now) {
		return Event{}, false
	}

	ev := c.newEvent(now)
	ev.Outcome = OutcomeRelockTimer
	ev.Identity = Identity{Label: UnknownLabel}
	ev.Action = ActionLock
	if c.actuate(&ev) {
		c.state = Locked
		c.logger.Infof("Door re-locked after %v without a new face", now.Sub(c.cooldown.Last()))
	}
	ev.Door = c.state

	return ev, true
}

func (c *Controller) decide(ev *Event, now time.Time) {
	if !c.cooldown.Elapsed(now) {
		c.logger.Debugf("Within cooldown for %s, door stays %s", ev.Identity.Label, c.state)
		return
	}

	switch c.state {
	case Locked:
		ev.Action = ActionUnlock
		if c.actuate(ev) {
			c.state = Unlocked
			c.cooldown.Mark(now)
			c.logger.Infof("Door unlocked for %s (confidence: %.2f%%)", ev.Identity.Label, ev.Identity.Confidence)
		}
	case Unlocked:
		ev.Action = ActionLock
		if c.actuate(ev) {
			c.state = Locked
			c.logger.Infof("Door re-locked (cooldown of %v elapsed)", c.cooldown.Duration)
		}
	}
}

// actuate issues ev.Action and reports whether the door state should follow it
func (c *Controller) actuate(ev *Event) bool {
	if c.link == nil {
		ev.Actuation = ActuationSimulated
		c.logger.Infof("Simulation mode: would %s the door", ev.Action)
		return c.opts.SimulateTransitions
	}

	var err error
	switch ev.Action {
	case ActionUnlock:
		err = c.link.Unlock()
	case ActionLock:
		err = c.link.Lock()
	default:
		return false
	}

	if err != nil {
		ev.Actuation = ActuationFailed
		ev.Error = err.Error()
		c.logger.Errorf("Failed to %s door: %v", ev.Action, err)
		return false
	}

	ev.Actuation = ActuationSucceeded
	return true
}

func (c *Controller) newEvent(now time.Time) Event {
	return Event{
		ID:        newEventID(now),
		Timestamp: now,
		Door:      c.state,
	}
}

func newEventID(now time.Time) string {
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		// Timestamps outside the ULID range still get a unique id
		return ulid.Make().String()
	}
	return id.String()
}
