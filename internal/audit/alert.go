package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/FaceGate/internal/access"
)

// Alert reports a burst of spoof attempts at the door
type Alert struct {
	Attempts int
	First    time.Time
	Last     time.Time
}

// SpoofAlert watches the event stream and raises an Alert when Threshold fake
// faces arrive within Window. After an alert it stays quiet for Window.
// A recognized face clears the count. Access decisions are not affected.
type SpoofAlert struct {
	threshold int
	window    time.Duration
	notify    func(Alert)
	logger    logrus.FieldLogger

	mu         sync.Mutex
	attempts   []time.Time
	quietUntil time.Time
}

// NewSpoofAlert creates the tracker. notify may be nil; alerts are always logged.
func NewSpoofAlert(threshold int, window time.Duration, notify func(Alert), logger logrus.FieldLogger) *SpoofAlert {
	if threshold <= 0 {
		threshold = 3
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &SpoofAlert{threshold: threshold, window: window, notify: notify, logger: logger}
}

// Record implements Sink
func (a *SpoofAlert) Record(ctx context.Context, ev access.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Outcome {
	case access.OutcomeRecognized:
		a.attempts = a.attempts[:0]
		return nil
	case access.OutcomeFake:
	default:
		return nil
	}

	now := ev.Timestamp
	a.attempts = append(a.attempts, now)

	// Drop attempts that fell out of the window
	cutoff := now.Add(-a.window)
	keep := a.attempts[:0]
	for _, t := range a.attempts {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	a.attempts = keep

	if len(a.attempts) < a.threshold || now.Before(a.quietUntil) {
		return nil
	}

	alert := Alert{Attempts: len(a.attempts), First: a.attempts[0], Last: now}
	a.quietUntil = now.Add(a.window)
	a.attempts = a.attempts[:0]

	a.logger.Warnf("%d spoof attempts within %v", alert.Attempts, alert.Last.Sub(alert.First).Round(time.Second))
	if a.notify != nil {
		a.notify(alert)
	}
	return nil
}

// Close implements Sink
func (a *SpoofAlert) Close() error {
	return nil
}
