package pipeline

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/FaceGate/internal/access"
)

// Stats are the session counters reported at shutdown
type Stats struct {
	Started time.Time
	Stopped time.Time

	Frames         int
	DroppedFrames  int
	LocateErrors   int
	Faces          int
	SkippedRegions int
	SinkErrors     int

	Outcomes          map[access.Outcome]int
	Unlocks           int
	Locks             int
	ActuationFailures int
}

func newStats() Stats {
	return Stats{Outcomes: make(map[access.Outcome]int)}
}

func (s *Stats) record(ev access.Event) {
	s.Outcomes[ev.Outcome]++

	switch ev.Actuation {
	case access.ActuationFailed:
		s.ActuationFailures++
		return
	case access.ActuationNotAttempted:
		return
	}

	switch ev.Action {
	case access.ActionUnlock:
		s.Unlocks++
	case access.ActionLock:
		s.Locks++
	}
}

// FPS is the average frame rate over the session
func (s Stats) FPS() float64 {
	elapsed := s.Stopped.Sub(s.Started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / elapsed
}

// Log writes the session summary
func (s Stats) Log(logger logrus.FieldLogger) {
	logger.WithFields(logrus.Fields{
		"frames":          s.Frames,
		"dropped_frames":  s.DroppedFrames,
		"faces":           s.Faces,
		"skipped_regions": s.SkippedRegions,
		"locate_errors":   s.LocateErrors,
		"sink_errors":     s.SinkErrors,
		"fps":             s.FPS(),
	}).Info("Session statistics")

	logger.WithFields(logrus.Fields{
		"recognized":         s.Outcomes[access.OutcomeRecognized],
		"real_unknown":       s.Outcomes[access.OutcomeRealUnknown],
		"fake":               s.Outcomes[access.OutcomeFake],
		"relock_timer":       s.Outcomes[access.OutcomeRelockTimer],
		"unlocks":            s.Unlocks,
		"locks":              s.Locks,
		"actuation_failures": s.ActuationFailures,
	}).Info("Access statistics")
}
