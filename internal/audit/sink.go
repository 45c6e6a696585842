// Package audit records access events: the recognition log, the local
// history table, an optional central Postgres table and MQTT.
package audit

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/FaceGate/internal/access"
)

// Sink receives every access event the controller produces
type Sink interface {
	Record(ctx context.Context, ev access.Event) error
	Close() error
}

// Multi fans events out to several sinks. A failing sink never stops the others.
type Multi struct {
	sinks  []Sink
	logger logrus.FieldLogger
}

// NewMulti creates a fan-out sink. Nil sinks are ignored.
func NewMulti(logger logrus.FieldLogger, sinks ...Sink) *Multi {
	m := &Multi{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of attached sinks
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Record implements Sink
func (m *Multi) Record(ctx context.Context, ev access.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, ev); err != nil {
			if m.logger != nil {
				m.logger.Warnf("Failed to record event %s: %v", ev.ID, err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and returns the joined errors
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
