// Package actuator drives the door lock servo over a serial line
package actuator

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

var (
	// ErrUnavailable means no actuator could be opened; the session runs simulated
	ErrUnavailable = errors.New("actuator unavailable")
	// ErrCommandFailed means a command could not be written to the link
	ErrCommandFailed = errors.New("actuator command failed")
)

// Port is the writable end of the serial transport
type Port interface {
	io.Writer
	io.Closer
}

// Options configures the serial link
type Options struct {
	BaudRate       int
	UnlockAngle    int
	LockAngle      int
	SettleDuration time.Duration
	ResetDelay     time.Duration
	Logger         logrus.FieldLogger

	// Sleep waits for the mechanism; tests replace it
	Sleep func(time.Duration)
}

// DefaultOptions matches the servo firmware: 9600 baud, 90 degrees open, 0 closed
func DefaultOptions() Options {
	return Options{
		BaudRate:       9600,
		UnlockAngle:    90,
		LockAngle:      0,
		SettleDuration: time.Second,
		ResetDelay:     2 * time.Second,
	}
}

// Link sends unlock/lock commands as newline-terminated angles.
// No acknowledgement is read back; a successful write counts as accepted.
type Link struct {
	port   Port
	name   string
	opts   Options
	logger logrus.FieldLogger
	mu     sync.Mutex
	closed bool
}

// Open opens the named serial port and waits for the board to finish its reset
func Open(name string, opts Options) (*Link, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no serial port configured or discovered", ErrUnavailable)
	}
	if opts.BaudRate == 0 {
		opts.BaudRate = DefaultOptions().BaudRate
	}

	port, err := serial.Open(name, &serial.Mode{BaudRate: opts.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrUnavailable, name, err)
	}

	link := NewLink(port, name, opts)

	// Opening the port resets most Arduino-style boards
	link.logger.Infof("Opened actuator on %s at %d baud, waiting %v for board reset", name, opts.BaudRate, opts.ResetDelay)
	link.opts.Sleep(opts.ResetDelay)

	return link, nil
}

// NewLink wraps an already open port
func NewLink(port Port, name string, opts Options) *Link {
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	return &Link{
		port:   port,
		name:   name,
		opts:   opts,
		logger: logger.WithField("port", name),
	}
}

// Name returns the serial device path
func (l *Link) Name() string {
	return l.name
}

// Unlock moves the servo to the unlock angle and waits for it to settle
func (l *Link) Unlock() error {
	return l.send(l.opts.UnlockAngle)
}

// Lock moves the servo to the lock angle and waits for it to settle
func (l *Link) Lock() error {
	return l.send(l.opts.LockAngle)
}

func (l *Link) send(angle int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("%w: link %s is closed", ErrCommandFailed, l.name)
	}

	cmd := strconv.Itoa(angle) + "\n"
	if _, err := l.port.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("%w: write angle %d to %s: %w", ErrCommandFailed, angle, l.name, err)
	}

	l.logger.Debugf("Sent angle %d", angle)
	l.opts.Sleep(l.opts.SettleDuration)

	return nil
}

// Close releases the serial port
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	return l.port.Close()
}
