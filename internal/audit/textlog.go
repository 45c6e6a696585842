package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrCodeEU/FaceGate/internal/access"
)

const recognitionLayout = "2006-01-02 15:04:05"

// RecognitionLog appends one line per admitted face to a plain text file
type RecognitionLog struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// OpenRecognitionLog opens (or creates) the log file, creating its directory
func OpenRecognitionLog(path string) (*RecognitionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to open recognition log: %w", err)
	}

	return &RecognitionLog{file: f, path: path}, nil
}

// Path returns the log file location
func (l *RecognitionLog) Path() string {
	return l.path
}

// FormatRecognition renders the log line for an event, without the newline
func FormatRecognition(ev access.Event) string {
	return fmt.Sprintf("%s - Recognized: %s (%.2f%%)",
		ev.Timestamp.Format(recognitionLayout), ev.Identity.Label, ev.Identity.Confidence)
}

// Record implements Sink. Only recognized outcomes are written.
func (l *RecognitionLog) Record(ctx context.Context, ev access.Event) error {
	if ev.Outcome != access.OutcomeRecognized {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("recognition log %s is closed", l.path)
	}
	if _, err := fmt.Fprintln(l.file, FormatRecognition(ev)); err != nil {
		return fmt.Errorf("failed to write recognition log: %w", err)
	}
	return nil
}

// Close implements Sink
func (l *RecognitionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
