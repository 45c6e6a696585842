package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vladimirvivien/go4vl/v4l2"
)

// Replay serves the JPEG files of a directory in name order, then reports ErrSourceExhausted
type Replay struct {
	files    []string
	next     int
	interval time.Duration
	last     time.Time
}

// NewReplay lists the .jpg/.jpeg files in dir. A positive fps paces delivery.
func NewReplay(dir string, fps int) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no JPEG frames in %s", dir)
	}

	r := &Replay{files: files}
	if fps > 0 {
		r.interval = time.Second / time.Duration(fps)
	}
	return r, nil
}

// Len returns the number of frames in the replay
func (r *Replay) Len() int {
	return len(r.files)
}

// Next implements Source
func (r *Replay) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.next >= len(r.files) {
		return nil, ErrSourceExhausted
	}

	if r.interval > 0 && !r.last.IsZero() {
		if wait := r.interval - time.Since(r.last); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	path := r.files[r.next]
	r.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame %s: %w", path, err)
	}

	// A corrupt file still becomes a frame; ToImage fails on it and the caller drops it
	cfg, _ := jpeg.DecodeConfig(bytes.NewReader(data))

	r.last = time.Now()
	return &Frame{
		Data:      data,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Format:    v4l2.PixelFmtMJPEG,
		Timestamp: r.last,
		Sequence:  uint32(r.next),
	}, nil
}

// Close implements Source
func (r *Replay) Close() error {
	return nil
}
