// Package pipeline runs the frame loop: acquire, locate, evaluate each face,
// present and record the resulting events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/MrCodeEU/FaceGate/internal/audit"
	"github.com/MrCodeEU/FaceGate/internal/camera"
	"github.com/MrCodeEU/FaceGate/internal/detect"
	"github.com/MrCodeEU/FaceGate/pkg/imaging"
)

// SourceError means the frame source failed for a reason other than running out of frames
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("frame source failed: %v", e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Controller is the part of access.Controller the loop drives
type Controller interface {
	Evaluate(ctx context.Context, region access.FaceRegion, now time.Time) access.Event
	Expire(now time.Time) (access.Event, bool)
}

// Presenter shows an event to an operator. It must not feed anything back into the loop.
// frame is nil for events that are not tied to a frame (timer re-lock).
type Presenter interface {
	Present(frame image.Image, ev access.Event)
}

// Options configure the driver
type Options struct {
	RelockOnTimer bool
	AspectWidth   int     // default 3
	AspectHeight  int     // default 4
	Margin        float64 // grow located boxes by this fraction before cropping
	Now           func() time.Time
	Logger        logrus.FieldLogger
}

// Driver owns nothing it is given; the caller closes the source, locator and sink
type Driver struct {
	source     camera.Source
	locator    detect.Locator
	controller Controller
	sink       audit.Sink
	presenter  Presenter
	opts       Options
	stats      Stats
}

// NewDriver wires a loop. sink and presenter may be nil.
func NewDriver(source camera.Source, locator detect.Locator, controller Controller,
	sink audit.Sink, presenter Presenter, opts Options) *Driver {
	if opts.AspectWidth <= 0 || opts.AspectHeight <= 0 {
		opts.AspectWidth, opts.AspectHeight = 3, 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Driver{
		source:     source,
		locator:    locator,
		controller: controller,
		sink:       sink,
		presenter:  presenter,
		opts:       opts,
		stats:      newStats(),
	}
}

// Run loops until ctx is cancelled (returns nil), the source is exhausted
// (returns nil) or the source fails (returns *SourceError).
// Cancellation is observed between frames; a frame already being evaluated is finished.
func (d *Driver) Run(ctx context.Context) error {
	logger := d.opts.Logger
	d.stats.Started = d.opts.Now()
	defer func() { d.stats.Stopped = d.opts.Now() }()

	// Work on the current frame must not be cut short by the stop signal
	work := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			logger.Info("Stop requested")
			return nil
		}

		if d.opts.RelockOnTimer {
			if ev, ok := d.controller.Expire(d.opts.Now()); ok {
				d.emit(work, nil, ev)
			}
		}

		frame, err := d.source.Next(ctx)
		if err != nil {
			if errors.Is(err, camera.ErrSourceExhausted) {
				logger.Info("Frame source exhausted")
				return nil
			}
			if ctx.Err() != nil {
				logger.Info("Stop requested")
				return nil
			}
			return &SourceError{Err: err}
		}
		d.stats.Frames++

		img, err := frame.ToImage()
		if err != nil {
			logger.Warnf("Dropping frame %d: %v", frame.Sequence, err)
			d.stats.DroppedFrames++
			continue
		}

		d.processFrame(work, img)
	}
}

func (d *Driver) processFrame(ctx context.Context, img image.Image) {
	rects, err := d.locator.Locate(ctx, img)
	if err != nil {
		d.opts.Logger.Warnf("Face detection failed: %v", err)
		d.stats.LocateErrors++
		return
	}

	for _, r := range rects {
		region := d.region(img, r)
		if region.Empty() {
			d.stats.SkippedRegions++
			continue
		}
		d.stats.Faces++

		ev := d.controller.Evaluate(ctx, region, d.opts.Now())
		d.emit(ctx, img, ev)
	}
}

// region crops r out of the frame and normalizes it to the configured aspect ratio
func (d *Driver) region(img image.Image, r image.Rectangle) access.FaceRegion {
	bounds := img.Bounds()
	if d.opts.Margin > 0 {
		r = imaging.ExpandRect(r, d.opts.Margin, bounds)
	} else {
		r = r.Intersect(bounds)
	}
	if r.Empty() {
		return access.FaceRegion{Rect: r}
	}

	crop := imaging.CropImage(img, r.Min.X, r.Min.Y, r.Dx(), r.Dy())
	return access.FaceRegion{
		Rect:  r,
		Image: imaging.CropToAspect(crop, d.opts.AspectWidth, d.opts.AspectHeight),
	}
}

func (d *Driver) emit(ctx context.Context, frame image.Image, ev access.Event) {
	d.stats.record(ev)

	if d.presenter != nil {
		d.presenter.Present(frame, ev)
	}
	if d.sink != nil {
		if err := d.sink.Record(ctx, ev); err != nil {
			d.stats.SinkErrors++
		}
	}
}

// Stats returns a copy of the loop counters
func (d *Driver) Stats() Stats {
	s := d.stats
	s.Outcomes = make(map[access.Outcome]int, len(d.stats.Outcomes))
	for k, v := range d.stats.Outcomes {
		s.Outcomes[k] = v
	}
	return s
}
