package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/MrCodeEU/FaceGate/pkg/imaging"
)

// LogPresenter reports each event as a structured log entry
type LogPresenter struct {
	Logger logrus.FieldLogger
}

// Present implements Presenter
func (p LogPresenter) Present(frame image.Image, ev access.Event) {
	entry := p.Logger.WithFields(logrus.Fields{
		"event":     ev.ID,
		"outcome":   ev.Outcome.String(),
		"door":      ev.Door.String(),
		"action":    ev.Action.String(),
		"actuation": ev.Actuation.String(),
	})
	if !ev.Region.Empty() {
		entry = entry.WithField("region", ev.Region.String())
	}

	switch ev.Outcome {
	case access.OutcomeFake:
		entry.WithField("liveness", ev.Liveness.Score).Warn("Fake face detected")
	case access.OutcomeRealUnknown:
		entry.WithField("confidence", ev.Identity.Confidence).Info("Unknown face")
	case access.OutcomeRecognized:
		entry.WithFields(logrus.Fields{
			"label":      ev.Identity.Label,
			"confidence": ev.Identity.Confidence,
		}).Infof("Recognized: %s (%.2f%%)", ev.Identity.Label, ev.Identity.Confidence)
	default:
		entry.Info("Door event")
	}
}

// Presenters fans out to several presenters
type Presenters []Presenter

// Present implements Presenter
func (ps Presenters) Present(frame image.Image, ev access.Event) {
	for _, p := range ps {
		p.Present(frame, ev)
	}
}

var outcomeColors = map[access.Outcome]color.RGBA{
	access.OutcomeFake:        {R: 255, A: 255},
	access.OutcomeRealUnknown: {R: 255, G: 165, A: 255},
	access.OutcomeRecognized:  {G: 255, A: 255},
}

// SnapshotPresenter writes an annotated JPEG of the frame for every face event
type SnapshotPresenter struct {
	Dir      string
	MaxWidth int // downscale wider frames; 0 keeps the original size
	Logger   logrus.FieldLogger
}

// Present implements Presenter
func (p SnapshotPresenter) Present(frame image.Image, ev access.Event) {
	if frame == nil {
		return
	}
	if err := p.save(frame, ev); err != nil {
		p.Logger.Warnf("Failed to save snapshot for %s: %v", ev.ID, err)
	}
}

func (p SnapshotPresenter) save(frame image.Image, ev access.Event) error {
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return err
	}

	var img image.Image = Annotate(frame, ev)
	if b := img.Bounds(); p.MaxWidth > 0 && b.Dx() > p.MaxWidth {
		img = imaging.ResizeImage(img, p.MaxWidth, b.Dy()*p.MaxWidth/b.Dx())
	}

	data, err := imaging.EncodeJPEG(img, 85)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%s.jpg", ev.ID, ev.Outcome)
	return os.WriteFile(filepath.Join(p.Dir, name), data, 0644)
}

// Annotate copies frame and outlines the event's region in the outcome colour
func Annotate(frame image.Image, ev access.Event) *image.RGBA {
	b := frame.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, frame, b.Min, draw.Src)

	c, ok := outcomeColors[ev.Outcome]
	if !ok || ev.Region.Empty() {
		return out
	}

	r := ev.Region.Intersect(b)
	const thickness = 2
	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			out.SetRGBA(x, r.Min.Y+t, c)
			out.SetRGBA(x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			out.SetRGBA(r.Min.X+t, y, c)
			out.SetRGBA(r.Max.X-1-t, y, c)
		}
	}
	return out
}
