package daemon

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/FaceGate/internal/camera"
	"github.com/MrCodeEU/FaceGate/internal/config"
	"github.com/MrCodeEU/FaceGate/internal/detect"
	"github.com/MrCodeEU/FaceGate/internal/embedding"
	"github.com/MrCodeEU/FaceGate/internal/identity"
	"github.com/MrCodeEU/FaceGate/internal/identity/dlib"
	"github.com/MrCodeEU/FaceGate/pkg/imaging"
)

// maxFramesPerSample bounds how long enrollment keeps trying without a usable face
const maxFramesPerSample = 10

// Enroller captures face samples from the configured source and stores their embeddings
type Enroller struct {
	d        *Daemon
	source   camera.Source
	locator  detect.Locator
	embedder identity.Embedder
}

// BuildEnroller opens the store, the frame source, the locator and the embedder
// of the configured recognition backend
func BuildEnroller(cfg *config.Config, logger *logrus.Logger) (_ *Enroller, err error) {
	d := &Daemon{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	store, err := embedding.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding store: %w", err)
	}
	d.Store = store
	d.onClose("store", store.Close)

	if cfg.Detection.Backend == "grpc" || cfg.Recognition.Backend == "grpc" {
		if err := d.connectInference(); err != nil {
			return nil, err
		}
	}

	e := &Enroller{d: d}

	switch cfg.Recognition.Backend {
	case "dlib":
		rec, err := dlib.New(cfg.Recognition.ModelDir, float64(cfg.Recognition.Tolerance), cfg.Recognition.Threshold)
		if err != nil {
			return nil, err
		}
		d.onClose("dlib recognizer", rec.Close)
		e.embedder = rec
	default:
		e.embedder = identity.NewRemoteEmbedder(d.inference)
	}

	if e.locator, err = d.newLocator(); err != nil {
		return nil, err
	}
	d.onClose("locator", e.locator.Close)

	if e.source, err = d.newSource(); err != nil {
		return nil, err
	}
	d.onClose("frame source", e.source.Close)

	return e, nil
}

// Store is the enrollment database
func (e *Enroller) Store() *embedding.Store {
	return e.d.Store
}

// Capture collects n embeddings, one per frame that shows a face.
// progress is called after every accepted sample.
func (e *Enroller) Capture(ctx context.Context, n int, progress func(done int)) ([][]float32, error) {
	cfg := e.d.cfg
	var samples [][]float32

	for attempts := 0; len(samples) < n; attempts++ {
		if attempts >= n*maxFramesPerSample {
			return samples, fmt.Errorf("only %d of %d samples captured; is a face clearly visible?", len(samples), n)
		}

		frame, err := e.source.Next(ctx)
		if err != nil {
			if errors.Is(err, camera.ErrSourceExhausted) {
				return samples, fmt.Errorf("frame source ended after %d of %d samples", len(samples), n)
			}
			return samples, err
		}

		img, err := frame.ToImage()
		if err != nil {
			e.d.logger.Debugf("Skipping frame %d: %v", frame.Sequence, err)
			continue
		}

		rects, err := e.locator.Locate(ctx, img)
		if err != nil {
			e.d.logger.Warnf("Face detection failed: %v", err)
			continue
		}
		r, ok := largestFace(rects)
		if !ok {
			continue
		}

		r = imaging.ExpandRect(r, cfg.Detection.Margin, img.Bounds())
		crop := imaging.CropToAspect(imaging.CropImage(img, r.Min.X, r.Min.Y, r.Dx(), r.Dy()),
			cfg.Door.AspectWidth, cfg.Door.AspectHeight)

		vec, err := e.embedder.Embed(ctx, crop)
		if err != nil {
			e.d.logger.Debugf("No embedding for frame %d: %v", frame.Sequence, err)
			continue
		}

		samples = append(samples, vec)
		if progress != nil {
			progress(len(samples))
		}
	}

	return samples, nil
}

// Save stores the samples under name, adding to an existing enrollment
func (e *Enroller) Save(name string, samples [][]float32) (*embedding.Person, error) {
	store := e.d.Store

	if _, err := store.GetPerson(name); err == nil {
		if err := store.AddEmbeddings(name, samples); err != nil {
			return nil, err
		}
		return store.GetPerson(name)
	} else if !errors.Is(err, embedding.ErrNotFound) {
		return nil, err
	}

	return store.CreatePerson(name, samples)
}

// Close releases the enrollment resources
func (e *Enroller) Close() error {
	return e.d.Close()
}

// largestFace picks the biggest box; enrollment expects one person in front of the camera
func largestFace(rects []image.Rectangle) (image.Rectangle, bool) {
	var best image.Rectangle
	for _, r := range rects {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}
	return best, !best.Empty()
}
