// Package dlib identifies faces locally with dlib's ResNet descriptors
package dlib

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/Kagami/go-face"
	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/MrCodeEU/FaceGate/internal/embedding"
	"github.com/MrCodeEU/FaceGate/pkg/imaging"
)

// ErrNoFace is returned when dlib finds no face in the crop
var ErrNoFace = errors.New("no face found in crop")

type sample struct {
	label      string
	descriptor face.Descriptor
}

// Recognizer matches crops against enrolled descriptors by Euclidean distance.
// A distance equal to the tolerance maps to 50% confidence.
type Recognizer struct {
	rec       *face.Recognizer
	tolerance float64
	threshold float64
	samples   []sample
}

// New loads the dlib models from modelDir
// (shape_predictor_5_face_landmarks.dat, dlib_face_recognition_resnet_model_v1.dat)
func New(modelDir string, tolerance, threshold float64) (*Recognizer, error) {
	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", modelDir, err)
	}

	return &Recognizer{
		rec:       rec,
		tolerance: tolerance,
		threshold: threshold,
	}, nil
}

// Load replaces the enrolled samples. Vectors that are not dlib descriptors are skipped.
func (r *Recognizer) Load(people []embedding.Person) int {
	r.samples = r.samples[:0]
	for _, p := range people {
		if !p.Active {
			continue
		}
		for _, vec := range p.Embeddings {
			d, ok := toDescriptor(vec)
			if !ok {
				continue
			}
			r.samples = append(r.samples, sample{label: p.Name, descriptor: d})
		}
	}
	return len(r.samples)
}

// Embed implements identity.Embedder for enrollment
func (r *Recognizer) Embed(ctx context.Context, crop image.Image) ([]float32, error) {
	f, err := r.recognize(crop)
	if err != nil {
		return nil, err
	}
	return f.Descriptor[:], nil
}

// Identify implements access.IdentityMatcher
func (r *Recognizer) Identify(ctx context.Context, crop image.Image) (access.Identity, error) {
	f, err := r.recognize(crop)
	if errors.Is(err, ErrNoFace) {
		return access.Identity{Label: access.UnknownLabel}, nil
	}
	if err != nil {
		return access.Identity{}, err
	}

	label, dist := bestMatch(f.Descriptor, r.samples)
	return r.identity(label, dist), nil
}

// identity accepts a match only when its confidence is strictly above the threshold
func (r *Recognizer) identity(label string, dist float64) access.Identity {
	confidence := Confidence(dist, r.tolerance)
	if label == "" || dist > r.tolerance || confidence <= r.threshold {
		return access.Identity{Label: access.UnknownLabel, Confidence: confidence}
	}
	return access.Identity{Label: label, Confidence: confidence}
}

func (r *Recognizer) recognize(crop image.Image) (*face.Face, error) {
	data, err := imaging.EncodeJPEG(crop, 95)
	if err != nil {
		return nil, err
	}

	f, err := r.rec.RecognizeSingle(data)
	if err != nil {
		return nil, fmt.Errorf("dlib recognition failed: %w", err)
	}
	if f == nil {
		return nil, ErrNoFace
	}
	return f, nil
}

// Close releases the dlib models
func (r *Recognizer) Close() error {
	if r.rec != nil {
		r.rec.Close()
		r.rec = nil
	}
	return nil
}

// Confidence maps a descriptor distance to a percentage
func Confidence(dist, tolerance float64) float64 {
	if tolerance <= 0 || math.IsInf(dist, 1) {
		return 0
	}
	return imaging.Clamp(100*(1-dist/(2*tolerance)), 0, 100)
}

func bestMatch(probe face.Descriptor, samples []sample) (string, float64) {
	label := ""
	best := math.Inf(1)

	for _, s := range samples {
		dist := math.Sqrt(face.SquaredEuclideanDistance(probe, s.descriptor))
		if dist < best {
			best = dist
			label = s.label
		}
	}
	return label, best
}

func toDescriptor(vec []float32) (face.Descriptor, bool) {
	var d face.Descriptor
	if len(vec) != len(d) {
		return d, false
	}
	copy(d[:], vec)
	return d, true
}
