// Package detect locates candidate faces in a frame
package detect

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/MrCodeEU/FaceGate/pkg/models"
)

// Locator returns face rectangles in frame coordinates, in the order the backend reports them
type Locator interface {
	Locate(ctx context.Context, frame image.Image) ([]image.Rectangle, error)
	Close() error
}

// DetectionService is the part of the inference client the remote locator needs
type DetectionService interface {
	DetectFaces(ctx context.Context, img image.Image, confidence, nms float32) ([]models.Detection, error)
}

// Remote locates faces through the inference service
type Remote struct {
	service       DetectionService
	confidence    float32
	nmsThreshold  float32
	maxDetections int
}

// NewRemote creates a locator. maxDetections <= 0 keeps every detection.
func NewRemote(service DetectionService, confidence, nmsThreshold float32, maxDetections int) *Remote {
	return &Remote{
		service:       service,
		confidence:    confidence,
		nmsThreshold:  nmsThreshold,
		maxDetections: maxDetections,
	}
}

// Locate implements Locator
func (r *Remote) Locate(ctx context.Context, frame image.Image) ([]image.Rectangle, error) {
	detections, err := r.service.DetectFaces(ctx, frame, r.confidence, r.nmsThreshold)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	// Keep the most confident faces when capped, but report them in service order
	if r.maxDetections > 0 && len(detections) > r.maxDetections {
		idx := make([]int, len(detections))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return detections[idx[a]].Confidence > detections[idx[b]].Confidence
		})
		keep := idx[:r.maxDetections]
		sort.Ints(keep)

		capped := make([]models.Detection, 0, len(keep))
		for _, i := range keep {
			capped = append(capped, detections[i])
		}
		detections = capped
	}

	bounds := frame.Bounds()
	rects := make([]image.Rectangle, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < r.confidence {
			continue
		}
		rects = append(rects, d.Rect().Intersect(bounds))
	}

	return rects, nil
}

// Close is a no-op; the inference client is owned by the caller
func (r *Remote) Close() error {
	return nil
}
