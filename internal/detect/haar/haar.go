// Package haar locates faces locally with an OpenCV Haar cascade
package haar

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Params are the cascade's multi-scale search settings
type Params struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

// DefaultParams are OpenCV's usual frontal-face settings
func DefaultParams() Params {
	return Params{ScaleFactor: 1.1, MinNeighbors: 5, MinSize: 30}
}

// Locator wraps a loaded cascade classifier. It is not safe for concurrent use.
type Locator struct {
	classifier gocv.CascadeClassifier
	params     Params
}

// New loads the cascade XML at path
func New(path string, params Params) (*Locator, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		_ = classifier.Close()
		return nil, fmt.Errorf("failed to load cascade classifier from %s", path)
	}

	return &Locator{classifier: classifier, params: params}, nil
}

// Locate implements detect.Locator
func (l *Locator) Locate(ctx context.Context, frame image.Image) ([]image.Rectangle, error) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	minSize := image.Pt(l.params.MinSize, l.params.MinSize)
	rects := l.classifier.DetectMultiScaleWithParams(gray,
		l.params.ScaleFactor, l.params.MinNeighbors, 0, minSize, image.Point{})

	// Mat coordinates start at zero; map back onto the frame's bounds
	origin := frame.Bounds().Min
	for i := range rects {
		rects[i] = rects[i].Add(origin)
	}

	return rects, nil
}

// Close releases the classifier
func (l *Locator) Close() error {
	return l.classifier.Close()
}
