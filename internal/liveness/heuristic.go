// Package liveness decides whether a face crop shows a live subject
package liveness

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/MrCodeEU/FaceGate/pkg/imaging"
)

const edgeThreshold = 30

// Heuristic scores a crop from its brightness, contrast, edge density and
// local texture. Printed photos and screens are flatter than live skin.
type Heuristic struct {
	MinScore          float64
	VarianceThreshold float64
	MinBrightness     float64
	MaxBrightness     float64
}

// Metrics are the raw measurements behind a heuristic verdict
type Metrics struct {
	Brightness  float64
	Variance    float64
	EdgeDensity float64
	Texture     float64
}

// NewHeuristic creates a heuristic gate
func NewHeuristic(minScore, varianceThreshold, minBrightness, maxBrightness float64) *Heuristic {
	return &Heuristic{
		MinScore:          minScore,
		VarianceThreshold: varianceThreshold,
		MinBrightness:     minBrightness,
		MaxBrightness:     maxBrightness,
	}
}

// Check implements access.LivenessGate
func (h *Heuristic) Check(ctx context.Context, face image.Image) (access.LivenessVerdict, error) {
	if face == nil || face.Bounds().Empty() {
		return access.LivenessVerdict{}, fmt.Errorf("empty face crop")
	}

	m := Measure(face)
	score := m.Score()

	live := score >= h.MinScore &&
		m.Variance > h.VarianceThreshold &&
		m.Brightness >= h.MinBrightness &&
		m.Brightness <= h.MaxBrightness

	return access.LivenessVerdict{Real: live, Score: score}, nil
}

// Score combines the metrics into [0,1]
func (m Metrics) Score() float64 {
	return normalizeScore(m.Variance, 0, 2500)*0.4 +
		m.EdgeDensity*0.3 +
		m.Texture*0.3
}

// Measure computes the liveness metrics of img
func Measure(img image.Image) Metrics {
	gray := imaging.Grayscale(img)
	mean, variance := meanVariance(gray)

	return Metrics{
		Brightness:  mean,
		Variance:    variance,
		EdgeDensity: edgeDensity(gray),
		Texture:     textureComplexity(gray),
	}
}

func meanVariance(g *image.Gray) (float64, float64) {
	b := g.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0, 0
	}

	var sum, sumSq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(g.GrayAt(x, y).Y)
			sum += v
			sumSq += v * v
		}
	}

	mean := sum / float64(n)
	return mean, sumSq/float64(n) - mean*mean
}

// edgeDensity is the fraction of pixels whose central-difference gradient exceeds edgeThreshold
func edgeDensity(g *image.Gray) float64 {
	b := g.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return 0
	}

	edges, total := 0, 0
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			gx := int(g.GrayAt(x+1, y).Y) - int(g.GrayAt(x-1, y).Y)
			gy := int(g.GrayAt(x, y+1).Y) - int(g.GrayAt(x, y-1).Y)

			if math.Sqrt(float64(gx*gx+gy*gy)) > edgeThreshold {
				edges++
			}
			total++
		}
	}

	return float64(edges) / float64(total)
}

var lbpNeighbours = [8]image.Point{
	{-1, -1}, {0, -1}, {1, -1}, {1, 0},
	{1, 1}, {0, 1}, {-1, 1}, {-1, 0},
}

// textureComplexity samples 8-neighbour local binary patterns on a grid
func textureComplexity(g *image.Gray) float64 {
	b := g.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return 0
	}

	const step = 8
	var total float64
	samples := 0

	for y := b.Min.Y + 1; y < b.Max.Y-1; y += step {
		for x := b.Min.X + 1; x < b.Max.X-1; x += step {
			center := g.GrayAt(x, y).Y

			var pattern uint8
			for bit, n := range lbpNeighbours {
				if g.GrayAt(x+n.X, y+n.Y).Y >= center {
					pattern |= 1 << bit
				}
			}

			total += float64(pattern)
			samples++
		}
	}

	if samples == 0 {
		return 0
	}
	return normalizeScore(total/float64(samples), 0, 255)
}

func normalizeScore(value, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return imaging.Clamp((value-min)/(max-min), 0, 1)
}
