// Package identity maps face crops to enrolled people
package identity

import (
	"context"
	"fmt"
	"image"

	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/MrCodeEU/FaceGate/internal/embedding"
	"github.com/MrCodeEU/FaceGate/pkg/imaging"
	"github.com/MrCodeEU/FaceGate/pkg/models"
)

// Embedder turns a face crop into an embedding vector
type Embedder interface {
	Embed(ctx context.Context, face image.Image) ([]float32, error)
}

// Gallery finds the closest enrolled person for an embedding
type Gallery interface {
	FindBestMatch(embedding []float32, threshold float64) (*embedding.Person, float64, error)
}

// Matcher identifies faces by cosine similarity against the gallery.
// Threshold and confidence are percentages.
type Matcher struct {
	embedder  Embedder
	gallery   Gallery
	threshold float64
}

// NewMatcher creates a matcher that reports UnknownLabel unless the confidence exceeds threshold percent
func NewMatcher(embedder Embedder, gallery Gallery, threshold float64) *Matcher {
	return &Matcher{
		embedder:  embedder,
		gallery:   gallery,
		threshold: threshold,
	}
}

// Identify implements access.IdentityMatcher
func (m *Matcher) Identify(ctx context.Context, face image.Image) (access.Identity, error) {
	vec, err := m.embedder.Embed(ctx, face)
	if err != nil {
		return access.Identity{}, fmt.Errorf("failed to extract embedding: %w", err)
	}

	person, score, err := m.gallery.FindBestMatch(vec, m.threshold/100)
	if err != nil {
		return access.Identity{}, fmt.Errorf("failed to search gallery: %w", err)
	}

	confidence := imaging.Clamp(score*100, 0, 100)
	if person == nil {
		return access.Identity{Label: access.UnknownLabel, Confidence: confidence}, nil
	}

	return access.Identity{Label: person.Name, Confidence: confidence}, nil
}

// EmbeddingService is the part of the inference client RemoteEmbedder needs
type EmbeddingService interface {
	ExtractEmbedding(ctx context.Context, img image.Image, face models.Detection) ([]float32, error)
}

// RemoteEmbedder extracts embeddings through the inference service.
// The crop is sent as a whole-image detection.
type RemoteEmbedder struct {
	service EmbeddingService
}

// NewRemoteEmbedder wraps an inference client
func NewRemoteEmbedder(service EmbeddingService) *RemoteEmbedder {
	return &RemoteEmbedder{service: service}
}

// Embed implements Embedder
func (e *RemoteEmbedder) Embed(ctx context.Context, face image.Image) ([]float32, error) {
	return e.service.ExtractEmbedding(ctx, face, models.DetectionFromRect(face.Bounds(), 1))
}
