package detect

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/MrCodeEU/FaceGate/pkg/models"
)

type fakeService struct {
	detections []models.Detection
	err        error
}

func (s *fakeService) DetectFaces(ctx context.Context, img image.Image, confidence, nms float32) ([]models.Detection, error) {
	return s.detections, s.err
}

func det(x1, y1, x2, y2, conf float32) models.Detection {
	return models.Detection{X1: x1, Y1: y1, X2: x2, Y2: y2, Confidence: conf}
}

func TestRemoteLocate(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 640, 480))

	tests := []struct {
		name       string
		detections []models.Detection
		max        int
		want       []image.Rectangle
	}{
		{
			name: "no faces",
			want: []image.Rectangle{},
		},
		{
			name: "keeps service order",
			detections: []models.Detection{
				det(400, 100, 480, 200, 0.7),
				det(100, 100, 180, 200, 0.9),
			},
			want: []image.Rectangle{
				image.Rect(400, 100, 480, 200),
				image.Rect(100, 100, 180, 200),
			},
		},
		{
			name: "drops low confidence",
			detections: []models.Detection{
				det(10, 10, 90, 110, 0.3),
				det(100, 100, 180, 200, 0.8),
			},
			want: []image.Rectangle{image.Rect(100, 100, 180, 200)},
		},
		{
			name: "clips to frame",
			detections: []models.Detection{
				det(-20, 400, 60, 520, 0.9),
			},
			want: []image.Rectangle{image.Rect(0, 400, 60, 480)},
		},
		{
			name: "cap keeps most confident in order",
			detections: []models.Detection{
				det(0, 0, 50, 50, 0.6),
				det(100, 0, 150, 50, 0.95),
				det(200, 0, 250, 50, 0.8),
			},
			max: 2,
			want: []image.Rectangle{
				image.Rect(100, 0, 150, 50),
				image.Rect(200, 0, 250, 50),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := NewRemote(&fakeService{detections: tt.detections}, 0.5, 0.4, tt.max)

			got, err := loc.Locate(context.Background(), frame)
			if err != nil {
				t.Fatalf("Locate failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d rectangles, got %v", len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Rectangle %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestRemoteLocateError(t *testing.T) {
	loc := NewRemote(&fakeService{err: errors.New("unavailable")}, 0.5, 0.4, 0)
	if _, err := loc.Locate(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10))); err == nil {
		t.Error("Expected service errors to propagate")
	}
}
