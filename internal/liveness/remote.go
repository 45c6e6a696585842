package liveness

import (
	"context"
	"fmt"
	"image"

	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/MrCodeEU/FaceGate/pkg/models"
	"github.com/sirupsen/logrus"
)

// Service is the part of the inference client the remote gate needs
type Service interface {
	CheckLiveness(ctx context.Context, img image.Image, face models.Detection) (bool, float32, error)
}

// Remote asks the inference service for a verdict on the whole crop
type Remote struct {
	service  Service
	minScore float64
}

// NewRemote creates a gate backed by the inference service
func NewRemote(service Service, minScore float64) *Remote {
	return &Remote{service: service, minScore: minScore}
}

// Check implements access.LivenessGate
func (r *Remote) Check(ctx context.Context, face image.Image) (access.LivenessVerdict, error) {
	live, confidence, err := r.service.CheckLiveness(ctx, face, models.DetectionFromRect(face.Bounds(), 1))
	if err != nil {
		return access.LivenessVerdict{}, err
	}

	score := float64(confidence)
	return access.LivenessVerdict{Real: live && score >= r.minScore, Score: score}, nil
}

// Fallback consults the primary gate and falls back to the secondary when it errors
type Fallback struct {
	primary   access.LivenessGate
	secondary access.LivenessGate
	logger    logrus.FieldLogger
}

// NewFallback chains two gates
func NewFallback(primary, secondary access.LivenessGate, logger logrus.FieldLogger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// Check implements access.LivenessGate
func (f *Fallback) Check(ctx context.Context, face image.Image) (access.LivenessVerdict, error) {
	verdict, err := f.primary.Check(ctx, face)
	if err == nil {
		return verdict, nil
	}

	f.logger.Debugf("Primary liveness check failed, using fallback: %v", err)

	verdict, err2 := f.secondary.Check(ctx, face)
	if err2 != nil {
		return access.LivenessVerdict{}, fmt.Errorf("liveness unavailable: %w (fallback: %v)", err, err2)
	}
	return verdict, nil
}

// Disabled passes every face. It exists for bench setups without a usable camera angle.
type Disabled struct{}

// Check implements access.LivenessGate
func (Disabled) Check(ctx context.Context, face image.Image) (access.LivenessVerdict, error) {
	return access.LivenessVerdict{Real: true, Score: 1}, nil
}
