// Package models provides face detection, embedding and liveness via the gRPC inference service
package models

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/MrCodeEU/FaceGate/pkg/imaging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service of the inference backend
const ServiceName = "facegate.inference.v1.FaceInference"

const (
	methodHealth           = "Health"
	methodDetectFaces      = "DetectFaces"
	methodExtractEmbedding = "ExtractEmbedding"
	methodCheckLiveness    = "CheckLiveness"

	jpegQuality = 90
)

// InferenceClient manages the connection to the inference service.
// Messages are exchanged as google.protobuf.Struct documents.
type InferenceClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration

	Version string
	Device  string
}

// HealthStatus is the service's answer to a health probe
type HealthStatus struct {
	Healthy bool
	Version string
	Device  string
}

// NewInferenceClient connects to the service and verifies it is healthy
func NewInferenceClient(address string, timeout time.Duration) (*InferenceClient, error) {
	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for inference service at %s: %w", address, err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &InferenceClient{conn: conn, timeout: timeout}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	if !health.Healthy {
		_ = conn.Close()
		return nil, fmt.Errorf("inference service is not healthy")
	}

	client.Version = health.Version
	client.Device = health.Device

	return client, nil
}

// Close closes the client connection
func (c *InferenceClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Health probes the service
func (c *InferenceClient) Health(ctx context.Context) (HealthStatus, error) {
	resp, err := c.call(ctx, methodHealth, map[string]interface{}{})
	if err != nil {
		return HealthStatus{}, err
	}

	return HealthStatus{
		Healthy: boolField(resp, "healthy"),
		Version: stringField(resp, "version"),
		Device:  stringField(resp, "device"),
	}, nil
}

// DetectFaces runs face detection on a full frame
func (c *InferenceClient) DetectFaces(ctx context.Context, img image.Image, confidence, nms float32) ([]Detection, error) {
	payload, err := imagePayload(img)
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, methodDetectFaces, map[string]interface{}{
		"image":                payload,
		"confidence_threshold": float64(confidence),
		"nms_threshold":        float64(nms),
	})
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	return detectionsFromStruct(resp), nil
}

// ExtractEmbedding extracts the face embedding of the detected face in img
func (c *InferenceClient) ExtractEmbedding(ctx context.Context, img image.Image, face Detection) ([]float32, error) {
	payload, err := imagePayload(img)
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, methodExtractEmbedding, map[string]interface{}{
		"image": payload,
		"face":  detectionToMap(face),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding extraction failed: %w", err)
	}

	values := floatsFromList(resp.GetFields()["embedding"].GetListValue())
	if len(values) == 0 {
		return nil, fmt.Errorf("embedding extraction returned no values")
	}

	return values, nil
}

// CheckLiveness asks the service whether the detected face is live
func (c *InferenceClient) CheckLiveness(ctx context.Context, img image.Image, face Detection) (bool, float32, error) {
	payload, err := imagePayload(img)
	if err != nil {
		return false, 0, err
	}

	resp, err := c.call(ctx, methodCheckLiveness, map[string]interface{}{
		"image": payload,
		"face":  detectionToMap(face),
	})
	if err != nil {
		return false, 0, fmt.Errorf("liveness check failed: %w", err)
	}

	return boolField(resp, "is_live"), float32(numberField(resp, "confidence")), nil
}

func (c *InferenceClient) call(ctx context.Context, method string, req map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}

	return out, nil
}

// Detection represents a detected face
type Detection struct {
	X1         float32
	Y1         float32
	X2         float32
	Y2         float32
	Confidence float32
	Landmarks  [][2]float32 // 5-point facial landmarks
}

// Rect returns the detection as an integer rectangle
func (d Detection) Rect() image.Rectangle {
	return image.Rect(int(d.X1), int(d.Y1), int(d.X2), int(d.Y2))
}

// DetectionFromRect builds a detection covering r
func DetectionFromRect(r image.Rectangle, confidence float32) Detection {
	return Detection{
		X1:         float32(r.Min.X),
		Y1:         float32(r.Min.Y),
		X2:         float32(r.Max.X),
		Y2:         float32(r.Max.Y),
		Confidence: confidence,
	}
}

func imagePayload(img image.Image) (map[string]interface{}, error) {
	data, err := imaging.EncodeJPEG(img, jpegQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	bounds := img.Bounds()
	// structpb carries bytes as base64 strings
	return map[string]interface{}{
		"data":   data,
		"width":  bounds.Dx(),
		"height": bounds.Dy(),
		"format": "jpeg",
	}, nil
}

func detectionToMap(d Detection) map[string]interface{} {
	landmarks := make([]interface{}, len(d.Landmarks))
	for i, lm := range d.Landmarks {
		landmarks[i] = map[string]interface{}{"x": float64(lm[0]), "y": float64(lm[1])}
	}

	return map[string]interface{}{
		"x1":         float64(d.X1),
		"y1":         float64(d.Y1),
		"x2":         float64(d.X2),
		"y2":         float64(d.Y2),
		"confidence": float64(d.Confidence),
		"landmarks":  landmarks,
	}
}

func detectionsFromStruct(s *structpb.Struct) []Detection {
	list := s.GetFields()["detections"].GetListValue()
	detections := make([]Detection, 0, len(list.GetValues()))

	for _, v := range list.GetValues() {
		d := v.GetStructValue()
		if d == nil {
			continue
		}

		var landmarks [][2]float32
		for _, lm := range d.GetFields()["landmarks"].GetListValue().GetValues() {
			p := lm.GetStructValue()
			landmarks = append(landmarks, [2]float32{
				float32(numberField(p, "x")),
				float32(numberField(p, "y")),
			})
		}

		detections = append(detections, Detection{
			X1:         float32(numberField(d, "x1")),
			Y1:         float32(numberField(d, "y1")),
			X2:         float32(numberField(d, "x2")),
			Y2:         float32(numberField(d, "y2")),
			Confidence: float32(numberField(d, "confidence")),
			Landmarks:  landmarks,
		})
	}

	return detections
}

func floatsFromList(l *structpb.ListValue) []float32 {
	values := make([]float32, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		values = append(values, float32(v.GetNumberValue()))
	}
	return values
}

func numberField(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}
