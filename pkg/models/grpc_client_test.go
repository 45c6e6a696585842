package models

import (
	"context"
	"encoding/base64"
	"image"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// startFakeService serves every method of the inference service through handler
func startFakeService(t *testing.T, handler func(method string, req *structpb.Struct) map[string]interface{}) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ interface{}, stream grpc.ServerStream) error {
		fullMethod, _ := grpc.MethodFromServerStream(stream)
		req := &structpb.Struct{}
		if err := stream.RecvMsg(req); err != nil {
			return err
		}

		method := fullMethod[strings.LastIndex(fullMethod, "/")+1:]
		resp, err := structpb.NewStruct(handler(method, req))
		if err != nil {
			return err
		}
		return stream.SendMsg(resp)
	}))

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func healthy(method string) map[string]interface{} {
	if method == methodHealth {
		return map[string]interface{}{"healthy": true, "version": "1.2.0", "device": "cpu"}
	}
	return nil
}

func TestNewInferenceClientHealth(t *testing.T) {
	addr := startFakeService(t, func(method string, _ *structpb.Struct) map[string]interface{} {
		return healthy(method)
	})

	client, err := NewInferenceClient(addr, time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if client.Version != "1.2.0" || client.Device != "cpu" {
		t.Errorf("Expected version 1.2.0 on cpu, got %s on %s", client.Version, client.Device)
	}
}

func TestNewInferenceClientUnhealthy(t *testing.T) {
	addr := startFakeService(t, func(string, *structpb.Struct) map[string]interface{} {
		return map[string]interface{}{"healthy": false}
	})

	if _, err := NewInferenceClient(addr, time.Second); err == nil {
		t.Fatal("Expected an error for an unhealthy service")
	}
}

func TestDetectFaces(t *testing.T) {
	var gotThreshold float64
	var gotWidth float64
	var gotData string

	addr := startFakeService(t, func(method string, req *structpb.Struct) map[string]interface{} {
		if method != methodDetectFaces {
			return healthy(method)
		}
		gotThreshold = numberField(req, "confidence_threshold")
		img := req.GetFields()["image"].GetStructValue()
		gotWidth = numberField(img, "width")
		gotData = stringField(img, "data")

		return map[string]interface{}{
			"detections": []interface{}{
				map[string]interface{}{
					"x1": 10.0, "y1": 20.0, "x2": 70.0, "y2": 100.0, "confidence": 0.93,
					"landmarks": []interface{}{
						map[string]interface{}{"x": 30.0, "y": 50.0},
						map[string]interface{}{"x": 50.0, "y": 50.0},
					},
				},
				map[string]interface{}{"x1": 200.0, "y1": 40.0, "x2": 260.0, "y2": 120.0, "confidence": 0.71},
			},
		}
	})

	client, err := NewInferenceClient(addr, time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	frame := image.NewRGBA(image.Rect(0, 0, 320, 240))
	detections, err := client.DetectFaces(context.Background(), frame, 0.5, 0.4)
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}

	if gotThreshold != 0.5 {
		t.Errorf("Expected confidence threshold 0.5 on the wire, got %v", gotThreshold)
	}
	if gotWidth != 320 {
		t.Errorf("Expected image width 320 on the wire, got %v", gotWidth)
	}
	if raw, err := base64.StdEncoding.DecodeString(gotData); err != nil || len(raw) < 2 || raw[0] != 0xFF || raw[1] != 0xD8 {
		t.Errorf("Expected base64 JPEG image data, decode error %v", err)
	}

	if len(detections) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(detections))
	}
	if r := detections[0].Rect(); r != image.Rect(10, 20, 70, 100) {
		t.Errorf("Unexpected first rectangle %v", r)
	}
	if len(detections[0].Landmarks) != 2 || detections[0].Landmarks[1] != [2]float32{50, 50} {
		t.Errorf("Unexpected landmarks %v", detections[0].Landmarks)
	}
	if len(detections[1].Landmarks) != 0 {
		t.Errorf("Expected no landmarks on the second detection, got %v", detections[1].Landmarks)
	}
}

func TestExtractEmbeddingAndLiveness(t *testing.T) {
	addr := startFakeService(t, func(method string, req *structpb.Struct) map[string]interface{} {
		switch method {
		case methodExtractEmbedding:
			face := req.GetFields()["face"].GetStructValue()
			if numberField(face, "x2") != 60 {
				return map[string]interface{}{}
			}
			return map[string]interface{}{"embedding": []interface{}{0.25, -0.5, 1.0}}
		case methodCheckLiveness:
			return map[string]interface{}{"is_live": true, "confidence": 0.8}
		default:
			return healthy(method)
		}
	})

	client, err := NewInferenceClient(addr, time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	face := image.NewRGBA(image.Rect(0, 0, 60, 80))
	det := DetectionFromRect(face.Bounds(), 1)

	emb, err := client.ExtractEmbedding(context.Background(), face, det)
	if err != nil {
		t.Fatalf("ExtractEmbedding failed: %v", err)
	}
	if len(emb) != 3 || emb[0] != 0.25 || emb[1] != -0.5 || emb[2] != 1 {
		t.Errorf("Unexpected embedding %v", emb)
	}

	live, score, err := client.CheckLiveness(context.Background(), face, det)
	if err != nil {
		t.Fatalf("CheckLiveness failed: %v", err)
	}
	if !live || score != 0.8 {
		t.Errorf("Expected live face with 0.8, got %v %v", live, score)
	}
}

func TestExtractEmbeddingEmpty(t *testing.T) {
	addr := startFakeService(t, func(method string, _ *structpb.Struct) map[string]interface{} {
		if method == methodExtractEmbedding {
			return map[string]interface{}{}
		}
		return healthy(method)
	})

	client, err := NewInferenceClient(addr, time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	face := image.NewRGBA(image.Rect(0, 0, 60, 80))
	if _, err := client.ExtractEmbedding(context.Background(), face, DetectionFromRect(face.Bounds(), 1)); err == nil {
		t.Error("Expected an error for an empty embedding")
	}
}
