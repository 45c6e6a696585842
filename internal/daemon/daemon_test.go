package daemon

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/MrCodeEU/FaceGate/internal/config"
	"github.com/MrCodeEU/FaceGate/internal/embedding"
)

// startInference serves a canned inference backend: one face per frame, always
// live, always the same embedding
func startInference(t *testing.T) string {
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

		var body map[string]interface{}
		switch fullMethod[strings.LastIndex(fullMethod, "/")+1:] {
		case "Health":
			body = map[string]interface{}{"healthy": true, "version": "test", "device": "cpu"}
		case "DetectFaces":
			body = map[string]interface{}{"detections": []interface{}{
				map[string]interface{}{"x1": 8.0, "y1": 4.0, "x2": 56.0, "y2": 60.0, "confidence": 0.99},
			}}
		case "ExtractEmbedding":
			body = map[string]interface{}{"embedding": []interface{}{1.0, 0.0, 0.0, 0.0}}
		case "CheckLiveness":
			body = map[string]interface{}{"is_live": true, "confidence": 0.95}
		}

		resp, err := structpb.NewStruct(body)
		if err != nil {
			return err
		}
		return stream.SendMsg(resp)
	}))

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func writeFrames(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 64, 64))
		for y := 0; y < 64; y++ {
			for x := 0; x < 64; x++ {
				img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 100, A: 255})
			}
		}

		f, err := os.Create(filepath.Join(dir, "frame_"+string(rune('a'+i))+".jpg"))
		if err != nil {
			t.Fatal(err)
		}
		if err := jpeg.Encode(f, img, nil); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(t *testing.T, frames int) *config.Config {
	dir := t.TempDir()
	framesDir := filepath.Join(dir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFrames(t, framesDir, frames)

	cfg := config.DefaultConfig()
	cfg.Inference.Address = startInference(t)
	cfg.Inference.Timeout = 2 * time.Second
	cfg.Camera.FramesDir = framesDir
	cfg.Camera.FPS = 0
	cfg.Liveness.Mode = "remote"
	cfg.Actuator.Enabled = false
	cfg.Storage.DataDir = dir
	cfg.Storage.DatabasePath = filepath.Join(dir, "facegate.db")
	cfg.Storage.RecognitionLog = filepath.Join(dir, "logs", "recognition_log.txt")
	return cfg
}

func enroll(t *testing.T, cfg *config.Config, name string, vec []float32) {
	t.Helper()
	store, err := embedding.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()
	if _, err := store.CreatePerson(name, [][]float32{vec}); err != nil {
		t.Fatalf("CreatePerson failed: %v", err)
	}
}

func TestBuildAndRunReplay(t *testing.T) {
	cfg := testConfig(t, 1)
	enroll(t, cfg, "alice", []float32{1, 0, 0, 0})

	d, err := Build(context.Background(), cfg, quietLogger(), Options{SnapshotDir: filepath.Join(cfg.Storage.DataDir, "snapshots")})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !d.Controller.Simulated() {
		t.Error("Expected simulation mode with the actuator disabled")
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if d.Controller.State() != access.Locked {
		t.Errorf("Expected the simulated door to stay locked, got %s", d.Controller.State())
	}

	events, err := d.Store.RecentEvents("alice", 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Actuation != "simulated" || events[0].DoorState != "locked" {
		t.Errorf("Expected one simulated unlock leaving the door locked, got %+v", events)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(cfg.Storage.RecognitionLog)
	if err != nil {
		t.Fatalf("Failed to read recognition log: %v", err)
	}
	if !strings.Contains(string(data), "Recognized: alice (100.00%)") {
		t.Errorf("Unexpected recognition log %q", data)
	}

	snapshots, _ := os.ReadDir(filepath.Join(cfg.Storage.DataDir, "snapshots"))
	if len(snapshots) != 1 {
		t.Errorf("Expected one snapshot, got %d", len(snapshots))
	}
}

func TestBuildUnknownFace(t *testing.T) {
	cfg := testConfig(t, 2)
	enroll(t, cfg, "bob", []float32{0, 1, 0, 0})

	d, err := Build(context.Background(), cfg, quietLogger(), Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer d.Close()

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if d.Controller.State() != access.Locked {
		t.Errorf("Unknown faces must not unlock, got %s", d.Controller.State())
	}
	stats := d.Driver.Stats()
	if stats.Outcomes[access.OutcomeRealUnknown] != 2 {
		t.Errorf("Expected 2 real_unknown outcomes, got %v", stats.Outcomes)
	}
}

func TestBuildFailsWithoutInference(t *testing.T) {
	cfg := testConfig(t, 1)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Inference.Address = lis.Addr().String()
	lis.Close()

	if _, err := Build(context.Background(), cfg, quietLogger(), Options{}); err == nil {
		t.Fatal("Expected Build to fail when the inference service is unreachable")
	}
}

func TestBuildMissingCascade(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Detection.Backend = "haar"
	cfg.Detection.CascadePath = filepath.Join(t.TempDir(), "missing.xml")

	if _, err := Build(context.Background(), cfg, quietLogger(), Options{}); err == nil {
		t.Fatal("Expected Build to fail for a missing cascade")
	}
}

func TestOpenActuatorDisabled(t *testing.T) {
	d := &Daemon{cfg: config.DefaultConfig(), logger: quietLogger()}
	d.cfg.Actuator.Enabled = false

	if link := d.openActuator(); link != nil {
		t.Errorf("Expected no link, got %v", link)
	}
}

func TestOpenActuatorBadPort(t *testing.T) {
	d := &Daemon{cfg: config.DefaultConfig(), logger: quietLogger()}
	d.cfg.Actuator.Port = filepath.Join(t.TempDir(), "ttyNOPE")

	if link := d.openActuator(); link != nil {
		t.Errorf("Expected an unopenable port to downgrade to simulation, got %v", link)
	}
}

func TestEnroller(t *testing.T) {
	cfg := testConfig(t, 4)

	e, err := BuildEnroller(cfg, quietLogger())
	if err != nil {
		t.Fatalf("BuildEnroller failed: %v", err)
	}
	defer e.Close()

	var progress []int
	samples, err := e.Capture(context.Background(), 3, func(done int) { progress = append(progress, done) })
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(samples) != 3 || len(progress) != 3 || progress[2] != 3 {
		t.Fatalf("Expected 3 samples with progress, got %d and %v", len(samples), progress)
	}

	if _, err := e.Save("carol", samples[:2]); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	p, err := e.Save("carol", samples[2:])
	if err != nil {
		t.Fatalf("Second Save failed: %v", err)
	}
	if len(p.Embeddings) != 3 {
		t.Errorf("Expected re-enrollment to add samples, got %d", len(p.Embeddings))
	}

	if _, err := e.Capture(context.Background(), 5, nil); err == nil {
		t.Error("Expected an error when the source runs out of frames")
	}
}

func TestWatchQuit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	WatchQuit(ctx, strings.NewReader("hello\n  Q \n"), cancel, quietLogger())
	if ctx.Err() == nil {
		t.Error("Expected q to cancel the context")
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	WatchQuit(ctx2, strings.NewReader("quit\n"), cancel2, quietLogger())
	if ctx2.Err() != nil {
		t.Error("Only a lone q should stop the loop")
	}
}

func TestLargestFace(t *testing.T) {
	if _, ok := largestFace(nil); ok {
		t.Error("Expected no face for an empty list")
	}
	r, ok := largestFace([]image.Rectangle{image.Rect(0, 0, 10, 10), image.Rect(0, 0, 30, 20), image.Rect(5, 5, 15, 15)})
	if !ok || r != image.Rect(0, 0, 30, 20) {
		t.Errorf("Expected the largest box, got %v", r)
	}
}

func TestBuildDryRun(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Actuator.Enabled = true
	cfg.Actuator.Port = filepath.Join(t.TempDir(), "ttyNOPE")
	enroll(t, cfg, "alice", []float32{1, 0, 0, 0})

	d, err := Build(context.Background(), cfg, quietLogger(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer d.Close()

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := d.Driver.Stats().Outcomes[access.OutcomeRecognized]; got != 1 {
		t.Errorf("Expected the face to be recognized, got %d", got)
	}
	events, _ := d.Store.RecentEvents("", 10)
	if len(events) != 0 {
		t.Errorf("A dry run must not record events, got %d", len(events))
	}
	if _, err := os.Stat(cfg.Storage.RecognitionLog); !os.IsNotExist(err) {
		t.Errorf("A dry run must not create the recognition log, stat returned %v", err)
	}
}
