package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vladimirvivien/go4vl/v4l2"
)

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "frame_002.jpg"), 64, 48)
	writeJPEG(t, filepath.Join(dir, "frame_001.jpg"), 32, 24)
	writeJPEG(t, filepath.Join(dir, "frame_003.JPEG"), 16, 12)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := NewReplay(dir, 0)
	if err != nil {
		t.Fatalf("NewReplay failed: %v", err)
	}
	defer src.Close()

	if src.Len() != 3 {
		t.Fatalf("Expected 3 frames, got %d", src.Len())
	}

	ctx := context.Background()
	wantWidths := []int{32, 64, 16}
	for i, want := range wantWidths {
		frame, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next() #%d failed: %v", i, err)
		}
		if frame.Width != want {
			t.Errorf("Frame #%d: expected width %d, got %d", i, want, frame.Width)
		}
		if frame.Sequence != uint32(i+1) {
			t.Errorf("Frame #%d: expected sequence %d, got %d", i, i+1, frame.Sequence)
		}

		img, err := frame.ToImage()
		if err != nil {
			t.Fatalf("Frame #%d did not decode: %v", i, err)
		}
		if img.Bounds().Dx() != want {
			t.Errorf("Frame #%d: decoded width %d, want %d", i, img.Bounds().Dx(), want)
		}
	}

	if _, err := src.Next(ctx); !errors.Is(err, ErrSourceExhausted) {
		t.Errorf("Expected ErrSourceExhausted after the last frame, got %v", err)
	}
}

func TestReplayCorruptFrame(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "a.jpg"), 8, 8)
	if err := os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("not a jpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	writeJPEG(t, filepath.Join(dir, "c.jpg"), 16, 16)

	src, err := NewReplay(dir, 0)
	if err != nil {
		t.Fatalf("NewReplay failed: %v", err)
	}

	ctx := context.Background()
	var decoded, failed int
	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, ErrSourceExhausted) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if _, err := frame.ToImage(); err != nil {
			failed++
		} else {
			decoded++
		}
	}

	if decoded != 2 || failed != 1 {
		t.Errorf("Expected 2 decoded frames and 1 undecodable, got %d and %d", decoded, failed)
	}
}

func TestReplayEmptyDir(t *testing.T) {
	if _, err := NewReplay(t.TempDir(), 0); err == nil {
		t.Error("Expected an error for a directory without frames")
	}
}

func TestReplayCancelled(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "a.jpg"), 8, 8)

	src, err := NewReplay(dir, 0)
	if err != nil {
		t.Fatalf("NewReplay failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFrameToImage(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		check func(t *testing.T, img image.Image)
	}{
		{
			name: "grey",
			frame: Frame{
				Data: []byte{0, 64, 128, 255}, Width: 2, Height: 2, Format: v4l2.PixelFmtGrey,
			},
			check: func(t *testing.T, img image.Image) {
				if g := img.(*image.Gray).GrayAt(1, 1).Y; g != 255 {
					t.Errorf("Expected 255 at (1,1), got %d", g)
				}
			},
		},
		{
			name: "rgb24",
			frame: Frame{
				Data: []byte{255, 0, 0, 0, 255, 0}, Width: 2, Height: 1, Format: v4l2.PixelFmtRGB24,
			},
			check: func(t *testing.T, img image.Image) {
				if c := img.(*image.RGBA).RGBAAt(1, 0); c.G != 255 || c.R != 0 {
					t.Errorf("Expected green at (1,0), got %v", c)
				}
			},
		},
		{
			name: "yuyv white and black",
			frame: Frame{
				Data: []byte{235, 128, 16, 128}, Width: 2, Height: 1, Format: v4l2.PixelFmtYUYV,
			},
			check: func(t *testing.T, img image.Image) {
				rgba := img.(*image.RGBA)
				if c := rgba.RGBAAt(0, 0); c.R < 250 || c.G < 250 || c.B < 250 {
					t.Errorf("Expected white at (0,0), got %v", c)
				}
				if c := rgba.RGBAAt(1, 0); c.R > 5 || c.G > 5 || c.B > 5 {
					t.Errorf("Expected black at (1,0), got %v", c)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := tt.frame.ToImage()
			if err != nil {
				t.Fatalf("ToImage failed: %v", err)
			}
			tt.check(t, img)
		})
	}
}

func TestFrameUnsupportedFormat(t *testing.T) {
	f := Frame{Data: []byte{1, 2}, Width: 1, Height: 1, Format: v4l2.FourCCType(1)}
	if _, err := f.ToImage(); err == nil {
		t.Error("Expected an error for an unsupported format")
	}
}

func TestHasFormat(t *testing.T) {
	formats := []v4l2.FormatDescription{
		{PixelFormat: v4l2.PixelFmtYUYV, Description: "YUYV 4:2:2"},
		{PixelFormat: v4l2.PixelFmtMJPEG, Description: "Motion-JPEG"},
	}

	if !hasFormat(formats, pixelFormat("MJPEG")) {
		t.Error("Expected MJPEG to be supported")
	}
	if hasFormat(formats, pixelFormat("GREY")) {
		t.Error("Did not expect GREY to be supported")
	}
	if got := strings.Join(formatNames(formats), ", "); got != "YUYV 4:2:2, Motion-JPEG" {
		t.Errorf("Unexpected format names %q", got)
	}
}
