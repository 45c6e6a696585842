package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/MrCodeEU/FaceGate/internal/actuator"
	"github.com/MrCodeEU/FaceGate/internal/config"
	"github.com/MrCodeEU/FaceGate/internal/embedding"
)

func TestIsValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"alice", true},
		{"Bob_Smith-2.0", true},
		{"", false},
		{"unknown", false},
		{"Unknown", false},
		{"alice smith", false},
		{"robert'); DROP", false},
	}

	for _, tt := range tests {
		if got := isValidName(tt.name); got != tt.want {
			t.Errorf("isValidName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestApplyRunFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags runFlags
		check func(t *testing.T, c *config.Config)
	}{
		{
			name:  "simulate wins over config",
			flags: runFlags{simulate: true},
			check: func(t *testing.T, c *config.Config) {
				if c.Actuator.Enabled {
					t.Error("Expected --simulate to disable the actuator")
				}
			},
		},
		{
			name:  "explicit port",
			flags: runFlags{port: "/dev/ttyACM0"},
			check: func(t *testing.T, c *config.Config) {
				if c.Actuator.Port != "/dev/ttyACM0" || !c.Actuator.Enabled {
					t.Errorf("Unexpected actuator config %+v", c.Actuator)
				}
			},
		},
		{
			name:  "frames replace the camera",
			flags: runFlags{frames: "/tmp/frames"},
			check: func(t *testing.T, c *config.Config) {
				if c.Camera.FramesDir != "/tmp/frames" {
					t.Errorf("Expected frames dir, got %q", c.Camera.FramesDir)
				}
			},
		},
		{
			name:  "camera clears frames",
			flags: runFlags{camera: "/dev/video2"},
			check: func(t *testing.T, c *config.Config) {
				if c.Camera.Device != "/dev/video2" || c.Camera.FramesDir != "" {
					t.Errorf("Unexpected camera config %+v", c.Camera)
				}
			},
		},
		{
			name:  "relock mode",
			flags: runFlags{relock: "timer"},
			check: func(t *testing.T, c *config.Config) {
				if c.Door.RelockMode != config.RelockOnTimer {
					t.Errorf("Expected timer relock, got %q", c.Door.RelockMode)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg = config.DefaultConfig()
			cfg.Camera.FramesDir = "/old/frames"
			applyRunFlags(tt.flags)
			tt.check(t, cfg)
		})
	}
}

func TestPrintPeople(t *testing.T) {
	var buf bytes.Buffer
	seen := time.Date(2024, 5, 1, 8, 30, 0, 0, time.Local)

	err := printPeople(&buf, []embedding.Person{
		{Name: "alice", Embeddings: make([][]float32, 3), LastSeenAt: &seen, AccessCount: 7, Active: true},
		{Name: "bob", Embeddings: make([][]float32, 1)},
	})
	if err != nil {
		t.Fatalf("printPeople failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"alice", "2024-05-01 08:30", "never", "inactive", "Total: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	_ = printPeople(&buf, nil)
	if !strings.Contains(buf.String(), "No enrolled people") {
		t.Errorf("Unexpected empty output %q", buf.String())
	}
}

func TestPrintPorts(t *testing.T) {
	ports := []actuator.PortInfo{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", Product: "USB2.0-Serial CH340", IsUSB: true, VID: "1a86", PID: "7523"},
	}

	var buf bytes.Buffer
	printPorts(&buf, ports, actuator.DefaultPatterns)

	lines := strings.Split(buf.String(), "\n")
	var marked string
	for _, l := range lines {
		if strings.HasPrefix(l, "*") {
			marked = l
		}
	}
	if !strings.Contains(marked, "/dev/ttyUSB0") || !strings.Contains(marked, "1a86:7523") {
		t.Errorf("Expected the CH340 port to be marked, got:\n%s", buf.String())
	}

	buf.Reset()
	printPorts(&buf, ports[:1], actuator.DefaultPatterns)
	if !strings.Contains(buf.String(), "simulation mode") {
		t.Errorf("Expected a simulation note, got:\n%s", buf.String())
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	err := printHistory(&buf, []embedding.EventRecord{
		{OccurredAt: time.Now(), Outcome: "recognized", Label: "alice", Confidence: 91.5,
			Action: "unlock", Actuation: "succeeded", DoorState: "unlocked"},
		{OccurredAt: time.Now(), Outcome: "fake", Action: "none", Actuation: "not_attempted", DoorState: "locked"},
	})
	if err != nil {
		t.Fatalf("printHistory failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "91.50%") || !strings.Contains(out, "fake") {
		t.Errorf("Unexpected history output:\n%s", out)
	}
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	if !confirm(strings.NewReader("Yes\n"), &out, "? ") {
		t.Error("Expected yes to confirm")
	}
	if confirm(strings.NewReader("\n"), &out, "? ") {
		t.Error("Expected an empty answer to decline")
	}
	if confirm(strings.NewReader(""), &out, "? ") {
		t.Error("Expected EOF to decline")
	}
}
