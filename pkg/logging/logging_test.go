package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/FaceGate/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		verbose bool
		want    logrus.Level
		wantErr bool
	}{
		{name: "defaults", cfg: config.LoggingConfig{}, want: logrus.InfoLevel},
		{name: "warn", cfg: config.LoggingConfig{Level: "warn"}, want: logrus.WarnLevel},
		{name: "verbose overrides", cfg: config.LoggingConfig{Level: "error"}, verbose: true, want: logrus.DebugLevel},
		{name: "json", cfg: config.LoggingConfig{Format: "json"}, want: logrus.InfoLevel},
		{name: "bad level", cfg: config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: config.LoggingConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg, tt.verbose)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if logger.GetLevel() != tt.want {
				t.Errorf("Expected level %v, got %v", tt.want, logger.GetLevel())
			}
		})
	}
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "facegate.log")

	logger, err := New(config.LoggingConfig{Format: "json", File: path}, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.WithField("door", "front").Info("door locked")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"door":"front"`) {
		t.Errorf("Expected a JSON entry with the door field, got %s", data)
	}
}
