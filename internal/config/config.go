// Package config provides configuration management for FaceGate
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Relock modes
const (
	RelockOnFace  = "face"  // re-lock is only checked when a recognized face is evaluated
	RelockOnTimer = "timer" // re-lock is checked on every loop iteration
)

// Config holds all configuration for the application
type Config struct {
	// Inference service settings
	Inference InferenceConfig `mapstructure:"inference" yaml:"inference"`

	// Camera settings
	Camera CameraConfig `mapstructure:"camera" yaml:"camera"`

	// Detection settings
	Detection DetectionConfig `mapstructure:"detection" yaml:"detection"`

	// Recognition settings
	Recognition RecognitionConfig `mapstructure:"recognition" yaml:"recognition"`

	// Liveness settings
	Liveness LivenessConfig `mapstructure:"liveness" yaml:"liveness"`

	// Door policy settings
	Door DoorConfig `mapstructure:"door" yaml:"door"`

	// Actuator (serial lock) settings
	Actuator ActuatorConfig `mapstructure:"actuator" yaml:"actuator"`

	// Storage settings
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Event publishing settings
	Events EventsConfig `mapstructure:"events" yaml:"events"`

	// Logging settings
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// InferenceConfig holds inference service configuration
type InferenceConfig struct {
	Address string        `mapstructure:"address" yaml:"address"`                  // gRPC service address (e.g., localhost:50051)
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"` // Per-request timeout
}

// CameraConfig holds camera-related configuration
type CameraConfig struct {
	Device      string        `mapstructure:"device" yaml:"device"`               // V4L2 device path (e.g., /dev/video0)
	FramesDir   string        `mapstructure:"frames_dir" yaml:"frames_dir"`       // Replay JPEG frames from a directory instead
	Width       int           `mapstructure:"width" yaml:"width" validate:"gt=0"` // Capture width
	Height      int           `mapstructure:"height" yaml:"height" validate:"gt=0"`
	FPS         int           `mapstructure:"fps" yaml:"fps" validate:"gte=0"`
	PixelFormat string        `mapstructure:"pixel_format" yaml:"pixel_format"` // MJPEG, YUYV, RGB24, GREY
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"` // Max wait for one frame
}

// DetectionConfig holds face detection configuration
type DetectionConfig struct {
	Backend       string  `mapstructure:"backend" yaml:"backend" validate:"oneof=grpc haar"` // grpc or haar
	CascadePath   string  `mapstructure:"cascade_path" yaml:"cascade_path"`                  // Haar cascade XML
	ScaleFactor   float64 `mapstructure:"scale_factor" yaml:"scale_factor" validate:"gt=1"`  // Haar scale factor
	MinNeighbors  int     `mapstructure:"min_neighbors" yaml:"min_neighbors" validate:"gte=0"`
	MinFaceSize   int     `mapstructure:"min_face_size" yaml:"min_face_size" validate:"gte=0"`
	Confidence    float32 `mapstructure:"confidence" yaml:"confidence" validate:"gte=0,lte=1"` // Detection confidence threshold
	NMSThreshold  float32 `mapstructure:"nms_threshold" yaml:"nms_threshold" validate:"gte=0,lte=1"`
	MaxDetections int     `mapstructure:"max_detections" yaml:"max_detections" validate:"gte=0"` // 0 = unlimited
	Margin        float64 `mapstructure:"margin" yaml:"margin" validate:"gte=0,lte=1"`           // Grow each box by this fraction before cropping
}

// RecognitionConfig holds face recognition configuration
type RecognitionConfig struct {
	Backend           string  `mapstructure:"backend" yaml:"backend" validate:"oneof=grpc dlib"`
	ModelDir          string  `mapstructure:"model_dir" yaml:"model_dir"`                          // dlib model directory
	Threshold         float64 `mapstructure:"threshold" yaml:"threshold" validate:"gte=0,lte=100"` // Confidence percent a match must exceed
	Tolerance         float32 `mapstructure:"tolerance" yaml:"tolerance" validate:"gte=0"`         // dlib descriptor distance
	EnrollmentSamples int     `mapstructure:"enrollment_samples" yaml:"enrollment_samples" validate:"gt=0"`
}

// LivenessConfig holds liveness detection configuration
type LivenessConfig struct {
	Mode              string  `mapstructure:"mode" yaml:"mode" validate:"oneof=heuristic remote fallback off"`
	MinScore          float64 `mapstructure:"min_score" yaml:"min_score" validate:"gte=0,lte=1"` // Combined score threshold
	VarianceThreshold float64 `mapstructure:"variance_threshold" yaml:"variance_threshold" validate:"gte=0"`
	MinBrightness     float64 `mapstructure:"min_brightness" yaml:"min_brightness" validate:"gte=0,lte=255"`
	MaxBrightness     float64 `mapstructure:"max_brightness" yaml:"max_brightness" validate:"gte=0,lte=255"`
}

// DoorConfig holds the access policy configuration
type DoorConfig struct {
	Cooldown            time.Duration `mapstructure:"cooldown" yaml:"cooldown" validate:"gte=0"`
	RelockMode          string        `mapstructure:"relock_mode" yaml:"relock_mode" validate:"oneof=face timer"`
	SimulateTransitions bool          `mapstructure:"simulate_transitions" yaml:"simulate_transitions"` // Opt-in: follow unlock/lock in simulation mode
	AspectWidth         int           `mapstructure:"aspect_width" yaml:"aspect_width" validate:"gt=0"`
	AspectHeight        int           `mapstructure:"aspect_height" yaml:"aspect_height" validate:"gt=0"`
}

// ActuatorConfig holds the serial lock configuration
type ActuatorConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	Port           string        `mapstructure:"port" yaml:"port"` // Empty = discover
	BaudRate       int           `mapstructure:"baud_rate" yaml:"baud_rate" validate:"gt=0"`
	MatchPatterns  []string      `mapstructure:"match_patterns" yaml:"match_patterns"`
	UnlockAngle    int           `mapstructure:"unlock_angle" yaml:"unlock_angle" validate:"gte=0,lte=180"`
	LockAngle      int           `mapstructure:"lock_angle" yaml:"lock_angle" validate:"gte=0,lte=180"`
	SettleDuration time.Duration `mapstructure:"settle_duration" yaml:"settle_duration" validate:"gte=0"`
	ResetDelay     time.Duration `mapstructure:"reset_delay" yaml:"reset_delay" validate:"gte=0"`
}

// StorageConfig holds data storage configuration
type StorageConfig struct {
	DataDir        string `mapstructure:"data_dir" yaml:"data_dir"`               // Directory for face data
	DatabasePath   string `mapstructure:"database_path" yaml:"database_path"`     // SQLite database path
	RecognitionLog string `mapstructure:"recognition_log" yaml:"recognition_log"` // Append-only text log
	PostgresURL    string `mapstructure:"postgres_url" yaml:"postgres_url"`       // Optional central audit database
}

// EventsConfig holds MQTT event publishing configuration
type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"` // host:port
	Topic    string `mapstructure:"topic" yaml:"topic"`
	QoS      byte   `mapstructure:"qos" yaml:"qos" validate:"lte=2"`
	Encoding string `mapstructure:"encoding" yaml:"encoding" validate:"oneof=json msgpack"`
	DoorID   string `mapstructure:"door_id" yaml:"door_id"`

	SpoofAlertThreshold int           `mapstructure:"spoof_alert_threshold" yaml:"spoof_alert_threshold" validate:"gte=0"` // Fake faces that raise an alert; 0 disables
	SpoofAlertWindow    time.Duration `mapstructure:"spoof_alert_window" yaml:"spoof_alert_window" validate:"gte=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`                                // Log level: debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"` // Output format
	File   string `mapstructure:"file" yaml:"file"`                                  // Log file path (empty = stdout)
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Inference: InferenceConfig{
			Address: "localhost:50051",
			Timeout: 10 * time.Second,
		},
		Camera: CameraConfig{
			Device:      "/dev/video0",
			Width:       640,
			Height:      480,
			FPS:         30,
			PixelFormat: "MJPEG",
			ReadTimeout: 5 * time.Second,
		},
		Detection: DetectionConfig{
			Backend:       "grpc",
			CascadePath:   "models/haarcascade_frontalface_default.xml",
			ScaleFactor:   1.1,
			MinNeighbors:  5,
			MinFaceSize:   60,
			Confidence:    0.5,
			NMSThreshold:  0.4,
			MaxDetections: 0,
			Margin:        0,
		},
		Recognition: RecognitionConfig{
			Backend:           "grpc",
			ModelDir:          "models/dlib",
			Threshold:         50,
			Tolerance:         0.36,
			EnrollmentSamples: 20,
		},
		Liveness: LivenessConfig{
			Mode:              "fallback",
			MinScore:          0.5,
			VarianceThreshold: 100,
			MinBrightness:     40,
			MaxBrightness:     220,
		},
		Door: DoorConfig{
			Cooldown:            5 * time.Second,
			RelockMode:          RelockOnFace,
			SimulateTransitions: false,
			AspectWidth:         3,
			AspectHeight:        4,
		},
		Actuator: ActuatorConfig{
			Enabled:        true,
			Port:           "",
			BaudRate:       9600,
			MatchPatterns:  []string{"Arduino", "CH340", "USB Serial"},
			UnlockAngle:    90,
			LockAngle:      0,
			SettleDuration: time.Second,
			ResetDelay:     2 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:        "/var/lib/facegate",
			DatabasePath:   "/var/lib/facegate/facegate.db",
			RecognitionLog: "logs/recognition_log.txt",
		},
		Events: EventsConfig{
			Enabled:  false,
			Broker:   "localhost:1883",
			Topic:    "facegate",
			QoS:      1,
			Encoding: "json",
			DoorID:   "front-door",

			SpoofAlertThreshold: 3,
			SpoofAlertWindow:    5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// A missing .env is fine, it only seeds FACEGATE_* variables
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search for config in standard locations
		v.SetConfigName("facegate")
		v.AddConfigPath("/etc/facegate/")
		v.AddConfigPath("$HOME/.facegate")
		v.AddConfigPath(".")
	}

	// Environment variable prefix
	v.SetEnvPrefix("FACEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Ensure data directory exists
	if cfg.Storage.DataDir != "" {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("error creating data directory: %w", err)
		}
	}

	return cfg, nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("inference", c.Inference)
	v.Set("camera", c.Camera)
	v.Set("detection", c.Detection)
	v.Set("recognition", c.Recognition)
	v.Set("liveness", c.Liveness)
	v.Set("door", c.Door)
	v.Set("actuator", c.Actuator)
	v.Set("storage", c.Storage)
	v.Set("events", c.Events)
	v.Set("logging", c.Logging)

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Write config file
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Validate camera settings
	if c.Camera.Device == "" && c.Camera.FramesDir == "" {
		return fmt.Errorf("camera device cannot be empty")
	}

	// Validate backends that need the inference service
	if c.Inference.Address == "" {
		if c.Detection.Backend == "grpc" || c.Recognition.Backend == "grpc" || c.Liveness.Mode == "remote" {
			return fmt.Errorf("inference address is required by the configured backends")
		}
	}
	if c.Detection.Backend == "haar" && c.Detection.CascadePath == "" {
		return fmt.Errorf("haar detection requires a cascade path")
	}

	// Validate liveness settings
	if c.Liveness.MinBrightness > c.Liveness.MaxBrightness {
		return fmt.Errorf("liveness brightness window is empty: %.0f > %.0f",
			c.Liveness.MinBrightness, c.Liveness.MaxBrightness)
	}

	// Validate actuator settings
	if c.Actuator.UnlockAngle == c.Actuator.LockAngle {
		return fmt.Errorf("unlock and lock angles must differ")
	}

	// Validate events settings
	if c.Events.Enabled && (c.Events.Broker == "" || c.Events.Topic == "") {
		return fmt.Errorf("event publishing requires broker and topic")
	}

	return nil
}
