// Package camera provides frame sources: a V4L2 camera and a JPEG directory replay
package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrCodeEU/FaceGate/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// ErrSourceExhausted signals the end of the frame stream
var ErrSourceExhausted = errors.New("frame source exhausted")

// Source yields frames one at a time
type Source interface {
	// Next blocks until a frame is available, the stream ends (ErrSourceExhausted)
	// or acquisition fails
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

// Camera represents a V4L2 camera device
type Camera struct {
	device    *device.Device
	config    config.CameraConfig
	format    v4l2.FourCCType
	frameChan chan *Frame
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	sequence  uint32
	logger    logrus.FieldLogger
}

// NewCamera opens the device and negotiates format and frame rate
func NewCamera(cfg config.CameraConfig, logger logrus.FieldLogger) (*Camera, error) {
	format := pixelFormat(cfg.PixelFormat)

	dev, err := device.Open(cfg.Device,
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: format,
			Width:       uint32(cfg.Width),
			Height:      uint32(cfg.Height),
		}),
		device.WithFPS(uint32(cfg.FPS)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera device %s: %w", cfg.Device, err)
	}

	c := &Camera{
		device:    dev,
		config:    cfg,
		format:    format,
		frameChan: make(chan *Frame, 4),
		logger:    logger,
	}

	if formats, err := c.SupportedFormats(); err != nil {
		logger.Debugf("Could not list formats of %s: %v", cfg.Device, err)
	} else if !hasFormat(formats, format) {
		logger.Warnf("Camera %s does not list %s; it offers %s", cfg.Device,
			cfg.PixelFormat, strings.Join(formatNames(formats), ", "))
	}

	return c, nil
}

func pixelFormat(name string) v4l2.FourCCType {
	switch name {
	case "GREY":
		return v4l2.PixelFmtGrey
	case "YUYV":
		return v4l2.PixelFmtYUYV
	case "RGB24":
		return v4l2.PixelFmtRGB24
	default:
		return v4l2.PixelFmtMJPEG
	}
}

// Start begins video capture
func (c *Camera) Start() error {
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if err := c.device.Start(c.ctx); err != nil {
		return fmt.Errorf("failed to start camera: %w", err)
	}

	go c.captureLoop()

	c.logger.Infof("Camera %s started (%dx%d %s @ %d fps)",
		c.config.Device, c.config.Width, c.config.Height, c.config.PixelFormat, c.config.FPS)
	return nil
}

// Stop stops video capture
func (c *Camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if c.device != nil {
		if err := c.device.Stop(); err != nil {
			return fmt.Errorf("failed to stop camera: %w", err)
		}
	}

	return nil
}

// Next returns the next captured frame
func (c *Camera) Next(ctx context.Context) (*Frame, error) {
	timeout := c.config.ReadTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame, ok := <-c.frameChan:
		if !ok {
			return nil, ErrSourceExhausted
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("no frame from %s within %v", c.config.Device, timeout)
	}
}

// captureLoop copies driver buffers into frames. The channel keeps the newest
// frames: when the consumer falls behind the oldest one is dropped.
func (c *Camera) captureLoop() {
	output := c.device.GetOutput()
	defer close(c.frameChan)

	for {
		select {
		case <-c.ctx.Done():
			return
		case buf, ok := <-output:
			if !ok {
				return
			}

			data := make([]byte, len(buf))
			copy(data, buf)

			c.sequence++
			frame := &Frame{
				Data:      data,
				Width:     c.config.Width,
				Height:    c.config.Height,
				Format:    c.format,
				Timestamp: time.Now(),
				Sequence:  c.sequence,
			}

			select {
			case c.frameChan <- frame:
			default:
				select {
				case <-c.frameChan:
				default:
				}
				select {
				case c.frameChan <- frame:
				default:
				}
			}
		}
	}
}

// Close releases camera resources
func (c *Camera) Close() error {
	_ = c.Stop()

	if c.device != nil {
		return c.device.Close()
	}
	return nil
}

// SupportedFormats returns the pixel formats the device reports
func (c *Camera) SupportedFormats() ([]v4l2.FormatDescription, error) {
	return c.device.GetFormatDescriptions()
}

// hasFormat reports whether format is among the described formats
func hasFormat(formats []v4l2.FormatDescription, format v4l2.FourCCType) bool {
	for _, f := range formats {
		if f.PixelFormat == format {
			return true
		}
	}
	return false
}

// formatNames lists the descriptions of formats
func formatNames(formats []v4l2.FormatDescription) []string {
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, f.Description)
	}
	return names
}
