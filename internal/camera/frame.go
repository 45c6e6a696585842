package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"github.com/vladimirvivien/go4vl/v4l2"
)

// Frame is one captured image. It is immutable once produced.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    v4l2.FourCCType
	Timestamp time.Time
	Sequence  uint32
}

// ToImage decodes the frame into an image.Image
func (f *Frame) ToImage() (image.Image, error) {
	switch f.Format {
	case v4l2.PixelFmtMJPEG:
		return jpeg.Decode(bytes.NewReader(f.Data))
	case v4l2.PixelFmtYUYV:
		return yuyvToRGB(f.Data, f.Width, f.Height), nil
	case v4l2.PixelFmtRGB24:
		return rgb24ToImage(f.Data, f.Width, f.Height), nil
	case v4l2.PixelFmtGrey:
		return greyToImage(f.Data, f.Width, f.Height), nil
	default:
		return nil, fmt.Errorf("unsupported pixel format: %v", f.Format)
	}
}

func yuyvToRGB(data []byte, width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x += 2 {
			// 4 bytes carry 2 pixels: Y0 U Y1 V
			idx := (y*width + x) * 2
			if idx+3 >= len(data) {
				return img
			}

			y0 := int(data[idx])
			u := int(data[idx+1]) - 128
			y1 := int(data[idx+2])
			v := int(data[idx+3]) - 128

			img.SetRGBA(x, y, yuvToRGBA(y0, u, v))
			if x+1 < width {
				img.SetRGBA(x+1, y, yuvToRGBA(y1, u, v))
			}
		}
	}

	return img
}

// yuvToRGBA applies the BT.601 integer conversion
func yuvToRGBA(y, u, v int) color.RGBA {
	c := y - 16
	r := (298*c + 409*v + 128) >> 8
	g := (298*c - 100*u - 208*v + 128) >> 8
	b := (298*c + 516*u + 128) >> 8

	return color.RGBA{R: clampUint8(r), G: clampUint8(g), B: clampUint8(b), A: 255}
}

func clampUint8(val int) uint8 {
	if val < 0 {
		return 0
	}
	if val > 255 {
		return 255
	}
	return uint8(val)
}

func rgb24ToImage(data []byte, width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for i := 0; i < width*height && i*3+2 < len(data); i++ {
		img.Pix[i*4] = data[i*3]
		img.Pix[i*4+1] = data[i*3+1]
		img.Pix[i*4+2] = data[i*3+2]
		img.Pix[i*4+3] = 255
	}

	return img
}

func greyToImage(data []byte, width, height int) image.Image {
	img := image.NewGray(image.Rect(0, 0, width, height))
	copy(img.Pix, data)
	return img
}
