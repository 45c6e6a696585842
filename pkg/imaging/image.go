// Package imaging provides the pixel helpers used between detection and the access pipeline
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
)

// aspectTolerance is how close a ratio must be to count as already normalized
const aspectTolerance = 0.01

// CropToAspect centre-crops img to the aspect ratio w:h.
// An image already within tolerance of the ratio is returned unchanged.
func CropToAspect(img image.Image, w, h int) image.Image {
	bounds := img.Bounds()
	if bounds.Empty() || w <= 0 || h <= 0 {
		return img
	}

	target := float64(w) / float64(h)
	current := float64(bounds.Dx()) / float64(bounds.Dy())

	if math.Abs(current-target) < aspectTolerance {
		return img
	}

	if current > target {
		// Too wide: crop width
		newWidth := int(float64(bounds.Dy()) * target)
		startX := (bounds.Dx() - newWidth) / 2
		return CropImage(img, bounds.Min.X+startX, bounds.Min.Y, newWidth, bounds.Dy())
	}

	// Too tall: crop height
	newHeight := int(float64(bounds.Dx()) / target)
	startY := (bounds.Dy() - newHeight) / 2
	return CropImage(img, bounds.Min.X, bounds.Min.Y+startY, bounds.Dx(), newHeight)
}

// ExpandRect grows r by a fraction of its size on every side and clips it to limit.
// Haar boxes are tight around the eyes and mouth; liveness texture needs some forehead and chin.
func ExpandRect(r image.Rectangle, fraction float64, limit image.Rectangle) image.Rectangle {
	dx := int(float64(r.Dx()) * fraction)
	dy := int(float64(r.Dy()) * fraction)
	return image.Rect(r.Min.X-dx, r.Min.Y-dy, r.Max.X+dx, r.Max.Y+dy).Intersect(limit)
}

// ResizeImage resizes an image using bilinear interpolation
func ResizeImage(src image.Image, dstWidth, dstHeight int) image.Image {
	srcBounds := src.Bounds()
	srcWidth := srcBounds.Dx()
	srcHeight := srcBounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))

	for y := 0; y < dstHeight; y++ {
		for x := 0; x < dstWidth; x++ {
			// Map to source coordinates
			srcX := float64(srcBounds.Min.X) + float64(x)*float64(srcWidth)/float64(dstWidth)
			srcY := float64(srcBounds.Min.Y) + float64(y)*float64(srcHeight)/float64(dstHeight)

			r, g, b := SamplePixelBilinear(src, srcX, srcY)

			dst.Set(x, y, color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255})
		}
	}

	return dst
}

// SamplePixelBilinear samples a pixel using bilinear interpolation
func SamplePixelBilinear(img image.Image, x, y float64) (float64, float64, float64) {
	bounds := img.Bounds()
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1

	// Clamp to bounds
	if x0 < bounds.Min.X {
		x0 = bounds.Min.X
	}
	if y0 < bounds.Min.Y {
		y0 = bounds.Min.Y
	}
	if x1 >= bounds.Max.X {
		x1 = bounds.Max.X - 1
	}
	if y1 >= bounds.Max.Y {
		y1 = bounds.Max.Y - 1
	}

	fx := x - float64(x0)
	fy := y - float64(y0)

	r00, g00, b00, _ := img.At(x0, y0).RGBA()
	r01, g01, b01, _ := img.At(x0, y1).RGBA()
	r10, g10, b10, _ := img.At(x1, y0).RGBA()
	r11, g11, b11, _ := img.At(x1, y1).RGBA()

	// Convert from 16-bit to 8-bit
	r00, g00, b00 = r00>>8, g00>>8, b00>>8
	r01, g01, b01 = r01>>8, g01>>8, b01>>8
	r10, g10, b10 = r10>>8, g10>>8, b10>>8
	r11, g11, b11 = r11>>8, g11>>8, b11>>8

	r := (1-fx)*(1-fy)*float64(r00) + (1-fx)*fy*float64(r01) +
		fx*(1-fy)*float64(r10) + fx*fy*float64(r11)
	g := (1-fx)*(1-fy)*float64(g00) + (1-fx)*fy*float64(g01) +
		fx*(1-fy)*float64(g10) + fx*fy*float64(g11)
	b := (1-fx)*(1-fy)*float64(b00) + (1-fx)*fy*float64(b01) +
		fx*(1-fy)*float64(b10) + fx*fy*float64(b11)

	return r, g, b
}

// CropImage copies a region of img into a new zero-origin RGBA image.
// The region is clamped to the image bounds.
func CropImage(img image.Image, x, y, width, height int) *image.RGBA {
	rect := image.Rect(x, y, x+width, y+height).Intersect(img.Bounds())

	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(cropped, cropped.Bounds(), img, rect.Min, draw.Src)

	return cropped
}

// Grayscale converts an image to grayscale
func Grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			gray.Set(x, y, color.Gray{Y: uint8(luma / 256)})
		}
	}

	return gray
}

// EncodeJPEG encodes img at the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Clamp clamps a value between min and max
func Clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
