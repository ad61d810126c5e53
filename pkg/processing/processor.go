package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Processor decodes source images and prepares them for vision models
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// ErrTooLarge is returned by DecodeReader when the input exceeds its limit
var ErrTooLarge = errors.New("image too large")

// DecodeBytes decodes an image from byte data with WebP support
func (p *Processor) DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image: empty data")
	}

	// Registered decoders first, with EXIF orientation applied
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// DecodeReader reads at most limit bytes from r and decodes them.
// A limit <= 0 reads everything.
func (p *Processor) DecodeReader(r io.Reader, limit int64) (image.Image, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrTooLarge, limit)
	}
	return p.DecodeBytes(data)
}

// PrepareImageForModel converts an image to base64 for sending to vision models.
// The longest side is capped at maxDim when maxDim > 0.
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	case "jpg", "jpeg":
		// Charts often carry transparency; flatten onto white so axes stay visible
		bg := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), image.White.C)
		flat := imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
		if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unsupported model image format: %s", format)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
