package processing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage creates a simple bar-chart-like test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/4 && x < width/2 && y > height/3 {
				img.Set(x, y, color.RGBA{30, 90, 200, 255})
			} else {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}

	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeBytes(t *testing.T) {
	p := NewProcessor()

	img, err := p.DecodeBytes(encodePNG(t, createTestImage(40, 30)))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, createTestImage(20, 10), nil))
	img, err = p.DecodeBytes(jpg.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
}

func TestDecodeBytesRejectsGarbage(t *testing.T) {
	p := NewProcessor()

	_, err := p.DecodeBytes(nil)
	assert.Error(t, err)

	_, err = p.DecodeBytes([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestDecodeReaderLimit(t *testing.T) {
	p := NewProcessor()
	data := encodePNG(t, createTestImage(16, 16))

	_, err := p.DecodeReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	_, err = p.DecodeReader(bytes.NewReader(data), int64(len(data)-1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = p.DecodeReader(bytes.NewReader(data), 0)
	assert.NoError(t, err)
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(400, 200)

	tests := []struct {
		name   string
		format string
		maxDim int
		wantW  int
		wantH  int
	}{
		{name: "png original size", format: "png", maxDim: 0, wantW: 400, wantH: 200},
		{name: "png landscape capped", format: "png", maxDim: 100, wantW: 100, wantH: 50},
		{name: "jpeg capped", format: "JPG", maxDim: 200, wantW: 200, wantH: 100},
		{name: "no upscaling", format: "png", maxDim: 1000, wantW: 400, wantH: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b64, err := p.PrepareImageForModel(img, tt.format, tt.maxDim, 90)
			require.NoError(t, err)

			raw, err := base64.StdEncoding.DecodeString(b64)
			require.NoError(t, err)
			cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, cfg.Width)
			assert.Equal(t, tt.wantH, cfg.Height)
			assert.True(t, strings.HasPrefix(strings.ToLower(tt.format), format[:1]))
		})
	}
}

func TestPrepareImageForModelPortrait(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(100, 300), "png", 150, 90)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 150, cfg.Height)
}

func TestPrepareImageForModelUnknownFormat(t *testing.T) {
	_, err := NewProcessor().PrepareImageForModel(createTestImage(10, 10), "gif", 0, 90)
	assert.Error(t, err)
}
