package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/plot2dataset/internal/config"
	"github.com/menta2k/plot2dataset/pkg/deplot"
	"github.com/menta2k/plot2dataset/pkg/llamacpp"
	"github.com/menta2k/plot2dataset/pkg/ollama"
	"github.com/menta2k/plot2dataset/pkg/table"
)

func TestNewVisionClient(t *testing.T) {
	cfg := config.Default().Engine

	c, err := NewVisionClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &deplot.Client{}, c)

	cfg.Backend = config.BackendOllama
	cfg.URL = "http://localhost:11434/api/chat"
	c, err = NewVisionClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &ollama.Client{}, c)

	cfg.Backend = config.BackendLlamaCPP
	c, err = NewVisionClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &llamacpp.Client{}, c)

	cfg.Backend = "tesseract"
	_, err = NewVisionClient(cfg)
	assert.Error(t, err)
}

func TestNewExtractorRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Backend = ""
	_, err := NewExtractor(cfg)
	assert.Error(t, err)
}

func TestNewExtractorEndToEnd(t *testing.T) {
	sidecar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"Year\tSales\n2021\t5\n2022\t7"}`))
	}))
	defer sidecar.Close()

	cfg := config.Default()
	cfg.Engine.URL = sidecar.URL
	cfg.Storage.Root = t.TempDir()

	ex, err := NewExtractor(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	res := ex.Extract(context.Background(), "data:image/png;base64,"+base64.StdEncoding.EncodeToString(buf.Bytes()))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, []table.Record{
		{Fields: map[string]string{"Year": "2021", "Sales": "5"}},
		{Fields: map[string]string{"Year": "2022", "Sales": "7"}},
	}, res.TableData)
}

func TestMimeFor(t *testing.T) {
	assert.Equal(t, "image/jpeg", mimeFor("JPG"))
	assert.Equal(t, "image/png", mimeFor("png"))
}
