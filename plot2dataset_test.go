package plot2dataset

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/plot2dataset/pkg/inference"
	"github.com/menta2k/plot2dataset/pkg/source"
	"github.com/menta2k/plot2dataset/pkg/table"
	"github.com/menta2k/plot2dataset/pkg/types"
)

// createTestChart creates a tiny two-bar chart as PNG bytes
func createTestChart(t *testing.T) []byte {
	t.Helper()
	width, height := 60, 40
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch {
			case x > 10 && x < 25 && y > 20:
				img.Set(x, y, color.RGBA{40, 100, 220, 255})
			case x > 35 && x < 50 && y > 10:
				img.Set(x, y, color.RGBA{40, 100, 220, 255})
			default:
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type countingEngine struct {
	text  string
	err   error
	calls int
	seen  string
}

func (c *countingEngine) Infer(ctx context.Context, img image.Image, instruction string) (string, error) {
	c.calls++
	c.seen = instruction
	return c.text, c.err
}

func newExtractor(t *testing.T, root string, engine inference.Engine) *Extractor {
	t.Helper()
	resolver := source.NewWithConfig(source.Config{
		Namespace: source.DefaultNamespace,
		Root:      root,
		MaxBytes:  source.DefaultMaxBytes,
	}, nil)
	return New(resolver, engine)
}

func TestExtractInlineKeyed(t *testing.T) {
	engine := &countingEngine{text: "Entity\tValue\nA\t1\nB\t2"}
	ex := newExtractor(t, t.TempDir(), engine)

	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(createTestChart(t))
	res := ex.Extract(context.Background(), ref)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Entity\tValue\nA\t1\nB\t2", res.RawText)
	assert.Equal(t, []table.Record{
		{Fields: map[string]string{"Entity": "A", "Value": "1"}},
		{Fields: map[string]string{"Entity": "B", "Value": "2"}},
	}, res.TableData)
	assert.Equal(t, 1, engine.calls)
	assert.Equal(t, inference.Instruction, engine.seen)
}

func TestExtractLocalRaw(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "images", "bar.png"), createTestChart(t), 0o644))

	engine := &countingEngine{text: "42"}
	out, err := newExtractor(t, root, engine).Run(context.Background(), "images/bar.png")

	require.NoError(t, err)
	assert.Equal(t, table.Raw, out.Table.Mode)
	assert.Equal(t, []table.Record{{Cells: []string{"42"}}}, out.Table.Records)
}

func TestExtractEmptyAnswerIsEmptyTable(t *testing.T) {
	ex := newExtractor(t, t.TempDir(), &countingEngine{text: ""})

	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(createTestChart(t))
	res := ex.Extract(context.Background(), ref)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "", res.RawText)
	assert.Equal(t, []table.Record{}, res.TableData)
}

func TestExtractMissingLocalSkipsInference(t *testing.T) {
	engine := &countingEngine{text: "unused"}
	ex := newExtractor(t, t.TempDir(), engine)

	_, err := ex.Run(context.Background(), "images/nope.png")
	require.ErrorIs(t, err, types.ErrNotFound)

	res := ex.Extract(context.Background(), "images/nope.png")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
	assert.Nil(t, res.TableData)
	assert.Equal(t, 0, engine.calls)
}

func TestExtractRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := &countingEngine{text: "unused"}
	res := newExtractor(t, t.TempDir(), engine).Extract(context.Background(), srv.URL+"/chart.png")

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Status code: 500")
	assert.Equal(t, 0, engine.calls)
}

func TestExtractInferenceError(t *testing.T) {
	chart := createTestChart(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chart)
	}))
	defer srv.Close()

	engine := &countingEngine{err: errors.New("CUDA out of memory")}
	_, err := newExtractor(t, t.TempDir(), engine).Run(context.Background(), srv.URL)

	require.ErrorIs(t, err, types.ErrInference)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestExtractEnginePanic(t *testing.T) {
	engine := inference.EngineFunc(func(ctx context.Context, img image.Image, instruction string) (string, error) {
		panic("model crashed")
	})
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(createTestChart(t))

	_, err := newExtractor(t, t.TempDir(), engine).Run(context.Background(), ref)
	assert.ErrorIs(t, err, types.ErrInference)
}

func TestExtractWithoutEngine(t *testing.T) {
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(createTestChart(t))
	_, err := New(nil, nil).Run(context.Background(), ref)
	assert.ErrorIs(t, err, types.ErrInference)
}

func TestExtractInvalidReference(t *testing.T) {
	engine := &countingEngine{}
	ex := newExtractor(t, t.TempDir(), engine)

	for _, ref := range []string{"", "chart.png", "ftp://host/chart.png", "data:image/png;base64,!!!"} {
		res := ex.Extract(context.Background(), ref)
		assert.False(t, res.Success, ref)
		assert.NotEmpty(t, res.Error, ref)
	}
	assert.Equal(t, 0, engine.calls)
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, Version, GetVersion())
}
