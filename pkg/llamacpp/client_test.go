package llamacpp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Year\tValue\n2020\t1"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", Options{Model: "deplot", MaxTokens: 512})
	require.NoError(t, err)

	text, err := c.Query(context.Background(), "describe", "QUJD")
	require.NoError(t, err)
	assert.Equal(t, "Year\tValue\n2020\t1", text)

	assert.Equal(t, "deplot", got.Model)
	assert.Equal(t, 512, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	parts, ok := got.Messages[0].Content.([]interface{})
	require.True(t, ok)
	require.Len(t, parts, 2)
	image := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
	assert.Equal(t, "data:image/png;base64,QUJD", image["url"])
}

func TestQueryContentParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"a\tb"}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, Options{})
	require.NoError(t, err)
	text, err := c.Query(context.Background(), "p", "")
	require.NoError(t, err)
	assert.Equal(t, "a\tb", text)
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`},
		{name: "bad json", status: http.StatusOK, body: `{`},
		{name: "no text", status: http.StatusOK, body: `{"choices":[{"message":{"content":[{"type":"image_url"}]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewClient(srv.URL, Options{})
			require.NoError(t, err)
			_, err = c.Query(context.Background(), "p", "QUJD")
			assert.Error(t, err)
		})
	}
}
