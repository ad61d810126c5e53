// Package deplot is a client for a model sidecar that serves a pretrained
// chart-to-table model (google/deplot) over HTTP.
package deplot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxNewTokens matches the generation budget the model was served with
const DefaultMaxNewTokens = 1024

type generateRequest struct {
	Prompt       string `json:"prompt"`
	ImageB64     string `json:"image_base64"`
	MaxNewTokens int    `json:"max_new_tokens,omitempty"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Client posts images to the sidecar's /generate endpoint
type Client struct {
	url          *url.URL
	client       *http.Client
	authToken    string
	maxNewTokens int
}

// Options configures the sidecar client
type Options struct {
	MaxNewTokens int
	// AuthToken is sent as X-Internal-Token when set
	AuthToken string
	Timeout   time.Duration
}

// NewClient creates a sidecar client for the service at _url. A nil client
// gets a fresh http.Client using opts.Timeout.
func NewClient(_url string, client *http.Client, opts Options) (*Client, error) {
	u, err := url.Parse(_url)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url: %q", _url)
	}

	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxNewTokens <= 0 {
		opts.MaxNewTokens = DefaultMaxNewTokens
	}

	return &Client{url: u, client: client, authToken: opts.AuthToken, maxNewTokens: opts.MaxNewTokens}, nil
}

// Query runs one generation on the sidecar
func (c *Client) Query(ctx context.Context, prompt, imgB64 string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:       prompt,
		ImageB64:     imgB64,
		MaxNewTokens: c.maxNewTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url.JoinPath("/generate").String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		request.Header.Set("X-Internal-Token", c.authToken)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return "", fmt.Errorf("sidecar response status code: %d, body: %s", response.StatusCode, data)
	}

	var parsed generateResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response body: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("sidecar error: %s", parsed.Error)
	}
	return parsed.Text, nil
}
