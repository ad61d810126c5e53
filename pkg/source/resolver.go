package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/viant/afs"
	_ "github.com/viant/afsc/s3"

	"github.com/menta2k/plot2dataset/pkg/processing"
	"github.com/menta2k/plot2dataset/pkg/types"
)

// DefaultMaxBytes caps downloaded and inline image payloads
const DefaultMaxBytes = 32 << 20

// Config holds configuration for the resolver
type Config struct {
	// Namespace is the reference prefix that selects local storage
	Namespace string
	// Root is the directory or afs URL (e.g. s3://bucket/charts) the namespace is resolved against
	Root string
	// MaxBytes caps remote and inline payloads, <= 0 means unlimited
	MaxBytes int64
	// Timeout applies to remote fetches, 0 means none
	Timeout   time.Duration
	UserAgent string
}

// Resolver turns image references into decoded images
type Resolver struct {
	config     Config
	fs         afs.Service
	httpClient *http.Client
	processor  *processing.Processor
}

// New creates a Resolver with default configuration
func New() *Resolver {
	return NewWithConfig(Config{
		Namespace: DefaultNamespace,
		Root:      ".",
		MaxBytes:  DefaultMaxBytes,
	}, nil)
}

// NewWithConfig creates a Resolver. A nil client gets a fresh http.Client
// using cfg.Timeout.
func NewWithConfig(cfg Config, client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	return &Resolver{
		config:     cfg,
		fs:         afs.New(),
		httpClient: client,
		processor:  processing.NewProcessor(),
	}
}

// Classify classifies raw against the resolver's namespace
func (r *Resolver) Classify(raw string) (Reference, error) {
	return Classify(raw, r.config.Namespace)
}

// ResolveString classifies and resolves a raw reference
func (r *Resolver) ResolveString(ctx context.Context, raw string) (image.Image, error) {
	ref, err := r.Classify(raw)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, ref)
}

// Resolve loads and decodes the image a reference points to
func (r *Resolver) Resolve(ctx context.Context, ref Reference) (image.Image, error) {
	switch ref.Kind {
	case KindInline:
		return r.resolveInline(ref.Value)
	case KindLocal:
		return r.resolveLocal(ctx, ref.Value)
	case KindRemote:
		return r.resolveRemote(ctx, ref.Value)
	}
	return nil, fmt.Errorf("%w: unknown reference kind %d", types.ErrInput, ref.Kind)
}

// resolveInline decodes data:[<mediatype>];base64,<payload>
func (r *Resolver) resolveInline(ref string) (image.Image, error) {
	marker, payload, ok := strings.Cut(ref, ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data URL", types.ErrInput)
	}
	if !strings.HasSuffix(strings.ToLower(marker), ";base64") {
		return nil, fmt.Errorf("%w: data URL is not base64 encoded", types.ErrInput)
	}
	if r.config.MaxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > r.config.MaxBytes+2 {
		return nil, fmt.Errorf("%w: inline image larger than %d bytes", types.ErrInput, r.config.MaxBytes)
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %v", types.ErrDecode, err)
	}
	img, err := r.processor.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecode, err)
	}
	return img, nil
}

func (r *Resolver) resolveLocal(ctx context.Context, rel string) (image.Image, error) {
	location := r.location(rel)

	exists, err := r.fs.Exists(ctx, location)
	if err != nil || !exists {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, rel)
	}
	obj, err := r.fs.Object(ctx, location)
	if err != nil || obj.IsDir() {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, rel)
	}

	reader, err := r.fs.OpenURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrNotFound, rel, err)
	}
	defer reader.Close()

	img, err := r.processor.DecodeReader(reader, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrDecode, rel, err)
	}
	return img, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, imageURL string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInput, err)
	}
	if r.config.UserAgent != "" {
		req.Header.Set("User-Agent", r.config.UserAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: Failed to download image. Status code: %d", types.ErrFetch, resp.StatusCode)
	}

	img, err := r.processor.DecodeReader(resp.Body, r.config.MaxBytes)
	if errors.Is(err, processing.ErrTooLarge) {
		return nil, fmt.Errorf("%w: %v", types.ErrFetch, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecode, err)
	}
	return img, nil
}

// location maps a namespace path onto the storage root
func (r *Resolver) location(rel string) string {
	root := r.config.Root
	if strings.Contains(root, "://") {
		return strings.TrimSuffix(root, "/") + "/" + rel
	}
	if abs, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(rel))); err == nil {
		return abs
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}

// decodeBase64 accepts padded or unpadded payloads with embedded whitespace
func decodeBase64(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
}
