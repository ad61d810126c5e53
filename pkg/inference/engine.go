// Package inference connects decoded chart images to vision-to-text backends.
package inference

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/menta2k/plot2dataset/pkg/client"
	"github.com/menta2k/plot2dataset/pkg/processing"
)

// Instruction is the fixed prompt asking the model for the chart's data table
const Instruction = "Generate underlying data table of the figure below:"

// Engine turns an image and an instruction into raw model text
type Engine interface {
	Infer(ctx context.Context, img image.Image, instruction string) (string, error)
}

// EngineFunc adapts an ordinary function to Engine
type EngineFunc func(ctx context.Context, img image.Image, instruction string) (string, error)

// Infer calls f(ctx, img, instruction)
func (f EngineFunc) Infer(ctx context.Context, img image.Image, instruction string) (string, error) {
	return f(ctx, img, instruction)
}

// Config controls how images are prepared before they are sent
type Config struct {
	// SendFormat is jpg or png
	SendFormat string
	// SendSize caps the longest side in pixels, 0 keeps the original size
	SendSize    int
	SendQuality int
	// Serialize admits a single in-flight query
	Serialize bool
}

// DefaultConfig returns the preparation settings used by the service
func DefaultConfig() Config {
	return Config{
		SendFormat:  "png",
		SendSize:    0,
		SendQuality: 90,
		Serialize:   true,
	}
}

// VisionEngine is an Engine backed by a VisionClient
type VisionEngine struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
	mu        sync.Mutex
}

// NewVisionEngine creates an engine over the given backend
func NewVisionEngine(c client.VisionClient, cfg Config) *VisionEngine {
	if cfg.SendFormat == "" {
		cfg.SendFormat = "png"
	}
	if cfg.SendQuality <= 0 {
		cfg.SendQuality = 90
	}
	return &VisionEngine{
		client:    c,
		processor: processing.NewProcessor(),
		config:    cfg,
	}
}

// Infer encodes the image and queries the backend once
func (e *VisionEngine) Infer(ctx context.Context, img image.Image, instruction string) (string, error) {
	if img == nil {
		return "", fmt.Errorf("no image to infer from")
	}

	imgB64, err := e.processor.PrepareImageForModel(img, e.config.SendFormat, e.config.SendSize, e.config.SendQuality)
	if err != nil {
		return "", fmt.Errorf("failed to prepare image: %w", err)
	}

	if e.config.Serialize {
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	text, err := e.client.Query(ctx, instruction, imgB64)
	if err != nil {
		return "", err
	}
	return text, nil
}
