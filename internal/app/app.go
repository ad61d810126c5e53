// Package app builds the extraction pipeline from configuration.
package app

import (
	"fmt"
	"strings"

	"github.com/menta2k/plot2dataset"
	"github.com/menta2k/plot2dataset/internal/config"
	"github.com/menta2k/plot2dataset/pkg/client"
	"github.com/menta2k/plot2dataset/pkg/deplot"
	"github.com/menta2k/plot2dataset/pkg/inference"
	"github.com/menta2k/plot2dataset/pkg/llamacpp"
	"github.com/menta2k/plot2dataset/pkg/ollama"
	"github.com/menta2k/plot2dataset/pkg/source"
)

// NewVisionClient creates the backend named by cfg.Backend
func NewVisionClient(cfg config.EngineConfig) (client.VisionClient, error) {
	switch cfg.Backend {
	case config.BackendDeplot:
		return deplot.NewClient(cfg.URL, nil, deplot.Options{
			MaxNewTokens: cfg.MaxNewTokens,
			AuthToken:    cfg.AuthToken,
			Timeout:      cfg.Timeout.Std(),
		})
	case config.BackendOllama:
		var opts map[string]any
		if cfg.MaxNewTokens > 0 {
			opts = map[string]any{"num_predict": cfg.MaxNewTokens, "temperature": 0}
		}
		return ollama.NewClient(cfg.URL, cfg.Model, opts)
	case config.BackendLlamaCPP:
		return llamacpp.NewClient(cfg.URL, llamacpp.Options{
			Model:     cfg.Model,
			MaxTokens: cfg.MaxNewTokens,
			ImageMIME: mimeFor(cfg.SendFormat),
			Timeout:   cfg.Timeout.Std(),
		})
	}
	return nil, fmt.Errorf("unknown backend: %s (use '%s', '%s' or '%s')",
		cfg.Backend, config.BackendDeplot, config.BackendOllama, config.BackendLlamaCPP)
}

// NewEngine creates the inference engine for cfg
func NewEngine(cfg config.EngineConfig) (inference.Engine, error) {
	c, err := NewVisionClient(cfg)
	if err != nil {
		return nil, err
	}
	return inference.NewVisionEngine(c, inference.Config{
		SendFormat:  cfg.SendFormat,
		SendSize:    cfg.SendSize,
		SendQuality: cfg.SendQuality,
		Serialize:   cfg.Serialize,
	}), nil
}

// NewResolver creates the image resolver for cfg
func NewResolver(cfg *config.Config) *source.Resolver {
	userAgent := cfg.Fetch.UserAgent
	if userAgent == "" {
		userAgent = "plot2dataset/" + plot2dataset.Version
	}
	return source.NewWithConfig(source.Config{
		Namespace: cfg.Storage.Namespace,
		Root:      cfg.Storage.Root,
		MaxBytes:  cfg.Fetch.MaxBytes,
		Timeout:   cfg.Fetch.Timeout.Std(),
		UserAgent: userAgent,
	}, nil)
}

// NewExtractor validates cfg and wires resolver and engine together
func NewExtractor(cfg *config.Config) (*plot2dataset.Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	engine, err := NewEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}
	return plot2dataset.New(NewResolver(cfg), engine), nil
}

func mimeFor(format string) string {
	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		return "image/jpeg"
	}
	return "image/png"
}
