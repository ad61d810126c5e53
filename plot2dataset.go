// Package plot2dataset extracts data tables from chart images.
//
// A request names a chart image by reference: an inline data URL, a path
// inside the local storage namespace (images/ by default) or an http(s)
// URL. The image is resolved and decoded, handed to a vision-to-text
// inference engine together with a fixed instruction, and the engine's tab
// and newline delimited answer is parsed into records.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/menta2k/plot2dataset"
//		"github.com/menta2k/plot2dataset/pkg/deplot"
//		"github.com/menta2k/plot2dataset/pkg/inference"
//		"github.com/menta2k/plot2dataset/pkg/source"
//	)
//
//	func main() {
//		backend, err := deplot.NewClient("http://127.0.0.1:8000", nil, deplot.Options{})
//		if err != nil {
//			log.Fatal(err)
//		}
//		engine := inference.NewVisionEngine(backend, inference.DefaultConfig())
//		extractor := plot2dataset.New(source.New(), engine)
//
//		result := extractor.Extract(context.Background(), "https://example.com/chart.png")
//		fmt.Println(result.Success, result.RawText)
//	}
//
// The package consists of these components:
//
// 1. Source (pkg/source): classifies references and decodes images
// 2. Inference (pkg/inference): the engine abstraction and its vision backends
// 3. Table (pkg/table): parses model text into keyed or raw records
// 4. Response (pkg/response): success/failure envelopes and status mapping
package plot2dataset

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/menta2k/plot2dataset/pkg/inference"
	"github.com/menta2k/plot2dataset/pkg/response"
	"github.com/menta2k/plot2dataset/pkg/source"
	"github.com/menta2k/plot2dataset/pkg/table"
	"github.com/menta2k/plot2dataset/pkg/types"
)

// Version of the plot2dataset service
const Version = "1.0.0"

// Extractor runs the resolve, infer and parse stages for one reference at a time.
// It holds no per-request state and is safe for concurrent use when its
// engine is.
type Extractor struct {
	resolver *source.Resolver
	engine   inference.Engine
}

// New creates an Extractor over an explicitly constructed engine
func New(resolver *source.Resolver, engine inference.Engine) *Extractor {
	if resolver == nil {
		resolver = source.New()
	}
	return &Extractor{resolver: resolver, engine: engine}
}

// Outcome is the parsed result of one extraction before it is enveloped
type Outcome struct {
	Table   table.Table
	RawText string
}

// Run resolves the reference, runs inference and parses the answer.
// Errors carry one of the types.Err* sentinels.
func (e *Extractor) Run(ctx context.Context, ref string) (Outcome, error) {
	logger := loggerFrom(ctx)

	classified, err := e.resolver.Classify(ref)
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	img, err := e.resolver.Resolve(ctx, classified)
	if err != nil {
		return Outcome{}, err
	}
	logger.Debug().
		Str("source", classified.Kind.String()).
		Dur("took", time.Since(start)).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("image resolved")

	text, err := e.infer(ctx, img)
	if err != nil {
		return Outcome{}, err
	}

	tbl := table.ParseTable(text)
	logger.Debug().
		Str("mode", tbl.Mode.String()).
		Int("records", len(tbl.Records)).
		Msg("table parsed")

	return Outcome{Table: tbl, RawText: text}, nil
}

// Extract runs the pipeline and always returns an envelope
func (e *Extractor) Extract(ctx context.Context, ref string) types.Result {
	out, err := e.Run(ctx, ref)
	if err != nil {
		return response.Failure(err)
	}
	return response.Success(out.Table.Records, out.RawText)
}

func (e *Extractor) infer(ctx context.Context, img image.Image) (text string, err error) {
	if e.engine == nil {
		return "", fmt.Errorf("%w: no inference engine configured", types.ErrInference)
	}

	// A panicking engine fails only this request
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: engine panic: %v", types.ErrInference, r)
		}
	}()

	start := time.Now()
	text, err = e.engine.Infer(ctx, img, inference.Instruction)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInference, err)
	}
	loggerFrom(ctx).Debug().Dur("took", time.Since(start)).Int("chars", len(text)).Msg("inference finished")
	return text, nil
}

// loggerFrom returns the request logger, falling back to the global one
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
