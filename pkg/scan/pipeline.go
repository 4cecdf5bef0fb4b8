// Package scan runs a captured frame through preprocessing, a recognition engine
// and text normalization.
package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"meterscan/pkg/digits"
	"meterscan/pkg/frame"
	"meterscan/pkg/ocr"
)

// Options tune a pipeline. Use DefaultOptions and override fields.
type Options struct {
	Threshold      int
	Mode           digits.Mode
	Policy         *digits.Policy
	MinLength      int
	MaxWidth       int
	SkipPreprocess bool
}

// DefaultOptions matches the snapshot meter scanner.
func DefaultOptions() Options {
	return Options{
		Threshold: frame.DefaultThreshold,
		Mode:      digits.DigitsOnly,
		Policy:    digits.DefaultPolicy,
		MinLength: 1,
		MaxWidth:  1280,
	}
}

// Result is the outcome of one scan. Accepted is false when the cleaned text is
// shorter than MinLength; that is not an error.
type Result struct {
	RawText   string
	Text      string
	Accepted  bool
	Backend   string
	Mode      digits.Mode
	Policy    string
	Threshold int
	Width     int
	Height    int
	Duration  time.Duration
}

// Pipeline binds an engine to scan options. It is safe for concurrent use when
// the engine is.
type Pipeline struct {
	engine ocr.Engine
	opts   Options
}

// New returns a pipeline. A nil policy falls back to digits.DefaultPolicy.
func New(engine ocr.Engine, opts Options) *Pipeline {
	if opts.Policy == nil {
		opts.Policy = digits.DefaultPolicy
	}
	return &Pipeline{engine: engine, opts: opts}
}

// Options returns the pipeline's options.
func (p *Pipeline) Options() Options { return p.opts }

// With returns a pipeline sharing the engine but using opts.
func (p *Pipeline) With(opts Options) *Pipeline { return New(p.engine, opts) }

// Scan processes an already captured frame. An engine that finds no text yields
// an empty, unaccepted result rather than an error.
func (p *Pipeline) Scan(ctx context.Context, f *frame.Frame) (*Result, error) {
	start := time.Now()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	f = f.Fit(p.opts.MaxWidth)
	if !p.opts.SkipPreprocess {
		bin, err := f.Binarize(p.opts.Threshold)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCapture, err)
		}
		f = bin
	}
	img, err := f.EncodePNG()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	raw, err := p.engine.Recognize(ctx, img)
	if errors.Is(err, ocr.ErrNoText) {
		raw, err = "", nil
	}
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}
	text := digits.NormalizeWith(raw, p.opts.Mode, p.opts.Policy)
	return &Result{
		RawText:   raw,
		Text:      text,
		Accepted:  digits.Sufficient(text, p.opts.MinLength),
		Backend:   p.engine.Name(),
		Mode:      p.opts.Mode,
		Policy:    p.opts.Policy.ID(),
		Threshold: p.opts.Threshold,
		Width:     f.Width,
		Height:    f.Height,
		Duration:  time.Since(start),
	}, nil
}

// ScanBytes decodes an uploaded image and scans it.
func (p *Pipeline) ScanBytes(ctx context.Context, data []byte, contentType string) (*Result, error) {
	f, err := frame.Decode(bytes.NewReader(data), contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	return p.Scan(ctx, f)
}

// Backend names the engine the pipeline sends frames to.
func (p *Pipeline) Backend() string { return p.engine.Name() }
