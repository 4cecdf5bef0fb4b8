// Package ocr wraps the text-recognition backends a scan can be sent to. Engines
// are expensive to build, so callers open one and reuse it across scans.
package ocr

import (
	"context"
	"fmt"
	"strings"
)

// Engine turns an encoded image into raw text.
type Engine interface {
	// Name identifies the backend, e.g. "tesseract".
	Name() string
	// Recognize returns the raw text found in a PNG or JPEG image.
	Recognize(ctx context.Context, image []byte) (string, error)
	// Close releases the backend session.
	Close() error
}

// KeyFunc resolves an API key at call time so rotated keys take effect without
// rebuilding the engine.
type KeyFunc func() (string, error)

// StaticKey returns a KeyFunc for a fixed key.
func StaticKey(key string) KeyFunc {
	return func() (string, error) { return key, nil }
}

// Config holds the settings for every backend; each engine reads its own part.
type Config struct {
	Language    string
	Whitelist   string
	PageSegMode int
	KoloURL     string
	KoloID      string
	KoloKey     KeyFunc
	GeminiKey   string
	GeminiModel string
}

// Open builds the engine registered under name.
func Open(ctx context.Context, name string, cfg Config) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "tesseract":
		return NewTesseract(TesseractOptions{Language: cfg.Language, Whitelist: cfg.Whitelist, PageSegMode: cfg.PageSegMode})
	case "kolo":
		return NewKolo(cfg.KoloURL, cfg.KoloID, cfg.KoloKey), nil
	case "gemini":
		return NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
}

// Names lists the engine names Open understands.
func Names() []string {
	return []string{"tesseract", "kolo", "gemini"}
}
