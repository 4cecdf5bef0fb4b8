package ocr

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Whitelists matching the two scanning modes.
const (
	DigitWhitelist = "0123456789"
	TextWhitelist  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz -.,/:@()"
)

// WhitelistFor resolves a whitelist setting: "digits" and "text" name the
// built-in sets, anything else is used literally.
func WhitelistFor(setting string) string {
	switch strings.ToLower(strings.TrimSpace(setting)) {
	case "digits", "digits-only":
		return DigitWhitelist
	case "text", "alphanumeric":
		return TextWhitelist
	}
	return setting
}

// TesseractOptions configures the local engine. Zero values mean English, no
// whitelist and single-block page segmentation.
type TesseractOptions struct {
	Language    string
	Whitelist   string
	PageSegMode int
}

// Tesseract runs the local Tesseract library. One client is kept for the life of
// the engine; calls are serialised because the client is not goroutine-safe.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
	opts   TesseractOptions
}

// NewTesseract creates the client and applies the options once.
func NewTesseract(opts TesseractOptions) (*Tesseract, error) {
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.PageSegMode == 0 {
		opts.PageSegMode = int(gosseract.PSM_SINGLE_BLOCK)
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(opts.Language); err != nil {
		client.Close()
		return nil, fmt.Errorf("tesseract language %q: %w", opts.Language, err)
	}
	if opts.Whitelist != "" {
		if err := client.SetWhitelist(opts.Whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("tesseract whitelist: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(opts.PageSegMode)); err != nil {
		client.Close()
		return nil, fmt.Errorf("tesseract page seg mode %d: %w", opts.PageSegMode, err)
	}
	return &Tesseract{client: client, opts: opts}, nil
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize runs OCR on the image bytes.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("tesseract set image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	log.Printf("OCR tesseract lang=%s snippet=%q", t.opts.Language, snippet(text, 80))
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
