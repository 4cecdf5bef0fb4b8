// Package cliflags declares the recognition flags shared by the batch tools.
package cliflags

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/peterbourgon/ff/v4"

	"meterscan/pkg/digits"
	"meterscan/pkg/keystore"
	"meterscan/pkg/ocr"
	"meterscan/pkg/scan"
)

// EnvPrefix is the environment prefix every tool accepts, e.g. METERSCAN_BACKEND.
const EnvPrefix = "METERSCAN"

type Engine struct {
	backend     *string
	lang        *string
	whitelist   *string
	koloURL     *string
	keystore    *string
	geminiKey   *string
	geminiModel *string
	mode        *string
	policy      *string
	threshold   *int
	minLength   *int
	maxWidth    *int
	raw         *bool
}

// Register adds the backend and scan flags to fs.
func Register(fs *ff.FlagSet) *Engine {
	return &Engine{
		backend:     fs.StringLong("backend", "tesseract", "OCR backend: tesseract, kolo or gemini"),
		lang:        fs.StringLong("lang", "eng", "Tesseract language"),
		whitelist:   fs.StringLong("whitelist", "", "Tesseract whitelist: digits, text or literal characters"),
		koloURL:     fs.StringLong("kolo-url", ocr.DefaultKoloURL, "Kolo OCR endpoint"),
		keystore:    fs.StringLong("keystore", "meterscan-keys.db", "API key store file (kolo, gemini keys)"),
		geminiKey:   fs.StringLong("gemini-key", "", "Gemini API key (or set GEMINI_API_KEY)"),
		geminiModel: fs.StringLong("gemini-model", "", "Gemini model name"),
		mode:        fs.StringLong("mode", digits.DigitsOnly.String(), "digits-only or alphanumeric"),
		policy:      fs.StringLong("policy", digits.DefaultPolicy.ID(), "confusion policy id"),
		threshold:   fs.IntLong("threshold", 128, "binarization threshold 0..255"),
		minLength:   fs.IntLong("min-length", 1, "minimum accepted text length"),
		maxWidth:    fs.IntLong("max-width", 1280, "downscale wider captures to this width"),
		raw:         fs.BoolLong("raw", "skip binarization"),
	}
}

// Options builds scan options from the parsed flags.
func (e *Engine) Options() (scan.Options, error) {
	opts := scan.DefaultOptions()
	mode, err := digits.ParseMode(*e.mode)
	if err != nil {
		return opts, err
	}
	policy, err := digits.Lookup(*e.policy)
	if err != nil {
		return opts, err
	}
	if *e.threshold < 0 || *e.threshold > 255 {
		return opts, fmt.Errorf("threshold %d out of range 0..255", *e.threshold)
	}
	opts.Mode, opts.Policy = mode, policy
	opts.Threshold = *e.threshold
	opts.MinLength = *e.minLength
	opts.MaxWidth = *e.maxWidth
	opts.SkipPreprocess = *e.raw
	return opts, nil
}

// Pipeline opens the selected backend. The returned func releases it and the
// key store; calling it more than once is harmless.
func (e *Engine) Pipeline(ctx context.Context) (*scan.Pipeline, func(), error) {
	opts, err := e.Options()
	if err != nil {
		return nil, nil, err
	}
	cfg := ocr.Config{
		Language:    *e.lang,
		Whitelist:   ocr.WhitelistFor(*e.whitelist),
		KoloURL:     *e.koloURL,
		KoloKey:     ocr.StaticKey(""),
		GeminiKey:   *e.geminiKey,
		GeminiModel: *e.geminiModel,
	}
	var store *keystore.Store
	if *e.backend == "kolo" || *e.backend == "gemini" {
		if store, err = keystore.Open(*e.keystore); err != nil {
			return nil, nil, err
		}
		cfg.KoloKey = store.KeyFunc("kolo")
		if cfg.GeminiKey == "" {
			cfg.GeminiKey, _ = store.KeyFunc("gemini")()
		}
	}
	if cfg.GeminiKey == "" {
		cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
	engine, err := ocr.Open(ctx, *e.backend, cfg)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}
	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			if err := engine.Close(); err != nil {
				log.Printf("WARN closing %s: %v", engine.Name(), err)
			}
			if store != nil {
				store.Close()
			}
		})
	}
	return scan.New(engine, opts), closeFn, nil
}
