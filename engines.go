package main

import (
	"context"
	"log"
	"strings"
	"sync"

	"meterscan/config"
	"meterscan/pkg/keystore"
	"meterscan/pkg/ocr"
)

// Key store entry names for cloud backends.
const (
	keyKolo   = "kolo"
	keyGemini = "gemini"
)

// engineSet opens OCR backends on first use and keeps them for later scans.
type engineSet struct {
	mu     sync.Mutex
	cfg    *config.Config
	keys   *keystore.Store
	open   map[string]ocr.Engine
	opener func(ctx context.Context, name string, cfg ocr.Config) (ocr.Engine, error)
}

func newEngineSet(cfg *config.Config, keys *keystore.Store) *engineSet {
	return &engineSet{cfg: cfg, keys: keys, open: map[string]ocr.Engine{}, opener: ocr.Open}
}

func (s *engineSet) ocrConfig() ocr.Config {
	oc := ocr.Config{
		Language:    s.cfg.OCRLanguage,
		Whitelist:   ocr.WhitelistFor(s.cfg.OCRWhitelist),
		KoloURL:     s.cfg.KoloURL,
		GeminiKey:   s.cfg.GeminiAPIKey,
		GeminiModel: s.cfg.GeminiModel,
	}
	if s.keys != nil {
		oc.KoloKey = s.keys.KeyFunc(keyKolo)
		if v, err := s.keys.Get(keyGemini); err == nil && v != "" {
			oc.GeminiKey = v
		}
	} else {
		oc.KoloKey = ocr.StaticKey("")
	}
	return oc
}

// get returns the engine named name, or the configured default for "".
func (s *engineSet) get(name string) (ocr.Engine, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = strings.ToLower(s.cfg.OCRBackend)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.open[name]; ok {
		return e, nil
	}
	// engines outlive the request that opened them
	e, err := s.opener(context.Background(), name, s.ocrConfig())
	if err != nil {
		return nil, err
	}
	s.open[name] = e
	log.Printf("OCR opened backend %s", e.Name())
	return e, nil
}

// reset closes a cached engine so the next scan picks up a changed key.
func (s *engineSet) reset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.open[name]; ok {
		if err := e.Close(); err != nil {
			log.Printf("WARN closing %s: %v", name, err)
		}
		delete(s.open, name)
	}
}

func (s *engineSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, e := range s.open {
		if err := e.Close(); err != nil {
			log.Printf("WARN closing %s: %v", name, err)
		}
	}
	s.open = map[string]ocr.Engine{}
}
