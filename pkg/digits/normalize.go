// Package digits cleans raw OCR output into meter readings or plain text.
package digits

import (
	"fmt"
	"strings"
	"unicode"
)

// Mode selects the substitution behaviour and the output alphabet.
type Mode int

const (
	// DigitsOnly applies the confusion table and keeps 0-9.
	DigitsOnly Mode = iota
	// Alphanumeric keeps ASCII letters, digits and a small punctuation set.
	Alphanumeric
)

func (m Mode) String() string {
	switch m {
	case DigitsOnly:
		return "digits-only"
	case Alphanumeric:
		return "alphanumeric"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts "digits-only" or "alphanumeric". An empty string is digits-only.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "digits-only", "digits":
		return DigitsOnly, nil
	case "alphanumeric", "text":
		return Alphanumeric, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

const textPunct = " .,/:@()-"

// Normalize cleans text with the default policy.
func Normalize(text string, mode Mode) string {
	return NormalizeWith(text, mode, DefaultPolicy)
}

// NormalizeWith cleans text using policy p. In digits-only mode each rune is
// substituted at most once, then anything outside 0-9 is dropped. Alphanumeric
// mode only filters. The result is trimmed. A nil policy means DefaultPolicy.
func NormalizeWith(text string, mode Mode, p *Policy) string {
	if p == nil {
		p = DefaultPolicy
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if mode == DigitsOnly {
			key := r
			if p.CaseFold {
				key = unicode.ToUpper(r)
			}
			if to, ok := p.substitute(key); ok {
				r = to
			}
		}
		if keep(r, mode) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func keep(r rune, mode Mode) bool {
	if r >= '0' && r <= '9' {
		return true
	}
	if mode != Alphanumeric {
		return false
	}
	if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
		return true
	}
	return strings.ContainsRune(textPunct, r)
}

// Sufficient reports whether a normalized result is long enough for the caller
// to accept. Length is counted in runes.
func Sufficient(text string, minAcceptableLength int) bool {
	return len([]rune(text)) >= minAcceptableLength
}
