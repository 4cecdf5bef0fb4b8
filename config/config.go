// Package config loads service settings from the environment, reading a local
// .env file first when one exists.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"meterscan/pkg/digits"
	"meterscan/pkg/frame"
	"meterscan/pkg/scan"
)

const devJWTSecret = "dev-insecure-secret-change"

type Config struct {
	DBDSN        string
	AutoMigrate  bool
	JWTSecret    string
	Port         string
	UploadBase   string
	KeystorePath string

	OCRBackend   string
	OCRLanguage  string
	OCRWhitelist string
	KoloURL      string
	GeminiModel  string
	GeminiAPIKey string

	ScanThreshold int
	ScanMode      string
	ScanPolicy    string
	ScanMinLength int
	ScanMaxWidth  int
}

// Load reads .env from the working directory or the executable's directory,
// never overriding variables already set, then builds the Config.
func Load() (*Config, error) {
	envPaths := []string{".env"}
	if execPath, err := os.Executable(); err == nil {
		envPaths = append(envPaths, filepath.Join(filepath.Dir(execPath), ".env"))
	}
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("loading %s: %w", envPath, err)
			}
			break
		}
	}

	cfg := &Config{
		DBDSN:        os.Getenv("DB_DSN"),
		AutoMigrate:  getBool("DB_AUTO_MIGRATE", true),
		JWTSecret:    getEnvWithDefault("JWT_SECRET", devJWTSecret),
		Port:         getEnvWithDefault("PORT", "8081"),
		UploadBase:   getEnvWithDefault("UPLOAD_BASE", "uploads"),
		KeystorePath: getEnvWithDefault("KEYSTORE_PATH", "meterscan-keys.db"),
		OCRBackend:   getEnvWithDefault("OCR_BACKEND", "tesseract"),
		OCRLanguage:  getEnvWithDefault("OCR_LANGUAGE", "eng"),
		OCRWhitelist: os.Getenv("OCR_WHITELIST"),
		KoloURL:      os.Getenv("KOLO_URL"),
		GeminiModel:  os.Getenv("GEMINI_MODEL"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		ScanMode:     getEnvWithDefault("SCAN_MODE", digits.DigitsOnly.String()),
		ScanPolicy:   getEnvWithDefault("SCAN_POLICY", digits.DefaultPolicy.ID()),
	}

	var err error
	if cfg.ScanThreshold, err = getInt("SCAN_THRESHOLD", frame.DefaultThreshold); err != nil {
		return nil, err
	}
	if cfg.ScanMinLength, err = getInt("SCAN_MIN_LENGTH", 1); err != nil {
		return nil, err
	}
	if cfg.ScanMaxWidth, err = getInt("SCAN_MAX_WIDTH", 1280); err != nil {
		return nil, err
	}
	if _, err := cfg.ScanOptions(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ScanOptions turns the SCAN_* settings into pipeline options.
func (c *Config) ScanOptions() (scan.Options, error) {
	opts := scan.DefaultOptions()
	mode, err := digits.ParseMode(c.ScanMode)
	if err != nil {
		return opts, fmt.Errorf("SCAN_MODE: %w", err)
	}
	policy, err := digits.Lookup(c.ScanPolicy)
	if err != nil {
		return opts, fmt.Errorf("SCAN_POLICY: %w", err)
	}
	if c.ScanThreshold < 0 || c.ScanThreshold > 255 {
		return opts, fmt.Errorf("SCAN_THRESHOLD: %d out of range 0..255", c.ScanThreshold)
	}
	opts.Threshold = c.ScanThreshold
	opts.Mode = mode
	opts.Policy = policy
	opts.MinLength = c.ScanMinLength
	opts.MaxWidth = c.ScanMaxWidth
	return opts, nil
}

// InsecureSecret reports whether the development JWT secret is in use.
func (c *Config) InsecureSecret() bool {
	return c.JWTSecret == devJWTSecret
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return defaultValue
	case "false", "0", "no":
		return false
	}
	return true
}

func getInt(key string, defaultValue int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
