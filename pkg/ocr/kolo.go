package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultKoloURL is the public image-to-text endpoint.
const DefaultKoloURL = "https://api-kolo.site/image_to_text/"

// Kolo calls the cloud image-to-text HTTP API. The request is a multipart form with
// api_key, id and image fields; the text comes back in result_string.
type Kolo struct {
	url    string
	id     string
	key    KeyFunc
	client *http.Client
}

type koloResponse struct {
	ResultString string `json:"result_string"`
	Error        string `json:"error,omitempty"`
}

// NewKolo builds a client. An empty url uses DefaultKoloURL and an empty id uses
// "meter".
func NewKolo(url, id string, key KeyFunc) *Kolo {
	if url == "" {
		url = DefaultKoloURL
	}
	if id == "" {
		id = "meter"
	}
	if key == nil {
		key = StaticKey("")
	}
	return &Kolo{
		url:    url,
		id:     id,
		key:    key,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (k *Kolo) Name() string { return "kolo" }

// Recognize uploads the image and returns result_string.
func (k *Kolo) Recognize(ctx context.Context, image []byte) (string, error) {
	apiKey, err := k.key()
	if err != nil {
		return "", fmt.Errorf("resolving kolo api key: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrMissingAPIKey
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("api_key", apiKey); err != nil {
		return "", fmt.Errorf("writing form: %w", err)
	}
	if err := mw.WriteField("id", k.id); err != nil {
		return "", fmt.Errorf("writing form: %w", err)
	}
	fw, err := mw.CreateFormFile("image", "frame.png")
	if err != nil {
		return "", fmt.Errorf("writing form: %w", err)
	}
	if _, err := fw.Write(image); err != nil {
		return "", fmt.Errorf("writing form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("writing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.url, &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := k.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling kolo API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("kolo API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out koloResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding kolo response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("kolo API error: %s", out.Error)
	}
	log.Printf("OCR kolo key=%s snippet=%q", RedactKey(apiKey), snippet(out.ResultString, 80))
	if strings.TrimSpace(out.ResultString) == "" {
		return "", ErrNoText
	}
	return out.ResultString, nil
}

func (k *Kolo) Close() error { return nil }
