// Package frame holds captured pixel buffers and the black/white preprocessing
// applied before text recognition.
package frame

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/heic"
)

// Frame is a non-premultiplied RGBA pixel grid, row-major, 4 bytes per pixel.
type Frame struct {
	Pix    []byte
	Width  int
	Height int
}

// Validate reports whether Pix matches Width*Height*4.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidArgument)
	}
	return checkShape(f.Pix, f.Width, f.Height)
}

// FromImage copies any decoded image into a Frame.
func FromImage(img image.Image) *Frame {
	n := imaging.Clone(img)
	w, h := n.Rect.Dx(), n.Rect.Dy()
	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		copy(pix[y*w*4:(y+1)*w*4], n.Pix[y*n.Stride:y*n.Stride+w*4])
	}
	return &Frame{Pix: pix, Width: w, Height: h}
}

// Image wraps the frame buffer without copying it.
func (f *Frame) Image() *image.NRGBA {
	return &image.NRGBA{Pix: f.Pix, Stride: f.Width * 4, Rect: image.Rect(0, 0, f.Width, f.Height)}
}

// Fit downscales the frame to maxWidth keeping the aspect ratio. Frames that are
// already narrow enough, or a non-positive maxWidth, return f itself.
func (f *Frame) Fit(maxWidth int) *Frame {
	if maxWidth <= 0 || f.Width <= maxWidth {
		return f
	}
	return FromImage(imaging.Resize(f.Image(), maxWidth, 0, imaging.Lanczos))
}

// EncodePNG encodes the frame as PNG, the format handed to recognition engines.
func (f *Frame) EncodePNG() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, f.Image(), imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads a JPEG, PNG, GIF or HEIC/HEIF capture. EXIF orientation is applied
// so phone photos come out upright.
func Decode(r io.Reader, contentType string) (*Frame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidArgument)
	}
	var img image.Image
	if isHEIC(data, contentType) {
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding heic: %w", err)
		}
	} else {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}
	return FromImage(img), nil
}

// isHEIC checks the ftyp brand at offset 4 and falls back to the declared type.
func isHEIC(data []byte, contentType string) bool {
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		switch string(data[8:12]) {
		case "heic", "heix", "heif", "mif1", "msf1":
			return true
		}
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.Contains(ct, "heic") || strings.Contains(ct, "heif")
}
