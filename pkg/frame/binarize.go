package frame

import (
	"fmt"
	"math"
)

// DefaultThreshold is the luminance cut used when the caller has no preference.
const DefaultThreshold = 128

// Luma weights scaled by 1000 so the comparison stays in integers.
const (
	lumaR = 299
	lumaG = 587
	lumaB = 114
)

// Luma returns 0.299*R + 0.587*G + 0.114*B.
func Luma(r, g, b uint8) float64 {
	return float64(lumaR*int(r)+lumaG*int(g)+lumaB*int(b)) / 1000
}

// Binarize performs a global threshold on an RGBA buffer and returns a new buffer.
// A pixel becomes white (255) when its luminance is strictly above threshold, black
// otherwise. Alpha is copied unchanged and pix is not modified.
func Binarize(pix []byte, width, height, threshold int) ([]byte, error) {
	if err := checkShape(pix, width, height); err != nil {
		return nil, err
	}
	if threshold < 0 || threshold > 255 {
		return nil, fmt.Errorf("%w: threshold %d outside 0..255", ErrInvalidArgument, threshold)
	}
	cut := threshold * 1000
	out := make([]byte, len(pix))
	for i := 0; i < len(pix); i += 4 {
		l := lumaR*int(pix[i]) + lumaG*int(pix[i+1]) + lumaB*int(pix[i+2])
		var v byte
		if l > cut {
			v = 255
		}
		out[i], out[i+1], out[i+2] = v, v, v
		out[i+3] = pix[i+3]
	}
	return out, nil
}

// Binarize returns a thresholded copy of f.
func (f *Frame) Binarize(threshold int) (*Frame, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrInvalidArgument)
	}
	pix, err := Binarize(f.Pix, f.Width, f.Height, threshold)
	if err != nil {
		return nil, err
	}
	return &Frame{Pix: pix, Width: f.Width, Height: f.Height}, nil
}

func checkShape(pix []byte, width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidArgument, width, height)
	}
	if width > 0 && height > math.MaxInt/4/width {
		return fmt.Errorf("%w: dimensions %dx%d too large", ErrInvalidArgument, width, height)
	}
	if len(pix)%4 != 0 {
		return fmt.Errorf("%w: buffer length %d not a multiple of 4", ErrInvalidArgument, len(pix))
	}
	if len(pix) != width*height*4 {
		return fmt.Errorf("%w: buffer length %d, want %d for %dx%d", ErrInvalidArgument, len(pix), width*height*4, width, height)
	}
	return nil
}
