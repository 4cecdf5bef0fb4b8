package scan

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"meterscan/pkg/digits"
	"meterscan/pkg/frame"
	"meterscan/pkg/ocr"
)

type fakeEngine struct {
	mu     sync.Mutex
	text   string
	err    error
	images [][]byte
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, image []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, image)
	return f.text, f.err
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.images)
}

func grayFrame(w, h int, v uint8) *frame.Frame {
	return frame.FromImage(imaging.New(w, h, color.NRGBA{v, v, v, 255}))
}

var _ = Describe("Pipeline", func() {
	var (
		engine *fakeEngine
		opts   Options
		input  *frame.Frame
		result *Result
		err    error
	)

	BeforeEach(func() {
		engine = &fakeEngine{text: "O1I5B"}
		opts = DefaultOptions()
		input = grayFrame(32, 16, 140)
	})

	JustBeforeEach(func() {
		result, err = New(engine, opts).Scan(context.Background(), input)
	})

	When("the engine returns confusable text", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should normalize the text", func() {
			Expect(result.RawText).To(Equal("O1I5B"))
			Expect(result.Text).To(Equal("01158"))
			Expect(result.Accepted).To(BeTrue())
		})

		It("should record how the scan was made", func() {
			Expect(result.Backend).To(Equal("fake"))
			Expect(result.Policy).To(Equal("printed/v1"))
			Expect(result.Mode).To(Equal(digits.DigitsOnly))
			Expect(result.Threshold).To(Equal(128))
			Expect(result.Width).To(Equal(32))
			Expect(result.Height).To(Equal(16))
		})

		It("should send a binarized PNG to the engine", func() {
			Expect(engine.calls()).To(Equal(1))
			sent, derr := frame.Decode(bytes.NewReader(engine.images[0]), "image/png")
			Expect(derr).NotTo(HaveOccurred())
			for i := 0; i < len(sent.Pix); i += 4 {
				Expect(sent.Pix[i]).To(BeEquivalentTo(255))
			}
		})
	})

	When("the threshold is above the frame luminance", func() {
		BeforeEach(func() {
			opts.Threshold = 140
		})

		It("should send a black frame", func() {
			sent, derr := frame.Decode(bytes.NewReader(engine.images[0]), "image/png")
			Expect(derr).NotTo(HaveOccurred())
			Expect(sent.Pix[0]).To(BeEquivalentTo(0))
		})
	})

	When("preprocessing is skipped", func() {
		BeforeEach(func() {
			opts.SkipPreprocess = true
		})

		It("should send the original pixels", func() {
			sent, derr := frame.Decode(bytes.NewReader(engine.images[0]), "image/png")
			Expect(derr).NotTo(HaveOccurred())
			Expect(sent.Pix[0]).To(BeEquivalentTo(140))
		})
	})

	When("the result is shorter than the minimum length", func() {
		BeforeEach(func() {
			opts.MinLength = 6
		})

		It("should return the text without accepting it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Text).To(Equal("01158"))
			Expect(result.Accepted).To(BeFalse())
		})
	})

	When("the engine sees only noise", func() {
		BeforeEach(func() {
			engine.text = "~~ ## ~~"
		})

		It("should return an empty, unaccepted result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Text).To(BeEmpty())
			Expect(result.Accepted).To(BeFalse())
		})
	})

	When("alphanumeric mode is selected", func() {
		BeforeEach(func() {
			engine.text = "  Serial: AB-12 \n"
			opts.Mode = digits.Alphanumeric
		})

		It("should keep letters", func() {
			Expect(result.Text).To(Equal("Serial: AB-12"))
		})
	})

	When("the frame is wider than MaxWidth", func() {
		BeforeEach(func() {
			input = grayFrame(400, 100, 200)
			opts.MaxWidth = 200
		})

		It("should downscale before recognition", func() {
			Expect(result.Width).To(Equal(200))
			Expect(result.Height).To(Equal(50))
		})
	})

	When("the frame buffer is malformed", func() {
		BeforeEach(func() {
			input = &frame.Frame{Pix: make([]byte, 10), Width: 2, Height: 2}
		})

		It("should return a capture error", func() {
			Expect(err).To(MatchError(ErrCapture))
			Expect(errors.Is(err, frame.ErrInvalidArgument)).To(BeTrue())
		})

		It("should not call the engine", func() {
			Expect(engine.calls()).To(Equal(0))
		})
	})

	When("the frame dimensions overflow the buffer size", func() {
		BeforeEach(func() {
			input = &frame.Frame{Width: math.MaxInt/8 + 1, Height: 8}
		})

		It("should return a capture error without resizing", func() {
			Expect(err).To(MatchError(ErrCapture))
			Expect(errors.Is(err, frame.ErrInvalidArgument)).To(BeTrue())
			Expect(engine.calls()).To(Equal(0))
		})
	})

	When("the threshold is out of range", func() {
		BeforeEach(func() {
			opts.Threshold = 300
		})

		It("should return a capture error", func() {
			Expect(err).To(MatchError(ErrCapture))
			Expect(engine.calls()).To(Equal(0))
		})
	})

	When("the engine finds no text", func() {
		BeforeEach(func() {
			engine.text, engine.err = "", ocr.ErrNoText
		})

		It("should return an empty, unaccepted result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Text).To(BeEmpty())
			Expect(result.Accepted).To(BeFalse())
		})
	})

	When("the engine fails", func() {
		BeforeEach(func() {
			engine.err = errors.New("backend down")
		})

		It("should wrap the engine error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("recognize: backend down"))
			Expect(errors.Is(err, ErrCapture)).To(BeFalse())
		})
	})
})

var _ = Describe("ScanBytes", func() {
	It("should decode and scan an uploaded PNG", func() {
		var buf bytes.Buffer
		Expect(imaging.Encode(&buf, imaging.New(10, 10, color.NRGBA{255, 255, 255, 255}), imaging.PNG)).To(Succeed())
		res, err := New(&fakeEngine{text: "12345"}, DefaultOptions()).ScanBytes(context.Background(), buf.Bytes(), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Text).To(Equal("12345"))
	})

	It("should report undecodable uploads as capture errors", func() {
		_, err := New(&fakeEngine{}, DefaultOptions()).ScanBytes(context.Background(), []byte("garbage"), "image/jpeg")
		Expect(err).To(MatchError(ErrCapture))
	})
})
