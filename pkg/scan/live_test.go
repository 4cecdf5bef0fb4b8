package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"meterscan/pkg/frame"
)

type sliceSource struct {
	mu     sync.Mutex
	frames []*frame.Frame
	errs   []error
	closed bool
}

func (s *sliceSource) Next(ctx context.Context) (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil, ErrSourceDone
	}
	f, err := s.frames[0], s.errs[0]
	s.frames, s.errs = s.frames[1:], s.errs[1:]
	return f, err
}

func (s *sliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *sliceSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ = Describe("Live", func() {
	var (
		engine *fakeEngine
		src    *sliceSource
		got    []*Result
	)

	BeforeEach(func() {
		engine = &fakeEngine{text: "S0123"}
		got = nil
	})

	collect := func(r *Result) { got = append(got, r) }

	When("the source runs dry", func() {
		BeforeEach(func() {
			src = &sliceSource{
				frames: []*frame.Frame{grayFrame(4, 4, 10), nil, grayFrame(4, 4, 10)},
				errs:   []error{nil, errors.New("camera busy"), nil},
			}
		})

		It("should report accepted results, skip failures and close the source", func() {
			opts := DefaultOptions()
			opts.MinLength = 5
			err := New(engine, opts).Live(context.Background(), src, time.Millisecond, collect)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].Text).To(Equal("50123"))
			Expect(src.isClosed()).To(BeTrue())
		})
	})

	When("results are too short", func() {
		BeforeEach(func() {
			engine.text = "12"
			src = &sliceSource{
				frames: []*frame.Frame{grayFrame(4, 4, 10)},
				errs:   []error{nil},
			}
		})

		It("should not report them", func() {
			opts := DefaultOptions()
			opts.MinLength = 5
			Expect(New(engine, opts).Live(context.Background(), src, time.Millisecond, collect)).To(Succeed())
			Expect(got).To(BeEmpty())
		})
	})

	When("the context is cancelled", func() {
		It("should stop and close the source", func() {
			frames := make([]*frame.Frame, 1000)
			errs := make([]error, 1000)
			for i := range frames {
				frames[i] = grayFrame(2, 2, 10)
			}
			src = &sliceSource{frames: frames, errs: errs}
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				done <- New(engine, DefaultOptions()).Live(ctx, src, time.Hour, func(*Result) {})
			}()
			Eventually(engine.calls).Should(Equal(1))
			cancel()
			Eventually(done).Should(Receive(BeNil()))
			Expect(src.isClosed()).To(BeTrue())
		})
	})
})
