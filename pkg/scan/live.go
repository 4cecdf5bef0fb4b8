package scan

import (
	"context"
	"errors"
	"log"
	"time"

	"meterscan/pkg/frame"
)

// Source is a capture session producing frames on demand.
type Source interface {
	Next(ctx context.Context) (*frame.Frame, error)
	Close() error
}

// ErrSourceDone may be returned by Source.Next when no more frames will come.
var ErrSourceDone = errors.New("source exhausted")

// Live scans a frame from src every interval and calls fn with each accepted
// result. Frames that fail to capture or recognise are skipped. The source is
// closed when Live returns; cancellation of ctx and ErrSourceDone end the loop
// without error.
func (p *Pipeline) Live(ctx context.Context, src Source, interval time.Duration, fn func(*Result)) error {
	defer func() {
		if err := src.Close(); err != nil {
			log.Printf("WARN live: closing source: %v", err)
		}
	}()
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		f, err := src.Next(ctx)
		switch {
		case errors.Is(err, ErrSourceDone), ctx.Err() != nil:
			return nil
		case err != nil:
			log.Printf("WARN live: capture failed: %v", err)
		default:
			res, err := p.Scan(ctx, f)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				log.Printf("WARN live: scan failed: %v", err)
			} else if res.Accepted {
				fn(res)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
