package main

import (
	"context"
	"runtime"
	"time"
)

// X11 selections are served by the process that owns them, so on Linux the
// copied text only survives while this process is running.
func needsHold() bool { return runtime.GOOS == "linux" }

// holdClipboard blocks until the clipboard is overwritten, ctx ends or hold
// elapses, and reports which one happened.
func holdClipboard(ctx context.Context, changed <-chan struct{}, hold time.Duration) string {
	timer := time.NewTimer(hold)
	defer timer.Stop()
	select {
	case <-changed:
		return "replaced"
	case <-ctx.Done():
		return "interrupted"
	case <-timer.C:
		return "expired"
	}
}
