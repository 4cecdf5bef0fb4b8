package main

import (
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.design/x/clipboard"

	"meterscan/process/cliflags"
)

// Scans one image and prints the raw and cleaned text, optionally copying the
// cleaned text to the clipboard.
func main() {
	fs := ff.NewFlagSet("scan-file")
	var (
		copyText = fs.BoolLong("copy", "copy the normalized text to the clipboard")
		showRaw  = fs.BoolLong("show-raw", "also print the raw engine output")
		holdSecs = fs.IntLong("copy-hold", 30, "on Linux, seconds to keep serving the copied text (ends early on Ctrl-C or when something else is copied)")
	)
	engineFlags := cliflags.Register(fs)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix(cliflags.EnvPrefix)); err != nil || len(fs.GetArgs()) != 1 {
		fmt.Fprintf(os.Stderr, "usage: scan-file [flags] <image>\n%s\n", ffhelp.Flags(fs))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
	path := fs.GetArgs()[0]
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read: %v", err)
	}

	ctx := context.Background()
	p, closeEngine, err := engineFlags.Pipeline(ctx)
	if err != nil {
		log.Fatalf("ocr: %v", err)
	}
	defer closeEngine()

	res, err := p.ScanBytes(ctx, data, mime.TypeByExtension(filepath.Ext(path)))
	if err != nil {
		closeEngine()
		log.Fatalf("scan: %v", err)
	}
	if *showRaw {
		fmt.Printf("raw: %q\n", res.RawText)
	}
	fmt.Println(res.Text)
	if !res.Accepted {
		fmt.Fprintf(os.Stderr, "text shorter than --min-length, not accepted\n")
		closeEngine()
		os.Exit(2)
	}
	if *copyText {
		if err := clipboard.Init(); err != nil {
			log.Printf("WARN clipboard unavailable: %v", err)
			return
		}
		changed := clipboard.Write(clipboard.FmtText, []byte(res.Text))
		if !needsHold() {
			log.Printf("copied %q to clipboard", res.Text)
			return
		}
		log.Printf("copied %q to clipboard, holding for %ds (Ctrl-C to stop)", res.Text, *holdSecs)
		closeEngine()
		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		reason := holdClipboard(sigCtx, changed, time.Duration(*holdSecs)*time.Second)
		log.Printf("clipboard released (%s)", reason)
	}
}
