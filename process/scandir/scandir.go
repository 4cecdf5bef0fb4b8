// Package scandir scans a directory of meter photos for one user, records each
// result and optionally keeps watching the directory for new captures.
package scandir

import (
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"meterscan/models"
	"meterscan/pkg/scan"
)

// Options control a directory run.
type Options struct {
	Dir          string
	ProcessedDir string // default: "processed" next to Dir
	Workers      int    // default: NumCPU
	Move         bool   // move accepted files to ProcessedDir
	Verbose      bool
	Debounce     time.Duration // default: 300ms
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.NumCPU()
	}
	return o.Workers
}

func (o Options) processedDir() string {
	if o.ProcessedDir != "" {
		return o.ProcessedDir
	}
	return filepath.Join(filepath.Dir(filepath.Clean(o.Dir)), "processed")
}

func (o Options) debounce() time.Duration {
	if o.Debounce <= 0 {
		return 300 * time.Millisecond
	}
	return o.Debounce
}

// Scanner runs the pipeline over the files of one directory.
type Scanner struct {
	store    Store
	userID   uint
	pipeline *scan.Pipeline
	opts     Options

	mu   sync.RWMutex
	done map[string]bool // file name -> accepted scan recorded
}

func New(store Store, userID uint, p *scan.Pipeline, opts Options) *Scanner {
	return &Scanner{store: store, userID: userID, pipeline: p, opts: opts, done: map[string]bool{}}
}

func (s *Scanner) logV(format string, args ...any) {
	if s.opts.Verbose {
		log.Printf(format, args...)
	}
}

// Preload caches which files already have an accepted scan, so the initial
// pass does not query per file.
func (s *Scanner) Preload() error {
	names, err := s.store.AcceptedFiles(s.userID)
	if err != nil {
		return fmt.Errorf("preload: %w", err)
	}
	s.mu.Lock()
	for _, n := range names {
		s.done[n] = true
	}
	s.mu.Unlock()
	log.Printf("Preloaded: accepted scans=%d", len(names))
	return nil
}

func (s *Scanner) isDone(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done[name]
}

func (s *Scanner) markDone(name string) {
	s.mu.Lock()
	s.done[name] = true
	s.mu.Unlock()
}

// Run processes the current directory contents with the worker pool.
func (s *Scanner) Run(ctx context.Context) {
	files := ListImageFiles(s.opts.Dir)
	log.Printf("Scanning %d files (workers=%d)", len(files), s.opts.workers())
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, f := range files {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	s.runWorkers(ctx, ch)
}

func (s *Scanner) runWorkers(ctx context.Context, files <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < s.opts.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range files {
				if ctx.Err() != nil {
					continue
				}
				s.ProcessFile(ctx, name)
			}
		}()
	}
	wg.Wait()
}

// Watch feeds newly created files to the worker pool until ctx is cancelled.
func (s *Scanner) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(s.opts.Dir); err != nil {
		return err
	}
	log.Printf("WATCH %s (debounced) ...", s.opts.Dir)

	created := make(chan string, 256)
	go func() {
		defer close(created)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if name := filepath.Base(ev.Name); isSupportedExt(name) {
					created <- name
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("WATCH error: %v", err)
			}
		}
	}()

	stable := make(chan string, 256)
	go debounce(created, stable, s.opts.debounce())
	s.runWorkers(ctx, stable)
	return nil
}

// debounce emits a name once no event for it has arrived for quiet. Pending
// names are flushed when in closes.
func debounce(in <-chan string, out chan<- string, quiet time.Duration) {
	defer close(out)
	tick := quiet / 2
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	pending := map[string]time.Time{}
	for {
		select {
		case name, ok := <-in:
			if !ok {
				for n := range pending {
					out <- n
				}
				return
			}
			pending[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) >= quiet {
					out <- name
					delete(pending, name)
				}
			}
		}
	}
}

// ProcessFile scans one file and records the result. Files with an accepted
// scan are skipped; failed or unaccepted ones are scanned again.
func (s *Scanner) ProcessFile(ctx context.Context, name string) {
	if s.isDone(name) {
		s.logV("SKIP already scanned %s", name)
		return
	}
	path := filepath.Join(s.opts.Dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("WARN read %s: %v", name, err)
		return
	}
	rec := models.Scan{
		UserID:      s.userID,
		FileName:    name,
		StorePath:   filepath.ToSlash(filepath.Join(filepath.Base(s.opts.Dir), name)),
		ContentType: mimeFromExt(name),
	}
	res, err := s.pipeline.ScanBytes(ctx, data, rec.ContentType)
	if err != nil {
		s.logV("SCAN fail %s: %v", name, err)
	}
	rec.Record(s.pipeline.Backend(), s.pipeline.Options(), res, err)
	if err := s.store.Save(&rec); err != nil {
		log.Printf("ERROR save scan %s: %v", name, err)
		return
	}
	if !rec.Accepted {
		s.logV("SCAN not accepted %s text=%q", name, rec.Text)
		return
	}
	s.markDone(name)
	log.Printf("SCAN id=%d file=%s text=%s", rec.ID, name, rec.Text)
	if s.opts.Move {
		if err := MoveToProcessed(path, s.opts.processedDir()); err != nil {
			log.Printf("WARN failed to move processed file %s: %v", name, err)
		} else {
			s.logV("moved processed %s to %s", name, s.opts.processedDir())
		}
	}
}

// ListImageFiles returns the supported image files in dir, sorted.
func ListImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func isSupportedExt(name string) bool {
	// editors and OCR tools drop temp files next to the originals
	if strings.HasPrefix(name, ".") || strings.Contains(name, ".ocr.") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".heic", ".heif":
		return true
	}
	return false
}

func mimeFromExt(name string) string {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".heic", ".heif":
		return "image/" + ext[1:]
	default:
		return mime.TypeByExtension(ext)
	}
}
