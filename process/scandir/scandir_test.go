package scandir

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"meterscan/models"
	"meterscan/pkg/scan"
)

type memStore struct {
	mu   sync.Mutex
	recs map[string]models.Scan
	next uint
}

func newMemStore() *memStore { return &memStore{recs: map[string]models.Scan{}} }

func (m *memStore) AcceptedFiles(uint) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for n, r := range m.recs {
		if r.Accepted {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memStore) Save(rec *models.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.recs[rec.FileName]; ok {
		rec.ID = old.ID
	} else {
		m.next++
		rec.ID = m.next
	}
	m.recs[rec.FileName] = *rec
	return nil
}

type countingEngine struct {
	mu    sync.Mutex
	text  string
	calls int
}

func (e *countingEngine) Name() string { return "counting" }
func (e *countingEngine) Recognize(context.Context, []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.text, nil
}
func (e *countingEngine) Close() error { return nil }

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save %s: %v", path, err)
	}
}

func testPipeline(e *countingEngine, minLen int) *scan.Pipeline {
	opts := scan.DefaultOptions()
	opts.MinLength = minLen
	return scan.New(e, opts)
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.JPG", "a.png", "c.heic", "notes.txt", ".hidden.png", "x.ocr.png"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	_ = os.Mkdir(filepath.Join(dir, "sub.png"), 0o755)
	got := ListImageFiles(dir)
	want := []string{"a.png", "b.JPG", "c.heic"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("ListImageFiles = %v, want %v", got, want)
	}
	if ListImageFiles(filepath.Join(dir, "missing")) != nil {
		t.Fatalf("missing dir should list nothing")
	}
}

func TestDebounceCoalescesEvents(t *testing.T) {
	in := make(chan string)
	out := make(chan string, 10)
	go debounce(in, out, 30*time.Millisecond)
	in <- "a.png"
	in <- "b.png"
	in <- "a.png"

	var got []string
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case n := <-out:
			got = append(got, n)
		case <-deadline:
			t.Fatalf("timed out, got %v", got)
		}
	}
	close(in)
	for n := range out {
		got = append(got, n)
	}
	sort.Strings(got)
	if strings.Join(got, ",") != "a.png,b.png" {
		t.Fatalf("debounced = %v", got)
	}
}

func TestDebounceFlushesOnClose(t *testing.T) {
	in := make(chan string)
	out := make(chan string, 10)
	go debounce(in, out, time.Hour)
	in <- "late.png"
	close(in)
	var got []string
	for n := range out {
		got = append(got, n)
	}
	if len(got) != 1 || got[0] != "late.png" {
		t.Fatalf("flush = %v", got)
	}
}

func TestProcessFileRecordsAndMoves(t *testing.T) {
	dir := t.TempDir()
	processed := t.TempDir()
	writePNG(t, filepath.Join(dir, "m1.png"), imaging.New(20, 10, color.NRGBA{200, 200, 200, 255}))

	store := newMemStore()
	eng := &countingEngine{text: "0O4S7"}
	s := New(store, 7, testPipeline(eng, 5), Options{Dir: dir, ProcessedDir: processed, Workers: 2, Move: true})
	s.Run(context.Background())

	rec, ok := store.recs["m1.png"]
	if !ok {
		t.Fatalf("scan not recorded")
	}
	if rec.UserID != 7 || rec.Text != "00457" || !rec.Accepted || rec.Failed {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Backend != "counting" || rec.Policy != "printed/v1" || rec.ContentType != "image/png" {
		t.Fatalf("unexpected metadata: %+v", rec)
	}
	if rec.StorePath != filepath.Base(dir)+"/m1.png" {
		t.Fatalf("store path = %q", rec.StorePath)
	}
	if _, err := os.Stat(filepath.Join(processed, "m1.png")); err != nil {
		t.Fatalf("file not moved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "m1.png")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("source should be gone, stat err=%v", err)
	}

	s.ProcessFile(context.Background(), "m1.png")
	if eng.calls != 1 {
		t.Fatalf("accepted file scanned again, calls=%d", eng.calls)
	}
}

func TestProcessFileKeepsUnacceptedAndFailed(t *testing.T) {
	dir := t.TempDir()
	processed := t.TempDir()
	writePNG(t, filepath.Join(dir, "short.png"), imaging.New(8, 8, color.NRGBA{255, 255, 255, 255}))
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newMemStore()
	eng := &countingEngine{text: "12"}
	s := New(store, 1, testPipeline(eng, 5), Options{Dir: dir, ProcessedDir: processed, Workers: 1, Move: true})
	s.Run(context.Background())

	if rec := store.recs["short.png"]; rec.Accepted || rec.Failed || rec.Text != "12" {
		t.Fatalf("short: %+v", rec)
	}
	broken := store.recs["broken.jpg"]
	if !broken.Failed || broken.FailedReason == "" {
		t.Fatalf("broken: %+v", broken)
	}
	if got := ListImageFiles(dir); len(got) != 2 {
		t.Fatalf("unaccepted files must stay in place, dir has %v", got)
	}

	// an unaccepted file is retried on the next pass
	eng.text = "12345"
	s.ProcessFile(context.Background(), "short.png")
	if rec := store.recs["short.png"]; !rec.Accepted {
		t.Fatalf("retry not accepted: %+v", rec)
	}
}

func TestPreloadSkipsAcceptedFiles(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "old.png"), imaging.New(4, 4, color.NRGBA{0, 0, 0, 255}))
	store := newMemStore()
	store.recs["old.png"] = models.Scan{FileName: "old.png", Accepted: true}
	eng := &countingEngine{text: "1"}
	s := New(store, 1, testPipeline(eng, 1), Options{Dir: dir})
	if err := s.Preload(); err != nil {
		t.Fatal(err)
	}
	s.Run(context.Background())
	if eng.calls != 0 {
		t.Fatalf("preloaded file was scanned")
	}
}

func TestMoveToProcessedSmallFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, src, imaging.New(4, 4, color.NRGBA{1, 2, 3, 255}))
	before, _ := os.ReadFile(src)
	dst := t.TempDir()
	if err := MoveToProcessed(src, dst); err != nil {
		t.Fatal(err)
	}
	after, err := os.ReadFile(filepath.Join(dst, "a.png"))
	if err != nil || !bytes.Equal(before, after) {
		t.Fatalf("small file should move unchanged (err=%v)", err)
	}
}

func TestMoveToProcessedRecompressesLargeFile(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, 700, 700))
	for i := range img.Pix {
		img.Pix[i] = byte(rng.Intn(256))
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	src := filepath.Join(t.TempDir(), "big.png")
	writePNG(t, src, img)
	if fi, _ := os.Stat(src); fi.Size() <= maxProcessedBytes {
		t.Skipf("fixture only %d bytes", fi.Size())
	}
	dst := t.TempDir()
	if err := MoveToProcessed(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("source should be removed")
	}
	out, err := imaging.Open(filepath.Join(dst, "big.png"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds().Dx() >= 700 {
		t.Fatalf("expected downscale, width=%d", out.Bounds().Dx())
	}
}

func TestDryRun(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), imaging.New(4, 4, color.NRGBA{255, 255, 255, 255}))
	var buf bytes.Buffer
	if err := DryRun(context.Background(), dir, nil, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "1 candidate files") || !strings.Contains(buf.String(), "a.png") {
		t.Fatalf("listing: %s", buf.String())
	}
	buf.Reset()
	eng := &countingEngine{text: "B8"}
	if err := DryRun(context.Background(), dir, testPipeline(eng, 1), &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "a.png\t88\taccepted=true") {
		t.Fatalf("simulated scan: %s", buf.String())
	}
}
