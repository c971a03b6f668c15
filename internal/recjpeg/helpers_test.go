package recjpeg

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/acm19/recjpeg/internal/logger"
)

// testImage returns a w x h gradient.
func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 96, A: 255})
		}
	}
	return img
}

// writeTestPNG writes a w x h PNG to path.
func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, testImage(w, h)); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
}

// writeTestJPEG writes a w x h JPEG at quality 100 to path.
func writeTestJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, testImage(w, h), &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return data
}

func assertNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Errorf("Expected %s not to exist, stat error: %v", path, err)
	}
}

// fakeConverter writes fixed content to the output and records how many
// conversions run at once.
type fakeConverter struct {
	content []byte
	delay   time.Duration
	fail    map[string]bool

	mu       sync.Mutex
	requests []ConversionRequest
	running  atomic.Int32
	peak     atomic.Int32
}

func newFakeConverter() *fakeConverter {
	return &fakeConverter{content: []byte("converted"), fail: map[string]bool{}}
}

func (c *fakeConverter) Convert(ctx context.Context, req ConversionRequest) error {
	n := c.running.Add(1)
	defer c.running.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return &ConversionError{Input: req.Input, Output: req.Output, Err: ctx.Err()}
		}
	}
	if c.fail[req.Input] {
		// leave a partial file behind like a crashed encoder would
		_ = os.WriteFile(req.Output, []byte("partial"), 0644)
		return &ConversionError{Input: req.Input, Output: req.Output, Stderr: "corrupt input", Err: os.ErrInvalid}
	}
	return os.WriteFile(req.Output, c.content, 0644)
}

func (c *fakeConverter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

var testLog = logger.Discard()
