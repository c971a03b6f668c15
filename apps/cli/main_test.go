package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/acm19/recjpeg/internal/config"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_NoFiles(t *testing.T) {
	out, err := execute(t)
	if err == nil {
		t.Fatal("Expected error when no files are given, got nil")
	}
	if !strings.Contains(out, "Usage:") {
		t.Errorf("Expected usage to be printed, got %q", out)
	}
}

func TestRootCmd_InvalidQuality(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, file)

	if _, err := execute(t, "--quality", "0", file); err == nil {
		t.Fatal("Expected error for quality 0, got nil")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(file), "a.bak.png")); !os.IsNotExist(err) {
		t.Error("Expected no backup to be created for an invalid invocation")
	}
}

func TestRootCmd_NativeConverter(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "photo.PNG")
	writePNG(t, input)
	original, err := os.ReadFile(input)
	if err != nil {
		t.Fatalf("Failed to read input: %v", err)
	}
	metricsFile := filepath.Join(dir, "recjpeg.prom")

	out, err := execute(t, "--converter", "native", "--limit", "2", "--metrics-file", metricsFile, input)
	if err != nil {
		t.Fatalf("Expected no error, got: %v\n%s", err, out)
	}

	backupPath := filepath.Join(dir, "photo.bak.PNG")
	backup, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("Expected backup at %s: %v", backupPath, err)
	}
	if !bytes.Equal(backup, original) {
		t.Error("Expected backup to hold the original bytes")
	}
	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Error("Expected renamed input to be gone")
	}
	if _, err := os.Stat(filepath.Join(dir, "photo.JPG")); err != nil {
		t.Errorf("Expected output photo.JPG: %v", err)
	}
	if _, err := os.Stat(metricsFile); err != nil {
		t.Errorf("Expected metrics file: %v", err)
	}
}

func TestRootCmd_AlreadyBackedUpExitsCleanly(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.png")
	writePNG(t, input)
	if err := os.WriteFile(filepath.Join(dir, "a.bak.png"), []byte("old"), 0644); err != nil {
		t.Fatalf("Failed to write backup: %v", err)
	}

	if out, err := execute(t, "--converter", "native", input); err != nil {
		t.Fatalf("Expected skipped files not to fail the run, got: %v\n%s", err, out)
	}
	if _, err := os.Stat(input); err != nil {
		t.Errorf("Expected input to be untouched: %v", err)
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"-q", "70", "--resize", "50%", "--keep-mtime", "--archive-bucket", "photos"}); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	cfg := config.Config{
		Quality:       90,
		Limit:         3,
		Converter:     config.ConverterNative,
		ConvertBinary: "convert",
		CJPEGBinary:   "cjpeg",
	}
	f := &flags{}
	// re-read parsed values through the flag set
	fs := cmd.Flags()
	f.quality, _ = fs.GetInt("quality")
	f.resize, _ = fs.GetString("resize")
	f.keepModTime, _ = fs.GetBool("keep-mtime")
	f.archiveBucket, _ = fs.GetString("archive-bucket")
	f.limit, _ = fs.GetInt("limit")
	f.converter, _ = fs.GetString("converter")

	applyFlags(&cfg, fs, f)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{name: "quality overridden", got: cfg.Quality, want: 70},
		{name: "resize overridden", got: cfg.Resize, want: "50%"},
		{name: "keep mtime overridden", got: cfg.KeepModTime, want: true},
		{name: "archive bucket overridden", got: cfg.ArchiveBucket, want: "photos"},
		{name: "limit kept from config", got: cfg.Limit, want: 3},
		{name: "converter kept from config", got: cfg.Converter, want: config.ConverterNative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}
