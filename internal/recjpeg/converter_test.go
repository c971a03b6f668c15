package recjpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

// writeScript writes an executable shell script and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("Failed to write script %s: %v", path, err)
	}
	return path
}

// fakeTools returns a decoder that streams its input file and an encoder
// that copies stdin to -outfile and prints the quality it got.
func fakeTools(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	decode := writeScript(t, dir, "convert", `cat "$1"`+"\n")
	encode := writeScript(t, dir, "cjpeg", `cat > "$4"`+"\n"+`echo "quality $2"`+"\n")
	return decode, encode
}

func TestDecodeArgs(t *testing.T) {
	tests := []struct {
		name     string
		req      ConversionRequest
		expected []string
	}{
		{
			name:     "no resize",
			req:      ConversionRequest{Input: "a.png"},
			expected: []string{"a.png", "TGA:-"},
		},
		{
			name:     "resize",
			req:      ConversionRequest{Input: "a.png", Resize: "50%"},
			expected: []string{"a.png", "-resize", "50%", "TGA:-"},
		},
		{
			name:     "leading dash",
			req:      ConversionRequest{Input: "-a.png"},
			expected: []string{"./-a.png", "TGA:-"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeArgs(tt.req); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("decodeArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEncodeArgs(t *testing.T) {
	got := encodeArgs(ConversionRequest{Output: "/tmp/out.jpg", Quality: 85})
	expected := []string{"-quality", "85", "-outfile", "/tmp/out.jpg", "-targa"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("encodeArgs() = %v, want %v", got, expected)
	}
}

func TestPipeConverter_Success(t *testing.T) {
	decode, encode := fakeTools(t)
	tmpDir := t.TempDir()
	input := filepath.Join(tmpDir, "in.png")
	output := filepath.Join(tmpDir, "out.jpg")
	if err := os.WriteFile(input, []byte("pixels"), 0644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	c := NewPipeConverter(decode, encode, testLog)
	err := c.Convert(context.Background(), ConversionRequest{Input: input, Output: output, Quality: 90})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := string(readFile(t, output)); got != "pixels" {
		t.Errorf("Expected output to hold the piped data, got %q", got)
	}
	if got := string(readFile(t, input)); got != "pixels" {
		t.Errorf("Expected input to be untouched, got %q", got)
	}
}

func TestPipeConverter_DecodeFailure(t *testing.T) {
	dir := t.TempDir()
	decode := writeScript(t, dir, "convert", "echo 'convert: improper image header' >&2\nexit 1\n")
	encode := writeScript(t, dir, "cjpeg", `cat > "$4"`+"\necho 'Empty input file' >&2\nexit 1\n")
	output := filepath.Join(dir, "out.jpg")

	c := NewPipeConverter(decode, encode, testLog)
	err := c.Convert(context.Background(), ConversionRequest{Input: filepath.Join(dir, "in.png"), Output: output, Quality: 90})

	var ce *ConversionError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected *ConversionError, got: %v", err)
	}
	if !strings.Contains(ce.Stderr, "improper image header") {
		t.Errorf("Expected decoder stderr to be captured, got %q", ce.Stderr)
	}
	if !strings.Contains(ce.Stderr, "Empty input file") {
		t.Errorf("Expected encoder stderr to be captured, got %q", ce.Stderr)
	}
	assertNotExists(t, output)
}

func TestPipeConverter_EncodeFailureKeepsStdout(t *testing.T) {
	dir := t.TempDir()
	decode := writeScript(t, dir, "convert", `cat "$1"`+"\n")
	encode := writeScript(t, dir, "cjpeg", "cat > /dev/null\necho 'partial write'\necho 'Quality out of range' >&2\nexit 2\n")
	input := filepath.Join(dir, "in.png")
	if err := os.WriteFile(input, []byte("pixels"), 0644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	c := NewPipeConverter(decode, encode, testLog)
	err := c.Convert(context.Background(), ConversionRequest{Input: input, Output: filepath.Join(dir, "out.jpg"), Quality: 90})

	var ce *ConversionError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected *ConversionError, got: %v", err)
	}
	if !strings.Contains(ce.Stdout, "partial write") {
		t.Errorf("Expected encoder stdout to be captured, got %q", ce.Stdout)
	}
	if !strings.Contains(ce.Error(), "Quality out of range") {
		t.Errorf("Expected error text to include diagnostics, got %q", ce.Error())
	}
}

func TestPipeConverter_MissingBinary(t *testing.T) {
	dir := t.TempDir()
	c := NewPipeConverter(filepath.Join(dir, "no-such-convert"), filepath.Join(dir, "no-such-cjpeg"), testLog)

	err := c.Convert(context.Background(), ConversionRequest{Input: "in.png", Output: filepath.Join(dir, "out.jpg"), Quality: 90})

	var ce *ConversionError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected *ConversionError, got: %v", err)
	}
	if ce.Input != "in.png" {
		t.Errorf("Expected input in.png, got %s", ce.Input)
	}
}

func TestNewPipeConverter_Defaults(t *testing.T) {
	c := NewPipeConverter("", "", testLog).(*pipeConverter)
	if c.convertPath != DefaultConvertBinary || c.cjpegPath != DefaultCJPEGBinary {
		t.Errorf("Expected default binaries, got %s and %s", c.convertPath, c.cjpegPath)
	}
}
