package recjpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const (
	// DefaultConvertBinary is ImageMagick's decoder and resizer.
	DefaultConvertBinary = "convert"
	// DefaultCJPEGBinary is the libjpeg encoder.
	DefaultCJPEGBinary = "cjpeg"
)

// Converter turns an input image into a JPEG file.
type Converter interface {
	// Convert writes the recompressed image to req.Output, clobbering it.
	// It never modifies req.Input. Failures are *ConversionError.
	Convert(ctx context.Context, req ConversionRequest) error
}

// pipeConverter implements the Converter interface by piping ImageMagick's
// TGA output into cjpeg.
type pipeConverter struct {
	convertPath string
	cjpegPath   string
	log         *slog.Logger
}

// NewPipeConverter creates a Converter running "convert | cjpeg". Empty paths
// fall back to the binaries found on PATH.
func NewPipeConverter(convertPath, cjpegPath string, log *slog.Logger) Converter {
	if convertPath == "" {
		convertPath = DefaultConvertBinary
	}
	if cjpegPath == "" {
		cjpegPath = DefaultCJPEGBinary
	}
	return &pipeConverter{
		convertPath: convertPath,
		cjpegPath:   cjpegPath,
		log:         log,
	}
}

// decodeArgs builds the convert argument vector, writing TGA to stdout.
func decodeArgs(req ConversionRequest) []string {
	input := req.Input
	// keep file names starting with a dash from being read as options
	if strings.HasPrefix(input, "-") {
		input = "./" + input
	}
	args := []string{input}
	if req.Resize != "" {
		args = append(args, "-resize", req.Resize)
	}
	return append(args, "TGA:-")
}

// encodeArgs builds the cjpeg argument vector, reading TGA from stdin.
func encodeArgs(req ConversionRequest) []string {
	return []string{
		"-quality", strconv.Itoa(req.Quality),
		"-outfile", req.Output,
		"-targa",
	}
}

// Convert runs both tools connected by an OS pipe. No shell is involved.
func (c *pipeConverter) Convert(ctx context.Context, req ConversionRequest) error {
	decode := exec.CommandContext(ctx, c.convertPath, decodeArgs(req)...)
	encode := exec.CommandContext(ctx, c.cjpegPath, encodeArgs(req)...)
	c.log.Debug("Running conversion",
		"command", strings.Join(decode.Args, " ")+" | "+strings.Join(encode.Args, " "))

	var decodeStderr, encodeStdout, encodeStderr bytes.Buffer
	fail := func(err error) error {
		c.removePartial(req.Output)
		return &ConversionError{
			Input:  req.Input,
			Output: req.Output,
			Stdout: encodeStdout.String(),
			Stderr: joinNonEmpty(decodeStderr.String(), encodeStderr.String()),
			Err:    err,
		}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return fail(fmt.Errorf("failed to create pipe: %w", err))
	}
	decode.Stdout = pw
	decode.Stderr = &decodeStderr
	encode.Stdin = pr
	encode.Stdout = &encodeStdout
	encode.Stderr = &encodeStderr

	if err := decode.Start(); err != nil {
		pr.Close()
		pw.Close()
		return fail(fmt.Errorf("failed to start %s: %w", c.convertPath, err))
	}
	if err := encode.Start(); err != nil {
		pr.Close()
		pw.Close()
		_ = decode.Process.Kill()
		_ = decode.Wait()
		return fail(fmt.Errorf("failed to start %s: %w", c.cjpegPath, err))
	}

	// The children hold their own copies; closing ours lets cjpeg see EOF
	// and convert see a broken pipe if cjpeg exits early.
	pw.Close()
	pr.Close()

	decodeErr := decode.Wait()
	encodeErr := encode.Wait()
	switch {
	case decodeErr != nil && encodeErr != nil:
		return fail(fmt.Errorf("%s failed: %w; %s failed: %v", c.convertPath, decodeErr, c.cjpegPath, encodeErr))
	case decodeErr != nil:
		return fail(fmt.Errorf("%s failed: %w", c.convertPath, decodeErr))
	case encodeErr != nil:
		return fail(fmt.Errorf("%s failed: %w", c.cjpegPath, encodeErr))
	}

	if out := strings.TrimSpace(encodeStdout.String()); out != "" {
		c.log.Info("Encoder output", "input", req.Input, "stdout", out)
	}
	if errOut := joinNonEmpty(decodeStderr.String(), encodeStderr.String()); errOut != "" {
		c.log.Debug("Conversion diagnostics", "input", req.Input, "stderr", errOut)
	}
	return nil
}

func (c *pipeConverter) removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.log.Warn("Failed to remove partial output", "path", path, "error", err)
	}
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
