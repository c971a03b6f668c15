package recjpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/image/draw"

	_ "image/gif" // Register GIF decoder
	_ "image/png" // Register PNG decoder

	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// nativeConverter implements the Converter interface in process, without
// ImageMagick or cjpeg.
type nativeConverter struct {
	log *slog.Logger
}

// NewNativeConverter creates a Converter that decodes, resizes and encodes
// with Go image packages.
func NewNativeConverter(log *slog.Logger) Converter {
	return &nativeConverter{log: log}
}

// Convert decodes req.Input, applies req.Resize and writes a JPEG to req.Output.
func (c *nativeConverter) Convert(ctx context.Context, req ConversionRequest) error {
	fail := func(err error) error {
		if rmErr := os.Remove(req.Output); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			c.log.Warn("Failed to remove partial output", "path", req.Output, "error", rmErr)
		}
		return &ConversionError{Input: req.Input, Output: req.Output, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return &ConversionError{Input: req.Input, Output: req.Output, Err: err}
	}

	img, format, err := decodeImage(req.Input)
	if err != nil {
		return &ConversionError{Input: req.Input, Output: req.Output, Err: err}
	}
	c.log.Debug("Decoded image", "input", req.Input, "format", format, "bounds", img.Bounds())

	if req.Resize != "" {
		g, err := ParseGeometry(req.Resize)
		if err != nil {
			return &ConversionError{Input: req.Input, Output: req.Output, Err: err}
		}
		img = resize(img, g)
	}

	if err := ctx.Err(); err != nil {
		return &ConversionError{Input: req.Input, Output: req.Output, Err: err}
	}

	out, err := os.OpenFile(req.Output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fail(fmt.Errorf("failed to create output: %w", err))
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: req.Quality}); err != nil {
		out.Close()
		return fail(fmt.Errorf("failed to encode jpeg: %w", err))
	}
	if err := out.Close(); err != nil {
		return fail(fmt.Errorf("failed to close output: %w", err))
	}
	return nil
}

func decodeImage(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

func resize(img image.Image, g Geometry) image.Image {
	b := img.Bounds()
	w, h := g.Apply(b.Dx(), b.Dy())
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
