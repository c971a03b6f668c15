package recjpeg

import (
	"fmt"
	"os"
)

// Reporter compares file sizes before and after conversion.
type Reporter interface {
	// Report reads the sizes of both files and describes the compression.
	Report(original, converted string) (CompressionReport, error)
}

// sizeReporter implements the Reporter interface
type sizeReporter struct{}

// NewReporter creates a new Reporter instance
func NewReporter() Reporter {
	return &sizeReporter{}
}

// Report stats both paths and computes converted size as a percentage of
// the original.
func (r *sizeReporter) Report(original, converted string) (CompressionReport, error) {
	originalInfo, err := os.Stat(original)
	if err != nil {
		return CompressionReport{}, fmt.Errorf("failed to stat original: %w", err)
	}
	convertedInfo, err := os.Stat(converted)
	if err != nil {
		return CompressionReport{}, fmt.Errorf("failed to stat converted file: %w", err)
	}
	if originalInfo.Size() == 0 {
		return CompressionReport{}, fmt.Errorf("original %s is 0 bytes", original)
	}

	percentage := 100.0 * float64(convertedInfo.Size()) / float64(originalInfo.Size())
	return CompressionReport{
		Original:   originalInfo.Size(),
		Converted:  convertedInfo.Size(),
		Percentage: percentage,
		Message:    fmt.Sprintf("recompressed version of %s is %.2f%% the size of the original", converted, percentage),
	}, nil
}
