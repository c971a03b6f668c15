// Package recjpeg recompresses image files as JPEG in place, keeping a hard
// linked backup of every original next to it.
package recjpeg

import "runtime"

// Options holds configuration for a batch.
type Options struct {
	// Quality is the JPEG encoder quality (1-100).
	Quality int
	// Resize is an optional geometry such as "50%", "1000x1000" or "2000x2000>".
	Resize string
	// Limit is the maximum number of files in flight per phase (0 = number of CPUs).
	Limit int
	// TempDir is where converted files are written before the swap. Empty
	// means next to each input, which keeps the temp file on the same
	// filesystem so it can be hard linked into place.
	TempDir string
	// KeepModTime copies the original modification time onto the new file.
	KeepModTime bool
}

// DefaultOptions returns the default batch options.
func DefaultOptions() Options {
	return Options{
		Quality: 90,
		Limit:   runtime.NumCPU(),
	}
}

func (o Options) limit() int {
	if o.Limit <= 0 {
		return runtime.NumCPU()
	}
	return o.Limit
}

// ConversionRequest is what a Converter needs to produce one output file.
type ConversionRequest struct {
	Input   string
	Output  string
	Quality int
	Resize  string
}

// BackupPlan is a validated input together with its derived paths.
type BackupPlan struct {
	Input  string
	Backup string
	Output string
}

// CompressionReport compares the size of a file before and after conversion.
type CompressionReport struct {
	Original   int64
	Converted  int64
	Percentage float64
	Message    string
}

// Outcome is the result of one successfully replaced file.
type Outcome struct {
	Input  string
	Output string
	Backup string
	// Report is nil when the sizes could not be read after the swap.
	Report *CompressionReport
}

// BatchResult collects every per-file result of a batch run.
type BatchResult struct {
	Outcomes []Outcome
	Skipped  []*FileError
	Failed   []*FileError
	// InputBytes and OutputBytes sum the sizes of reported files.
	InputBytes  int64
	OutputBytes int64
}

// SpaceSaved returns the byte difference between originals and outputs.
// Positive means outputs are smaller.
func (r *BatchResult) SpaceSaved() int64 {
	return r.InputBytes - r.OutputBytes
}
