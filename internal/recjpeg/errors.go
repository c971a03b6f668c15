package recjpeg

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyBackedUp means the backup path of an input is already taken.
	ErrAlreadyBackedUp = errors.New("backup already exists")
	// ErrOutputExists means a renamed output path is occupied by another file.
	ErrOutputExists = errors.New("output path already exists")
	// ErrEmptyFile means the input is 0 bytes.
	ErrEmptyFile = errors.New("file is 0 bytes")
	// ErrNotImage means the input content is not an image.
	ErrNotImage = errors.New("file is not an image")
)

// Kind classifies a per-file failure.
type Kind string

const (
	KindAlreadyBackedUp Kind = "already_backed_up"
	KindInvalidInput    Kind = "invalid_input"
	KindConversion      Kind = "conversion"
	KindMetadata        Kind = "metadata"
	KindReplacement     Kind = "replacement"
	KindReport          Kind = "report"
	KindArchive         Kind = "archive"
)

// Skip reports whether a failure of this kind means the file was left
// untouched on purpose rather than failed.
func (k Kind) Skip() bool {
	return k == KindAlreadyBackedUp || k == KindInvalidInput
}

// FileError is a failure tied to a single input file. It never aborts the
// rest of a batch.
type FileError struct {
	Input string
	Kind  Kind
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Input, e.Kind, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// ConversionError is returned when the decode or encode step fails. It keeps
// the captured output of the external tools for diagnostics.
type ConversionError struct {
	Input  string
	Output string
	Stdout string
	Stderr string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("converting %s to %s: %v (stdout: %q, stderr: %q)", e.Input, e.Output, e.Err, e.Stdout, e.Stderr)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Step identifies one step of the backup and swap sequence.
type Step int

const (
	StepLinkBackup Step = iota + 1
	StepUnlinkInput
	StepLinkOutput
	StepUnlinkTemp
)

func (s Step) String() string {
	switch s {
	case StepLinkBackup:
		return "link input to backup"
	case StepUnlinkInput:
		return "unlink input"
	case StepLinkOutput:
		return "link temp to output"
	case StepUnlinkTemp:
		return "unlink temp"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// ReplacementError reports which step of the swap failed and where every
// copy of the content lives, so an operator can inspect the files by hand.
type ReplacementError struct {
	Step   Step
	Input  string
	Backup string
	Temp   string
	Output string
	// State describes the files left on disk after the failure.
	State string
	// RolledBack is set when the input is back under its own name and no
	// backup link was left behind.
	RolledBack bool
	Err        error
}

func (e *ReplacementError) Error() string {
	return fmt.Sprintf("replace %s failed at %q (input=%s backup=%s temp=%s output=%s): %v; %s",
		e.Input, e.Step, e.Input, e.Backup, e.Temp, e.Output, e.Err, e.State)
}

func (e *ReplacementError) Unwrap() error {
	return e.Err
}
