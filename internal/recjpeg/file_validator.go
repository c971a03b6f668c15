package recjpeg

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// BackupValidator checks that an input can be converted without clobbering
// anything.
type BackupValidator interface {
	// Validate returns the plan for input, or a *FileError explaining why the
	// file has to be skipped.
	Validate(input string) (BackupPlan, error)
}

// backupValidator implements the BackupValidator interface
type backupValidator struct {
	log *slog.Logger
}

// NewBackupValidator creates a new BackupValidator instance
func NewBackupValidator(log *slog.Logger) BackupValidator {
	return &backupValidator{log: log}
}

// Validate derives the backup and output paths of input and checks that
// neither is taken. The check is not atomic with the later link: a backup
// created in between makes the first swap step fail instead.
func (v *backupValidator) Validate(input string) (BackupPlan, error) {
	plan := BackupPlan{
		Input:  input,
		Backup: BackupPath(input),
		Output: OutputPath(input),
	}

	if err := isValidFile(input); err != nil {
		return BackupPlan{}, &FileError{Input: input, Kind: KindInvalidInput, Err: err}
	}

	exists, err := pathExists(plan.Backup)
	if err != nil {
		return BackupPlan{}, &FileError{Input: input, Kind: KindInvalidInput, Err: err}
	}
	if exists {
		return BackupPlan{}, &FileError{
			Input: input,
			Kind:  KindAlreadyBackedUp,
			Err:   fmt.Errorf("%w: %s", ErrAlreadyBackedUp, plan.Backup),
		}
	}

	if plan.Output != plan.Input {
		exists, err := pathExists(plan.Output)
		if err != nil {
			return BackupPlan{}, &FileError{Input: input, Kind: KindInvalidInput, Err: err}
		}
		if exists {
			return BackupPlan{}, &FileError{
				Input: input,
				Kind:  KindInvalidInput,
				Err:   fmt.Errorf("%w: %s", ErrOutputExists, plan.Output),
			}
		}
	}

	v.log.Debug("Backup slot available", "input", input, "backup", plan.Backup, "output", plan.Output)
	return plan, nil
}

// isValidFile checks that a file exists, is a regular file, is not empty and
// holds image data.
func isValidFile(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", filePath)
	}
	if info.Size() == 0 {
		return ErrEmptyFile
	}

	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return fmt.Errorf("cannot detect file type: %w", err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}
	return nil
}

// pathExists reports whether anything, including a dangling symlink, is at path.
func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
