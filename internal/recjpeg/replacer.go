package recjpeg

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// Replacer swaps a converted temp file into place while keeping a backup of
// the original.
type Replacer interface {
	// Replace moves plan.Input to plan.Backup and temp to plan.Output.
	// Failures are *ReplacementError.
	Replace(plan BackupPlan, temp string) error
}

// linkReplacer implements the Replacer interface with hard links. Every move
// is a link followed by an unlink, so the original content always has at
// least one name on disk: a crash leaves either both input and backup, or an
// orphaned temp file.
type linkReplacer struct {
	keepModTime bool
	link        func(oldname, newname string) error
	remove      func(name string) error
	log         *slog.Logger
}

// NewReplacer creates a new Replacer instance. When keepModTime is set the
// new file gets the modification time of the original.
func NewReplacer(keepModTime bool, log *slog.Logger) Replacer {
	return &linkReplacer{
		keepModTime: keepModTime,
		link:        os.Link,
		remove:      os.Remove,
		log:         log,
	}
}

// Replace runs link backup, unlink input, link output, unlink temp.
func (r *linkReplacer) Replace(plan BackupPlan, temp string) error {
	fail := func(step Step, state string, rolledBack bool, err error) error {
		return &ReplacementError{
			Step:       step,
			Input:      plan.Input,
			Backup:     plan.Backup,
			Temp:       temp,
			Output:     plan.Output,
			State:      state,
			RolledBack: rolledBack,
			Err:        err,
		}
	}

	if err := r.inheritAttributes(plan.Input, temp); err != nil {
		// cosmetic only; the swap is still safe
		r.log.Warn("Failed to copy file attributes", "input", plan.Input, "temp", temp, "error", err)
	}

	r.log.Debug("Linking", "from", plan.Input, "to", plan.Backup)
	if err := r.link(plan.Input, plan.Backup); err != nil {
		if errors.Is(err, fs.ErrExist) {
			err = fmt.Errorf("%w: %w", ErrAlreadyBackedUp, err)
		}
		return fail(StepLinkBackup, "input untouched, no backup created", true, err)
	}

	r.log.Debug("Unlinking", "path", plan.Input)
	if err := r.remove(plan.Input); err != nil {
		if rbErr := r.remove(plan.Backup); rbErr != nil {
			return fail(StepUnlinkInput, fmt.Sprintf("input untouched, backup link still present (%v)", rbErr), false, err)
		}
		return fail(StepUnlinkInput, "input untouched, backup link removed again", true, err)
	}

	r.log.Debug("Linking", "from", temp, "to", plan.Output)
	if err := r.link(temp, plan.Output); err != nil {
		if rbErr := r.link(plan.Backup, plan.Input); rbErr != nil {
			return fail(StepLinkOutput, fmt.Sprintf("original only at backup (restore failed: %v), converted copy left at temp", rbErr), false, err)
		}
		if rbErr := r.remove(plan.Backup); rbErr != nil {
			return fail(StepLinkOutput, fmt.Sprintf("original restored at input, backup link still present (%v), converted copy left at temp", rbErr), false, err)
		}
		return fail(StepLinkOutput, "original restored at input, backup link removed again", true, err)
	}

	r.log.Debug("Unlinking", "path", temp)
	if err := r.remove(temp); err != nil {
		return fail(StepUnlinkTemp, "file replaced, temp file orphaned", false, err)
	}
	return nil
}

// inheritAttributes copies the permission bits, and optionally the
// modification time, of the original onto the converted file.
func (r *linkReplacer) inheritAttributes(original, converted string) error {
	info, err := os.Stat(original)
	if err != nil {
		return err
	}
	if err := os.Chmod(converted, info.Mode().Perm()); err != nil {
		return err
	}
	if r.keepModTime {
		return os.Chtimes(converted, time.Now(), info.ModTime())
	}
	return nil
}
