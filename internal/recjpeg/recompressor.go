package recjpeg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Recompressor defines the interface for recompressing a batch of files
type Recompressor interface {
	// Run validates, converts, swaps and reports every input. Per-file
	// problems are collected in the result; the error is only set when the
	// batch itself could not finish, e.g. because ctx was cancelled.
	Run(ctx context.Context, inputs []string) (*BatchResult, error)
}

// recompressor implements the Recompressor interface
type recompressor struct {
	opts      Options
	validator BackupValidator
	converter Converter
	replacer  Replacer
	reporter  Reporter
	metadata  MetadataCopier
	archiver  Archiver
	log       *slog.Logger
}

// Option customises a Recompressor.
type Option func(*recompressor)

// WithMetadataCopier copies metadata from the original onto each converted
// file before it is swapped in.
func WithMetadataCopier(m MetadataCopier) Option {
	return func(r *recompressor) { r.metadata = m }
}

// WithArchiver uploads every backup after a successful swap.
func WithArchiver(a Archiver) Option {
	return func(r *recompressor) { r.archiver = a }
}

// WithValidator replaces the default BackupValidator.
func WithValidator(v BackupValidator) Option {
	return func(r *recompressor) { r.validator = v }
}

// WithReplacer replaces the default hard link Replacer.
func WithReplacer(rp Replacer) Option {
	return func(r *recompressor) { r.replacer = rp }
}

// WithReporter replaces the default size Reporter.
func WithReporter(rp Reporter) Option {
	return func(r *recompressor) { r.reporter = rp }
}

// NewRecompressor creates a new Recompressor instance
func NewRecompressor(converter Converter, opts Options, log *slog.Logger, options ...Option) Recompressor {
	r := &recompressor{
		opts:      opts,
		validator: NewBackupValidator(log),
		converter: converter,
		replacer:  NewReplacer(opts.KeepModTime, log),
		reporter:  NewReporter(),
		log:       log,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// collector gathers per-file results from concurrent tasks.
type collector struct {
	mu     sync.Mutex
	result BatchResult
}

func (c *collector) reject(fe *FileError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fe.Kind.Skip() {
		c.result.Skipped = append(c.result.Skipped, fe)
	} else {
		c.result.Failed = append(c.result.Failed, fe)
	}
}

func (c *collector) accept(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Outcomes = append(c.result.Outcomes, o)
	if o.Report != nil {
		c.result.InputBytes += o.Report.Original
		c.result.OutputBytes += o.Report.Converted
	}
}

// Run processes inputs in three bounded phases: validate, convert and swap,
// report. Each phase has at most Limit files in flight.
func (r *recompressor) Run(ctx context.Context, inputs []string) (*BatchResult, error) {
	start := time.Now()
	c := &collector{}
	limit := r.opts.limit()
	inputs = r.dedupe(inputs)

	r.log.Info("Checking files can be backed up", "files", len(inputs))
	checked := make([]*BackupPlan, len(inputs))
	err := forEachLimit(ctx, inputs, limit, func(i int, input string) {
		plan, err := r.validator.Validate(input)
		if err != nil {
			fe := asFileError(input, KindInvalidInput, err)
			r.log.Info("Skipping file", "file", input, "kind", fe.Kind, "reason", fe.Err)
			c.reject(fe)
			return
		}
		checked[i] = &plan
	})
	if err != nil {
		return &c.result, err
	}
	plans := r.claimOutputs(checked, c)
	if len(plans) == 0 {
		r.log.Info("Nothing to recompress", "skipped", len(c.result.Skipped))
		return &c.result, nil
	}

	r.log.Info("Starting recompressing", "files", len(plans), "limit", limit)
	var (
		doneMu sync.Mutex
		done   []BackupPlan
	)
	convertErr := forEachLimit(ctx, plans, limit, func(_ int, plan BackupPlan) {
		if fe := r.convertAndReplace(ctx, plan); fe != nil {
			c.reject(fe)
			return
		}
		doneMu.Lock()
		done = append(done, plan)
		doneMu.Unlock()
	})
	r.log.Debug("Done recompressing", "files", len(done))

	// Files already swapped are reported and archived even when the batch
	// was interrupted.
	reportCtx := context.WithoutCancel(ctx)
	_ = forEachLimit(reportCtx, done, limit, func(_ int, plan BackupPlan) {
		c.accept(r.report(reportCtx, plan))
	})

	r.logSummary(&c.result, time.Since(start))
	if convertErr != nil {
		return &c.result, fmt.Errorf("batch interrupted: %w", convertErr)
	}
	return &c.result, nil
}

// convertAndReplace runs one file through convert, optional metadata copy
// and the backup swap.
func (r *recompressor) convertAndReplace(ctx context.Context, plan BackupPlan) *FileError {
	temp := r.tempPath(plan)
	r.log.Debug("Converting", "input", plan.Input, "temp", temp)

	req := ConversionRequest{
		Input:   plan.Input,
		Output:  temp,
		Quality: r.opts.Quality,
		Resize:  r.opts.Resize,
	}
	if err := r.converter.Convert(ctx, req); err != nil {
		r.removeTemp(temp)
		r.log.Error("Conversion failed", "file", plan.Input, "error", err)
		return &FileError{Input: plan.Input, Kind: KindConversion, Err: err}
	}

	if r.metadata != nil {
		if err := r.metadata.CopyMetadata(plan.Input, temp); err != nil {
			r.removeTemp(temp)
			r.log.Error("Metadata copy failed", "file", plan.Input, "error", err)
			return &FileError{Input: plan.Input, Kind: KindMetadata, Err: err}
		}
	}

	err := r.replacer.Replace(plan, temp)
	if err == nil {
		return nil
	}

	var re *ReplacementError
	if !errors.As(err, &re) {
		r.log.Error("Replacement failed", "file", plan.Input, "error", err)
		return &FileError{Input: plan.Input, Kind: KindReplacement, Err: err}
	}

	switch re.Step {
	case StepUnlinkTemp:
		r.log.Warn("File replaced but temp file could not be removed", "file", plan.Input, "temp", temp, "error", re.Err)
		return nil
	case StepLinkBackup, StepUnlinkInput:
		// the input never lost its name, so the converted copy is disposable
		r.removeTemp(temp)
		if errors.Is(err, ErrAlreadyBackedUp) {
			r.log.Info("Skipping file", "file", plan.Input, "kind", KindAlreadyBackedUp, "reason", err)
			return &FileError{Input: plan.Input, Kind: KindAlreadyBackedUp, Err: err}
		}
	case StepLinkOutput:
		if re.RolledBack {
			r.removeTemp(temp)
		}
	}

	r.log.Error("Replacement failed",
		"file", plan.Input,
		"step", re.Step.String(),
		"backup", re.Backup,
		"temp", re.Temp,
		"output", re.Output,
		"state", re.State,
		"error", re.Err)
	return &FileError{Input: plan.Input, Kind: KindReplacement, Err: err}
}

// report measures a swapped file and archives its backup. Failures here are
// logged only; the file has already been replaced.
func (r *recompressor) report(ctx context.Context, plan BackupPlan) Outcome {
	outcome := Outcome{Input: plan.Input, Output: plan.Output, Backup: plan.Backup}

	rep, err := r.reporter.Report(plan.Backup, plan.Output)
	if err != nil {
		r.log.Error("Failed to report compression", "file", plan.Output, "kind", KindReport, "error", err)
	} else {
		outcome.Report = &rep
		r.log.Info(rep.Message)
	}

	if r.archiver != nil {
		if err := r.archiver.Archive(ctx, plan.Backup); err != nil {
			r.log.Error("Failed to archive backup", "backup", plan.Backup, "kind", KindArchive, "error", err)
		} else {
			r.log.Debug("Archived backup", "backup", plan.Backup)
		}
	}
	return outcome
}

// claimOutputs keeps the validated plans in input order and skips any plan
// whose output another input of the batch already maps to, e.g. a.png and
// a.gif both becoming a.jpg.
func (r *recompressor) claimOutputs(checked []*BackupPlan, c *collector) []BackupPlan {
	claimed := make(map[string]string, len(checked))
	plans := make([]BackupPlan, 0, len(checked))
	for _, plan := range checked {
		if plan == nil {
			continue
		}
		key := absPath(plan.Output)
		if owner, ok := claimed[key]; ok {
			fe := &FileError{
				Input: plan.Input,
				Kind:  KindInvalidInput,
				Err:   fmt.Errorf("%w: %s is also the output of %s", ErrOutputExists, plan.Output, owner),
			}
			r.log.Info("Skipping file", "file", plan.Input, "kind", fe.Kind, "reason", fe.Err)
			c.reject(fe)
			continue
		}
		claimed[key] = plan.Input
		plans = append(plans, *plan)
	}
	return plans
}

// tempPath returns a hidden, unique scratch path with the output's extension.
func (r *recompressor) tempPath(plan BackupPlan) string {
	dir := r.opts.TempDir
	if dir == "" {
		dir = filepath.Dir(plan.Input)
	}
	stem, ext := SplitExt(plan.Output)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s%s", filepath.Base(stem), uuid.NewString(), ext))
}

func (r *recompressor) removeTemp(temp string) {
	if err := os.Remove(temp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.log.Warn("Failed to remove temp file", "path", temp, "error", err)
	}
}

// dedupe drops repeated inputs; two tasks on one path would race on its backup.
func (r *recompressor) dedupe(inputs []string) []string {
	seen := make(map[string]bool, len(inputs))
	unique := make([]string, 0, len(inputs))
	for _, input := range inputs {
		key := absPath(input)
		if seen[key] {
			r.log.Warn("Ignoring duplicate input", "file", input)
			continue
		}
		seen[key] = true
		unique = append(unique, input)
	}
	return unique
}

func (r *recompressor) logSummary(result *BatchResult, elapsed time.Duration) {
	r.log.Info("Recompression complete",
		"processed", len(result.Outcomes),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
		"before", humanize.Bytes(uint64(result.InputBytes)),
		"after", humanize.Bytes(uint64(result.OutputBytes)),
		"saved", formatSignedBytes(result.SpaceSaved()),
		"duration_seconds", elapsed.Seconds())
}

// formatSignedBytes formats a byte delta, keeping the sign for growth.
func formatSignedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

// absPath is the cleaned absolute form of path, or the cleaned path itself
// when the working directory cannot be resolved.
func absPath(path string) string {
	path = filepath.Clean(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// forEachLimit runs fn for every item with at most limit calls in flight.
// It stops starting new items once ctx is done and returns ctx.Err() then.
func forEachLimit[T any](ctx context.Context, items []T, limit int, fn func(int, T)) error {
	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		// Go blocks while the limit is reached, so ctx is checked again once
		// a slot frees up.
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(i, item)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func asFileError(input string, kind Kind, err error) *FileError {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe
	}
	return &FileError{Input: input, Kind: kind, Err: err}
}
