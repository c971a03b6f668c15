package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/acm19/recjpeg/apps/cli/completion"
	"github.com/acm19/recjpeg/internal/config"
	"github.com/acm19/recjpeg/internal/logger"
	"github.com/acm19/recjpeg/internal/metrics"
	"github.com/acm19/recjpeg/internal/recjpeg"
	"github.com/barasher/go-exiftool"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// version is set at build time via -ldflags.
var version = "dev"

// flags holds the values bound to the root command's flags.
type flags struct {
	configPath    string
	quality       int
	resize        string
	limit         int
	verbose       bool
	converter     string
	convertBin    string
	cjpegBin      string
	tempDir       string
	keepModTime   bool
	keepMetadata  bool
	archiveBucket string
	archivePrefix string
	metricsFile   string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:   "recjpeg [flags] FILE...",
		Short: "Recompress images as JPEG, keeping a hard linked backup",
		Long: `Recompress converts each FILE to a JPEG at the given quality. The original
is kept as a hard link with .bak before its extension (photo.png becomes
photo.bak.png) and the new JPEG takes its place, renamed to a .jpg extension
when FILE is not already a JPEG. Files that already have a backup are skipped.`,
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// argument errors print usage; failures past this point do not
			cmd.SilenceUsage = true
			cfg, err := loadConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.ErrOrStderr(), cfg, args)
		},
	}

	fs := rootCmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.IntVarP(&f.quality, "quality", "q", 90, "JPEG quality (1-100)")
	fs.StringVarP(&f.resize, "resize", "r", "", "Resize geometry, e.g. 50%, 1000x1000, 2000x2000>")
	fs.IntVarP(&f.limit, "limit", "l", runtime.NumCPU(), "Maximum number of files processed in parallel")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")
	fs.StringVar(&f.converter, "converter", config.ConverterPipe, "Converter to use (pipe, native)")
	fs.StringVar(&f.convertBin, "convert-bin", recjpeg.DefaultConvertBinary, "ImageMagick convert binary")
	fs.StringVar(&f.cjpegBin, "cjpeg-bin", recjpeg.DefaultCJPEGBinary, "cjpeg binary")
	fs.StringVar(&f.tempDir, "temp-dir", "", "Directory for temporary files (default: the input's directory)")
	fs.BoolVar(&f.keepModTime, "keep-mtime", false, "Give the new file the original's modification time")
	fs.BoolVar(&f.keepMetadata, "keep-metadata", false, "Copy EXIF/XMP metadata from the original with exiftool")
	fs.StringVar(&f.archiveBucket, "archive-bucket", "", "Upload backups to this S3 bucket")
	fs.StringVar(&f.archivePrefix, "archive-prefix", "", "Key prefix for archived backups")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")

	rootCmd.AddCommand(completion.NewInstallCmd(rootCmd))
	rootCmd.AddCommand(completion.NewUninstallCmd(rootCmd))
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then applies every flag
// set explicitly on the command line.
func loadConfig(fs *pflag.FlagSet, f *flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	applyFlags(&cfg, fs, f)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, fs *pflag.FlagSet, f *flags) {
	fs.Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "quality":
			cfg.Quality = f.quality
		case "resize":
			cfg.Resize = f.resize
		case "limit":
			cfg.Limit = f.limit
		case "verbose":
			cfg.Verbose = f.verbose
		case "converter":
			cfg.Converter = f.converter
		case "convert-bin":
			cfg.ConvertBinary = f.convertBin
		case "cjpeg-bin":
			cfg.CJPEGBinary = f.cjpegBin
		case "temp-dir":
			cfg.TempDir = f.tempDir
		case "keep-mtime":
			cfg.KeepModTime = f.keepModTime
		case "keep-metadata":
			cfg.KeepMetadata = f.keepMetadata
		case "archive-bucket":
			cfg.ArchiveBucket = f.archiveBucket
		case "archive-prefix":
			cfg.ArchivePrefix = f.archivePrefix
		case "metrics-file":
			cfg.MetricsFile = f.metricsFile
		}
	})
}

// run wires the components selected by cfg and recompresses files.
func run(ctx context.Context, logOut io.Writer, cfg config.Config, files []string) error {
	log := logger.New(logOut, cfg.Verbose)
	start := time.Now()

	var options []recjpeg.Option
	if cfg.KeepMetadata {
		et, err := exiftool.NewExiftool()
		if err != nil {
			return fmt.Errorf("failed to initialise exiftool: %w", err)
		}
		defer et.Close()
		options = append(options, recjpeg.WithMetadataCopier(recjpeg.NewMetadataCopier(et, log)))
	}
	if cfg.ArchiveBucket != "" {
		archiver, err := recjpeg.NewS3Archiver(ctx, cfg.ArchiveBucket, cfg.ArchivePrefix, log)
		if err != nil {
			return fmt.Errorf("failed to initialise archive: %w", err)
		}
		options = append(options, recjpeg.WithArchiver(archiver))
	}

	opts := cfg.Options()
	log.Debug("Configuration loaded",
		"quality", opts.Quality,
		"resize", opts.Resize,
		"limit", opts.Limit,
		"converter", cfg.Converter)

	recompressor := recjpeg.NewRecompressor(newConverter(cfg, log), opts, log, options...)
	result, runErr := recompressor.Run(ctx, files)

	if cfg.MetricsFile != "" && result != nil {
		recorder := metrics.NewRecorder()
		recorder.Observe(result, time.Since(start))
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Error("Failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	if runErr != nil {
		log.Error("Recompression aborted", "error", runErr)
		return runErr
	}
	return nil
}

func newConverter(cfg config.Config, log *slog.Logger) recjpeg.Converter {
	if cfg.Converter == config.ConverterNative {
		return recjpeg.NewNativeConverter(log)
	}
	return recjpeg.NewPipeConverter(cfg.ConvertBinary, cfg.CJPEGBinary, log)
}
