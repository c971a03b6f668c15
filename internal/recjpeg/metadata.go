package recjpeg

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/barasher/go-exiftool"
)

// embeddedTags are tags that only exist when a file carries EXIF, XMP, IPTC
// or ICC data, as opposed to the File/System tags exiftool reports for any file.
var embeddedTags = []string{
	"ExifByteOrder",
	"ExifVersion",
	"XMPToolkit",
	"IPTCDigest",
	"ProfileDescription",
	"Orientation",
	"DateTimeOriginal",
}

// MetadataCopier carries metadata over to a converted file. cjpeg writes bare
// JFIF files, so without it EXIF dates, orientation and colour profiles are lost.
type MetadataCopier interface {
	// CopyMetadata copies the metadata of source onto target. It is a no-op
	// when source has none.
	CopyMetadata(source, target string) error
}

// exifCopier implements the MetadataCopier interface
type exifCopier struct {
	mu  sync.Mutex
	et  *exiftool.Exiftool
	log *slog.Logger
}

// NewMetadataCopier creates a new MetadataCopier instance
func NewMetadataCopier(et *exiftool.Exiftool, log *slog.Logger) MetadataCopier {
	return &exifCopier{et: et, log: log}
}

// CopyMetadata probes source with the shared exiftool process and, when it
// has embedded metadata, copies every tag group onto target.
func (c *exifCopier) CopyMetadata(source, target string) error {
	if c.et == nil {
		return fmt.Errorf("exiftool not initialised")
	}

	c.mu.Lock()
	fileInfos := c.et.ExtractMetadata(source)
	c.mu.Unlock()
	if len(fileInfos) == 0 {
		return fmt.Errorf("no metadata returned for %s", source)
	}
	if fileInfos[0].Err != nil {
		return fmt.Errorf("failed to read metadata of %s: %w", source, fileInfos[0].Err)
	}
	if !hasEmbeddedMetadata(fileInfos[0]) {
		c.log.Debug("No embedded metadata, skipping copy", "file", filepath.Base(source))
		return nil
	}

	// -overwrite_original prevents creating backup files
	// -P preserves the file modification date/time
	cmd := exec.Command("exiftool",
		"-TagsFromFile", source,
		"-all:all",
		"-overwrite_original",
		"-P",
		target)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to copy metadata from %s: %w (output: %s)", source, err, string(output))
	}

	c.log.Debug("Copied metadata", "from", filepath.Base(source), "to", target)
	return nil
}

func hasEmbeddedMetadata(info exiftool.FileMetadata) bool {
	for _, tag := range embeddedTags {
		if _, ok := info.Fields[tag]; ok {
			return true
		}
	}
	return false
}
