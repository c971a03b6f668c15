package recjpeg

import (
	"path/filepath"
	"strings"
	"unicode"
)

// backupInfix is inserted before the extension of a backed up file.
const backupInfix = ".bak"

// SplitExt splits the base name of path into its stem and extension. The
// extension keeps its leading dot and is empty when the base name has no
// non-empty suffix after a dot. A leading dot (".hidden") does not start an
// extension.
func SplitExt(path string) (stem, ext string) {
	base := filepath.Base(path)
	i := strings.LastIndex(base, ".")
	if i <= 0 || i == len(base)-1 {
		return path, ""
	}
	return path[:len(path)-len(base)+i], base[i:]
}

// BackupPath returns the path where the original content of input is kept:
// photo.jpg becomes photo.bak.jpg and photo becomes photo.bak.
func BackupPath(input string) string {
	stem, ext := SplitExt(input)
	return stem + backupInfix + ext
}

// OutputPath returns the path the recompressed file is written to. An
// extension that already spells jpg or jpeg (in any case) is kept as is;
// anything else is replaced by jpg, cased like the extension it replaces.
func OutputPath(input string) string {
	stem, ext := SplitExt(input)
	if isJPEGExt(ext) {
		return input
	}
	return stem + "." + MatchCase(strings.TrimPrefix(ext, "."), "jpg")
}

func isJPEGExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// MatchCase returns target cased the way source appears to be cased.
//
//   - "X", "Png" (title case) give a capitalised target.
//   - "JPG", "PNG2" (upper or digits) give an upper case target.
//   - "png", "tif8" (lower or digits) give a lower case target.
//
// Anything else, including an empty source, gives the lower case target.
func MatchCase(source, target string) string {
	switch {
	case source == "" || target == "":
		return strings.ToLower(target)
	case isTitle(source):
		return strings.ToUpper(target[:1]) + strings.ToLower(target[1:])
	case allRunes(source, isUpperOrDigit):
		return strings.ToUpper(target)
	case allRunes(source, isLowerOrDigit):
		return strings.ToLower(target)
	}
	return strings.ToLower(target)
}

// isTitle reports whether s is a single upper case letter, or an upper case
// letter followed by lower case letters and digits with at least one letter.
func isTitle(s string) bool {
	if s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	rest := s[1:]
	if rest == "" {
		return true
	}
	return allRunes(rest, isLowerOrDigit) && strings.IndexFunc(rest, unicode.IsLower) >= 0
}

func allRunes(s string, fn func(rune) bool) bool {
	for _, r := range s {
		if !fn(r) {
			return false
		}
	}
	return true
}

func isUpperOrDigit(r rune) bool {
	return ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}

func isLowerOrDigit(r rune) bool {
	return ('a' <= r && r <= 'z') || ('0' <= r && r <= '9')
}
