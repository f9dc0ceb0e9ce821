// Package format holds the small display formatting helpers shared by the
// CLIs and the history views.
package format

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Duration renders a run time as seconds with two decimals, eg "1.23s".
// Zero or negative durations render as "N/A".
func Duration(d time.Duration) string {
	if d <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// Confidence renders a 0..1 confidence as a percentage, eg "85.2%"
func Confidence(confidence float32) string {
	return fmt.Sprintf("%.1f%%", confidence*100)
}

// FileSize renders a byte count with one decimal, eg "1.5 MB"
func FileSize(bytes int64) string {
	size := float64(bytes)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %v", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f PB", size)
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
	".tiff": true,
	".webp": true,
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".flv":  true,
	".wmv":  true,
	".webm": true,
}

// SourceTypeOf classifies a source path by its extension. isDir should come
// from a stat of the path; we don't touch the filesystem here.
func SourceTypeOf(path string, isDir bool) string {
	if path == "" {
		return "unknown"
	}
	if isDir {
		return "directory"
	}
	ext := strings.ToLower(filepath.Ext(path))
	if imageExtensions[ext] {
		return "image"
	}
	if videoExtensions[ext] {
		return "video"
	}
	return "unknown"
}

// ParseImageSize parses "640x640" (or with a unicode multiplication sign)
func ParseImageSize(s string) (width, height int, err error) {
	sep := "x"
	if strings.Contains(s, "×") {
		sep = "×"
	}
	parts := strings.Split(strings.TrimSpace(s), sep)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid image size %q", s)
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[0]), "%d", &width); err != nil {
		return 0, 0, fmt.Errorf("invalid image size %q", s)
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &height); err != nil {
		return 0, 0, fmt.Errorf("invalid image size %q", s)
	}
	return width, height, nil
}
