package stream

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmharper/cimg/v2"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// ImageDirSource replays the image files of a directory as a frame stream,
// in filename order. Useful for captured frame dumps, and for running the
// pipeline without a live camera.
type ImageDirSource struct {
	files []string
	next  int

	// Loop makes the source wrap around instead of returning io.EOF,
	// simulating a live feed.
	Loop bool
}

func NewImageDirSource(dir string) (*ImageDirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files in %v", dir)
	}
	sort.Strings(files)
	return &ImageDirSource{files: files}, nil
}

func (s *ImageDirSource) NextFrame() (*cimg.Image, error) {
	if s.next >= len(s.files) {
		if !s.Loop {
			return nil, io.EOF
		}
		s.next = 0
	}
	path := s.files[s.next]
	s.next++
	return LoadImageRGB(path)
}

func (s *ImageDirSource) Close() error {
	return nil
}

// Paths returns the image files the source will replay, in order
func (s *ImageDirSource) Paths() []string {
	return s.files
}

// LoadImageRGB reads an image file as 24-bit RGB, converting if the decoder
// hands back RGBA.
func LoadImageRGB(path string) (*cimg.Image, error) {
	img, err := cimg.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %v: %w", path, err)
	}
	if img.Format != cimg.PixelFormatRGB {
		img = img.ToRGB()
	}
	return img, nil
}
