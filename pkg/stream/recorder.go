package stream

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
)

// DefaultRecordingFPS is the frame rate stamped on recordings. Sources don't
// report a rate, so recordings play back at the nominal pipeline speed.
const DefaultRecordingFPS = 20.0

// VideoWriter writes finished frames to disk. Implementations are owned by
// the pipeline loop and are not concurrent-safe.
type VideoWriter interface {
	WriteFrame(img *cimg.Image) error
	Close() error
}

// WriterFactory opens one kind of VideoWriter. The recorder walks a factory
// preference list so that a failing container format degrades to the next
// one instead of killing recording.
type WriterFactory struct {
	Name string
	Ext  string // appended to the recording base path
	Open func(path string, width, height int, fps float64) (VideoWriter, error)
}

// DefaultWriterFactories is the codec preference order: MJPEG-in-AVI first,
// a plain JPEG image sequence as the last resort.
func DefaultWriterFactories() []WriterFactory {
	return []WriterFactory{
		{
			Name: "mjpeg-avi",
			Ext:  ".avi",
			Open: func(path string, width, height int, fps float64) (VideoWriter, error) {
				return newAVIWriter(path, width, height, fps)
			},
		},
		{
			Name: "jpeg-sequence",
			Ext:  "",
			Open: func(path string, width, height int, fps float64) (VideoWriter, error) {
				return newJPEGSequenceWriter(path)
			},
		},
	}
}

// Recorder owns one recording session.
type Recorder struct {
	log    logs.Log
	writer VideoWriter
	Path   string // actual output path, including the chosen extension
	Format string // name of the factory that succeeded
	frames int
}

// NewRecorder opens the first factory that succeeds. basePath has no
// extension; the factory appends its own. If every factory fails, recording
// is unavailable and the error lists the final failure.
func NewRecorder(log logs.Log, factories []WriterFactory, basePath string, width, height int, fps float64) (*Recorder, error) {
	var lastErr error
	for _, f := range factories {
		path := basePath + f.Ext
		writer, err := f.Open(path, width, height, fps)
		if err != nil {
			log.Warnf("Recording format %v failed to open: %v. Trying next format.", f.Name, err)
			lastErr = err
			continue
		}
		log.Infof("Recording to %v (%v)", path, f.Name)
		return &Recorder{
			log:    log,
			writer: writer,
			Path:   path,
			Format: f.Name,
		}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no recording formats available")
	}
	return nil, fmt.Errorf("failed to open recording %v: %w", basePath, lastErr)
}

func (r *Recorder) WriteFrame(img *cimg.Image) error {
	if err := r.writer.WriteFrame(img); err != nil {
		return err
	}
	r.frames++
	return nil
}

func (r *Recorder) NumFrames() int {
	return r.frames
}

func (r *Recorder) Close() error {
	err := r.writer.Close()
	r.log.Infof("Recording closed: %v frames written to %v", r.frames, r.Path)
	return err
}

// jpegSequenceWriter dumps numbered JPEGs into a directory. The fallback when
// no container format can be opened.
type jpegSequenceWriter struct {
	dir  string
	next int
}

func newJPEGSequenceWriter(dir string) (*jpegSequenceWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &jpegSequenceWriter{dir: dir, next: 1}, nil
}

func (w *jpegSequenceWriter) WriteFrame(img *cimg.Image) error {
	jpeg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 85, 0))
	if err != nil {
		return err
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%06d.jpg", w.next))
	if err := os.WriteFile(path, jpeg, 0644); err != nil {
		return err
	}
	w.next++
	return nil
}

func (w *jpegSequenceWriter) Close() error {
	return nil
}
