package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDuration(t *testing.T) {
	require.Equal(t, "N/A", Duration(0))
	require.Equal(t, "N/A", Duration(-time.Second))
	require.Equal(t, "1.23s", Duration(1230*time.Millisecond))
	require.Equal(t, "0.05s", Duration(50*time.Millisecond))
}

func TestConfidence(t *testing.T) {
	require.Equal(t, "85.2%", Confidence(0.852))
	require.Equal(t, "0.0%", Confidence(0))
	require.Equal(t, "100.0%", Confidence(1))
}

func TestFileSize(t *testing.T) {
	require.Equal(t, "512.0 B", FileSize(512))
	require.Equal(t, "1.5 KB", FileSize(1536))
	require.Equal(t, "1.5 MB", FileSize(1536*1024))
	require.Equal(t, "2.0 GB", FileSize(2*1024*1024*1024))
}

func TestSourceTypeOf(t *testing.T) {
	require.Equal(t, "unknown", SourceTypeOf("", false))
	require.Equal(t, "directory", SourceTypeOf("/data/frames", true))
	require.Equal(t, "image", SourceTypeOf("street.JPG", false))
	require.Equal(t, "video", SourceTypeOf("cam.mp4", false))
	require.Equal(t, "unknown", SourceTypeOf("notes.txt", false))
}

func TestParseImageSize(t *testing.T) {
	w, h, err := ParseImageSize("640x480")
	require.NoError(t, err)
	require.Equal(t, 640, w)
	require.Equal(t, 480, h)

	w, h, err = ParseImageSize("1280×720")
	require.NoError(t, err)
	require.Equal(t, 1280, w)
	require.Equal(t, 720, h)

	_, _, err = ParseImageSize("abc")
	require.Error(t, err)
}
