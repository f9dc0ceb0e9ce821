package stream

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/bmharper/cimg/v2"
)

// aviWriter writes an MJPEG stream into an AVI container. Every frame is a
// standalone JPEG, so the file stays readable even if we crash before Close
// patches the header sizes.
type aviWriter struct {
	file      *os.File
	width     int
	height    int
	fps       float64
	quality   int
	numFrames uint32
	index     []aviIndexEntry

	// file offsets of the size fields patched on close
	moviStart          int64
	totalFramesOffset  int64
	streamLengthOffset int64
}

type aviIndexEntry struct {
	offset uint32 // relative to the start of the movi data
	size   uint32
}

const (
	aviHeaderFlagHasIndex = 0x10
	aviIndexKeyFrame      = 0x10
)

func newAVIWriter(path string, width, height int, fps float64) (*aviWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &aviWriter{
		file:    file,
		width:   width,
		height:  height,
		fps:     fps,
		quality: 85,
	}
	if err := w.writeHeaders(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *aviWriter) writeHeaders() error {
	buf := &chunkBuffer{}

	buf.fourCC("RIFF")
	buf.u32(0) // RIFF size, patched on close
	buf.fourCC("AVI ")

	// hdrl
	buf.fourCC("LIST")
	hdrlSize := buf.reserveU32()
	hdrlStart := buf.len()
	buf.fourCC("hdrl")

	buf.fourCC("avih")
	buf.u32(56)
	buf.u32(uint32(1e6 / w.fps)) // microseconds per frame
	buf.u32(0)                   // max bytes per sec
	buf.u32(0)                   // padding granularity
	buf.u32(aviHeaderFlagHasIndex)
	totalFramesAt := buf.reserveU32() // total frames, patched on close
	buf.u32(0)                        // initial frames
	buf.u32(1)                        // streams
	buf.u32(uint32(w.width * w.height * 3))
	buf.u32(uint32(w.width))
	buf.u32(uint32(w.height))
	buf.u32(0)
	buf.u32(0)
	buf.u32(0)
	buf.u32(0)

	// strl
	buf.fourCC("LIST")
	strlSize := buf.reserveU32()
	strlStart := buf.len()
	buf.fourCC("strl")

	buf.fourCC("strh")
	buf.u32(56)
	buf.fourCC("vids")
	buf.fourCC("MJPG")
	buf.u32(0) // flags
	buf.u32(0) // priority + language
	buf.u32(0) // initial frames
	buf.u32(1000)
	buf.u32(uint32(w.fps * 1000)) // rate/scale = fps
	buf.u32(0)                    // start
	streamLengthAt := buf.reserveU32()
	buf.u32(uint32(w.width * w.height * 3))
	buf.u32(0xFFFFFFFF) // quality
	buf.u32(0)          // sample size
	buf.u16(0)
	buf.u16(0)
	buf.u16(uint16(w.width))
	buf.u16(uint16(w.height))

	// strf (BITMAPINFOHEADER)
	buf.fourCC("strf")
	buf.u32(40)
	buf.u32(40)
	buf.u32(uint32(w.width))
	buf.u32(uint32(w.height))
	buf.u16(1)
	buf.u16(24)
	buf.fourCC("MJPG")
	buf.u32(uint32(w.width * w.height * 3))
	buf.u32(0)
	buf.u32(0)
	buf.u32(0)
	buf.u32(0)

	buf.patchU32(strlSize, uint32(buf.len()-strlStart))
	buf.patchU32(hdrlSize, uint32(buf.len()-hdrlStart))

	// movi
	buf.fourCC("LIST")
	moviSizeAt := buf.reserveU32()
	buf.fourCC("movi")

	w.totalFramesOffset = int64(totalFramesAt)
	w.streamLengthOffset = int64(streamLengthAt)
	w.moviStart = int64(moviSizeAt)

	_, err := w.file.Write(buf.data)
	return err
}

func (w *aviWriter) WriteFrame(img *cimg.Image) error {
	if img.Width != w.width || img.Height != w.height {
		return fmt.Errorf("frame size %vx%v does not match stream %vx%v", img.Width, img.Height, w.width, w.height)
	}
	jpeg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, w.quality, 0))
	if err != nil {
		return err
	}

	pos, err := w.file.Seek(0, 2)
	if err != nil {
		return err
	}
	// Offset in the index is relative to the 'movi' fourCC
	w.index = append(w.index, aviIndexEntry{
		offset: uint32(pos - w.moviStart - 4),
		size:   uint32(len(jpeg)),
	})

	buf := &chunkBuffer{}
	buf.fourCC("00dc")
	buf.u32(uint32(len(jpeg)))
	buf.data = append(buf.data, jpeg...)
	if len(jpeg)%2 == 1 {
		buf.data = append(buf.data, 0)
	}
	if _, err := w.file.Write(buf.data); err != nil {
		return err
	}
	w.numFrames++
	return nil
}

func (w *aviWriter) Close() error {
	moviEnd, err := w.file.Seek(0, 2)
	if err != nil {
		w.file.Close()
		return err
	}

	// idx1
	buf := &chunkBuffer{}
	buf.fourCC("idx1")
	buf.u32(uint32(len(w.index) * 16))
	for _, e := range w.index {
		buf.fourCC("00dc")
		buf.u32(aviIndexKeyFrame)
		buf.u32(e.offset)
		buf.u32(e.size)
	}
	if _, err := w.file.Write(buf.data); err != nil {
		w.file.Close()
		return err
	}
	fileEnd, err := w.file.Seek(0, 2)
	if err != nil {
		w.file.Close()
		return err
	}

	patch := func(offset int64, value uint32) error {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], value)
		_, err := w.file.WriteAt(b[:], offset)
		return err
	}
	err = patch(4, uint32(fileEnd-8))
	if err == nil {
		err = patch(w.totalFramesOffset, w.numFrames)
	}
	if err == nil {
		err = patch(w.streamLengthOffset, w.numFrames)
	}
	if err == nil {
		err = patch(w.moviStart, uint32(moviEnd-w.moviStart-4))
	}
	if err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// chunkBuffer accumulates little-endian RIFF data
type chunkBuffer struct {
	data []byte
}

func (b *chunkBuffer) len() int {
	return len(b.data)
}

func (b *chunkBuffer) fourCC(s string) {
	b.data = append(b.data, s...)
}

func (b *chunkBuffer) u32(v uint32) {
	b.data = binary.LittleEndian.AppendUint32(b.data, v)
}

func (b *chunkBuffer) u16(v uint16) {
	b.data = binary.LittleEndian.AppendUint16(b.data, v)
}

// reserveU32 writes a placeholder and returns its offset for patchU32
func (b *chunkBuffer) reserveU32() int {
	at := len(b.data)
	b.u32(0)
	return at
}

func (b *chunkBuffer) patchU32(at int, v uint32) {
	binary.LittleEndian.PutUint32(b.data[at:], v)
}
