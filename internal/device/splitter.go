package device

import (
	"bytes"
	"encoding/binary"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

const (
	// minJPEG is the smallest payload treated as a real image; anything
	// shorter is reported to the sink as an empty frame.
	minJPEG = 128
	// maxJPEG bounds buffering while waiting for an end marker.
	maxJPEG = 16 << 20
)

// Splitter is an io.Writer that cuts an MJPEG byte stream into individual
// JPEG images on SOI/EOI markers and hands each to emit.
type Splitter struct {
	buf  []byte
	emit Sink

	// While open, buf starts at the current frame's SOI and pos is where
	// parsing resumes.
	open   bool
	pos    int
	inScan bool
}

// NewSplitter creates a splitter delivering frames to emit.
func NewSplitter(emit Sink) *Splitter {
	return &Splitter{emit: emit}
}

// Write never fails; malformed input is discarded.
func (s *Splitter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	for {
		if !s.open {
			start := bytes.Index(s.buf, jpegSOI)
			if start < 0 {
				// Keep a trailing 0xFF in case it starts the next marker.
				if n := len(s.buf); n > 0 && s.buf[n-1] == 0xFF {
					s.buf = append(s.buf[:0], 0xFF)
				} else {
					s.buf = s.buf[:0]
				}
				break
			}
			if start > 0 {
				s.buf = append(s.buf[:0], s.buf[start:]...)
			}
			s.open, s.pos, s.inScan = true, len(jpegSOI), false
		}

		end := s.frameEnd()
		if end < 0 {
			if len(s.buf) > maxJPEG {
				s.buf = s.buf[:0]
				s.open = false
			}
			break
		}

		frame := make([]byte, end)
		copy(frame, s.buf[:end])
		if len(frame) < minJPEG {
			s.emit(nil)
		} else {
			s.emit(frame)
		}
		s.buf = append(s.buf[:0], s.buf[end:]...)
		s.open = false
	}
	return len(p), nil
}

// frameEnd returns the length of the open frame, or -1 until its EOI has
// arrived. Marker segments ahead of the scan data are skipped by their
// length field, so an EXIF thumbnail's own SOI/EOI pair does not end the
// frame. Input that is not a well-formed segment list falls back to the
// first EOI.
func (s *Splitter) frameEnd() int {
	for !s.inScan {
		if s.pos+2 > len(s.buf) {
			return -1
		}
		if s.buf[s.pos] != 0xFF {
			s.inScan = true
			break
		}
		switch m := s.buf[s.pos+1]; {
		case m == 0xFF:
			s.pos++ // fill byte
		case m == 0xD9:
			return s.pos + 2
		case m == 0x01 || m == 0xD8 || (m >= 0xD0 && m <= 0xD7):
			s.pos += 2
		default:
			if s.pos+4 > len(s.buf) {
				return -1
			}
			n := int(binary.BigEndian.Uint16(s.buf[s.pos+2:]))
			if n < 2 {
				s.inScan = true
				break
			}
			s.pos += 2 + n
			if m == 0xDA {
				s.inScan = true
			}
		}
	}

	if s.pos >= len(s.buf) {
		return -1
	}
	i := bytes.Index(s.buf[s.pos:], jpegEOI)
	if i < 0 {
		// Resume on the last byte in case it is the 0xFF of EOI.
		s.pos = max(s.pos, len(s.buf)-1)
		return -1
	}
	return s.pos + i + 2
}

// lastFrame returns the last complete frame in data, or nil.
func lastFrame(data []byte) []byte {
	var last []byte
	sp := NewSplitter(func(f []byte) {
		if len(f) > 0 {
			last = f
		}
	})
	_, _ = sp.Write(data)
	return last
}
