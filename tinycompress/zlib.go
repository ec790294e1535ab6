// Package tinycompress writes and reads zlib streams made of stored
// (uncompressed) DEFLATE blocks. The output is valid zlib, so any inflater
// reads it, but the encoder needs no tables and allocates once.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

var (
	ErrHeader   = errors.New("zlib: invalid header")
	ErrCorrupt  = errors.New("zlib: corrupt stream")
	ErrChecksum = errors.New("zlib: adler32 mismatch")
	// ErrUnsupported is returned for streams with compressed blocks.
	ErrUnsupported = errors.New("zlib: only stored blocks are supported")
)

// maxBlock is the largest payload of one stored block.
const maxBlock = 0xFFFF

var header = [2]byte{0x78, 0x9C}

// Writer buffers everything written and emits the zlib stream on Close.
type Writer struct {
	output io.Writer
	buf    []byte
	closed bool
}

// NewWriter creates a Writer that emits to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{output: w, buf: make([]byte, 0, 1024)}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes the header, one stored block per 64KiB of input and the
// Adler-32 trailer. An empty input still yields one final empty block.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	out := make([]byte, 0, len(w.buf)+len(w.buf)/maxBlock*5+11)
	out = append(out, header[:]...)

	data := w.buf
	for {
		n := len(data)
		if n > maxBlock {
			n = maxBlock
		}
		final := byte(0)
		if n == len(data) {
			final = 1
		}
		length := uint16(n)
		out = append(out, final,
			byte(length), byte(length>>8),
			byte(^length), byte(^length>>8))
		out = append(out, data[:n]...)
		data = data[n:]
		if final == 1 {
			break
		}
	}

	sum := adler32.Checksum(w.buf)
	out = append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))

	_, err := w.output.Write(out)
	return err
}

// Compress returns data as a zlib stream.
func Compress(data []byte) []byte {
	var out sliceWriter
	w := NewWriter(&out)
	w.Write(data)
	w.Close()
	return out
}

type sliceWriter []byte

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s = append(*s, p...)
	return len(p), nil
}

// Decompress reads a zlib stream of stored blocks and verifies its
// checksum.
func Decompress(stream []byte) ([]byte, error) {
	if len(stream) < 2 || stream[0] != header[0] || (uint16(stream[0])<<8|uint16(stream[1]))%31 != 0 {
		return nil, ErrHeader
	}
	pos := 2
	var out []byte

	for {
		if pos >= len(stream) {
			return nil, ErrCorrupt
		}
		blockHeader := stream[pos]
		pos++
		if (blockHeader>>1)&0x03 != 0 {
			return nil, ErrUnsupported
		}
		if pos+4 > len(stream) {
			return nil, ErrCorrupt
		}

		length := int(stream[pos]) | int(stream[pos+1])<<8
		nlength := int(stream[pos+2]) | int(stream[pos+3])<<8
		pos += 4
		if length != ^nlength&0xFFFF || pos+length > len(stream) {
			return nil, ErrCorrupt
		}
		out = append(out, stream[pos:pos+length]...)
		pos += length

		if blockHeader&0x01 != 0 {
			break
		}
	}

	if pos+4 != len(stream) {
		return nil, ErrCorrupt
	}
	want := uint32(stream[pos])<<24 | uint32(stream[pos+1])<<16 |
		uint32(stream[pos+2])<<8 | uint32(stream[pos+3])
	if adler32.Checksum(out) != want {
		return nil, ErrChecksum
	}
	return out, nil
}
