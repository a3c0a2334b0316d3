// Package varint implements the 7-bit continuation-byte variable-length
// integer encoding used throughout the blob formats (kind tags, n, the
// bit-width fields, and byte counts). The continuation bit is the high
// bit of each byte, set on every byte except the last, the same
// convention the teacher codec uses for its own variable-length marker
// fields.
package varint

import (
	"fmt"
	"io"

	"github.com/efcodec/ef/internal/errs"
)

// WriteTo writes the varint encoding of v directly to w.
func WriteTo(w io.Writer, v uint64) (int64, error) {
	var buf [10]byte
	n := 0
	for v >= 0x80 {
		buf[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	buf[n] = byte(v)
	n++
	written, err := w.Write(buf[:n])
	return int64(written), err
}

// ReadFrom decodes a single varint from r, one byte at a time.
func ReadFrom(r io.Reader) (uint64, int64, error) {
	var v uint64
	var shift uint
	var b [1]byte
	var n int64
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return 0, n, fmt.Errorf("varint: truncated: %w", errs.MalformedBlob)
			}
			return 0, n, err
		}
		n++
		v |= uint64(b[0]&0x7F) << shift
		if b[0]&0x80 == 0 {
			return v, n, nil
		}
		shift += 7
		if shift > 63 {
			return 0, n, fmt.Errorf("varint: value too large: %w", errs.MalformedBlob)
		}
	}
}
