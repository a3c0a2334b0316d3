// Package upef implements the uniformly-partitioned Elias-Fano codec:
// the input is split into fixed-size chunks, the chunk anchors (first
// element of each chunk) are stored in one EF, and each chunk's
// residuals (element minus anchor) are stored in their own EF.
package upef

import (
	"bytes"
	"fmt"
	"io"

	"github.com/efcodec/ef/internal/efcore"
	"github.com/efcodec/ef/internal/errs"
	"github.com/efcodec/ef/internal/varint"
)

// Kind is the leading byte of a serialized UPEF blob.
const Kind = 2

// UPEF partitions a sorted sequence into chunks of b elements and
// encodes each chunk relative to its own first element.
type UPEF struct {
	n      int
	b      int
	anchors *efcore.EF
	chunks  []*efcore.EF
}

// New builds a UPEF from a sorted, non-empty sequence with chunk size b.
func New(sorted []uint64, b uint) (*UPEF, error) {
	if b == 0 {
		return nil, fmt.Errorf("upef: chunk size must be > 0: %w", errs.InvalidInput)
	}
	if len(sorted) == 0 {
		return nil, fmt.Errorf("upef: empty sequence: %w", errs.InvalidInput)
	}

	bi := int(b)
	numChunks := (len(sorted) + bi - 1) / bi
	anchorVals := make([]uint64, 0, numChunks)
	chunks := make([]*efcore.EF, 0, numChunks)

	for j := 0; j < numChunks; j++ {
		start := j * bi
		end := start + bi
		if end > len(sorted) {
			end = len(sorted)
		}
		chunk := sorted[start:end]
		anchor := chunk[0]
		anchorVals = append(anchorVals, anchor)

		residuals := make([]uint64, len(chunk))
		for i, v := range chunk {
			residuals[i] = v - anchor
		}
		ef, err := efcore.New(residuals)
		if err != nil {
			return nil, fmt.Errorf("upef: chunk %d: %w", j, err)
		}
		chunks = append(chunks, ef)
	}

	anchors, err := efcore.New(anchorVals)
	if err != nil {
		return nil, fmt.Errorf("upef: anchors: %w", err)
	}

	return &UPEF{n: len(sorted), b: bi, anchors: anchors, chunks: chunks}, nil
}

// Len returns the number of stored elements.
func (u *UPEF) Len() int { return u.n }

// Select returns the i-th stored element.
func (u *UPEF) Select(i int) (uint64, error) {
	if i < 0 || i >= u.n {
		return 0, fmt.Errorf("upef: select(%d) out of [0,%d): %w", i, u.n, errs.IndexOutOfRange)
	}
	j, k := i/u.b, i%u.b
	anchor, err := u.anchors.Select(j)
	if err != nil {
		return 0, err
	}
	residual, err := u.chunks[j].Select(k)
	if err != nil {
		return 0, err
	}
	return anchor + residual, nil
}

// Rank returns the index of x in the structure, or errs.NotPresent if x
// is absent.
func (u *UPEF) Rank(x uint64) (int, error) {
	anchorVal, err := u.anchors.NextLEQ(x)
	if err != nil {
		return 0, fmt.Errorf("upef: rank(%d): %w", x, errs.NotPresent)
	}
	j, _ := u.anchors.Rank(anchorVal)
	if x < anchorVal {
		return 0, fmt.Errorf("upef: rank(%d): %w", x, errs.NotPresent)
	}
	e := x - anchorVal
	k, khi := u.chunks[j].Rank(e)
	if k == khi {
		return 0, fmt.Errorf("upef: rank(%d): %w", x, errs.NotPresent)
	}
	// Copies of x may also end the preceding chunk(s); step back to the
	// first one.
	for j > 0 && k == 0 {
		prevAnchor, _ := u.anchors.Select(j - 1)
		pk, pkhi := u.chunks[j-1].Rank(x - prevAnchor)
		if pk == pkhi {
			break
		}
		j, k = j-1, pk
	}
	return j*u.b + k, nil
}

// BitLength returns the combined bit length of the anchor and residual
// structures.
func (u *UPEF) BitLength() int {
	total := u.anchors.BitLength()
	for _, c := range u.chunks {
		total += c.BitLength()
	}
	return total
}

// All returns every stored element in ascending order.
func (u *UPEF) All() []uint64 {
	out := make([]uint64, 0, u.n)
	for j, chunk := range u.chunks {
		anchor, _ := u.anchors.Select(j)
		for _, r := range chunk.All() {
			out = append(out, anchor+r)
		}
	}
	return out
}

// WriteTo serializes the UPEF. The format is self-describing: a kind
// byte, n, b, then the anchors EF blob, then each chunk's EF blob in
// sequence -- each blob is itself self-delimiting (it carries its own
// element/byte counts), so no extra length prefixes are needed between
// chunks.
func (u *UPEF) WriteTo(w io.Writer) (int64, error) {
	var total int64
	write := func(v uint64) error {
		n, err := varint.WriteTo(w, v)
		total += n
		return err
	}
	if err := write(Kind); err != nil {
		return total, err
	}
	if err := write(uint64(u.n)); err != nil {
		return total, err
	}
	if err := write(uint64(u.b)); err != nil {
		return total, err
	}
	n, err := u.anchors.WriteTo(w)
	total += n
	if err != nil {
		return total, err
	}
	for _, c := range u.chunks {
		n, err := c.WriteTo(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadFrom deserializes a UPEF from r.
func ReadFrom(r io.Reader) (*UPEF, int64, error) {
	var total int64
	readVarint := func() (uint64, error) {
		v, n, err := varint.ReadFrom(r)
		total += n
		return v, err
	}

	kind, err := readVarint()
	if err != nil {
		return nil, total, err
	}
	if kind != Kind {
		return nil, total, fmt.Errorf("upef: unexpected kind byte %d: %w", kind, errs.MalformedBlob)
	}
	n64, err := readVarint()
	if err != nil {
		return nil, total, err
	}
	b64, err := readVarint()
	if err != nil {
		return nil, total, err
	}
	if b64 == 0 {
		return nil, total, fmt.Errorf("upef: zero chunk size: %w", errs.MalformedBlob)
	}

	anchors, n, err := efcore.ReadFrom(r)
	total += n
	if err != nil {
		return nil, total, err
	}

	numChunks := anchors.Len()
	chunks := make([]*efcore.EF, 0, numChunks)
	for j := 0; j < numChunks; j++ {
		c, n, err := efcore.ReadFrom(r)
		total += n
		if err != nil {
			return nil, total, err
		}
		chunks = append(chunks, c)
	}
	sum := 0
	for j, c := range chunks {
		if c.Len() > int(b64) || (j < numChunks-1 && c.Len() != int(b64)) {
			return nil, total, fmt.Errorf("upef: chunk %d has %d elements with chunk size %d: %w", j, c.Len(), b64, errs.MalformedBlob)
		}
		sum += c.Len()
	}
	if sum != int(n64) {
		return nil, total, fmt.Errorf("upef: chunks total %d elements, want %d: %w", sum, n64, errs.MalformedBlob)
	}

	return &UPEF{n: int(n64), b: int(b64), anchors: anchors, chunks: chunks}, total, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (u *UPEF) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := u.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (u *UPEF) UnmarshalBinary(data []byte) error {
	decoded, _, err := ReadFrom(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*u = *decoded
	return nil
}
