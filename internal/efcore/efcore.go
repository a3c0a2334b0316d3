// Package efcore implements the core Elias-Fano codec: the split of
// each element into upper and lower halves, the negated-unary bucket
// representation of the upper halves, the fixed-width packing of the
// lower halves, and the select/rank/nextGEQ/nextLEQ/match queries built
// atop them.
package efcore

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/efcodec/ef/internal/bitio"
	"github.com/efcodec/ef/internal/errs"
	"github.com/efcodec/ef/internal/varint"
)

// Kind is the leading byte of a serialized blob, identifying which
// codec produced it.
const Kind = 0

// EF is a quasi-succinct encoding of a monotone non-decreasing sequence
// of uint64 values. It is built once from a sorted slice and is
// immutable thereafter.
type EF struct {
	n     int
	ell   uint // lower bit width
	h     uint // upper bit width
	lower *bitio.PackedArray

	upper    []byte // negated-unary stream over 2^h buckets
	upperLen uint   // bit length of upper, == n + 2^h
	buckets  int    // 2^h

	// P[s] is the index of the first element whose upper half is >= s,
	// for s in [0, buckets]. P[buckets] == n.
	P []int
}

// bitLength returns the number of bits needed to represent x, with the
// convention bitLength(0) = 1 (spec's fix for the off-by-one universe
// computation when the maximum element is zero or a power of two).
func bitLength(x uint64) uint {
	n := uint(0)
	for x > 0 {
		n++
		x >>= 1
	}
	if n == 0 {
		return 1
	}
	return n
}

// ceilLog2 returns ceil(log2(n)) for n >= 1, with ceilLog2(1) == 0.
func ceilLog2(n int) uint {
	if n <= 1 {
		return 0
	}
	v := uint64(n - 1)
	bits := uint(0)
	for v > 0 {
		bits++
		v >>= 1
	}
	return bits
}

// New builds an EF from a sorted, non-empty sequence.
func New(sorted []uint64) (*EF, error) {
	if len(sorted) == 0 {
		return nil, fmt.Errorf("efcore: empty sequence: %w", errs.InvalidInput)
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i] < sorted[i-1] {
			return nil, fmt.Errorf("efcore: sequence not monotone non-decreasing at index %d: %w", i, errs.InvalidInput)
		}
	}

	n := len(sorted)
	w := bitLength(sorted[n-1])
	h := ceilLog2(n)
	var ell uint
	if w > h {
		ell = w - h
	}
	buckets := 1 << h

	var lowMask uint64
	if ell < 64 {
		lowMask = 1<<ell - 1
	} else {
		lowMask = ^uint64(0)
	}

	lower := bitio.NewPackedArray(n, ell)
	counts := make([]int, buckets)
	for i, x := range sorted {
		s := int(x >> ell)
		if s < 0 || s >= buckets {
			return nil, fmt.Errorf("efcore: element %d upper half %d exceeds bucket count %d: %w", i, s, buckets, errs.InvalidInput)
		}
		counts[s]++
		lower.Set(i, x&lowMask)
	}

	bw := bitio.NewBucketWriter(n, buckets)
	for _, c := range counts {
		bw.WriteBucket(c)
	}

	p := make([]int, buckets+1)
	for s := 0; s < buckets; s++ {
		p[s+1] = p[s] + counts[s]
	}

	return &EF{
		n:       n,
		ell:     ell,
		h:       h,
		lower:   lower,
		upper:   bw.Bytes(),
		upperLen: bw.Len(),
		buckets: buckets,
		P:       p,
	}, nil
}

// Len returns the number of stored elements.
func (e *EF) Len() int { return e.n }

// bucketOf returns the unique s with P[s] <= k < P[s+1].
func (e *EF) bucketOf(k int) int {
	// P is non-decreasing; find the rightmost s with P[s] <= k.
	return sort.Search(len(e.P), func(i int) bool { return e.P[i] > k }) - 1
}

// Select returns the k-th stored element (0-based).
func (e *EF) Select(k int) (uint64, error) {
	if k < 0 || k >= e.n {
		return 0, fmt.Errorf("efcore: select(%d) out of [0,%d): %w", k, e.n, errs.IndexOutOfRange)
	}
	s := e.bucketOf(k)
	low := e.lower.Get(k)
	return (uint64(s) << e.ell) | low, nil
}

func (e *EF) lowMask() uint64 {
	if e.ell >= 64 {
		return ^uint64(0)
	}
	return 1<<e.ell - 1
}

// Rank returns the contiguous index range [lo, hi) of elements equal to
// x. The range is empty (lo == hi) if x is not present.
func (e *EF) Rank(x uint64) (lo, hi int) {
	s := x >> e.ell
	if s >= uint64(e.buckets) {
		return e.n, e.n
	}
	v := x & e.lowMask()
	a, b := e.P[s], e.P[s+1]
	if a >= b {
		return a, a
	}
	i := sort.Search(b-a, func(i int) bool { return e.lower.Get(a+i) >= v })
	start := a + i
	if start >= b || e.lower.Get(start) != v {
		return start, start
	}
	j := sort.Search(b-start, func(i int) bool { return e.lower.Get(start+i) > v })
	return start, start + j
}

// NextGEQ returns the smallest stored value >= x.
func (e *EF) NextGEQ(x uint64) (uint64, error) {
	first, _ := e.Select(0)
	if x <= first {
		return first, nil
	}
	last, _ := e.Select(e.n - 1)
	if x > last {
		return 0, fmt.Errorf("efcore: next_geq(%d) exceeds max %d: %w", x, last, errs.OutOfUniverse)
	}
	s := x >> e.ell
	v := x & e.lowMask()
	a, b := e.P[s], e.P[s+1]
	k := a + sort.Search(b-a, func(i int) bool { return e.lower.Get(a+i) >= v })
	if k < b {
		return e.Select(k)
	}
	return e.Select(b)
}

// NextLEQ returns the largest stored value <= x.
func (e *EF) NextLEQ(x uint64) (uint64, error) {
	first, _ := e.Select(0)
	if x < first {
		return 0, fmt.Errorf("efcore: next_leq(%d) below min %d: %w", x, first, errs.OutOfUniverse)
	}
	last, _ := e.Select(e.n - 1)
	if x >= last {
		return last, nil
	}
	g, err := e.NextGEQ(x)
	if err != nil {
		return 0, err
	}
	if g == x {
		return x, nil
	}
	j, _ := e.Rank(g)
	idx := j - 1
	if idx < 0 {
		idx = 0
	}
	return e.Select(idx)
}

// Match returns, in ascending order, every stored element y satisfying
// (y & ignore) == (value & ignore).
func (e *EF) Match(value, ignore uint64) []uint64 {
	sv, si := value>>e.ell, ignore>>e.ell
	vv, vi := value&e.lowMask(), ignore&e.lowMask()

	var out []uint64
	for s := 0; s < e.buckets; s++ {
		a, b := e.P[s], e.P[s+1]
		if a == b {
			continue
		}
		if (uint64(s)&si) != (sv & si) {
			continue
		}
		for k := a; k < b; k++ {
			w := e.lower.Get(k)
			if (w & vi) == (vv & vi) {
				out = append(out, (uint64(s)<<e.ell)|w)
			}
		}
	}
	return out
}

// All returns every stored element in ascending order.
func (e *EF) All() []uint64 {
	out := make([]uint64, 0, e.n)
	for s := 0; s < e.buckets; s++ {
		a, b := e.P[s], e.P[s+1]
		for k := a; k < b; k++ {
			out = append(out, (uint64(s)<<e.ell)|e.lower.Get(k))
		}
	}
	return out
}

// BitLength returns the total size of the encoding in bits:
// (n + 2^h) + n*ell.
func (e *EF) BitLength() int {
	return e.n + e.buckets + e.n*int(e.ell)
}

// CompressionRatio returns (n * log2(u)) / bit_length, where u is taken
// as 2^(ell+h) -- the tight representable bound guaranteed by the
// encoding's own invariant, so the ratio survives a serialize/deserialize
// round trip even though the blob format does not separately store the
// construction-time universe exponent.
func (e *EF) CompressionRatio() float64 {
	logU := float64(e.ell + e.h)
	return (float64(e.n) * logU) / float64(e.BitLength())
}

// WriteTo serializes the EF to w in the format of spec.md section 4.6.
func (e *EF) WriteTo(w io.Writer) (int64, error) {
	var total int64
	write := func(v uint64) error {
		n, err := varint.WriteTo(w, v)
		total += n
		return err
	}
	if err := write(Kind); err != nil {
		return total, err
	}
	if err := write(uint64(e.n)); err != nil {
		return total, err
	}
	if err := write(uint64(e.ell)); err != nil {
		return total, err
	}
	if err := write(uint64(e.h)); err != nil {
		return total, err
	}
	lowerBytes := e.lower.Bytes()
	upperByteLen := (int(e.upperLen) + 7) / 8
	if err := write(uint64(len(lowerBytes))); err != nil {
		return total, err
	}
	if err := write(uint64(upperByteLen)); err != nil {
		return total, err
	}
	if len(lowerBytes) > 0 {
		n, err := w.Write(lowerBytes)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	if upperByteLen > 0 {
		n, err := w.Write(e.upper[:upperByteLen])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadFrom deserializes an EF from r.
func ReadFrom(r io.Reader) (*EF, int64, error) {
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
		return nil, total, fmt.Errorf("efcore: unexpected kind byte %d: %w", kind, errs.MalformedBlob)
	}
	n64, err := readVarint()
	if err != nil {
		return nil, total, err
	}
	ell64, err := readVarint()
	if err != nil {
		return nil, total, err
	}
	h64, err := readVarint()
	if err != nil {
		return nil, total, err
	}
	bl, err := readVarint()
	if err != nil {
		return nil, total, err
	}
	bu, err := readVarint()
	if err != nil {
		return nil, total, err
	}

	n := int(n64)
	ell := uint(ell64)
	h := uint(h64)
	buckets := 1 << h
	upperLen := uint(n) + uint(buckets)
	if bl != (uint64(n)*uint64(ell)+7)/8 || bu != (uint64(upperLen)+7)/8 {
		return nil, total, fmt.Errorf("efcore: payload byte counts %d/%d do not fit n=%d ell=%d h=%d: %w", bl, bu, n, ell, h, errs.MalformedBlob)
	}

	lowerBuf := make([]byte, bl)
	if bl > 0 {
		read, err := io.ReadFull(r, lowerBuf)
		total += int64(read)
		if err != nil {
			return nil, total, fmt.Errorf("efcore: truncated lower payload: %w", errs.MalformedBlob)
		}
	}
	upperBuf := make([]byte, bu)
	if bu > 0 {
		read, err := io.ReadFull(r, upperBuf)
		total += int64(read)
		if err != nil {
			return nil, total, fmt.Errorf("efcore: truncated upper payload: %w", errs.MalformedBlob)
		}
	}

	counts, ok := bitio.ReadBucketCounts(upperBuf, upperLen, buckets)
	if !ok {
		return nil, total, fmt.Errorf("efcore: upper stream does not contain %d buckets: %w", buckets, errs.MalformedBlob)
	}
	p := make([]int, buckets+1)
	for s := 0; s < buckets; s++ {
		p[s+1] = p[s] + counts[s]
	}
	if p[buckets] != n {
		return nil, total, fmt.Errorf("efcore: bucket counts sum to %d, want %d: %w", p[buckets], n, errs.MalformedBlob)
	}

	lower := bitio.WrapPackedArray(lowerBuf, n, ell)

	return &EF{
		n:        n,
		ell:      ell,
		h:        h,
		lower:    lower,
		upper:    upperBuf,
		upperLen: upperLen,
		buckets:  buckets,
		P:        p,
	}, total, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e *EF) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler by replacing the
// receiver's contents with the decoded blob.
func (e *EF) UnmarshalBinary(data []byte) error {
	decoded, _, err := ReadFrom(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*e = *decoded
	return nil
}
