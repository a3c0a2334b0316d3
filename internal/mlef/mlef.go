// Package mlef implements the multi-level Elias-Fano codec: elements
// are recursively split into a prefix and a suffix, the distinct
// prefixes are stored in one EF, and each prefix's suffixes are stored
// in a child index -- a deeper MLEF when the group is large, or a leaf
// EF when it is small.
package mlef

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/efcodec/ef/internal/efcore"
	"github.com/efcodec/ef/internal/errs"
)

// Kind is the leading byte of a serialized non-leaf MLEF blob. A leaf
// MLEF serializes as a plain EF blob (efcore.Kind) instead, since it
// stores nothing beyond the sequence itself.
const Kind = 1

// MLEF is a recursive multi-level Elias-Fano index.
type MLEF struct {
	n int
	d uint
	w uint // active bit width (bit_length of the max element) at this level

	leaf *efcore.EF // non-nil at a leaf (d == 1, n == 1, or b degenerates to 0)

	b            uint // prefix bit width at this level (0 at a leaf)
	shift        uint // W - b, the suffix bit width (0 at a leaf)
	level1       *efcore.EF
	children     []*MLEF
	childOffsets []int // len(children)+1 prefix sums of child lengths
}

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

// New builds an MLEF from a sorted, non-empty sequence at the given
// recursion depth.
func New(sorted []uint64, depth uint) (*MLEF, error) {
	if depth == 0 {
		return nil, fmt.Errorf("mlef: depth must be > 0: %w", errs.InvalidInput)
	}
	if len(sorted) == 0 {
		return nil, fmt.Errorf("mlef: empty sequence: %w", errs.InvalidInput)
	}

	n := len(sorted)
	w := bitLength(sorted[n-1])

	if depth == 1 || n == 1 {
		leaf, err := efcore.New(sorted)
		if err != nil {
			return nil, err
		}
		return &MLEF{n: n, d: depth, w: w, leaf: leaf}, nil
	}

	b := w / depth
	if b == 0 {
		// The prefix would carry no bits at this depth/width combination;
		// fall back to a leaf rather than split into a degenerate,
		// all-elements-share-one-prefix level.
		leaf, err := efcore.New(sorted)
		if err != nil {
			return nil, err
		}
		return &MLEF{n: n, d: depth, w: w, leaf: leaf}, nil
	}

	shift := w - b
	var suffixMask uint64
	if shift < 64 {
		suffixMask = 1<<shift - 1
	} else {
		suffixMask = ^uint64(0)
	}

	var prefixes []uint64
	var children []*MLEF
	childOffsets := []int{0}

	i := 0
	for i < n {
		p := sorted[i] >> shift
		j := i
		var suffixes []uint64
		for j < n && (sorted[j]>>shift) == p {
			suffixes = append(suffixes, sorted[j]&suffixMask)
			j++
		}

		var child *MLEF
		if len(suffixes) > (1 << b) {
			sub, err := New(suffixes, depth-1)
			if err != nil {
				return nil, err
			}
			child = sub
		} else {
			leaf, err := efcore.New(suffixes)
			if err != nil {
				return nil, err
			}
			child = &MLEF{n: len(suffixes), leaf: leaf}
		}

		prefixes = append(prefixes, p)
		children = append(children, child)
		childOffsets = append(childOffsets, childOffsets[len(childOffsets)-1]+len(suffixes))
		i = j
	}

	level1, err := efcore.New(prefixes)
	if err != nil {
		return nil, err
	}

	return &MLEF{
		n:            n,
		d:            depth,
		w:            w,
		b:            b,
		shift:        shift,
		level1:       level1,
		children:     children,
		childOffsets: childOffsets,
	}, nil
}

func (m *MLEF) isLeaf() bool { return m.leaf != nil }

// Len returns the number of stored elements.
func (m *MLEF) Len() int { return m.n }

func (m *MLEF) bucketOf(k int) int {
	return sort.Search(len(m.childOffsets), func(i int) bool { return m.childOffsets[i] > k }) - 1
}

// Select returns the k-th stored element.
func (m *MLEF) Select(k int) (uint64, error) {
	if m.isLeaf() {
		return m.leaf.Select(k)
	}
	if k < 0 || k >= m.n {
		return 0, fmt.Errorf("mlef: select(%d) out of [0,%d): %w", k, m.n, errs.IndexOutOfRange)
	}
	h := m.bucketOf(k)
	l := m.childOffsets[h]
	sup, err := m.level1.Select(h)
	if err != nil {
		return 0, err
	}
	inf, err := m.children[h].Select(k - l)
	if err != nil {
		return 0, err
	}
	return (sup << m.shift) | inf, nil
}

// Match returns, in ascending order, every stored element y satisfying
// (y & ignore) == (value & ignore).
func (m *MLEF) Match(value, ignore uint64) []uint64 {
	if m.isLeaf() {
		return m.leaf.Match(value, ignore)
	}
	supValue, supIgnore := value>>m.shift, ignore>>m.shift
	var suffixMask uint64
	if m.shift < 64 {
		suffixMask = 1<<m.shift - 1
	} else {
		suffixMask = ^uint64(0)
	}
	infValue, infIgnore := value&suffixMask, ignore&suffixMask

	var out []uint64
	for _, p := range m.level1.Match(supValue, supIgnore) {
		lo, _ := m.level1.Rank(p)
		for _, v := range m.children[lo].Match(infValue, infIgnore) {
			out = append(out, (p<<m.shift)|v)
		}
	}
	return out
}

// All returns every stored element in ascending order.
func (m *MLEF) All() []uint64 {
	if m.isLeaf() {
		return m.leaf.All()
	}
	out := make([]uint64, 0, m.n)
	for h, child := range m.children {
		p, _ := m.level1.Select(h)
		for _, v := range child.All() {
			out = append(out, (p<<m.shift)|v)
		}
	}
	return out
}

// BitLength returns the combined bit length of the level-1 structure
// and every child.
func (m *MLEF) BitLength() int {
	if m.isLeaf() {
		return m.leaf.BitLength()
	}
	total := m.level1.BitLength()
	for _, c := range m.children {
		total += c.BitLength()
	}
	return total
}

func byteWidth(v uint64) int {
	if v == 0 {
		return 1
	}
	n := 0
	for v > 0 {
		n++
		v >>= 8
	}
	return n
}

func putUint(buf []byte, v uint64) {
	for i := range buf {
		buf[i] = byte(v)
		v >>= 8
	}
}

func getUint(buf []byte) uint64 {
	var v uint64
	for i := len(buf) - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

// WriteTo serializes the MLEF in the format of spec.md section 4.6. A
// leaf MLEF writes itself as a plain EF blob.
func (m *MLEF) WriteTo(w io.Writer) (int64, error) {
	if m.isLeaf() {
		return m.leaf.WriteTo(w)
	}

	var l1buf bytes.Buffer
	if _, err := m.level1.WriteTo(&l1buf); err != nil {
		return 0, err
	}

	childBufs := make([][]byte, len(m.children))
	maxChildLen := 0
	for i, c := range m.children {
		var cb bytes.Buffer
		if _, err := c.WriteTo(&cb); err != nil {
			return 0, err
		}
		childBufs[i] = cb.Bytes()
		if len(childBufs[i]) > maxChildLen {
			maxChildLen = len(childBufs[i])
		}
	}

	repN := byteWidth(uint64(m.n))
	repL1 := byteWidth(uint64(l1buf.Len()))
	repL2Count := byteWidth(uint64(len(m.children)))
	repMaxL2 := byteWidth(uint64(maxChildLen))

	var out bytes.Buffer
	out.WriteByte(Kind)
	out.WriteByte(byte(repN))
	out.WriteByte(byte(repL1))
	out.WriteByte(byte(repL2Count))
	out.WriteByte(byte(repMaxL2))

	nBuf := make([]byte, repN)
	putUint(nBuf, uint64(m.n))
	out.Write(nBuf)

	out.WriteByte(byte(m.w))
	out.WriteByte(byte(m.d))
	out.WriteByte(byte(m.b))

	l1cBuf := make([]byte, repL1)
	putUint(l1cBuf, uint64(l1buf.Len()))
	out.Write(l1cBuf)

	l2cBuf := make([]byte, repL2Count)
	putUint(l2cBuf, uint64(len(m.children)))
	out.Write(l2cBuf)

	for _, cb := range childBufs {
		cbuf := make([]byte, repMaxL2)
		putUint(cbuf, uint64(len(cb)))
		out.Write(cbuf)
	}

	out.Write(l1buf.Bytes())
	for _, cb := range childBufs {
		out.Write(cb)
	}

	n, err := w.Write(out.Bytes())
	return int64(n), err
}

// ReadFrom deserializes an MLEF (or, transparently, the plain EF blob a
// leaf MLEF writes) from r.
func ReadFrom(r io.Reader) (*MLEF, int64, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(1)
	if err != nil {
		return nil, 0, fmt.Errorf("mlef: truncated blob: %w", errs.MalformedBlob)
	}

	if peek[0] == efcore.Kind {
		ef, n, err := efcore.ReadFrom(br)
		if err != nil {
			return nil, n, err
		}
		return &MLEF{n: ef.Len(), leaf: ef}, n, nil
	}
	if peek[0] != Kind {
		return nil, 0, fmt.Errorf("mlef: unexpected kind byte %d: %w", peek[0], errs.MalformedBlob)
	}

	var total int64
	readByte := func() (byte, error) {
		b, err := br.ReadByte()
		if err == nil {
			total++
		}
		return b, err
	}
	readN := func(n int) ([]byte, error) {
		buf := make([]byte, n)
		read, err := io.ReadFull(br, buf)
		total += int64(read)
		return buf, err
	}

	if _, err := readByte(); err != nil { // consume kind
		return nil, total, fmt.Errorf("mlef: truncated blob: %w", errs.MalformedBlob)
	}
	repNByte, err := readByte()
	if err != nil {
		return nil, total, fmt.Errorf("mlef: truncated blob: %w", errs.MalformedBlob)
	}
	repL1Byte, err := readByte()
	if err != nil {
		return nil, total, fmt.Errorf("mlef: truncated blob: %w", errs.MalformedBlob)
	}
	repL2CountByte, err := readByte()
	if err != nil {
		return nil, total, fmt.Errorf("mlef: truncated blob: %w", errs.MalformedBlob)
	}
	repMaxL2Byte, err := readByte()
	if err != nil {
		return nil, total, fmt.Errorf("mlef: truncated blob: %w", errs.MalformedBlob)
	}

	nBuf, err := readN(int(repNByte))
	if err != nil {
		return nil, total, fmt.Errorf("mlef: truncated n field: %w", errs.MalformedBlob)
	}
	n := int(getUint(nBuf))

	wByte, err := readByte()
	if err != nil {
		return nil, total, fmt.Errorf("mlef: truncated blob: %w", errs.MalformedBlob)
	}
	dByte, err := readByte()
	if err != nil {
		return nil, total, fmt.Errorf("mlef: truncated blob: %w", errs.MalformedBlob)
	}
	bByte, err := readByte()
	if err != nil {
		return nil, total, fmt.Errorf("mlef: truncated blob: %w", errs.MalformedBlob)
	}

	l1cBuf, err := readN(int(repL1Byte))
	if err != nil {
		return nil, total, fmt.Errorf("mlef: truncated L1 byte count: %w", errs.MalformedBlob)
	}
	l1ByteCount := getUint(l1cBuf)

	l2cBuf, err := readN(int(repL2CountByte))
	if err != nil {
		return nil, total, fmt.Errorf("mlef: truncated L2 count: %w", errs.MalformedBlob)
	}
	l2Count := int(getUint(l2cBuf))

	childByteCounts := make([]uint64, l2Count)
	for i := 0; i < l2Count; i++ {
		cbuf, err := readN(int(repMaxL2Byte))
		if err != nil {
			return nil, total, fmt.Errorf("mlef: truncated per-child byte count %d: %w", i, errs.MalformedBlob)
		}
		childByteCounts[i] = getUint(cbuf)
	}

	l1Buf, err := readN(int(l1ByteCount))
	if err != nil {
		return nil, total, fmt.Errorf("mlef: truncated level-1 payload: %w", errs.MalformedBlob)
	}
	level1, _, err := efcore.ReadFrom(bytes.NewReader(l1Buf))
	if err != nil {
		return nil, total, err
	}
	if level1.Len() != l2Count {
		return nil, total, fmt.Errorf("mlef: level-1 has %d entries, want %d children: %w", level1.Len(), l2Count, errs.MalformedBlob)
	}

	children := make([]*MLEF, l2Count)
	childOffsets := make([]int, l2Count+1)
	for i := 0; i < l2Count; i++ {
		cbuf, err := readN(int(childByteCounts[i]))
		if err != nil {
			return nil, total, fmt.Errorf("mlef: truncated child %d payload: %w", i, errs.MalformedBlob)
		}
		child, _, err := ReadFrom(bytes.NewReader(cbuf))
		if err != nil {
			return nil, total, err
		}
		children[i] = child
		childOffsets[i+1] = childOffsets[i] + child.Len()
	}
	if childOffsets[l2Count] != n {
		return nil, total, fmt.Errorf("mlef: children total %d elements, want %d: %w", childOffsets[l2Count], n, errs.MalformedBlob)
	}

	w := uint(wByte)
	shift := uint(0)
	if w > uint(bByte) {
		shift = w - uint(bByte)
	}

	return &MLEF{
		n:            n,
		d:            uint(dByte),
		w:            w,
		b:            uint(bByte),
		shift:        shift,
		level1:       level1,
		children:     children,
		childOffsets: childOffsets,
	}, total, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *MLEF) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *MLEF) UnmarshalBinary(data []byte) error {
	decoded, _, err := ReadFrom(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}
