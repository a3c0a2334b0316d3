// Package ef implements quasi-succinct Elias-Fano encoding for sorted
// sequences of non-negative integers, plus two composite layouts built
// on top of it: a uniformly-partitioned codec (UPEF) that chunks a
// long sequence for fast localized rank queries, and a multi-level
// codec (MLEF) that recursively splits each element into prefix and
// suffix bits.
//
// All three codecs share the same query surface -- Len, Select, All,
// and BitLength -- plus whatever extra queries each layout supports:
// Match on EF and MLEF, Rank on EF and UPEF, and NextGEQ, NextLEQ and
// CompressionRatio on EF only. Every type
// implements io.WriterTo and encoding.BinaryMarshaler/
// BinaryUnmarshaler, with a matching package-level ReadXxx and
// ToFile/XxxFromFile pair for round-tripping through a file in one
// step.
//
// Basic usage:
//
//	e, err := ef.New([]uint64{123, 1343, 2141, 35312, 4343434})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v, err := e.Select(2) // 2141
//	lo, hi := e.Rank(2141) // [2, 3)
package ef

import (
	"encoding"
	"io"
	"os"

	"github.com/efcodec/ef/internal/efcore"
	"github.com/efcodec/ef/internal/errs"
	"github.com/efcodec/ef/internal/mlef"
	"github.com/efcodec/ef/internal/upef"
)

// Sentinel errors shared by every codec in this package. Test for them
// with errors.Is; each is wrapped with call-specific context via
// fmt.Errorf before it is returned.
var (
	ErrIndexOutOfRange = errs.IndexOutOfRange
	ErrOutOfUniverse   = errs.OutOfUniverse
	ErrNotPresent      = errs.NotPresent
	ErrInvalidInput    = errs.InvalidInput
	ErrMalformedBlob   = errs.MalformedBlob
)

// EF is a quasi-succinct Elias-Fano index over a sorted sequence of
// uint64 values.
type EF struct {
	core *efcore.EF
}

// New builds an EF from sorted, a non-decreasing sequence of uint64.
func New(sorted []uint64) (*EF, error) {
	core, err := efcore.New(sorted)
	if err != nil {
		return nil, err
	}
	return &EF{core: core}, nil
}

// Len returns the number of stored elements.
func (e *EF) Len() int { return e.core.Len() }

// Select returns the k-th smallest stored element (0-indexed).
func (e *EF) Select(k int) (uint64, error) { return e.core.Select(k) }

// Rank returns the contiguous index range [lo, hi) of elements equal
// to x. lo == hi means x is not present; lo is then the insertion
// point (the number of stored elements less than x).
func (e *EF) Rank(x uint64) (lo, hi int) { return e.core.Rank(x) }

// NextGEQ returns the smallest stored element >= x.
func (e *EF) NextGEQ(x uint64) (uint64, error) { return e.core.NextGEQ(x) }

// NextLEQ returns the largest stored element <= x.
func (e *EF) NextLEQ(x uint64) (uint64, error) { return e.core.NextLEQ(x) }

// Match returns, in ascending order, every stored element y for which
// (y & ignore) == (value & ignore). A zero ignore mask matches every
// element; an all-ones mask performs an exact lookup.
func (e *EF) Match(value, ignore uint64) []uint64 { return e.core.Match(value, ignore) }

// All returns every stored element in ascending order.
func (e *EF) All() []uint64 { return e.core.All() }

// BitLength returns the size of the encoded structure in bits.
func (e *EF) BitLength() int { return e.core.BitLength() }

// CompressionRatio returns the ratio of the naive fixed-width encoding
// size to the actual encoded size.
func (e *EF) CompressionRatio() float64 { return e.core.CompressionRatio() }

// WriteTo serializes the index to w.
func (e *EF) WriteTo(w io.Writer) (int64, error) { return e.core.WriteTo(w) }

// MarshalBinary implements encoding.BinaryMarshaler.
func (e *EF) MarshalBinary() ([]byte, error) { return e.core.MarshalBinary() }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *EF) UnmarshalBinary(data []byte) error {
	core := &efcore.EF{}
	if err := core.UnmarshalBinary(data); err != nil {
		return err
	}
	e.core = core
	return nil
}

// ReadEF deserializes an EF from r.
func ReadEF(r io.Reader) (*EF, int64, error) {
	core, n, err := efcore.ReadFrom(r)
	if err != nil {
		return nil, n, err
	}
	return &EF{core: core}, n, nil
}

// ToFile writes the index to the file at path, creating or truncating
// it as needed.
func (e *EF) ToFile(path string) error { return writeFile(path, e) }

// EFFromFile reads an EF previously written with ToFile.
func EFFromFile(path string) (*EF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	e, _, err := ReadEF(f)
	return e, err
}

// UPEF is a uniformly-partitioned Elias-Fano index: the sequence is
// split into fixed-size chunks, each encoded relative to its own first
// element.
type UPEF struct {
	core *upef.UPEF
}

// NewUPEF builds a UPEF from a sorted, non-empty sequence with the
// given chunk size.
func NewUPEF(sorted []uint64, chunkSize uint) (*UPEF, error) {
	core, err := upef.New(sorted, chunkSize)
	if err != nil {
		return nil, err
	}
	return &UPEF{core: core}, nil
}

// Len returns the number of stored elements.
func (u *UPEF) Len() int { return u.core.Len() }

// Select returns the i-th smallest stored element.
func (u *UPEF) Select(i int) (uint64, error) { return u.core.Select(i) }

// Rank returns the index of x, or ErrNotPresent if x is absent.
func (u *UPEF) Rank(x uint64) (int, error) { return u.core.Rank(x) }

// All returns every stored element in ascending order.
func (u *UPEF) All() []uint64 { return u.core.All() }

// BitLength returns the size of the encoded structure in bits.
func (u *UPEF) BitLength() int { return u.core.BitLength() }

// WriteTo serializes the index to w.
func (u *UPEF) WriteTo(w io.Writer) (int64, error) { return u.core.WriteTo(w) }

// MarshalBinary implements encoding.BinaryMarshaler.
func (u *UPEF) MarshalBinary() ([]byte, error) { return u.core.MarshalBinary() }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (u *UPEF) UnmarshalBinary(data []byte) error {
	core := &upef.UPEF{}
	if err := core.UnmarshalBinary(data); err != nil {
		return err
	}
	u.core = core
	return nil
}

// ReadUPEF deserializes a UPEF from r.
func ReadUPEF(r io.Reader) (*UPEF, int64, error) {
	core, n, err := upef.ReadFrom(r)
	if err != nil {
		return nil, n, err
	}
	return &UPEF{core: core}, n, nil
}

// ToFile writes the index to the file at path, creating or truncating
// it as needed.
func (u *UPEF) ToFile(path string) error { return writeFile(path, u) }

// UPEFFromFile reads a UPEF previously written with ToFile.
func UPEFFromFile(path string) (*UPEF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	u, _, err := ReadUPEF(f)
	return u, err
}

// MLEF is a multi-level Elias-Fano index: elements are recursively
// split into a prefix, indexed in one level, and a suffix, indexed
// in a deeper level or a leaf.
type MLEF struct {
	core *mlef.MLEF
}

// NewMLEF builds an MLEF from a sorted, non-empty sequence at the
// given recursion depth.
func NewMLEF(sorted []uint64, depth uint) (*MLEF, error) {
	core, err := mlef.New(sorted, depth)
	if err != nil {
		return nil, err
	}
	return &MLEF{core: core}, nil
}

// Len returns the number of stored elements.
func (m *MLEF) Len() int { return m.core.Len() }

// Select returns the k-th smallest stored element.
func (m *MLEF) Select(k int) (uint64, error) { return m.core.Select(k) }

// Match returns, in ascending order, every stored element y for which
// (y & ignore) == (value & ignore).
func (m *MLEF) Match(value, ignore uint64) []uint64 { return m.core.Match(value, ignore) }

// All returns every stored element in ascending order.
func (m *MLEF) All() []uint64 { return m.core.All() }

// BitLength returns the size of the encoded structure in bits.
func (m *MLEF) BitLength() int { return m.core.BitLength() }

// WriteTo serializes the index to w.
func (m *MLEF) WriteTo(w io.Writer) (int64, error) { return m.core.WriteTo(w) }

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *MLEF) MarshalBinary() ([]byte, error) { return m.core.MarshalBinary() }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *MLEF) UnmarshalBinary(data []byte) error {
	core := &mlef.MLEF{}
	if err := core.UnmarshalBinary(data); err != nil {
		return err
	}
	m.core = core
	return nil
}

// ReadMLEF deserializes an MLEF from r.
func ReadMLEF(r io.Reader) (*MLEF, int64, error) {
	core, n, err := mlef.ReadFrom(r)
	if err != nil {
		return nil, n, err
	}
	return &MLEF{core: core}, n, nil
}

// ToFile writes the index to the file at path, creating or truncating
// it as needed.
func (m *MLEF) ToFile(path string) error { return writeFile(path, m) }

// MLEFFromFile reads an MLEF previously written with ToFile.
func MLEFFromFile(path string) (*MLEF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, _, err := ReadMLEF(f)
	return m, err
}

func writeFile(path string, w io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var (
	_ io.WriterTo                = (*EF)(nil)
	_ encoding.BinaryMarshaler   = (*EF)(nil)
	_ encoding.BinaryUnmarshaler = (*EF)(nil)
	_ io.WriterTo                = (*UPEF)(nil)
	_ encoding.BinaryMarshaler   = (*UPEF)(nil)
	_ encoding.BinaryUnmarshaler = (*UPEF)(nil)
	_ io.WriterTo                = (*MLEF)(nil)
	_ encoding.BinaryMarshaler   = (*MLEF)(nil)
	_ encoding.BinaryUnmarshaler = (*MLEF)(nil)
)
