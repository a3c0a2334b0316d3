package upef

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/efcodec/ef/internal/errs"
)

func TestNewRejectsZeroChunkSize(t *testing.T) {
	if _, err := New([]uint64{1, 2, 3}, 0); !errors.Is(err, errs.InvalidInput) {
		t.Errorf("New(_, 0) = %v, want InvalidInput", err)
	}
}

func TestSelectSmallSequence(t *testing.T) {
	xs := []uint64{123, 1343, 2141, 35312, 4343434, 4343999, 5000000}
	u, err := New(xs, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if u.Len() != len(xs) {
		t.Fatalf("Len() = %d, want %d", u.Len(), len(xs))
	}
	for i, want := range xs {
		got, err := u.Select(i)
		if err != nil || got != want {
			t.Errorf("Select(%d) = (%d, %v), want %d", i, got, err, want)
		}
	}
	all := u.All()
	for i, want := range xs {
		if all[i] != want {
			t.Errorf("All()[%d] = %d, want %d", i, all[i], want)
		}
	}
}

func TestRankDistinctElements(t *testing.T) {
	xs := []uint64{1, 5, 9, 20, 21, 22, 100, 250, 4000}
	u, err := New(xs, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i, x := range xs {
		got, err := u.Rank(x)
		if err != nil || got != i {
			t.Errorf("Rank(%d) = (%d, %v), want %d", x, got, err, i)
		}
	}
	if _, err := u.Rank(999999); !errors.Is(err, errs.NotPresent) {
		t.Errorf("Rank(absent) = %v, want NotPresent", err)
	}
}

func TestLargeRandomSequenceScenario4(t *testing.T) {
	const n = 100000
	const b = 1024
	r := rand.New(rand.NewSource(7))
	set := make(map[uint64]struct{}, n)
	for len(set) < n {
		set[uint64(r.Int63n(1<<40))] = struct{}{}
	}
	xs := make([]uint64, 0, n)
	for v := range set {
		xs = append(xs, v)
	}
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })

	u, err := New(xs, b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	samples := []int{0, 1, b - 1, b, n - 1}
	for _, i := range samples {
		got, err := u.Select(i)
		if err != nil || got != xs[i] {
			t.Errorf("Select(%d) = (%d, %v), want %d", i, got, err, xs[i])
		}
	}

	data, err := u.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var got UPEF
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.Len() != n {
		t.Fatalf("round-tripped Len() = %d, want %d", got.Len(), n)
	}
	for _, i := range samples {
		v, err := got.Select(i)
		if err != nil || v != xs[i] {
			t.Errorf("round-tripped Select(%d) = (%d, %v), want %d", i, v, err, xs[i])
		}
	}
}

func TestWriteToRoundTripKind(t *testing.T) {
	u, err := New([]uint64{10, 20, 30, 40, 50}, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data, err := u.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if data[0] != Kind {
		t.Errorf("leading byte = %d, want kind %d", data[0], Kind)
	}
}
