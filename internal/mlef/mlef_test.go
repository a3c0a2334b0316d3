package mlef

import (
	"math/rand"
	"sort"
	"testing"
)

func mustNew(t *testing.T, xs []uint64, depth uint) *MLEF {
	t.Helper()
	m, err := New(xs, depth)
	if err != nil {
		t.Fatalf("New(%v, %d) failed: %v", xs, depth, err)
	}
	return m
}

func TestScenario5SelectAndMatch(t *testing.T) {
	xs := []uint64{0, 1, 2, 7, 8, 15, 16, 31}
	m := mustNew(t, xs, 2)

	for i, want := range xs {
		got, err := m.Select(i)
		if err != nil || got != want {
			t.Errorf("Select(%d) = (%d, %v), want %d", i, got, err, want)
		}
	}

	got := m.Match(0, 0xF0)
	want := []uint64{0, 1, 2, 7} // top nibble 0
	if len(got) != len(want) {
		t.Fatalf("Match(0, 0xF0) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Match(0, 0xF0)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSelectMatchesForEveryDepth(t *testing.T) {
	xs := []uint64{0, 1, 2, 7, 8, 15, 16, 31}
	maxDepth := bitLength(31)
	for depth := uint(1); depth <= maxDepth; depth++ {
		m := mustNew(t, xs, depth)
		for i, want := range xs {
			got, err := m.Select(i)
			if err != nil || got != want {
				t.Errorf("depth %d: Select(%d) = (%d, %v), want %d", depth, i, got, err, want)
			}
		}
	}
}

func TestAllAndBitLength(t *testing.T) {
	xs := []uint64{0, 1, 2, 7, 8, 15, 16, 31}
	m := mustNew(t, xs, 3)
	all := m.All()
	if len(all) != len(xs) {
		t.Fatalf("All() len = %d, want %d", len(all), len(xs))
	}
	for i, want := range xs {
		if all[i] != want {
			t.Errorf("All()[%d] = %d, want %d", i, all[i], want)
		}
	}
	if m.BitLength() <= 0 {
		t.Errorf("BitLength() = %d, want > 0", m.BitLength())
	}
}

func TestSingleElementIsLeaf(t *testing.T) {
	m := mustNew(t, []uint64{42}, 5)
	if !m.isLeaf() {
		t.Errorf("single-element MLEF should collapse to a leaf")
	}
	got, err := m.Select(0)
	if err != nil || got != 42 {
		t.Errorf("Select(0) = (%d, %v), want 42", got, err)
	}
}

func TestRoundTrip(t *testing.T) {
	xs := []uint64{0, 1, 2, 7, 8, 15, 16, 31}
	m := mustNew(t, xs, 2)

	data, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if data[0] != Kind {
		t.Errorf("leading byte = %d, want kind %d", data[0], Kind)
	}

	var got MLEF
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	for i, want := range xs {
		v, err := got.Select(i)
		if err != nil || v != want {
			t.Errorf("round-tripped Select(%d) = (%d, %v), want %d", i, v, err, want)
		}
	}
	rgot := got.Match(0, 0xF0)
	if len(rgot) != 4 {
		t.Errorf("round-tripped Match(0, 0xF0) = %v, want 4 matches", rgot)
	}
}

func TestLeafRoundTripIsPlainEFBlob(t *testing.T) {
	m := mustNew(t, []uint64{5, 10, 15}, 1)
	data, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if data[0] != 0 { // efcore.Kind
		t.Errorf("leaf MLEF blob leading byte = %d, want 0 (plain EF kind)", data[0])
	}
	var got MLEF
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	for i, want := range []uint64{5, 10, 15} {
		v, err := got.Select(i)
		if err != nil || v != want {
			t.Errorf("Select(%d) = (%d, %v), want %d", i, v, err, want)
		}
	}
}

func TestLargeRandomSequenceRoundTrip(t *testing.T) {
	const n = 5000
	r := rand.New(rand.NewSource(11))
	set := make(map[uint64]struct{}, n)
	for len(set) < n {
		set[uint64(r.Int63n(1<<32))] = struct{}{}
	}
	xs := make([]uint64, 0, n)
	for v := range set {
		xs = append(xs, v)
	}
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })

	m := mustNew(t, xs, 4)
	data, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var got MLEF
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	for _, i := range []int{0, 1, n / 2, n - 1} {
		v, err := got.Select(i)
		if err != nil || v != xs[i] {
			t.Errorf("round-tripped Select(%d) = (%d, %v), want %d", i, v, err, xs[i])
		}
	}
}

func FuzzSelectInvariant(f *testing.F) {
	f.Add(int64(1), uint8(20), uint8(3))
	f.Add(int64(42), uint8(1), uint8(1))
	f.Fuzz(func(t *testing.T, seed int64, count uint8, depth uint8) {
		n := int(count%200) + 1
		d := uint(depth%6) + 1
		r := rand.New(rand.NewSource(seed))
		xs := make([]uint64, n)
		var cur uint64
		for i := range xs {
			cur += uint64(r.Intn(5))
			xs[i] = cur
		}
		m, err := New(xs, d)
		if err != nil {
			t.Fatalf("New failed on valid monotone input: %v", err)
		}
		for i, want := range xs {
			got, err := m.Select(i)
			if err != nil || got != want {
				t.Fatalf("Select(%d) = (%d, %v), want %d", i, got, err, want)
			}
		}
	})
}
