package lsn

import "testing"

func TestRangeEmpty(t *testing.T) {
	r := Empty()
	if !r.IsEmpty() {
		t.Fatalf("Empty() should be empty")
	}
	if r.Len() != 0 {
		t.Fatalf("Empty().Len() = %d, want 0", r.Len())
	}
	if r.Contains(0) {
		t.Fatalf("Empty() should contain nothing")
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{First: 5, End: 10}
	for v := LSN(0); v < 20; v++ {
		want := v >= 5 && v < 10
		if got := r.Contains(v); got != want {
			t.Errorf("Contains(%d) = %v, want %v", v, got, want)
		}
	}
}

func TestRangeTrimPrefix(t *testing.T) {
	cases := []struct {
		r    Range
		n    LSN
		want Range
	}{
		{Range{0, 10}, 4, Range{5, 10}},
		{Range{0, 10}, 9, Range{10, 10}},
		{Range{5, 10}, 2, Range{5, 10}},
		{Range{}, 5, Range{}},
	}
	for _, c := range cases {
		got := c.r.TrimPrefix(c.n)
		if got.IsEmpty() != c.want.IsEmpty() {
			t.Fatalf("TrimPrefix(%v, %d) emptiness = %v, want %v", c.r, c.n, got.IsEmpty(), c.want.IsEmpty())
		}
		if !got.IsEmpty() && got != c.want {
			t.Errorf("TrimPrefix(%v, %d) = %v, want %v", c.r, c.n, got, c.want)
		}
	}
}

func TestRangeIntersectCommutative(t *testing.T) {
	ranges := []Range{{0, 10}, {5, 15}, {20, 30}, {}, {10, 10}}
	for _, a := range ranges {
		for _, b := range ranges {
			ab := a.Intersect(b)
			ba := b.Intersect(a)
			if ab != ba {
				t.Errorf("Intersect not commutative: %v ∩ %v = %v, %v ∩ %v = %v", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestRangeUnionOfContiguous(t *testing.T) {
	a := Range{0, 5}
	b := Range{5, 10}
	if !a.ContiguousWith(b) {
		t.Fatalf("expected contiguous")
	}
	got := a.Union(b)
	want := Range{0, 10}
	if got != want {
		t.Errorf("Union = %v, want %v", got, want)
	}
}

func TestRangeNotContiguousWithGap(t *testing.T) {
	a := Range{0, 5}
	b := Range{7, 10}
	if a.ContiguousWith(b) {
		t.Fatalf("ranges with a gap should not be contiguous")
	}
}
