package source

import "testing"

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 4, End: 8}
	b := Span{File: 1, Start: 6, End: 12}

	got := a.Cover(b)
	want := Span{File: 1, Start: 4, End: 12}
	if got != want {
		t.Fatalf("Cover = %v, want %v", got, want)
	}

	// Cover is symmetric on the byte range.
	if got2 := b.Cover(a); got2 != want {
		t.Fatalf("Cover reversed = %v, want %v", got2, want)
	}

	// Covering a contained span changes nothing.
	inner := Span{File: 1, Start: 5, End: 7}
	if got3 := a.Cover(inner); got3 != a {
		t.Fatalf("covering an inner span = %v, want %v", got3, a)
	}
}

func TestSpanCoverAcrossFiles(t *testing.T) {
	a := Span{File: 1, Start: 4, End: 8}
	b := Span{File: 2, Start: 0, End: 100}
	if got := a.Cover(b); got != a {
		t.Fatalf("spans from different files must not combine, got %v", got)
	}
}

func TestSpanContains(t *testing.T) {
	outer := Span{File: 1, Start: 4, End: 8}

	cases := []struct {
		inner Span
		want  bool
	}{
		{Span{File: 1, Start: 4, End: 8}, true},
		{Span{File: 1, Start: 5, End: 7}, true},
		{Span{File: 1, Start: 4, End: 4}, true},
		{Span{File: 1, Start: 3, End: 8}, false},
		{Span{File: 1, Start: 4, End: 9}, false},
		{Span{File: 2, Start: 5, End: 7}, false},
	}
	for _, tc := range cases {
		if got := outer.Contains(tc.inner); got != tc.want {
			t.Errorf("Contains(%v) = %v, want %v", tc.inner, got, tc.want)
		}
	}
}

func TestSpanContainsOffset(t *testing.T) {
	s := Span{File: 1, Start: 4, End: 8}
	if !s.ContainsOffset(4) {
		t.Fatalf("Start is inclusive")
	}
	if !s.ContainsOffset(7) {
		t.Fatalf("last byte belongs to the span")
	}
	if s.ContainsOffset(8) {
		t.Fatalf("End is exclusive")
	}
	if s.ContainsOffset(3) {
		t.Fatalf("offset before Start is outside")
	}
}

func TestSpanEmptyAndLen(t *testing.T) {
	if !(Span{File: 1, Start: 5, End: 5}).Empty() {
		t.Fatalf("zero-length span is empty")
	}
	s := Span{File: 1, Start: 5, End: 9}
	if s.Empty() || s.Len() != 4 {
		t.Fatalf("Len = %d, want 4", s.Len())
	}
}
