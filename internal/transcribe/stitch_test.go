package transcribe

import (
	"testing"
	"time"
)

func sec(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }

func chunkAt(index int, offset, length float64) Chunk {
	return Chunk{Index: index, Offset: sec(offset), SampleRate: 10, Samples: make([]int16, int(length*10))}
}

func TestStitcherMidpointRule(t *testing.T) {
	var s Stitcher
	s.Add(chunkAt(0, 0, 30), []Segment{
		{Start: sec(0), End: sec(10), Text: "alpha", Confidence: 0.9},
		{Start: sec(25), End: sec(26), Text: "delta", Confidence: 0.9},
		{Start: sec(28), End: sec(30), Text: "omega", Confidence: 0.9},
	})
	s.Add(chunkAt(1, 25, 30), []Segment{
		{Start: sec(0), End: sec(1), Text: "gamma", Confidence: 0.9},
		{Start: sec(3), End: sec(5), Text: "beta", Confidence: 0.9},
		{Start: sec(10), End: sec(20), Text: "zeta", Confidence: 0.9},
	})

	got := s.Segments()
	want := []string{"alpha", "delta", "beta", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %+v", want, got)
	}
	for i, text := range want {
		if got[i].Text != text {
			t.Fatalf("segment %d = %q, want %q (all: %+v)", i, got[i].Text, text, got)
		}
	}
	if got[2].Start != sec(28) || got[3].Start != sec(35) {
		t.Fatalf("later chunk segments not shifted to absolute time: %+v", got)
	}
}

func TestStitcherDuplicateKeepsHigherConfidence(t *testing.T) {
	var s Stitcher
	s.Add(chunkAt(0, 0, 30), []Segment{
		{Start: sec(26), End: sec(29.5), Text: "Hello world", Confidence: 0.4},
	})
	s.Add(chunkAt(1, 25, 30), []Segment{
		{Start: sec(1), End: sec(4.5), Text: "hello, world!", Confidence: 0.9},
	})
	got := s.Segments()
	if len(got) != 1 {
		t.Fatalf("expected duplicate to collapse, got %+v", got)
	}
	if got[0].Text != "hello, world!" || got[0].Confidence != 0.9 {
		t.Fatalf("expected the more confident copy, got %+v", got[0])
	}

	var keep Stitcher
	keep.Add(chunkAt(0, 0, 30), []Segment{{Start: sec(26), End: sec(29.5), Text: "Hello world", Confidence: 0.95}})
	keep.Add(chunkAt(1, 25, 30), []Segment{{Start: sec(1), End: sec(4.5), Text: "hello world", Confidence: 0.5}})
	got = keep.Segments()
	if len(got) != 1 || got[0].Text != "Hello world" {
		t.Fatalf("expected earlier copy to survive, got %+v", got)
	}
}

func TestStitcherNearDuplicateBySimilarity(t *testing.T) {
	var s Stitcher
	s.Add(chunkAt(0, 0, 30), []Segment{
		{Start: sec(25.5), End: sec(29.9), Text: "we should meet at the station before nine tomorrow morning okay", Confidence: 0.7},
	})
	s.Add(chunkAt(1, 25, 30), []Segment{
		{Start: sec(0.4), End: sec(4.8), Text: "we should meet at the station before nine tomorrow morning ok", Confidence: 0.6},
	})
	if got := s.Segments(); len(got) != 1 {
		t.Fatalf("expected near duplicates to collapse, got %+v", got)
	}
}

func TestStitcherClampsAndDropsEmpty(t *testing.T) {
	var s Stitcher
	s.Add(chunkAt(0, 0, 30), []Segment{
		{Start: sec(0), End: sec(3), Text: "one"},
		{Start: sec(2), End: sec(5), Text: "two"},
		{Start: sec(4), End: sec(4.5), Text: "swallowed"},
		{Start: sec(6), End: sec(6), Text: "zero length"},
		{Start: sec(7), End: sec(8), Text: "   "},
		{Start: sec(9), End: sec(10), Text: "three"},
	})
	got := s.Segments()
	if len(got) != 3 {
		t.Fatalf("expected 3 segments, got %+v", got)
	}
	if got[1].Text != "two" || got[1].Start != sec(3) || got[1].End != sec(5) {
		t.Fatalf("expected overlap clamp on second segment, got %+v", got[1])
	}
	assertOrdered(t, got)
}

func TestStitcherNoOverlapAppends(t *testing.T) {
	var s Stitcher
	s.Add(chunkAt(0, 0, 30), []Segment{{Start: sec(29), End: sec(30), Text: "end of first"}})
	s.Add(chunkAt(1, 30, 30), []Segment{{Start: sec(0), End: sec(1), Text: "start of second"}})
	got := s.Segments()
	if len(got) != 2 || got[1].Start != sec(30) {
		t.Fatalf("unexpected stitch: %+v", got)
	}
	if s.Chunks() != 2 {
		t.Fatalf("expected 2 chunks, got %d", s.Chunks())
	}
}

func assertOrdered(t *testing.T, segments []Segment) {
	t.Helper()
	for i := 1; i < len(segments); i++ {
		prev, cur := segments[i-1], segments[i]
		if cur.Start < prev.Start {
			t.Fatalf("segment %d starts before its predecessor: %+v", i, segments)
		}
		if cur.Start < prev.End {
			t.Fatalf("segment %d overlaps its predecessor: %+v", i, segments)
		}
	}
}

func TestStitcherKeepsPartialPhraseOverlap(t *testing.T) {
	var s Stitcher
	s.Add(chunkAt(0, 0, 30), []Segment{
		{Start: sec(20), End: sec(24), Text: "so anyway", Confidence: 0.9},
		{Start: sec(26), End: sec(29), Text: "hello world how", Confidence: 0.8},
	})
	s.Add(chunkAt(1, 25, 30), []Segment{
		{Start: sec(3.5), End: sec(7), Text: "how are you", Confidence: 0.9},
	})

	got := s.Segments()
	want := []Segment{
		{Start: sec(20), End: sec(24), Text: "so anyway"},
		{Start: sec(26), End: sec(29), Text: "hello world how"},
		{Start: sec(29), End: sec(32), Text: "how are you"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %+v", len(want), got)
	}
	for i, w := range want {
		if got[i].Text != w.Text || got[i].Start != w.Start || got[i].End != w.End {
			t.Fatalf("segment %d = %+v, want %q [%v, %v]", i, got[i], w.Text, w.Start, w.End)
		}
	}
}
