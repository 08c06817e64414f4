package transcribe

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"mediaworker/internal/textutil"
)

// duplicateSimilarity is the cosine similarity above which two overlapping
// segments are treated as the same utterance.
const duplicateSimilarity = 0.8

// Stitcher merges per-chunk segments into one absolute timeline. Chunks must
// be added in order; only segments that reach into the newest overlap are
// revisited. Segments that share only a few words, such as a
// phrase cut mid-sentence at a chunk edge, are not duplicates; both are kept
// and the later one starts where the earlier one ends.
type Stitcher struct {
	segments []Segment
	lastEnd  time.Duration
	chunks   int
}

// Add shifts a chunk's relative segments to absolute time and merges them.
func (s *Stitcher) Add(chunk Chunk, relative []Segment) {
	incoming := make([]Segment, 0, len(relative))
	for _, seg := range relative {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		seg.Start += chunk.Offset
		seg.End += chunk.Offset
		incoming = append(incoming, seg)
	}
	slices.SortStableFunc(incoming, byStart)

	overlapStart, overlapEnd := chunk.Offset, s.lastEnd
	s.chunks++
	if end := chunk.End(); end > s.lastEnd {
		s.lastEnd = end
	}
	if s.chunks == 1 || overlapStart >= overlapEnd {
		s.segments = append(s.segments, incoming...)
		return
	}
	midpoint := overlapStart + (overlapEnd-overlapStart)/2

	// Earlier segments reaching into the overlap.
	tailStart := len(s.segments)
	for tailStart > 0 && s.segments[tailStart-1].End > overlapStart {
		tailStart--
	}
	tail := s.segments[tailStart:]
	matched := make([]bool, len(tail))

	kept := make([]Segment, 0, len(incoming))
	for _, seg := range incoming {
		if seg.Start >= overlapEnd {
			kept = append(kept, seg)
			continue
		}
		if i := findDuplicate(tail, matched, seg); i >= 0 {
			matched[i] = true
			if seg.Confidence > tail[i].Confidence {
				tail[i] = seg
			}
			continue
		}
		if seg.Start < midpoint && seg.End <= overlapEnd {
			continue
		}
		kept = append(kept, seg)
	}

	merged := make([]Segment, 0, tailStart+len(tail)+len(kept))
	merged = append(merged, s.segments[:tailStart]...)
	for i, seg := range tail {
		if !matched[i] && seg.Start >= midpoint {
			continue
		}
		merged = append(merged, seg)
	}
	merged = append(merged, kept...)
	slices.SortStableFunc(merged[tailStart:], byStart)
	s.segments = merged
}

func findDuplicate(tail []Segment, matched []bool, seg Segment) int {
	norm := textutil.NormalizeText(seg.Text)
	var fp textutil.Fingerprint
	for i, candidate := range tail {
		if matched[i] || candidate.Start >= seg.End || seg.Start >= candidate.End {
			continue
		}
		if textutil.NormalizeText(candidate.Text) == norm {
			return i
		}
		if fp.Empty() {
			fp = textutil.NewFingerprint(seg.Text)
		}
		if fp.Similarity(textutil.NewFingerprint(candidate.Text)) >= duplicateSimilarity {
			return i
		}
	}
	return -1
}

// Chunks reports how many chunks were added.
func (s *Stitcher) Chunks() int {
	return s.chunks
}

// Segments returns the stitched timeline. Residual overlaps are clamped to
// the previous end and empty or zero-length segments are dropped, so the
// result is ordered with non-decreasing, non-overlapping spans.
func (s *Stitcher) Segments() []Segment {
	ordered := slices.Clone(s.segments)
	slices.SortStableFunc(ordered, byStart)

	out := make([]Segment, 0, len(ordered))
	var prevEnd time.Duration
	for _, seg := range ordered {
		if seg.Start < 0 {
			seg.Start = 0
		}
		if len(out) > 0 && seg.Start < prevEnd {
			seg.Start = prevEnd
		}
		if seg.End <= seg.Start || strings.TrimSpace(seg.Text) == "" {
			continue
		}
		out = append(out, seg)
		prevEnd = seg.End
	}
	return out
}

func byStart(a, b Segment) int {
	return cmp.Compare(a.Start, b.Start)
}
