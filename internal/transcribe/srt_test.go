package transcribe

import (
	"testing"

	"mediaworker/internal/results"
)

func TestSRT(t *testing.T) {
	got := SRT([]results.Segment{
		{Start: 0, End: 2.5, Text: "Hello."},
		{Start: 3, End: 4, Text: "  "},
		{Start: 3661.042, End: 3662, Text: "Later."},
	})
	want := "1\n00:00:00,000 --> 00:00:02,500\nHello.\n\n2\n01:01:01,042 --> 01:01:02,000\nLater.\n"
	if got != want {
		t.Fatalf("SRT mismatch:\n%q\nwant\n%q", got, want)
	}
	if SRT(nil) != "" {
		t.Fatal("expected empty output for no segments")
	}
}
