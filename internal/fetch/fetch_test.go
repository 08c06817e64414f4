package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediaworker/internal/logging"
	"mediaworker/internal/services"
)

func newTestFetcher(opts Options, extra ...Option) *Fetcher {
	return New(opts, logging.NewNop(), extra...)
}

func TestFetchLocalPathOpensInPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newTestFetcher(Options{MaxBytes: 1024})

	for _, ref := range []string{src, "file://" + src} {
		media, err := f.Fetch(context.Background(), ref, t.TempDir())
		if err != nil {
			t.Fatalf("Fetch(%q): %v", ref, err)
		}
		if media.Path != src || media.Temporary || media.Size != 4 {
			t.Fatalf("unexpected media: %+v", media)
		}
		if err := media.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if _, err := os.Stat(src); err != nil {
			t.Fatalf("local source must not be removed: %v", err)
		}
	}
}

func TestFetchLocalFailures(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.bin")
	if err := os.WriteFile(big, make([]byte, 64), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newTestFetcher(Options{MaxBytes: 16})

	cases := []struct {
		name string
		ref  string
		want string
	}{
		{"missing", filepath.Join(dir, "nope.mp4"), "media not found"},
		{"directory", dir, "not a regular file"},
		{"too large", big, "exceeds limit"},
		{"empty", "  ", "empty"},
		{"unsupported scheme", "s3://bucket/key", "unsupported scheme"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tc.ref, t.TempDir())
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, services.ErrFetch) {
				t.Fatalf("expected fetch error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
		})
	}
}

func TestFetchDownloadsAndCleansUp(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("remote-bytes"))
	}))
	defer srv.Close()

	work := t.TempDir()
	f := newTestFetcher(Options{MaxBytes: 1024, Timeout: 5 * time.Second, UserAgent: "mw-test"})
	media, err := f.Fetch(context.Background(), srv.URL+"/videos/clip.mp4?sig=secret", work)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotUA != "mw-test" {
		t.Fatalf("expected user agent, got %q", gotUA)
	}
	if !media.Temporary || filepath.Dir(media.Path) != work {
		t.Fatalf("unexpected media: %+v", media)
	}
	if filepath.Base(media.Path) != "media-clip.mp4" {
		t.Fatalf("unexpected file name %q", filepath.Base(media.Path))
	}
	data, err := os.ReadFile(media.Path)
	if err != nil || string(data) != "remote-bytes" {
		t.Fatalf("unexpected content %q (%v)", data, err)
	}
	if err := media.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := media.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := os.Stat(media.Path); !os.IsNotExist(err) {
		t.Fatalf("expected download removed, stat err=%v", err)
	}
}

func TestFetchRemoteFailuresLeaveNoFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/big":
			w.Header().Set("Content-Length", "4096")
			_, _ = w.Write(make([]byte, 4096))
		case "/chunked-big":
			flusher := w.(http.Flusher)
			for i := 0; i < 8; i++ {
				_, _ = w.Write(make([]byte, 512))
				flusher.Flush()
			}
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
	}))
	defer srv.Close()

	cases := []struct {
		path string
		want string
	}{
		{"/missing", "404"},
		{"/busy", "503"},
		{"/big", "exceeds limit"},
		{"/chunked-big", "exceeds limit"},
		{"/slow", "deadline exceeded"},
	}
	f := newTestFetcher(Options{MaxBytes: 1024, Timeout: 200 * time.Millisecond})
	for _, tc := range cases {
		t.Run(strings.TrimPrefix(tc.path, "/"), func(t *testing.T) {
			work := t.TempDir()
			_, err := f.Fetch(context.Background(), srv.URL+tc.path, work)
			if err == nil {
				t.Fatal("expected error")
			}
			if services.KindOf(err) != services.KindFetch {
				t.Fatalf("expected fetch kind, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
			entries, _ := os.ReadDir(work)
			if len(entries) != 0 {
				t.Fatalf("expected empty work dir, found %d entries", len(entries))
			}
		})
	}
}

func TestFetchUnreachableHostIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestFetcher(Options{Timeout: time.Second}).Fetch(context.Background(), url+"/x.mp4", t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	if !services.Retryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestFetchChecksFreeSpace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent when disk is full")
	}))
	defer srv.Close()

	f := newTestFetcher(Options{MinFreeBytes: 1 << 20}, WithFreeSpaceFunc(func(string) (uint64, error) {
		return 1024, nil
	}))
	_, err := f.Fetch(context.Background(), srv.URL+"/a.mp4", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "free") {
		t.Fatalf("expected free space error, got %v", err)
	}
}
