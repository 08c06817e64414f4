package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"mediaworker/internal/config"
	"mediaworker/internal/fileutil"
	"mediaworker/internal/logging"
	"mediaworker/internal/services"
)

const stageName = "fetch"

// Options bounds a single fetch.
type Options struct {
	MaxBytes     int64
	Timeout      time.Duration
	MinFreeBytes int64
	UserAgent    string
}

// OptionsFromConfig derives fetch budgets from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		MaxBytes:     cfg.Fetch.MaxBytes,
		Timeout:      cfg.FetchTimeout(),
		MinFreeBytes: cfg.Fetch.MinFreeBytes,
		UserAgent:    cfg.Fetch.UserAgent,
	}
}

// Fetcher resolves media references.
type Fetcher struct {
	opts      Options
	client    *http.Client
	logger    *slog.Logger
	freeBytes func(string) (uint64, error)
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for remote references.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithFreeSpaceFunc overrides free-space probing (tests).
func WithFreeSpaceFunc(fn func(string) (uint64, error)) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.freeBytes = fn
		}
	}
}

// New constructs a Fetcher.
func New(opts Options, logger *slog.Logger, options ...Option) *Fetcher {
	f := &Fetcher{
		opts:      opts,
		client:    &http.Client{},
		logger:    logging.NewComponentLogger(logger, "fetch"),
		freeBytes: fileutil.FreeBytes,
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

// Media is an exclusively owned local file for one job.
type Media struct {
	Path      string
	Size      int64
	Ref       string
	Temporary bool

	once     sync.Once
	closeErr error
}

// Close releases the media. Temporary downloads are deleted. Safe to call
// more than once.
func (m *Media) Close() error {
	if m == nil {
		return nil
	}
	m.once.Do(func() {
		if !m.Temporary || m.Path == "" {
			return
		}
		if err := os.Remove(m.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.closeErr = fmt.Errorf("remove %s: %w", m.Path, err)
		}
	})
	return m.closeErr
}

// Fetch resolves ref into a local file. Remote references are written under
// workDir, which the caller owns and removes.
func (f *Fetcher) Fetch(ctx context.Context, ref, workDir string) (*Media, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, services.Wrap(services.ErrFetch, stageName, "resolve", "media reference is empty", nil)
	}
	parsed, err := url.Parse(ref)
	if err != nil || parsed.Scheme == "" || len(parsed.Scheme) == 1 {
		// Plain paths, including Windows-style drive letters.
		return f.openLocal(ref)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "file":
		return f.openLocal(parsed.Path)
	case "http", "https":
		return f.download(ctx, parsed, workDir)
	default:
		return nil, services.Wrap(services.ErrFetch, stageName, "resolve", fmt.Sprintf("unsupported scheme %q", parsed.Scheme), nil)
	}
}

func (f *Fetcher) openLocal(p string) (*Media, error) {
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrFetch, stageName, "stat", fmt.Sprintf("media not found: %s", p), err)
		}
		return nil, services.Wrap(services.ErrFetch, stageName, "stat", p, err)
	}
	if !info.Mode().IsRegular() {
		return nil, services.Wrap(services.ErrFetch, stageName, "stat", fmt.Sprintf("%s is not a regular file", p), nil)
	}
	if f.opts.MaxBytes > 0 && info.Size() > f.opts.MaxBytes {
		return nil, f.tooLarge(info.Size())
	}
	return &Media{Path: p, Size: info.Size(), Ref: p}, nil
}

func (f *Fetcher) download(ctx context.Context, u *url.URL, workDir string) (*Media, error) {
	if strings.TrimSpace(workDir) == "" {
		return nil, services.Wrap(services.ErrInternal, stageName, "download", "work directory not provided", nil)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrFetch, stageName, "prepare", "create work directory", err)
	}
	if err := f.checkFreeSpace(workDir); err != nil {
		return nil, err
	}

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, stageName, "request", "build request", err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, stageName, "request", redact(u), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.Wrap(services.ErrFetch, stageName, "request", fmt.Sprintf("%s returned %s", redact(u), resp.Status), nil)
	}
	if f.opts.MaxBytes > 0 && resp.ContentLength > f.opts.MaxBytes {
		return nil, f.tooLarge(resp.ContentLength)
	}

	final := filepath.Join(workDir, localName(u))
	part := final + ".part"
	out, err := os.Create(part)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, stageName, "write", "create temp file", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = out.Close()
			_ = os.Remove(part)
		}
	}()

	var body io.Reader = resp.Body
	if f.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	}
	written, err := io.Copy(out, body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, services.Wrap(services.ErrFetch, stageName, "download", fmt.Sprintf("%s exceeded time budget", redact(u)), ctxErr)
		}
		return nil, services.Wrap(services.ErrFetch, stageName, "download", redact(u), err)
	}
	if f.opts.MaxBytes > 0 && written > f.opts.MaxBytes {
		return nil, f.tooLarge(written)
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return nil, services.Wrap(services.ErrFetch, stageName, "download", fmt.Sprintf("short body: got %d of %d bytes", written, resp.ContentLength), nil)
	}
	if err := out.Close(); err != nil {
		return nil, services.Wrap(services.ErrFetch, stageName, "write", "close temp file", err)
	}
	if err := os.Rename(part, final); err != nil {
		return nil, services.Wrap(services.ErrFetch, stageName, "write", "finalize download", err)
	}
	committed = true

	f.logger.Debug("media downloaded",
		logging.String("url", redact(u)),
		logging.Bytes("size", written),
		logging.String("path", final),
	)
	return &Media{Path: final, Size: written, Ref: u.String(), Temporary: true}, nil
}

func (f *Fetcher) checkFreeSpace(dir string) error {
	if f.opts.MinFreeBytes <= 0 || f.freeBytes == nil {
		return nil
	}
	free, err := f.freeBytes(dir)
	if err != nil {
		return services.Wrap(services.ErrFetch, stageName, "free space", dir, err)
	}
	if free < uint64(f.opts.MinFreeBytes) {
		return services.Wrap(services.ErrFetch, stageName, "free space",
			fmt.Sprintf("only %s free in %s (need %s)", humanize.IBytes(free), dir, humanize.IBytes(uint64(f.opts.MinFreeBytes))), nil)
	}
	return nil
}

func (f *Fetcher) tooLarge(size int64) error {
	return services.Wrap(services.ErrFetch, stageName, "budget",
		fmt.Sprintf("media size %s exceeds limit %s", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(f.opts.MaxBytes))), nil)
}

func localName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "media"
	}
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, base)
	return "media-" + base
}

// redact drops credentials and query strings before a URL reaches logs.
func redact(u *url.URL) string {
	clone := *u
	clone.User = nil
	clone.RawQuery = ""
	clone.Fragment = ""
	return clone.String()
}
