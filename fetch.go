package mirror

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// FetchResult is a successfully retrieved resource.
type FetchResult struct {
	// URL is the canonical URL that was requested.
	URL *url.URL

	// FinalURL is where the request ended up after redirects.
	FinalURL *url.URL

	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

func newFetchResult(u *url.URL, resp *http.Response, body []byte) *FetchResult {
	final := u
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	return &FetchResult{
		URL:         u,
		FinalURL:    final,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		Body:        body,
	}
}

// A Fetcher retrieves the contents of a URL. Errors are of type
// *HTTPStatusError, *TransportError or *DecodeError.
type Fetcher interface {
	Fetch(context.Context, *url.URL) (*FetchResult, error)
}

// FetcherFunc wraps a simple function into the Fetcher interface.
type FetcherFunc func(context.Context, *url.URL) (*FetchResult, error)

// Fetch retrieves a URL.
func (f FetcherFunc) Fetch(ctx context.Context, u *url.URL) (*FetchResult, error) {
	return f(ctx, u)
}

// HTTPFetcher issues GET requests through a Session.
type HTTPFetcher struct {
	session      *Session
	maxBodyBytes int64
}

// NewHTTPFetcher returns a Fetcher using the given Session. A positive
// maxBodyBytes makes larger responses fail with a DecodeError.
func NewHTTPFetcher(session *Session, maxBodyBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		session:      session,
		maxBodyBytes: maxBodyBytes,
	}
}

// Fetch retrieves a URL, following redirects.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) (*FetchResult, error) {
	req, err := f.session.NewRequest(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &TransportError{URL: u.String(), Err: err}
	}
	resp, err := f.session.Do(req)
	if err != nil {
		return nil, &TransportError{URL: u.String(), Err: err}
	}
	defer resp.Body.Close() // nolint

	if resp.StatusCode >= 400 {
		return nil, &HTTPStatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}
	body, err := readBody(resp, f.maxBodyBytes)
	if err != nil {
		return nil, &DecodeError{URL: u.String(), Err: err}
	}
	return newFetchResult(u, resp, body), nil
}

// readBody reads a response body, undoing any Content-Encoding. With
// limit > 0, bodies larger than limit bytes are an error.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close() // nolint
		r = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close() // nolint
		r = fl
	case "br":
		r = brotli.NewReader(resp.Body)
	}

	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("body exceeds limit of %d bytes", limit)
	}
	return data, nil
}

// presetFetcher serves a page that was already retrieved (the answer
// to a login request) instead of fetching it again.
type presetFetcher struct {
	Fetcher
	key string

	mx     sync.Mutex
	preset *FetchResult
}

// WithPreset returns a Fetcher that answers the first request for u
// with res, assumed to be HTML, and delegates everything else to f.
func WithPreset(f Fetcher, u *url.URL, res *FetchResult) Fetcher {
	preset := *res
	preset.URL = u
	if preset.FinalURL == nil {
		preset.FinalURL = u
	}
	preset.ContentType = "text/html"
	return &presetFetcher{
		Fetcher: f,
		key:     u.String(),
		preset:  &preset,
	}
}

func (f *presetFetcher) Fetch(ctx context.Context, u *url.URL) (*FetchResult, error) {
	f.mx.Lock()
	res := f.preset
	if res != nil && u.String() == f.key {
		f.preset = nil
		f.mx.Unlock()
		return res, nil
	}
	f.mx.Unlock()
	return f.Fetcher.Fetch(ctx, u)
}
