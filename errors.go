package mirror

import (
	"errors"
	"fmt"
)

var (
	// ErrLoginRejected means the server answered the login attempt
	// with what still looks like a login form.
	ErrLoginRejected = errors.New("login rejected")

	// ErrStorageFailed marks a filesystem failure that is not going to
	// go away by moving on to the next resource (disk full, read-only
	// filesystem, too many consecutive write errors).
	ErrStorageFailed = errors.New("storage failure")

	// ErrCrawlerUsed is returned by Run on a Crawler that already ran.
	ErrCrawlerUsed = errors.New("crawler has already been used")
)

// AuthError is returned when a session could not be established. It
// is never fatal: the crawl proceeds without authentication.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authentication failed: %v", e.Err) }

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPStatusError reports a response with a 4xx or 5xx status code.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// TransportError wraps DNS, connection and timeout failures.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.URL, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a failure reading or decoding a response body.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("reading body of %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FilesystemError reports a failure creating a directory or writing a
// file in the output tree.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *FilesystemError) Unwrap() error { return e.Err }
