package mirror

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// A Session holds the authentication state shared by every request of
// a crawl: the cookie jar of its http.Client and the AuthProvider that
// decorates outgoing requests. It is safe for concurrent use.
type Session struct {
	client    *http.Client
	auth      AuthProvider
	userAgent string
}

// NewSession ties an http.Client to an AuthProvider. A nil auth means
// no authentication.
func NewSession(client *http.Client, auth AuthProvider, userAgent string) *Session {
	if auth == nil {
		auth = NoAuth{}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Session{
		client:    client,
		auth:      auth,
		userAgent: userAgent,
	}
}

// Establish runs the login step of the session's AuthProvider. See
// AuthProvider.EstablishSession for the meaning of the results.
func (s *Session) Establish(ctx context.Context) (*FetchResult, error) {
	return s.auth.EstablishSession(ctx, s)
}

// NewRequest builds a request carrying the session's User-Agent and
// credentials.
func (s *Session) NewRequest(ctx context.Context, method, rawurl string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawurl, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	s.auth.Decorate(req)
	return req, nil
}

// Do sends a request built by NewRequest.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	return s.client.Do(req)
}

// Cookies returns the cookies the session would send to u.
func (s *Session) Cookies(u *url.URL) []*http.Cookie {
	if s.client.Jar == nil {
		return nil
	}
	return s.client.Jar.Cookies(u)
}
