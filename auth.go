package mirror

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
)

// An AuthProvider prepares a Session before the crawl starts and adds
// credentials to each request sent through it.
type AuthProvider interface {
	// EstablishSession performs the login step, if any. It may
	// return the page the server answered with, so that the crawl
	// can use it instead of fetching the origin again. Errors are
	// of type *AuthError and a page may be returned alongside one.
	EstablishSession(context.Context, *Session) (*FetchResult, error)

	// Decorate adds credentials to an outgoing request.
	Decorate(*http.Request)
}

// NoAuth crawls without credentials.
type NoAuth struct{}

// EstablishSession does nothing.
func (NoAuth) EstablishSession(context.Context, *Session) (*FetchResult, error) { return nil, nil }

// Decorate does nothing.
func (NoAuth) Decorate(*http.Request) {}

// BasicAuth sends HTTP Basic credentials with every request. There is
// no login step.
type BasicAuth struct {
	Username string
	Password string
}

// EstablishSession does nothing, Basic credentials need no login.
func (BasicAuth) EstablishSession(context.Context, *Session) (*FetchResult, error) { return nil, nil }

// Decorate sets the Authorization header.
func (a BasicAuth) Decorate(req *http.Request) {
	req.SetBasicAuth(a.Username, a.Password)
}

// A LoginPageFunc tells whether a response body is (still) a login
// form.
type LoginPageFunc func(body []byte) bool

// DefaultLoginMarkers identify the access code form of the sites this
// tool was written for.
var DefaultLoginMarkers = []string{"Zugangscode eingeben", "code eingeben"}

// MarkerDetector returns a LoginPageFunc that looks for any of the
// given strings in the body, ignoring case.
func MarkerDetector(markers ...string) LoginPageFunc {
	lowered := make([][]byte, 0, len(markers))
	for _, m := range markers {
		if m != "" {
			lowered = append(lowered, bytes.ToLower([]byte(m)))
		}
	}
	return func(body []byte) bool {
		b := bytes.ToLower(body)
		for _, m := range lowered {
			if bytes.Contains(b, m) {
				return true
			}
		}
		return false
	}
}

// DefaultFormField is the name of the form field carrying the access
// code.
const DefaultFormField = "code"

// FormLogin submits an access code to the origin and relies on the
// session cookie jar to keep the resulting cookies.
type FormLogin struct {
	Origin      *url.URL
	Field       string
	Secret      string
	IsLoginPage LoginPageFunc
}

// Decorate does nothing: cookies are added by the cookie jar.
func (FormLogin) Decorate(*http.Request) {}

// EstablishSession posts the access code. If the answer still looks
// like the login form, the origin is fetched once more with whatever
// cookies were set, as some sites only honour the session on the
// following request. The last page received is always returned, even
// when the login is rejected.
func (a FormLogin) EstablishSession(ctx context.Context, s *Session) (*FetchResult, error) {
	field := a.Field
	if field == "" {
		field = DefaultFormField
	}
	isLoginPage := a.IsLoginPage
	if isLoginPage == nil {
		isLoginPage = MarkerDetector(DefaultLoginMarkers...)
	}

	form := url.Values{field: {a.Secret}}
	req, err := s.NewRequest(ctx, http.MethodPost, a.Origin.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := a.do(s, req)
	if err != nil {
		return nil, err
	}
	if !isLoginPage(res.Body) {
		return res, nil
	}

	req, err = s.NewRequest(ctx, http.MethodGet, a.Origin.String(), nil)
	if err != nil {
		return res, &AuthError{Err: ErrLoginRejected}
	}
	retry, err := a.do(s, req)
	if err != nil {
		return res, &AuthError{Err: ErrLoginRejected}
	}
	if isLoginPage(retry.Body) {
		return retry, &AuthError{Err: ErrLoginRejected}
	}
	return retry, nil
}

func (a FormLogin) do(s *Session, req *http.Request) (*FetchResult, error) {
	resp, err := s.Do(req)
	if err != nil {
		return nil, &AuthError{Err: &TransportError{URL: req.URL.String(), Err: err}}
	}
	defer resp.Body.Close() // nolint

	if resp.StatusCode >= 400 {
		return nil, &AuthError{Err: &HTTPStatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}}
	}
	body, err := readBody(resp, 0)
	if err != nil {
		return nil, &AuthError{Err: &DecodeError{URL: req.URL.String(), Err: err}}
	}
	return newFetchResult(a.Origin, resp, body), nil
}
