package mirror

import (
	"crypto/tls"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout bounds every single request made by a Session.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is sent with every request unless overridden. Some
// sites only show their login form to something that looks like a
// browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

const maxRedirects = 10

// ClientOptions tune the http.Client built by NewHTTPClient.
type ClientOptions struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// NewHTTPClient returns an http.Client suitable for mirroring: it
// keeps cookies across requests, follows redirects and sets a timeout
// for each request. Every crawl gets its own client; nothing here
// touches http.DefaultClient.
func NewHTTPClient(opts ClientOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	// cookiejar.New only fails on invalid options.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}) // nolint

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, // nolint
		}
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
