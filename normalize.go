package mirror

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

const (
	resolveFlags = purell.FlagsSafe |
		purell.FlagRemoveDotSegments |
		purell.FlagRemoveDuplicateSlashes |
		purell.FlagRemoveFragment |
		purell.FlagSortQuery
	normalizeFlags = resolveFlags | purell.FlagRemoveTrailingSlash
)

// References with these prefixes never point at something we can
// download.
var unfetchablePrefixes = []string{"data:", "mailto:", "tel:", "javascript:", "#"}

// Normalize resolves the reference ref against base and returns its
// canonical form, or nil if ref does not point at a fetchable
// resource. Two references to the same resource (relative or
// absolute, with or without a fragment or a trailing slash) always
// produce the same result.
func Normalize(ref string, base *url.URL) *url.URL {
	u := Resolve(ref, base)
	if u == nil {
		return nil
	}
	return normalizeURL(u)
}

// Resolve is like Normalize but keeps a trailing slash in the path.
// The result is the URL to request, and the base for the references
// found in its response: "/docs/" and "/docs" are the same resource,
// but "page.html" means something different on each.
func Resolve(ref string, base *url.URL) *url.URL {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	lower := strings.ToLower(ref)
	for _, p := range unfetchablePrefixes {
		if strings.HasPrefix(lower, p) {
			return nil
		}
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return nil
	}
	u := refURL
	if base != nil {
		u = base.ResolveReference(refURL)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil
	}
	return cleanURL(u, resolveFlags)
}

// normalizeURL canonicalizes an absolute URL. The empty path and "/"
// both become "/".
func normalizeURL(u *url.URL) *url.URL {
	return cleanURL(u, normalizeFlags)
}

// requestURL is the Resolve form of an absolute URL.
func requestURL(u *url.URL) *url.URL {
	return cleanURL(u, resolveFlags)
}

func cleanURL(u *url.URL, flags purell.NormalizationFlags) *url.URL {
	// purell modifies its argument in place.
	cp := *u
	u2, err := url.Parse(purell.NormalizeURL(&cp, flags))
	if err != nil {
		// purell only re-serializes a URL that was already parsed.
		panic(err)
	}
	if u2.Path == "" {
		u2.Path = "/"
		u2.RawPath = ""
	}
	return u2
}

var errNotHTTP = errors.New("not an http(s) URL")

// ParseSeed parses the URL a crawl starts from. Like Resolve, it keeps
// a trailing slash.
func ParseSeed(s string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		// Accept "example.com/path" on the command line.
		if u, err = url.Parse("https://" + strings.TrimSpace(s)); err != nil {
			return nil, err
		}
	}
	n := Resolve(u.String(), nil)
	if n == nil {
		return nil, &url.Error{Op: "parse", URL: s, Err: errNotHTTP}
	}
	return n, nil
}
