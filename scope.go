package mirror

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// A Scope decides whether a URL belongs to the crawl.
type Scope interface {
	Check(*url.URL) bool
}

type schemeScope struct {
	allowedSchemes map[string]struct{}
}

func (s *schemeScope) Check(uri *url.URL) bool {
	_, ok := s.allowedSchemes[strings.ToLower(uri.Scheme)]
	return ok
}

// NewSchemeScope limits the crawl to the specified URL schemes.
func NewSchemeScope(schemes []string) Scope {
	m := make(map[string]struct{})
	for _, s := range schemes {
		m[strings.ToLower(s)] = struct{}{}
	}
	return &schemeScope{m}
}

type hostScope struct {
	host string
}

func (s *hostScope) Check(uri *url.URL) bool {
	return strings.EqualFold(uri.Host, s.host)
}

// NewHostScope limits the crawl to URLs on the same host (and port)
// as origin.
func NewHostScope(origin *url.URL) Scope {
	return &hostScope{origin.Host}
}

type regexpIgnoreScope struct {
	ignores []*regexp.Regexp
}

func (s *regexpIgnoreScope) Check(uri *url.URL) bool {
	uriStr := uri.String()
	for _, i := range s.ignores {
		if i.MatchString(uriStr) {
			return false
		}
	}
	return true
}

// NewRegexpIgnoreScope returns a Scope that rejects URLs matching any
// of the given regular expressions.
func NewRegexpIgnoreScope(ignores []string) (Scope, error) {
	r := regexpIgnoreScope{
		ignores: make([]*regexp.Regexp, 0, len(ignores)),
	}
	for _, i := range ignores {
		rx, err := regexp.Compile(i)
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", i, err)
		}
		r.ignores = append(r.ignores, rx)
	}
	return &r, nil
}

type andScope []Scope

func (s andScope) Check(uri *url.URL) bool {
	for _, sc := range s {
		if !sc.Check(uri) {
			return false
		}
	}
	return true
}

// AND returns a Scope that accepts a URL only if all of the given
// scopes do.
func AND(scopes ...Scope) Scope {
	return andScope(scopes)
}

// NewOriginScope is the default scope of a mirror: http(s) URLs on
// the origin's host.
func NewOriginScope(origin *url.URL) Scope {
	return AND(NewSchemeScope([]string{"http", "https"}), NewHostScope(origin))
}
