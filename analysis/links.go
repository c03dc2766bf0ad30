// Extract links from HTML/CSS/JavaScript content.

package analysis

import (
	"bytes"
	"errors"
	"html"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html/charset"

	"git.autistici.org/ale/mirror"
)

// ErrNotText is returned for bodies that do not decode to text.
var ErrNotText = errors.New("body is not text")

var (
	// Reference patterns for content we do not parse.
	hrefRx   = regexp.MustCompile(`(?i)\bhref\s*=\s*["']([^"']+)["']`)
	srcRx    = regexp.MustCompile(`(?i)\bsrc\s*=\s*["']([^"']+)["']`)
	urlcssRx = regexp.MustCompile(`(?i)url\(\s*["']?([^"'()]+?)["']?\s*\)`)
	importRx = regexp.MustCompile(`(?i)@import\s+["']([^"']+)["']`)

	textPatterns = []*regexp.Regexp{hrefRx, srcRx, urlcssRx, importRx}
	cssPatterns  = []*regexp.Regexp{urlcssRx, importRx}

	hrefSel  = cascadia.MustCompile("[href]:not(base)")
	srcSel   = cascadia.MustCompile("[src]")
	styleSel = cascadia.MustCompile("[style]")
	baseSel  = cascadia.MustCompile("base[href]")
)

// Bytes looked at to tell text from binary content.
const sniffLen = 512

var boms = [][]byte{
	{0xef, 0xbb, 0xbf},
	{0xfe, 0xff},
	{0xff, 0xfe},
}

// GetLinks returns the resources on originHost referenced by body,
// resolved against base, without duplicates and sorted. Links are in
// the form returned by mirror.Resolve; of two references differing
// only in a trailing slash, the one with the slash is kept. All
// content is scanned for href/src attributes, CSS url() values and
// @import rules; HTML is also parsed, for <base> and the attributes
// the patterns miss.
func GetLinks(body []byte, contentType string, base *url.URL, originHost string) ([]*url.URL, error) {
	text, err := decode(body, contentType)
	if err != nil {
		return nil, err
	}

	var refs []string
	if strings.Contains(strings.ToLower(contentType), "html") {
		refs, base = extractLinksFromHTML(text, base)
	} else {
		refs = scan(text, textPatterns)
	}

	// Parse outbound links relative to the base URL, and return
	// unique results.
	links := make(map[string]*url.URL)
	for _, ref := range refs {
		u := mirror.Resolve(ref, base)
		if u == nil || !strings.EqualFold(u.Host, originHost) {
			continue
		}
		key := mirror.Normalize(u.String(), nil).String()
		if prev, ok := links[key]; ok && strings.HasSuffix(prev.Path, "/") {
			continue
		}
		links[key] = u
	}
	result := make([]*url.URL, 0, len(links))
	for _, u := range links {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].String() < result[j].String()
	})
	return result, nil
}

// NewExtractor returns a mirror.Extractor keeping links on originHost.
func NewExtractor(originHost string) mirror.Extractor {
	return mirror.ExtractorFunc(func(body []byte, contentType string, base *url.URL) ([]*url.URL, error) {
		return GetLinks(body, contentType, base, originHost)
	})
}

// decode converts body to UTF-8 according to the charset declared in
// contentType, or sniffed from the content.
func decode(body []byte, contentType string) (string, error) {
	head := body
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if !hasBOM(body) && bytes.IndexByte(head, 0) >= 0 {
		return "", ErrNotText
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", errors.Join(ErrNotText, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Join(ErrNotText, err)
	}
	return string(data), nil
}

func hasBOM(body []byte) bool {
	for _, bom := range boms {
		if bytes.HasPrefix(body, bom) {
			return true
		}
	}
	return false
}

func extractLinksFromHTML(text string, base *url.URL) ([]string, *url.URL) {
	// Use goquery to extract links from the parsed HTML contents.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return scan(text, textPatterns), base
	}

	baseHref, hasBase := doc.FindMatcher(baseSel).First().Attr("href")
	if hasBase {
		if u := mirror.Resolve(baseHref, base); u != nil {
			base = u
		}
	}

	var refs []string
	doc.FindMatcher(hrefSel).Each(func(_ int, s *goquery.Selection) {
		refs = append(refs, s.AttrOr("href", ""))
	})
	doc.FindMatcher(srcSel).Each(func(_ int, s *goquery.Selection) {
		refs = append(refs, s.AttrOr("src", ""))
	})
	doc.FindMatcher(styleSel).Each(func(_ int, s *goquery.Selection) {
		refs = append(refs, scan(s.AttrOr("style", ""), cssPatterns)...)
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		refs = append(refs, scan(s.Text(), cssPatterns)...)
	})

	// The parser leaves noscript content, script strings and
	// comments as text.
	for _, ref := range scan(text, textPatterns) {
		ref = html.UnescapeString(ref)
		if hasBase && ref == baseHref {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, base
}

func scan(text string, patterns []*regexp.Regexp) []string {
	var refs []string
	for _, rx := range patterns {
		for _, m := range rx.FindAllStringSubmatch(text, -1) {
			refs = append(refs, m[1])
		}
	}
	return refs
}
