package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"git.autistici.org/ale/mirror"
	"git.autistici.org/ale/mirror/warc"
)

// Headers that describe the body as it went over the wire. The body
// we archive is already decoded, so they would be wrong.
var wireHeaders = []string{"Content-Encoding", "Content-Length", "Transfer-Encoding"}

func hdr2str(h http.Header, bodyLen int) []byte {
	h = h.Clone()
	if h == nil {
		h = make(http.Header)
	}
	for _, k := range wireHeaders {
		h.Del(k)
	}
	h.Set("Content-Length", strconv.Itoa(bodyLen))
	var b bytes.Buffer
	h.Write(&b) // nolint
	return b.Bytes()
}

// warcSaveHandler adds a request and a response record to a WARC
// archive for each fetched resource, then calls the wrapped Handler.
type warcSaveHandler struct {
	warc       *warc.Writer
	warcInfoID string
	userAgent  string
	wrap       mirror.Handler
}

func (h *warcSaveHandler) writeWARCRecord(typ, uri string, data []byte) error {
	hdr := warc.NewHeader()
	hdr.Set("WARC-Type", typ)
	hdr.Set("WARC-Target-URI", uri)
	hdr.Set("WARC-Warcinfo-ID", h.warcInfoID)
	return h.warc.WriteRecord(hdr, data)
}

func (h *warcSaveHandler) Handle(p mirror.Publisher, res *mirror.FetchResult) error {
	uri := res.URL.String()

	// Dump the request to the WARC output. It is rebuilt from the
	// URL, the session credentials are left out.
	req, err := http.NewRequest(http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	var b bytes.Buffer
	if err := req.Write(&b); err != nil {
		return err
	}
	if err := h.writeWARCRecord("request", uri, b.Bytes()); err != nil {
		return err
	}

	// Dump the response.
	statusLine := fmt.Sprintf("HTTP/1.1 %d %s", res.StatusCode, http.StatusText(res.StatusCode))
	respPayload := bytes.Join(
		[][]byte{[]byte(statusLine), hdr2str(res.Header, len(res.Body)), res.Body},
		[]byte{'\r', '\n'},
	)
	if err := h.writeWARCRecord("response", uri, respPayload); err != nil {
		return err
	}

	if h.wrap == nil {
		return nil
	}
	return h.wrap.Handle(p, res)
}

func newWarcSaveHandler(w *warc.Writer, userAgent string, wrap mirror.Handler) (*warcSaveHandler, error) {
	if userAgent == "" {
		userAgent = mirror.DefaultUserAgent
	}
	info := strings.Join([]string{
		"Software: mirror/1.0\r\n",
		"Format: WARC File Format 1.0\r\n",
		"Conformsto: http://bibnum.bnf.fr/WARC/WARC_ISO_28500_version1_latestdraft.pdf\r\n",
	}, "")

	hdr := warc.NewHeader()
	hdr.Set("WARC-Type", "warcinfo")
	hdr.Set("WARC-Warcinfo-ID", hdr.Get("WARC-Record-ID"))
	if err := w.WriteRecord(hdr, []byte(info)); err != nil {
		return nil, err
	}
	return &warcSaveHandler{
		warc:       w,
		warcInfoID: hdr.Get("WARC-Record-ID"),
		userAgent:  userAgent,
		wrap:       wrap,
	}, nil
}
