// Package warc writes archives of fetched resources in WARC format.

package warc

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pborman/uuid"
)

const (
	warcTimeFmt = "2006-01-02T15:04:05Z"
	warcVersion = "WARC/1.0"
)

var warcContentTypes = map[string]string{
	"warcinfo": "application/warc-fields",
	"response": "application/http; msgtype=response",
	"request":  "application/http; msgtype=request",
	"resource": "application/octet-stream",
	"metadata": "application/warc-fields",
}

// Header for a WARC record. Header field names are case-sensitive.
type Header map[string]string

// Set a header to the specified value. Setting WARC-Type also sets
// the matching Content-Type.
func (h Header) Set(key, value string) {
	h[key] = value
	if key == "WARC-Type" {
		ct, ok := warcContentTypes[value]
		if !ok {
			ct = "application/octet-stream"
		}
		h["Content-Type"] = ct
	}
}

// Get the value of a header. If not found, returns an empty string.
func (h Header) Get(key string) string {
	return h[key]
}

// Encode the header to a Writer. Fields are written in a stable
// order, WARC-Type first.
func (h Header) Encode(w io.Writer) error {
	keys := make([]string, 0, len(h))
	for k := range h {
		if k != "WARC-Type" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := h["WARC-Type"]; ok {
		keys = append([]string{"WARC-Type"}, keys...)
	}

	var b strings.Builder
	b.WriteString(warcVersion + "\r\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, h[k])
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// NewHeader returns a Header with its own unique ID and the current
// timestamp.
func NewHeader() Header {
	h := make(Header)
	h.Set("WARC-Record-ID", fmt.Sprintf("<%s>", uuid.NewUUID().URN()))
	h.Set("WARC-Date", time.Now().UTC().Format(warcTimeFmt))
	h.Set("Content-Type", "application/octet-stream")
	return h
}

// Writer writes records to a WARC output, each record in its own gzip
// member. It is safe for concurrent use: a record holds the Writer
// until it is closed.
type Writer struct {
	mx     sync.Mutex
	out    rawWriter
	closed bool
}

type recordWriter struct {
	*gzip.Writer
	w *Writer
}

func (rw *recordWriter) Close() error {
	defer rw.w.mx.Unlock()
	// Add the end-of-record marker.
	if _, err := io.WriteString(rw.Writer, "\r\n\r\n"); err != nil {
		return err
	}
	return rw.Writer.Close()
}

// ErrClosed is returned when writing to a closed Writer.
var ErrClosed = errors.New("warc: writer is closed")

// NewRecord starts a new record with the provided header. The caller
// must Close the returned writer; other calls to NewRecord block until
// then.
func (w *Writer) NewRecord(hdr Header) (io.WriteCloser, error) {
	w.mx.Lock()
	if w.closed {
		w.mx.Unlock()
		return nil, ErrClosed
	}
	if err := w.out.NewRecord(); err != nil {
		w.mx.Unlock()
		return nil, err
	}
	gz, err := gzip.NewWriterLevel(w.out, gzip.BestCompression)
	if err != nil {
		w.mx.Unlock()
		return nil, err
	}
	gz.Header.Name = hdr.Get("WARC-Record-ID")
	if err := hdr.Encode(gz); err != nil {
		w.mx.Unlock()
		return nil, err
	}
	return &recordWriter{Writer: gz, w: w}, nil
}

// WriteRecord writes a whole record, setting its Content-Length.
func (w *Writer) WriteRecord(hdr Header, payload []byte) error {
	hdr.Set("Content-Length", strconv.Itoa(len(payload)))
	rec, err := w.NewRecord(hdr)
	if err != nil {
		return err
	}
	if _, err := rec.Write(payload); err != nil {
		rec.Close() // nolint
		return err
	}
	return rec.Close()
}

// Close flushes the output and closes the underlying file(s).
func (w *Writer) Close() error {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.out.Close()
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.WriteCloser) *Writer {
	return &Writer{out: newSimpleWriter(w)}
}

// NewMultiWriter returns a Writer that spreads its output over files
// of roughly maxSize bytes. The pattern must contain a literal "%s",
// which is replaced by a lexically sortable unique token.
func NewMultiWriter(pattern string, maxSize uint64) (*Writer, error) {
	if !strings.Contains(pattern, "%s") {
		return nil, errors.New("warc: output path is not a pattern")
	}
	return &Writer{out: newMultiWriter(pattern, maxSize)}, nil
}
