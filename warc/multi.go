package warc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"
)

const defaultMaxSize = 100 * 1024 * 1024

// The destination of a Writer. NewRecord is called before each record
// and lets file rotation happen on record boundaries.
type rawWriter interface {
	io.WriteCloser
	NewRecord() error
}

// bufferedFile buffers writes to a file and counts the bytes written.
type bufferedFile struct {
	*bufio.Writer
	c     io.Closer
	bytes uint64
}

func newBufferedFile(w io.WriteCloser) *bufferedFile {
	return &bufferedFile{Writer: bufio.NewWriter(w), c: w}
}

func (f *bufferedFile) Write(b []byte) (int, error) {
	n, err := f.Writer.Write(b)
	f.bytes += uint64(n)
	return n, err
}

func (f *bufferedFile) Close() error {
	if err := f.Writer.Flush(); err != nil {
		f.c.Close() // nolint
		return err
	}
	return f.c.Close()
}

type simpleWriter struct {
	*bufferedFile
}

func newSimpleWriter(w io.WriteCloser) rawWriter {
	return &simpleWriter{newBufferedFile(w)}
}

func (w *simpleWriter) NewRecord() error {
	return nil
}

// multiWriter starts a new file whenever the current one grew past
// maxSize. Callers serialize access.
type multiWriter struct {
	pattern string
	maxSize uint64
	seq     int

	cur *bufferedFile
}

func newMultiWriter(pattern string, maxSize uint64) rawWriter {
	if maxSize == 0 {
		maxSize = defaultMaxSize
	}
	return &multiWriter{
		pattern: pattern,
		maxSize: maxSize,
	}
}

// File names sort in creation order: a timestamp followed by a
// sequence number for files created within the same second.
func (w *multiWriter) newFilename() string {
	w.seq++
	token := time.Now().UTC().Format("20060102150405") + "-" + fmt.Sprintf("%05d", w.seq)
	return fmt.Sprintf(w.pattern, token)
}

func (w *multiWriter) NewRecord() error {
	if w.cur != nil && w.cur.bytes < w.maxSize {
		return nil
	}
	if w.cur != nil {
		if err := w.cur.Close(); err != nil {
			return err
		}
		w.cur = nil
	}
	f, err := os.Create(w.newFilename())
	if err != nil {
		return err
	}
	w.cur = newBufferedFile(f)
	return nil
}

func (w *multiWriter) Write(b []byte) (int, error) {
	if w.cur == nil {
		return 0, fmt.Errorf("warc: write outside of a record")
	}
	return w.cur.Write(b)
}

func (w *multiWriter) Close() error {
	if w.cur == nil {
		return nil
	}
	return w.cur.Close()
}
