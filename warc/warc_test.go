package warc

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

var testData = []byte("this is some very interesting test data of non-zero size")

func writeRecords(w *Writer, n int) error {
	for i := 0; i < n; i++ {
		hdr := NewHeader()
		hdr.Set("WARC-Type", "resource")
		hdr.Set("WARC-Target-URI", fmt.Sprintf("https://example.com/%d", i))
		if err := w.WriteRecord(hdr, testData); err != nil {
			return fmt.Errorf("WriteRecord: %v", err)
		}
	}
	return nil
}

func TestWARC_WriteSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.warc.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWriter(f)
	if err := writeRecords(w, 10); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Each record is a gzip member, the concatenation reads back
	// as a single stream.
	in, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	gz, err := gzip.NewReader(in)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "WARC/1.0\r\n"); n != 10 {
		t.Errorf("found %d records, expected 10", n)
	}
	if n := strings.Count(string(data), "Content-Type: application/octet-stream\r\n"); n != 10 {
		t.Errorf("resource records have the wrong Content-Type (%d matches)", n)
	}
}

func TestWARC_HeaderOrder(t *testing.T) {
	hdr := NewHeader()
	hdr.Set("WARC-Type", "response")
	hdr.Set("WARC-Target-URI", "https://example.com/")

	var b strings.Builder
	if err := hdr.Encode(&b); err != nil {
		t.Fatal(err)
	}
	sc := bufio.NewScanner(strings.NewReader(b.String()))
	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	if lines[0] != "WARC/1.0" || lines[1] != "WARC-Type: response" {
		t.Fatalf("unexpected header start: %q", lines[:2])
	}
	if got := hdr.Get("Content-Type"); got != "application/http; msgtype=response" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestWARC_WriteMulti(t *testing.T) {
	dir := t.TempDir()

	var targetSize int64 = 10240
	w, err := NewMultiWriter(filepath.Join(dir, "out.%s.warc.gz"), uint64(targetSize))
	if err != nil {
		t.Fatal(err)
	}
	if err := writeRecords(w, 1000); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, _ := os.ReadDir(dir)
	if len(files) < 2 {
		t.Fatalf("MultiWriter didn't create enough files (%d)", len(files))
	}
	for _, f := range files[:len(files)-1] {
		fi, err := f.Info()
		if err != nil {
			t.Fatal(err)
		}
		if fi.Size() < targetSize {
			t.Errorf("output file %s is too small (%d bytes)", f.Name(), fi.Size())
		}
	}
}

func TestWARC_WriteMulti_Concurrent(t *testing.T) {
	dir := t.TempDir()

	w, err := NewMultiWriter(filepath.Join(dir, "out.%s.warc.gz"), 100000)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := writeRecords(w, 200); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("a worker got an error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWARC_NotAPattern(t *testing.T) {
	if _, err := NewMultiWriter("out.warc.gz", 0); err == nil {
		t.Fatalf("NewMultiWriter accepted a path without %%s")
	}
}

func TestWARC_WriteAfterClose(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.warc.gz"))
	if err != nil {
		t.Fatal(err)
	}
	w := NewWriter(f)
	w.Close()
	if _, err := w.NewRecord(NewHeader()); err != ErrClosed {
		t.Fatalf("NewRecord after Close: got %v, want ErrClosed", err)
	}
}
