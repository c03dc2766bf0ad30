package mirror

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_Save(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	s, err := NewStore(root)
	if err != nil {
		t.Fatal(err)
	}

	path, err := s.Save(mustParseURL("https://x.test/a/b/c.css"), []byte("body{}"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(root, "x.test", "a", "b", "c.css"); path != want {
		t.Errorf("saved to %s, want %s", path, want)
	}

	// Saving again replaces the file.
	if _, err := s.Save(mustParseURL("https://x.test/a/b/c.css"), []byte("p{}")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "p{}" {
		t.Errorf("unexpected contents %q", data)
	}

	// No temporary files are left around.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected a single file in %s, found %d", filepath.Dir(path), len(entries))
	}
}

func TestStore_FileBecomesDirectory(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root)
	if err != nil {
		t.Fatal(err)
	}
	base := mustParseURL("https://site.test/")
	save := func(ref, body string) string {
		t.Helper()
		path, err := s.Save(Normalize(ref, base), []byte(body))
		if err != nil {
			t.Fatalf("Save(%s): %v", ref, err)
		}
		return path
	}

	// Without its slash, /v1.0 looks like a file.
	save("/v1.0/", "version")
	save("/v1.0/page.html", "page")
	// A directory is already there for /v2.0.
	save("/v2.0/page.html", "page")
	if got, want := save("/v2.0", "version"), filepath.Join(root, "site.test", "v2.0", "index.html"); got != want {
		t.Errorf("saved to %s, want %s", got, want)
	}

	for _, name := range []string{"v1.0", "v2.0"} {
		dir := filepath.Join(root, "site.test", name)
		for file, want := range map[string]string{"index.html": "version", "page.html": "page"} {
			data, err := os.ReadFile(filepath.Join(dir, file))
			if err != nil {
				t.Error(err)
				continue
			}
			if string(data) != want {
				t.Errorf("%s/%s: got %q, want %q", name, file, data, want)
			}
		}
		if entries, _ := os.ReadDir(dir); len(entries) != 2 {
			t.Errorf("expected 2 files in %s, found %d", dir, len(entries))
		}
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root)
	if err != nil {
		t.Fatal(err)
	}
	s.MaxConsecutiveFailures = 3

	// A file where the host directory should be makes every
	// write to that host fail.
	if err := os.WriteFile(filepath.Join(root, "broken.test"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	bad := mustParseURL("https://broken.test/page.html")
	good := mustParseURL("https://x.test/page.html")

	for i := 0; i < 2; i++ {
		_, err := s.Save(bad, []byte("x"))
		var fsErr *FilesystemError
		if !errors.As(err, &fsErr) {
			t.Fatalf("failure %d: got %v, want a FilesystemError", i+1, err)
		}
		if errors.Is(err, ErrStorageFailed) {
			t.Fatalf("failure %d is already fatal: %v", i+1, err)
		}
	}

	// A success resets the count.
	if _, err := s.Save(good, []byte("x")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Save(bad, []byte("x")); errors.Is(err, ErrStorageFailed) {
			t.Fatalf("failure %d after a success is fatal: %v", i+1, err)
		}
	}
	if _, err := s.Save(bad, []byte("x")); !errors.Is(err, ErrStorageFailed) {
		t.Fatalf("third consecutive failure: got %v, want ErrStorageFailed", err)
	}
}

func TestNewStore_Error(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	_, err := NewStore(filepath.Join(file, "out"))
	var fsErr *FilesystemError
	if !errors.As(err, &fsErr) {
		t.Fatalf("got %v, want a FilesystemError", err)
	}
}
