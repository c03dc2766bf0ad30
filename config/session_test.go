package config

import (
	"net/url"
	"testing"

	"git.autistici.org/ale/mirror"
)

func TestAuthProvider(t *testing.T) {
	origin, _ := url.Parse("https://example.com/")

	cfg := Default()
	cfg.Secret = "1234"
	cfg.LoginMarkers = []string{"Please log in"}
	form, ok := cfg.AuthProvider(origin).(mirror.FormLogin)
	if !ok {
		t.Fatalf("default auth is not form login: %T", cfg.AuthProvider(origin))
	}
	if form.Secret != "1234" || form.Origin != origin {
		t.Errorf("unexpected form login: %+v", form)
	}
	if !form.IsLoginPage([]byte("<p>please LOG IN</p>")) {
		t.Error("configured login marker not detected")
	}
	if form.IsLoginPage([]byte("Zugangscode eingeben")) {
		t.Error("default markers used despite configured ones")
	}

	cfg.Auth = AuthBasic
	cfg.Username = "alice"
	if got, want := cfg.AuthProvider(origin), (mirror.BasicAuth{Username: "alice", Password: "1234"}); got != want {
		t.Errorf("basic auth: got %+v, want %+v", got, want)
	}

	cfg.Auth = AuthNone
	if _, ok := cfg.AuthProvider(origin).(mirror.NoAuth); !ok {
		t.Errorf("auth none: got %T", cfg.AuthProvider(origin))
	}
}
