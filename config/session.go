package config

import (
	"net/url"

	"git.autistici.org/ale/mirror"
)

// ClientOptions returns the http.Client settings of c.
func (c *Config) ClientOptions() mirror.ClientOptions {
	return mirror.ClientOptions{
		Timeout:            c.Timeout.Duration,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}

// AuthProvider returns the authentication selected by c for the site
// at origin.
func (c *Config) AuthProvider(origin *url.URL) mirror.AuthProvider {
	switch c.Auth {
	case AuthNone:
		return mirror.NoAuth{}
	case AuthBasic:
		return mirror.BasicAuth{Username: c.Username, Password: c.Secret}
	}
	markers := c.LoginMarkers
	if len(markers) == 0 {
		markers = mirror.DefaultLoginMarkers
	}
	return mirror.FormLogin{
		Origin:      origin,
		Field:       c.FormField,
		Secret:      c.Secret,
		IsLoginPage: mirror.MarkerDetector(markers...),
	}
}

// NewSession builds a fresh Session for the site at origin.
func (c *Config) NewSession(origin *url.URL) *mirror.Session {
	return mirror.NewSession(mirror.NewHTTPClient(c.ClientOptions()), c.AuthProvider(origin), c.UserAgent)
}
