package remote

import (
	"net/http"
	"time"
)

const (
	DefaultDataURL      = "http://target.mts-studios.com/download"
	DefaultUploadURL    = "http://target.mts-studios.com/upload"
	DefaultVersionURL   = "http://target.mts-studios.com/version"
	DefaultClientHeader = "X-Targetview-Client"
	DefaultRetries      = 2
	DefaultTimeout      = 30 * time.Second

	UploadField    = "file"
	UploadFilename = "target.csv"
)

// Config is the resolved endpoint configuration. It is built once at startup
// and passed by value; nothing mutates it afterwards.
type Config struct {
	DataURL    string
	UploadURL  string
	VersionURL string
	Token      string

	// ClientHeader names the header that identifies this client on uploads
	// and release requests. Its value is ClientName/CurrentVersion.
	ClientHeader   string
	ClientName     string
	CurrentVersion string

	Proxy   string
	Retries int
	Timeout time.Duration
}

// WithDefaults fills every empty field with its default.
func (c Config) WithDefaults() Config {
	if c.DataURL == "" {
		c.DataURL = DefaultDataURL
	}
	if c.UploadURL == "" {
		c.UploadURL = DefaultUploadURL
	}
	if c.VersionURL == "" {
		c.VersionURL = DefaultVersionURL
	}
	if c.ClientHeader == "" {
		c.ClientHeader = DefaultClientHeader
	}
	if c.ClientName == "" {
		c.ClientName = "targetview"
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// AuthHeaders returns a fresh header set carrying the bearer token.
func (c Config) AuthHeaders() http.Header {
	h := http.Header{}
	if c.Token != "" {
		h.Set("Authorization", "Bearer "+c.Token)
	}
	return h
}

// ClientHeaders returns the auth headers plus the client identification
// header, sent on uploads and the version check.
func (c Config) ClientHeaders() http.Header {
	h := c.AuthHeaders()
	h.Set(c.ClientHeader, c.ClientID())
	return h
}

// IdentityHeaders carries only the client identification header. The release
// binary may live on another host, which must not see the token.
func (c Config) IdentityHeaders() http.Header {
	h := http.Header{}
	h.Set(c.ClientHeader, c.ClientID())
	return h
}

// ClientID is the value of the client identification header.
func (c Config) ClientID() string {
	return c.ClientName + "/" + c.CurrentVersion
}
