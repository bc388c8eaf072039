package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/mts-studios/targetview/pkg/whttp"
)

// FetchError reports a failed dataset download. Status is 0 for transport
// failures.
type FetchError struct {
	Status int
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch dataset: %v", e.Err)
	}
	return fmt.Sprintf("fetch dataset: HTTP %d: %s", e.Status, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// UploadError reports a failed dataset upload. Status is 0 for transport
// failures.
type UploadError struct {
	Status int
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload dataset: %v", e.Err)
	}
	return fmt.Sprintf("upload dataset: HTTP %d: %s", e.Status, e.Reason)
}

func (e *UploadError) Unwrap() error { return e.Err }

// VersionInfo is the body of the version endpoint.
type VersionInfo struct {
	Version     string
	DownloadURL string
	SHA256      string
}

// Client talks to the dataset host. GETs go through a retrying client; uploads
// use a client that never retries so a POST is never replayed.
type Client struct {
	cfg    Config
	get    *retryablehttp.Client
	upload *retryablehttp.Client
	// binary has no total timeout; cfg.Timeout only bounds the headers.
	binary *retryablehttp.Client
}

// NewClient builds a client for cfg. log may be nil.
func NewClient(cfg Config, log *logrus.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()
	get, err := whttp.NewClient(whttp.ClientOptions{Proxy: cfg.Proxy, RetryMax: cfg.Retries, Timeout: cfg.Timeout, Logger: log})
	if err != nil {
		return nil, err
	}
	upload, err := whttp.NewClient(whttp.ClientOptions{Proxy: cfg.Proxy, RetryMax: 0, Timeout: cfg.Timeout, Logger: log})
	if err != nil {
		return nil, err
	}
	binary, err := whttp.NewClient(whttp.ClientOptions{Proxy: cfg.Proxy, RetryMax: cfg.Retries, HeaderTimeout: cfg.Timeout, Logger: log})
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, get: get, upload: upload, binary: binary}, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config { return c.cfg }

// Fetch downloads the dataset payload. Non-200 answers and transport failures
// are returned as *FetchError.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method:  http.MethodGet,
		URL:     c.cfg.DataURL,
		Headers: whttp.HeadersFrom(c.cfg.AuthHeaders()),
	}, c.get)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &FetchError{Status: res.StatusCode, Reason: whttp.ErrorReason(res.Body)}
	}
	return res.Body, nil
}

// Upload posts payload as a multipart file named target.csv.
func (c *Client) Upload(ctx context.Context, payload []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(UploadField, UploadFilename)
	if err != nil {
		return &UploadError{Err: err}
	}
	if _, err := part.Write(payload); err != nil {
		return &UploadError{Err: err}
	}
	if err := mw.Close(); err != nil {
		return &UploadError{Err: err}
	}

	headers := c.cfg.ClientHeaders()
	headers.Set("Content-Type", mw.FormDataContentType())

	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method:  http.MethodPost,
		URL:     c.cfg.UploadURL,
		Headers: whttp.HeadersFrom(headers),
		Body:    buf.Bytes(),
	}, c.upload)
	if err != nil {
		return &UploadError{Err: err}
	}
	if res.StatusCode != http.StatusOK {
		return &UploadError{Status: res.StatusCode, Reason: whttp.ErrorReason(res.Body)}
	}
	return nil
}

// LatestVersion asks the version endpoint for the newest release.
func (c *Client) LatestVersion(ctx context.Context) (VersionInfo, error) {
	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method:  http.MethodGet,
		URL:     c.cfg.VersionURL,
		Headers: whttp.HeadersFrom(c.cfg.ClientHeaders()),
	}, c.get)
	if err != nil {
		return VersionInfo{}, err
	}
	if res.StatusCode != http.StatusOK {
		return VersionInfo{}, fmt.Errorf("version endpoint: HTTP %d: %s", res.StatusCode, whttp.ErrorReason(res.Body))
	}
	return ParseVersionInfo(res.Body)
}

// ParseVersionInfo reads {"version": ..., "download_url": ..., "sha256": ...}.
func ParseVersionInfo(body []byte) (VersionInfo, error) {
	if !gjson.ValidBytes(body) {
		return VersionInfo{}, fmt.Errorf("version endpoint: invalid JSON body")
	}
	data := gjson.GetManyBytes(body, "version", "download_url", "sha256")
	info := VersionInfo{
		Version:     data[0].String(),
		DownloadURL: data[1].String(),
		SHA256:      data[2].String(),
	}
	if info.Version == "" {
		return VersionInfo{}, fmt.Errorf("version endpoint: missing version field")
	}
	return info, nil
}

// Download streams url into w and returns the number of bytes copied along
// with the length announced by the server (-1 when unknown). No token is
// sent: url comes from the version endpoint and may point anywhere.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (written, announced int64, err error) {
	resp, err := whttp.Do(ctx, &whttp.WHTTPReq{
		Method:  http.MethodGet,
		URL:     url,
		Headers: whttp.HeadersFrom(c.cfg.IdentityHeaders()),
	}, c.binary)
	if err != nil {
		return 0, -1, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, -1, fmt.Errorf("download: HTTP %d: %s", resp.StatusCode, whttp.ErrorReason(body))
	}

	written, err = io.Copy(w, resp.Body)
	return written, resp.ContentLength, err
}
