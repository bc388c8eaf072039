package whttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const (
	USER_AGENT      = "targetview (+https://target.mts-studios.com)"
	maxReasonLength = 200
)

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
	Body    []byte
}

type WHTTPRes struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// BodyString returns the response body as text.
func (r *WHTTPRes) BodyString() string { return string(r.Body) }

// ClientOptions configures NewClient.
type ClientOptions struct {
	Proxy    string
	RetryMax int
	// Timeout bounds a whole request, body included.
	Timeout time.Duration
	// HeaderTimeout bounds only the wait for response headers, so long bodies
	// can stream. Use it instead of Timeout for large downloads.
	HeaderTimeout time.Duration
	Logger        *logrus.Logger
}

// NewClient builds a retrying client. Only transport errors and 5xx answers are
// retried, and once retries are exhausted the last response is handed back to
// the caller instead of being replaced by a generic error.
func NewClient(opts ClientOptions) (*retryablehttp.Client, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	if opts.Logger != nil {
		client.Logger = leveledLogger{opts.Logger}
	} else {
		client.Logger = nil
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		client.HTTPClient.Transport = &http.Transport{
			Proxy:           http.ProxyURL(proxyURL),
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	if opts.HeaderTimeout > 0 {
		if tr, ok := client.HTTPClient.Transport.(*http.Transport); ok {
			tr.ResponseHeaderTimeout = opts.HeaderTimeout
		}
	}
	return client, nil
}

// SendHTTPRequest performs wReq and reads the whole response body.
func SendHTTPRequest(ctx context.Context, wReq *WHTTPReq, client *retryablehttp.Client) (*WHTTPRes, error) {
	resp, err := Do(ctx, wReq, client)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &WHTTPRes{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       bodyBytes,
	}, nil
}

// Do performs wReq and returns the live response; the caller closes the body.
// Use it for downloads that must be streamed.
func Do(ctx context.Context, wReq *WHTTPReq, client *retryablehttp.Client) (*http.Response, error) {
	var body interface{}
	if wReq.Body != nil {
		body = bytes.NewReader(wReq.Body)
	}

	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, wReq.URL, body)
	if err != nil {
		return nil, err
	}

	// Set common headers
	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Cache-Control", "no-transform")
	req.Header.Set("Accept-Language", "en")

	// Set custom headers
	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	return client.Do(req)
}

// HeadersFrom flattens an http.Header into request headers.
func HeadersFrom(h http.Header) []WHTTPHeader {
	var out []WHTTPHeader
	for name, values := range h {
		for _, v := range values {
			out = append(out, WHTTPHeader{Name: name, Value: v})
		}
	}
	return out
}

// ErrorReason turns an error response body into a short human readable
// reason. HTML pages are reduced to their title or first heading; anything
// else is trimmed to one line.
func ErrorReason(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}

	if looksLikeHTML(text) {
		if reason, ok := getHTMLReason(text); ok {
			return truncate(reason)
		}
	}

	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = text[:i]
	}
	return truncate(text)
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(s)
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html") || strings.Contains(head, "<title")
}

func getHTMLReason(body string) (string, bool) {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}

	doc := goquery.NewDocumentFromNode(root)
	for _, sel := range []string{"title", "h1", "h2", "p"} {
		text := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " ")
		if text != "" {
			return strings.ToValidUTF8(text, ""), true
		}
	}
	return "", false
}

func truncate(s string) string {
	if len(s) <= maxReasonLength {
		return s
	}
	return strings.ToValidUTF8(s[:maxReasonLength], "") + "..."
}

// leveledLogger routes retryablehttp's structured log calls to logrus.
type leveledLogger struct {
	l *logrus.Logger
}

func (l leveledLogger) fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.l.WithFields(l.fields(kv)).Error(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.l.WithFields(l.fields(kv)).Warn(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.l.WithFields(l.fields(kv)).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.l.WithFields(l.fields(kv)).Debug(msg) }
