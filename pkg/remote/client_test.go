package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	cfg := Config{
		DataURL:        srv.URL + "/download",
		UploadURL:      srv.URL + "/upload",
		VersionURL:     srv.URL + "/version",
		Token:          "secret",
		CurrentVersion: "1.0.0",
	}
	c, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error":"Invalid token"}`)
			return
		}
		io.WriteString(w, "title,live\nA,True\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	body, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "title,live\nA,True\n" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestFetchReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "File not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Status != http.StatusNotFound || fe.Reason != "File not found" {
		t.Fatalf("unexpected fetch error: %+v", fe)
	}
}

func TestFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != 0 || fe.Err == nil {
		t.Fatalf("expected transport FetchError, got %v", err)
	}
}

func TestUploadSendsMultipartFile(t *testing.T) {
	var gotName, gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		f, hdr, err := r.FormFile(UploadField)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotBody = hdr.Filename, string(b)
		io.WriteString(w, `{"success":true}`)
	}))
	defer srv.Close()

	if err := newTestClient(t, srv).Upload(context.Background(), []byte("title\nA\n")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotName != UploadFilename || gotBody != "title\nA\n" || gotAuth != "Bearer secret" {
		t.Fatalf("unexpected upload: name=%q body=%q auth=%q", gotName, gotBody, gotAuth)
	}
}

func TestUploadIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newTestClient(t, srv).Upload(context.Background(), []byte("title\n"))
	var ue *UploadError
	if !errors.As(err, &ue) || ue.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 UploadError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestLatestVersion(t *testing.T) {
	var gotClient string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClient = r.Header.Get(DefaultClientHeader)
		io.WriteString(w, `{"version":"1.0.9","download_url":"http://host/bin"}`)
	}))
	defer srv.Close()

	info, err := newTestClient(t, srv).LatestVersion(context.Background())
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if info.Version != "1.0.9" || info.DownloadURL != "http://host/bin" {
		t.Fatalf("unexpected info %+v", info)
	}
	if gotClient != "targetview/1.0.0" {
		t.Fatalf("unexpected client header %q", gotClient)
	}
}

func TestParseVersionInfoRejectsBadBodies(t *testing.T) {
	for _, body := range []string{"", "<html></html>", `{"download_url":"x"}`} {
		if _, err := ParseVersionInfo([]byte(body)); err == nil {
			t.Errorf("expected error for %q", body)
		}
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "binary-bytes")
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, announced, err := newTestClient(t, srv).Download(context.Background(), srv.URL+"/bin", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != int64(len("binary-bytes")) || announced != n || buf.String() != "binary-bytes" {
		t.Fatalf("unexpected download: n=%d announced=%d body=%q", n, announced, buf.String())
	}
}

func TestDownloadDoesNotSendToken(t *testing.T) {
	var gotAuth, gotClient string
	releases := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotClient = r.Header.Get(DefaultClientHeader)
		io.WriteString(w, "binary-bytes")
	}))
	defer releases.Close()
	host := httptest.NewServer(http.NotFoundHandler())
	defer host.Close()

	if _, _, err := newTestClient(t, host).Download(context.Background(), releases.URL+"/bin", io.Discard); err != nil {
		t.Fatalf("download: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("release host received Authorization %q", gotAuth)
	}
	if gotClient != "targetview/1.0.0" {
		t.Fatalf("client header = %q", gotClient)
	}
}

func TestDownloadOutlivesRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "slow")
		w.(http.Flusher).Flush()
		time.Sleep(300 * time.Millisecond)
		io.WriteString(w, "body")
	}))
	defer srv.Close()

	c, err := NewClient(Config{DataURL: srv.URL, CurrentVersion: "1.0.0", Timeout: 100 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	var buf bytes.Buffer
	n, announced, err := c.Download(context.Background(), srv.URL+"/bin", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != 8 || announced != 8 || buf.String() != "slowbody" {
		t.Fatalf("unexpected download: n=%d announced=%d body=%q", n, announced, buf.String())
	}
}

func TestConfigHeadersAreFresh(t *testing.T) {
	cfg := Config{Token: "t"}.WithDefaults()
	h := cfg.AuthHeaders()
	h.Set("Authorization", "tampered")
	if cfg.AuthHeaders().Get("Authorization") != "Bearer t" {
		t.Fatalf("AuthHeaders shared state between calls")
	}
}
