package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mts-studios/targetview/pkg/remote"
	"github.com/mts-studios/targetview/pkg/storage"
	"github.com/mts-studios/targetview/pkg/table"
)

const testToken = "secret"

const csvV1 = "title,activity,geo_target,url,live,end date\n" +
	"Spring Promo,activity,False,https://a.example.com,True,2024-05-01\n" +
	"Fall Promo,A/B,True,https://b.example.com,False,NAN\n"

const csvV2 = "title,activity,geo_target,url,live,end date\n" +
	"Spring Promo,activity,False,https://a.example.com,True,2024-05-01\n" +
	"Fall Promo,A/B,True,https://b.example.com,True,2024-12-01\n" +
	"Winter Promo,activity,False,,False,NAN\n"

type testHost struct {
	srv    *Server
	ts     *httptest.Server
	dir    string
	client *remote.Client
}

func newTestHost(t *testing.T, withDB bool) *testHost {
	t.Helper()
	return newTestHostWithHeader(t, withDB, "")
}

// newTestHostWithHeader configures host and client with the same client
// identification header; empty means the default.
func newTestHostWithHeader(t *testing.T, withDB bool, clientHeader string) *testHost {
	t.Helper()
	dir := t.TempDir()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := Config{
		Dir:     dir,
		Token:   testToken,
		Release:      remote.VersionInfo{Version: "1.0.5", DownloadURL: "https://releases.example.com/targetview"},
		ClientHeader: clientHeader,
		Log:          log,
	}
	if withDB {
		db, err := storage.Open(filepath.Join(t.TempDir(), "journal.sqlite"))
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		cfg.DB = db
	}

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	srv.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := remote.NewClient(remote.Config{
		DataURL:        ts.URL + "/download",
		UploadURL:      ts.URL + "/upload",
		VersionURL:     ts.URL + "/version",
		Token:          testToken,
		ClientHeader:   clientHeader,
		CurrentVersion: "1.0.4",
		Retries:        1,
	}.WithDefaults(), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	return &testHost{srv: srv, ts: ts, dir: dir, client: client}
}

func decodeError(t *testing.T, res *http.Response) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestDownloadRequiresToken(t *testing.T) {
	h := newTestHost(t, false)

	for _, auth := range []string{"", "Bearer wrong", testToken} {
		req, _ := http.NewRequest(http.MethodGet, h.ts.URL+"/download", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if res.StatusCode != http.StatusForbidden {
			t.Fatalf("auth %q: expected 403, got %d", auth, res.StatusCode)
		}
		if msg := decodeError(t, res); msg != "Invalid token" {
			t.Fatalf("unexpected error message %q", msg)
		}
		res.Body.Close()
	}
}

func TestDownloadMissingDataset(t *testing.T) {
	h := newTestHost(t, false)

	_, err := h.client.Fetch(context.Background())
	var fe *remote.FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusNotFound {
		t.Fatalf("expected 404 FetchError, got %v", err)
	}
}

func TestUploadThenDownload(t *testing.T) {
	h := newTestHost(t, false)
	ctx := context.Background()

	if err := h.client.Upload(ctx, []byte(csvV1)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	got, err := h.client.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(got) != csvV1 {
		t.Fatalf("fetched %q, want %q", got, csvV1)
	}
	if _, err := os.Stat(filepath.Join(h.dir, BackupDir)); !os.IsNotExist(err) {
		t.Fatalf("first upload must not create a backup: %v", err)
	}
}

func TestUploadRotatesAndPrunesBackups(t *testing.T) {
	h := newTestHost(t, false)
	ctx := context.Background()

	for i := 0; i < MaxBackups+3; i++ {
		payload := csvV1 + "Extra " + strings.Repeat("x", i) + ",activity,False,,False,NAN\n"
		if err := h.client.Upload(ctx, []byte(payload)); err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(h.dir, BackupDir))
	if err != nil {
		t.Fatalf("read backups: %v", err)
	}
	if len(entries) != MaxBackups {
		t.Fatalf("expected %d backups, got %d", MaxBackups, len(entries))
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "backup-2024-01-01T00-00-") || !strings.HasSuffix(e.Name(), "-000Z.csv") {
			t.Fatalf("unexpected backup name %q", e.Name())
		}
	}

	// The newest backup is the second to last upload.
	newest := filepath.Join(h.dir, BackupDir, backupName(time.Date(2024, 1, 1, 0, 0, MaxBackups+2, 0, time.UTC)))
	data, err := os.ReadFile(newest)
	if err != nil {
		t.Fatalf("read newest backup: %v", err)
	}
	if !strings.Contains(string(data), "Extra "+strings.Repeat("x", MaxBackups+1)+",") {
		t.Fatalf("newest backup holds the wrong dataset:\n%s", data)
	}
}

func TestUploadRejections(t *testing.T) {
	h := newTestHost(t, false)
	if err := h.client.Upload(context.Background(), []byte(csvV1)); err != nil {
		t.Fatalf("seed upload: %v", err)
	}

	t.Run("no file", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, h.ts.URL+"/upload", bytes.NewBufferString("title=x"))
		req.Header.Set("Authorization", "Bearer "+testToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusBadRequest || decodeError(t, res) != "No file uploaded" {
			t.Fatalf("expected 400 No file uploaded, got %d", res.StatusCode)
		}
	})

	t.Run("invalid csv", func(t *testing.T) {
		err := h.client.Upload(context.Background(), []byte("nonsense\n\"unterminated"))
		var ue *remote.UploadError
		if !errors.As(err, &ue) || ue.Status != http.StatusBadRequest {
			t.Fatalf("expected 400 UploadError, got %v", err)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, h.ts.URL+"/upload", nil)
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", res.StatusCode)
		}
	})

	data, err := os.ReadFile(filepath.Join(h.dir, DataFile))
	if err != nil || string(data) != csvV1 {
		t.Fatalf("rejected uploads changed the dataset: %q, %v", data, err)
	}
}

func TestUploadsAreJournaled(t *testing.T) {
	h := newTestHost(t, true)
	ctx := context.Background()

	for _, payload := range []string{csvV1, csvV2} {
		if err := h.client.Upload(ctx, []byte(payload)); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, h.ts.URL+"/api/changes?title=promo&limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	var changes []storage.Change
	if err := json.NewDecoder(res.Body).Decode(&changes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Second upload: Fall updated, Winter added. First upload: two added.
	if len(changes) != 4 {
		t.Fatalf("expected 4 changes, got %+v", changes)
	}
	if changes[0].Title != "Winter Promo" || changes[0].ChangeType != storage.ChangeAdded {
		t.Fatalf("unexpected newest change: %+v", changes[0])
	}
	if changes[1].Title != "Fall Promo" || changes[1].ChangeType != storage.ChangeUpdated ||
		strings.Join(changes[1].Columns, ",") != "live,end date" {
		t.Fatalf("unexpected update: %+v", changes[1])
	}

	uploads, err := h.srv.cfg.DB.ListUploads(ctx, 10)
	if err != nil {
		t.Fatalf("list uploads: %v", err)
	}
	if len(uploads) != 2 || uploads[0].Client != "targetview/1.0.4" || uploads[0].Backup == "" {
		t.Fatalf("unexpected uploads: %+v", uploads)
	}
}

func TestJournalUsesConfiguredClientHeader(t *testing.T) {
	h := newTestHostWithHeader(t, true, "X-Team-Client")
	ctx := context.Background()

	if err := h.client.Upload(ctx, []byte(csvV1)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	uploads, err := h.srv.cfg.DB.ListUploads(ctx, 10)
	if err != nil {
		t.Fatalf("list uploads: %v", err)
	}
	if len(uploads) != 1 || uploads[0].Client != "targetview/1.0.4" {
		t.Fatalf("client identity lost: %+v", uploads)
	}
}

func TestChangesDisabledWithoutDB(t *testing.T) {
	h := newTestHost(t, false)
	req, _ := http.NewRequest(http.MethodGet, h.ts.URL+"/api/changes", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestVersionEndpoint(t *testing.T) {
	h := newTestHost(t, false)

	info, err := h.client.LatestVersion(context.Background())
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if info.Version != "1.0.5" || info.DownloadURL != "https://releases.example.com/targetview" {
		t.Fatalf("unexpected version info: %+v", info)
	}
}

func TestServedDatasetLoads(t *testing.T) {
	h := newTestHost(t, false)
	ctx := context.Background()
	if err := h.client.Upload(ctx, []byte(csvV2)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	store := table.NewStore(table.New(), table.Loader{})
	if err := store.Refresh(ctx, h.client); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if store.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", store.Len())
	}
}

func TestParseSince(t *testing.T) {
	for _, v := range []string{"2024-06-01T00:00:00Z", "2024-06-01", "24h"} {
		if _, err := parseSince(v); err != nil {
			t.Errorf("parseSince(%q): %v", v, err)
		}
	}
	if _, err := parseSince("last tuesday"); err == nil {
		t.Errorf("expected error for garbage")
	}
}
