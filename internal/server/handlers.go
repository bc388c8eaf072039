package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mts-studios/targetview/pkg/remote"
	"github.com/mts-studios/targetview/pkg/storage"
	"github.com/mts-studios/targetview/pkg/table"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	data, err := s.readDataset()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if data == nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	file, _, err := r.FormFile(remote.UploadField)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	next, err := table.Loader{Log: s.cfg.Log}.Load(payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid CSV: " + err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.lock.Acquire(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer release()

	prevPayload, err := s.readDataset()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	backup, err := s.replaceDataset(payload)
	if err != nil {
		s.cfg.Log.Errorf("Could not store upload: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.cfg.Log.Infof("Stored upload of %d rows (%d bytes), previous dataset rotated to %q", next.Len(), len(payload), backup)

	s.journal(r, prevPayload, next, len(payload), backup)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// journal records the upload and its diff. A journal failure does not fail
// the upload; the dataset is already replaced.
func (s *Server) journal(r *http.Request, prevPayload []byte, next *table.Table, size int, backup string) {
	if s.cfg.DB == nil {
		return
	}

	var prev *table.Table
	if prevPayload != nil {
		loader := table.Loader{Log: s.cfg.Log}
		var err error
		if prev, err = loader.Load(prevPayload); err != nil {
			s.cfg.Log.Warnf("Previous dataset does not parse, journaling every row as added: %v", err)
			prev = nil
		}
	}

	u, err := s.cfg.DB.LogUpload(r.Context(), storage.Upload{
		ReceivedAt: s.now(),
		Client:     r.Header.Get(s.cfg.ClientHeader),
		Rows:       next.Len(),
		Bytes:      size,
		Backup:     backup,
	}, storage.DiffTables(prev, next))
	if err != nil {
		s.cfg.Log.Errorf("Could not journal upload: %v", err)
		return
	}
	s.cfg.Log.Debugf("Journaled upload %d: %d added, %d updated, %d removed", u.ID, u.Added, u.Updated, u.Removed)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Release.Version == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No release published"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"version":      s.cfg.Release.Version,
		"download_url": s.cfg.Release.DownloadURL,
		"sha256":       s.cfg.Release.SHA256,
	})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DB == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Change journal disabled"})
		return
	}

	q := r.URL.Query()
	opts := storage.ChangeQuery{
		Title:      q.Get("title"),
		ChangeType: q.Get("type"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
			return
		}
		opts.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := parseSince(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		opts.Since = t
	}

	changes, err := s.cfg.DB.ListChanges(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DB == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Change journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	uploads, err := s.cfg.DB.ListUploads(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, uploads)
}

// parseSince accepts RFC3339, a plain date or a duration back from now.
func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return time.Now().Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid since %q: want RFC3339, YYYY-MM-DD or a duration", v)
}
