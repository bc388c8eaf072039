// Package server is the dataset file host: it serves target.csv to clients,
// accepts replacements with backup rotation and journals every change.
package server

import (
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mts-studios/targetview/internal/utils"
	"github.com/mts-studios/targetview/pkg/remote"
	"github.com/mts-studios/targetview/pkg/storage"
)

const (
	DataFile   = "target.csv"
	BackupDir  = "backups"
	MaxBackups = 5
	maxUpload  = 32 << 20
)

type Config struct {
	// Dir holds target.csv and the backups directory.
	Dir   string
	Token string
	// DB is optional; without it uploads are not journaled.
	DB      *storage.DB
	Release remote.VersionInfo
	// ClientHeader names the request header journaled as the uploading
	// client. Defaults to remote.DefaultClientHeader.
	ClientHeader string
	Log          *logrus.Logger
}

type Server struct {
	cfg  Config
	lock *utils.DirLock
	// mu serializes writers inside this process; lock covers other processes.
	mu  sync.Mutex
	now func() time.Time
}

func New(cfg Config) (*Server, error) {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Log == nil {
		cfg.Log = utils.Log
	}
	if cfg.ClientHeader == "" {
		cfg.ClientHeader = remote.DefaultClientHeader
	}
	lock, err := utils.NewDirLock(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, lock: lock, now: time.Now}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /download", s.tokenAuth(s.handleDownload))
	mux.HandleFunc("POST /upload", s.tokenAuth(s.handleUpload))
	mux.HandleFunc("GET /version", s.handleVersion)

	// Change journal
	mux.HandleFunc("GET /api/changes", s.tokenAuth(s.handleChanges))
	mux.HandleFunc("GET /api/uploads", s.tokenAuth(s.handleUploads))

	return s.logRequests(mux)
}

func (s *Server) Start(addr string) error {
	s.cfg.Log.Infof("Serving %s on %s", filepath.Join(s.cfg.Dir, DataFile), addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// tokenAuth requires "Authorization: Bearer <token>". An empty configured
// token disables the check.
func (s *Server) tokenAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid token"})
			return
		}
		next(w, r)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.cfg.Log.Debugf("%s %s from %s in %s", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start).Round(time.Millisecond))
	})
}
