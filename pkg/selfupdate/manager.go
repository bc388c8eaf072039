// Package selfupdate discovers, downloads and installs new releases of the
// running executable.
//
// Installation is two-phase. This process verifies the download, stages it
// next to the executable and hands an explicit Handoff to a Helper; the helper
// runs as a separate process, waits for this one to exit, moves the staged
// file over the executable and relaunches it. The exiting process cannot
// observe anything that happens after the handoff.
package selfupdate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mts-studios/targetview/pkg/remote"
)

// State of the update state machine.
type State int

const (
	Idle State = iota
	Checking
	UpToDate
	UpdateAvailable
	Downloading
	DownloadFailed
	Downloaded
	Applying
	ApplyFailed
	Relaunching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Checking:
		return "checking"
	case UpToDate:
		return "up-to-date"
	case UpdateAvailable:
		return "update-available"
	case Downloading:
		return "downloading"
	case DownloadFailed:
		return "download-failed"
	case Downloaded:
		return "downloaded"
	case Applying:
		return "applying"
	case ApplyFailed:
		return "apply-failed"
	case Relaunching:
		return "relaunching"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNoDownload = errors.New("no verified download to apply")
	ErrBusy       = errors.New("an update is already in progress")
)

// DownloadError reports a failed or unverifiable download. The executable is
// never touched when it is returned.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string { return fmt.Sprintf("download %s: %v", e.URL, e.Err) }
func (e *DownloadError) Unwrap() error { return e.Err }

// ApplyError reports a failure detected before this process exits.
type ApplyError struct {
	Err error
}

func (e *ApplyError) Error() string { return fmt.Sprintf("apply update: %v", e.Err) }
func (e *ApplyError) Unwrap() error { return e.Err }

// CheckResult is the transient outcome of one version check.
type CheckResult struct {
	UpdateAvailable bool
	LatestVersion   string
	DownloadURL     string
	SHA256          string
}

// Source is the release host.
type Source interface {
	LatestVersion(ctx context.Context) (remote.VersionInfo, error)
	Download(ctx context.Context, url string, w io.Writer) (written, announced int64, err error)
}

// Logger abstracts logging so callers can use logrus or anything else.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Options configures a Manager. Zero values pick the real process
// environment: os.Executable, a ScriptHelper and os.Exit.
type Options struct {
	CurrentVersion string
	ExecutablePath string
	Args           []string
	Helper         Helper
	Exit           func(code int)
	Log            Logger
	// HelperDelay is how long the helper waits after this process is gone
	// before replacing the executable.
	HelperDelay time.Duration
}

// Manager runs the check → download → apply sequence.
type Manager struct {
	src  Source
	opts Options
	run  sync.Mutex

	mu       sync.Mutex
	state    State
	latest   string
	tempPath string
}

// NewManager resolves opts against the running process.
func NewManager(src Source, opts Options) (*Manager, error) {
	if opts.ExecutablePath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		opts.ExecutablePath = exe
	}
	if opts.Helper == nil {
		opts.Helper = ScriptHelper{}
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.Log == nil {
		opts.Log = nopLogger{}
	}
	if opts.HelperDelay <= 0 {
		opts.HelperDelay = 2 * time.Second
	}
	return &Manager{src: src, opts: opts, state: Idle}, nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LatestKnownVersion is the newest version reported during this session.
func (m *Manager) LatestKnownVersion() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// IsNewer reports whether latest should replace current. The comparison is a
// plain string comparison, not a semantic-version one: "1.0.10" sorts before
// "1.0.9". Release versions must keep equal-width components for updates to
// be offered correctly.
func IsNewer(latest, current string) bool {
	return latest > current
}

// Check asks the release host for the latest version. Any failure is logged
// and reported as "no update"; it never surfaces as an error.
func (m *Manager) Check(ctx context.Context) CheckResult {
	m.setState(Checking)

	info, err := m.src.LatestVersion(ctx)
	if err != nil {
		m.opts.Log.Warnf("Update check failed, assuming up to date: %v", err)
		m.setState(UpToDate)
		return CheckResult{}
	}

	res := CheckResult{
		LatestVersion: info.Version,
		DownloadURL:   info.DownloadURL,
		SHA256:        strings.ToLower(strings.TrimSpace(info.SHA256)),
	}
	res.UpdateAvailable = IsNewer(info.Version, m.opts.CurrentVersion) && info.DownloadURL != ""

	m.mu.Lock()
	m.latest = info.Version
	if res.UpdateAvailable {
		m.state = UpdateAvailable
	} else {
		m.state = UpToDate
	}
	m.mu.Unlock()

	m.opts.Log.Debugf("Update check: current %s, latest %s, available %v", m.opts.CurrentVersion, info.Version, res.UpdateAvailable)
	return res
}

// Download streams url into a temporary file beside the executable. The file
// is kept only after the full body has been written, flushed and verified
// against the announced length and, when given, the SHA-256 digest. On any
// failure the temporary file is removed.
func (m *Manager) Download(ctx context.Context, url, wantSHA256 string) error {
	m.setState(Downloading)
	m.discardTemp()

	path, err := m.download(ctx, url, wantSHA256)
	if err != nil {
		m.setState(DownloadFailed)
		return &DownloadError{URL: url, Err: err}
	}

	m.mu.Lock()
	m.tempPath = path
	m.state = Downloaded
	m.mu.Unlock()
	return nil
}

func (m *Manager) download(ctx context.Context, url, wantSHA256 string) (path string, err error) {
	exe := m.opts.ExecutablePath
	f, err := os.CreateTemp(filepath.Dir(exe), "."+filepath.Base(exe)+".download-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	h := sha256.New()
	written, announced, err := m.src.Download(ctx, url, io.MultiWriter(f, h))
	if err != nil {
		return "", err
	}
	if written == 0 {
		return "", errors.New("empty download")
	}
	if announced >= 0 && written != announced {
		return "", fmt.Errorf("short download: got %d of %d bytes", written, announced)
	}
	if wantSHA256 != "" {
		if got := hex.EncodeToString(h.Sum(nil)); got != strings.ToLower(wantSHA256) {
			return "", fmt.Errorf("checksum mismatch: got %s, want %s", got, wantSHA256)
		}
	}
	if err = f.Sync(); err != nil {
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func (m *Manager) discardTemp() {
	m.mu.Lock()
	path := m.tempPath
	m.tempPath = ""
	m.mu.Unlock()
	if path != "" {
		os.Remove(path)
	}
}

// StagedPath is where Apply moves a verified download before the handoff.
func (m *Manager) StagedPath() string {
	return m.opts.ExecutablePath + ".staged"
}

// Apply stages the verified download, launches the helper and exits the
// process. It only returns when something fails before the exit, in which
// case the executable is left as it was.
func (m *Manager) Apply() error {
	m.mu.Lock()
	temp := m.tempPath
	m.tempPath = ""
	m.state = Applying
	m.mu.Unlock()

	if temp == "" {
		m.setState(ApplyFailed)
		return &ApplyError{Err: ErrNoDownload}
	}

	staged := m.StagedPath()
	if err := os.Rename(temp, staged); err != nil {
		os.Remove(temp)
		m.setState(ApplyFailed)
		return &ApplyError{Err: fmt.Errorf("stage download: %w", err)}
	}
	if err := os.Chmod(staged, 0o755); err != nil {
		os.Remove(staged)
		m.setState(ApplyFailed)
		return &ApplyError{Err: fmt.Errorf("mark staged file executable: %w", err)}
	}

	handoff := Handoff{
		StagedPath:   staged,
		TargetPath:   m.opts.ExecutablePath,
		RelaunchPath: m.opts.ExecutablePath,
		Args:         m.opts.Args,
		PID:          os.Getpid(),
		Delay:        m.opts.HelperDelay,
	}
	if err := m.opts.Helper.Launch(handoff); err != nil {
		os.Remove(staged)
		m.setState(ApplyFailed)
		return &ApplyError{Err: fmt.Errorf("launch replace helper: %w", err)}
	}

	m.setState(Relaunching)
	m.opts.Log.Infof("Update staged at %s, exiting so the helper can replace %s", staged, handoff.TargetPath)
	m.opts.Exit(0)
	return nil
}

// Run is the sequence shared by every trigger: check, and when an update is
// available download it and, if apply is set, install it. Concurrent runs are
// rejected with ErrBusy.
func (m *Manager) Run(ctx context.Context, apply bool) (CheckResult, error) {
	if !m.run.TryLock() {
		return CheckResult{}, ErrBusy
	}
	defer m.run.Unlock()

	res := m.Check(ctx)
	if !res.UpdateAvailable {
		return res, nil
	}

	m.opts.Log.Infof("Update available: %s -> %s", m.opts.CurrentVersion, res.LatestVersion)
	if !apply {
		return res, nil
	}

	if err := m.Download(ctx, res.DownloadURL, res.SHA256); err != nil {
		return res, err
	}
	return res, m.Apply()
}
