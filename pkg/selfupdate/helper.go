package selfupdate

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"text/template"
	"time"
)

// Handoff is everything the detached helper needs. Paths are explicit so a
// test can substitute a fake helper and inspect them.
type Handoff struct {
	StagedPath   string
	TargetPath   string
	RelaunchPath string
	Args         []string
	PID          int
	Delay        time.Duration
}

// Helper performs the swap and relaunch in a separate process. Launch must not
// wait for that process.
type Helper interface {
	Launch(h Handoff) error
}

// ScriptHelper writes a small replace script to Dir (os.TempDir when empty)
// and starts it detached. The script waits for PID to exit, moves the staged
// file over the target, relaunches it and deletes itself.
type ScriptHelper struct {
	Dir  string
	GOOS string
	// Stdout and Stderr are handed to the script and so to the relaunched
	// process.
	Stdout io.Writer
	Stderr io.Writer
	// Start launches the script; exec.Cmd.Start when nil.
	Start func(cmd *exec.Cmd) error
}

const shScript = `#!/bin/sh
i=0
while kill -0 {{.PID}} 2>/dev/null && [ "$i" -lt 300 ]; do
  sleep 0.1
  i=$((i+1))
done
sleep {{.DelaySeconds}}
if mv -f {{q .StagedPath}} {{q .TargetPath}}; then
  chmod +x {{q .TargetPath}}
  {{q .RelaunchPath}}{{range .Args}} {{q .}}{{end}}
fi
rm -f "$0"
`

const batScript = `@echo off
:wait
tasklist /FI "PID eq {{.PID}}" 2>NUL | find "{{.PID}}" >NUL
if not errorlevel 1 (
  timeout /t 1 /nobreak >NUL
  goto wait
)
timeout /t {{.DelaySeconds}} /nobreak >NUL
move /y {{q .StagedPath}} {{q .TargetPath}} >NUL
if not errorlevel 1 start "" {{q .RelaunchPath}}{{range .Args}} {{q .}}{{end}}
(goto) 2>NUL & del "%~f0"
`

func (h ScriptHelper) goos() string {
	if h.GOOS != "" {
		return h.GOOS
	}
	return runtime.GOOS
}

// Render returns the script text and the file extension it needs.
func (h ScriptHelper) Render(hd Handoff) (script, ext string, err error) {
	text, quote, ext := shScript, shQuote, ".sh"
	if h.goos() == "windows" {
		text, quote, ext = batScript, batQuote, ".bat"
	}

	tmpl, err := template.New("replace").Funcs(template.FuncMap{"q": quote}).Parse(text)
	if err != nil {
		return "", "", err
	}

	delay := int(hd.Delay.Round(time.Second) / time.Second)
	if delay < 1 {
		delay = 1
	}
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		Handoff
		DelaySeconds int
	}{hd, delay})
	if err != nil {
		return "", "", err
	}
	return buf.String(), ext, nil
}

// Launch writes the script and starts it without waiting.
func (h ScriptHelper) Launch(hd Handoff) error {
	script, ext, err := h.Render(hd)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(h.Dir, "targetview-replace-*"+ext)
	if err != nil {
		return fmt.Errorf("create helper script: %w", err)
	}
	if _, err := f.WriteString(script); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("write helper script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Chmod(f.Name(), 0o700); err != nil {
		os.Remove(f.Name())
		return err
	}

	var cmd *exec.Cmd
	if h.goos() == "windows" {
		cmd = exec.Command("cmd.exe", "/C", f.Name())
	} else {
		cmd = exec.Command("/bin/sh", f.Name())
	}
	cmd.Stdout, cmd.Stderr = h.Stdout, h.Stderr

	start := h.Start
	if start == nil {
		start = (*exec.Cmd).Start
	}
	if err := start(cmd); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("start helper script: %w", err)
	}
	if cmd.Process != nil {
		// Never waited on; the helper outlives this process.
		cmd.Process.Release()
	}
	return nil
}

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func batQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
