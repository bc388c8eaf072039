package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mts-studios/targetview/internal/utils"
	"github.com/mts-studios/targetview/pkg/edit"
	"github.com/mts-studios/targetview/pkg/query"
	"github.com/mts-studios/targetview/pkg/selfupdate"
	"github.com/mts-studios/targetview/pkg/table"
	"github.com/mts-studios/targetview/pkg/upload"
)

const shellHelp = `Commands:
  list                         show rows matching the current filter
  search [term]                set the search term (no term clears it)
  filter <facet> [value]       facet is activity_type, live or business_unit; no value clears it
  clear                        drop the search term and every facet
  show <row>                   print every field of a row
  add <title>                  append a row with default fields
  set <row> <field> <value>    change one field of a row
  upload                       send the current table to the host
  autoupload [on|off]          upload after every change without asking
  refresh                      reload the table from the host
  update [apply]               check for a new release, install it with "apply"
  help                         this text
  quit                         leave the shell`

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session: browse, filter and edit the table",
	Long: `Open an interactive session on the table. After each change the shell
asks whether to upload the table (shell.auto_upload skips the question).
Uploads run in the background, one at a time, in the order they were made.
Release checks run at startup and every update.interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		store, err := loadStore(ctx, client)
		if err != nil {
			return err
		}

		pipeline := upload.New(client, utils.Log)
		defer pipeline.Close()

		// Queued uploads finish before the process is handed to the updater.
		mgr, err := newUpdateManager(client, func(code int) {
			pipeline.Close()
			os.Exit(code)
		})
		if err != nil {
			return err
		}
		autoApply := viper.GetBool("update.auto_apply")
		watcher := selfupdate.NewWatcher(viper.GetDuration("update.interval"), func(ctx context.Context) {
			res, err := mgr.Run(ctx, autoApply)
			if err != nil && !errors.Is(err, selfupdate.ErrBusy) {
				utils.Log.Errorf("Update failed: %v", err)
				return
			}
			if res.UpdateAvailable && !autoApply {
				utils.Log.Infof("targetview %s is available, type 'update apply' to install it", res.LatestVersion)
			}
		})
		watcher.Start(ctx)
		defer watcher.Stop()

		sh := &shell{
			out:        os.Stdout,
			store:      store,
			session:    edit.NewSession(store),
			uploads:    pipeline,
			autoUpload: viper.GetBool("shell.auto_upload"),
			refresh:    func(ctx context.Context) error { return store.Refresh(ctx, client) },
			update:     mgr.Run,
			now:        time.Now,
			onResult:   logUploadResult,
		}
		fmt.Printf("targetview %s, %d rows loaded. Type 'help' for commands.\n", Version, store.Len())
		return sh.run(ctx, os.Stdin)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

type submitter interface {
	Submit(t *table.Table) <-chan upload.Result
}

type shell struct {
	out     io.Writer
	store   *table.Store
	session *edit.Session
	filter  query.FilterState
	uploads submitter
	// autoUpload skips the confirmation after a commit.
	autoUpload bool
	// pending is set while committed changes have not been queued for upload.
	pending bool
	// ask reads one answer from the user; nil answers no.
	ask      func(prompt string) (string, bool)
	refresh  func(ctx context.Context) error
	update   func(ctx context.Context, apply bool) (selfupdate.CheckResult, error)
	now      func() time.Time
	onResult func(upload.Result)
}

var errQuit = errors.New("quit")

func (s *shell) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	s.ask = func(prompt string) (string, bool) {
		fmt.Fprint(s.out, prompt)
		if !scanner.Scan() {
			return "", false
		}
		return scanner.Text(), true
	}
	defer func() { s.ask = nil }()

	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			s.warnPending()
			return scanner.Err()
		}
		err := s.exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			s.warnPending()
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch cmd {
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "quit", "exit", "q":
		return errQuit
	case "list", "ls":
		s.list()
	case "search":
		s.filter.Term = rest
		s.list()
	case "filter":
		if len(args) == 0 {
			return errors.New("usage: filter <facet> [value]")
		}
		facet, err := query.ParseFacet(args[0])
		if err != nil {
			return err
		}
		value := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
		if strings.EqualFold(value, "all") {
			value = ""
		}
		s.filter = s.filter.With(facet, value)
		s.list()
	case "clear":
		s.filter = query.FilterState{}
		s.list()
	case "show":
		if len(args) != 1 {
			return errors.New("usage: show <row>")
		}
		i, err := parseIndex(args[0], s.store)
		if err != nil {
			return err
		}
		rec, err := s.store.Row(i)
		if err != nil {
			return err
		}
		printRecord(s.out, i, rec, s.now())
	case "add":
		if rest == "" {
			return errors.New("usage: add <title>")
		}
		d := s.session.BeginAdd()
		d.Title = rest
		i, err := s.session.CommitAdd(d)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "added row %d\n", i)
		s.offerUpload()
	case "set":
		if len(args) < 2 {
			return errors.New("usage: set <row> <field> <value>")
		}
		i, err := parseIndex(args[0], s.store)
		if err != nil {
			return err
		}
		d, err := s.session.BeginEdit(i)
		if err != nil {
			return err
		}
		value := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(rest, args[0])), args[1]))
		if err := setDraftField(&d, args[1], value); err != nil {
			return err
		}
		if err := s.session.CommitEdit(d, i); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "updated row %d\n", i)
		s.offerUpload()
	case "upload":
		s.push()
		fmt.Fprintln(s.out, "upload queued")
	case "autoupload":
		if len(args) > 0 {
			switch strings.ToLower(args[0]) {
			case "on":
				s.autoUpload = true
			case "off":
				s.autoUpload = false
			default:
				return errors.New("usage: autoupload [on|off]")
			}
		}
		fmt.Fprintf(s.out, "autoupload %s\n", onOff(s.autoUpload))
	case "refresh":
		if err := s.refresh(ctx); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%d rows loaded\n", s.store.Len())
	case "update":
		apply := len(args) > 0 && strings.EqualFold(args[0], "apply")
		res, err := s.update(ctx, apply)
		if err != nil {
			return err
		}
		switch {
		case res.LatestVersion == "":
			fmt.Fprintln(s.out, "could not reach the release host")
		case !res.UpdateAvailable:
			fmt.Fprintf(s.out, "up to date (%s)\n", Version)
		default:
			fmt.Fprintf(s.out, "%s is available, type 'update apply' to install it\n", res.LatestVersion)
		}
	default:
		return fmt.Errorf("unknown command %q, type 'help'", cmd)
	}
	return nil
}

func (s *shell) list() {
	rows := query.ComputeVisible(s.store.Snapshot(), s.filter)
	if len(rows) == 0 {
		fmt.Fprintln(s.out, "no matching rows")
		return
	}
	printRows(s.out, rows, s.now())
	if !s.filter.IsEmpty() {
		fmt.Fprintf(s.out, "%d of %d rows\n", len(rows), s.store.Len())
	}
}

// offerUpload uploads after a commit when autoupload is on or the user agrees.
// A declined change stays local until the next upload.
func (s *shell) offerUpload() {
	if s.autoUpload || s.confirm("upload now? [y/N] ") {
		s.push()
		return
	}
	s.pending = true
	fmt.Fprintln(s.out, "change kept locally, type 'upload' to send it")
}

func (s *shell) confirm(prompt string) bool {
	if s.ask == nil {
		return false
	}
	answer, ok := s.ask(prompt)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func (s *shell) warnPending() {
	if s.pending {
		fmt.Fprintln(s.out, "warning: local changes were not uploaded")
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// push queues the current table for upload and reports the outcome when it
// arrives.
func (s *shell) push() {
	s.pending = false
	done := s.uploads.Submit(s.store.Snapshot())
	go func() {
		res := <-done
		if s.onResult != nil {
			s.onResult(res)
		}
	}()
}

func logUploadResult(res upload.Result) {
	if res.Err != nil {
		utils.Log.Errorf("Upload failed, the change is only local until the next successful upload: %v", res.Err)
	}
}
