package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mts-studios/targetview/pkg/edit"
	"github.com/mts-studios/targetview/pkg/selfupdate"
	"github.com/mts-studios/targetview/pkg/table"
	"github.com/mts-studios/targetview/pkg/upload"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	tables []*table.Table
}

func (f *fakeSubmitter) Submit(t *table.Table) <-chan upload.Result {
	f.mu.Lock()
	f.tables = append(f.tables, t)
	f.mu.Unlock()
	done := make(chan upload.Result, 1)
	done <- upload.Result{Rows: t.Len()}
	close(done)
	return done
}

func newTestShell(records ...table.Record) (*shell, *bytes.Buffer, *fakeSubmitter) {
	store := table.NewStore(table.New(records...), table.Loader{})
	out := &bytes.Buffer{}
	sub := &fakeSubmitter{}
	return &shell{
		out:     out,
		store:   store,
		session: edit.NewSession(store),
		uploads: sub,
		refresh: func(ctx context.Context) error { return nil },
		update: func(ctx context.Context, apply bool) (selfupdate.CheckResult, error) {
			return selfupdate.CheckResult{}, nil
		},
		now: func() time.Time { return time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC) },
	}, out, sub
}

func sampleRows() []table.Record {
	return []table.Record{
		{Title: "Spring Promo", ActivityType: table.ActivityTypeActivity, Live: true, URLs: []string{"https://a.example.com"}},
		{Title: "Fall Test", ActivityType: table.ActivityTypeAB, Live: false, BusinessUnit: table.BusinessUnitCorp},
	}
}

func TestShellFilters(t *testing.T) {
	sh, out, _ := newTestShell(sampleRows()...)
	ctx := context.Background()

	if err := sh.exec(ctx, "search spring"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out.String(), "Spring Promo") || strings.Contains(out.String(), "Fall Test") {
		t.Fatalf("search output:\n%s", out)
	}

	out.Reset()
	if err := sh.exec(ctx, "clear"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := sh.exec(ctx, "filter activity_type A/B"); err != nil {
		t.Fatalf("filter: %v", err)
	}
	if !strings.Contains(out.String(), "1 of 2 rows") {
		t.Fatalf("filter output:\n%s", out)
	}

	out.Reset()
	if err := sh.exec(ctx, "filter activity_type all"); err != nil {
		t.Fatalf("filter all: %v", err)
	}
	if !sh.filter.IsEmpty() {
		t.Fatalf("'all' should clear the facet: %+v", sh.filter)
	}

	if err := sh.exec(ctx, "filter colour red"); err == nil {
		t.Fatalf("expected unknown facet error")
	}
}

func TestShellEditsUploadWhenConfirmed(t *testing.T) {
	sh, out, sub := newTestShell(sampleRows()...)

	in := strings.NewReader("set 1 title Fall Promo Final\ny\nadd Winter Promo\nYes\nquit\n")
	if err := sh.run(context.Background(), in); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "updated row 1") || !strings.Contains(got, "added row 2") || !strings.Contains(got, "upload now? [y/N]") {
		t.Fatalf("unexpected output:\n%s", got)
	}
	if strings.Contains(got, "not uploaded") {
		t.Fatalf("confirmed changes reported as pending:\n%s", got)
	}

	rec, _ := sh.store.Row(1)
	if rec.Title != "Fall Promo Final" || rec.ActivityType != table.ActivityTypeAB {
		t.Fatalf("edit not applied: %+v", rec)
	}
	added, _ := sh.store.Row(2)
	if added.Title != "Winter Promo" || !added.Live || added.GeoTarget || added.EndDate.Valid {
		t.Fatalf("add defaults not applied: %+v", added)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.tables) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(sub.tables))
	}
	if sub.tables[0].Len() != 2 || sub.tables[1].Len() != 3 {
		t.Fatalf("uploads did not snapshot each commit: %d, %d rows", sub.tables[0].Len(), sub.tables[1].Len())
	}
}

func TestShellDeclinedCommitStaysLocal(t *testing.T) {
	sh, out, sub := newTestShell(sampleRows()...)

	in := strings.NewReader("add Draft only\n\nset 0 title Local edit\nn\nquit\n")
	if err := sh.run(context.Background(), in); err != nil {
		t.Fatalf("run: %v", err)
	}

	sub.mu.Lock()
	submitted := len(sub.tables)
	sub.mu.Unlock()
	if submitted != 0 {
		t.Fatalf("declined commits were uploaded: %d", submitted)
	}
	if sh.store.Len() != 3 {
		t.Fatalf("local add lost: %d rows", sh.store.Len())
	}
	rec, _ := sh.store.Row(0)
	if rec.Title != "Local edit" {
		t.Fatalf("local edit lost: %+v", rec)
	}
	got := out.String()
	if !strings.Contains(got, "change kept locally") || !strings.Contains(got, "warning: local changes were not uploaded") {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestShellExplicitUploadAndAutoUpload(t *testing.T) {
	sh, out, sub := newTestShell(sampleRows()...)
	ctx := context.Background()

	// Without a reader attached the commit is not confirmed.
	if err := sh.exec(ctx, "add Local"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !sh.pending {
		t.Fatalf("expected a pending change")
	}
	if err := sh.exec(ctx, "upload"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if sh.pending {
		t.Fatalf("upload did not clear the pending change")
	}

	if err := sh.exec(ctx, "autoupload on"); err != nil {
		t.Fatalf("autoupload: %v", err)
	}
	if err := sh.exec(ctx, "set 0 live False"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := sh.exec(ctx, "autoupload maybe"); err == nil {
		t.Fatalf("expected usage error")
	}
	if !strings.Contains(out.String(), "autoupload on") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.tables) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(sub.tables))
	}
	if sub.tables[0].Len() != 3 {
		t.Fatalf("explicit upload sent %d rows", sub.tables[0].Len())
	}
	rec, _ := sub.tables[1].Row(0)
	if rec.Live {
		t.Fatalf("auto upload sent a stale table: %+v", rec)
	}
}

func TestShellRejectsBadInput(t *testing.T) {
	sh, _, sub := newTestShell(sampleRows()...)
	ctx := context.Background()

	for _, line := range []string{
		"set 9 title x",
		"set 0 colour red",
		"set 0 end_date someday",
		"show x",
		"add",
		"frobnicate",
	} {
		if err := sh.exec(ctx, line); err == nil {
			t.Errorf("%q: expected error", line)
		}
	}
	if len(sub.tables) != 0 {
		t.Fatalf("rejected edits were uploaded")
	}
	rec, _ := sh.store.Row(0)
	if rec.EndDate.Valid {
		t.Fatalf("invalid end date was committed")
	}
}

func TestShellRun(t *testing.T) {
	sh, out, _ := newTestShell(sampleRows()...)
	refreshed := false
	sh.refresh = func(ctx context.Context) error {
		refreshed = true
		return nil
	}
	sh.update = func(ctx context.Context, apply bool) (selfupdate.CheckResult, error) {
		if apply {
			return selfupdate.CheckResult{}, errors.New("apply not expected")
		}
		return selfupdate.CheckResult{UpdateAvailable: true, LatestVersion: "9.9.9"}, nil
	}

	in := strings.NewReader("help\nrefresh\nupdate\nbogus\nquit\nlist\n")
	if err := sh.run(context.Background(), in); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !refreshed {
		t.Fatalf("refresh not called")
	}
	got := out.String()
	for _, want := range []string{"Commands:", "2 rows loaded", "9.9.9 is available", `error: unknown command "bogus"`} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Spring Promo") {
		t.Errorf("commands after quit were executed")
	}
}
