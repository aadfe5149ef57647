package config

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func newTestReport(t *testing.T) (*Report, string) {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "report.zip")
	f, err := os.Create(dest)
	if err != nil {
		t.Fatalf("failed to create report file: %v", err)
	}
	return &Report{entries: make(map[string]entry), file: f}, dest
}

func archiveNames(t *testing.T, dest string) map[string]bool {
	t.Helper()
	zr, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("failed to open report archive: %v", err)
	}
	defer zr.Close()
	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	return names
}

func TestReportClose_ArchivesEntries(t *testing.T) {
	r, dest := newTestReport(t)

	src := filepath.Join(t.TempDir(), "book.tex")
	if err := os.WriteFile(src, []byte(`\chapter{One}`), 0644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}

	r.Store("assembled.tex", src)
	r.StoreData("config/config.yaml", []byte("version: 1\n"))

	if err := r.Close(); err != nil {
		t.Fatalf("Report.Close() error: %v", err)
	}

	names := archiveNames(t, dest)
	for _, want := range []string{"MANIFEST", "assembled.tex", "config/config.yaml"} {
		if !names[want] {
			t.Errorf("archive is missing entry %q, has %v", want, names)
		}
	}
}

func TestReportClose_RemovesArchivedDirs(t *testing.T) {
	r, _ := newTestReport(t)

	// captured build work directories must not outlive the report
	workDir1, err := os.MkdirTemp("", "bookmill-test-work1-")
	if err != nil {
		t.Fatalf("failed to create work dir: %v", err)
	}
	workDir2, err := os.MkdirTemp("", "bookmill-test-work2-")
	if err != nil {
		t.Fatalf("failed to create work dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workDir1, "book.log"), []byte("! Undefined control sequence."), 0644); err != nil {
		t.Fatalf("failed to write log file: %v", err)
	}

	// a plain file entry must be left where it is
	kept := filepath.Join(t.TempDir(), "book.pdf")
	if err := os.WriteFile(kept, []byte("%PDF-1.5"), 0644); err != nil {
		t.Fatalf("failed to write artifact file: %v", err)
	}

	r.Store("workdir-1", workDir1)
	r.Store("workdir-2", workDir2)
	r.Store("result.pdf", kept)

	if err := r.Close(); err != nil {
		t.Fatalf("Report.Close() error: %v", err)
	}

	if _, err := os.Stat(workDir1); !os.IsNotExist(err) {
		os.RemoveAll(workDir1)
		t.Error("expected first work directory to be removed, but it still exists")
	}
	if _, err := os.Stat(workDir2); !os.IsNotExist(err) {
		os.RemoveAll(workDir2)
		t.Error("expected second work directory to be removed, but it still exists")
	}
	if _, err := os.Stat(kept); err != nil {
		t.Errorf("stored file should not be removed, but got error: %v", err)
	}
}

func TestReportStoreCopy_VersionsRepeatedNames(t *testing.T) {
	r, dest := newTestReport(t)

	src := filepath.Join(t.TempDir(), "book.log")
	if err := os.WriteFile(src, []byte("pass 1"), 0644); err != nil {
		t.Fatalf("failed to write log file: %v", err)
	}
	if err := r.StoreCopy("compile.log", src); err != nil {
		t.Fatalf("StoreCopy() error: %v", err)
	}

	if err := os.WriteFile(src, []byte("pass 2"), 0644); err != nil {
		t.Fatalf("failed to rewrite log file: %v", err)
	}
	if err := r.StoreCopy("compile.log", src); err != nil {
		t.Fatalf("second StoreCopy() error: %v", err)
	}

	if len(r.entries) != 2 {
		t.Fatalf("expected 2 versioned entries, got %d", len(r.entries))
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Report.Close() error: %v", err)
	}

	names := archiveNames(t, dest)
	if !names["compile.log"] {
		t.Errorf("archive is missing first capture, has %v", names)
	}
	if len(names) != 3 { // MANIFEST + two captures
		t.Errorf("expected 3 archive entries, got %v", names)
	}
}

func TestReportStore_SameNameSamePath(t *testing.T) {
	r, _ := newTestReport(t)
	defer r.Close()

	// repeating an identical registration is allowed
	r.Store("final.log", "/var/log/bookmill.log")
	r.Store("final.log", "/var/log/bookmill.log")
	if len(r.entries) != 1 {
		t.Errorf("expected a single entry, got %d", len(r.entries))
	}
}

func TestReportClose_NilReport(t *testing.T) {
	var r *Report
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil report should not error, got: %v", err)
	}
}

func TestReportClose_NilFile(t *testing.T) {
	r := &Report{entries: make(map[string]entry)}
	if err := r.Close(); err != nil {
		t.Errorf("Close with nil file should not error, got: %v", err)
	}
}
