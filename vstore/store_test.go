package vstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) (*Store, *LocalBackend) {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"), backend, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store, backend
}

func publish(t *testing.T, s *Store, project, pdf string, pages *int) *BookVersion {
	t.Helper()
	v, err := s.Publish(context.Background(), PublishInput{
		ProjectID: project,
		Title:     "My Book",
		PDF:       strings.NewReader(pdf),
		Source:    strings.NewReader("\\documentclass{book}"),
		Pages:     pages,
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	return v
}

func readBlob(t *testing.T, b *LocalBackend, key string) string {
	t.Helper()
	rc, err := b.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	return string(data)
}

func TestPublish_VersionNumbering(t *testing.T) {
	store, backend := newTestStore(t)

	v1 := publish(t, store, "prj-1", "pdf-one", nil)
	if v1.Version != 1 {
		t.Errorf("first version = %d, want 1", v1.Version)
	}
	if v1.Note != "Initial generation" {
		t.Errorf("first note = %q", v1.Note)
	}

	v2 := publish(t, store, "prj-1", "pdf-two", nil)
	if v2.Version != 2 {
		t.Errorf("second version = %d, want 2", v2.Version)
	}
	if v2.Note != "Recompiled after editing" {
		t.Errorf("second note = %q", v2.Note)
	}

	// both version records persist independently
	all, err := store.Versions(context.Background(), "prj-1")
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("recorded versions = %d, want 2", len(all))
	}
	if readBlob(t, backend, all[0].PDFKey) != "pdf-one" {
		t.Error("version 1 bytes were disturbed by the second build")
	}
	if readBlob(t, backend, all[1].PDFKey) != "pdf-two" {
		t.Error("version 2 bytes are wrong")
	}

	// the latest pointer reflects version 2 only
	if readBlob(t, backend, v2.PDFLatestKey) != "pdf-two" {
		t.Error("latest key does not hold the newest build")
	}
	current, err := store.CurrentKey(context.Background(), "prj-1")
	if err != nil {
		t.Fatalf("CurrentKey() error = %v", err)
	}
	if current != v2.PDFLatestKey {
		t.Errorf("current pointer = %q, want %q", current, v2.PDFLatestKey)
	}
}

func TestPublish_IndependentProjects(t *testing.T) {
	store, _ := newTestStore(t)
	a := publish(t, store, "prj-a", "a", nil)
	b := publish(t, store, "prj-b", "b", nil)
	if a.Version != 1 || b.Version != 1 {
		t.Errorf("projects do not version independently: %d, %d", a.Version, b.Version)
	}
}

func TestPublish_Pages(t *testing.T) {
	store, _ := newTestStore(t)
	pages := 128
	v := publish(t, store, "prj-1", "pdf", &pages)

	got, err := store.Latest(context.Background(), "prj-1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.Pages == nil || *got.Pages != 128 {
		t.Errorf("pages = %v, want 128", got.Pages)
	}
	if got.Version != v.Version {
		t.Errorf("latest version = %d, want %d", got.Version, v.Version)
	}

	// absent page count stays absent, never zero
	v2 := publish(t, store, "prj-1", "pdf2", nil)
	got, err = store.Latest(context.Background(), "prj-1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.Version != v2.Version || got.Pages != nil {
		t.Errorf("latest = v%d pages %v, want v%d pages nil", got.Version, got.Pages, v2.Version)
	}
}

func TestLatest_NoBuilds(t *testing.T) {
	store, _ := newTestStore(t)
	got, err := store.Latest(context.Background(), "never-built")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got != nil {
		t.Errorf("Latest() = %+v, want nil", got)
	}
}

func TestAttachCompanion(t *testing.T) {
	store, backend := newTestStore(t)
	v := publish(t, store, "prj-1", "pdf", nil)

	key, err := store.AttachCompanion(context.Background(), "prj-1", v.Version, "My Book", strings.NewReader("epub-bytes"))
	if err != nil {
		t.Fatalf("AttachCompanion() error = %v", err)
	}
	if readBlob(t, backend, key) != "epub-bytes" {
		t.Error("companion bytes are wrong")
	}

	got, err := store.Latest(context.Background(), "prj-1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.EpubKey != key {
		t.Errorf("epub key = %q, want %q", got.EpubKey, key)
	}

	// record-once: a second attach for the same version must fail
	if _, err := store.AttachCompanion(context.Background(), "prj-1", v.Version, "My Book", strings.NewReader("other")); err == nil {
		t.Error("second attach unexpectedly succeeded")
	}
	// and the primary record is untouched by the failure
	got, _ = store.Latest(context.Background(), "prj-1")
	if got.EpubKey != key || got.Version != v.Version {
		t.Error("failed attach disturbed the version record")
	}
}

func TestAttachCompanion_UnknownVersion(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.AttachCompanion(context.Background(), "prj-1", 7, "My Book", strings.NewReader("x")); err == nil {
		t.Error("attach to unknown version unexpectedly succeeded")
	}
}

func TestLocalBackend_AtomicOverwrite(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	ctx := context.Background()
	if _, err := backend.Put(ctx, "a/b/latest.pdf", strings.NewReader("one")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := backend.Put(ctx, "a/b/latest.pdf", strings.NewReader("two")); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	if got := readBlob(t, backend, "a/b/latest.pdf"); got != "two" {
		t.Errorf("blob = %q, want overwrite to win", got)
	}
	// no temp droppings
	entries, err := os.ReadDir(filepath.Join(backend.Root, "a", "b"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("unexpected leftover files: %v", entries)
	}
}

func TestLocalBackend_URLAndDelete(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	ctx := context.Background()
	if _, err := backend.Put(ctx, "k/file.pdf", strings.NewReader("x")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	url, err := backend.URL(ctx, "k/file.pdf", 0)
	if err != nil {
		t.Fatalf("URL() error = %v", err)
	}
	if _, err := os.Stat(url); err != nil {
		t.Errorf("local URL is not a readable path: %v", err)
	}
	if err := backend.Delete(ctx, "k/file.pdf"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := backend.Delete(ctx, "k/file.pdf"); err != nil {
		t.Errorf("Delete() of missing key must not fail: %v", err)
	}
}
