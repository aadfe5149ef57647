// Package vstore records every successful compilation as an immutable,
// numbered book version and owns the placement of artifact bytes in blob
// storage. Version rows are never updated once written; a project's "latest"
// pointer is the only mutable piece of state.
package vstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"bookmill/common"
)

// BookVersion is one immutable build record.
type BookVersion struct {
	ProjectID    string
	Version      int
	PDFKey       string
	PDFLatestKey string
	EpubKey      string // empty until companion generation succeeds
	SourceKey    string
	Bytes        int64
	Pages        *int
	Note         string
	CreatedAt    time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS versions (
	project_id     TEXT    NOT NULL,
	version        INTEGER NOT NULL,
	pdf_key        TEXT    NOT NULL,
	pdf_latest_key TEXT    NOT NULL,
	epub_key       TEXT,
	source_key     TEXT    NOT NULL,
	bytes          INTEGER NOT NULL,
	pages          INTEGER,
	note           TEXT    NOT NULL,
	created_at     INTEGER NOT NULL,
	PRIMARY KEY (project_id, version)
);
CREATE TABLE IF NOT EXISTS projects (
	project_id  TEXT PRIMARY KEY,
	current_key TEXT NOT NULL
);
`

// Store couples the version ledger with a blob backend.
type Store struct {
	mu    sync.Mutex
	conn  *sqlite.Conn
	blobs Backend
	log   *zap.Logger
}

// Open creates or opens the ledger database. Path may be ":memory:" in
// tests.
func Open(path string, blobs Backend, log *zap.Logger) (*Store, error) {
	flags := sqlite.OpenReadWrite | sqlite.OpenCreate
	if path == ":memory:" {
		flags = sqlite.OpenReadWrite | sqlite.OpenMemory
	}
	conn, err := sqlite.OpenConn(path, flags)
	if err != nil {
		return nil, fmt.Errorf("unable to open version ledger: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return nil, multierr.Append(
			fmt.Errorf("unable to prepare version ledger schema: %w", err),
			conn.Close())
	}
	return &Store{conn: conn, blobs: blobs, log: log.Named("vstore")}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Backend exposes the blob backend for delivery-path consumers.
func (s *Store) Backend() Backend {
	return s.blobs
}

// PublishInput carries everything needed to record one successful build.
type PublishInput struct {
	ProjectID string
	Title     string // used for stable, human-readable keys
	PDF       io.Reader
	Source    io.Reader
	Pages     *int
	Note      string // optional, auto-generated when empty
}

// Publish computes the next version number, places the primary and source
// blobs, writes the primary bytes again at the stable "latest" key for
// backward-compatible direct links, and records the version row. The
// companion format is attached later and independently.
func (s *Store) Publish(ctx context.Context, in PublishInput) (*BookVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.nextVersion(in.ProjectID)
	if err != nil {
		return nil, err
	}

	name := slug.Make(in.Title)
	if name == "" {
		name = "book"
	}
	v := &BookVersion{
		ProjectID:    in.ProjectID,
		Version:      next,
		PDFKey:       versionKey(in.ProjectID, next, name, common.OutputFmtPDF),
		PDFLatestKey: latestKey(in.ProjectID, name),
		SourceKey:    versionKey(in.ProjectID, next, name, common.OutputFmtSource),
		Pages:        in.Pages,
		Note:         in.Note,
		CreatedAt:    time.Now().UTC(),
	}
	if v.Note == "" {
		if next == 1 {
			v.Note = "Initial generation"
		} else {
			v.Note = "Recompiled after editing"
		}
	}

	// primary bytes land both at the versioned key and at the overwritten
	// "latest" key
	primary, err := io.ReadAll(in.PDF)
	if err != nil {
		return nil, fmt.Errorf("unable to read primary artifact: %w", err)
	}
	if _, err := s.blobs.Put(ctx, v.PDFKey, bytes.NewReader(primary)); err != nil {
		return nil, fmt.Errorf("unable to store primary artifact: %w", err)
	}
	v.Bytes = int64(len(primary))
	if _, err := s.blobs.Put(ctx, v.PDFLatestKey, bytes.NewReader(primary)); err != nil {
		return nil, fmt.Errorf("unable to store latest artifact: %w", err)
	}
	if _, err := s.blobs.Put(ctx, v.SourceKey, in.Source); err != nil {
		return nil, fmt.Errorf("unable to store source document: %w", err)
	}

	if err := s.insert(v); err != nil {
		return nil, err
	}
	s.log.Info("Version recorded",
		zap.String("project", v.ProjectID), zap.Int("version", v.Version),
		zap.Int64("bytes", v.Bytes), zap.String("note", v.Note))
	return v, nil
}

// AttachCompanion stores the e-reader artifact and records its location on
// the version row. The key is set exactly once - a second attach for the
// same version is rejected.
func (s *Store) AttachCompanion(ctx context.Context, projectID string, version int, title string, epub io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := slug.Make(title)
	if name == "" {
		name = "book"
	}
	key := versionKey(projectID, version, name, common.OutputFmtEpub)
	if _, err := s.blobs.Put(ctx, key, epub); err != nil {
		return "", fmt.Errorf("unable to store companion artifact: %w", err)
	}

	err := sqlitex.Execute(s.conn,
		`UPDATE versions SET epub_key = ? WHERE project_id = ? AND version = ? AND epub_key IS NULL`,
		&sqlitex.ExecOptions{Args: []any{key, projectID, version}})
	if err != nil {
		return "", fmt.Errorf("unable to record companion location: %w", err)
	}
	if s.conn.Changes() == 0 {
		return "", fmt.Errorf("version %d of project %s does not exist or already has a companion", version, projectID)
	}
	return key, nil
}

// Latest returns the most recent version row, or nil when the project has no
// builds yet.
func (s *Store) Latest(ctx context.Context, projectID string) (*BookVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *BookVersion
	err := sqlitex.Execute(s.conn,
		`SELECT project_id, version, pdf_key, pdf_latest_key, epub_key, source_key, bytes, pages, note, created_at
		 FROM versions WHERE project_id = ? ORDER BY version DESC LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{projectID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = scanVersion(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("unable to query latest version: %w", err)
	}
	return found, nil
}

// Versions lists all recorded versions of a project, oldest first.
func (s *Store) Versions(ctx context.Context, projectID string) ([]BookVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []BookVersion
	err := sqlitex.Execute(s.conn,
		`SELECT project_id, version, pdf_key, pdf_latest_key, epub_key, source_key, bytes, pages, note, created_at
		 FROM versions WHERE project_id = ? ORDER BY version ASC`,
		&sqlitex.ExecOptions{
			Args: []any{projectID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, *scanVersion(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("unable to list versions: %w", err)
	}
	return out, nil
}

// CurrentKey returns the project's mutable "current" pointer.
func (s *Store) CurrentKey(ctx context.Context, projectID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key string
	err := sqlitex.Execute(s.conn,
		`SELECT current_key FROM projects WHERE project_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{projectID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				key = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("unable to query current pointer: %w", err)
	}
	return key, nil
}

func (s *Store) nextVersion(projectID string) (int, error) {
	next := 1
	err := sqlitex.Execute(s.conn,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM versions WHERE project_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{projectID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				next = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("unable to compute next version: %w", err)
	}
	return next, nil
}

func (s *Store) insert(v *BookVersion) (err error) {
	defer sqlitex.Transaction(s.conn)(&err)

	var pages any
	if v.Pages != nil {
		pages = *v.Pages
	}
	if err := sqlitex.Execute(s.conn,
		`INSERT INTO versions (project_id, version, pdf_key, pdf_latest_key, epub_key, source_key, bytes, pages, note, created_at)
		 VALUES (?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			v.ProjectID, v.Version, v.PDFKey, v.PDFLatestKey, v.SourceKey,
			v.Bytes, pages, v.Note, v.CreatedAt.Unix(),
		}}); err != nil {
		return fmt.Errorf("unable to record version: %w", err)
	}
	// the mutable "current" pointer always references the latest primary
	// artifact at its stable key
	if err := sqlitex.Execute(s.conn,
		`INSERT INTO projects (project_id, current_key) VALUES (?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET current_key = excluded.current_key`,
		&sqlitex.ExecOptions{Args: []any{v.ProjectID, v.PDFLatestKey}}); err != nil {
		return fmt.Errorf("unable to update current pointer: %w", err)
	}
	return nil
}

func scanVersion(stmt *sqlite.Stmt) *BookVersion {
	v := &BookVersion{
		ProjectID:    stmt.ColumnText(0),
		Version:      stmt.ColumnInt(1),
		PDFKey:       stmt.ColumnText(2),
		PDFLatestKey: stmt.ColumnText(3),
		EpubKey:      stmt.ColumnText(4),
		SourceKey:    stmt.ColumnText(5),
		Bytes:        stmt.ColumnInt64(6),
		Note:         stmt.ColumnText(8),
		CreatedAt:    time.Unix(stmt.ColumnInt64(9), 0).UTC(),
	}
	if stmt.ColumnType(7) != sqlite.TypeNull {
		p := stmt.ColumnInt(7)
		v.Pages = &p
	}
	return v
}

func versionKey(projectID string, version int, name string, format common.OutputFmt) string {
	return fmt.Sprintf("projects/%s/v%03d/%s%s", projectID, version, name, format.Ext())
}

func latestKey(projectID, name string) string {
	return fmt.Sprintf("projects/%s/latest/%s%s", projectID, name, common.OutputFmtPDF.Ext())
}
