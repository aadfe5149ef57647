package config

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/multierr"

	"bookmill/misc"
)

type ReporterConfig struct {
	Destination string `yaml:"destination" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
}

// Prepare creates an initialized empty reporter.
func (conf *ReporterConfig) Prepare() (*Report, error) {

	r := &Report{entries: make(map[string]entry)}

	if f, err := os.Create(conf.Destination); err == nil {
		r.file = f
	} else if f, err = os.CreateTemp("", misc.GetAppName()+"-report.*.zip"); err == nil {
		r.file = f
	} else {
		return nil, fmt.Errorf("unable to create report: %w", err)
	}
	return r, nil
}

type entry struct {
	original string
	actual   string
	stamp    time.Time
	data     []byte
}

// Report collects troubleshooting artifacts during a run: processed
// configuration, logs, assembled sources, compiler output, build work
// directories. Everything lands in a single zip on Close.
// NOTE: not safe for concurrent use.
type Report struct {
	// entries maps archive names to files or directories collected so far
	entries map[string]entry
	file    *os.File
}

// Close writes the archive and removes collected directories, they are
// temporary captures with no value once archived.
func (r *Report) Close() error {
	if r == nil {
		// no report has been requested, nothing to do
		return nil
	}
	if r.file == nil {
		return nil
	}
	defer r.file.Close()
	if err := r.finalize(); err != nil {
		return err
	}
	return r.cleanup()
}

// Name returns name of the underlying archive file.
func (r *Report) Name() string {
	if r == nil || r.file == nil {
		return ""
	}
	if n, err := filepath.Abs(r.file.Name()); err == nil {
		return n
	}
	return r.file.Name()
}

// Store records a path to a file or directory to be archived on Close.
func (r *Report) Store(name, path string) {
	if r == nil {
		// no report has been requested, nothing to do
		return
	}

	if old, exists := r.entries[name]; exists && old.original != path {
		// a name must always refer to the same source
		panic(fmt.Sprintf("attempt to overwrite report entry [%s]: was %s, now %s", name, old.original, path))
	}

	e := entry{
		original: path,
		actual:   path,
	}
	if p, err := filepath.Abs(path); err == nil {
		e.actual = p
	}
	r.entries[name] = e
}

// StoreData records binary data to be archived on Close as a file under the
// requested name.
func (r *Report) StoreData(name string, data []byte) {
	if r == nil {
		// no report has been requested, nothing to do
		return
	}

	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("attempt to overwrite report data entry [%s]", name))
	}

	e := entry{
		data:  data,
		stamp: time.Now(),
	}
	r.entries[name] = e
}

// StoreCopy snapshots the file or directory at the time of the call into a
// temporary location. Repeated names are versioned with timestamps, so the
// same artifact may be captured once per attempt.
func (r *Report) StoreCopy(name, path string) error {
	if r == nil {
		// no report has been requested, nothing to do
		return nil
	}

	var err error

	e := entry{
		stamp:    time.Now(),
		original: path,
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	e.actual = absPath

	if _, exists := r.entries[name]; exists {
		// version the name to avoid collisions
		name = fmt.Sprintf("%s-%d", name, e.stamp.UnixNano())
	}

	dir, err := os.MkdirTemp("", misc.GetAppName()+"-r-")
	if err != nil {
		return err
	}

	if info, err := os.Stat(e.actual); err == nil {
		switch {
		case info.Mode().IsRegular():
			where, err := copyFile(dir, e.actual, info.ModTime())
			if err != nil {
				return err
			}
			e.actual = where
		case info.Mode().IsDir():
			if err := copyDir(dir, e.actual); err != nil {
				return err
			}
			e.actual = dir
		}
	} else {
		return err
	}

	r.entries[name] = e
	return nil
}

func copyFile(dir, src string, modTime time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}

	dst := filepath.Join(dir, filepath.Base(src))

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", err
	}
	if err = out.Sync(); err != nil {
		return "", err
	}
	out.Close()

	if err := os.Chtimes(dst, modTime, modTime); err != nil {
		return "", err
	}
	return dst, nil
}

func copyDir(dir, src string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			// ignore links, sockets, etc.
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		newpath := filepath.Join(dir, rel)

		if _, err := copyFile(filepath.Dir(newpath), path, info.ModTime()); err != nil {
			return err
		}
		return nil
	})
}

// finalize writes the archive with all collected entries, manifest first.
func (r *Report) finalize() error {

	arc := zip.NewWriter(r.file)
	defer arc.Close()

	t := time.Now()

	names, manifest := prepareManifest(r.entries)
	if err := archiveFile(arc, "MANIFEST", t, manifest); err != nil {
		return err
	}

	// in manifest order
	for _, name := range names {
		if len(r.entries[name].data) > 0 {
			if err := archiveFile(arc, name, r.entries[name].stamp, bytes.NewReader(r.entries[name].data)); err != nil {
				return err
			}
			continue
		}

		path := r.entries[name].actual
		// absent files are skipped, a failed stage may not have produced its artifact
		if info, err := os.Stat(path); err == nil {
			switch {
			case info.Mode().IsRegular():
				var src io.ReadCloser
				if src, err = os.Open(path); err != nil {
					return err
				}
				if err := archiveFile(arc, name, info.ModTime(), src); err != nil {
					src.Close()
					return err
				}
				src.Close()
			case info.Mode().IsDir():
				if err := archiveDir(arc, name, path); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// cleanup removes archived directory entries: captured work directories and
// StoreCopy staging. Plain file entries are left where they are.
func (r *Report) cleanup() (err error) {
	for _, e := range r.entries {
		if len(e.data) > 0 {
			continue
		}
		if info, er := os.Stat(e.actual); er == nil && info.Mode().IsDir() {
			if er := os.RemoveAll(e.actual); er != nil {
				err = multierr.Append(err, fmt.Errorf("unable to remove archived directory %s: %w", e.actual, er))
			}
		}
	}
	return
}

func prepareManifest(entries map[string]entry) ([]string, *bytes.Buffer) {

	now := time.Now()

	buf := new(bytes.Buffer)
	if len(entries) == 0 {
		return nil, buf
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		e := entries[k]
		if e.stamp.IsZero() {
			e.stamp = now
		}
		buf.WriteString(fmt.Sprintf("%s\t%s\t%s : %s\n", e.stamp.UTC().Format(time.UnixDate), k, e.original, e.actual))
	}
	return keys, buf
}

func archiveFile(dst *zip.Writer, name string, t time.Time, src io.Reader) error {
	w, err := dst.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: t})
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return nil
}

func archiveDir(dst *zip.Writer, name, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			// ignore links, sockets, etc.
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(filepath.Join(name, rel))

		var src io.ReadCloser
		if src, err = os.Open(path); err != nil {
			return err
		}
		defer src.Close()

		if err = archiveFile(dst, rel, info.ModTime(), src); err != nil {
			return err
		}
		return nil
	})
}
