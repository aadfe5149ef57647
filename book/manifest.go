package book

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"bookmill/common"
)

// Manifest is the on-disk description of a project directory.
type Manifest struct {
	Book     Meta       `yaml:"book"`
	Chapters []Fragment `yaml:"chapters"`
}

// chapter source files may be dropped into the project directory without a
// manifest entry: "03-some-title.tex"
var chapterFileRx = regexp.MustCompile(`^(\d{1,3})[-_](.+)\.tex$`)

// LoadProject reads a project directory: a chapters.yaml manifest when
// present, otherwise chapter files discovered by naming convention. Chapter
// content always comes from the files, the manifest only orders and annotates
// them.
func LoadProject(dir string) (*Manifest, error) {
	m := &Manifest{}

	data, err := os.ReadFile(filepath.Join(dir, "chapters.yaml"))
	switch {
	case err == nil:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(m); err != nil {
			return nil, fmt.Errorf("unable to parse project manifest: %w", err)
		}
	case os.IsNotExist(err):
		if err := discoverChapters(dir, m); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unable to read project manifest: %w", err)
	}

	if m.Book.ProjectID == "" {
		m.Book.ProjectID = filepath.Base(dir)
	}
	if m.Book.Title == "" {
		m.Book.Title = m.Book.ProjectID
	}

	seen := make(map[int]bool, len(m.Chapters))
	for i := range m.Chapters {
		f := &m.Chapters[i]
		if f.Chapter <= 0 {
			return nil, fmt.Errorf("chapter number must be positive, got %d", f.Chapter)
		}
		if seen[f.Chapter] {
			return nil, fmt.Errorf("duplicate chapter number %d", f.Chapter)
		}
		seen[f.Chapter] = true

		if f.SourceFile == "" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, f.SourceFile))
		if err != nil {
			f.Status = common.FragmentStatusError
			continue
		}
		f.Content = string(content)
		if f.Status == common.FragmentStatusPending {
			f.Status = common.FragmentStatusGenerated
		}
	}

	sort.Slice(m.Chapters, func(i, j int) bool { return m.Chapters[i].Chapter < m.Chapters[j].Chapter })
	return m, nil
}

func discoverChapters(dir string, m *Manifest) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("unable to read project directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := chapterFileRx.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		num, err := strconv.Atoi(match[1])
		if err != nil || num <= 0 {
			continue
		}
		m.Chapters = append(m.Chapters, Fragment{
			Chapter:    num,
			Title:      titleFromFileName(match[2]),
			Status:     common.FragmentStatusGenerated,
			SourceFile: e.Name(),
		})
	}
	return nil
}

func titleFromFileName(stem string) string {
	words := strings.FieldsFunc(stem, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
