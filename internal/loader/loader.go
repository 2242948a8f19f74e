// Package loader reads local files into documents for ingestion.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/spf13/afero"

	"webrag/internal/domain"
)

// ErrNoDocuments is returned when no supported file matched.
var ErrNoDocuments = errors.New("no .txt, .md or .pdf documents found")

// Supported reports whether path has an extension the loader can read.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".pdf":
		return true
	}
	return false
}

type Loader struct {
	fs afero.Fs
}

// New reads from fs. A nil fs means the OS filesystem.
func New(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs}
}

// Load expands each pattern (a file, a directory or a glob) and reads every
// supported file once. Unsupported files are skipped. The document origin is
// the file path.
func (l *Loader) Load(ctx context.Context, patterns []string) ([]domain.Document, error) {
	paths, err := l.expand(patterns)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := l.read(p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		docs = append(docs, domain.Document{Origin: p, Text: text})
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs, nil
}

func (l *Loader) expand(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if Supported(p) && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, pattern := range patterns {
		matches, err := afero.Glob(l.fs, pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if matches == nil {
			matches = []string{pattern}
		}
		for _, m := range matches {
			info, err := l.fs.Stat(m)
			if err != nil {
				return nil, err
			}
			if !info.IsDir() {
				add(m)
				continue
			}
			var files []string
			err = afero.Walk(l.fs, m, func(path string, fi os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !fi.IsDir() {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			sort.Strings(files)
			for _, f := range files {
				add(f)
			}
		}
	}
	return out, nil
}

func (l *Loader) read(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return l.readPDF(path)
	}
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *Loader) readPDF(path string) (string, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, text); err != nil {
		return "", err
	}
	return b.String(), nil
}
