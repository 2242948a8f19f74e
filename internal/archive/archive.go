// Package archive keeps the raw markdown of every scraped page on disk.
package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"

	"webrag/internal/domain"
)

// DefaultDir is where archives go when no directory is configured.
const DefaultDir = "scraped_data"

var (
	schemeRE = regexp.MustCompile(`^https?://`)
	unsafeRE = regexp.MustCompile(`[^\w\-.]`)
)

// Archive writes one markdown file per saved page.
type Archive struct {
	fs  afero.Fs
	dir string
}

// New archives into dir on fs. A nil fs means the OS filesystem.
func New(fs afero.Fs, dir string) *Archive {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dir == "" {
		dir = DefaultDir
	}
	return &Archive{fs: fs, dir: dir}
}

func (a *Archive) Dir() string { return a.dir }

// Filename turns a URL into "<sanitized>_<YYYYMMDD_HHMMSS>.md".
func Filename(origin string, at time.Time) string {
	name := schemeRE.ReplaceAllString(origin, "")
	name = unsafeRE.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "page"
	}
	return name + "_" + at.Format("20060102_150405") + ".md"
}

// Save writes markdown under a provenance header and returns the file path.
func (a *Archive) Save(ctx context.Context, origin, markdown string, at time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := a.fs.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(a.dir, Filename(origin, at))
	content := fmt.Sprintf("# Scraped from: %s\n# Scraped at: %s\n\n%s", origin, at.Format(time.RFC3339), markdown)
	if err := afero.WriteFile(a.fs, path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write archive %s: %w", path, err)
	}
	return path, nil
}

var _ domain.Archiver = (*Archive)(nil)
