// Package screenshot stores probe screenshots on the local filesystem.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const nameLayout = "20060102_150405"

// Config captures the parameters for the screenshot directory.
type Config struct {
	// Dir is the directory screenshots are written to and served from.
	Dir string `mapstructure:"screenshot_dir"`
}

// Store writes screenshots to a flat directory.
type Store struct {
	dir    string
	suffix func() string
}

// New validates the directory, creating it when missing.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("screenshot directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create screenshot directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat screenshot directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("screenshot path %q is not a directory", cfg.Dir)
	}

	probe := filepath.Join(cfg.Dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("screenshot directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up writable probe: %w", err)
	}

	return &Store{
		dir:    cfg.Dir,
		suffix: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:8] },
	}, nil
}

// Dir returns the directory screenshots live in.
func (s *Store) Dir() string {
	return s.dir
}

// Filename builds the stored name for a screenshot of siteID taken at takenAt.
func Filename(siteID int64, takenAt time.Time, suffix string) string {
	name := fmt.Sprintf("site_%d_%s", siteID, takenAt.UTC().Format(nameLayout))
	if suffix != "" {
		name += "_" + suffix
	}
	return name + ".png"
}

// Save writes data and returns the bare filename.
func (s *Store) Save(ctx context.Context, siteID int64, takenAt time.Time, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("screenshot is empty")
	}
	name := Filename(siteID, takenAt, s.suffix())
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o600); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return name, nil
}

// Path resolves a stored filename inside the directory. Names that would
// escape the directory are rejected.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid screenshot name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// RemoveOlderThan deletes regular files whose modification time is before
// cutoff. Directories and other non-regular entries are skipped. Failures on
// individual files are collected and do not stop the sweep.
func (s *Store) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read screenshot directory: %w", err)
	}

	var (
		removed int
		errs    []error
	)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("stat %s: %w", entry.Name(), err))
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("remove %s: %w", entry.Name(), err))
			}
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
