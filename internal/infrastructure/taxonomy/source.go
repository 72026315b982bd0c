package taxonomy

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
)

// FileSourceConfig configures a FileSource.
type FileSourceConfig struct {
	// Patterns are file globs, e.g. "taxonomy/*.yaml".
	Patterns []string

	Logger *slog.Logger
}

// FileSource loads catalogs from YAML files on disk.
type FileSource struct {
	patterns []string
	logger   *slog.Logger
}

// NewFileSource creates a FileSource.
func NewFileSource(cfg FileSourceConfig) *FileSource {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		patterns: append([]string(nil), cfg.Patterns...),
		logger:   logger,
	}
}

// Load implements skilltree.Source.
func (s *FileSource) Load(ctx context.Context) (skilltree.Catalog, error) {
	files, err := Expand(s.patterns...)
	if err != nil {
		return skilltree.Catalog{}, err
	}
	if err := ctx.Err(); err != nil {
		return skilltree.Catalog{}, err
	}
	catalog, err := LoadFiles(files...)
	if err != nil {
		return skilltree.Catalog{}, err
	}
	s.logger.Debug("taxonomy files read",
		"files", len(files),
		"trees", len(catalog.Trees),
		"digest", catalog.Digest,
	)
	return catalog, nil
}

// Expand resolves globs into a sorted, de-duplicated file list.
func Expand(patterns ...string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("taxonomy: bad pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoFiles, patterns)
	}
	sort.Strings(files)
	return files, nil
}

// LoadFiles parses every file into one catalog. The digest covers base file
// names and contents in the given order.
func LoadFiles(paths ...string) (skilltree.Catalog, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return skilltree.Catalog{}, err
	}

	var catalog skilltree.Catalog
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return skilltree.Catalog{}, fmt.Errorf("taxonomy: %w", err)
		}
		defs, err := Parse(filepath.Base(p), data)
		if err != nil {
			return skilltree.Catalog{}, err
		}
		catalog.Trees = append(catalog.Trees, defs...)

		h.Write([]byte(filepath.Base(p)))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	catalog.Digest = hex.EncodeToString(h.Sum(nil))
	return catalog, nil
}

// Digest returns the blake2b-256 digest of raw bytes, hex encoded.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
