package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/knakk/rdf"

	"github.com/c360studio/ontowatch/export"
)

// Store is the persisted form of the latest snapshot: three co-located
// serializations of the same graph, always rewritten together.
type Store struct {
	// Root is the working copy root. Paths returned by Paths are relative
	// to it.
	Root string

	// Dir is the snapshot directory inside Root.
	Dir string

	// BaseName is the file name shared by all serializations.
	BaseName string

	OntologyIRI  string
	PredicateIRI string

	Logger *slog.Logger
}

// Paths returns the relative path of every stored serialization in
// export.StoredFormats order.
func (s *Store) Paths() []string {
	paths := make([]string, 0, len(export.StoredFormats))
	for _, f := range export.StoredFormats {
		paths = append(paths, s.Path(f))
	}
	return paths
}

// Path returns the relative path of one serialization.
func (s *Store) Path(format export.Format) string {
	info, _ := export.GetFormatInfo(format)
	return filepath.Join(s.Dir, s.BaseName+info.Extension)
}

// Load captures the stored snapshot from its N-Triples file. A missing file
// yields an empty snapshot.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.Root, s.Path(export.FormatNTriples))
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger().Info("No stored snapshot", "path", path)
		return Empty(time.Time{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrSourceUnavailable, path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSourceUnavailable, path, err)
	}
	return FromNTriples(data, info.ModTime(), s.OntologyIRI, s.PredicateIRI), nil
}

// Write serializes the graph in every stored format and replaces the files.
// All serializations are rendered before any file is touched; each file is
// replaced by rename.
func (s *Store) Write(ctx context.Context, triples []rdf.Triple) error {
	rendered := make(map[string][]byte, len(export.StoredFormats))
	for _, f := range export.StoredFormats {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := export.SerializeToBytes(triples, f)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", f, err)
		}
		rendered[s.Path(f)] = data
	}

	dir := filepath.Join(s.Root, s.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	for _, rel := range s.Paths() {
		if err := writeFileAtomic(filepath.Join(s.Root, rel), rendered[rel]); err != nil {
			return err
		}
		s.logger().Debug("Wrote snapshot file", "path", rel, "bytes", len(rendered[rel]))
	}
	return nil
}

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
