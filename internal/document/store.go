// Package document stores recipe documents as one JSON file per recipe.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/recipebook/recipebook/internal/model"
)

// Store errors.
var (
	ErrNotFound   = errors.New("document not found")
	ErrCorrupt    = errors.New("document is corrupt")
	ErrInvalidRef = errors.New("invalid document reference")
)

// refPattern is <ownerUserId>-<uniqueSuffix>.
var refPattern = regexp.MustCompile(`^[0-9]+-[0-9a-z]+$`)

// NewRef returns a fresh document reference for the owner.
func NewRef(ownerID int64) string {
	return strconv.FormatInt(ownerID, 10) + "-" + strings.ToLower(ulid.Make().String())
}

// ValidRef reports whether ref has the <ownerUserId>-<uniqueSuffix> shape.
func ValidRef(ref string) bool {
	return refPattern.MatchString(ref)
}

// Suffix returns the unique part of a reference.
func Suffix(ref string) string {
	_, suffix, found := strings.Cut(ref, "-")
	if !found {
		return ref
	}
	return suffix
}

// FileStore keeps documents under a single directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create document directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(ref string) (string, error) {
	if !ValidRef(ref) {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.dir, ref), nil
}

// Write stores doc under ref, replacing any existing document.
// The file is written to a temp file, synced and renamed into place, so a
// failed write leaves the previous version intact.
func (s *FileStore) Write(ctx context.Context, ref string, doc *model.RecipeDocument) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	return run(ctx, func() error {
		return writeAtomic(ctx, path, data)
	})
}

// Read loads the document stored under ref.
func (s *FileStore) Read(ctx context.Context, ref string) (*model.RecipeDocument, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}

	var doc model.RecipeDocument
	err = run(ctx, func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return ErrNotFound
			}
			return fmt.Errorf("read document: %w", err)
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes the document. A missing document is not an error.
func (s *FileStore) Delete(ctx context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}

	return run(ctx, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete document: %w", err)
		}
		return nil
	})
}

// Ping checks that the directory is writable.
func (s *FileStore) Ping(ctx context.Context) error {
	return run(ctx, func() error {
		f, err := os.CreateTemp(s.dir, ".ping-*")
		if err != nil {
			return fmt.Errorf("document directory not writable: %w", err)
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	})
}

// writeAtomic gives up before the rename once ctx is done, so a write that
// was reported as failed never replaces the previous version.
func writeAtomic(ctx context.Context, path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// run executes fn in the caller's goroutine once ctx is known to be live.
// fn has returned by the time run does, so nothing it does can land after a
// failure has been reported. Long operations check ctx themselves.
func run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}
