// Package blobstore is the content-addressed-by-id blob port C12: put/get a
// single or batched file under a freshly generated id. Writes are
// full-file-overwrite and idempotent by id (spec.md §5).
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/littleblus/breezechat/pkg/idgen"
)

// Store writes and reads blobs under a shared filesystem root.
type Store struct {
	root string
}

// New returns a Store rooted at root, creating it if necessary.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: mkdir %q: %w", root, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) path(fileID string) string {
	return filepath.Join(s.root, fileID)
}

// PutSingleFile writes content under a freshly generated file id and
// returns it. size is accepted for the caller's bookkeeping (spec.md §4.12
// does not require the store to verify it against len(content)).
func (s *Store) PutSingleFile(name string, content []byte, size int64) (fileID string, err error) {
	fileID = idgen.New16Hex()
	if err := os.MkdirAll(filepath.Dir(s.path(fileID)), 0o755); err != nil {
		return "", fmt.Errorf("blobstore: mkdir parent for %q: %w", fileID, err)
	}
	if err := os.WriteFile(s.path(fileID), content, 0o644); err != nil {
		return "", fmt.Errorf("blobstore: write %q: %w", fileID, err)
	}
	return fileID, nil
}

// FileInput is one entry of a PutMultiFile request.
type FileInput struct {
	Name    string
	Content []byte
	Size    int64
}

// PutMultiFile writes each input sequentially. On any single failure, the
// partial list of ids already written is discarded and the call fails as a
// whole (spec.md §4.12) — the blobs already written on disk are orphaned
// but harmless, since ids are never reused.
func (s *Store) PutMultiFile(inputs []FileInput) ([]string, error) {
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		id, err := s.PutSingleFile(in.Name, in.Content, in.Size)
		if err != nil {
			return nil, fmt.Errorf("blobstore: batch put failed at %q: %w", in.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetSingleFile reads the blob for fileID.
func (s *Store) GetSingleFile(fileID string) ([]byte, error) {
	data, err := os.ReadFile(s.path(fileID))
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %q: %w", fileID, err)
	}
	return data, nil
}

// GetMultiFile reads every id in ids, read-through. Any single miss fails
// the whole call (spec.md §4.12).
func (s *Store) GetMultiFile(ids []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(ids))
	for _, id := range ids {
		data, err := s.GetSingleFile(id)
		if err != nil {
			return nil, err
		}
		out[id] = data
	}
	return out, nil
}
