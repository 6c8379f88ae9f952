// Package storage keeps file attachments staged on disk while the matching
// offline action waits in the queue. Files live under
// <base>/<collectionID>/<recordID>/<fieldID>/ and are released whenever the
// action is deleted, on every deletion path.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// StagedFile describes one file awaiting upload.
type StagedFile struct {
	Name string
	Path string
	Size int64
}

// StagingStore persists staged attachments under a base directory.
type StagingStore struct {
	baseDir string
}

// NewStagingStore ensures the base directory exists and returns a handle.
func NewStagingStore(baseDir string) (*StagingStore, error) {
	if baseDir == "" {
		baseDir = "./staging"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &StagingStore{baseDir: baseDir}, nil
}

// Store writes a file for the given collection/record/field triple. Storing
// replaces any previous file with the same name.
func (s *StagingStore) Store(collectionID int32, recordID int64, fieldID int32, name string, r io.Reader) (StagedFile, error) {
	dir := s.fieldDir(collectionID, recordID, fieldID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return StagedFile{}, fmt.Errorf("prepare staging directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	file, err := os.Create(path)
	if err != nil {
		return StagedFile{}, fmt.Errorf("create staged file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	size, err := io.Copy(file, r)
	if err != nil {
		return StagedFile{}, fmt.Errorf("write staged file: %w", err)
	}
	return StagedFile{Name: filepath.Base(name), Path: path, Size: size}, nil
}

// List returns the staged files for one field of one record. A missing
// directory is an empty list, not an error.
func (s *StagingStore) List(collectionID int32, recordID int64, fieldID int32) ([]StagedFile, error) {
	dir := s.fieldDir(collectionID, recordID, fieldID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list staged files: %w", err)
	}
	files := make([]StagedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat staged file: %w", err)
		}
		files = append(files, StagedFile{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// Open returns a read-only handle for a staged file.
func (s *StagingStore) Open(file StagedFile) (*os.File, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	return f, nil
}

// ReleaseField removes every staged file for one field of one record.
func (s *StagingStore) ReleaseField(collectionID int32, recordID int64, fieldID int32) error {
	if err := os.RemoveAll(s.fieldDir(collectionID, recordID, fieldID)); err != nil {
		return fmt.Errorf("release staged field: %w", err)
	}
	return nil
}

// ReleaseRecord removes every staged file for a record, across all fields.
func (s *StagingStore) ReleaseRecord(collectionID int32, recordID int64) error {
	if err := os.RemoveAll(s.recordDir(collectionID, recordID)); err != nil {
		return fmt.Errorf("release staged record: %w", err)
	}
	return nil
}

// RenameRecord re-homes staged files after the server assigns a real ID to
// an offline-created record.
func (s *StagingStore) RenameRecord(collectionID int32, oldRecordID, newRecordID int64) error {
	oldDir := s.recordDir(collectionID, oldRecordID)
	if _, err := os.Stat(oldDir); os.IsNotExist(err) {
		return nil
	}
	newDir := s.recordDir(collectionID, newRecordID)
	if err := os.MkdirAll(filepath.Dir(newDir), 0o755); err != nil {
		return fmt.Errorf("prepare staging directory: %w", err)
	}
	if err := os.Rename(oldDir, newDir); err != nil {
		return fmt.Errorf("rename staged record: %w", err)
	}
	return nil
}

func (s *StagingStore) recordDir(collectionID int32, recordID int64) string {
	return filepath.Join(s.baseDir,
		strconv.FormatInt(int64(collectionID), 10),
		strconv.FormatInt(recordID, 10),
	)
}

func (s *StagingStore) fieldDir(collectionID int32, recordID int64, fieldID int32) string {
	return filepath.Join(s.recordDir(collectionID, recordID),
		strconv.FormatInt(int64(fieldID), 10),
	)
}
