package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"slidebot/models"
)

// FileStore owns the inbound staging directory and the outbound result
// directory. It holds no per-job state.
type FileStore struct {
	inboundDir  string
	outboundDir string
}

// NewFileStore creates both directories and empties them. Jobs are never
// resumed, so anything left there belongs to a previous run.
func NewFileStore(inboundDir, outboundDir string) (*FileStore, error) {
	for _, dir := range []string{inboundDir, outboundDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		if err := sweep(dir); err != nil {
			return nil, err
		}
	}
	return &FileStore{inboundDir: inboundDir, outboundDir: outboundDir}, nil
}

func sweep(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove leftover %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *FileStore) InboundDir() string  { return s.inboundDir }
func (s *FileStore) OutboundDir() string { return s.outboundDir }

// SanitizeFilename replaces every character outside [A-Za-z0-9._-] with an
// underscore, one replacement per character.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isSafeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-':
		return true
	}
	return false
}

// StagePath returns where an upload named originalFilename is staged. The file
// is not created.
func (s *FileStore) StagePath(originalFilename string) (string, error) {
	safe := SanitizeFilename(originalFilename)
	// "." and ".." survive sanitization but would resolve outside the directory.
	if safe == "" || safe == "." || safe == ".." {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidName, originalFilename)
	}
	return filepath.Join(s.inboundDir, safe), nil
}

// ResultPath is where the engine writes the output for inputPath.
func (s *FileStore) ResultPath(inputPath string) string {
	base := filepath.Base(inputPath)
	return filepath.Join(s.outboundDir, strings.TrimSuffix(base, filepath.Ext(base))+models.OutputExtension)
}

// Cleanup removes path if present. Missing files are not an error.
func (s *FileStore) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
