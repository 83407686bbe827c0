package delivery

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirSink writes archives into a local directory
type DirSink struct {
	dir  string
	last string
}

// NewDirSink creates dir if needed
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

// Save writes blob to <dir>/<fileName>. The file appears atomically.
func (s *DirSink) Save(blob []byte, fileName string) error {
	name := filepath.Base(fileName)
	if name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("invalid archive name: %q", fileName)
	}
	target := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".folderzip-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}

	s.last = target
	return nil
}

// Path returns the location of the most recently saved archive
func (s *DirSink) Path() string { return s.last }
