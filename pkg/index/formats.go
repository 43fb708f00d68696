package index

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// Extension is the file extension used for compiled index dumps on disk.
const Extension = ".bin"

// maxBlobSize guards against reading something that clearly is not an index.
const maxBlobSize = 256 << 20

// ValidateFile checks that filename looks like a compiled index dump
// before it gets read into memory.
func ValidateFile(filename string) error {
	info, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", filename, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", filename)
	}
	if info.Size() < trailerSize {
		return fmt.Errorf("file %s is too small (%d bytes) for a compiled index (minimum: %d bytes)",
			filename, info.Size(), trailerSize)
	}
	if info.Size() > maxBlobSize {
		return fmt.Errorf("file %s is too large (%d bytes) for a compiled index", filename, info.Size())
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != Extension {
		return fmt.Errorf("file %s has invalid extension %s (expected: %s)", filename, ext, Extension)
	}
	return nil
}

// LoadFile reads and decodes a compiled index dump.
func LoadFile(filename string) (*CompiledIndex, error) {
	if err := ValidateFile(filename); err != nil {
		return nil, err
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer f.Close()

	ci, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	log.Debugf("Compiled index %s loaded: %d tags, %d bytes", filename, ci.RecordCount(), ci.Size())
	return ci, nil
}

// Read drains r and decodes the result.
func Read(r io.Reader) (*CompiledIndex, error) {
	blob, err := io.ReadAll(io.LimitReader(r, maxBlobSize+1))
	if err != nil {
		return nil, fmt.Errorf("read compiled index: %w", err)
	}
	if len(blob) > maxBlobSize {
		return nil, fmt.Errorf("compiled index exceeds %d bytes", maxBlobSize)
	}
	return Decode(blob)
}
