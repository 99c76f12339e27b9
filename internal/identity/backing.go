package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// MemoryBacking keeps the value in the process only.
type MemoryBacking struct {
	value string
	set   bool
}

func NewMemoryBacking() *MemoryBacking {
	return &MemoryBacking{}
}

func (m *MemoryBacking) Load() (string, bool) {
	return m.value, m.set
}

func (m *MemoryBacking) Store(value string) error {
	m.value = value
	m.set = true
	return nil
}

// record is the on-disk layout shared with other tools reading the state file.
type record struct {
	UserAgent string `json:"user_agent"`
}

// FileBacking persists the value as a single JSON object on disk.
// It is not safe for concurrent use on its own; Store serializes access.
type FileBacking struct {
	path   string
	logger *slog.Logger

	last fs.FileInfo
}

// NewFileBacking returns a backing that reads and writes path.
func NewFileBacking(path string, logger *slog.Logger) *FileBacking {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileBacking{path: path, logger: logger}
}

// Path returns the location of the state file.
func (f *FileBacking) Path() string {
	return f.path
}

func (f *FileBacking) Load() (string, bool) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn("could not read identity state file, using default", "path", f.path, "error", err)
		}
		f.last = nil
		return "", false
	}
	f.observe()

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		f.logger.Warn("could not parse identity state file, using default", "path", f.path, "error", err)
		return "", false
	}
	if Validate(rec.UserAgent) != nil {
		f.logger.Warn("identity state file holds no usable value, using default", "path", f.path)
		return "", false
	}
	return rec.UserAgent, true
}

func (f *FileBacking) Store(value string) error {
	data, err := json.Marshal(record{UserAgent: value})
	if err != nil {
		return fmt.Errorf("encoding identity record: %w", err)
	}
	info, err := atomicWriteFile(f.path, data)
	if err != nil {
		return err
	}
	f.last = info
	return nil
}

// Changed reports whether the state file changed or disappeared
// since this backing last touched it.
func (f *FileBacking) Changed() bool {
	info, err := os.Stat(f.path)
	if err != nil {
		return f.last != nil
	}
	if f.last == nil {
		return true
	}
	// Store replaces the file by rename, so a new inode means a new record.
	return !os.SameFile(info, f.last) ||
		!info.ModTime().Equal(f.last.ModTime()) ||
		info.Size() != f.last.Size()
}

func (f *FileBacking) observe() {
	info, err := os.Stat(f.path)
	if err != nil {
		f.last = nil
		return
	}
	f.last = info
}

// rename is swapped in tests to fail or interleave the final replace.
var rename = os.Rename

// atomicWriteFile writes data to a temp file next to path and renames it
// into place so readers never see a partial record. The returned info
// describes the written file, taken before the rename so a concurrent
// writer replacing path right after cannot be mistaken for our own record.
func atomicWriteFile(path string, data []byte) (fs.FileInfo, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return nil, fmt.Errorf("setting permissions: %w", err)
	}
	info, err := os.Stat(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("inspecting temp file: %w", err)
	}
	if err := rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("replacing state file: %w", err)
	}
	return info, nil
}
