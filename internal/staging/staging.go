// Package staging manages the temporary directories that hold uploaded
// documents while a batch is being indexed.
//
// Every batch gets its own freshly created directory. The directory is
// removed exactly once when the batch finishes, whether it succeeded,
// failed or panicked. Removal failures are logged and never returned.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dshills/docindex-mcp/internal/logging"
)

// Prefix is prepended to every staging directory name
const Prefix = "batch_upload_"

var (
	// ErrUnusableName is returned when an uploaded item has no usable file name
	ErrUnusableName = errors.New("upload has no usable file name")
	// ErrNoContent is returned when an uploaded item has no content reader
	ErrNoContent = errors.New("upload has no content")
)

// Manager creates and destroys staging areas under a base directory
type Manager struct {
	baseDir string
	logger  *log.Logger
}

// Area is a staging directory exclusively owned by one batch
type Area struct {
	Root         string
	OwnerBatchID string

	mu      sync.Mutex
	names   map[string]struct{}
	release sync.Once
}

// NewManager creates a Manager. An empty baseDir uses the OS temp directory.
func NewManager(baseDir string, logger *log.Logger) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{
		baseDir: baseDir,
		logger:  logging.OrDiscard(logger),
	}
}

// BaseDir returns the directory staging areas are created in
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Acquire creates a new, uniquely named staging area
func (m *Manager) Acquire() (*Area, error) {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging base directory: %w", err)
	}

	root, err := os.MkdirTemp(m.baseDir, Prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	area := &Area{
		Root:         root,
		OwnerBatchID: uuid.NewString(),
		names:        make(map[string]struct{}),
	}
	m.logger.Debug("staging area acquired", "root", root, "batch", area.OwnerBatchID)
	return area, nil
}

// Release removes the staging area and everything in it. It is safe to call
// more than once; only the first call touches the filesystem.
func (m *Manager) Release(area *Area) {
	if area == nil {
		return
	}
	area.release.Do(func() {
		if err := os.RemoveAll(area.Root); err != nil {
			m.logger.Warn("failed to remove staging area", "root", area.Root, "batch", area.OwnerBatchID, "err", err)
			return
		}
		m.logger.Debug("staging area released", "root", area.Root, "batch", area.OwnerBatchID)
	})
}

// With acquires a staging area, passes it to fn and releases it afterwards,
// including when fn returns an error or panics.
func (m *Manager) With(fn func(area *Area) error) error {
	area, err := m.Acquire()
	if err != nil {
		return err
	}
	defer m.Release(area)

	return fn(area)
}

// Write stores one uploaded item in the area and returns its path. The name is
// reduced to its base name; a name already present gets a numbered suffix.
func (a *Area) Write(name string, r io.Reader) (string, error) {
	base, err := CleanName(name)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", fmt.Errorf("%w: %s", ErrNoContent, base)
	}

	a.mu.Lock()
	unique := a.uniqueName(base)
	a.names[unique] = struct{}{}
	a.mu.Unlock()

	path := filepath.Join(a.Root, unique)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create staged file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write staged file %s: %w", unique, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close staged file %s: %w", unique, err)
	}

	return path, nil
}

// uniqueName must be called with a.mu held
func (a *Area) uniqueName(base string) string {
	if _, taken := a.names[base]; !taken {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, taken := a.names[candidate]; !taken {
			return candidate
		}
	}
}

// CleanName reduces an uploaded file name to a safe base name
func CleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(strings.TrimSpace(name))
	switch base {
	case "", ".", "..", "/":
		return "", ErrUnusableName
	}
	return base, nil
}
