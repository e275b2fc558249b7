// Package printdata implements the print-data manager named in spec
// §1: staging, validating, clearing, and moving a slice bundle on the
// filesystem, and reporting its layer count. The implementation here
// (a directory of per-layer image files plus a count file) is a
// concrete stand-in for a collaborator spec.md deliberately leaves
// out of scope — SPEC_FULL adds it so Start/Cancel/end-of-print are
// exercisable end-to-end.
package printdata

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const countFile = "layers.count"

// Manager owns the staging directory (where a freshly downloaded
// bundle lands before validation) and the active directory (the
// bundle currently loaded for printing).
type Manager struct {
	stageDir  string
	activeDir string
}

// Open ensures both directories exist.
func Open(stageDir, activeDir string) (*Manager, error) {
	for _, d := range []string{stageDir, activeDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("printdata: %w", err)
		}
	}
	return &Manager{stageDir: stageDir, activeDir: activeDir}, nil
}

// Validate checks the staged bundle for a well-formed layer count and
// a contiguous run of per-layer image files, returning the count.
func (m *Manager) Validate() (uint32, error) {
	n, err := readCount(m.stageDir)
	if err != nil {
		return 0, fmt.Errorf("printdata: invalid print data: %w", err)
	}
	for i := uint32(1); i <= n; i++ {
		if _, err := os.Stat(m.layerPath(m.stageDir, i)); err != nil {
			return 0, fmt.Errorf("printdata: invalid print data: missing layer %d: %w", i, err)
		}
	}
	return n, nil
}

// Activate moves a validated staged bundle into the active directory,
// replacing whatever was loaded there.
func (m *Manager) Activate() error {
	if err := os.RemoveAll(m.activeDir); err != nil {
		return fmt.Errorf("printdata: remove active: %w", err)
	}
	if err := os.Rename(m.stageDir, m.activeDir); err != nil {
		return fmt.Errorf("printdata: activate: %w", err)
	}
	return os.MkdirAll(m.stageDir, 0o755)
}

// Clear removes the active print data, dropping the layer count to
// zero. Called on cancel; a completed print leaves it loaded.
func (m *Manager) Clear() error {
	if err := os.RemoveAll(m.activeDir); err != nil {
		return fmt.Errorf("printdata: clear: %w", err)
	}
	return os.MkdirAll(m.activeDir, 0o755)
}

// NumLayers reports the active bundle's layer count, 0 if none is
// loaded.
func (m *Manager) NumLayers() uint32 {
	n, err := readCount(m.activeDir)
	if err != nil {
		return 0
	}
	return n
}

// LayerPath returns the active bundle's image file for layer n.
func (m *Manager) LayerPath(n uint32) (string, error) {
	p := m.layerPath(m.activeDir, n)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("printdata: no image for layer %d: %w", n, err)
	}
	return p, nil
}

func (m *Manager) layerPath(dir string, n uint32) string {
	return filepath.Join(dir, fmt.Sprintf("layer-%04d.bin", n))
}

func readCount(dir string) (uint32, error) {
	b, err := os.ReadFile(filepath.Join(dir, countFile))
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed %s: %w", countFile, err)
	}
	return uint32(n), nil
}
