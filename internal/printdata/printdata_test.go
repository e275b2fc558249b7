package printdata

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "stage"), filepath.Join(dir, "active"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func stageBundle(t *testing.T, m *Manager, n int) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(m.stageDir, countFile), []byte(strconv.Itoa(n)), 0o644); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= n; i++ {
		if err := os.WriteFile(m.layerPath(m.stageDir, uint32(i)), []byte{0xff}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNoDataMeansZeroLayers(t *testing.T) {
	m := newManager(t)
	if got := m.NumLayers(); got != 0 {
		t.Fatalf("NumLayers() = %d, want 0", got)
	}
}

func TestValidateRejectsMissingLayers(t *testing.T) {
	m := newManager(t)
	os.WriteFile(filepath.Join(m.stageDir, countFile), []byte("3"), 0o644)
	if _, err := m.Validate(); err == nil {
		t.Fatal("want error for missing layer files")
	}
}

func TestStageValidateActivateClear(t *testing.T) {
	m := newManager(t)
	stageBundle(t, m, 3)
	n, err := m.Validate()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("Validate() = %d, want 3", n)
	}
	if err := m.Activate(); err != nil {
		t.Fatal(err)
	}
	if got := m.NumLayers(); got != 3 {
		t.Fatalf("NumLayers() after activate = %d, want 3", got)
	}
	if _, err := m.LayerPath(1); err != nil {
		t.Fatal(err)
	}
	if err := m.Clear(); err != nil {
		t.Fatal(err)
	}
	if got := m.NumLayers(); got != 0 {
		t.Fatalf("NumLayers() after clear = %d, want 0", got)
	}
}
