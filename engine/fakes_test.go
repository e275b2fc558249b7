package engine

import (
	"path/filepath"
	"testing"

	"printengine.dev/motor"
	"printengine.dev/projector"
	"printengine.dev/status"
)

// fakeBus is an in-memory motor.Bus: every Write succeeds and is
// recorded; ReadByte returns whatever nextStatus is queued.
type fakeBus struct {
	writes     [][]byte
	nextStatus byte
}

func (b *fakeBus) Write(p []byte) error {
	cp := append([]byte(nil), p...)
	b.writes = append(b.writes, cp)
	return nil
}

func (b *fakeBus) ReadByte() (byte, error) {
	return b.nextStatus, nil
}

// fakeDisplay is an in-memory projector.Display: every call succeeds
// unless the matching fail* flag is set.
type fakeDisplay struct {
	shownLayers   []uint32
	blackCalls    int
	poweredCalls  int
	powered       bool
	failShowImage bool
	failShowBlack bool
}

func (d *fakeDisplay) ShowImage(layer uint32) error {
	if d.failShowImage {
		return errFakeDisplay
	}
	d.shownLayers = append(d.shownLayers, layer)
	return nil
}

func (d *fakeDisplay) ShowBlack() error {
	if d.failShowBlack {
		return errFakeDisplay
	}
	d.blackCalls++
	return nil
}

func (d *fakeDisplay) ShowTestPattern() error { return nil }

func (d *fakeDisplay) SetPowered(on bool) error {
	d.poweredCalls++
	d.powered = on
	return nil
}

var errFakeDisplay = maquinaErr("fake display failure")

// fakeSettings is an in-memory Settings.
type fakeSettings struct {
	floats map[string]float64
	ints   map[string]int
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{floats: map[string]float64{}, ints: map[string]int{}}
}

func (s *fakeSettings) Float(key string, def float64) float64 {
	if v, ok := s.floats[key]; ok {
		return v
	}
	return def
}

func (s *fakeSettings) Int(key string, def int) int {
	if v, ok := s.ints[key]; ok {
		return v
	}
	return def
}

// fakePrintData is an in-memory PrintData.
type fakePrintData struct {
	numLayers  uint32
	clearCalls int
}

func (p *fakePrintData) NumLayers() uint32 { return p.numLayers }
func (p *fakePrintData) Clear() error {
	p.clearCalls++
	p.numLayers = 0
	return nil
}

func newTestContext(t *testing.T, bus *fakeBus, disp *fakeDisplay, settings *fakeSettings, pd *fakePrintData) *Context {
	t.Helper()
	pub, err := status.Open(filepath.Join(t.TempDir(), "status.fifo"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pub.Close() })
	ctx := NewContext(motor.NewDriver(bus), projector.New(disp), pub, settings, pd, nil)
	ctx.MotorTimeoutSeconds = 5
	ctx.VideoframeSeconds = 0.2
	ctx.PerLayerMoveSeconds = 1
	ctx.SettingTemplates = nil
	return ctx
}
