// Package projector implements the thin DLP projector facade of §4.3:
// each call either succeeds or reports a hard failure, with
// show_image/show_black treated as fatal by the caller and show_black
// additionally powering the projector off.
package projector

import "fmt"

// Display is the external collaborator this package fronts: a DLP
// projector driver that exposes resin by displaying a layer image.
// Its implementation (rasterization, transport) is out of scope per
// spec §1; Facade only adds the error-reporting contract §4.3 asks for.
type Display interface {
	ShowImage(layer uint32) error
	ShowBlack() error
	ShowTestPattern() error
	SetPowered(on bool) error
}

// Facade fronts a Display with the engine's error-reporting contract.
type Facade struct {
	d       Display
	powered bool
}

// New wraps d.
func New(d Display) *Facade {
	return &Facade{d: d}
}

// ShowImage displays layer's slice image. Failure is fatal: the caller
// must cancel the print.
func (f *Facade) ShowImage(layer uint32) error {
	if err := f.d.ShowImage(layer); err != nil {
		return fmt.Errorf("projector: show image: %w", err)
	}
	return nil
}

// ShowBlack blanks the projector between exposures and on any fault
// path. Failure is fatal; on failure the projector is also powered
// off, best-effort, so resin is never left lit by a broken display.
func (f *Facade) ShowBlack() error {
	if err := f.d.ShowBlack(); err != nil {
		f.d.SetPowered(false)
		f.powered = false
		return fmt.Errorf("projector: show black: %w", err)
	}
	return nil
}

// ShowTestPattern is callable in any state and bypasses the state
// machine entirely.
func (f *Facade) ShowTestPattern() error {
	if err := f.d.ShowTestPattern(); err != nil {
		return fmt.Errorf("projector: show test pattern: %w", err)
	}
	return nil
}

// SetPowered is fire-and-forget: the underlying error, if any, is
// swallowed, matching §4.3.
func (f *Facade) SetPowered(on bool) {
	f.powered = on
	_ = f.d.SetPowered(on)
}

// Powered reports the last requested power state.
func (f *Facade) Powered() bool {
	return f.powered
}
