//go:build !linux || !arm

package main

import (
	"printengine.dev/engine"
	"printengine.dev/internal/settings"
	"printengine.dev/motor"
	"printengine.dev/projector"
)

// Platform without real hardware attached: the debug-without-hardware
// mode spec.md §6 calls out by name, using a fake bus (with no I²C
// address at all) that always acknowledges every write and never
// raises an interrupt, mirroring cmd/controller's platform_dummy.go build.
type Platform struct {
	motor      *dummyMotorBus
	display    *dummyDisplay
	doorCh     chan engine.DoorRaw
	buttonCh   chan engine.ButtonRaw
	motorIntCh chan struct{}
}

// Init returns a Platform with no real I²C/GPIO access: every command
// the engine issues is accepted and silently discarded. store is
// accepted for signature parity with the real-hardware build, which
// reads the motor board's I²C address from it; the dummy bus has no
// address to look up.
func Init(store *settings.Store) (*Platform, error) {
	return &Platform{
		motor:      &dummyMotorBus{},
		display:    &dummyDisplay{},
		doorCh:     make(chan engine.DoorRaw),
		buttonCh:   make(chan engine.ButtonRaw),
		motorIntCh: make(chan struct{}),
	}, nil
}

func (p *Platform) MotorBus() motor.Bus                  { return p.motor }
func (p *Platform) Display() projector.Display           { return p.display }
func (p *Platform) DoorEvents() <-chan engine.DoorRaw     { return p.doorCh }
func (p *Platform) ButtonEvents() <-chan engine.ButtonRaw { return p.buttonCh }
func (p *Platform) MotorInterrupts() <-chan struct{}      { return p.motorIntCh }

// dummyMotorBus acks every write and never produces a status byte of
// its own accord; ReadByte always reports success, since nothing ever
// triggers MotorInterrupts() in debug mode for it to answer.
type dummyMotorBus struct{}

func (b *dummyMotorBus) Write(p []byte) error    { return nil }
func (b *dummyMotorBus) ReadByte() (byte, error) { return byte(motor.StatusSuccess), nil }

type dummyDisplay struct{}

func (d *dummyDisplay) ShowImage(layer uint32) error { return nil }
func (d *dummyDisplay) ShowBlack() error              { return nil }
func (d *dummyDisplay) ShowTestPattern() error        { return nil }
func (d *dummyDisplay) SetPowered(on bool) error      { return nil }
