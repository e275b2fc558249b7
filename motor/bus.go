package motor

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// DebugAddress is the 7-bit I²C slave address used when running
// without real motor-board hardware attached, per §6.
const DebugAddress = 0xFF

// Bus is the minimal transport the motor Driver needs: a bytewise
// write per command, and a single status byte read once the board
// raises its interrupt.
type Bus interface {
	Write(p []byte) error
	ReadByte() (byte, error)
}

// I2CBus adapts a periph.io I²C bus to Bus, at a fixed 7-bit slave
// address looked up from settings (or DebugAddress without hardware).
type I2CBus struct {
	dev *i2c.Dev
}

// NewI2CBus wraps bus for addr.
func NewI2CBus(bus i2c.Bus, addr uint16) *I2CBus {
	return &I2CBus{dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

func (b *I2CBus) Write(p []byte) error {
	return b.dev.Tx(p, nil)
}

func (b *I2CBus) ReadByte() (byte, error) {
	var rx [1]byte
	if err := b.dev.Tx(nil, rx[:]); err != nil {
		return 0, err
	}
	return rx[0], nil
}

// Status is the single byte the board deposits once it raises its
// interrupt: batch success, or a fatal board-reported error.
type Status byte

const (
	StatusSuccess     Status = 0x01
	StatusErrorStatus Status = 0xFF
)

// Driver transmits command batches over Bus one command at a time and
// performs bring-up initialization.
type Driver struct {
	Bus Bus
}

// NewDriver returns a Driver over bus.
func NewDriver(bus Bus) *Driver {
	return &Driver{Bus: bus}
}

// ErrWriteFailed wraps any command-transmission failure; the caller
// must treat it as an immediate, non-interrupt-expecting failure.
var ErrWriteFailed = errors.New("motor: command write failed")

// Send transmits every command in b serially. If any byte sequence
// fails to transmit, Send returns immediately with expectInterrupt
// false: no interrupt is expected after a failed batch, regardless of
// b.ExpectInterrupt.
func (d *Driver) Send(b Batch) (expectInterrupt bool, err error) {
	for _, c := range b.Commands {
		if err := d.Bus.Write(c.Encode()); err != nil {
			return false, fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
	}
	return b.ExpectInterrupt, nil
}

// Initialize resets the board, waits for the reset to settle, then
// programs per-axis parameters and enables the motors. No interrupt is
// requested for either step. sleep defaults to time.Sleep; tests
// inject a fake to avoid the real 500ms delay.
func (d *Driver) Initialize(p InitParams, sleep func(time.Duration)) error {
	if sleep == nil {
		sleep = time.Sleep
	}
	reset, program := InitializeBatches(p)
	if _, err := d.Send(reset); err != nil {
		return fmt.Errorf("motor: initialize: reset: %w", err)
	}
	sleep(500 * time.Millisecond)
	if _, err := d.Send(program); err != nil {
		return fmt.Errorf("motor: initialize: program: %w", err)
	}
	return nil
}

// ReadStatus reads the status byte the board deposits once its
// interrupt line fires.
func (d *Driver) ReadStatus() (Status, error) {
	b, err := d.Bus.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("motor: read status: %w", err)
	}
	return Status(b), nil
}
