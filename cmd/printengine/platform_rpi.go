//go:build linux && arm

package main

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"printengine.dev/driver/gpioinput"
	"printengine.dev/engine"
	"printengine.dev/internal/settings"
	"printengine.dev/motor"
	"printengine.dev/projector"
)

// I²C slave addresses and GPIO pin names for the UI board, the
// projector's power-enable line, and the door switch. Fixed per board
// revision, mirroring driver/wshat's fixed pin table. The motor
// board's address is not here — spec §6 requires it come from
// settings, read in Init.
const (
	buttonAddr    = 0x13
	projectorAddr = 0x14

	doorPinName      = "GPIO17"
	projPowerPinName = "GPIO27"
	motorIntPinName  = "GPIO22"

	buttonPollInterval = 20 * time.Millisecond
	buttonDebounce     = 40 * time.Millisecond
	doorDebounce       = 40 * time.Millisecond

	// defaultMotorAddr is used only when settings has no
	// motor_i2c_address entry yet (first boot before provisioning).
	defaultMotorAddr = 0x12
)

// Platform wires the real motor and UI-board I²C devices, the
// projector's GPIO power line and I²C image-select channel, and the
// door-switch and motor-interrupt GPIO pins into the channels the
// engine's Router reads, grounded on cmd/controller's platform_rpi.go
// Init shape and driver/wshat.Open's pin-claiming idiom.
type Platform struct {
	motor   *motor.I2CBus
	display *projector.GPIODisplay

	doorCh     chan engine.DoorRaw
	buttonCh   chan engine.ButtonRaw
	motorIntCh chan struct{}
	quit       chan struct{}
}

// Init wires the real hardware. The motor board's 7-bit I²C slave
// address is read from store (motor_i2c_address), per motor.NewI2CBus's
// contract and spec §6 — never a hardcoded constant.
func Init(store *settings.Store) (*Platform, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("platform: host init: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("platform: i2c open: %w", err)
	}

	doorPin := gpioreg.ByName(doorPinName)
	if doorPin == nil {
		return nil, fmt.Errorf("platform: no such pin: %s", doorPinName)
	}
	if err := doorPin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("platform: door pin: %w", err)
	}

	projPowerPin := gpioreg.ByName(projPowerPinName)
	if projPowerPin == nil {
		return nil, fmt.Errorf("platform: no such pin: %s", projPowerPinName)
	}

	motorIntPin := gpioreg.ByName(motorIntPinName)
	if motorIntPin == nil {
		return nil, fmt.Errorf("platform: no such pin: %s", motorIntPinName)
	}
	if err := motorIntPin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("platform: motor interrupt pin: %w", err)
	}

	motorAddr := uint16(store.Int("motor_i2c_address", defaultMotorAddr))
	p := &Platform{
		motor:      motor.NewI2CBus(bus, motorAddr),
		display:    projector.NewGPIODisplay(projPowerPin, bus, projectorAddr),
		doorCh:     make(chan engine.DoorRaw),
		buttonCh:   make(chan engine.ButtonRaw),
		motorIntCh: make(chan struct{}),
		quit:       make(chan struct{}),
	}

	buttonBus := &i2c.Dev{Bus: bus, Addr: buttonAddr}
	go gpioinput.PollButtons(buttonByteReader{buttonBus}, p.buttonCh, buttonPollInterval, buttonDebounce, p.quit)
	go gpioinput.PollDoor(doorPin, doorDebounce, p.doorCh, p.quit)
	go p.pollMotorInterrupt(motorIntPin)

	return p, nil
}

func (p *Platform) MotorBus() motor.Bus                  { return p.motor }
func (p *Platform) Display() projector.Display           { return p.display }
func (p *Platform) DoorEvents() <-chan engine.DoorRaw     { return p.doorCh }
func (p *Platform) ButtonEvents() <-chan engine.ButtonRaw { return p.buttonCh }
func (p *Platform) MotorInterrupts() <-chan struct{}      { return p.motorIntCh }

// pollMotorInterrupt waits for the motor board's interrupt line and
// forwards one tick per rising edge, the same WaitForEdge idiom
// driver/gpioinput.PollDoor uses, without the debounce since the
// board only raises the line once per completed batch.
func (p *Platform) pollMotorInterrupt(pin gpio.PinIn) {
	for {
		if !pin.WaitForEdge(-1) {
			select {
			case <-p.quit:
				return
			default:
				continue
			}
		}
		select {
		case p.motorIntCh <- struct{}{}:
		case <-p.quit:
			return
		}
	}
}

// buttonByteReader adapts an *i2c.Dev to gpioinput.ButtonBus.
type buttonByteReader struct {
	dev *i2c.Dev
}

func (r buttonByteReader) ReadByte() (byte, error) {
	var rx [1]byte
	if err := r.dev.Tx(nil, rx[:]); err != nil {
		return 0, err
	}
	return rx[0], nil
}
