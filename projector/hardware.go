package projector

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

// GPIODisplay drives a DLP projector that exposes a GPIO power-enable
// pin and an I²C control channel for image selection, in the same
// register-write style as the motor board. Grounded on lcd.LCD's
// GPIO+bus command idiom (sendCommand over a fixed pin set).
type GPIODisplay struct {
	power gpio.PinOut
	dev   *i2c.Dev
}

// NewGPIODisplay wraps a power-enable pin and an I²C device used to
// select the currently displayed layer image or blank pattern.
func NewGPIODisplay(power gpio.PinOut, bus i2c.Bus, addr uint16) *GPIODisplay {
	return &GPIODisplay{power: power, dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

const (
	cmdShowLayer = 0x01
	cmdShowBlack = 0x02
	cmdShowTest  = 0x03
)

func (d *GPIODisplay) ShowImage(layer uint32) error {
	var buf [5]byte
	buf[0] = cmdShowLayer
	binary.LittleEndian.PutUint32(buf[1:], layer)
	if err := d.dev.Tx(buf[:], nil); err != nil {
		return fmt.Errorf("projector: show image: %w", err)
	}
	return nil
}

func (d *GPIODisplay) ShowBlack() error {
	if err := d.dev.Tx([]byte{cmdShowBlack}, nil); err != nil {
		return fmt.Errorf("projector: show black: %w", err)
	}
	return nil
}

func (d *GPIODisplay) ShowTestPattern() error {
	if err := d.dev.Tx([]byte{cmdShowTest}, nil); err != nil {
		return fmt.Errorf("projector: show test pattern: %w", err)
	}
	return nil
}

func (d *GPIODisplay) SetPowered(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	return d.power.Out(level)
}
