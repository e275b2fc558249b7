// Package gpioinput implements the two interrupt-driven input
// sources the event router multiplexes alongside the motor interrupt
// and upstream commands: the UI board's button status byte (I2C) and
// the door switch (GPIO), each fed by its own debounce goroutine in
// the style of the HAT button driver this package is adapted from.
package gpioinput

import (
	"time"

	"periph.io/x/conn/v3/gpio"

	"printengine.dev/engine"
)

// ButtonBus is the minimal I2C capability needed to poll the UI
// board's status byte: the same register-read the motor board's
// status interrupt uses, at a different slave address.
type ButtonBus interface {
	ReadByte() (byte, error)
}

// PollButtons polls bus at interval and sends a ButtonRaw to ch every
// time the byte changes from the last one sent, debounced by
// requiring the same value to read back twice debounceTimeout apart
// before it's accepted — the same wait-then-confirm shape the HAT
// button driver uses for GPIO edges, applied to a polled byte instead
// of a level. Runs until quit is closed.
func PollButtons(bus ButtonBus, ch chan<- engine.ButtonRaw, interval, debounceTimeout time.Duration, quit <-chan struct{}) {
	var last, candidate byte
	haveCandidate := false
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			b, err := bus.ReadByte()
			if err != nil {
				continue
			}
			if b == last {
				haveCandidate = false
				continue
			}
			if !haveCandidate || candidate != b {
				candidate = b
				haveCandidate = true
				debounce.Reset(debounceTimeout)
				continue
			}
		case <-debounce.C:
			if haveCandidate && candidate != last {
				last = candidate
				haveCandidate = false
				select {
				case ch <- engine.ButtonRaw(last):
				case <-quit:
					return
				}
			}
		}
	}
}

// DoorPin is the GPIO line the door switch is wired to.
type DoorPin interface {
	gpio.PinIn
}

// lowByte and highByte are the single fixed Level->ASCII encoding
// PollDoor ever emits: a pure electrical-to-byte conversion, carrying
// no "closed" meaning of its own. Only engine.DoorRaw.Closed decides,
// per hardwareRev, which byte means the door is physically closed —
// per §4.6, that inversion is applied centrally in the event router,
// never here. PollDoor must not also select which level is "closed":
// doing so would apply the rev-dependent inversion twice, canceling
// DoorRaw.Closed's own and inverting the interlock on any hardwareRev
// other than the one PollDoor's caller assumed.
const (
	lowByte  = byte('0')
	highByte = byte('1')
)

// PollDoor waits for edges on pin and sends a debounced DoorRaw to ch
// on every settled level change, directly adapted from the HAT button
// driver's WaitForEdge-then-debounce-timeout loop: pin.In must already
// have been called with gpio.BothEdges. Runs until quit is closed.
func PollDoor(pin DoorPin, debounceTimeout time.Duration, ch chan<- engine.DoorRaw, quit <-chan struct{}) {
	stable := pin.Read()
	candidate := stable
	for {
		timeout := debounceTimeout
		if candidate == stable {
			timeout = -1
		}
		edged := pin.WaitForEdge(timeout)
		select {
		case <-quit:
			return
		default:
		}
		if edged {
			candidate = pin.Read()
			continue
		}
		if candidate == stable {
			continue
		}
		stable = candidate
		raw := lowByte
		if stable == gpio.High {
			raw = highByte
		}
		select {
		case ch <- engine.DoorRaw(raw):
		case <-quit:
			return
		}
	}
}
