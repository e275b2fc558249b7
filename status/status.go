// Package status implements the print-engine's status record and its
// single-writer, non-blocking publication channel.
package status

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// State is the coarse, top-level printer state published in every
// status record.
type State uint8

const (
	Initializing State = iota
	Idle
	Home
	Registering
	ConfirmingCancel
	PressingButton
	Exposing
	Separating
	Approaching
	PausedByUser
	Inspecting
	ConfirmingResume
	AwaitingCancelation
	ShowingVersion
	Calibrating
	DoorOpen
	Error
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Idle:
		return "Idle"
	case Home:
		return "Home"
	case Registering:
		return "Registering"
	case ConfirmingCancel:
		return "ConfirmingCancel"
	case PressingButton:
		return "PressingButton"
	case Exposing:
		return "Exposing"
	case Separating:
		return "Separating"
	case Approaching:
		return "Approaching"
	case PausedByUser:
		return "PausedByUser"
	case Inspecting:
		return "Inspecting"
	case ConfirmingResume:
		return "ConfirmingResume"
	case AwaitingCancelation:
		return "AwaitingCancelation"
	case ShowingVersion:
		return "ShowingVersion"
	case Calibrating:
		return "Calibrating"
	case DoorOpen:
		return "DoorOpen"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// UISubstate refines State with print-data-download progress that the
// state machine itself doesn't model.
type UISubstate uint8

const (
	None UISubstate = iota
	Downloading
	Downloaded
	DownloadFailed
)

// Change describes whether a status record reports entry into, exit
// from, or no movement relative to its State.
type Change uint8

const (
	NoChange Change = iota
	Entering
	Leaving
)

// ErrorCode is the closed taxonomy of errors the engine can report.
// See errs.Code for the source of truth; status only carries the
// numeric value so this package has no dependency on errs.
type ErrorCode uint16

const Success ErrorCode = 0

// Record is the sole published record. Field order is the wire order:
// little-endian, declaration order, fixed size.
type Record struct {
	State                     State
	UISubstate                UISubstate
	Change                    Change
	CurrentLayer              uint32
	NumLayers                 uint32
	EstimatedSecondsRemaining uint32
	ErrorCode                 ErrorCode
	Errno                     int32
	IsError                   bool
}

// Valid reports whether r satisfies the invariants of §3: current
// layer bounds and the is_error/error_code implication.
func (r Record) Valid() bool {
	if r.NumLayers > 0 {
		if r.CurrentLayer > r.NumLayers {
			return false
		}
	} else if r.CurrentLayer != 0 {
		return false
	}
	if r.IsError && r.ErrorCode == Success {
		return false
	}
	return true
}

// recordSize is the encoded size in bytes: one 4-byte little-endian
// slot per field, in declaration order.
const recordSize = 4 * 9

func (r Record) encode(buf *[recordSize]byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.State))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.UISubstate))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Change))
	binary.LittleEndian.PutUint32(buf[12:16], r.CurrentLayer)
	binary.LittleEndian.PutUint32(buf[16:20], r.NumLayers)
	binary.LittleEndian.PutUint32(buf[20:24], r.EstimatedSecondsRemaining)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(r.ErrorCode))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(r.Errno))
	isErr := uint32(0)
	if r.IsError {
		isErr = 1
	}
	binary.LittleEndian.PutUint32(buf[32:36], isErr)
}

// Publisher is the one-writer side of the status channel: a named FIFO
// created with mode 0666 if absent, opened non-blocking. Writes that
// would block because the reader isn't keeping up are discarded
// silently, per §4.4 and §6.
//
// The write end is kept as a raw fd rather than an *os.File: Go's
// runtime treats a FIFO fd as pollable and transparently parks the
// calling goroutine until the pipe drains on EAGAIN instead of
// returning it, which would turn every Send into a blocking call the
// moment no reader is attached. Calling unix.Write directly on the fd
// bypasses that integration and gets the real non-blocking syscall
// behavior the non-blocking contract requires.
type Publisher struct {
	path string
	fd   int
}

// Open creates (if absent) and opens the status FIFO at path for
// non-blocking writes. The consumer is expected to open the same path
// for reading independently. The open itself uses O_RDWR rather than
// O_WRONLY: a write-only non-blocking open on a FIFO fails with ENXIO
// until a reader attaches, which would break the "callable before a
// consumer is attached" contract of §4.4; O_RDWR always succeeds
// immediately regardless of reader presence. Publisher never reads
// from the fd.
func Open(path string) (*Publisher, error) {
	if err := unix.Mkfifo(path, 0o666); err != nil && err != unix.EEXIST {
		return nil, fmt.Errorf("status: create fifo: %w", err)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0o666)
	if err != nil {
		return nil, fmt.Errorf("status: open fifo: %w", err)
	}
	return &Publisher{path: path, fd: fd}, nil
}

// Close removes the FIFO and closes the write end, per the exit
// sequence in §6.
func (p *Publisher) Close() error {
	err := unix.Close(p.fd)
	if rerr := os.Remove(p.path); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// Send writes the entire record in one call. A full reader side (or no
// reader at all) causes the write to be discarded, never to block the
// engine.
func (p *Publisher) Send(r Record) error {
	var buf [recordSize]byte
	r.encode(&buf)
	_, err := unix.Write(p.fd, buf[:])
	if err == unix.EAGAIN {
		// Consumer isn't keeping up; this write is silently dropped,
		// matching the non-blocking contract.
		return nil
	}
	return err
}
