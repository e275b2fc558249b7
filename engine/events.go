// Package engine implements the printer state machine (spec §4.6),
// its event router (§4.7-equivalent in SPEC_FULL, the "Event router"
// component), and layer accounting (§4.8/"Layer accounting").
package engine

import "github.com/soypat/go-maquina"

// Trigger aliases the state-machine library's trigger type so callers
// outside this package never need to import go-maquina directly.
type Trigger = maquina.Trigger

// The event taxonomy of spec §4.6. EvMotionCompleted and EvError are
// parameterized in the prose spec; here EvMotionCompleted becomes two
// triggers (success/failure) and EvError a single fatal-fault trigger (since non-fatal
// errors never reach the state machine as events — only
// errs.Handler.Raise's fatal path does, via Context.RaiseFault).
const (
	EvStartPrint         Trigger = "start-print"
	EvCancel             Trigger = "cancel"
	EvPause              Trigger = "pause"
	EvResume             Trigger = "resume"
	EvReset              Trigger = "reset"
	EvLeftButton         Trigger = "left-button"
	EvRightButton        Trigger = "right-button"
	EvRightButtonHold    Trigger = "right-button-hold"
	EvLeftAndRightButton Trigger = "left-and-right-button"
	EvDoorOpened         Trigger = "door-opened"
	EvDoorClosed         Trigger = "door-closed"
	EvExposed            Trigger = "exposed"
	EvMotionCompletedOK  Trigger = "motion-completed-ok"
	EvMotionCompletedBad Trigger = "motion-completed-bad"
	EvGotSetting         Trigger = "got-setting"
	EvConnected          Trigger = "connected"
	EvRegistered         Trigger = "registered"
	EvErrorFatal         Trigger = "error-fatal"
)

// Command is the upstream command enumeration of spec §6. Commands
// the state machine doesn't consume directly are no-ops for it,
// answered by the settings store or print-data manager instead.
type Command int

const (
	CmdStart Command = iota
	CmdCancel
	CmdPause
	CmdResume
	CmdReset
	CmdTest
	CmdRefreshSettings
	CmdApplyPrintSettings
	CmdStartPrintDataLoad
	CmdProcessPrintData
	CmdStartRegistering
	CmdRegistrationSucceeded
	CmdGetStatus
	CmdGetSetting
	CmdSetSetting
	CmdRestoreSetting
	CmdGetLogs
	CmdSetFirmware
	CmdGetFWVersion
	CmdGetBoardNum
	CmdExit
)

// ButtonRaw is the single status byte read over I²C from the UI
// board, per §6: low nibble is a button mask, or the whole byte is
// ERROR_STATUS.
type ButtonRaw byte

const (
	btn1Press   = 0b0001
	btn2Press   = 0b0010
	btn1Hold    = 0b0100
	btn2Hold    = 0b1000
	errorStatus = 0xFF
)

// IsErrorStatus reports whether the whole byte is ERROR_STATUS, per
// §6: the UI board signaling a front-panel fault rather than a button
// reading, distinct from any combination of the low nibble's bits.
func (b ButtonRaw) IsErrorStatus() bool {
	return byte(b) == errorStatus
}

// Decode maps a raw UI-board status byte to a Trigger, per §6's
// encoding and §4.6's button tie-break (EvLeftAndRightButton takes
// precedence over either single-button event). A zero low nibble, or
// BTN1_HOLD alone (not in the event taxonomy of §4.6), yields ok=false.
// Callers must check IsErrorStatus first; Decode does not special-case
// ERROR_STATUS itself.
func (b ButtonRaw) Decode() (t Trigger, ok bool) {
	low := byte(b) & 0x0F
	switch {
	case low == 0:
		return "", false
	case low&btn1Press != 0 && low&btn2Press != 0:
		return EvLeftAndRightButton, true
	case low&btn2Hold != 0:
		return EvRightButtonHold, true
	case low&btn1Press != 0:
		return EvLeftButton, true
	case low&btn2Press != 0:
		return EvRightButton, true
	default:
		return "", false
	}
}

// DoorRaw is the single ASCII byte ('0' or '1') read from the door
// switch GPIO.
type DoorRaw byte

// Closed reports whether the raw byte means "door closed", inverted
// per §4.6 when HARDWARE_REV == 0.
func (d DoorRaw) Closed(hardwareRev int) bool {
	closedByte := byte('0')
	if hardwareRev == 0 {
		closedByte = '1'
	}
	return byte(d) == closedByte
}
