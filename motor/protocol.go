// Package motor implements the motor board's register-scoped command
// protocol: building and serially transmitting the command batches
// described in spec §4.2, and the I²C transport they ride over.
package motor

import "encoding/binary"

// Register selects which of the motor board's five address spaces a
// command targets, per §6.
type Register uint8

const (
	General Register = iota
	ZSettings
	ZAction
	RotSettings
	RotAction
)

// Action is the operation requested within a Register's address space.
type Action uint8

const (
	ActionEnable Action = iota
	ActionDisable
	ActionPause
	ActionResume
	ActionClear
	ActionReset
	ActionInterrupt
	ActionHome
	ActionMove
	ActionStepAngle
	ActionUnitsPerRev
	ActionMicrostepping
	ActionJerk
	ActionSpeed
)

// Command is a single register-addressed motor instruction, with an
// optional 32-bit little-endian parameter, per §3.
type Command struct {
	Register Register
	Action   Action
	Param    int32
	HasParam bool
}

// Encode serializes c as the bytes transmitted over I²C: a header byte
// packing Register and Action, followed by 4 little-endian parameter
// bytes if HasParam.
func (c Command) Encode() []byte {
	b := make([]byte, 1, 5)
	b[0] = byte(c.Register)<<4 | byte(c.Action)
	if c.HasParam {
		var p [4]byte
		binary.LittleEndian.PutUint32(p[:], uint32(c.Param))
		b = append(b, p[:]...)
	}
	return b
}

// Batch is an ordered command sequence transmitted one command at a
// time. ExpectInterrupt is true when the batch ends in an INTERRUPT
// sentinel and the motor board is expected to raise exactly one
// hardware interrupt once every action command in the batch completes.
type Batch struct {
	Commands        []Command
	ExpectInterrupt bool
}

// Scaling factors applied to rotation and speed parameters before they
// are placed on the wire, per §4.2.
const (
	// RScaleFactor converts millidegrees to the rotation unit the motor
	// board's ROT_ACTION/MOVE and ROT_SETTINGS/UNITS_PER_REV commands
	// expect.
	RScaleFactor = 1000
	// RSpeedFactor scales rotation speeds before transmission.
	RSpeedFactor = 100
	// ZSpeedFactor scales Z speeds before transmission.
	ZSpeedFactor = 100

	// oneRevolutionMilliDeg is a full rotary-axis turn, used as the
	// homing limit during jam recovery.
	oneRevolutionMilliDeg = 360_000
)

func rotationWire(milliDeg int32) int32 { return milliDeg / RScaleFactor }
func rSpeedWire(speed uint32) uint32    { return speed * RSpeedFactor }
func zSpeedWire(speed uint32) uint32    { return speed * ZSpeedFactor }

func interruptCmd() Command { return Command{Register: General, Action: ActionInterrupt} }

func axisSettings(reg Register, jerk, speed, microstepping, unitsPerRev uint32) []Command {
	return []Command{
		{Register: reg, Action: ActionJerk, Param: int32(jerk), HasParam: true},
		{Register: reg, Action: ActionSpeed, Param: int32(speed), HasParam: true},
		{Register: reg, Action: ActionMicrostepping, Param: int32(microstepping), HasParam: true},
		{Register: reg, Action: ActionUnitsPerRev, Param: int32(unitsPerRev), HasParam: true},
	}
}

// LayerSettings are the per-layer-type motion parameters looked up
// from the settings store and used to build a Separate/Approach/UnJam
// batch.
type LayerSettings struct {
	Jerk                 uint32
	ZSpeed               uint32
	ZMicrostepping       uint32
	ZUnitsPerRevMicrons  uint32
	RSpeed               uint32
	RMicrostepping       uint32
	RUnitsPerRevMilliDeg uint32
	RotationMilliDeg     int32
	ThicknessMicrons     uint32
	ZLiftMicrons         uint32
}

func (s LayerSettings) rotSettingsCmds() []Command {
	return axisSettings(RotSettings, s.Jerk, rSpeedWire(s.RSpeed), s.RMicrostepping, s.RUnitsPerRevMilliDeg)
}

func (s LayerSettings) zSettingsCmds() []Command {
	return axisSettings(ZSettings, s.Jerk, zSpeedWire(s.ZSpeed), s.ZMicrostepping, s.ZUnitsPerRevMicrons)
}

// Enable turns the motors on.
func Enable() Batch { return Batch{Commands: []Command{{Register: General, Action: ActionEnable}}} }

// Disable turns the motors off.
func Disable() Batch { return Batch{Commands: []Command{{Register: General, Action: ActionDisable}}} }

// Pause holds any motion currently in progress.
func Pause() Batch { return Batch{Commands: []Command{{Register: General, Action: ActionPause}}} }

// Resume continues motion previously paused.
func Resume() Batch { return Batch{Commands: []Command{{Register: General, Action: ActionResume}}} }

// ClearPending discards any queued-but-unsent commands on the board.
func ClearPending() Batch {
	return Batch{Commands: []Command{{Register: General, Action: ActionClear}}}
}

// Stop cancels in-flight motion immediately. Used by the fatal-error
// path (§4.6) before the state machine moves to Error.
func Stop() Batch { return Batch{Commands: []Command{{Register: General, Action: ActionReset}}} }

// InitParams are the per-axis parameters programmed once at bring-up.
type InitParams struct {
	ZStepAngleMilliDeg uint32
	ZMicronsPerRev     uint32
	ZMicrostepping     uint32
	RStepAngleMilliDeg uint32
	RMilliDegPerRev    uint32
	RMicrostepping     uint32
}

// InitializeBatches returns the two batches initialize() sends: a
// software reset (Driver.Initialize sleeps 500ms after this), then the
// per-axis programming batch that also enables the motors. Neither
// requests an interrupt.
func InitializeBatches(p InitParams) (reset, program Batch) {
	reset = Batch{Commands: []Command{{Register: General, Action: ActionReset}}}
	program = Batch{Commands: []Command{
		{Register: ZSettings, Action: ActionStepAngle, Param: int32(p.ZStepAngleMilliDeg), HasParam: true},
		{Register: ZSettings, Action: ActionUnitsPerRev, Param: int32(p.ZMicronsPerRev), HasParam: true},
		{Register: ZSettings, Action: ActionMicrostepping, Param: int32(p.ZMicrostepping), HasParam: true},
		{Register: RotSettings, Action: ActionStepAngle, Param: int32(p.RStepAngleMilliDeg), HasParam: true},
		{Register: RotSettings, Action: ActionUnitsPerRev, Param: rotationWire(int32(p.RMilliDegPerRev)), HasParam: true},
		{Register: RotSettings, Action: ActionMicrostepping, Param: int32(p.RMicrostepping), HasParam: true},
		{Register: General, Action: ActionEnable},
	}}
	return reset, program
}

// GoHome homes both axes. withInterrupt controls whether the caller
// wants to be told when homing completes (false during bring-up's
// non-interrupt-driven probing, true from the state machine).
func GoHome(withInterrupt bool) Batch {
	cmds := []Command{
		{Register: RotAction, Action: ActionHome},
		{Register: ZAction, Action: ActionHome},
	}
	if withInterrupt {
		cmds = append(cmds, interruptCmd())
	}
	return Batch{Commands: cmds, ExpectInterrupt: withInterrupt}
}

// GoToStartPosition moves the Z axis to the configured start height
// and always expects an interrupt.
func GoToStartPosition(startHeightMicrons int32) Batch {
	var cmds []Command
	if startHeightMicrons != 0 {
		cmds = append(cmds, Command{Register: ZAction, Action: ActionMove, Param: startHeightMicrons, HasParam: true})
	}
	cmds = append(cmds, interruptCmd())
	return Batch{Commands: cmds, ExpectInterrupt: true}
}

// Separate rotates the tray away from the hardened layer, then lifts
// the build head by ZLiftMicrons. A zero-valued move is omitted
// rather than sent as zero, per §4.2.
func Separate(s LayerSettings) Batch {
	var cmds []Command
	cmds = append(cmds, s.rotSettingsCmds()...)
	if rot := rotationWire(-s.RotationMilliDeg); rot != 0 {
		cmds = append(cmds, Command{Register: RotAction, Action: ActionMove, Param: rot, HasParam: true})
	}
	cmds = append(cmds, s.zSettingsCmds()...)
	if s.ZLiftMicrons != 0 {
		cmds = append(cmds, Command{Register: ZAction, Action: ActionMove, Param: int32(s.ZLiftMicrons), HasParam: true})
	}
	cmds = append(cmds, interruptCmd())
	return Batch{Commands: cmds, ExpectInterrupt: true}
}

// Approach rotates the tray back and descends by thickness-minus-lift.
// If unJamFirst, a re-home-and-counter-rotate recovery sequence is
// issued ahead of the approach commands.
func Approach(s LayerSettings, unJamFirst bool) Batch {
	var cmds []Command
	if unJamFirst {
		cmds = append(cmds, unJamCommands(s)...)
	}
	cmds = append(cmds, s.rotSettingsCmds()...)
	if rot := rotationWire(s.RotationMilliDeg); rot != 0 {
		cmds = append(cmds, Command{Register: RotAction, Action: ActionMove, Param: rot, HasParam: true})
	}
	cmds = append(cmds, s.zSettingsCmds()...)
	if descend := int32(s.ThicknessMicrons) - int32(s.ZLiftMicrons); descend != 0 {
		cmds = append(cmds, Command{Register: ZAction, Action: ActionMove, Param: descend, HasParam: true})
	}
	cmds = append(cmds, interruptCmd())
	return Batch{Commands: cmds, ExpectInterrupt: true}
}

func unJamCommands(s LayerSettings) []Command {
	cmds := []Command{
		{Register: RotAction, Action: ActionHome, Param: rotationWire(oneRevolutionMilliDeg), HasParam: true},
	}
	if rot := rotationWire(-s.RotationMilliDeg); rot != 0 {
		cmds = append(cmds, Command{Register: RotAction, Action: ActionMove, Param: rot, HasParam: true})
	}
	return cmds
}

// UnJam re-homes the rotary axis and counter-rotates back to the
// separation angle, for jam recovery ahead of an Approach.
func UnJam(s LayerSettings, withInterrupt bool) Batch {
	cmds := unJamCommands(s)
	if withInterrupt {
		cmds = append(cmds, interruptCmd())
	}
	return Batch{Commands: cmds, ExpectInterrupt: withInterrupt}
}

// PauseAndInspect pauses motion and rotates the tray to rotationMilliDeg
// for visual inspection.
func PauseAndInspect(rotationMilliDeg int32) Batch {
	cmds := []Command{{Register: General, Action: ActionPause}}
	if rot := rotationWire(rotationMilliDeg); rot != 0 {
		cmds = append(cmds, Command{Register: RotAction, Action: ActionMove, Param: rot, HasParam: true})
	}
	cmds = append(cmds, interruptCmd())
	return Batch{Commands: cmds, ExpectInterrupt: true}
}

// ResumeFromInspect rotates the tray back from its inspection angle
// and resumes motion.
func ResumeFromInspect(rotationMilliDeg int32) Batch {
	var cmds []Command
	if rot := rotationWire(-rotationMilliDeg); rot != 0 {
		cmds = append(cmds, Command{Register: RotAction, Action: ActionMove, Param: rot, HasParam: true})
	}
	cmds = append(cmds, Command{Register: General, Action: ActionResume}, interruptCmd())
	return Batch{Commands: cmds, ExpectInterrupt: true}
}

// SettingTemplate names the (register, action) pair a pending-settings
// key writes through, per the §3 pending-settings list.
type SettingTemplate struct {
	Register Register
	Action   Action
}

// SendSetting builds the single-command batch for one pending-settings
// entry. It never requests an interrupt: the board acks a settings-
// only write synchronously, and the caller synthesizes EvGotSetting
// once the transmission succeeds.
func SendSetting(tmpl SettingTemplate, value uint32) Batch {
	return Batch{Commands: []Command{{Register: tmpl.Register, Action: tmpl.Action, Param: int32(value), HasParam: true}}}
}
