package engine

import (
	gocontext "context"

	"github.com/soypat/go-maquina"

	"printengine.dev/errs"
	"printengine.dev/motor"
	"printengine.dev/status"
)

type mstate = maquina.State[*Context]
type fringe = maquina.FringeCallback[*Context]
type guard = maquina.Guard[*Context]

// evBootReady is an internal-only trigger, never exposed to the
// router: it moves the machine out of Initializing once bring-up
// (motor.Initialize, timer/FIFO creation) has succeeded.
const evBootReady Trigger = "boot-ready"

// Machine wraps the go-maquina state graph built from SPEC_FULL's
// printer state machine (spec §4.6): every leaf state is a
// maquina.State[*Context] sharing one Context as the shared data
// value, entry/exit effects run as fringe callbacks, and guards encode
// the dynamic branches (last-layer vs. not, which substate to restore
// on door-close).
type Machine struct {
	sm  *maquina.StateMachine[*Context]
	ctx *Context
}

// NewMachine builds the full state graph over ctx and returns it
// already in Idle (Initializing's entry effects applied, bring-up
// considered complete — the caller is responsible for having run
// motor.Initialize beforehand, per §5's blocking bring-up region).
func NewMachine(ctx *Context) (*Machine, error) {
	var (
		initializing     = maquina.NewState("Initializing", ctx)
		idle             = maquina.NewState("Idle", ctx)
		home             = maquina.NewState("Home", ctx)
		registering      = maquina.NewState("Registering", ctx)
		confirmingCancel = maquina.NewState("ConfirmingCancel", ctx)
		pressingButton   = maquina.NewState("PressingButton", ctx)
		exposing         = maquina.NewState("Exposing", ctx)
		separating       = maquina.NewState("Separating", ctx)
		approaching      = maquina.NewState("Approaching", ctx)
		pausedByUser     = maquina.NewState("PausedByUser", ctx)
		inspecting       = maquina.NewState("Inspecting", ctx)
		confirmingResume = maquina.NewState("ConfirmingResume", ctx)
		awaitingCancel   = maquina.NewState("AwaitingCancelation", ctx)
		showingVersion   = maquina.NewState("ShowingVersion", ctx)
		calibrating      = maquina.NewState("Calibrating", ctx)
		doorOpen         = maquina.NewState("DoorOpen", ctx)
		errState         = maquina.NewState("Error", ctx)
	)

	printing := []*mstate{pressingButton, exposing, separating, approaching, pausedByUser, inspecting, confirmingResume}
	home.LinkSubstates(pressingButton, exposing, separating, approaching, pausedByUser, inspecting, confirmingResume)

	entry := func(state status.State) *fringe {
		return maquina.NewFringeCallback(state.String()+" entry", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
			c.EnterState(state)
		})
	}

	// --- Initializing -> Idle ---
	initializing.Permit(evBootReady, idle)
	initializing.OnEntry(entry(status.Initializing))
	idle.OnEntry(entry(status.Idle))

	// --- Idle/Registering/Home (network-registration gate, §4.6's
	// EvConnected/EvRegistered events) ---
	idle.Permit(EvConnected, registering)
	registering.OnEntry(entry(status.Registering))
	registering.Permit(EvRegistered, home)
	home.OnEntry(maquina.NewFringeCallback("Home entry", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.CurrentLayer = 0
		c.EnterState(status.Home)
	}))

	// --- Cancel is absorbing in Idle/Home (laws, §8) ---
	idle.Permit(EvCancel, idle)
	home.Permit(EvCancel, home)

	// FinishPrint's end-of-print GoHome batch is issued as Separating
	// exits into Home, before that move's own completion interrupt has
	// arrived — so Home must still accept the stray EvMotionCompletedOK
	// that follows and disarm the watchdog SendMotorBatch armed for it,
	// or MotorTimeout fires a spurious fatal ~MotorTimeoutSeconds after
	// every finished print.
	home.Permit(EvMotionCompletedOK, home)
	home.OnExitThrough(EvMotionCompletedOK, maquina.NewFringeCallback("final go-home ack", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.MotorTimeout.Disarm()
	}))

	// --- ConfirmingCancel: a both-buttons gesture on Home asks to
	// clear a loaded-but-not-yet-started print bundle. ---
	home.Permit(EvLeftAndRightButton, confirmingCancel)
	confirmingCancel.OnEntry(entry(status.ConfirmingCancel))
	confirmingCancel.Permit(EvLeftButton, home)
	confirmingCancel.Permit(EvRightButton, home)
	confirmingCancel.OnExitThrough(EvRightButton, maquina.NewFringeCallback("clear loaded print data", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.CancelPrint()
	}))

	// --- Calibrating / ShowingVersion: maintenance screens off Home ---
	home.Permit(EvRightButtonHold, calibrating)
	calibrating.OnEntry(entry(status.Calibrating))
	calibrating.Permit(EvLeftButton, home)
	home.Permit(EvLeftButton, showingVersion)
	showingVersion.OnEntry(entry(status.ShowingVersion))
	showingVersion.Permit(EvLeftButton, home)

	// --- Start print: Home -> PressingButton (settings handshake +
	// go-to-start-position), guarded on print data being loaded. ---
	guardHasPrintData := maquina.NewGuard("print data loaded", func(_ gocontext.Context, c *Context) error {
		if !c.BeginPrint() {
			return errNoPrintData
		}
		return nil
	})
	home.Permit(EvStartPrint, pressingButton, guardHasPrintData)
	home.OnExitThrough(EvStartPrint, maquina.NewFringeCallback("begin settings handshake", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.SendNextPendingSetting()
	}))
	pressingButton.OnEntry(entry(status.PressingButton))
	pressingButton.Permit(EvGotSetting, pressingButton)
	pressingButton.OnExitThrough(EvGotSetting, maquina.NewFringeCallback("next pending setting", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.SendNextPendingSetting()
	}))

	// --- PressingButton -> Approaching(1) -> Exposing -> Separating
	// -> Approaching(2) ... -> Home, per scenario 2's event trace. ---
	pressingButton.Permit(EvMotionCompletedOK, approaching)
	pressingButton.OnExitThrough(EvMotionCompletedOK, maquina.NewFringeCallback("issue first approach", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.IssueApproach()
	}))
	approaching.OnEntry(entry(status.Approaching))
	approaching.Permit(EvMotionCompletedOK, exposing)
	approaching.OnExitThrough(EvMotionCompletedOK, maquina.NewFringeCallback("begin exposure", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.BeginExposure()
	}))
	exposing.OnEntry(entry(status.Exposing))
	exposing.Permit(EvExposed, separating)
	exposing.OnExitThrough(EvExposed, maquina.NewFringeCallback("finish exposure", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.FinishExposure()
	}))
	separating.OnEntry(entry(status.Separating))

	guardLastLayer := maquina.NewGuard("last layer", func(_ gocontext.Context, c *Context) error {
		if !c.OnLastLayer() {
			return errNotLastLayer
		}
		return nil
	})
	guardMoreLayers := maquina.NewGuard("more layers", func(_ gocontext.Context, c *Context) error {
		if c.OnLastLayer() {
			return errIsLastLayer
		}
		return nil
	})
	separating.Permit(EvMotionCompletedOK, home, guardLastLayer)
	separating.OnExitThrough(EvMotionCompletedOK, maquina.NewFringeCallback("finish print", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		if c.OnLastLayer() {
			c.FinishPrint()
		}
	}))
	separating.Permit(EvMotionCompletedOK, approaching, guardMoreLayers)
	separating.OnExitThrough(EvMotionCompletedOK, maquina.NewFringeCallback("advance layer", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		if !c.OnLastLayer() {
			c.AdvanceLayer()
			c.IssueApproach()
		}
	}))

	// restoreMarks maps every Printing.* substate to the status.State
	// it publishes, used both for door-open/close restoration and for
	// pause/resume restoration (§4.6, §8 laws).
	restoreMarks := map[*mstate]status.State{
		pressingButton:   status.PressingButton,
		exposing:         status.Exposing,
		approaching:      status.Approaching,
		separating:       status.Separating,
		pausedByUser:     status.PausedByUser,
		inspecting:       status.Inspecting,
		confirmingResume: status.ConfirmingResume,
	}

	// --- Pause / resume / inspect, within Printing ---
	pauseSources := []*mstate{pressingButton, exposing, approaching, separating}
	for _, src := range pauseSources {
		mark := restoreMarks[src]
		src.Permit(EvPause, pausedByUser)
		src.OnExitThrough(EvPause, fringeRemember(mark))
		src.OnExitThrough(EvPause, maquina.NewFringeCallback("pause motor", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
			c.Motor.Send(motor.Pause())
			c.MotorTimeout.Disarm()
		}))
	}
	pausedByUser.OnEntry(entry(status.PausedByUser))
	pausedByUser.Permit(EvResume, confirmingResume)
	confirmingResume.OnEntry(entry(status.ConfirmingResume))
	confirmingResume.Permit(EvLeftButton, pausedByUser)
	for _, src := range pauseSources {
		mark := restoreMarks[src]
		confirmingResume.Permit(EvRightButton, src, guardRestore(mark))
	}
	confirmingResume.OnExitThrough(EvRightButton, maquina.NewFringeCallback("resume motor", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.Motor.Send(motor.Resume())
	}))
	pausedByUser.Permit(EvRightButtonHold, inspecting)
	pausedByUser.OnExitThrough(EvRightButtonHold, maquina.NewFringeCallback("begin inspect", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.SendMotorBatch(motor.PauseAndInspect(c.InspectRotation))
	}))
	inspecting.OnEntry(entry(status.Inspecting))
	inspecting.Permit(EvMotionCompletedOK, inspecting)
	inspecting.Permit(EvLeftButton, pausedByUser)
	inspecting.OnExitThrough(EvLeftButton, maquina.NewFringeCallback("resume from inspect", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.SendMotorBatch(motor.ResumeFromInspect(c.InspectRotation))
	}))

	// --- Cancel from Printing.* routes through AwaitingCancelation,
	// per §4.6. ---
	fringeBeginCancel := maquina.NewFringeCallback("cancel print", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.StopMotor()
		c.CancelPrint()
	})
	for _, src := range printing {
		src.Permit(EvCancel, awaitingCancel)
		src.OnExitThrough(EvCancel, fringeBeginCancel)
	}

	// EvMotionCompleted(false) is equivalent to a non-fatal motor
	// error plus an immediate cancel, per §4.6.
	fringeMotionFailed := maquina.NewFringeCallback("motion failed", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.Errors.Raise(errs.MotorError, false, "motion failed", 0, false, nil)
		c.StopMotor()
		c.CancelPrint()
	})
	for _, src := range []*mstate{pressingButton, approaching, separating} {
		src.Permit(EvMotionCompletedBad, awaitingCancel)
		src.OnExitThrough(EvMotionCompletedBad, fringeMotionFailed)
	}
	awaitingCancel.OnEntry(maquina.NewFringeCallback("AwaitingCancelation entry", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.EnterState(status.AwaitingCancelation)
		c.SendMotorBatch(motor.GoHome(true))
	}))
	awaitingCancel.Permit(EvMotionCompletedOK, home)
	awaitingCancel.Permit(EvMotionCompletedBad, home)

	// --- Door precedence: any Printing.* substate -> DoorOpen,
	// restoring the same substate on EvDoorClosed (§4.6, §8 laws). ---
	fringeDoorOpen := maquina.NewFringeCallback("door opened", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.ExposureTimer.Disarm()
		c.BlackAndUnpower()
	})
	for _, src := range printing {
		mark := restoreMarks[src]
		src.Permit(EvDoorOpened, doorOpen)
		src.OnExitThrough(EvDoorOpened, fringeDoorOpen)
		src.OnExitThrough(EvDoorOpened, fringeRemember(mark))
	}
	doorOpen.OnEntry(entry(status.DoorOpen))
	for src, mark := range restoreMarks {
		doorOpen.Permit(EvDoorClosed, src, guardRestore(mark))
	}

	// --- Fatal error: accepted in every non-terminal state, §4.6. ---
	errState.OnEntry(maquina.NewFringeCallback("Error entry", func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.StopMotor()
		c.AbortPrintProgress()
		c.Projector.ShowBlack()
		c.Projector.SetPowered(false)
		c.EnterState(status.Error)
	}))
	errState.Permit(EvReset, idle)

	sm := maquina.NewStateMachine(initializing)
	sm.AlwaysPermit(EvErrorFatal, errState)

	m := &Machine{sm: sm, ctx: ctx}
	if err := m.Fire(evBootReady); err != nil {
		return nil, err
	}
	return m, nil
}

func fringeRemember(mark status.State) *fringe {
	return maquina.NewFringeCallback("remember "+mark.String(), func(_ gocontext.Context, _ maquina.Transition[*Context], c *Context) {
		c.RestoreState = mark
	})
}

func guardRestore(mark status.State) *guard {
	return maquina.NewGuard("restore "+mark.String(), func(_ gocontext.Context, c *Context) error {
		if c.RestoreState != mark {
			return errWrongRestore
		}
		return nil
	})
}

var (
	errNoPrintData  = maquinaErr("no print data available")
	errNotLastLayer = maquinaErr("not the last layer")
	errIsLastLayer  = maquinaErr("is the last layer")
	errWrongRestore = maquinaErr("not the state to restore")
)

type maquinaErrString string

func (e maquinaErrString) Error() string { return string(e) }
func maquinaErr(s string) error          { return maquinaErrString(s) }

// Fire drives the state machine with trigger, sharing ctx as T.
func (m *Machine) Fire(trigger Trigger) error {
	return m.sm.FireBg(trigger, m.ctx)
}

// CurrentState reports the state machine's active leaf state, as
// tracked by Context's OnEntry bookkeeping.
func (m *Machine) CurrentState() status.State {
	return m.ctx.CurrentState
}
