package engine

import (
	"fmt"
	"log"
	"strconv"

	"printengine.dev/errs"
	"printengine.dev/internal/printdata"
	"printengine.dev/internal/settings"
	"printengine.dev/motor"
)

// CommandMsg is a single parsed upstream command, with the optional
// key/value payload GetSetting/SetSetting/RestoreSetting carry.
type CommandMsg struct {
	Cmd   Command
	Key   string
	Value string
}

// Router owns the main wait loop of spec §5/§4.7: it multiplexes the
// six event sources into state-machine triggers, applying the fixed
// priority order of §5 whenever more than one source is ready in the
// same wake-up: fatal-error-injection > self-synthesized events
// (settings handshake) > motor-timeout > door > motor-interrupt >
// exposure-timer > button > command.
type Router struct {
	machine *Machine
	ctx     *Context

	doorCh     <-chan DoorRaw
	motorIntCh <-chan struct{}
	buttonCh   <-chan ButtonRaw
	cmdCh      <-chan CommandMsg
	quit       chan struct{}

	settingsStore *settings.Store
	printData     *printdata.Manager
	log           *log.Logger
}

// NewRouter wires machine's event sources. doorCh, motorIntCh, and
// buttonCh are fed by GPIO-reading goroutines (driver/gpioinput);
// cmdCh by the upstream command parser; neither is owned by Router.
func NewRouter(m *Machine, ctx *Context, doorCh <-chan DoorRaw, motorIntCh <-chan struct{}, buttonCh <-chan ButtonRaw, cmdCh <-chan CommandMsg, store *settings.Store, pd *printdata.Manager, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		machine:       m,
		ctx:           ctx,
		doorCh:        doorCh,
		motorIntCh:    motorIntCh,
		buttonCh:      buttonCh,
		cmdCh:         cmdCh,
		quit:          make(chan struct{}),
		settingsStore: store,
		printData:     pd,
		log:           logger,
	}
}

// Stop ends Run's loop after its current iteration.
func (r *Router) Stop() {
	close(r.quit)
}

// Run blocks, dispatching events until Stop is called or a CmdExit
// command is processed.
func (r *Router) Run() error {
	for {
		select {
		case <-r.quit:
			return nil
		default:
		}
		if done := r.tick(); done {
			return nil
		}
	}
}

// tick dispatches exactly one event, applying §5's fixed priority: a
// non-blocking pass peels off whichever of the higher-priority sources
// is already ready; only if none are does it fall into a single
// blocking select across everything.
func (r *Router) tick() (exit bool) {
	if code, ok := r.ctx.PopFault(); ok {
		r.fireFatal(code)
		return false
	}
	if trigger, ok := r.ctx.PopSelfEvent(); ok {
		r.fireMachine(trigger)
		return false
	}
	select {
	case <-r.ctx.MotorTimeout.C():
		r.onMotorTimeout()
		return false
	default:
	}
	select {
	case raw := <-r.doorCh:
		r.onDoor(raw)
		return false
	default:
	}
	select {
	case <-r.motorIntCh:
		r.onMotorInterrupt()
		return false
	default:
	}
	select {
	case <-r.ctx.ExposureTimer.C():
		r.onExposed()
		return false
	default:
	}
	select {
	case raw := <-r.buttonCh:
		r.onButton(raw)
		return false
	default:
	}
	select {
	case cmd := <-r.cmdCh:
		return r.onCommand(cmd)
	default:
	}

	// Nothing was ready; block until something is. Re-applying the
	// priority order here isn't possible with a single select, but any
	// source that races in during this wait gets its own iteration
	// next time through tick(), and the non-blocking pass above always
	// runs first on that next iteration.
	select {
	case <-r.ctx.MotorTimeout.C():
		r.onMotorTimeout()
	case raw := <-r.doorCh:
		r.onDoor(raw)
	case <-r.motorIntCh:
		r.onMotorInterrupt()
	case <-r.ctx.ExposureTimer.C():
		r.onExposed()
	case raw := <-r.buttonCh:
		r.onButton(raw)
	case cmd := <-r.cmdCh:
		return r.onCommand(cmd)
	case <-r.quit:
		return true
	}
	return false
}

// fireFatal dispatches a fault already raised (logged, published, and
// enqueued) by errs.Handler.Raise; it must not raise it again.
func (r *Router) fireFatal(code errs.Code) {
	if err := r.machine.Fire(EvErrorFatal); err != nil {
		r.log.Printf("WARNING: fatal-fault transition (%s) rejected: %v", errs.Name(code), err)
	}
}

// onMotorTimeout raises MotorTimeoutError as fatal; the fault it
// enqueues is dispatched by the next tick's drain.
func (r *Router) onMotorTimeout() {
	r.ctx.Errors.Raise(errs.MotorTimeoutError, true, "", 0, false, nil)
}

func (r *Router) onDoor(raw DoorRaw) {
	var trigger Trigger
	if raw.Closed(r.ctx.HardwareRev) {
		trigger = EvDoorClosed
	} else {
		trigger = EvDoorOpened
	}
	if err := r.machine.Fire(trigger); err != nil {
		r.log.Printf("door event %q: %v", trigger, err)
	}
}

func (r *Router) onMotorInterrupt() {
	status, err := r.ctx.Motor.ReadStatus()
	if err != nil {
		r.ctx.Errors.Raise(errs.MotorError, true, err.Error(), 0, false, err)
		return
	}
	switch status {
	case motor.StatusSuccess:
		r.fireMachine(EvMotionCompletedOK)
	case motor.StatusErrorStatus:
		r.fireMachine(EvMotionCompletedBad)
	default:
		r.ctx.Errors.Raise(errs.UnknownMotorStatus, false, fmt.Sprintf("status=0x%02x", status), int32(status), true, nil)
	}
}

func (r *Router) onExposed() {
	r.fireMachine(EvExposed)
}

func (r *Router) onButton(raw ButtonRaw) {
	if raw.IsErrorStatus() {
		r.ctx.Errors.Raise(errs.FrontPanelError, false, fmt.Sprintf("status=0x%02x", byte(raw)), int32(raw), false, nil)
		return
	}
	trigger, ok := raw.Decode()
	if !ok {
		return
	}
	r.fireMachine(trigger)
}

// onCommand handles commands the state machine itself consumes
// directly; everything else is answered by the settings store or
// print-data manager and is a no-op for the state machine, per §6.
func (r *Router) onCommand(cmd CommandMsg) (exit bool) {
	switch cmd.Cmd {
	case CmdStart:
		r.fireMachine(EvStartPrint)
	case CmdCancel:
		r.fireMachine(EvCancel)
	case CmdPause:
		r.fireMachine(EvPause)
	case CmdResume:
		r.fireMachine(EvResume)
	case CmdReset:
		r.fireMachine(EvReset)
	case CmdStartRegistering:
		r.fireMachine(EvConnected)
	case CmdRegistrationSucceeded:
		r.fireMachine(EvRegistered)
	case CmdTest:
		if err := r.ctx.Projector.ShowTestPattern(); err != nil {
			r.ctx.Errors.Raise(errs.CantShowImage, false, err.Error(), 0, false, err)
		}
	case CmdRefreshSettings:
		if err := r.settingsStore.Reload(); err != nil {
			r.ctx.Errors.Raise(errs.CantLoadPrintSettingsFile, false, err.Error(), 0, false, err)
		}
	case CmdSetSetting:
		if f, err := strconv.ParseFloat(cmd.Value, 64); err == nil {
			r.settingsStore.SetFloat(cmd.Key, f)
		} else {
			r.settingsStore.SetString(cmd.Key, cmd.Value)
		}
	case CmdRestoreSetting:
		r.settingsStore.Restore(cmd.Key)
	case CmdApplyPrintSettings:
		if err := r.settingsStore.Persist(); err != nil {
			r.ctx.Errors.Raise(errs.CantLoadPrintSettingsFile, false, err.Error(), 0, false, err)
		}
	case CmdProcessPrintData:
		if _, err := r.printData.Validate(); err != nil {
			r.ctx.Errors.Raise(errs.InvalidPrintData, false, err.Error(), 0, false, err)
			return false
		}
		if err := r.printData.Activate(); err != nil {
			r.ctx.Errors.Raise(errs.PrintDataStageError, false, err.Error(), 0, false, err)
		}
	case CmdExit:
		return true
	}
	// CmdGetStatus, CmdGetSetting, CmdStartPrintDataLoad, CmdGetLogs,
	// CmdSetFirmware, CmdGetFWVersion, CmdGetBoardNum are answered by
	// other layers and are no-ops for the state machine, per §6.
	return false
}

func (r *Router) fireMachine(trigger Trigger) {
	if err := r.machine.Fire(trigger); err != nil {
		r.log.Printf("event %q rejected in state %v: %v", trigger, r.ctx.CurrentState, err)
	}
}
