package engine

import (
	"fmt"
	"log"
	"time"

	"printengine.dev/errs"
	"printengine.dev/motor"
	"printengine.dev/projector"
	"printengine.dev/status"
	"printengine.dev/timer"
)

// Settings is the narrow slice of the settings store the engine reads
// on every print-start and layer transition. Concrete values come from
// internal/settings.Store; this interface lets tests supply fakes
// without a filesystem.
type Settings interface {
	Float(key string, def float64) float64
	Int(key string, def int) int
}

// PrintData is the narrow slice of the print-data manager the engine
// needs once a print is running.
type PrintData interface {
	NumLayers() uint32
	Clear() error
}

// PendingSetting is one (setting_key, command_template) pair of the
// ordered pending-settings list of spec §3: consumed one at a time at
// print start, each dispatching a motor write and awaiting
// EvGotSetting before the next is sent. Context.SettingTemplates holds
// the static, ordered declaration of these pairs; PendingSettings
// holds the in-flight queue built from it at BeginPrint.
type PendingSetting struct {
	Key      string
	Template motor.SettingTemplate
}

// Context is the narrow capability the state machine's guards,
// fringe callbacks, and the event router share — never a back-
// reference to an "Engine" type, per the dependency-inversion note in
// spec §9. It is the sole data value (T) shared by every
// maquina.State[*Context] node.
type Context struct {
	Motor      *motor.Driver
	Projector  *projector.Facade
	Status     *status.Publisher
	Settings   Settings
	PrintData  PrintData
	Errors     *errs.Handler

	ExposureTimer *timer.Timer
	MotorTimeout  *timer.Timer

	MotorTimeoutSeconds float64
	VideoframeSeconds   float64
	HardwareRev         int
	PerLayerMoveSeconds float64

	// SettingTemplates is the ordered declaration of which settings
	// keys get dispatched to the motor board at print start and in
	// what order, per spec §3's "ordered collection of (setting_key,
	// command_template) pairs" — a slice, not a map, so dispatch order
	// (and thus which ack the board sees first) is deterministic.
	SettingTemplates []PendingSetting

	// Published mirror (spec §3's PrinterStatus).
	CurrentLayer uint32
	NumLayers    uint32
	UISubstate   status.UISubstate

	// CurrentState mirrors the state machine's active leaf state,
	// kept up to date by every state's OnEntry fringe callback. Guards
	// read it because maquina's generic Guard only receives the data
	// value, not the source state.
	CurrentState status.State

	// RestoreState is the Printing.* leaf to return to on EvDoorClosed.
	RestoreState status.State

	PendingSettings []PendingSetting
	UnJamNext       bool
	InspectRotation int32

	pendingFaults []errs.Code
	pendingEvents []Trigger
	log           *log.Logger
}

// NewContext wires the given collaborators into a fresh Context. The
// motor/projector/status/settings/print-data handles must already be
// open; Context never owns their lifecycle.
func NewContext(m *motor.Driver, p *projector.Facade, st *status.Publisher, settings Settings, pd PrintData, logger *log.Logger) *Context {
	if logger == nil {
		logger = log.Default()
	}
	c := &Context{
		Motor:         m,
		Projector:     p,
		Status:        st,
		Settings:      settings,
		PrintData:     pd,
		ExposureTimer: timer.New(),
		MotorTimeout:  timer.New(),
		CurrentState:  status.Initializing,
		log:           logger,
	}
	c.Errors = errs.NewHandler(c, logger)
	return c
}

// --- errs.Sink ---

// RaiseError publishes code as the next status record's latched error,
// per §4.5 — exactly one record carries is_error=true.
func (c *Context) RaiseError(code errs.Code, errno int32) {
	c.publish(c.CurrentState, status.NoChange, status.Record{ErrorCode: code, Errno: errno, IsError: true})
}

// RaiseFault enqueues a fatal-fault trigger for the router to dispatch
// ahead of every other source, per §5's fatal-error-injection
// priority. Enqueuing instead of firing directly lets Raise be called
// safely from inside a fringe callback already running under a Fire.
func (c *Context) RaiseFault(code errs.Code) {
	c.pendingFaults = append(c.pendingFaults, code)
}

// PopFault removes and returns the oldest enqueued fault, for the
// router's drain loop.
func (c *Context) PopFault() (errs.Code, bool) {
	if len(c.pendingFaults) == 0 {
		return 0, false
	}
	code := c.pendingFaults[0]
	c.pendingFaults = c.pendingFaults[1:]
	return code, true
}

// enqueueSelf queues a trigger the engine synthesizes for itself —
// currently only EvGotSetting, once a pending-settings write is known
// to have gone out over the wire — for the router to fire on its next
// tick. Queued for the same reason as RaiseFault: a fringe callback
// already running under Fire must never call Fire again directly.
func (c *Context) enqueueSelf(t Trigger) {
	c.pendingEvents = append(c.pendingEvents, t)
}

// PopSelfEvent removes and returns the oldest self-synthesized
// trigger, for the router's drain loop.
func (c *Context) PopSelfEvent() (Trigger, bool) {
	if len(c.pendingEvents) == 0 {
		return "", false
	}
	t := c.pendingEvents[0]
	c.pendingEvents = c.pendingEvents[1:]
	return t, true
}

// --- status publication ---

func (c *Context) publish(state status.State, change status.Change, errFields status.Record) {
	r := errFields
	r.State = state
	r.Change = change
	r.UISubstate = c.UISubstate
	r.CurrentLayer = c.CurrentLayer
	r.NumLayers = c.NumLayers
	r.EstimatedSecondsRemaining = c.estimatedRemaining()
	if err := c.Status.Send(r); err != nil {
		c.log.Printf("WARNING: status publish: %v", err)
	}
}

// EnterState records state as current, publishes its Entering record,
// and is called from every leaf state's OnEntry fringe callback.
func (c *Context) EnterState(state status.State) {
	c.CurrentState = state
	c.publish(state, status.Entering, status.Record{})
}

// LeaveState publishes a Leaving record ahead of a transition, called
// from OnExitThrough where a specific departure needs to be observed
// (door-open, cancel).
func (c *Context) LeaveState(state status.State) {
	c.publish(state, status.Leaving, status.Record{})
}

func (c *Context) estimatedRemaining() uint32 {
	exposures := c.exposureSeconds()
	return EstimatedSecondsRemaining(c.CurrentLayer, c.NumLayers, c.burnInLayers(), exposures, c.PerLayerMoveSeconds)
}

func (c *Context) burnInLayers() int {
	return c.Settings.Int("burn_in_layers", 0)
}

func (c *Context) exposureSeconds() ExposureSeconds {
	return ExposureSeconds{
		First:  c.Settings.Float("first_exposure", 0),
		BurnIn: c.Settings.Float("burn_in_exposure", 0),
		Model:  c.Settings.Float("model_exposure", 0),
	}
}

func (c *Context) currentLayerType() LayerType {
	return ClassifyLayer(c.CurrentLayer, c.burnInLayers())
}

// --- motor ---

// SendMotorBatch transmits b and, only on a successful send that
// expects an interrupt, arms the motor-timeout watchdog per §4.6's
// "every motor batch that requests an interrupt must be preceded by
// arming the motor-timeout timer" rule (armed just after, since the
// send itself is synchronous and cannot be preceded by the arm without
// racing a same-call failure).
func (c *Context) SendMotorBatch(b motor.Batch) {
	expectInterrupt, err := c.Motor.Send(b)
	if err != nil {
		c.Errors.Raise(errs.MotorError, true, err.Error(), 0, false, err)
		return
	}
	if expectInterrupt {
		c.MotorTimeout.Arm(seconds(c.MotorTimeoutSeconds))
	}
}

// StopMotor sends STOP and disarms the motor-timeout watchdog, per the
// fatal-error precedence in §4.6.
func (c *Context) StopMotor() {
	c.Motor.Send(motor.Stop())
	c.MotorTimeout.Disarm()
}

// CancelPrint disarms the exposure timer, resets current/num layers to
// zero, and clears the loaded (active) print data, per the Cancel event's
// effect and a failed-motion cancel. Never call this from the fatal-
// error path — use AbortPrintProgress there instead, since §7
// requires print data to survive a Fatal.
func (c *Context) CancelPrint() {
	c.resetPrintProgress()
	if err := c.PrintData.Clear(); err != nil {
		c.log.Printf("WARNING: print data clear: %v", err)
	}
}

// AbortPrintProgress disarms the exposure timer and resets
// current/num layers to zero without touching print data, for the
// fatal-error path: §7 states that on Fatal "no print data touched",
// since the staged print must still be resumable once the fault is
// cleared and the machine is reset.
func (c *Context) AbortPrintProgress() {
	c.resetPrintProgress()
}

func (c *Context) resetPrintProgress() {
	c.ExposureTimer.Disarm()
	c.NumLayers = 0
	c.CurrentLayer = 0
}

// --- projector ---

// BlackAndUnpower blanks the projector and powers it off, the safety
// action required on EvDoorOpened and on the fatal-error path. A
// failure to blank is itself fatal, per §4.3.
func (c *Context) BlackAndUnpower() {
	if err := c.Projector.ShowBlack(); err != nil {
		c.Errors.Raise(errs.CantShowBlack, true, err.Error(), 0, false, err)
		return
	}
	c.Projector.SetPowered(false)
}

// --- exposure sequencing ---

// BeginExposure computes the exposure duration for the current layer,
// displays it, and arms the exposure timer, per §4.6's exposure
// sequencing. A failure to display is fatal.
func (c *Context) BeginExposure() {
	d := ExposureTimerSeconds(c.exposureSeconds(), c.currentLayerType(), c.VideoframeSeconds)
	if err := c.Projector.ShowImage(c.CurrentLayer); err != nil {
		c.Errors.Raise(errs.CantShowImage, true, err.Error(), 0, false, err)
		return
	}
	c.ExposureTimer.Arm(seconds(d))
}

// FinishExposure blanks the projector, then issues the Separate batch
// expecting a motor interrupt, on EvExposed.
func (c *Context) FinishExposure() {
	if err := c.Projector.ShowBlack(); err != nil {
		c.Errors.Raise(errs.CantShowBlack, true, err.Error(), 0, false, err)
		return
	}
	c.SendMotorBatch(motor.Separate(c.layerSettings()))
}

func (c *Context) layerSettings() motor.LayerSettings {
	return motor.LayerSettings{
		Jerk:                 uint32(c.Settings.Int("jerk", 0)),
		ZSpeed:               uint32(c.Settings.Int("z_speed", 0)),
		ZMicrostepping:       uint32(c.Settings.Int("z_microstepping", 0)),
		ZUnitsPerRevMicrons:  uint32(c.Settings.Int("z_units_per_rev_microns", 0)),
		RSpeed:               uint32(c.Settings.Int("r_speed", 0)),
		RMicrostepping:       uint32(c.Settings.Int("r_microstepping", 0)),
		RUnitsPerRevMilliDeg: uint32(c.Settings.Int("r_units_per_rev_millideg", 0)),
		RotationMilliDeg:     int32(c.Settings.Int("separation_rotation_millideg", 0)),
		ThicknessMicrons:     uint32(c.Settings.Int("layer_thickness_microns", 0)),
		ZLiftMicrons:         uint32(c.Settings.Int("z_lift_microns", 0)),
	}
}

// --- layer advancement ---

// IssueApproach sends the Approach batch for the current layer.
func (c *Context) IssueApproach() {
	unJam := c.UnJamNext
	c.UnJamNext = false
	c.SendMotorBatch(motor.Approach(c.layerSettings(), unJam))
}

// FinishPrint sends the end-of-print GoHome batch, called when
// Separate completes on the last layer.
func (c *Context) FinishPrint() {
	c.SendMotorBatch(motor.GoHome(true))
}

// AdvanceLayer moves current_layer to the next one, called when
// Separate completes on a non-final layer, ahead of IssueApproach.
func (c *Context) AdvanceLayer() {
	c.CurrentLayer++
}

// OnLastLayer reports whether CurrentLayer is the print's final layer.
func (c *Context) OnLastLayer() bool {
	return IsLastLayer(c.CurrentLayer, c.NumLayers)
}

// BeginPrint loads the layer count, builds the pending-settings list,
// and reports whether a print can start at all (NoPrintDataAvailable
// otherwise, non-fatal, per scenario 1).
func (c *Context) BeginPrint() bool {
	n := c.PrintData.NumLayers()
	if n == 0 {
		c.Errors.Raise(errs.NoPrintDataAvailable, false, "", 0, false, nil)
		return false
	}
	c.NumLayers = n
	c.CurrentLayer = 0
	c.PendingSettings = c.buildPendingSettings()
	return true
}

func (c *Context) buildPendingSettings() []PendingSetting {
	out := make([]PendingSetting, len(c.SettingTemplates))
	copy(out, c.SettingTemplates)
	return out
}

// SendNextPendingSetting pops and transmits pending-settings entries
// until one is actually sent (awaiting that one's ack), or — if the
// list empties without sending anything — issues GoToStartPosition
// and returns false to tell the caller the handshake is over. Entries
// that fail their range check are skipped without being sent (spec
// §9's open question: capture the key before popping, skip the send,
// keep the pipeline moving) rather than aborting the whole print. A
// send that fails to transmit raises a fatal MotorError instead of
// synthesizing EvGotSetting, per §4.2: the handshake must not proceed
// as if the board acknowledged a setting it never received.
func (c *Context) SendNextPendingSetting() (more bool) {
	for len(c.PendingSettings) > 0 {
		next := c.PendingSettings[0]
		c.PendingSettings = c.PendingSettings[1:]
		value := c.Settings.Int(next.Key, 0)
		if err := validateSettingRange(next.Key, value); err != nil {
			c.Errors.Raise(errs.SeparationRpmOutOfRange, false, next.Key, int32(value), true, nil)
			continue
		}
		_, err := c.Motor.Send(motor.SendSetting(next.Template, uint32(value)))
		if err != nil {
			c.Errors.Raise(errs.MotorError, true, err.Error(), 0, false, err)
			return true
		}
		c.enqueueSelf(EvGotSetting)
		return true
	}
	c.CurrentLayer = 1
	c.SendMotorBatch(motor.GoToStartPosition(int32(c.Settings.Int("start_height_microns", 0))))
	return false
}

// validateSettingRange is the guard spec §9 calls out by name
// ("SeparationRpmOutOfRange"): the only pending-settings key with a
// documented bound is the separation rotation speed.
func validateSettingRange(key string, value int) error {
	if key == "separation_rpm" && (value < 0 || value > 600) {
		return fmt.Errorf("separation_rpm %d out of range", value)
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
