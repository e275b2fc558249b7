package engine

import (
	"fmt"
	"log"
	"time"

	"printengine.dev/internal/printdata"
	"printengine.dev/internal/settings"
	"printengine.dev/motor"
	"printengine.dev/projector"
	"printengine.dev/status"
)

// Config bundles the per-axis and timing parameters read once at
// bring-up, distinct from the tunable settings the Settings store
// exposes at runtime.
type Config struct {
	Motor               motor.InitParams
	MotorTimeoutSeconds float64
	VideoframeSeconds   float64
	HardwareRev         int
	PerLayerMoveSeconds float64

	// SettingTemplates is the ordered (setting_key, command_template)
	// list dispatched at print start, per spec §3; order is
	// significant (see Context.SettingTemplates).
	SettingTemplates []PendingSetting
	StatusFIFOPath   string
}

// Engine is the assembled print-engine core: the Context, the state
// machine built over it, and the event router. Build one with New,
// then call Run.
type Engine struct {
	ctx     *Context
	machine *Machine
	router  *Router
}

// New performs bring-up (§5: motor.Initialize's blocking 500ms region
// happens here, before the router starts accepting events) and
// assembles the engine. A failure here is unrecoverable per §7 and
// must terminate the process after logging.
func New(cfg Config, bus motor.Bus, display projector.Display, settingsStore *settings.Store, printData *printdata.Manager, doorCh <-chan DoorRaw, motorIntCh <-chan struct{}, buttonCh <-chan ButtonRaw, cmdCh <-chan CommandMsg, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}

	st, err := status.Open(cfg.StatusFIFOPath)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	driver := motor.NewDriver(bus)
	if err := driver.Initialize(cfg.Motor, time.Sleep); err != nil {
		return nil, fmt.Errorf("engine: bring-up: %w", err)
	}

	ctx := NewContext(driver, projector.New(display), st, settingsStore, printData, logger)
	ctx.MotorTimeoutSeconds = cfg.MotorTimeoutSeconds
	ctx.VideoframeSeconds = cfg.VideoframeSeconds
	ctx.HardwareRev = cfg.HardwareRev
	ctx.PerLayerMoveSeconds = cfg.PerLayerMoveSeconds
	ctx.SettingTemplates = cfg.SettingTemplates

	machine, err := NewMachine(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: state machine bring-up: %w", err)
	}

	router := NewRouter(machine, ctx, doorCh, motorIntCh, buttonCh, cmdCh, settingsStore, printData, logger)
	return &Engine{ctx: ctx, machine: machine, router: router}, nil
}

// Run blocks in the event loop until Stop is called or a CmdExit
// command arrives.
func (e *Engine) Run() error {
	return e.router.Run()
}

// Stop ends Run and performs the exit sequence of §6: disable motors,
// power off the projector, remove the status FIFO.
func (e *Engine) Stop() {
	e.router.Stop()
	e.ctx.Motor.Send(motor.Disable())
	e.ctx.Projector.SetPowered(false)
	if err := e.ctx.Status.Close(); err != nil {
		e.ctx.log.Printf("WARNING: status fifo close: %v", err)
	}
}

// CurrentState reports the engine's published coarse state.
func (e *Engine) CurrentState() status.State {
	return e.machine.CurrentState()
}
