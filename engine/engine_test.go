package engine

import (
	"testing"

	"printengine.dev/errs"
	"printengine.dev/motor"
	"printengine.dev/status"
)

func bootToHome(t *testing.T, m *Machine) {
	t.Helper()
	if err := m.Fire(EvConnected); err != nil {
		t.Fatalf("EvConnected: %v", err)
	}
	if err := m.Fire(EvRegistered); err != nil {
		t.Fatalf("EvRegistered: %v", err)
	}
	if got := m.CurrentState(); got != status.Home {
		t.Fatalf("after boot, state = %v, want Home", got)
	}
}

// Scenario 1: starting without print data loaded stays in Home and
// raises NoPrintDataAvailable as non-fatal.
func TestStartWithoutPrintDataStaysHome(t *testing.T) {
	bus := &fakeBus{}
	disp := &fakeDisplay{}
	pd := &fakePrintData{numLayers: 0}
	ctx := newTestContext(t, bus, disp, newFakeSettings(), pd)
	m, err := NewMachine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	bootToHome(t, m)

	if err := m.Fire(EvStartPrint); err == nil {
		t.Fatal("want rejected transition when no print data is loaded")
	}
	if got := m.CurrentState(); got != status.Home {
		t.Fatalf("state = %v, want Home", got)
	}
}

// Scenario 2: a happy 3-layer print advances current_layer 0->1->2->3->0,
// classifies layer types First/BurnIn/Model, and ends back in Home.
func TestHappyThreeLayerPrint(t *testing.T) {
	bus := &fakeBus{}
	disp := &fakeDisplay{}
	settings := newFakeSettings()
	settings.ints["burn_in_layers"] = 1
	settings.floats["first_exposure"] = 2.0
	settings.floats["burn_in_exposure"] = 1.5
	settings.floats["model_exposure"] = 1.0
	pd := &fakePrintData{numLayers: 3}
	ctx := newTestContext(t, bus, disp, settings, pd)
	m, err := NewMachine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	bootToHome(t, m)

	fire := func(tr Trigger) {
		t.Helper()
		if err := m.Fire(tr); err != nil {
			t.Fatalf("Fire(%v) in state %v: %v", tr, m.CurrentState(), err)
		}
	}

	fire(EvStartPrint) // -> PressingButton, issues GoToStartPosition
	if got := m.CurrentState(); got != status.PressingButton {
		t.Fatalf("state = %v, want PressingButton", got)
	}

	for layer := uint32(1); layer <= 3; layer++ {
		fire(EvMotionCompletedOK) // start-position ack (layer 1) or approach ack (layer 2,3)
		if layer == 1 {
			if got := m.CurrentState(); got != status.Approaching {
				t.Fatalf("layer %d: state = %v, want Approaching", layer, got)
			}
			fire(EvMotionCompletedOK) // approach L1 ack
		}
		if got := m.CurrentState(); got != status.Exposing {
			t.Fatalf("layer %d: state = %v, want Exposing", layer, got)
		}
		if got := ctx.CurrentLayer; got != layer {
			t.Fatalf("layer %d: CurrentLayer = %d", layer, got)
		}
		fire(EvExposed)
		if got := m.CurrentState(); got != status.Separating {
			t.Fatalf("layer %d: state = %v, want Separating", layer, got)
		}
		fire(EvMotionCompletedOK)
	}

	if got := m.CurrentState(); got != status.Home {
		t.Fatalf("final state = %v, want Home", got)
	}
	if got := ctx.CurrentLayer; got != 0 {
		t.Fatalf("final CurrentLayer = %d, want 0", got)
	}
	wantLayers := []uint32{1, 2, 3}
	if len(disp.shownLayers) != len(wantLayers) {
		t.Fatalf("shownLayers = %v, want %v", disp.shownLayers, wantLayers)
	}
	for i, l := range wantLayers {
		if disp.shownLayers[i] != l {
			t.Errorf("shownLayers[%d] = %d, want %d", i, disp.shownLayers[i], l)
		}
	}
	wantTypes := []LayerType{LayerFirst, LayerBurnIn, LayerModel}
	for i, l := range wantLayers {
		if got := ClassifyLayer(l, 1); got != wantTypes[i] {
			t.Errorf("ClassifyLayer(%d, 1) = %v, want %v", l, got, wantTypes[i])
		}
	}
}

// Scenario 3: a motor-timeout watchdog fire is fatal, stops the motor,
// and blanks the projector.
func TestMotorTimeoutIsFatal(t *testing.T) {
	bus := &fakeBus{}
	disp := &fakeDisplay{}
	settings := newFakeSettings()
	settings.floats["model_exposure"] = 1.0
	pd := &fakePrintData{numLayers: 1}
	ctx := newTestContext(t, bus, disp, settings, pd)
	m, err := NewMachine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	bootToHome(t, m)
	must(t, m.Fire(EvStartPrint))
	must(t, m.Fire(EvMotionCompletedOK)) // start-position ack -> Approaching
	must(t, m.Fire(EvMotionCompletedOK)) // approach ack -> Exposing
	must(t, m.Fire(EvExposed))           // -> Separating, motor-timeout armed

	// Watchdog fires: the router raises MotorTimeoutError fatal, which
	// enqueues a fault that the router's drain loop pops and dispatches
	// ahead of any other event.
	ctx.Errors.Raise(errs.MotorTimeoutError, true, "watchdog fired", 0, false, nil)
	if _, ok := ctx.PopFault(); !ok {
		t.Fatal("want a fault enqueued by the fatal raise")
	}
	if err := m.Fire(EvErrorFatal); err != nil {
		t.Fatalf("EvErrorFatal: %v", err)
	}

	if got := m.CurrentState(); got != status.Error {
		t.Fatalf("state = %v, want Error", got)
	}
	if !bus.sawStop() {
		t.Error("want STOP sent to motor board")
	}
	if disp.blackCalls == 0 {
		t.Error("want projector blanked")
	}
	if disp.powered {
		t.Error("want projector powered off")
	}
	if pd.clearCalls != 0 {
		t.Errorf("clearCalls = %d, want 0: fatal path must not touch print data", pd.clearCalls)
	}
}

// Scenario 4: the door opening mid-exposure disarms the exposure
// timer, blanks the projector, and restores the same substate on
// close without advancing the layer.
func TestDoorOpensMidExposure(t *testing.T) {
	bus := &fakeBus{}
	disp := &fakeDisplay{}
	settings := newFakeSettings()
	settings.ints["burn_in_layers"] = 0
	settings.floats["model_exposure"] = 1.0
	pd := &fakePrintData{numLayers: 3}
	ctx := newTestContext(t, bus, disp, settings, pd)
	m, err := NewMachine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	bootToHome(t, m)
	must(t, m.Fire(EvStartPrint))
	must(t, m.Fire(EvMotionCompletedOK)) // -> Approaching(1)
	must(t, m.Fire(EvMotionCompletedOK)) // -> Exposing(1)
	must(t, m.Fire(EvExposed))           // -> Separating(1)
	must(t, m.Fire(EvMotionCompletedOK)) // -> Approaching(2)
	must(t, m.Fire(EvMotionCompletedOK)) // -> Exposing(2)

	if got := ctx.CurrentLayer; got != 2 {
		t.Fatalf("CurrentLayer = %d, want 2", got)
	}
	if !ctx.ExposureTimer.Armed() {
		t.Fatal("want exposure timer armed before door opens")
	}

	must(t, m.Fire(EvDoorOpened))
	if ctx.ExposureTimer.Armed() {
		t.Error("want exposure timer disarmed on door open")
	}
	if disp.blackCalls == 0 {
		t.Error("want projector blanked on door open")
	}
	if disp.powered {
		t.Error("want projector powered off on door open")
	}
	if got := m.CurrentState(); got != status.DoorOpen {
		t.Fatalf("state = %v, want DoorOpen", got)
	}

	must(t, m.Fire(EvDoorClosed))
	if got := m.CurrentState(); got != status.Exposing {
		t.Fatalf("state = %v, want Exposing (restored)", got)
	}
	if got := ctx.CurrentLayer; got != 2 {
		t.Fatalf("CurrentLayer after door closed = %d, want 2 (no spurious advance)", got)
	}
	if len(disp.shownLayers) != 2 {
		t.Errorf("want exposure not resumed (no re-show), shownLayers = %v", disp.shownLayers)
	}
}

// The settings handshake (one EvGotSetting per pending entry, per
// scenario 2) advances through the router's self-event drain, not a
// direct recursive Fire from inside a fringe callback.
func TestSettingsHandshakeAdvancesViaRouterSelfEvents(t *testing.T) {
	bus := &fakeBus{}
	disp := &fakeDisplay{}
	settings := newFakeSettings()
	settings.ints["jerk"] = 5
	pd := &fakePrintData{numLayers: 1}
	ctx := newTestContext(t, bus, disp, settings, pd)
	ctx.SettingTemplates = []PendingSetting{
		{Key: "jerk", Template: motor.SettingTemplate{Register: motor.RotSettings, Action: motor.ActionJerk}},
	}
	m, err := NewMachine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	bootToHome(t, m)

	must(t, m.Fire(EvStartPrint))
	if got := m.CurrentState(); got != status.PressingButton {
		t.Fatalf("state = %v, want PressingButton", got)
	}
	if len(bus.writes) != 1 {
		t.Fatalf("writes after start = %d, want 1 (the setting write)", len(bus.writes))
	}
	if ctx.CurrentLayer != 0 {
		t.Fatalf("CurrentLayer = %d before the handshake drains, want 0", ctx.CurrentLayer)
	}

	r := NewRouter(m, ctx, nil, nil, nil, nil, nil, nil, nil)
	if exit := r.tick(); exit {
		t.Fatal("unexpected exit")
	}

	if got := m.CurrentState(); got != status.PressingButton {
		t.Fatalf("state after drain = %v, want still PressingButton", got)
	}
	if ctx.CurrentLayer != 1 {
		t.Fatalf("CurrentLayer after drain = %d, want 1 (GoToStartPosition issued)", ctx.CurrentLayer)
	}
	if len(bus.writes) < 2 {
		t.Fatalf("writes after drain = %d, want at least 2", len(bus.writes))
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func (b *fakeBus) sawStop() bool {
	for _, w := range b.writes {
		if len(w) >= 1 && w[0]>>4 == 0 && w[0]&0x0F == 5 { // General/ActionReset
			return true
		}
	}
	return false
}
