package motor

import (
	"errors"
	"testing"
	"time"
)

func TestSeparateOmitsZeroMoves(t *testing.T) {
	s := LayerSettings{RotationMilliDeg: 0, ZLiftMicrons: 0}
	b := Separate(s)
	for _, c := range b.Commands {
		if c.Action == ActionMove {
			t.Fatalf("zero-valued move should be omitted, got %+v", c)
		}
	}
	if !b.ExpectInterrupt {
		t.Fatal("Separate must expect an interrupt")
	}
}

func TestSeparateRotatesAwayAndLifts(t *testing.T) {
	s := LayerSettings{RotationMilliDeg: 45_000, ZLiftMicrons: 2000}
	b := Separate(s)
	var gotRot, gotLift bool
	for _, c := range b.Commands {
		if c.Register == RotAction && c.Action == ActionMove {
			gotRot = true
			if c.Param >= 0 {
				t.Errorf("separate should rotate away (negative), got %d", c.Param)
			}
		}
		if c.Register == ZAction && c.Action == ActionMove {
			gotLift = true
			if c.Param != 2000 {
				t.Errorf("lift param = %d, want 2000", c.Param)
			}
		}
	}
	if !gotRot || !gotLift {
		t.Fatalf("missing expected moves: rot=%v lift=%v", gotRot, gotLift)
	}
}

func TestApproachRotatesBackAndDescends(t *testing.T) {
	s := LayerSettings{RotationMilliDeg: 45_000, ThicknessMicrons: 5000, ZLiftMicrons: 2000}
	b := Approach(s, false)
	var gotRot, gotDescend bool
	for _, c := range b.Commands {
		if c.Register == RotAction && c.Action == ActionMove {
			gotRot = true
			if c.Param <= 0 {
				t.Errorf("approach should rotate back (positive), got %d", c.Param)
			}
		}
		if c.Register == ZAction && c.Action == ActionMove {
			gotDescend = true
			if c.Param != 3000 {
				t.Errorf("descend param = %d, want 3000", c.Param)
			}
		}
	}
	if !gotRot || !gotDescend {
		t.Fatalf("missing expected moves: rot=%v descend=%v", gotRot, gotDescend)
	}
}

func TestApproachUnJamFirstPrependsRecovery(t *testing.T) {
	s := LayerSettings{RotationMilliDeg: 45_000}
	withJam := Approach(s, true)
	without := Approach(s, false)
	if len(withJam.Commands) <= len(without.Commands) {
		t.Fatal("un-jam-first approach should issue more commands than a plain approach")
	}
	if withJam.Commands[0].Register != RotAction || withJam.Commands[0].Action != ActionHome {
		t.Errorf("first command of un-jam approach should re-home the rotary axis, got %+v", withJam.Commands[0])
	}
}

func TestCommandsWithoutInterruptDontExpectOne(t *testing.T) {
	for _, b := range []Batch{Enable(), Disable(), Pause(), Resume(), ClearPending(), Stop()} {
		if b.ExpectInterrupt {
			t.Errorf("batch %+v should not expect an interrupt", b)
		}
	}
}

func TestSendStopsOnFirstFailure(t *testing.T) {
	fb := &failingBus{failAfter: 1}
	d := NewDriver(fb)
	b := Batch{Commands: []Command{
		{Register: General, Action: ActionEnable},
		{Register: General, Action: ActionDisable},
	}}
	expectInterrupt, err := d.Send(b)
	if err == nil {
		t.Fatal("want error")
	}
	if expectInterrupt {
		t.Fatal("a failed send must never expect an interrupt")
	}
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("err = %v, want wrapping ErrWriteFailed", err)
	}
	if fb.writes != 1 {
		t.Errorf("writes = %d, want 1 (stop at first failure)", fb.writes)
	}
}

func TestInitializeSleepsBetweenResetAndProgram(t *testing.T) {
	fb := &failingBus{}
	d := NewDriver(fb)
	var slept time.Duration
	err := d.Initialize(InitParams{}, func(d time.Duration) { slept = d })
	if err != nil {
		t.Fatal(err)
	}
	if slept != 500*time.Millisecond {
		t.Errorf("slept %v, want 500ms", slept)
	}
}

type failingBus struct {
	writes    int
	failAfter int // 0 = never fail
}

func (f *failingBus) Write(p []byte) error {
	f.writes++
	if f.failAfter != 0 && f.writes >= f.failAfter {
		return errors.New("bus error")
	}
	return nil
}

func (f *failingBus) ReadByte() (byte, error) {
	return byte(StatusSuccess), nil
}
