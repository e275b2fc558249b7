package projector

import (
	"errors"
	"testing"
)

type fakeDisplay struct {
	showImageErr, showBlackErr error
	powered                    bool
	poweredCalls               int
}

func (f *fakeDisplay) ShowImage(layer uint32) error { return f.showImageErr }
func (f *fakeDisplay) ShowBlack() error             { return f.showBlackErr }
func (f *fakeDisplay) ShowTestPattern() error       { return nil }
func (f *fakeDisplay) SetPowered(on bool) error {
	f.powered = on
	f.poweredCalls++
	return nil
}

func TestShowImageFailureIsReported(t *testing.T) {
	d := &fakeDisplay{showImageErr: errors.New("boom")}
	f := New(d)
	if err := f.ShowImage(3); err == nil {
		t.Fatal("want error")
	}
}

func TestShowBlackFailurePowersOff(t *testing.T) {
	d := &fakeDisplay{showBlackErr: errors.New("boom"), powered: true}
	f := New(d)
	f.powered = true
	if err := f.ShowBlack(); err == nil {
		t.Fatal("want error")
	}
	if d.powered {
		t.Fatal("show_black failure must power off the projector")
	}
	if f.Powered() {
		t.Fatal("facade should reflect the forced power-off")
	}
}

func TestSetPoweredIsFireAndForget(t *testing.T) {
	d := &fakeDisplay{}
	f := New(d)
	f.SetPowered(true)
	if !d.powered {
		t.Fatal("want display powered")
	}
	if d.poweredCalls != 1 {
		t.Fatalf("poweredCalls = %d, want 1", d.poweredCalls)
	}
	if !f.Powered() {
		t.Fatal("facade should reflect the requested power state")
	}
}
