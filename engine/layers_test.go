package engine

import "testing"

func TestClassifyLayer(t *testing.T) {
	cases := []struct {
		layer   uint32
		burnIn  int
		want    LayerType
	}{
		{1, 0, LayerFirst},
		{1, 3, LayerFirst},
		{2, 0, LayerModel},
		{2, 1, LayerBurnIn},
		{2, 3, LayerBurnIn},
		{4, 3, LayerBurnIn},
		{5, 3, LayerModel},
	}
	for _, c := range cases {
		if got := ClassifyLayer(c.layer, c.burnIn); got != c.want {
			t.Errorf("ClassifyLayer(%d, %d) = %v, want %v", c.layer, c.burnIn, got, c.want)
		}
	}
}

func TestClassifyLayerRoundTrips(t *testing.T) {
	for burnIn := 0; burnIn < 5; burnIn++ {
		for layer := uint32(1); layer < 20; layer++ {
			a := ClassifyLayer(layer, burnIn)
			b := ClassifyLayer(layer, burnIn)
			if a != b {
				t.Fatalf("ClassifyLayer(%d, %d) not stable: %v != %v", layer, burnIn, a, b)
			}
		}
	}
}

func TestExposureTimerSecondsClampsAtZero(t *testing.T) {
	exposures := ExposureSeconds{First: 1.0}
	if got := ExposureTimerSeconds(exposures, LayerFirst, 2.0); got != 0 {
		t.Errorf("ExposureTimerSeconds = %v, want 0 (clamped)", got)
	}
}

func TestExposureTimerSecondsSubtractsVideoframe(t *testing.T) {
	exposures := ExposureSeconds{Model: 3.0}
	if got := ExposureTimerSeconds(exposures, LayerModel, 0.5); got != 2.5 {
		t.Errorf("ExposureTimerSeconds = %v, want 2.5", got)
	}
}

func TestEstimatedSecondsRemainingZeroWhenNoPrint(t *testing.T) {
	if got := EstimatedSecondsRemaining(0, 0, 0, ExposureSeconds{}, 1); got != 0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestEstimatedSecondsRemainingSumsRemainingLayers(t *testing.T) {
	exposures := ExposureSeconds{First: 2, BurnIn: 1.5, Model: 1}
	// layers 1..3, burnIn=1: First, BurnIn, Model -> at layer 1, remaining = 2+1.5+1 + 3*moveSeconds
	got := EstimatedSecondsRemaining(1, 3, 1, exposures, 0.5)
	const want = uint32(6) // (2 + 1.5 + 1) exposure + 3*0.5 move time, rounded
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestIsLastLayer(t *testing.T) {
	if !IsLastLayer(3, 3) {
		t.Error("want last layer true")
	}
	if IsLastLayer(2, 3) {
		t.Error("want last layer false")
	}
	if IsLastLayer(0, 0) {
		t.Error("want last layer false when no print loaded")
	}
}
