package fingerprint

import (
	"math"
	"testing"
)

func TestPathLossRoundTrip(t *testing.T) {
	m := PathLossModel{TxPowerDBm: -40, Exponent: 2.4}
	for _, d := range []float64{0.5, 1, 3, 10, 75} {
		rssi := m.RSSI(d)
		back := m.Distance(rssi)
		if math.Abs(back-d)/d > 1e-9 {
			t.Errorf("distance %v round-tripped to %v", d, back)
		}
	}
}

func TestPathLossReferenceDistance(t *testing.T) {
	m := PathLossModel{TxPowerDBm: -40, Exponent: 2}
	// At one metre the received power equals the reference power.
	if got := m.Distance(-40); math.Abs(got-1) > 1e-12 {
		t.Errorf("Distance(txPower) = %v, want 1", got)
	}
	// 20 dB below reference with n=2 is one decade: ten metres.
	if got := m.Distance(-60); math.Abs(got-10) > 1e-9 {
		t.Errorf("Distance(-60) = %v, want 10", got)
	}
}

func TestPathLossStdDevPropagation(t *testing.T) {
	m := PathLossModel{TxPowerDBm: -40, Exponent: 2}
	d := m.Distance(-60)
	sd := m.DistanceStdDev(-60, 1)
	// First-order propagation: σ_d/d = ln(10)/(10 n) · σ_rssi.
	want := d * math.Ln10 / 20
	if math.Abs(sd-want) > 1e-9 {
		t.Errorf("DistanceStdDev = %v, want %v", sd, want)
	}
	// Larger RSSI noise means larger distance uncertainty.
	if m.DistanceStdDev(-60, 4) <= sd {
		t.Error("distance uncertainty not increasing with RSSI uncertainty")
	}
}

func TestModelForSourceDefaults(t *testing.T) {
	m := ModelForSource(RadioSource{ID: "a"})
	if m.TxPowerDBm != DefaultTxPowerDBm || m.Exponent != DefaultPathLossExponent {
		t.Errorf("defaults not applied: %+v", m)
	}
	m = ModelForSource(RadioSource{ID: "a", TxPowerDBm: -30, PathLossExponent: 3})
	if m.TxPowerDBm != -30 || m.Exponent != 3 {
		t.Errorf("explicit parameters overridden: %+v", m)
	}
}
