package fingerprint

import (
	"math"
	"testing"

	"github.com/waypost-data/radioloc/internal/geom"
	"github.com/waypost-data/radioloc/internal/lateration"
)

func testSources() []RadioSource {
	return []RadioSource{
		{ID: "a", Position: geom.Point{0, 0}},
		{ID: "b", Position: geom.Point{10, 0}},
		{ID: "c", Position: geom.Point{0, 10}},
	}
}

func TestBuildMeasurementsRangingPreferred(t *testing.T) {
	fp, err := New([]Reading{
		{Source: "a", Distance: 5, HasDistance: true, DistanceStdDev: 0.2, RSSI: -55, HasRSSI: true},
		{Source: "b", Distance: 7, HasDistance: true},
		{Source: "c", RSSI: -60, HasRSSI: true},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ms, err := BuildMeasurements(testSources(), fp, BuildOptions{})
	if err != nil {
		t.Fatalf("BuildMeasurements: %v", err)
	}
	if len(ms) != 3 {
		t.Fatalf("len = %d, want 3", len(ms))
	}

	// Combined reading: the ranging distance wins over the RSSI-derived one.
	if ms[0].Distance != 5 || ms[0].DistanceStdDev != 0.2 {
		t.Errorf("measurement a = %+v, want ranging distance 5 with its std dev", ms[0])
	}
	// Ranging with unknown uncertainty gets the fallback.
	if ms[1].Distance != 7 || ms[1].DistanceStdDev != lateration.DefaultFallbackDistanceStdDev {
		t.Errorf("measurement b = %+v, want fallback std dev", ms[1])
	}
	// RSSI-only reading goes through the default path-loss model.
	wantDist := ModelForSource(RadioSource{ID: "c"}).Distance(-60)
	if math.Abs(ms[2].Distance-wantDist) > 1e-12 {
		t.Errorf("measurement c distance = %v, want %v", ms[2].Distance, wantDist)
	}
}

func TestBuildMeasurementsOrderAndQuality(t *testing.T) {
	fp, err := New([]Reading{
		{Source: "c", Distance: 3, HasDistance: true},
		{Source: "a", Distance: 1, HasDistance: true},
		{Source: "b", Distance: 2, HasDistance: true},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ms, err := BuildMeasurements(testSources(), fp, BuildOptions{
		SourceQualityScores:  []float64{0.9, 0.8, 0.7},
		ReadingQualityScores: []float64{1, 0.5, 1},
	})
	if err != nil {
		t.Fatalf("BuildMeasurements: %v", err)
	}

	// Order follows the source slice, not the reading order.
	wantDist := []float64{1, 2, 3}
	wantQuality := []float64{0.9, 0.4, 0.7}
	for i := range ms {
		if ms[i].Distance != wantDist[i] {
			t.Errorf("measurement %d distance = %v, want %v", i, ms[i].Distance, wantDist[i])
		}
		if math.Abs(ms[i].Quality-wantQuality[i]) > 1e-12 {
			t.Errorf("measurement %d quality = %v, want %v", i, ms[i].Quality, wantQuality[i])
		}
	}
}

func TestBuildMeasurementsSkipsUnreadSources(t *testing.T) {
	fp, err := New([]Reading{{Source: "b", Distance: 2, HasDistance: true}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ms, err := BuildMeasurements(testSources(), fp, BuildOptions{})
	if err != nil {
		t.Fatalf("BuildMeasurements: %v", err)
	}
	if len(ms) != 1 || ms[0].Distance != 2 {
		t.Errorf("ms = %+v, want only source b's measurement", ms)
	}
}

func TestBuildMeasurementsValidation(t *testing.T) {
	fp, err := New([]Reading{{Source: "a", Distance: 1, HasDistance: true}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := BuildMeasurements(nil, fp, BuildOptions{}); err == nil {
		t.Error("expected error for no sources")
	}
	if _, err := BuildMeasurements(testSources(), &Fingerprint{}, BuildOptions{}); err == nil {
		t.Error("expected error for empty fingerprint")
	}
	if _, err := BuildMeasurements(testSources(), fp, BuildOptions{SourceQualityScores: []float64{1}}); err == nil {
		t.Error("expected error for mismatched quality score length")
	}
	dup := []RadioSource{{ID: "a", Position: geom.Point{0, 0}}, {ID: "a", Position: geom.Point{1, 1}}}
	if _, err := BuildMeasurements(dup, fp, BuildOptions{}); err == nil {
		t.Error("expected error for duplicate source")
	}
	disjoint, err := New([]Reading{{Source: "zz", Distance: 1, HasDistance: true}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := BuildMeasurements(testSources(), disjoint, BuildOptions{}); err == nil {
		t.Error("expected error when no source matches any reading")
	}
}
