package fingerprint

import (
	"math"
	"testing"

	"github.com/waypost-data/radioloc/internal/geom"
)

func rssiFingerprint(t *testing.T, readings map[SourceID]float64) *Fingerprint {
	t.Helper()
	rs := make([]Reading, 0, len(readings))
	for id, rssi := range readings {
		rs = append(rs, Reading{Source: id, RSSI: rssi, HasRSSI: true})
	}
	fp, err := New(rs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fp
}

func locatedAt(t *testing.T, fp *Fingerprint, x, y float64) *LocatedFingerprint {
	t.Helper()
	lf, err := NewLocated(fp, geom.Point{x, y})
	if err != nil {
		t.Fatalf("NewLocated: %v", err)
	}
	return lf
}

func TestFindNearestRoundTrip(t *testing.T) {
	// A catalog containing the query itself must rank it first at distance 0.
	query := rssiFingerprint(t, map[SourceID]float64{"a": -50, "b": -60, "c": -70})

	catalog := []*LocatedFingerprint{
		locatedAt(t, rssiFingerprint(t, map[SourceID]float64{"a": -40, "b": -55, "c": -80}), 1, 1),
		locatedAt(t, query, 2, 2),
		locatedAt(t, rssiFingerprint(t, map[SourceID]float64{"a": -52, "b": -61, "c": -71}), 3, 3),
	}

	got, err := FindNearest(query, catalog, 2, RawPolicy)
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Fingerprint != catalog[1] {
		t.Errorf("nearest is not the query's own entry")
	}
	if got[0].Distance != 0 {
		t.Errorf("self distance = %v, want 0", got[0].Distance)
	}
	if got[1].Distance < got[0].Distance {
		t.Errorf("results not ascending")
	}
}

func TestFindNearestUnbounded(t *testing.T) {
	query := rssiFingerprint(t, map[SourceID]float64{"a": -50})
	catalog := []*LocatedFingerprint{
		locatedAt(t, rssiFingerprint(t, map[SourceID]float64{"a": -55}), 0, 0),
		locatedAt(t, rssiFingerprint(t, map[SourceID]float64{"a": -51}), 1, 0),
		locatedAt(t, rssiFingerprint(t, map[SourceID]float64{"a": -70}), 2, 0),
	}

	got, err := FindNearest(query, catalog, Unbounded, RawPolicy)
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	if len(got) != len(catalog) {
		t.Fatalf("unbounded search returned %d of %d entries", len(got), len(catalog))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Errorf("results not ascending at %d", i)
		}
	}
}

func TestFindNearestExcludesDisjointEntries(t *testing.T) {
	query := rssiFingerprint(t, map[SourceID]float64{"a": -50, "b": -60})
	catalog := []*LocatedFingerprint{
		locatedAt(t, rssiFingerprint(t, map[SourceID]float64{"x": -50, "y": -60}), 0, 0),
		locatedAt(t, rssiFingerprint(t, map[SourceID]float64{"a": -50, "z": -10}), 1, 0),
	}

	got, err := FindNearest(query, catalog, Unbounded, RawPolicy)
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (disjoint entry excluded)", len(got))
	}
	if got[0].Fingerprint != catalog[1] {
		t.Errorf("kept the wrong entry")
	}
	// Only the common source "a" contributes to the distance.
	if got[0].Distance != 0 {
		t.Errorf("distance = %v, want 0 over the single common source", got[0].Distance)
	}
}

func TestMeanRemovedBiasInvariance(t *testing.T) {
	base := map[SourceID]float64{"a": -50, "b": -60, "c": -65}
	biased := map[SourceID]float64{}
	for id, v := range base {
		biased[id] = v + 7.5 // constant receiver calibration offset
	}

	catalog := []*LocatedFingerprint{
		locatedAt(t, rssiFingerprint(t, map[SourceID]float64{"a": -48, "b": -62, "c": -64}), 0, 0),
		locatedAt(t, rssiFingerprint(t, map[SourceID]float64{"a": -70, "b": -50, "c": -55}), 1, 0),
		locatedAt(t, rssiFingerprint(t, map[SourceID]float64{"a": -51, "b": -59, "c": -66}), 2, 0),
	}

	rank := func(query *Fingerprint, policy NearestPolicy) []*LocatedFingerprint {
		got, err := FindNearest(query, catalog, Unbounded, policy)
		if err != nil {
			t.Fatalf("FindNearest: %v", err)
		}
		out := make([]*LocatedFingerprint, len(got))
		for i, n := range got {
			out[i] = n.Fingerprint
		}
		return out
	}

	plain := rank(rssiFingerprint(t, base), MeanRemovedPolicy)
	shifted := rank(rssiFingerprint(t, biased), MeanRemovedPolicy)
	for i := range plain {
		if plain[i] != shifted[i] {
			t.Fatalf("mean-removed ranking changed under constant bias at position %d", i)
		}
	}

	// The raw policy must see the bias: distances grow for every entry.
	rawPlain, err := FindNearest(rssiFingerprint(t, base), catalog, Unbounded, RawPolicy)
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	rawShifted, err := FindNearest(rssiFingerprint(t, biased), catalog, Unbounded, RawPolicy)
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	var changed bool
	for i := range rawPlain {
		if math.Abs(rawPlain[i].Distance-rawShifted[i].Distance) > 1e-9 {
			changed = true
		}
	}
	if !changed {
		t.Error("raw policy distances unchanged by a constant bias")
	}
}

func TestFindNearestValidation(t *testing.T) {
	query := rssiFingerprint(t, map[SourceID]float64{"a": -50})
	if _, err := FindNearest(query, nil, 0, RawPolicy); err == nil {
		t.Error("expected error for k = 0")
	}
	if _, err := FindNearest(query, nil, 1, NearestPolicy(99)); err == nil {
		t.Error("expected error for unknown policy")
	}
	empty := &Fingerprint{}
	if _, err := FindNearest(empty, nil, 1, RawPolicy); err == nil {
		t.Error("expected error for empty query")
	}
}
