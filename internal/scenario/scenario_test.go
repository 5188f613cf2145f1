package scenario

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/waypost-data/radioloc/internal/consensus"
)

func TestLoadAndEstimate(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "square.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sc.Dim != 2 {
		t.Fatalf("Dim = %d, want 2", sc.Dim)
	}
	wantSources := []Source{
		{ID: "a", Position: []float64{0, 0}},
		{ID: "b", Position: []float64{10, 0}},
		{ID: "c", Position: []float64{0, 10}},
		{ID: "d", Position: []float64{10, 10}},
	}
	if diff := cmp.Diff(wantSources, sc.Sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}

	cfg, err := sc.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.Variant != consensus.MSAC {
		t.Errorf("Variant = %v, want MSAC", cfg.Variant)
	}
	if cfg.Threshold != 0.5 {
		t.Errorf("Threshold = %v, want 0.5", cfg.Threshold)
	}
	if cfg.Seed != 7 {
		t.Errorf("Seed = %v, want 7", cfg.Seed)
	}

	est, err := sc.Estimator()
	if err != nil {
		t.Fatalf("Estimator: %v", err)
	}
	res, err := est.Estimate()
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	truth := sc.Truth()
	if truth == nil {
		t.Fatal("Truth returned nil for a scenario with true_position")
	}
	if d := res.Position.DistanceTo(truth); d > 0.01 {
		t.Errorf("estimate %v is %.4f m from truth %v", res.Position, d, truth)
	}
}

func TestLoadRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestConfigRejectsBadVariant(t *testing.T) {
	sc := &Scenario{Dim: 2, Variant: "ranzac"}
	if _, err := sc.Config(); err == nil {
		t.Error("Config accepted unknown variant")
	}
}

func TestRadioSourcesDimensionMismatch(t *testing.T) {
	sc := &Scenario{
		Dim:     3,
		Sources: []Source{{ID: "a", Position: []float64{1, 2}}},
	}
	if _, err := sc.RadioSources(); err == nil {
		t.Error("RadioSources accepted a 2D source in a 3D scenario")
	}
}

func TestTruthAbsent(t *testing.T) {
	sc := &Scenario{Dim: 2}
	if got := sc.Truth(); got != nil {
		t.Errorf("Truth = %v, want nil", got)
	}
}
