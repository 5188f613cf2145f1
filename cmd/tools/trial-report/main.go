// Command trial-report benchmarks the consensus variants on randomized
// synthetic scenarios and renders an HTML error report with go-echarts.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/waypost-data/radioloc/internal/consensus"
	"github.com/waypost-data/radioloc/internal/geom"
	"github.com/waypost-data/radioloc/internal/lateration"
)

var variants = []consensus.Variant{
	consensus.RANSAC,
	consensus.MSAC,
	consensus.LMedS,
	consensus.PROSAC,
	consensus.PROMedS,
}

type trialStats struct {
	variant consensus.Variant
	errors  []float64 // per-trial position error, trial order
	failed  int
}

func (s *trialStats) mean() float64 {
	if len(s.errors) == 0 {
		return 0
	}
	return stat.Mean(s.errors, nil)
}

func (s *trialStats) median() float64 {
	if len(s.errors) == 0 {
		return 0
	}
	sorted := append([]float64(nil), s.errors...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func main() {
	trials := flag.Int("trials", 50, "Trials per variant")
	numSources := flag.Int("sources", 12, "Sources per trial")
	outlierFrac := flag.Float64("outliers", 0.25, "Fraction of gross-outlier measurements")
	noise := flag.Float64("noise", 0.1, "Inlier distance noise std dev (m)")
	extent := flag.Float64("extent", 20.0, "Half-width of the square deployment area (m)")
	seed := flag.Int64("seed", 1, "Trial randomness seed")
	outPath := flag.String("out", "trial-report.html", "Output HTML path")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	results := make([]*trialStats, 0, len(variants))
	for _, v := range variants {
		results = append(results, runTrials(rng, v, *trials, *numSources, *outlierFrac, *noise, *extent))
	}

	page := components.NewPage()
	page.AddCharts(summaryChart(results, *trials), errorChart(results, *trials))

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trial-report: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		fmt.Fprintf(os.Stderr, "trial-report: rendering: %v\n", err)
		os.Exit(1)
	}

	for _, s := range results {
		fmt.Printf("%-8s mean %.4f m  median %.4f m  failed %d/%d\n",
			s.variant, s.mean(), s.median(), s.failed, *trials)
	}
	fmt.Printf("wrote %s\n", *outPath)
}

// runTrials estimates a random position per trial and records the error.
// All variants see the same trial layouts because each trial reseeds the
// scenario generator from the shared rng stream deterministically.
func runTrials(rng *rand.Rand, v consensus.Variant, trials, numSources int, outlierFrac, noise, extent float64) *trialStats {
	stats := &trialStats{variant: v}
	for t := 0; t < trials; t++ {
		truth, ms := syntheticScenario(rand.New(rand.NewSource(rng.Int63()+int64(t))), numSources, outlierFrac, noise, extent)

		cfg := consensus.Config{
			Dim:             2,
			Variant:         v,
			Threshold:       3 * noise,
			UseLinearSolver: true,
			RefineResult:    true,
			Rand:            rand.New(rand.NewSource(int64(t) + 1)),
		}
		res, err := consensus.Estimate(ms, cfg)
		if err != nil {
			stats.failed++
			continue
		}
		stats.errors = append(stats.errors, res.Position.DistanceTo(truth))
	}
	return stats
}

// syntheticScenario places sources uniformly in the square, a truth position
// near the middle, and corrupts an outlier fraction of distances grossly.
func syntheticScenario(rng *rand.Rand, numSources int, outlierFrac, noise, extent float64) (geom.Point, []lateration.Measurement) {
	truth := geom.Point{
		(rng.Float64() - 0.5) * extent,
		(rng.Float64() - 0.5) * extent,
	}
	ms := make([]lateration.Measurement, numSources)
	numOutliers := int(float64(numSources) * outlierFrac)
	for i := range ms {
		pos := geom.Point{
			(rng.Float64() - 0.5) * 2 * extent,
			(rng.Float64() - 0.5) * 2 * extent,
		}
		d := truth.DistanceTo(pos) + rng.NormFloat64()*noise
		quality := 1.0
		if i < numOutliers {
			d += 5 + rng.Float64()*extent // gross range error
			quality = 0.1
		}
		if d < 0 {
			d = 0
		}
		ms[i] = lateration.Measurement{
			Position:       pos,
			Distance:       d,
			DistanceStdDev: noise,
			Quality:        quality,
		}
	}
	// Shuffle so outliers are not clustered at the front for the
	// quality-ordered samplers; quality still marks them suspect.
	rng.Shuffle(len(ms), func(i, j int) { ms[i], ms[j] = ms[j], ms[i] })
	return truth, ms
}

func summaryChart(results []*trialStats, trials int) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Position Error by Variant",
			Subtitle: fmt.Sprintf("%d trials per variant", trials),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Error (m)"}),
	)

	names := make([]string, len(results))
	means := make([]opts.BarData, len(results))
	medians := make([]opts.BarData, len(results))
	for i, s := range results {
		names[i] = s.variant.String()
		means[i] = opts.BarData{Value: s.mean()}
		medians[i] = opts.BarData{Value: s.median()}
	}
	bar.SetXAxis(names).
		AddSeries("mean", means).
		AddSeries("median", medians)
	return bar
}

func errorChart(results []*trialStats, trials int) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Per-Trial Error",
			Subtitle: "sorted ascending per variant",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Trial rank"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Error (m)"}),
	)

	ranks := make([]string, trials)
	for i := range ranks {
		ranks[i] = fmt.Sprintf("%d", i+1)
	}
	line.SetXAxis(ranks)
	for _, s := range results {
		sorted := append([]float64(nil), s.errors...)
		sort.Float64s(sorted)
		data := make([]opts.LineData, len(sorted))
		for i, e := range sorted {
			data[i] = opts.LineData{Value: e}
		}
		line.AddSeries(s.variant.String(), data)
	}
	return line
}
