// Command radioloc estimates a position from a JSON scenario file and prints
// the result. With a catalog database it can also rank stored fingerprints
// against the scenario's readings.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/waypost-data/radioloc/internal/catalog"
	"github.com/waypost-data/radioloc/internal/estimator"
	"github.com/waypost-data/radioloc/internal/fingerprint"
	"github.com/waypost-data/radioloc/internal/scenario"
	"github.com/waypost-data/radioloc/internal/version"
)

type progressLogger struct {
	logger *log.Logger
}

func (p *progressLogger) OnEstimateStart(*estimator.Estimator) {
	p.logger.Println("estimate started")
}

func (p *progressLogger) OnEstimateEnd(*estimator.Estimator) {
	p.logger.Println("estimate finished")
}

func (p *progressLogger) OnEstimateNextIteration(_ *estimator.Estimator, iteration int) {}

func (p *progressLogger) OnEstimateProgressChange(_ *estimator.Estimator, progress float64) {
	p.logger.Printf("progress %.0f%%", progress*100)
}

func main() {
	scenarioPath := flag.String("scenario", "", "Path to scenario JSON file (required)")
	variant := flag.String("variant", "", "Override consensus variant (ransac, lmeds, msac, prosac, promeds)")
	verbose := flag.Bool("v", false, "Log estimation progress")
	dbPath := flag.String("db", "", "Optional fingerprint catalog database; ranks stored fingerprints against the scenario readings")
	migrationsDir := flag.String("migrations", "migrations", "Directory with catalog schema migrations")
	knn := flag.Int("k", 3, "Number of catalog neighbors to print (-1 for all)")
	meanRemoved := flag.Bool("mean-removed", false, "Use mean-removed RSSI distance for catalog ranking")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("radioloc", version.String())
		return
	}

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "usage: radioloc -scenario <file.json> [-variant v] [-db catalog.db]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	sc, err := scenario.Load(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "radioloc: %v\n", err)
		os.Exit(1)
	}
	if *variant != "" {
		sc.Variant = *variant
	}

	est, err := sc.Estimator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "radioloc: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		logger := log.New(os.Stderr, "[radioloc] ", log.LstdFlags)
		if err := est.SetListener(&progressLogger{logger: logger}); err != nil {
			fmt.Fprintf(os.Stderr, "radioloc: %v\n", err)
			os.Exit(1)
		}
	}

	res, err := est.Estimate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "radioloc: estimate failed: %v\n", err)
		os.Exit(1)
	}

	cfg := est.Config()
	fmt.Printf("variant:    %s\n", cfg.Variant)
	fmt.Printf("position:   %v\n", []float64(res.Position))
	fmt.Printf("inliers:    %d/%d (score %.6g, %d iterations)\n",
		res.Inliers.NumInliers, len(res.Inliers.Mask),
		res.Inliers.BestScore, res.Inliers.Iterations)
	if truth := sc.Truth(); truth != nil {
		fmt.Printf("true:       %v (error %.4f)\n", []float64(truth), res.Position.DistanceTo(truth))
	}
	if res.Covariance != nil {
		n := res.Covariance.SymmetricDim()
		fmt.Println("covariance:")
		for i := 0; i < n; i++ {
			fmt.Print("  ")
			for j := 0; j < n; j++ {
				fmt.Printf("% .6e ", res.Covariance.At(i, j))
			}
			fmt.Println()
		}
	}

	if *dbPath != "" {
		if err := rankCatalog(sc, *dbPath, *migrationsDir, *knn, *meanRemoved); err != nil {
			fmt.Fprintf(os.Stderr, "radioloc: %v\n", err)
			os.Exit(1)
		}
	}
}

func rankCatalog(sc *scenario.Scenario, dbPath, migrationsDir string, k int, meanRemoved bool) error {
	store, err := catalog.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.MigrateUp(migrationsDir); err != nil {
		return err
	}

	stored, err := store.All(context.Background())
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		fmt.Println("catalog:    empty")
		return nil
	}

	fp, err := sc.Fingerprint()
	if err != nil {
		return err
	}
	policy := fingerprint.RawPolicy
	if meanRemoved {
		policy = fingerprint.MeanRemovedPolicy
	}
	if k < 0 {
		k = fingerprint.Unbounded
	}
	neighbors, err := fingerprint.FindNearest(fp, stored, k, policy)
	if err != nil {
		return err
	}
	fmt.Printf("catalog:    %d stored, %d comparable\n", len(stored), len(neighbors))
	for i, n := range neighbors {
		fmt.Printf("  %d. %s at %v (rssi distance %.3f)\n",
			i+1, n.Fingerprint.ID, []float64(n.Fingerprint.Position), n.Distance)
	}
	return nil
}
