// Command estimate-plot renders a 2D scenario and its position estimate to a
// PNG: sources, the inlier/outlier split of the measurements, the estimated
// position and the declared truth if the scenario carries one.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/waypost-data/radioloc/internal/scenario"
)

func main() {
	scenarioPath := flag.String("scenario", "", "Path to scenario JSON file (required)")
	outPath := flag.String("out", "estimate.png", "Output PNG path")
	flag.Parse()

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "usage: estimate-plot -scenario <file.json> [-out estimate.png]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	sc, err := scenario.Load(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "estimate-plot: %v\n", err)
		os.Exit(1)
	}
	if sc.Dim != 2 {
		fmt.Fprintf(os.Stderr, "estimate-plot: only 2D scenarios can be plotted, got dim %d\n", sc.Dim)
		os.Exit(1)
	}

	est, err := sc.Estimator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "estimate-plot: %v\n", err)
		os.Exit(1)
	}
	res, err := est.Estimate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "estimate-plot: estimate failed: %v\n", err)
		os.Exit(1)
	}

	p := plot.New()
	p.Title.Text = "Position Estimate"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	positions := est.Positions()
	inlierPts := make(plotter.XYs, 0, len(positions))
	outlierPts := make(plotter.XYs, 0, len(positions))
	for i, pos := range positions {
		xy := plotter.XY{X: pos[0], Y: pos[1]}
		if i < len(res.Inliers.Mask) && res.Inliers.Mask[i] {
			inlierPts = append(inlierPts, xy)
		} else {
			outlierPts = append(outlierPts, xy)
		}
	}

	if len(inlierPts) > 0 {
		s, err := plotter.NewScatter(inlierPts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "estimate-plot: %v\n", err)
			os.Exit(1)
		}
		s.Color = color.RGBA{G: 160, A: 255}
		s.Radius = vg.Points(4)
		p.Add(s)
		p.Legend.Add("inlier sources", s)
	}
	if len(outlierPts) > 0 {
		s, err := plotter.NewScatter(outlierPts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "estimate-plot: %v\n", err)
			os.Exit(1)
		}
		s.Color = color.RGBA{R: 200, A: 255}
		s.Radius = vg.Points(4)
		p.Add(s)
		p.Legend.Add("outlier sources", s)
	}

	estPts := plotter.XYs{{X: res.Position[0], Y: res.Position[1]}}
	estScatter, err := plotter.NewScatter(estPts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "estimate-plot: %v\n", err)
		os.Exit(1)
	}
	estScatter.Color = color.RGBA{B: 220, A: 255}
	estScatter.Radius = vg.Points(6)
	estScatter.Shape = draw.CrossGlyph{}
	p.Add(estScatter)
	p.Legend.Add("estimate", estScatter)

	if truth := sc.Truth(); truth != nil {
		truthPts := plotter.XYs{{X: truth[0], Y: truth[1]}}
		truthScatter, err := plotter.NewScatter(truthPts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "estimate-plot: %v\n", err)
			os.Exit(1)
		}
		truthScatter.Color = color.RGBA{R: 120, G: 120, B: 120, A: 255}
		truthScatter.Radius = vg.Points(6)
		truthScatter.Shape = draw.RingGlyph{}
		p.Add(truthScatter)
		p.Legend.Add("truth", truthScatter)
		p.Title.Text = fmt.Sprintf("Position Estimate (error %.3f m)", res.Position.DistanceTo(truth))
	}

	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(8*vg.Inch, 8*vg.Inch, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "estimate-plot: saving %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d inliers, %d outliers)\n",
		*outPath, len(inlierPts), len(outlierPts))
}
