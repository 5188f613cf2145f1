package fingerprint

import (
	"fmt"

	"github.com/waypost-data/radioloc/internal/lateration"
)

// BuildOptions controls measurement assembly.
type BuildOptions struct {
	// FallbackDistanceStdDev replaces unknown measurement uncertainties.
	// Zero selects lateration.DefaultFallbackDistanceStdDev.
	FallbackDistanceStdDev float64

	// SourceQualityScores, when non-nil, must parallel the source slice.
	// Missing scores default to uniform weight.
	SourceQualityScores []float64

	// ReadingQualityScores, when non-nil, must parallel the source slice and
	// weight the reading matched to each source.
	ReadingQualityScores []float64
}

// BuildMeasurements converts a fingerprint plus located sources into the
// uniform measurement tuples the consensus engine consumes. A measurement is
// emitted for every source the fingerprint has a reading for; ranging
// distances are preferred, RSSI readings fall back to the source's path-loss
// model. Sources without a matching reading are skipped, never invented.
//
// Measurement order follows the source order, which keeps quality-score
// arrays and subset indexing reproducible.
func BuildMeasurements(sources []RadioSource, fp *Fingerprint, opts BuildOptions) ([]lateration.Measurement, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("fingerprint: no sources supplied")
	}
	if fp.Len() == 0 {
		return nil, fmt.Errorf("fingerprint: empty fingerprint")
	}
	if opts.SourceQualityScores != nil && len(opts.SourceQualityScores) != len(sources) {
		return nil, fmt.Errorf("fingerprint: %d source quality scores for %d sources",
			len(opts.SourceQualityScores), len(sources))
	}
	if opts.ReadingQualityScores != nil && len(opts.ReadingQualityScores) != len(sources) {
		return nil, fmt.Errorf("fingerprint: %d reading quality scores for %d sources",
			len(opts.ReadingQualityScores), len(sources))
	}
	fallback := opts.FallbackDistanceStdDev
	if fallback == 0 {
		fallback = lateration.DefaultFallbackDistanceStdDev
	}
	if fallback < 0 {
		return nil, fmt.Errorf("fingerprint: negative fallback distance std dev %v", fallback)
	}

	seen := make(map[SourceID]bool, len(sources))
	ms := make([]lateration.Measurement, 0, len(sources))
	for i, src := range sources {
		if src.ID == "" {
			return nil, fmt.Errorf("fingerprint: source %d has empty id", i)
		}
		if seen[src.ID] {
			return nil, fmt.Errorf("fingerprint: duplicate source %q", src.ID)
		}
		seen[src.ID] = true

		reading, ok := fp.Reading(src.ID)
		if !ok {
			continue
		}

		var distance, stdDev float64
		switch {
		case reading.HasDistance:
			distance = reading.Distance
			stdDev = reading.DistanceStdDev
		case reading.HasRSSI:
			model := ModelForSource(src)
			if err := model.Validate(); err != nil {
				return nil, err
			}
			distance = model.Distance(reading.RSSI)
			if reading.RSSIStdDev > 0 {
				stdDev = model.DistanceStdDev(reading.RSSI, reading.RSSIStdDev)
			}
		default:
			return nil, fmt.Errorf("fingerprint: reading for %q carries neither distance nor RSSI", src.ID)
		}
		if stdDev <= 0 {
			stdDev = fallback
		}

		quality := 1.0
		if opts.SourceQualityScores != nil {
			quality *= opts.SourceQualityScores[i]
		}
		if opts.ReadingQualityScores != nil {
			quality *= opts.ReadingQualityScores[i]
		}

		ms = append(ms, lateration.Measurement{
			Position:       src.Position.Clone(),
			Distance:       distance,
			DistanceStdDev: stdDev,
			Quality:        quality,
		})
	}

	if len(ms) == 0 {
		return nil, fmt.Errorf("fingerprint: no source matched any reading")
	}
	return ms, nil
}
