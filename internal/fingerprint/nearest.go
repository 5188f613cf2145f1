package fingerprint

import (
	"fmt"
	"math"
	"sort"
)

// Unbounded, passed as k to FindNearest, returns the full catalog sorted by
// distance instead of a bounded prefix.
const Unbounded = -1

// NearestPolicy selects how fingerprints are compared.
type NearestPolicy int

const (
	// RawPolicy compares RSSI values of the sources common to query and
	// catalog entry with a plain Euclidean norm.
	RawPolicy NearestPolicy = iota

	// MeanRemovedPolicy first subtracts each fingerprint's own mean RSSI
	// over the common sources, cancelling a constant receiver calibration
	// bias between devices.
	MeanRemovedPolicy
)

// Neighbor is one ranked catalog entry.
type Neighbor struct {
	Fingerprint *LocatedFingerprint
	Distance    float64
}

// FindNearest ranks catalog entries by RSSI-space distance to the query,
// ascending, and returns at most k of them (all of them for Unbounded).
// Catalog entries sharing no RSSI-bearing source with the query are excluded.
// The finder keeps no state between calls.
func FindNearest(query *Fingerprint, catalog []*LocatedFingerprint, k int, policy NearestPolicy) ([]Neighbor, error) {
	if query.Len() == 0 {
		return nil, fmt.Errorf("fingerprint: empty query fingerprint")
	}
	if k < 1 && k != Unbounded {
		return nil, fmt.Errorf("fingerprint: k must be positive or Unbounded, got %d", k)
	}
	if policy != RawPolicy && policy != MeanRemovedPolicy {
		return nil, fmt.Errorf("fingerprint: unknown nearest policy %d", policy)
	}

	neighbors := make([]Neighbor, 0, len(catalog))
	for _, entry := range catalog {
		if entry == nil || entry.Fingerprint == nil {
			continue
		}
		d, ok := rssiDistance(query, entry.Fingerprint, policy)
		if !ok {
			continue
		}
		neighbors = append(neighbors, Neighbor{Fingerprint: entry, Distance: d})
	}

	// Stable keeps catalog order on exact ties, making results reproducible.
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})

	if k != Unbounded && len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// rssiDistance computes the RSSI-space distance over common sources.
// Returns ok=false when the fingerprints share no RSSI-bearing source.
func rssiDistance(query, entry *Fingerprint, policy NearestPolicy) (float64, bool) {
	var qVals, eVals []float64
	for _, id := range query.Sources() {
		q, _ := query.Reading(id)
		if !q.HasRSSI {
			continue
		}
		e, ok := entry.Reading(id)
		if !ok || !e.HasRSSI {
			continue
		}
		qVals = append(qVals, q.RSSI)
		eVals = append(eVals, e.RSSI)
	}
	if len(qVals) == 0 {
		return 0, false
	}

	if policy == MeanRemovedPolicy {
		var qMean, eMean float64
		for i := range qVals {
			qMean += qVals[i]
			eMean += eVals[i]
		}
		qMean /= float64(len(qVals))
		eMean /= float64(len(eVals))
		for i := range qVals {
			qVals[i] -= qMean
			eVals[i] -= eMean
		}
	}

	var sum float64
	for i := range qVals {
		d := qVals[i] - eVals[i]
		sum += d * d
	}
	return math.Sqrt(sum), true
}
