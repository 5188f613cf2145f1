// Package fingerprint models radio fingerprints (sets of readings keyed by
// radio source) and the two operations the position estimator needs from
// them: conversion into uniform distance measurements, applying a path-loss
// model when only RSSI is available, and nearest-neighbour search against a
// catalog of located fingerprints.
package fingerprint

import (
	"fmt"

	"github.com/waypost-data/radioloc/internal/geom"
)

// SourceID identifies a radio source. Identity is the id, never the position:
// two sources at the same position are still distinct.
type SourceID string

// RadioSource is a transmitter with a known position and optional path-loss
// parameters used to turn its RSSI readings into pseudo-distances.
type RadioSource struct {
	ID       SourceID
	Position geom.Point

	// TxPowerDBm is the received power at the reference distance of one
	// metre. Zero means unknown; the builder's default model applies.
	TxPowerDBm float64

	// PathLossExponent is the environment's propagation exponent. Zero means
	// unknown; the builder's default applies.
	PathLossExponent float64
}

// Reading is one observation of a radio source: a resolved distance
// ("ranging"), an RSSI value, or both.
type Reading struct {
	Source SourceID

	// Ranging distance in metres, valid when HasDistance is set.
	Distance    float64
	HasDistance bool

	// DistanceStdDev is the 1-sigma ranging uncertainty; 0 means unknown.
	DistanceStdDev float64

	// RSSI in dBm, valid when HasRSSI is set.
	RSSI    float64
	HasRSSI bool

	// RSSIStdDev is the 1-sigma RSSI uncertainty in dB; 0 means unknown.
	RSSIStdDev float64
}

// Validate checks internal consistency of the reading.
func (r Reading) Validate() error {
	if r.Source == "" {
		return fmt.Errorf("fingerprint: reading has empty source id")
	}
	if !r.HasDistance && !r.HasRSSI {
		return fmt.Errorf("fingerprint: reading for %q carries neither distance nor RSSI", r.Source)
	}
	if r.HasDistance && r.Distance < 0 {
		return fmt.Errorf("fingerprint: reading for %q has negative distance %v", r.Source, r.Distance)
	}
	if r.DistanceStdDev < 0 || r.RSSIStdDev < 0 {
		return fmt.Errorf("fingerprint: reading for %q has negative uncertainty", r.Source)
	}
	return nil
}

// Fingerprint is an unordered set of readings, at most one per source.
type Fingerprint struct {
	readings map[SourceID]Reading
}

// New builds a fingerprint from readings. Duplicate sources and malformed
// readings are rejected.
func New(readings []Reading) (*Fingerprint, error) {
	fp := &Fingerprint{readings: make(map[SourceID]Reading, len(readings))}
	for _, r := range readings {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := fp.readings[r.Source]; dup {
			return nil, fmt.Errorf("fingerprint: duplicate reading for source %q", r.Source)
		}
		fp.readings[r.Source] = r
	}
	return fp, nil
}

// Len returns the number of readings.
func (f *Fingerprint) Len() int {
	if f == nil {
		return 0
	}
	return len(f.readings)
}

// Reading returns the reading for a source, if present.
func (f *Fingerprint) Reading(id SourceID) (Reading, bool) {
	if f == nil {
		return Reading{}, false
	}
	r, ok := f.readings[id]
	return r, ok
}

// Sources returns the set of source ids present in the fingerprint, in
// unspecified order.
func (f *Fingerprint) Sources() []SourceID {
	if f == nil {
		return nil
	}
	ids := make([]SourceID, 0, len(f.readings))
	for id := range f.readings {
		ids = append(ids, id)
	}
	return ids
}

// LocatedFingerprint is a fingerprint recorded at a known position, used as a
// catalog entry for nearest-neighbour search. Immutable once constructed.
type LocatedFingerprint struct {
	// ID is a stable catalog identifier, assigned by the store.
	ID string

	Fingerprint *Fingerprint
	Position    geom.Point
}

// NewLocated pairs a fingerprint with its recording position.
func NewLocated(fp *Fingerprint, position geom.Point) (*LocatedFingerprint, error) {
	if fp == nil || fp.Len() == 0 {
		return nil, fmt.Errorf("fingerprint: located fingerprint needs readings")
	}
	if position.Dim() != 2 && position.Dim() != 3 {
		return nil, fmt.Errorf("fingerprint: located fingerprint position must be 2D or 3D, got %dD", position.Dim())
	}
	return &LocatedFingerprint{Fingerprint: fp, Position: position.Clone()}, nil
}
