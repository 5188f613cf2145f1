package fingerprint

import (
	"fmt"
	"math"
)

// Log-distance path-loss defaults: free-space exponent and a typical
// transmit power for consumer beacons measured at one metre.
const (
	DefaultPathLossExponent = 2.0
	DefaultTxPowerDBm       = -40.0
)

// ln10Over10 converts between dB decades and natural log.
const ln10Over10 = math.Ln10 / 10

// PathLossModel converts RSSI to a pseudo-distance with the log-distance
// model RSSI = txPower − 10·n·log10(d), where txPower is the received power
// at one metre and n the propagation exponent.
type PathLossModel struct {
	TxPowerDBm float64
	Exponent   float64
}

// ModelForSource builds the path-loss model for a source, applying defaults
// for unset parameters.
func ModelForSource(s RadioSource) PathLossModel {
	m := PathLossModel{TxPowerDBm: s.TxPowerDBm, Exponent: s.PathLossExponent}
	if m.TxPowerDBm == 0 {
		m.TxPowerDBm = DefaultTxPowerDBm
	}
	if m.Exponent == 0 {
		m.Exponent = DefaultPathLossExponent
	}
	return m
}

// Validate rejects non-physical model parameters.
func (m PathLossModel) Validate() error {
	if m.Exponent <= 0 {
		return fmt.Errorf("fingerprint: path-loss exponent must be positive, got %v", m.Exponent)
	}
	return nil
}

// Distance inverts the model for an observed RSSI. The result is always
// positive; an RSSI above the reference power maps below one metre.
func (m PathLossModel) Distance(rssiDBm float64) float64 {
	return math.Pow(10, (m.TxPowerDBm-rssiDBm)/(10*m.Exponent))
}

// RSSI predicts the received power at a distance, the forward model.
// Distances below a millimetre are clamped to keep the logarithm finite.
func (m PathLossModel) RSSI(distance float64) float64 {
	if distance < 1e-3 {
		distance = 1e-3
	}
	return m.TxPowerDBm - 10*m.Exponent*math.Log10(distance)
}

// DistanceStdDev propagates an RSSI uncertainty into a distance uncertainty
// to first order: σ_d = d · ln(10)/(10·n) · σ_rssi.
func (m PathLossModel) DistanceStdDev(rssiDBm, rssiStdDev float64) float64 {
	return m.Distance(rssiDBm) * ln10Over10 / m.Exponent * rssiStdDev
}
