package calocell

import (
	"fmt"
	"math"
)

// SpeedOfLight in mm/ns.
const SpeedOfLight = 299.792458

// GeometryCalibration holds the time of flight from the nominal interaction
// point to the cell centroid. Lengths are in mm, times in ns.
type GeometryCalibration struct {
	RMin     float64
	RMax     float64
	Eta      float64
	Theta    float64
	ThetaDeg float64
	Yn       float64
	Rn       float64
	Zn       float64
	TofIP    float64
}

func NewGeometryCalibration(rmin, rmax, eta float64) (GeometryCalibration, error) {
	if math.IsNaN(eta) || math.IsInf(eta, 0) {
		return GeometryCalibration{}, fmt.Errorf("%w: eta %g", ErrDegenerateGeometry, eta)
	}
	theta := 2*math.Atan(-math.Exp(math.Abs(eta))) + math.Pi
	sin := math.Sin(theta)
	if sin == 0 {
		return GeometryCalibration{}, fmt.Errorf("%w: cell on the beam axis (eta %g)", ErrDegenerateGeometry, eta)
	}
	g := GeometryCalibration{
		RMin:     rmin,
		RMax:     rmax,
		Eta:      eta,
		Theta:    theta,
		ThetaDeg: theta * 180 / math.Pi,
		Yn:       (rmin + rmax) / 2,
	}
	g.Rn = g.Yn / sin
	g.Zn = g.Rn * math.Cos(theta)
	g.TofIP = g.Rn / SpeedOfLight
	return g, nil
}

// CalibrationTool replaces the reconstructed time of cells carrying a real
// signal with the expected time of flight from the interaction point.
type CalibrationTool struct{}

func (CalibrationTool) Name() string {
	return "CalibrationTool"
}

func (CalibrationTool) Apply(d *Descriptor) error {
	if d.Tau <= 0 {
		return nil
	}
	old := d.Tau
	d.Tau = d.Cell.Calib.TofIP
	if configuration.Verbosity > 2 {
		c := d.Cell.Calib
		message := fmt.Sprintf("Cell %d, sampling %v: tau set from %g to %g. RMin=%g, RMax=%g, yn=%g, zn=%g, rn=%g, eta/theta=%g/%g",
			d.Cell.Hash, d.Cell.Sampling, old, d.Tau, c.RMin, c.RMax, c.Yn, c.Zn, c.Rn, c.Eta, c.ThetaDeg)
		logger.Info(message, "calibration")
	}
	return nil
}
