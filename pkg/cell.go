package calocell

import (
	"fmt"
	"math"
)

// Sampling identifies a calorimeter depth layer.
type Sampling int

const (
	PSB Sampling = iota
	PSE
	EMB1
	EMB2
	EMB3
	TileCal1
	TileCal2
	TileCal3
	TileExt1
	TileExt2
	TileExt3
	EMEC1
	EMEC2
	EMEC3
	HEC1
	HEC2
	HEC3
)

var samplingStrings = []string{
	"PSB", "PSE",
	"EMB1", "EMB2", "EMB3",
	"TileCal1", "TileCal2", "TileCal3",
	"TileExt1", "TileExt2", "TileExt3",
	"EMEC1", "EMEC2", "EMEC3",
	"HEC1", "HEC2", "HEC3",
}

func (s Sampling) String() string {
	if s < PSB || s > HEC3 {
		return fmt.Sprintf("Sampling(%d)", int(s))
	}
	return samplingStrings[s]
}

// Detector identifies the detector section a cell belongs to.
type Detector int

// WeightSet holds the optimal filter coefficients of a cell.
type WeightSet struct {
	Energy []float64
	Time   []float64
}

// Cell is the static description of a readout cell. It is built once from
// the geometry store and shared read-only by every event.
type Cell struct {
	Hash       uint32
	Eta        float64
	Phi        float64
	DeltaEta   float64
	DeltaPhi   float64
	Sampling   Sampling
	Detector   Detector
	BcidStart  int
	BcidEnd    int
	BcDuration float64
	RMin       float64
	RMax       float64
	Noise      float64
	Weights    WeightSet
	Calib      GeometryCalibration
}

// NewCell checks the cell invariants and derives its geometric calibration.
func NewCell(c Cell) (*Cell, error) {
	if c.BcidEnd < c.BcidStart {
		return nil, &StageError{Stage: "geometry", Hash: c.Hash,
			Err: fmt.Errorf("%w: bcid window [%d, %d]", ErrInvalidCell, c.BcidStart, c.BcidEnd)}
	}
	if !(c.DeltaEta > 0) || !(c.DeltaPhi > 0) {
		return nil, &StageError{Stage: "geometry", Hash: c.Hash,
			Err: fmt.Errorf("%w: cell size %g x %g", ErrInvalidCell, c.DeltaEta, c.DeltaPhi)}
	}
	if !(c.BcDuration > 0) {
		return nil, &StageError{Stage: "geometry", Hash: c.Hash,
			Err: fmt.Errorf("%w: bunch duration %g", ErrInvalidCell, c.BcDuration)}
	}
	calib, err := NewGeometryCalibration(c.RMin, c.RMax, c.Eta)
	if err != nil {
		return nil, &StageError{Stage: "geometry", Hash: c.Hash, Err: err}
	}
	c.Calib = calib
	return &c, nil
}

// NumBunches is the number of bunch crossings read out by the cell.
func (c *Cell) NumBunches() int {
	return c.BcidEnd - c.BcidStart + 1
}

// DeltaPhiTo returns the phi distance to other wrapped into [-pi, pi].
func (c *Cell) DeltaPhiTo(phi float64) float64 {
	return FixPhi(c.Phi - phi)
}

// FixPhi wraps an angle into [-pi, pi].
func FixPhi(phi float64) float64 {
	phi = math.Remainder(phi, 2*math.Pi)
	if phi == -math.Pi {
		return math.Pi
	}
	return phi
}
