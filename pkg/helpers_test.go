package calocell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testCellSize = 0.025
	testNoise    = 50.0
)

func testWeights() WeightSet {
	return WeightSet{
		Energy: []float64{0, 0.25, 1, 0.25, 0},
		Time:   []float64{0, -1, 0, 1, 0},
	}
}

// newTestCell builds a 4-bunch cell (bcid -2..1) of the given layer.
func newTestCell(t *testing.T, hash uint32, eta, phi float64, sampling Sampling) *Cell {
	t.Helper()
	c, err := NewCell(Cell{
		Hash:       hash,
		Eta:        eta,
		Phi:        phi,
		DeltaEta:   testCellSize,
		DeltaPhi:   testCellSize,
		Sampling:   sampling,
		BcidStart:  -2,
		BcidEnd:    1,
		BcDuration: 25,
		RMin:       1500,
		RMax:       1900,
		Noise:      testNoise,
		Weights:    testWeights(),
	})
	require.NoError(t, err)
	return c
}

// newTestDescriptor attaches a pulse and a main bunch truth energy to a cell.
func newTestDescriptor(cell *Cell, pulse []float64, edep float64) Descriptor {
	d := NewDescriptor(cell)
	if edep != 0 {
		d.Truth.Deposit(0, 0, edep)
	}
	d.Pulse = PulseVector(pulse).Clone()
	return d
}
