package calocell

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/hdf5"
)

func tableRows(t *testing.T, file *hdf5.File, group, table string) uint {
	t.Helper()
	g, err := file.OpenGroup(group)
	require.NoError(t, err)
	defer g.Close()
	ds, err := g.OpenDataset(table)
	require.NoError(t, err)
	defer ds.Close()
	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	require.NoError(t, err)
	return dims[0]
}

func TestWriter(t *testing.T) {
	config := DefaultConfiguration()
	config.RunNumber = 12
	config.EtaWindow = 0.06
	config.PhiWindow = 0.06
	maker, err := NewCellMaker(testGeometry(t), config)
	require.NoError(t, err)

	filename := filepath.Join(t.TempDir(), "cells.h5")
	w, err := NewWriter(filename, config)
	require.NoError(t, err)

	inside := ringRecord()
	inside.Particles = []Particle{{Eta: 0, Phi: 0, E: 1000, PdgID: 11}}
	ev, err := maker.Process(inside)
	require.NoError(t, err)
	require.NoError(t, w.WriteEvent(ev))

	outside := ringRecord()
	outside.EventNumber = 4
	outside.Particles = []Particle{{Eta: 2, Phi: 0, E: 1000, PdgID: 22}}
	ev, err = maker.Process(outside)
	require.NoError(t, err)
	require.NoError(t, w.WriteEvent(ev))

	assert.Equal(t, 2, w.EvtCounter)
	require.NoError(t, w.Close())

	file, err := hdf5.OpenFile(filename, hdf5.F_ACC_RDONLY)
	require.NoError(t, err)
	defer file.Close()

	assert.Equal(t, uint(1), tableRows(t, file, "Run", "runInfo"))
	assert.Equal(t, uint(2), tableRows(t, file, "Run", "events"))
	assert.Equal(t, uint(9), tableRows(t, file, "Cells", "cells"), "only the first event has cells in the window")
	assert.Equal(t, uint(16), tableRows(t, file, "Cells", "crosstalk_excess"))
	assert.Equal(t, uint(36), tableRows(t, file, "Truth", "bunches"), "one row per bunch crossing of each written cell")
	assert.Equal(t, uint(2), tableRows(t, file, "Truth", "particles"))

	truth, err := file.OpenGroup("Truth")
	require.NoError(t, err)
	defer truth.Close()
	bunchSet, err := truth.OpenDataset("bunches")
	require.NoError(t, err)
	defer bunchSet.Close()
	bunches := make([]BunchHDF5, 36)
	require.NoError(t, bunchSet.Read(&bunches))
	edep := 0.0
	for i, b := range bunches {
		assert.Equal(t, int32(i%4-2), b.bcid, "row %d", i)
		edep += b.edep
	}
	assert.Equal(t, 1000.0, edep)

	g, err := file.OpenGroup("Run")
	require.NoError(t, err)
	defer g.Close()
	ds, err := g.OpenDataset("events")
	require.NoError(t, err)
	defer ds.Close()
	rows := make([]EventDataHDF5, 2)
	require.NoError(t, ds.Read(&rows))
	assert.Equal(t, EventDataHDF5{evt_number: 3, n_cells: 9, n_missing: 0, n_crosstalk: 9}, rows[0])
	assert.Equal(t, EventDataHDF5{evt_number: 4}, rows[1])
}

func TestFixedPulse(t *testing.T) {
	var dst [PulseSamples]float64
	assert.True(t, fixedPulse(dst[:], nil))
	assert.False(t, fixedPulse(dst[:], PulseVector{1, 2}))
	assert.Equal(t, 2.0, dst[1])
}
