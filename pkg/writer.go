package calocell

import (
	"errors"
	"fmt"

	"gonum.org/v1/hdf5"
)

type Writer struct {
	File          *hdf5.File
	Filename      string
	FirstEvt      bool
	RunGroup      *hdf5.Group
	CellsGroup    *hdf5.Group
	TruthGroup    *hdf5.Group
	EventTable    *Table
	RunInfoTable  *Table
	CellTable     *Table
	BunchTable    *Table
	ParticleTable *Table
	ExcessTable   *Table
	EvtCounter    int
	runNumber     int
	etaWindow     float64
	phiWindow     float64
	skippedPulses int
}

func NewWriter(filename string, config Configuration) (*Writer, error) {
	writer := &Writer{
		Filename:  filename,
		runNumber: config.RunNumber,
		etaWindow: config.EtaWindow,
		phiWindow: config.PhiWindow,
	}
	if config.Verbosity > 0 {
		logger.Info(fmt.Sprintf("Creating file: %s", filename), "hdf5writer")
	}

	var err error
	if writer.File, err = openFile(filename); err != nil {
		return nil, err
	}
	// close whatever was created if a later step fails
	fail := func(err error) (*Writer, error) {
		return nil, errors.Join(err, writer.Close())
	}

	if writer.RunGroup, err = createGroup(writer.File, "Run"); err != nil {
		return fail(err)
	}
	if writer.CellsGroup, err = createGroup(writer.File, "Cells"); err != nil {
		return fail(err)
	}
	if writer.TruthGroup, err = createGroup(writer.File, "Truth"); err != nil {
		return fail(err)
	}

	level := config.CompressionLevel
	tables := []struct {
		dst   **Table
		group *hdf5.Group
		name  string
		dtype interface{}
	}{
		{&writer.EventTable, writer.RunGroup, "events", EventDataHDF5{}},
		{&writer.RunInfoTable, writer.RunGroup, "runInfo", RunInfoHDF5{}},
		{&writer.CellTable, writer.CellsGroup, "cells", CellHDF5{}},
		{&writer.ExcessTable, writer.CellsGroup, "crosstalk_excess", ExcessHDF5{}},
		{&writer.BunchTable, writer.TruthGroup, "bunches", BunchHDF5{}},
		{&writer.ParticleTable, writer.TruthGroup, "particles", ParticleHDF5{}},
	}
	for _, t := range tables {
		if *t.dst, err = createTable(t.group, t.name, t.dtype, level); err != nil {
			return fail(err)
		}
	}
	return writer, nil
}

// WriteEvent stores the event summary, the cells in the region of interest
// with their per-bunch truth, the truth particles and the cross-talk ledger.
func (w *Writer) WriteEvent(event *Event) error {
	if !w.FirstEvt {
		if err := writeEntryToTable(w.RunInfoTable, RunInfoHDF5{run_number: int32(w.runNumber)}); err != nil {
			return err
		}
		w.FirstEvt = true
	}

	evt := int32(event.EventNumber)
	selected := SelectRoI(event.Cells, event.Particles, w.etaWindow, w.phiWindow)

	cells := make([]CellHDF5, 0, len(selected))
	bunches := make([]BunchHDF5, 0, len(selected))
	nCrossTalk := 0
	for _, d := range selected {
		row := CellHDF5{
			evt_number: evt,
			hash:       d.Hash(),
			sampling:   int32(d.Cell.Sampling),
			detector:   int32(d.Cell.Detector),
			eta:        d.Cell.Eta,
			phi:        d.Cell.Phi,
			deta:       d.Cell.DeltaEta,
			dphi:       d.Cell.DeltaPhi,
			e:          d.E,
			et:         d.Et,
			tau:        d.Tau,
			edep:       d.Edep(),
			tof:        d.Tof(),
		}
		if d.CrossTalked {
			row.crosstalk = 1
			nCrossTalk++
		}
		if !fixedPulse(row.pulse[:], d.Pulse) {
			w.skippedPulses++
		}
		cells = append(cells, row)

		for _, b := range TruthBunches(d) {
			bunches = append(bunches, BunchHDF5{
				evt_number: evt,
				hash:       d.Hash(),
				bcid:       int32(b.Bcid),
				edep:       b.Edep,
				tof:        b.Tof,
			})
		}
	}

	particles := make([]ParticleHDF5, len(event.Particles))
	for i, p := range event.Particles {
		particles[i] = ParticleHDF5{evt_number: evt, pdgid: int32(p.PdgID), eta: p.Eta, phi: p.Phi, e: p.E}
	}

	var excess []ExcessHDF5
	if event.Ledger != nil {
		for _, hash := range event.Ledger.Hashes() {
			pulse, _ := event.Ledger.Get(hash)
			row := ExcessHDF5{evt_number: evt, hash: hash}
			fixedPulse(row.excess[:], pulse)
			excess = append(excess, row)
		}
	}

	summary := EventDataHDF5{
		evt_number:  evt,
		n_cells:     int32(len(cells)),
		n_missing:   int32(event.Missing),
		n_crosstalk: int32(nCrossTalk),
	}
	if err := writeEntryToTable(w.EventTable, summary); err != nil {
		return err
	}
	if err := writeArrayToTable(w.CellTable, &cells); err != nil {
		return err
	}
	if err := writeArrayToTable(w.BunchTable, &bunches); err != nil {
		return err
	}
	if err := writeArrayToTable(w.ParticleTable, &particles); err != nil {
		return err
	}
	if err := writeArrayToTable(w.ExcessTable, &excess); err != nil {
		return err
	}

	if configuration.Verbosity > 1 {
		message := fmt.Sprintf("Event %d written: %d cells, %d bunches, %d particles, %d donors",
			event.EventNumber, len(cells), len(bunches), len(particles), len(excess))
		logger.Info(message, "hdf5writer")
	}
	w.EvtCounter++
	return nil
}

// fixedPulse copies pulse into dst, reporting false if the length differs
// from the stored sample count.
func fixedPulse(dst []float64, pulse PulseVector) bool {
	copy(dst, pulse)
	return len(pulse) == 0 || len(pulse) == len(dst)
}

func (w *Writer) Close() error {
	if configuration.Verbosity > 0 {
		logger.Info(fmt.Sprintf("Closing file %s after %d events", w.Filename, w.EvtCounter), "hdf5writer")
	}
	if w.skippedPulses > 0 {
		logger.Error(fmt.Sprintf("%d pulses did not have %d samples and were truncated or padded", w.skippedPulses, PulseSamples))
	}
	var errs []error

	for _, t := range []*Table{w.EventTable, w.RunInfoTable, w.CellTable, w.ExcessTable, w.BunchTable, w.ParticleTable} {
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s table: %w", t.Name, err))
		}
	}
	groups := []*hdf5.Group{w.RunGroup, w.CellsGroup, w.TruthGroup}
	for i, name := range []string{"run", "cells", "truth"} {
		if groups[i] == nil {
			continue
		}
		if err := groups[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s group: %w", name, err))
		}
	}
	if w.File != nil {
		if err := w.File.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing file: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
