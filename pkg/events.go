package calocell

import (
	"errors"
	"fmt"
	"math"
)

// Geometry is the set of static cells of a run, shared read-only by every
// event.
type Geometry struct {
	cells []*Cell
	index map[uint32]int
}

func NewGeometry(cells []*Cell) (*Geometry, error) {
	g := &Geometry{
		cells: make([]*Cell, 0, len(cells)),
		index: make(map[uint32]int, len(cells)),
	}
	for _, c := range cells {
		if _, ok := g.index[c.Hash]; ok {
			return nil, &StageError{Stage: "geometry", Hash: c.Hash,
				Err: fmt.Errorf("%w: duplicated hash", ErrInvalidCell)}
		}
		g.index[c.Hash] = len(g.cells)
		g.cells = append(g.cells, c)
	}
	return g, nil
}

func (g *Geometry) Len() int {
	return len(g.cells)
}

func (g *Geometry) Cells() []*Cell {
	return g.cells
}

func (g *Geometry) Cell(hash uint32) (*Cell, bool) {
	i, ok := g.index[hash]
	if !ok {
		return nil, false
	}
	return g.cells[i], true
}

// Event holds the per-event state of every cell of the geometry.
type Event struct {
	EventNumber int
	Cells       *CellContainer
	Particles   []Particle
	Ledger      *ExcessLedger
	// Hits or pulses addressed to cells missing from the geometry.
	Missing int
	// Hits outside the readout window of their cell.
	OutOfWindow int
	// Per-cell reconstruction failures that did not invalidate the event.
	CellErrors []error
	Error      bool
}

func NewEvent(geo *Geometry, eventNumber int, policy TimingPolicy) *Event {
	ev := &Event{
		EventNumber: eventNumber,
		Cells:       NewCellContainer(geo.Len()),
	}
	for _, c := range geo.Cells() {
		d := NewDescriptor(c)
		d.Truth.SetPolicy(policy, c.Noise)
		// hashes are unique in the geometry
		_ = ev.Cells.Add(d)
	}
	return ev
}

// Fill routes every hit to the time series of its cell and returns the
// number of hits deposited.
func (ev *Event) Fill(hits []HitRecord) int {
	deposited := 0
	for _, hit := range hits {
		d, err := ev.Cells.Get(hit.Hash)
		if err != nil {
			ev.Missing++
			if configuration.Verbosity > 2 {
				logger.Info(fmt.Sprintf("Event %d: hit dropped: %v", ev.EventNumber, err), "events")
			}
			continue
		}
		if !d.Truth.Deposit(hit.GlobalTime, hit.CorrectedTime(), hit.Energy) {
			ev.OutOfWindow++
			continue
		}
		deposited++
	}
	return deposited
}

// AttachPulses copies the digitized pulse of each cell onto its descriptor.
func (ev *Event) AttachPulses(pulses map[uint32][]float64) {
	for hash, samples := range pulses {
		d, err := ev.Cells.Get(hash)
		if err != nil {
			ev.Missing++
			if configuration.Verbosity > 2 {
				logger.Info(fmt.Sprintf("Event %d: pulse dropped: %v", ev.EventNumber, err), "events")
			}
			continue
		}
		d.Pulse = PulseVector(samples).Clone()
	}
}

// CellMaker turns input events into reconstructed cells.
type CellMaker struct {
	geometry  *Geometry
	chain     Chain
	crossTalk *CrossTalkSimulator
	policy    TimingPolicy
}

func NewCellMaker(geo *Geometry, config Configuration) (*CellMaker, error) {
	m := &CellMaker{
		geometry: geo,
		chain:    ReconstructionChain(),
		policy:   config.TimingPolicy,
	}
	if config.DoCrossTalk {
		xt, err := NewCrossTalkSimulator(config.CrossTalk, m.chain)
		if err != nil {
			return nil, err
		}
		m.crossTalk = xt
		if config.Verbosity > 0 {
			message := fmt.Sprintf("Cross-talk enabled on %v: C=%g%%, L=%g%%, R=%g%% (resistive coupling not simulated)",
				xt.Samplings(), config.CrossTalk.AmpCapacitive, config.CrossTalk.AmpInductive, config.CrossTalk.AmpResistive)
			logger.Info(message, "cellMaker")
		}
	}
	return m, nil
}

// CrossTalk returns the simulator, nil when cross-talk is disabled.
func (m *CellMaker) CrossTalk() *CrossTalkSimulator {
	return m.crossTalk
}

// Process builds the cells of one event. A cell whose calibration constants
// do not fit its pulse is reported in Event.CellErrors and left
// unreconstructed; any cross-talk failure invalidates the whole event.
func (m *CellMaker) Process(record EventRecord) (*Event, error) {
	ev := NewEvent(m.geometry, record.EventNumber, m.policy)
	ev.Particles = record.Particles
	ev.Fill(record.Hits)
	ev.AttachPulses(record.Pulses)

	if err := m.Reconstruct(ev); err != nil {
		ev.Error = true
		return ev, err
	}

	if m.crossTalk != nil {
		out, ledger, err := m.crossTalk.Execute(ev.Cells)
		if err != nil {
			ev.Error = true
			return ev, fmt.Errorf("event %d: %w", ev.EventNumber, err)
		}
		ev.Cells = out
		ev.Ledger = ledger
	}

	if configuration.Verbosity > 1 {
		message := fmt.Sprintf("Event %d: %d hits, %d missing, %d out of window, %d cell errors",
			ev.EventNumber, len(record.Hits), ev.Missing, ev.OutOfWindow, len(ev.CellErrors))
		logger.Info(message, "cellMaker")
	}
	return ev, nil
}

// Reconstruct runs the reconstruction chain on every cell with a pulse.
func (m *CellMaker) Reconstruct(ev *Event) error {
	for i := 0; i < ev.Cells.Len(); i++ {
		d := ev.Cells.At(i)
		if len(d.Pulse) == 0 {
			continue
		}
		err := m.chain.Apply(d)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrConfigurationMismatch) {
			return fmt.Errorf("event %d: %w", ev.EventNumber, err)
		}
		ev.CellErrors = append(ev.CellErrors, err)
		logger.Error(fmt.Sprintf("Event %d: %s: %v", ev.EventNumber, Kind(err), err))
	}
	return nil
}

// SelectRoI returns the cells within half a window of any particle, each
// at most once and in container order. Without particles every cell is
// selected.
func SelectRoI(cells *CellContainer, particles []Particle, etaWindow, phiWindow float64) []*Descriptor {
	selected := make([]*Descriptor, 0, cells.Len())
	for i := 0; i < cells.Len(); i++ {
		d := cells.At(i)
		if len(particles) == 0 || inRoI(d.Cell, particles, etaWindow, phiWindow) {
			selected = append(selected, d)
		}
	}
	return selected
}

func inRoI(c *Cell, particles []Particle, etaWindow, phiWindow float64) bool {
	for _, p := range particles {
		if math.Abs(c.Eta-p.Eta) < etaWindow/2 && math.Abs(c.DeltaPhiTo(p.Phi)) < phiWindow/2 {
			return true
		}
	}
	return false
}

// BunchTruth is the truth content of one bunch crossing of a cell.
type BunchTruth struct {
	Bcid int
	Edep float64
	Tof  float64
}

// TruthBunches lists the truth of every bunch crossing read out by the cell.
func TruthBunches(d *Descriptor) []BunchTruth {
	out := make([]BunchTruth, 0, d.Cell.NumBunches())
	for bcid := d.Cell.BcidStart; bcid <= d.Cell.BcidEnd; bcid++ {
		out = append(out, BunchTruth{
			Bcid: bcid,
			Edep: d.Truth.Edep(bcid),
			Tof:  d.Truth.Tof(bcid),
		})
	}
	return out
}
