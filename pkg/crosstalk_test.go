package calocell

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const centerHash = 104

type recordingObserver struct {
	couplings   int
	centers     int
	corrections int
}

func (o *recordingObserver) ObserveCoupling(Sampling, PulseVector, PulseVector) { o.couplings++ }
func (o *recordingObserver) ObserveCenter(Sampling, PulseVector, PulseVector)   { o.centers++ }
func (o *recordingObserver) ObserveCorrection(Sampling, PulseVector)            { o.corrections++ }

// retainingObserver keeps the pulses it is handed.
type retainingObserver struct {
	inductive  []PulseVector
	capacitive []PulseVector
	after      []PulseVector
}

func (o *retainingObserver) ObserveCoupling(_ Sampling, inductive, capacitive PulseVector) {
	o.inductive = append(o.inductive, inductive)
	o.capacitive = append(o.capacitive, capacitive)
}

func (o *retainingObserver) ObserveCenter(_ Sampling, _, after PulseVector) {
	o.after = append(o.after, after)
}

func (o *retainingObserver) ObserveCorrection(Sampling, PulseVector) {}

// CrossTalkSuite runs the simulator on a 3x3 block of cells centered on
// hash 104 at eta = phi = 0.
type CrossTalkSuite struct {
	suite.Suite
	config CrossTalkConfig
	sim    *CrossTalkSimulator
	center []float64
	ring   []float64
}

func (s *CrossTalkSuite) SetupTest() {
	s.config = DefaultCrossTalkConfig()
	var err error
	s.sim, err = NewCrossTalkSimulator(s.config, Chain{OptimalFilter{}})
	require.NoError(s.T(), err)
	s.center = []float64{0, 100, 400, 300, 0}
	s.ring = []float64{10, 20, 30, 20, 10}
}

// grid builds the 3x3 block. edep is the truth energy of the center, ring
// the truth energy of the other cells.
func (s *CrossTalkSuite) grid(sampling Sampling, edep, ringEdep float64) *CellContainer {
	c := NewCellContainer(9)
	for i := -1; i <= 1; i++ {
		for j := -1; j <= 1; j++ {
			hash := uint32(100 + 3*(i+1) + (j+1))
			cell := newTestCell(s.T(), hash, float64(i)*testCellSize, float64(j)*testCellSize, sampling)
			var d Descriptor
			if hash == centerHash {
				d = newTestDescriptor(cell, s.center, edep)
			} else {
				d = newTestDescriptor(cell, s.ring, ringEdep)
			}
			require.NoError(s.T(), c.Add(d))
		}
	}
	return c
}

func (s *CrossTalkSuite) transfer(i int) float64 {
	return s.config.Transfer.Response(s.config.SamplePeriod * float64(i+1))
}

func isDiagonal(hash uint32) bool {
	i := (int(hash) - 100) / 3
	j := (int(hash) - 100) % 3
	return i != 1 && j != 1
}

func snapshot(c *CellContainer) map[uint32]PulseVector {
	out := make(map[uint32]PulseVector, c.Len())
	for i := 0; i < c.Len(); i++ {
		out[c.At(i).Hash()] = c.At(i).Pulse.Clone()
	}
	return out
}

func (s *CrossTalkSuite) TestTriggers() {
	cells := s.grid(EMB2, 1000, 0)
	center, _ := cells.Get(centerHash)
	ring, _ := cells.Get(100)
	s.True(s.sim.Triggers(center))
	s.False(s.sim.Triggers(ring), "no truth energy")

	atCut := s.grid(EMB2, 2*testNoise, 0)
	center, _ = atCut.Get(centerHash)
	s.True(s.sim.Triggers(center), "the cut is inclusive")

	center.Pulse = nil
	s.False(s.sim.Triggers(center), "empty pulse")

	other := s.grid(EMB1, 1000, 0)
	center, _ = other.Get(centerHash)
	s.False(s.sim.Triggers(center), "sampling not configured")
}

func (s *CrossTalkSuite) TestIsNeighbor() {
	center := newTestCell(s.T(), 1, 0, 0, EMB2)

	neighbor, diagonal := s.sim.IsNeighbor(center, newTestCell(s.T(), 2, testCellSize, 0, EMB2))
	s.True(neighbor)
	s.False(diagonal)

	neighbor, diagonal = s.sim.IsNeighbor(center, newTestCell(s.T(), 3, -testCellSize, testCellSize, EMB2))
	s.True(neighbor)
	s.True(diagonal)

	neighbor, _ = s.sim.IsNeighbor(center, newTestCell(s.T(), 4, 2*testCellSize, 0, EMB2))
	s.False(neighbor, "outside 1.5 cells")

	neighbor, _ = s.sim.IsNeighbor(center, newTestCell(s.T(), 5, testCellSize, 0, EMB3))
	s.False(neighbor, "other sampling")

	neighbor, _ = s.sim.IsNeighbor(center, center)
	s.False(neighbor, "a cell is not its own neighbor")
}

func (s *CrossTalkSuite) TestNeighborAcrossPhiWrap() {
	center := newTestCell(s.T(), 1, 0, 3.13, EMB2)
	other := newTestCell(s.T(), 2, 0, -3.13, EMB2)
	neighbor, diagonal := s.sim.IsNeighbor(center, other)
	s.True(neighbor)
	s.False(diagonal)
}

func (s *CrossTalkSuite) TestCouplingDiagonalHasNoCapacitiveTerm() {
	pulse := PulseVector(s.ring)
	ind, capAxis := s.sim.Coupling(pulse, false)
	indDiag, capDiag := s.sim.Coupling(pulse, true)

	s.Equal(ind, indDiag)
	s.True(capDiag.IsZero())
	for i := range pulse {
		s.InDelta(s.config.AmpInductive/100*pulse[i]*s.transfer(i), ind[i], 1e-12)
		s.InDelta(s.config.AmpCapacitive/100*pulse[i]*s.transfer(i), capAxis[i], 1e-12)
	}
}

func (s *CrossTalkSuite) TestSingleCenter() {
	in := s.grid(EMB2, 1000, 0)
	observer := &recordingObserver{}
	s.sim.SetObserver(observer)

	out, ledger, err := s.sim.Execute(in)
	s.Require().NoError(err)

	axis := (s.config.AmpInductive + s.config.AmpCapacitive) / 100
	diag := s.config.AmpInductive / 100

	center, err := out.Get(centerHash)
	s.Require().NoError(err)
	for i := range s.center {
		leak := s.ring[i] * s.transfer(i)
		s.InDelta(s.center[i]+4*axis*leak+4*diag*leak, center.Pulse[i], 1e-9, "sample %d", i)
	}
	s.True(center.CrossTalked)
	s.InDelta(dot(center.Pulse, center.Cell.Weights.Energy), center.E, 1e-9, "energy is estimated again")

	s.Equal(8, ledger.Len())
	_, ok := ledger.Get(centerHash)
	s.False(ok, "the center only receives")

	for i := 0; i < out.Len(); i++ {
		d := out.At(i)
		if d.Hash() == centerHash {
			continue
		}
		scale := axis
		if isDiagonal(d.Hash()) {
			scale = diag
		}
		excess, ok := ledger.Get(d.Hash())
		s.Require().True(ok)
		for k := range s.ring {
			leak := scale * s.ring[k] * s.transfer(k)
			s.InDelta(leak, excess[k], 1e-12)
			s.InDelta(s.ring[k]-leak, d.Pulse[k], 1e-9)
		}
		s.True(d.CrossTalked)
	}

	s.Equal(8, observer.couplings)
	s.Equal(1, observer.centers)
	s.Equal(8, observer.corrections)
}

func (s *CrossTalkSuite) TestConservation() {
	for name, ringEdep := range map[string]float64{"single center": 0, "every cell triggers": 1000} {
		s.Run(name, func() {
			in := s.grid(EMB2, 1000, ringEdep)
			out, _, err := s.sim.Execute(in)
			s.Require().NoError(err)
			s.InDelta(in.TotalPulse(), out.TotalPulse(), 1e-9)
		})
	}
}

func (s *CrossTalkSuite) TestEveryCellTriggers() {
	in := s.grid(EMB2, 1000, 1000)
	out, ledger, err := s.sim.Execute(in)
	s.Require().NoError(err)
	s.Equal(9, ledger.Len(), "every cell is a donor to some center")
	s.Equal(9, out.Len())
}

func (s *CrossTalkSuite) TestInputIsNotMutated() {
	in := s.grid(EMB2, 1000, 1000)
	before := snapshot(in)

	_, _, err := s.sim.Execute(in)
	s.Require().NoError(err)

	s.Equal(before, snapshot(in))
	for i := 0; i < in.Len(); i++ {
		s.False(in.At(i).CrossTalked)
		s.Equal(0.0, in.At(i).E)
	}
}

func (s *CrossTalkSuite) TestCorrectWithEmptyLedgerIsIdempotent() {
	out, _, err := s.sim.Execute(s.grid(EMB2, 1000, 0))
	s.Require().NoError(err)

	again := out.Clone()
	s.Require().NoError(s.sim.Correct(again, NewExcessLedger()))
	s.Equal(snapshot(out), snapshot(again))
	for i := 0; i < out.Len(); i++ {
		s.Equal(out.At(i).E, again.At(i).E)
		s.Equal(out.At(i).Tau, again.At(i).Tau)
	}
}

func (s *CrossTalkSuite) TestSilentNeighborsLeaveLedgerEmpty() {
	s.ring = []float64{0, 0, 0, 0, 0}
	in := s.grid(EMB2, 1000, 0)
	center, _ := in.Get(centerHash)
	center.E = 123

	out, ledger, err := s.sim.Execute(in)
	s.Require().NoError(err)
	s.Equal(0, ledger.Len())

	got, _ := out.Get(centerHash)
	s.Equal(PulseVector(s.center), got.Pulse)
	s.False(got.CrossTalked)
	s.Equal(123.0, got.E, "unchanged cells are not reconstructed again")
}

func (s *CrossTalkSuite) TestOtherSamplingIsUntouched() {
	in := s.grid(EMB1, 1000, 1000)
	out, ledger, err := s.sim.Execute(in)
	s.Require().NoError(err)
	s.Equal(0, ledger.Len())
	s.Equal(snapshot(in), snapshot(out))
}

func (s *CrossTalkSuite) TestNeighborPulseLengthMismatch() {
	in := s.grid(EMB2, 1000, 0)
	d, _ := in.Get(101)
	d.Pulse = d.Pulse[:4]

	out, ledger, err := s.sim.Execute(in)
	s.Require().Error(err)
	s.Nil(out)
	s.Nil(ledger)
	s.True(errors.Is(err, ErrConfigurationMismatch))
	var stageErr *StageError
	s.Require().True(errors.As(err, &stageErr))
	s.Equal(uint32(101), stageErr.Hash)
}

func (s *CrossTalkSuite) TestToolFailureAbortsEvent() {
	in := NewCellContainer(2)
	center := newTestCell(s.T(), 1, 0, 0, EMB2)
	s.Require().NoError(in.Add(newTestDescriptor(center, s.center, 1000)))

	bad := *newTestCell(s.T(), 2, testCellSize, 0, EMB2)
	bad.Weights = WeightSet{Energy: []float64{1, 1, 1, 1}, Time: []float64{0, 0, 0, 0}}
	s.Require().NoError(in.Add(newTestDescriptor(&bad, s.ring, 0)))

	out, ledger, err := s.sim.Execute(in)
	s.Require().Error(err)
	s.Nil(out)
	s.Nil(ledger)
	s.Equal("ConfigurationMismatch", Kind(err))
	s.Contains(err.Error(), "crosstalk correction aborted")
}

func (s *CrossTalkSuite) TestAbortedEventIsNotObserved() {
	in := NewCellContainer(2)
	center := newTestCell(s.T(), 1, 0, 0, EMB2)
	s.Require().NoError(in.Add(newTestDescriptor(center, s.center, 1000)))
	bad := *newTestCell(s.T(), 2, testCellSize, 0, EMB2)
	bad.Weights = WeightSet{Energy: []float64{1, 1, 1, 1}, Time: []float64{0, 0, 0, 0}}
	s.Require().NoError(in.Add(newTestDescriptor(&bad, s.ring, 0)))

	observer := &recordingObserver{}
	s.sim.SetObserver(observer)
	_, _, err := s.sim.Execute(in)
	s.Require().Error(err)
	s.Equal(recordingObserver{}, *observer)

	// a valid event afterwards is reported alone
	_, _, err = s.sim.Execute(s.grid(EMB2, 1000, 0))
	s.Require().NoError(err)
	s.Equal(8, observer.couplings)
	s.Equal(1, observer.centers)
}

func (s *CrossTalkSuite) TestObservedPulsesAreNotModified() {
	observer := &retainingObserver{}
	s.sim.SetObserver(observer)
	out, _, err := s.sim.Execute(s.grid(EMB2, 1000, 0))
	s.Require().NoError(err)

	expected, _ := s.sim.Coupling(s.ring, false)
	s.Require().Len(observer.inductive, 8)
	for i, inductive := range observer.inductive {
		s.Equal(expected, inductive, "coupling %d", i)
	}

	center, err := out.Get(centerHash)
	s.Require().NoError(err)
	s.Require().Len(observer.after, 1)
	s.Equal(center.Pulse, observer.after[0])
	center.Pulse[2] = -1
	s.NotEqual(center.Pulse, observer.after[0], "the observer holds its own copy")
}

func (s *CrossTalkSuite) TestDefaultChain() {
	sim, err := NewCrossTalkSimulator(s.config, nil)
	s.Require().NoError(err)
	s.Equal(Chain{OptimalFilter{}}, sim.tools)
	s.Equal([]Sampling{EMB2, EMEC2}, sim.Samplings())
}

func (s *CrossTalkSuite) TestInvalidConfiguration() {
	cases := map[string]func(c *CrossTalkConfig){
		"negative amplitude":  func(c *CrossTalkConfig) { c.AmpInductive = -1 },
		"zero window":         func(c *CrossTalkConfig) { c.WindowScale = 0 },
		"zero sample period":  func(c *CrossTalkConfig) { c.SamplePeriod = 0 },
		"negative noise cut":  func(c *CrossTalkConfig) { c.SigmaNoiseCut = -2 },
		"equal time constant": func(c *CrossTalkConfig) { c.Transfer.TauPA = c.Transfer.TauD },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			cfg := DefaultCrossTalkConfig()
			mutate(&cfg)
			_, err := NewCrossTalkSimulator(cfg, nil)
			s.Error(err)
		})
	}
}

func (s *CrossTalkSuite) TestConfigurationJSON() {
	data := []byte(`{"sigma_noise_cut": 3, "samplings": [3], "transfer_mode": "derivative"}`)
	cfg := DefaultCrossTalkConfig()
	s.Require().NoError(json.Unmarshal(data, &cfg))
	s.Equal(3.0, cfg.SigmaNoiseCut)
	s.Equal([]Sampling{EMB2}, cfg.Samplings)
	s.Equal(TransferDerivative, cfg.TransferMode)
	s.Equal(4.2, cfg.AmpCapacitive, "defaults survive")
	s.NoError(cfg.Validate())
}

func TestCrossTalkSuite(t *testing.T) {
	suite.Run(t, new(CrossTalkSuite))
}
