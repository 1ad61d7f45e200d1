package calocell

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

type CrossTalkConfig struct {
	// Minimum truth energy of a center cell, in units of its noise.
	SigmaNoiseCut float64 `json:"sigma_noise_cut"`
	// Coupling amplitudes in percent.
	AmpCapacitive float64    `json:"amp_capacitive"`
	AmpInductive  float64    `json:"amp_inductive"`
	AmpResistive  float64    `json:"amp_resistive"`
	Samplings     []Sampling `json:"samplings"`
	// Neighbor window half-width in units of the center cell size.
	WindowScale  float64        `json:"window_scale"`
	SamplePeriod float64        `json:"sample_period"`
	Transfer     TransferParams `json:"transfer"`
	TransferMode TransferMode   `json:"transfer_mode"`
}

func DefaultCrossTalkConfig() CrossTalkConfig {
	return CrossTalkConfig{
		SigmaNoiseCut: 2,
		AmpCapacitive: 4.2,
		AmpInductive:  2.3,
		AmpResistive:  1.0,
		Samplings:     []Sampling{EMB2, EMEC2},
		WindowScale:   1.5,
		SamplePeriod:  25,
		Transfer:      DefaultTransferParams(),
		TransferMode:  TransferEval,
	}
}

func (c CrossTalkConfig) Validate() error {
	if c.SigmaNoiseCut < 0 {
		return fmt.Errorf("sigma_noise_cut must not be negative, got %g", c.SigmaNoiseCut)
	}
	if c.AmpCapacitive < 0 || c.AmpInductive < 0 || c.AmpResistive < 0 {
		return fmt.Errorf("cross-talk amplitudes must not be negative")
	}
	if !(c.WindowScale > 0) {
		return fmt.Errorf("window_scale must be positive, got %g", c.WindowScale)
	}
	if !(c.SamplePeriod > 0) {
		return fmt.Errorf("sample_period must be positive, got %g", c.SamplePeriod)
	}
	return c.Transfer.Validate()
}

// CrossTalkObserver receives the intermediate pulses of the cross-talk stage.
type CrossTalkObserver interface {
	ObserveCoupling(sampling Sampling, inductive, capacitive PulseVector)
	ObserveCenter(sampling Sampling, before, after PulseVector)
	ObserveCorrection(sampling Sampling, excess PulseVector)
}

// CrossTalkSimulator adds the signal leaked by neighbor cells to every cell
// above threshold, then removes the leaked signal from the donors.
type CrossTalkSimulator struct {
	config    CrossTalkConfig
	tools     Chain
	transfer  func(float64) float64
	samplings map[Sampling]bool
	observer  CrossTalkObserver
}

// NewCrossTalkSimulator builds a simulator. tools are run on every cell whose
// pulse was changed; an empty chain defaults to the optimal filter.
func NewCrossTalkSimulator(config CrossTalkConfig, tools Chain) (*CrossTalkSimulator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cross-talk configuration: %w", err)
	}
	if len(tools) == 0 {
		tools = Chain{OptimalFilter{}}
	}
	s := &CrossTalkSimulator{
		config:    config,
		tools:     tools,
		transfer:  config.Transfer.TransferFunction(config.TransferMode),
		samplings: make(map[Sampling]bool, len(config.Samplings)),
	}
	for _, samp := range config.Samplings {
		s.samplings[samp] = true
	}
	return s, nil
}

func (s *CrossTalkSimulator) SetObserver(o CrossTalkObserver) {
	s.observer = o
}

// Triggers reports whether d is a cross-talk center.
func (s *CrossTalkSimulator) Triggers(d *Descriptor) bool {
	if d.Edep() < s.config.SigmaNoiseCut*d.Cell.Noise {
		return false
	}
	if len(d.Pulse) == 0 {
		return false
	}
	return s.samplings[d.Cell.Sampling]
}

// transferSamples evaluates the transfer function at each sample time.
func (s *CrossTalkSimulator) transferSamples(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.transfer(s.config.SamplePeriod * float64(i+1))
	}
	return out
}

// Coupling returns the inductive and capacitive distortion that a neighbor
// pulse induces on a center. Diagonal neighbors have no capacitive coupling.
func (s *CrossTalkSimulator) Coupling(pulse PulseVector, diagonal bool) (inductive, capacitive PulseVector) {
	return s.coupling(pulse, diagonal, s.transferSamples(len(pulse)))
}

func (s *CrossTalkSimulator) coupling(pulse PulseVector, diagonal bool, tf []float64) (PulseVector, PulseVector) {
	inductive := make(PulseVector, len(pulse))
	capacitive := make(PulseVector, len(pulse))
	for i, sample := range pulse {
		inductive[i] = s.config.AmpInductive / 100 * sample * tf[i]
		if !diagonal {
			capacitive[i] = s.config.AmpCapacitive / 100 * sample * tf[i]
		}
	}
	return inductive, capacitive
}

// IsNeighbor reports whether other lies in the window around center and
// whether it sits on a diagonal of it.
func (s *CrossTalkSimulator) IsNeighbor(center, other *Cell) (neighbor, diagonal bool) {
	if center.Hash == other.Hash || center.Sampling != other.Sampling {
		return false, false
	}
	dEta := center.Eta - other.Eta
	dPhi := center.DeltaPhiTo(other.Phi)
	if math.Abs(dEta) > s.config.WindowScale*center.DeltaEta ||
		math.Abs(dPhi) > s.config.WindowScale*center.DeltaPhi {
		return false, false
	}
	return true, dEta != 0 && dPhi != 0
}

// Execute runs both passes on the cells of one event. The input container
// is left untouched. On error the returned container is nil and the event
// must be considered invalid. The observer only sees events whose two passes
// succeeded.
func (s *CrossTalkSimulator) Execute(in *CellContainer) (*CellContainer, *ExcessLedger, error) {
	var pending *observationBuffer
	var obs CrossTalkObserver
	if s.observer != nil {
		pending = &observationBuffer{}
		obs = pending
	}
	out, ledger, err := s.distort(in, obs)
	if err != nil {
		return nil, nil, err
	}
	if err := s.correct(out, ledger, obs); err != nil {
		return nil, nil, err
	}
	if pending != nil {
		pending.flush(s.observer)
	}
	return out, ledger, nil
}

// Distort copies every cell of in into a new container and adds the
// neighbor cross-talk to each center. The leaked signal of every donor is
// accumulated in the returned ledger.
func (s *CrossTalkSimulator) Distort(in *CellContainer) (*CellContainer, *ExcessLedger, error) {
	return s.distort(in, s.observer)
}

func (s *CrossTalkSimulator) distort(in *CellContainer, obs CrossTalkObserver) (*CellContainer, *ExcessLedger, error) {
	out := NewCellContainer(in.Len())
	ledger := NewExcessLedger()

	// candidate neighbors grouped by sampling
	bySampling := make(map[Sampling][]int)
	for i := 0; i < in.Len(); i++ {
		d := in.At(i)
		if len(d.Pulse) == 0 {
			continue
		}
		bySampling[d.Cell.Sampling] = append(bySampling[d.Cell.Sampling], i)
	}

	tfCache := make(map[int][]float64)
	centers := 0
	for i := 0; i < in.Len(); i++ {
		xt := in.At(i).Clone()
		if s.Triggers(&xt) {
			centers++
			n := len(xt.Pulse)
			tf, ok := tfCache[n]
			if !ok {
				tf = s.transferSamples(n)
				tfCache[n] = tf
			}
			if configuration.Verbosity > 2 {
				message := fmt.Sprintf("Center sampling/detector %v/%d, hash %d, nsamples %d, truthEne %g, ene %g, eta/phi %g/%g",
					xt.Cell.Sampling, xt.Cell.Detector, xt.Hash(), n, xt.Edep(), xt.E, xt.Cell.Eta, xt.Cell.Phi)
				logger.Info(message, "crosstalk")
			}

			total := make(PulseVector, n)
			for _, j := range bySampling[xt.Cell.Sampling] {
				nb := in.At(j)
				neighbor, diagonal := s.IsNeighbor(xt.Cell, nb.Cell)
				if !neighbor {
					continue
				}
				if len(nb.Pulse) != n {
					return nil, nil, &StageError{Stage: "crosstalk", Hash: nb.Hash(),
						Err: fmt.Errorf("%w: neighbor has %d samples, center %d has %d",
							ErrConfigurationMismatch, len(nb.Pulse), xt.Hash(), n)}
				}
				inductive, capacitive := s.coupling(nb.Pulse, diagonal, tf)
				if obs != nil {
					obs.ObserveCoupling(xt.Cell.Sampling, inductive, capacitive)
				}
				contribution := inductive.Clone()
				addInto(contribution, capacitive)
				if contribution.IsZero() {
					continue
				}
				addInto(total, contribution)
				if err := ledger.Accumulate(nb.Hash(), contribution); err != nil {
					return nil, nil, &StageError{Stage: "crosstalk", Hash: nb.Hash(), Err: err}
				}
			}

			if !total.IsZero() {
				before := xt.Pulse.Clone()
				addInto(xt.Pulse, total)
				xt.CrossTalked = true
				if obs != nil {
					obs.ObserveCenter(xt.Cell.Sampling, before, xt.Pulse)
				}
			}
		}
		if err := out.Add(xt); err != nil {
			return nil, nil, &StageError{Stage: "crosstalk", Hash: xt.Hash(), Err: err}
		}
	}

	if configuration.Verbosity > 1 {
		message := fmt.Sprintf("Cross-talk distortion: %d cells, %d centers, %d donors, leaked %g",
			in.Len(), centers, ledger.Len(), ledger.Total())
		logger.Info(message, "crosstalk")
	}
	return out, ledger, nil
}

// Correct subtracts the ledger from every donor of cells and refreshes the
// reconstruction of every cell whose pulse changed. It must only be called
// once the ledger holds the contributions of every center of the event.
func (s *CrossTalkSimulator) Correct(cells *CellContainer, ledger *ExcessLedger) error {
	return s.correct(cells, ledger, s.observer)
}

func (s *CrossTalkSimulator) correct(cells *CellContainer, ledger *ExcessLedger, obs CrossTalkObserver) error {
	for i := 0; i < cells.Len(); i++ {
		d := cells.At(i)
		if excess, ok := ledger.Get(d.Hash()); ok {
			if len(excess) != len(d.Pulse) {
				return &StageError{Stage: "crosstalk-correction", Hash: d.Hash(),
					Err: fmt.Errorf("%w: excess has %d samples, pulse has %d",
						ErrConfigurationMismatch, len(excess), len(d.Pulse))}
			}
			var before PulseVector
			if configuration.Verbosity > 2 {
				before = d.Pulse.Clone()
			}
			subInto(d.Pulse, excess)
			d.CrossTalked = true
			if obs != nil {
				obs.ObserveCorrection(d.Cell.Sampling, excess)
			}
			if configuration.Verbosity > 2 {
				message := fmt.Sprintf("Hash %d corrected pulse from %v to %v", d.Hash(), before, d.Pulse)
				logger.Info(message, "crosstalk")
			}
		}
		if !d.CrossTalked {
			continue
		}
		if err := s.tools.Apply(d); err != nil {
			return fmt.Errorf("crosstalk correction aborted: %w", err)
		}
	}
	return nil
}

// Samplings returns the configured cross-talk samplings in increasing order.
func (s *CrossTalkSimulator) Samplings() []Sampling {
	out := make([]Sampling, 0, len(s.samplings))
	for samp := range s.samplings {
		out = append(out, samp)
	}
	slices.Sort(out)
	return out
}

// observationBuffer holds the observations of one event until it is known
// to be valid.
type observationBuffer struct {
	replay []func(CrossTalkObserver)
}

func (b *observationBuffer) ObserveCoupling(sampling Sampling, inductive, capacitive PulseVector) {
	inductive, capacitive = inductive.Clone(), capacitive.Clone()
	b.replay = append(b.replay, func(o CrossTalkObserver) {
		o.ObserveCoupling(sampling, inductive, capacitive)
	})
}

func (b *observationBuffer) ObserveCenter(sampling Sampling, before, after PulseVector) {
	before, after = before.Clone(), after.Clone()
	b.replay = append(b.replay, func(o CrossTalkObserver) {
		o.ObserveCenter(sampling, before, after)
	})
}

func (b *observationBuffer) ObserveCorrection(sampling Sampling, excess PulseVector) {
	excess = excess.Clone()
	b.replay = append(b.replay, func(o CrossTalkObserver) {
		o.ObserveCorrection(sampling, excess)
	})
}

func (b *observationBuffer) flush(o CrossTalkObserver) {
	for _, f := range b.replay {
		f(o)
	}
	b.replay = nil
}
