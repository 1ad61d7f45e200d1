package calocell

import "fmt"

// Estimate is the output of the optimal filter for one pulse.
type Estimate struct {
	Energy float64
	Time   float64
}

// OptimalFilter estimates energy and time from a pulse as weighted sums of
// its samples. Time is only trusted when the energy is above twice the noise.
type OptimalFilter struct{}

func (OptimalFilter) Name() string {
	return "OptimalFilter"
}

func (OptimalFilter) Estimate(pulse PulseVector, weights WeightSet, noise float64) (Estimate, error) {
	if len(weights.Energy) != len(pulse) {
		return Estimate{}, fmt.Errorf("%w: %d energy weights for %d samples",
			ErrConfigurationMismatch, len(weights.Energy), len(pulse))
	}
	if len(weights.Time) != len(pulse) {
		return Estimate{}, fmt.Errorf("%w: %d time weights for %d samples",
			ErrConfigurationMismatch, len(weights.Time), len(pulse))
	}
	energy := dot(pulse, weights.Energy)
	eneTau := dot(pulse, weights.Time)
	var tau float64
	if energy > 2*noise {
		tau = eneTau / energy
	}
	return Estimate{Energy: energy, Time: tau}, nil
}

func (f OptimalFilter) Apply(d *Descriptor) error {
	est, err := f.Estimate(d.Pulse, d.Cell.Weights, d.Cell.Noise)
	if err != nil {
		return err
	}
	d.SetEnergy(est.Energy)
	d.Tau = est.Time
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Cell hash %d, sampling(noise) %v(%g), energy(truth) %g, energy(OF) %g, time(truth) %g, time(OF) %g",
			d.Hash(), d.Cell.Sampling, d.Cell.Noise, d.Edep(), d.E, d.Tof(), d.Tau)
		logger.Info(message, "optimalFilter")
	}
	return nil
}

// Tool is a step applied to a cell after its pulse is known.
type Tool interface {
	Name() string
	Apply(d *Descriptor) error
}

// Chain applies its tools in order and stops at the first failure.
type Chain []Tool

func (c Chain) Apply(d *Descriptor) error {
	for _, tool := range c {
		if err := tool.Apply(d); err != nil {
			return &StageError{Stage: tool.Name(), Hash: d.Hash(), Err: err}
		}
	}
	return nil
}

// ReconstructionChain is the default per-cell chain: energy and time
// estimation followed by the time of flight calibration.
func ReconstructionChain() Chain {
	return Chain{OptimalFilter{}, CalibrationTool{}}
}
