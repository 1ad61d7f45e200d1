package calocell

import (
	"encoding/json"
	"fmt"
	"sort"
)

// TimingPolicy selects which hit gives the time of a bunch crossing bin.
type TimingPolicy int

const (
	// EarliestArrival keeps the smallest corrected time among the hits of a
	// bin once its energy is positive.
	EarliestArrival TimingPolicy = iota
	// FirstAboveNoise keeps the global time of the hit that first brings the
	// bin energy over the noise threshold. Bins that never cross it are timed at 0.
	FirstAboveNoise
)

var timingPolicyStrings = []string{
	"earliest-arrival",
	"first-above-noise",
}

func (p TimingPolicy) String() string {
	if p < EarliestArrival || p > FirstAboveNoise {
		return "UNKNOWN"
	}
	return timingPolicyStrings[p]
}

func (p TimingPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *TimingPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, v := range timingPolicyStrings {
		if v == s {
			*p = TimingPolicy(i)
			return nil
		}
	}
	return fmt.Errorf("invalid TimingPolicy: %s", s)
}

// TimeSeries accumulates the truth energy of one cell per bunch crossing.
// Bins are indexed from 0 (bcidStart) to NumBins()-1 (bcidEnd).
type TimeSeries struct {
	edges     []float64
	bcidStart int
	policy    TimingPolicy
	threshold float64
	edep      map[int]float64
	tof       map[int]float64
	locked    map[int]bool
}

func NewTimeSeries(bcidStart, bcidEnd int, bcDuration float64) *TimeSeries {
	start := (float64(bcidStart) - 0.5) * bcDuration
	total := (bcidEnd - bcidStart + 1) + 1
	edges := make([]float64, total)
	for i := range edges {
		edges[i] = start + bcDuration*float64(i)
	}
	return &TimeSeries{
		edges:     edges,
		bcidStart: bcidStart,
		edep:      make(map[int]float64),
		tof:       make(map[int]float64),
		locked:    make(map[int]bool),
	}
}

// SetPolicy changes how bin times are recorded. threshold is only used by
// FirstAboveNoise.
func (s *TimeSeries) SetPolicy(policy TimingPolicy, threshold float64) {
	s.policy = policy
	s.threshold = threshold
}

func (s *TimeSeries) Edges() []float64 {
	out := make([]float64, len(s.edges))
	copy(out, s.edges)
	return out
}

func (s *TimeSeries) NumBins() int {
	return len(s.edges) - 1
}

func (s *TimeSeries) BcidStart() int {
	return s.bcidStart
}

// Find returns the bin i with edges[i] < t <= edges[i+1], or -1.
func (s *TimeSeries) Find(t float64) int {
	idx := sort.SearchFloat64s(s.edges, t)
	if idx == 0 || idx == len(s.edges) {
		return -1
	}
	return idx - 1
}

// Deposit adds energy to the bin containing t. It reports false when t is
// outside the readout window, in which case nothing is recorded.
func (s *TimeSeries) Deposit(t, tCorrected, energy float64) bool {
	bin := s.Find(t)
	if bin < 0 {
		return false
	}
	s.edep[bin] += energy
	e := s.edep[bin]
	current, timed := s.tof[bin]

	switch s.policy {
	case FirstAboveNoise:
		if s.locked[bin] {
			break
		}
		if e > s.threshold {
			s.tof[bin] = t
			s.locked[bin] = true
		} else {
			s.tof[bin] = 0
		}
	default:
		if e > 0 && (!timed || tCorrected < current) {
			s.tof[bin] = tCorrected
		}
	}
	return true
}

func (s *TimeSeries) Clear() {
	s.edep = make(map[int]float64)
	s.tof = make(map[int]float64)
	s.locked = make(map[int]bool)
}

// Energy returns the accumulated energy of a bin, 0 for empty bins.
func (s *TimeSeries) Energy(bin int) float64 {
	return s.edep[bin]
}

// Time returns the recorded time of a bin. The value is only meaningful
// when Energy(bin) > 0.
func (s *TimeSeries) Time(bin int) (float64, bool) {
	t, ok := s.tof[bin]
	return t, ok
}

// Edep returns the energy deposited in bunch crossing bcid.
func (s *TimeSeries) Edep(bcid int) float64 {
	return s.Energy(bcid - s.bcidStart)
}

// Tof returns the time recorded for bunch crossing bcid, 0 if none.
func (s *TimeSeries) Tof(bcid int) float64 {
	t, _ := s.Time(bcid - s.bcidStart)
	return t
}

func (s *TimeSeries) Clone() *TimeSeries {
	if s == nil {
		return nil
	}
	out := &TimeSeries{
		edges:     s.edges,
		bcidStart: s.bcidStart,
		policy:    s.policy,
		threshold: s.threshold,
		edep:      make(map[int]float64, len(s.edep)),
		tof:       make(map[int]float64, len(s.tof)),
		locked:    make(map[int]bool, len(s.locked)),
	}
	for k, v := range s.edep {
		out.edep[k] = v
	}
	for k, v := range s.tof {
		out.tof[k] = v
	}
	for k, v := range s.locked {
		out.locked[k] = v
	}
	return out
}
