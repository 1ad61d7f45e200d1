package calocell

import "math"

// HitRecord is a simulated energy deposit in one cell.
type HitRecord struct {
	Hash       uint32     `json:"hash"`
	GlobalTime float64    `json:"time"`
	Energy     float64    `json:"energy"`
	Position   [3]float64 `json:"position"`
}

// CorrectedTime is the hit time minus the straight-line time of flight
// from the origin to the hit position.
func (h HitRecord) CorrectedTime() float64 {
	r := math.Sqrt(h.Position[0]*h.Position[0] + h.Position[1]*h.Position[1] + h.Position[2]*h.Position[2])
	return h.GlobalTime - r/SpeedOfLight
}

// Particle is a truth particle of the event, used to select the region of
// interest.
type Particle struct {
	Eta   float64 `json:"eta"`
	Phi   float64 `json:"phi"`
	E     float64 `json:"e"`
	PdgID int     `json:"pdgid"`
}

// EventRecord is one event of the input file.
type EventRecord struct {
	EventNumber int                  `json:"event_number"`
	Hits        []HitRecord          `json:"hits"`
	Pulses      map[uint32][]float64 `json:"pulses"`
	Particles   []Particle           `json:"particles"`
}
