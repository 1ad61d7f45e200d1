package calocell

import (
	"fmt"
	"math"
)

// Descriptor is the state of one cell during one event.
type Descriptor struct {
	Cell  *Cell
	Truth *TimeSeries
	Pulse PulseVector
	// Reconstructed energy, transverse energy and time.
	E   float64
	Et  float64
	Tau float64
	// CrossTalked marks descriptors whose pulse was changed by the cross-talk stage.
	CrossTalked bool
}

func NewDescriptor(cell *Cell) Descriptor {
	return Descriptor{
		Cell:  cell,
		Truth: NewTimeSeries(cell.BcidStart, cell.BcidEnd, cell.BcDuration),
	}
}

func (d *Descriptor) Hash() uint32 {
	return d.Cell.Hash
}

// Edep is the truth energy of the main bunch crossing.
func (d *Descriptor) Edep() float64 {
	if d.Truth == nil {
		return 0
	}
	return d.Truth.Edep(0)
}

// Tof is the truth time of the main bunch crossing.
func (d *Descriptor) Tof() float64 {
	if d.Truth == nil {
		return 0
	}
	return d.Truth.Tof(0)
}

func (d *Descriptor) SetEnergy(e float64) {
	d.E = e
	d.Et = e / math.Cosh(d.Cell.Eta)
}

// Clone returns a copy that shares only the immutable static cell.
func (d Descriptor) Clone() Descriptor {
	d.Pulse = d.Pulse.Clone()
	d.Truth = d.Truth.Clone()
	return d
}

// CellContainer stores the descriptors of one event indexed by cell hash,
// keeping insertion order.
type CellContainer struct {
	descriptors []Descriptor
	index       map[uint32]int
}

func NewCellContainer(capacity int) *CellContainer {
	return &CellContainer{
		descriptors: make([]Descriptor, 0, capacity),
		index:       make(map[uint32]int, capacity),
	}
}

// Add appends d. A hash may only appear once.
func (c *CellContainer) Add(d Descriptor) error {
	if c.Has(d.Hash()) {
		return fmt.Errorf("cell %d already in container", d.Hash())
	}
	c.index[d.Hash()] = len(c.descriptors)
	c.descriptors = append(c.descriptors, d)
	return nil
}

// Get returns the descriptor of hash. The pointer stays valid until the next Add.
func (c *CellContainer) Get(hash uint32) (*Descriptor, error) {
	i, ok := c.index[hash]
	if !ok {
		return nil, fmt.Errorf("%w: cell %d not in container", ErrMissingInput, hash)
	}
	return &c.descriptors[i], nil
}

func (c *CellContainer) Has(hash uint32) bool {
	_, ok := c.index[hash]
	return ok
}

func (c *CellContainer) Len() int {
	return len(c.descriptors)
}

// At returns the i-th descriptor in insertion order.
func (c *CellContainer) At(i int) *Descriptor {
	return &c.descriptors[i]
}

// Clone deep-copies every descriptor into a new container.
func (c *CellContainer) Clone() *CellContainer {
	out := NewCellContainer(c.Len())
	for _, d := range c.descriptors {
		out.index[d.Hash()] = len(out.descriptors)
		out.descriptors = append(out.descriptors, d.Clone())
	}
	return out
}

// TotalPulse sums every sample of every pulse in the container.
func (c *CellContainer) TotalPulse() float64 {
	total := 0.0
	for i := range c.descriptors {
		total += c.descriptors[i].Pulse.Sum()
	}
	return total
}
