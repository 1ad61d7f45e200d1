package calocell

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
)

// TransferMode selects whether the coupling follows the cell response or its
// time derivative.
type TransferMode int

const (
	TransferEval TransferMode = iota
	TransferDerivative
)

var transferModeStrings = []string{
	"eval",
	"derivative",
}

func (m TransferMode) String() string {
	if m < TransferEval || m > TransferDerivative {
		return "UNKNOWN"
	}
	return transferModeStrings[m]
}

func (m TransferMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *TransferMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, v := range transferModeStrings {
		if v == s {
			*m = TransferMode(i)
			return nil
		}
	}
	return fmt.Errorf("invalid TransferMode: %s", s)
}

// TransferParams parameterize the electronic response of a cell.
// Times are in ns.
type TransferParams struct {
	TauD  float64 `json:"taud"`
	TauPA float64 `json:"taupa"`
	TD    float64 `json:"td"`
	Rf    float64 `json:"rf"`
	C1    float64 `json:"c1"`
}

func DefaultTransferParams() TransferParams {
	return TransferParams{
		TauD:  15.82,
		TauPA: 17.31,
		TD:    420,
		Rf:    0.078,
		C1:    50,
	}
}

func (p TransferParams) Validate() error {
	if !(p.TauD > 0) || !(p.TauPA > 0) || !(p.TD > 0) {
		return fmt.Errorf("transfer time constants must be positive: taud=%g taupa=%g td=%g", p.TauD, p.TauPA, p.TD)
	}
	if p.TauD == p.TauPA {
		return fmt.Errorf("transfer time constants taud and taupa must differ (%g)", p.TauD)
	}
	return nil
}

// Response evaluates the analytic cell response at time x.
func (p TransferParams) Response(x float64) float64 {
	a, b, d := p.TauD, p.TauPA, p.TD
	ab := a - b
	ab2 := ab * ab
	ab3 := ab2 * ab
	ea := math.Exp(-x / a)
	eb := math.Exp(-x / b)

	shaping := ea*x*x/(2*a*a*ab) -
		ea*x*b/(a*ab2) +
		ea*b*b/ab3 +
		eb*b*b/math.Pow(b-a, 3)

	sumInv := 1/a + 1/b
	tail := 1 / (2 * d * a * ab3) * math.Exp(-x*sumInv) *
		(-2*math.Exp(x*sumInv)*a*ab3 -
			2*math.Exp(x/a)*a*b*b*b +
			math.Exp(x/b)*(x*x*ab2+2*x*a*(a*a-3*a*b+2*b*b)+2*a*a*(a*a-3*a*b+3*b*b)))

	// step at the delay line time td
	var delayed float64
	if x-d >= 0 {
		xd := x - d
		ead := math.Exp((-x + d) / a)
		ebd := math.Exp((-x + d) / b)
		delayed = (1 -
			ead*xd*(a-2*b)/ab2 -
			ead*xd*xd/(2*a*ab) +
			ebd*b*b*b/ab3 -
			ead*a*(a*a-3*a*b+3*b*b)/ab3) / d
	}

	return (shaping + tail + delayed) * p.Rf * p.C1 * p.Rf * a * a
}

// TransferFunction returns T(t) for the given mode.
func (p TransferParams) TransferFunction(mode TransferMode) func(float64) float64 {
	if mode == TransferDerivative {
		return func(x float64) float64 {
			return fd.Derivative(p.Response, x, nil)
		}
	}
	return p.Response
}
