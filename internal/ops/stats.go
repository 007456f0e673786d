package ops

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

type statsArgs struct {
	Values  []float64 `json:"values" validate:"required,min=1"`
	Weights []float64 `json:"weights"`
}

type statsResult struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"stdDev"`
	Median   float64 `json:"median"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

func opStats(_ *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a statsArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}
	if a.Weights != nil && len(a.Weights) != len(a.Values) {
		return nil, operror.TypeError("weights must match values in length")
	}

	sorted := append([]float64(nil), a.Values...)
	sort.Float64s(sorted)

	res := statsResult{
		Count:  len(a.Values),
		Mean:   stat.Mean(a.Values, a.Weights),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Min:    floats.Min(a.Values),
		Max:    floats.Max(a.Values),
	}
	if len(a.Values) > 1 {
		res.Variance = stat.Variance(a.Values, a.Weights)
		res.StdDev = math.Sqrt(res.Variance)
	}
	return immediate(res)
}
