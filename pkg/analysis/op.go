package analysis

import (
	"context"

	"github.com/edp1096/semispice/pkg/circuit"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/pkg/errors"
)

type OperatingPoint struct{ BaseAnalysis }

func NewOP() *OperatingPoint {
	return &OperatingPoint{BaseAnalysis: *NewBaseAnalysis()}
}

func (op *OperatingPoint) Setup(ctx context.Context, ckt *circuit.Circuit) error {
	return op.setup(ctx, ckt)
}

func (op *OperatingPoint) Execute(ctx context.Context) error {
	if op.Circuit == nil {
		return errors.New("circuit not set")
	}
	op.Circuit.Status.Mode = device.OperatingPointAnalysis
	if err := op.operatingPoint(ctx); err != nil {
		return errors.Wrap(err, "operating point")
	}
	op.storeResults()
	return nil
}

func (op *OperatingPoint) storeResults() {
	for name, value := range op.Circuit.GetSolution() {
		op.results[name] = []float64{value}
	}
}
