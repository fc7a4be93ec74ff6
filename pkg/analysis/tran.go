package analysis

import (
	"context"
	"math"

	"github.com/edp1096/semispice/pkg/circuit"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/pkg/errors"
)

type Transient struct {
	BaseAnalysis
	startTime float64
	stopTime  float64
	timeStep  float64
	maxStep   float64
	minStep   float64
	useUIC    bool
}

func NewTransient(tStart, tStop, tStep, tMax float64, uic bool) *Transient {
	if tMax == 0 {
		tMax = tStep
	}
	return &Transient{
		BaseAnalysis: *NewBaseAnalysis(),
		startTime:    tStart,
		stopTime:     tStop,
		timeStep:     tStep,
		maxStep:      tMax,
		minStep:      tStep * 1e-6,
		useUIC:       uic,
	}
}

func (tr *Transient) Setup(ctx context.Context, ckt *circuit.Circuit) error {
	if tr.timeStep <= 0 || tr.stopTime <= 0 || tr.startTime < 0 || tr.startTime >= tr.stopTime {
		return errors.Errorf("invalid transient parameters step=%g stop=%g start=%g", tr.timeStep, tr.stopTime, tr.startTime)
	}
	return tr.setup(ctx, ckt)
}

// initialPoint solves the DC point at t=0 with capacitors open, or loads
// the initial conditions once without solving when UIC is set.
func (tr *Transient) initialPoint(ctx context.Context) error {
	ckt := tr.Circuit
	status := ckt.Status
	status.Mode = device.TransientAnalysis
	status.Time = 0
	status.UseDc = true
	status.UseIc = tr.useUIC

	if tr.useUIC {
		status.Init = device.InitJunction
		status.SrcFact = 1
		if err := ckt.Load(); err != nil {
			return err
		}
	} else if err := tr.operatingPoint(ctx); err != nil {
		return errors.Wrap(err, "initial operating point")
	}
	return ckt.InitializeStates()
}

func (tr *Transient) Execute(ctx context.Context) error {
	if tr.Circuit == nil {
		return errors.New("circuit not set")
	}
	ckt := tr.Circuit
	status := ckt.Status
	method := ckt.Method()
	defer func() {
		status.UseDc = true
		status.UseIc = false
	}()

	if err := tr.initialPoint(ctx); err != nil {
		return err
	}
	method.Seed()
	if tr.startTime == 0 {
		tr.StoreTimeResult(0, ckt.GetSolution())
	}

	target := math.Min(tr.timeStep, tr.maxStep)
	dt := target
	t := 0.0
	first := true
	status.UseDc = false

	for t < tr.stopTime*(1-1e-12) {
		if t+dt > tr.stopTime {
			dt = tr.stopTime - t
		}
		status.Time = t + dt
		method.SetStep(dt)
		if first {
			status.Init = device.InitTransient
		} else {
			status.Init = device.InitFloat
		}

		err := tr.iterate(ctx, tr.Settings.Itl4)
		if errors.Is(err, ErrNoConvergence) {
			dt /= 8
			tr.logger.Debug("time step rejected", "time", t, "step", dt)
			if dt < tr.minStep {
				return errors.Wrapf(err, "time step too small at t=%g", t)
			}
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "t=%g", t+dt)
		}

		method.Accept()
		t += dt
		first = false
		if t >= tr.startTime {
			tr.StoreTimeResult(t, ckt.GetSolution())
		}
		if dt < target {
			dt = math.Min(2*dt, target)
		}
	}
	return nil
}
