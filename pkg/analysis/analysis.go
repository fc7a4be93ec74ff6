package analysis

import (
	"context"
	"log/slog"
	"math"
	"math/cmplx"

	"github.com/edp1096/semispice/internal/ctxlog"
	"github.com/edp1096/semispice/pkg/circuit"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/edp1096/semispice/pkg/matrix"
	"github.com/pkg/errors"
)

// ErrNoConvergence is returned when Newton iteration runs out of iterations
// or meets a singular system.
var ErrNoConvergence = errors.New("analysis: no convergence")

type Analysis interface {
	Setup(ctx context.Context, ckt *circuit.Circuit) error
	Execute(ctx context.Context) error
	GetResults() map[string][]float64
}

// Settings bound the nonlinear solution.
type Settings struct {
	Itl1      int // iterations per DC point
	Itl4      int // iterations per time point
	GminSteps int
	SrcSteps  int
}

func DefaultSettings() Settings {
	return Settings{Itl1: 100, Itl4: 10, GminSteps: 10, SrcSteps: 10}
}

type BaseAnalysis struct {
	Circuit  *circuit.Circuit
	Settings Settings
	results  map[string][]float64
	logger   *slog.Logger
	old      []float64
}

func NewBaseAnalysis() *BaseAnalysis {
	return &BaseAnalysis{
		Settings: DefaultSettings(),
		results:  make(map[string][]float64),
		logger:   ctxlog.FromContext(context.Background()),
	}
}

// setup binds the circuit if needed and runs the temperature stage.
func (a *BaseAnalysis) setup(ctx context.Context, ckt *circuit.Circuit) error {
	a.Circuit = ckt
	a.logger = ctxlog.FromContext(ctx)
	a.results = make(map[string][]float64)
	if ckt.GetMatrix() == nil {
		if err := ckt.Setup(ctx); err != nil {
			return err
		}
	}
	return ckt.Temperature()
}

// iterate runs Newton iterations until the devices and every equation agree
// with the previous iteration. The initialization mode walks from junction
// through fix to float; the first transient point starts in float after one
// pass.
func (a *BaseAnalysis) iterate(ctx context.Context, maxIter int) error {
	ckt := a.Circuit
	status := ckt.Status
	if len(a.old) != ckt.Size()+1 {
		a.old = make([]float64, ckt.Size()+1)
	}

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		status.ResetConvergence()
		if err := ckt.Load(); err != nil {
			return err
		}
		if err := ckt.Solve(); err != nil {
			if errors.Is(err, matrix.ErrSingular) {
				return errors.Wrapf(ErrNoConvergence, "iteration %d: %v", iter, err)
			}
			return err
		}

		solution := ckt.GetMatrix().Solution()
		devicesOK := ckt.IsConvergent()
		converged := iter > 0 && devicesOK && a.equationsConverged(solution)
		copy(a.old, solution)

		switch status.Init {
		case device.InitFloat:
			if converged {
				a.logger.Debug("converged", "iterations", iter+1)
				return nil
			}
		case device.InitJunction:
			status.Init = device.InitFix
		case device.InitFix:
			if devicesOK {
				status.Init = device.InitFloat
			}
		case device.InitTransient:
			status.Init = device.InitFloat
		}
	}
	return errors.Wrapf(ErrNoConvergence, "%d iterations", maxIter)
}

// equationsConverged compares the solution with the previous iterate, node
// voltages against vntol and branch currents against abstol.
func (a *BaseAnalysis) equationsConverged(solution []float64) bool {
	status := a.Circuit.Status
	for i := 1; i < len(a.old) && i < len(solution); i++ {
		tol := status.VnTol
		if a.Circuit.IsBranch(i) {
			tol = status.AbsTol
		}
		tol += status.RelTol * math.Max(math.Abs(solution[i]), math.Abs(a.old[i]))
		if math.Abs(solution[i]-a.old[i]) > tol {
			return false
		}
	}
	return true
}

// operatingPoint solves the DC point in the present mode. A direct attempt
// falls back to gmin stepping, then to source stepping.
func (a *BaseAnalysis) operatingPoint(ctx context.Context) error {
	ckt := a.Circuit
	status := ckt.Status
	status.UseDc = true
	status.SrcFact = 1
	ckt.GminStep = 0
	status.Init = device.InitJunction

	err := a.iterate(ctx, a.Settings.Itl1)
	if !errors.Is(err, ErrNoConvergence) {
		return err
	}
	a.logger.Info("direct operating point failed, stepping gmin", "error", err)

	err = a.gminStepping(ctx)
	if !errors.Is(err, ErrNoConvergence) {
		return err
	}
	a.logger.Info("gmin stepping failed, stepping sources", "error", err)

	return a.sourceStepping(ctx)
}

func (a *BaseAnalysis) gminStepping(ctx context.Context) error {
	ckt := a.Circuit
	status := ckt.Status
	defer func() { ckt.GminStep = 0 }()
	if a.Settings.GminSteps < 1 {
		return errors.Wrap(ErrNoConvergence, "gmin stepping disabled")
	}

	floor := math.Max(status.Gmin, 1e-12)
	step := floor * math.Pow(10, float64(a.Settings.GminSteps))
	status.Init = device.InitJunction
	for ; step > floor; step /= 10 {
		ckt.GminStep = step
		if err := a.iterate(ctx, a.Settings.Itl1); err != nil {
			return errors.Wrapf(err, "gmin step %g", step)
		}
		a.logger.Debug("gmin step converged", "gmin", step)
	}
	ckt.GminStep = 0
	if err := a.iterate(ctx, a.Settings.Itl1); err != nil {
		return errors.Wrap(err, "final gmin step")
	}
	return nil
}

func (a *BaseAnalysis) sourceStepping(ctx context.Context) error {
	status := a.Circuit.Status
	defer func() { status.SrcFact = 1 }()
	if a.Settings.SrcSteps < 1 {
		return errors.Wrap(ErrNoConvergence, "source stepping disabled")
	}

	status.Init = device.InitJunction
	for k := 1; k <= a.Settings.SrcSteps; k++ {
		status.SrcFact = float64(k) / float64(a.Settings.SrcSteps)
		if err := a.iterate(ctx, a.Settings.Itl1); err != nil {
			return errors.Wrapf(err, "source step %g", status.SrcFact)
		}
		a.logger.Debug("source step converged", "factor", status.SrcFact)
	}
	return nil
}

func (a *BaseAnalysis) append(name string, value float64) {
	a.results[name] = append(a.results[name], value)
}

func (a *BaseAnalysis) StoreTimeResult(time float64, solution map[string]float64) {
	// a retried point may land on the time already stored
	if times := a.results["TIME"]; len(times) > 0 && time <= times[len(times)-1] {
		return
	}
	a.append("TIME", time)
	for name, value := range solution {
		a.append(name, value)
	}
}

// StoreACResult stores magnitude and phase in degrees of every phasor.
func (a *BaseAnalysis) StoreACResult(freq float64, solution map[string]complex128) {
	a.append("FREQ", freq)
	for name, value := range solution {
		a.append(name+"_MAG", cmplx.Abs(value))
		a.append(name+"_PHASE", cmplx.Phase(value)*180.0/math.Pi)
	}
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}
