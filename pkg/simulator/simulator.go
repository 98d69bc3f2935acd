// Package simulator composes geometry, layout, rasterization and the
// electrical model into single simulation steps and time-averaged sweeps.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/UBC-Solar/shellpower/pkg/electrical"
	"github.com/UBC-Solar/shellpower/pkg/geometry"
	"github.com/UBC-Solar/shellpower/pkg/layout"
	"github.com/UBC-Solar/shellpower/pkg/raster"
)

// ErrPrecondition indicates invalid simulation input: the caller should fix
// the input and retry. No partial output is produced.
var ErrPrecondition = errors.New("simulator: precondition violated")

// sunDirectionTolerance is how far the sun vector's length may stray from 1.
const sunDirectionTolerance = 1e-3

// Config controls a Simulator.
type Config struct {
	// Raster configures the sun-eye render target.
	Raster raster.Config

	// SweepSamples is the per-cell IV sweep resolution. Zero selects
	// electrical.DefaultSweepSamples.
	SweepSamples int

	// CombineSamples is the string-combination current resolution. Zero
	// selects electrical.DefaultCombineSamples.
	CombineSamples int

	// CellWorkers bounds concurrent per-cell IV solves within a step. Zero
	// means one goroutine per string.
	CellWorkers int
}

// Simulator runs simulation steps. It owns a rasterizer, so a Simulator must
// not run concurrent steps; use one Simulator per concurrent step stream.
type Simulator struct {
	cfg    Config
	ras    *raster.Rasterizer
	logger *zap.SugaredLogger
}

// New sets up a simulator, allocating its render buffers up front so backend
// failures surface before any step runs.
func New(cfg Config, logger *zap.SugaredLogger) (*Simulator, error) {
	ras, err := raster.New(cfg.Raster)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Simulator{cfg: cfg, ras: ras, logger: logger}, nil
}

// Input is one simulation instant: immutable snapshots of the mesh, the
// decoded layout, the cell/diode electrical parameters, and the ambient
// conditions.
type Input struct {
	Mesh  *geometry.Mesh
	Array *layout.Array

	CellSpec  electrical.CellSpec
	DiodeSpec electrical.DiodeSpec

	// SunDirection is a unit vector pointing from the array toward the sun.
	SunDirection r3.Vec

	// Insolation is the direct-beam irradiance, W/m²
	Insolation float64

	// IndirectIrradiance is the flat diffuse irradiance added to every cell
	// regardless of shading, W/m²
	IndirectIrradiance float64

	// Temperature is the cell temperature, °C
	Temperature float64

	// EncapsulationLoss is the fraction of incoming power lost in the
	// encapsulation, [0, 1)
	EncapsulationLoss float64
}

// validateStatic checks the per-scenario preconditions that do not depend on
// the instant being simulated.
func (in *Input) validateStatic() error {
	if in.Mesh == nil {
		return fmt.Errorf("%w: no mesh loaded", ErrPrecondition)
	}
	if in.Array == nil || len(in.Array.Strings) == 0 {
		return fmt.Errorf("%w: no cell layout decoded", ErrPrecondition)
	}
	if in.Array.Image == nil {
		return fmt.Errorf("%w: layout has no image", ErrPrecondition)
	}
	if len(in.Array.Strings) >= layout.MaxStrings {
		return fmt.Errorf("%w: %d strings exceeds the %d-string encoding limit",
			ErrPrecondition, len(in.Array.Strings), layout.MaxStrings-1)
	}
	if in.EncapsulationLoss < 0 || in.EncapsulationLoss >= 1 {
		return fmt.Errorf("%w: encapsulation loss must be in [0,1), got %g", ErrPrecondition, in.EncapsulationLoss)
	}
	if err := in.CellSpec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	if err := in.DiodeSpec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	return nil
}

// validate checks all preconditions for one step.
func (in *Input) validate() error {
	if err := in.validateStatic(); err != nil {
		return err
	}
	if n := r3.Norm(in.SunDirection); math.Abs(n-1) > sunDirectionTolerance {
		return fmt.Errorf("%w: sun direction must be a unit vector, |v| = %.6f", ErrPrecondition, n)
	}
	if in.Insolation < 0 {
		return fmt.Errorf("%w: insolation must be non-negative, got %g", ErrPrecondition, in.Insolation)
	}
	if in.IndirectIrradiance < 0 {
		return fmt.Errorf("%w: indirect irradiance must be non-negative, got %g", ErrPrecondition, in.IndirectIrradiance)
	}
	return nil
}

// StringResult is one wiring string's outcome for a step.
type StringResult struct {
	Name string
	// WattsIn is the incoming solar power over the string's cells, W
	WattsIn float64
	// LitArea is the sun-visible surface area of the string's cells, m²
	LitArea float64
	// Trace is the composite string IV curve; Trace.Pmp is the string's
	// deliverable power at its maximum power point.
	Trace *electrical.IVTrace
}

// StepOutput is the aggregate result of one simulation instant. It is an
// immutable value; later steps never touch it.
type StepOutput struct {
	// ArrayPower is the sum of per-string maximum power, W
	ArrayPower float64
	// ArrayLitArea is the total sun-visible cell area, m²
	ArrayLitArea float64
	// WattsIn is the total solar power reaching the cells after
	// encapsulation loss, W
	WattsIn float64

	Strings []StringResult

	// UnlinkedWatts and UnlinkedArea carry rasterized texels that matched no
	// cell color. Nonzero values are a warning, not an error.
	UnlinkedWatts float64
	UnlinkedArea  float64
}

// Simulate runs one step: rasterize from the sun's point of view, reduce to
// per-cell watts and lit area, solve each cell's IV curve, and combine each
// string under its bypass diodes.
func (s *Simulator) Simulate(ctx context.Context, in *Input) (*StepOutput, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.ras.Render(in.Mesh, in.Array, in.SunDirection, in.Insolation); err != nil {
		return nil, err
	}
	red := s.ras.Reduce(in.Array)
	if red.Unlinked() {
		s.logger.Warnw("rasterized texels not linked to any cell color",
			"watts", red.UnlinkedWatts, "area", red.UnlinkedArea)
	}

	out := &StepOutput{
		Strings:       make([]StringResult, len(in.Array.Strings)),
		UnlinkedWatts: red.UnlinkedWatts,
		UnlinkedArea:  red.UnlinkedArea,
	}

	derate := 1 - in.EncapsulationLoss

	// Per-cell solves are independent; one goroutine per string keeps each
	// string's traces in wiring order with no further bookkeeping.
	g, ctx := errgroup.WithContext(ctx)
	if s.cfg.CellWorkers > 0 {
		g.SetLimit(s.cfg.CellWorkers)
	}
	for si, str := range in.Array.Strings {
		si, str := si, str
		g.Go(func() error {
			res := StringResult{Name: str.Name}
			traces := make([]*electrical.IVTrace, len(str.Cells))
			for ci, cell := range str.Cells {
				if err := ctx.Err(); err != nil {
					return err
				}
				totals := red.Cells[cell.ID]

				// Flat indirect contribution on the cell's physical area,
				// then the encapsulation derate.
				watts := (totals.WattsIn + in.CellSpec.Area*in.IndirectIrradiance) * derate
				insolation := watts / in.CellSpec.Area

				trace, err := in.CellSpec.SweepIV(insolation, in.Temperature, s.cfg.SweepSamples)
				if err != nil {
					return fmt.Errorf("string %q cell %d: %w", str.Name, ci, err)
				}
				traces[ci] = trace
				res.WattsIn += watts
				res.LitArea += totals.Area
			}

			diodes := make([]electrical.SeriesDiode, len(str.Diodes))
			for di, d := range str.Diodes {
				diodes[di] = electrical.SeriesDiode{First: d.First, Last: d.Last}
			}
			trace, err := electrical.CombineSeries(traces, diodes, in.DiodeSpec.VoltageDrop, s.cfg.CombineSamples)
			if err != nil {
				return fmt.Errorf("string %q: %w", str.Name, err)
			}
			res.Trace = trace
			out.Strings[si] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, res := range out.Strings {
		out.ArrayPower += res.Trace.Pmp
		out.ArrayLitArea += res.LitArea
		out.WattsIn += res.WattsIn
	}
	return out, nil
}

// Rasterizer exposes the simulator's rasterizer for overlay export. The
// buffers hold the most recent step; callers must not read them while a step
// is running.
func (s *Simulator) Rasterizer() *raster.Rasterizer {
	return s.ras
}
