package simulator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// SweepPoint is one instant of a time-averaged sweep: the sun state at a
// timestamp. A zero SunDirection marks the sun below the horizon; the step is
// recorded with zero output instead of running the pipeline.
type SweepPoint struct {
	Time               time.Time
	SunDirection       r3.Vec
	Insolation         float64
	IndirectIrradiance float64
	Temperature        float64
}

// SweepRow is one CSV output row of a sweep.
type SweepRow struct {
	Timestamp       string  `csv:"timestamp"`
	InsolationWatts float64 `csv:"insolation_watts"`
	OutputWatts     float64 `csv:"output_watts"`
}

// SweepResult aggregates an entire sweep.
type SweepResult struct {
	// Rows holds one row per sample in time order.
	Rows []SweepRow

	// Steps holds the full step outputs in time order; a nil entry marks a
	// below-horizon sample.
	Steps []*StepOutput

	// AveragePower and AverageInsolation are running-sum averages over all
	// samples, accumulated in time order so the result is bit-reproducible.
	AveragePower      float64
	AverageInsolation float64
}

// Sweep runs one simulation step per point. Steps are independent and run
// concurrently, workers goroutines at a time, each with a private rasterizer
// sized by the simulator's config; results land in sample order regardless of
// completion order, and the averages are reduced sequentially afterward.
// Cancelling the context abandons remaining steps; rows already computed stay
// valid in the returned result's prefix semantics (the error reports the
// abandonment).
func (s *Simulator) Sweep(ctx context.Context, base *Input, points []SweepPoint, workers int) (*SweepResult, error) {
	if err := base.validateStatic(); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	result := &SweepResult{
		Rows:  make([]SweepRow, len(points)),
		Steps: make([]*StepOutput, len(points)),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, pt := range points {
		g.Go(func() error {
			row := SweepRow{Timestamp: pt.Time.UTC().Format(time.RFC3339)}

			if r3.Norm(pt.SunDirection) < 0.5 {
				// Night sample: no direct beam, nothing to rasterize.
				result.Rows[i] = row
				return nil
			}

			in := *base
			in.SunDirection = pt.SunDirection
			in.Insolation = pt.Insolation
			in.IndirectIrradiance = pt.IndirectIrradiance
			in.Temperature = pt.Temperature

			// Private rasterizer per in-flight step: the shared one cannot
			// serve concurrent renders.
			step, err := New(s.cfg, s.logger)
			if err != nil {
				return err
			}
			out, err := step.Simulate(ctx, &in)
			if err != nil {
				return err
			}

			row.InsolationWatts = out.WattsIn
			row.OutputWatts = out.ArrayPower
			result.Rows[i] = row
			result.Steps[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Fixed-order reduction keeps the averages reproducible bit for bit.
	if len(points) > 0 {
		var sumP, sumI float64
		for _, row := range result.Rows {
			sumP += row.OutputWatts
			sumI += row.InsolationWatts
		}
		result.AveragePower = sumP / float64(len(points))
		result.AverageInsolation = sumI / float64(len(points))
	}
	return result, nil
}
