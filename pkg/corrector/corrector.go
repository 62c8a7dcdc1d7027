// Package corrector recovers the luminescent-coupling-free EQE of every
// junction of a series-connected stack from its measured EQE.
//
// The measured EQE of junction j contains, on top of its own response, the
// light re-emitted by every upper junction i and reabsorbed by j:
//
//	EQE_meas,j(λ) = EQE_true,j(λ) + Σ_{i<j} c(i,j) · EQE_true,i(λ) · I_op / J_i
//
// where I_op is the stack's operating current, set by the limiting (lowest
// current) junction, and J_i is junction i's own current. Because I_op and
// J_i depend on the true EQE being solved for, the correction is found by
// fixed-point iteration.
package corrector

import (
	"context"
	"math"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/charlie0129/lcqe/pkg/coupling"
	"github.com/charlie0129/lcqe/pkg/eqe"
	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/flux"
	"github.com/charlie0129/lcqe/pkg/photocurrent"
	"github.com/charlie0129/lcqe/pkg/result"
	"github.com/charlie0129/lcqe/pkg/spectral"
)

// Input is the immutable snapshot one correction runs against.
type Input struct {
	EQE      *eqe.Set
	Spectrum *flux.Spectrum
	// Coupling may be nil, which means no coupling at all.
	Coupling *coupling.Matrix
}

// Corrector runs corrections with fixed options. It holds no state between
// calls and may be shared by concurrent callers.
type Corrector struct {
	opts Options
}

// New validates opts.
func New(opts Options) (*Corrector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Corrector{opts: opts}, nil
}

func (c *Corrector) Options() Options { return c.opts }

// Correct is a shortcut for New(opts) followed by Correct.
func Correct(ctx context.Context, in Input, opts Options, o ...Option) (*result.Set, error) {
	c, err := New(opts)
	if err != nil {
		return nil, err
	}
	return c.Correct(ctx, in, o...)
}

// problem is a validated input, restricted to the common grid.
type problem struct {
	grid       spectral.Grid
	names      []string
	measured   [][]float64
	sources    [][]coupling.Source
	integrator *photocurrent.Integrator
}

func (c *Corrector) prepare(in Input) (*problem, error) {
	if in.EQE == nil || in.EQE.Len() == 0 {
		return nil, errdefs.NewValidationError("eqe", "no measured EQE")
	}
	if in.Spectrum == nil {
		return nil, errdefs.NewValidationError("spectrum", "no photon flux spectrum")
	}

	n := in.EQE.Len()
	m := in.Coupling
	if m == nil {
		m = coupling.Zero(n)
	}
	if m.Size() != n {
		return nil, errdefs.NewValidationError("coupling", "matrix describes %d junctions but the EQE set has %d", m.Size(), n)
	}

	grid, err := spectral.Align(in.EQE.Grid(), c.opts.MinSpan, in.Spectrum.Grid())
	if err != nil {
		return nil, err
	}
	set, err := in.EQE.Restrict(grid)
	if err != nil {
		return nil, err
	}
	integrator, err := photocurrent.ForSpectrum(grid, in.Spectrum)
	if err != nil {
		return nil, err
	}

	p := &problem{
		grid:       grid,
		names:      set.Names(),
		measured:   set.Values(),
		sources:    make([][]coupling.Source, n),
		integrator: integrator,
	}
	for j := 0; j < n; j++ {
		p.sources[j] = m.Sources(j)
	}
	return p, nil
}

// Correct runs the fixed-point iteration. All validation happens before the
// first iteration. From the third iteration on, a step that would move the
// currents further than the previous one is under-relaxed, so the recorded
// deltas never grow after the first two iterations. When the iteration cap is hit, the returned error is a
// *ConvergenceError carrying the last iterate. ctx is checked between
// iterations.
func (c *Corrector) Correct(ctx context.Context, in Input, o ...Option) (*result.Set, error) {
	s := settings{logger: logrus.StandardLogger()}
	for _, fn := range o {
		fn(&s)
	}

	p, err := c.prepare(in)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(c.opts.LogrusFields()).WithField("junctions", len(p.names))

	estimate := clone2(p.measured)
	currents := p.currentsOf(estimate)
	measuredCurrents := append([]float64(nil), currents...)
	deltas := make([]float64, 0, c.opts.MaxIterations)

	for iter := 1; iter <= c.opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, pkgerrors.Wrapf(err, "correction cancelled after %d iterations", iter-1)
		}

		limiting := floats.MinIdx(currents)
		candidate := clone2(estimate)
		p.update(candidate, currents, currents[limiting])
		candidateCurrents := p.currentsOf(candidate)
		step := floats.Distance(candidateCurrents, currents, math.Inf(1))

		next, nextCurrents, delta, omega := candidate, candidateCurrents, step, 1.0
		if iter > 2 && step > deltas[len(deltas)-1] {
			next, nextCurrents, delta, omega = p.relax(estimate, candidate, currents, step, deltas[len(deltas)-1])
		}
		estimate, currents = next, nextCurrents
		deltas = append(deltas, delta)

		log.WithFields(logrus.Fields{
			"iteration":  iter,
			"delta":      delta,
			"step":       step,
			"relaxation": omega,
			"limiting":   limiting,
		}).Debug("correction iteration")

		if s.progress != nil {
			s.progress(Progress{
				Iteration:        iter,
				Delta:            delta,
				Currents:         append([]float64(nil), currents...),
				LimitingJunction: floats.MinIdx(currents),
			})
		}

		// Judge the undamped step; damping alone never ends the iteration.
		if step < c.opts.Tolerance {
			return p.snapshot(estimate, measuredCurrents, currents, deltas, true), nil
		}
	}

	partial := p.snapshot(estimate, measuredCurrents, currents, deltas, false)
	log.WithField("delta", deltas[len(deltas)-1]).Warn("correction hit the iteration cap")
	return nil, &ConvergenceError{
		Iterations: c.opts.MaxIterations,
		Delta:      deltas[len(deltas)-1],
		Tolerance:  c.opts.Tolerance,
		Currents:   append([]float64(nil), currents...),
		Partial:    partial,
	}
}

// update rewrites estimate in place, top junction first, so that each lower
// junction sees the already updated estimates of the junctions above it.
// currents are the per-junction currents at the start of the iteration and
// operating is the limiting one among them.
func (p *problem) update(estimate [][]float64, currents []float64, operating float64) {
	for j, sources := range p.sources {
		if len(sources) == 0 {
			continue
		}

		e := estimate[j]
		copy(e, p.measured[j])
		for _, src := range sources {
			ji := currents[src.Junction]
			if ji <= 0 {
				continue
			}
			// Junction i only emits in proportion to the current actually
			// flowing through the stack.
			floats.AddScaled(e, -src.Coefficient*operating/ji, estimate[src.Junction])
		}
		for k, v := range e {
			if v < 0 {
				e[k] = 0
			}
		}
	}
}

// maxBacktracks bounds how often relax halves the relaxation factor.
const maxBacktracks = 30

// relax moves estimate part of the way towards candidate so that the change
// of the currents does not exceed limit. Currents are linear in the EQE, so
// the change scales with the relaxation factor and halving only has to absorb
// rounding. If no factor fits, estimate is returned unchanged. Junctions
// without sources are left untouched.
func (p *problem) relax(estimate, candidate [][]float64, currents []float64, step, limit float64) ([][]float64, []float64, float64, float64) {
	omega := limit / step
	for try := 0; try <= maxBacktracks && omega > 0; try++ {
		next := make([][]float64, len(estimate))
		for j := range estimate {
			if len(p.sources[j]) == 0 {
				next[j] = append([]float64(nil), estimate[j]...)
				continue
			}
			// Both terms are non-negative, so is the blend.
			next[j] = make([]float64, len(estimate[j]))
			floats.AddScaled(next[j], 1-omega, estimate[j])
			floats.AddScaled(next[j], omega, candidate[j])
		}
		nextCurrents := p.currentsOf(next)
		if delta := floats.Distance(nextCurrents, currents, math.Inf(1)); delta <= limit {
			return next, nextCurrents, delta, omega
		}
		omega /= 2
	}
	return clone2(estimate), append([]float64(nil), currents...), 0, 0
}

func (p *problem) currentsOf(estimate [][]float64) []float64 {
	out := make([]float64, len(estimate))
	for j, e := range estimate {
		out[j] = p.integrator.Integrate(e)
	}
	return out
}

func (p *problem) snapshot(estimate [][]float64, measuredCurrents, currents, deltas []float64, converged bool) *result.Set {
	return result.New(result.Snapshot{
		Grid:             p.grid,
		Names:            p.names,
		Measured:         p.measured,
		Corrected:        estimate,
		MeasuredCurrents: measuredCurrents,
		Currents:         currents,
		Convergence: result.Convergence{
			Iterations:       len(deltas),
			FinalDelta:       deltas[len(deltas)-1],
			LimitingJunction: floats.MinIdx(currents),
			Converged:        converged,
			Deltas:           deltas,
		},
	})
}

func clone2(v [][]float64) [][]float64 {
	out := make([][]float64, len(v))
	for i := range v {
		out[i] = append([]float64(nil), v[i]...)
	}
	return out
}
