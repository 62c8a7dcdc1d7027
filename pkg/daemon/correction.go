package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/charlie0129/lcqe/pkg/corrector"
	"github.com/charlie0129/lcqe/pkg/coupling"
	"github.com/charlie0129/lcqe/pkg/eqe"
	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/events"
	"github.com/charlie0129/lcqe/pkg/metrics"
	"github.com/charlie0129/lcqe/pkg/result"
	"github.com/charlie0129/lcqe/pkg/session"
	"github.com/charlie0129/lcqe/pkg/types"
	"github.com/charlie0129/lcqe/pkg/utils/ptr"
)

// progressInterval bounds how often correction.progress is published per
// correction. The final state is always carried by correction.done.
const progressInterval = 50 * time.Millisecond

// input validates req and resolves everything a correction needs. Values
// missing from req come from the config.
func (d *Daemon) input(req *types.CorrectRequest) (corrector.Input, corrector.Options, error) {
	opts := d.conf.CorrectorOptions()
	opts.Tolerance = ptr.Deref(req.Tolerance, opts.Tolerance)
	opts.MaxIterations = ptr.Deref(req.MaxIterations, opts.MaxIterations)
	opts.MinSpan = ptr.Deref(req.MinSpan, opts.MinSpan)
	if err := opts.Validate(); err != nil {
		return corrector.Input{}, opts, err
	}

	set, err := eqe.FromTable(req.Wavelength, req.Names, req.EQE)
	if err != nil {
		return corrector.Input{}, opts, err
	}

	in := corrector.Input{EQE: set, Spectrum: req.Spectrum}
	if len(req.Coupling) > 0 {
		m, err := coupling.New(req.Coupling)
		if err != nil {
			return corrector.Input{}, opts, err
		}
		in.Coupling = m
	}
	if in.Spectrum == nil {
		s, err := d.configuredSpectrum()
		if err != nil {
			return corrector.Input{}, opts, err
		}
		in.Spectrum = s
	}
	return in, opts, nil
}

// run performs one correction, streaming progress to the event hub and
// recording metrics. sessionID is empty for one-shot corrections.
func (d *Daemon) run(ctx context.Context, req *types.CorrectRequest, requestID, sessionID string) (*result.Set, error) {
	start := time.Now()
	log := logrus.WithFields(logrus.Fields{
		"request": requestID,
		"session": sessionID,
	})

	in, opts, err := d.input(req)
	if err != nil {
		d.finish(requestID, sessionID, nil, err, start)
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Every(progressInterval), 1)
	progress := func(p corrector.Progress) {
		if !limiter.Allow() {
			return
		}
		d.hub.Publish(events.CorrectionProgress, events.CorrectionProgressEvent{
			RequestID:        requestID,
			SessionID:        sessionID,
			Iteration:        p.Iteration,
			Delta:            p.Delta,
			Currents:         p.Currents,
			LimitingJunction: p.LimitingJunction,
			Ts:               time.Now().Unix(),
		})
	}

	r, err := corrector.Correct(ctx, in, opts, corrector.WithProgress(progress), corrector.WithLogger(log))
	d.finish(requestID, sessionID, r, err, start)
	return r, err
}

// finish publishes correction.done and records the outcome.
func (d *Daemon) finish(requestID, sessionID string, r *result.Set, err error, start time.Time) {
	ev := events.CorrectionDoneEvent{
		RequestID: requestID,
		SessionID: sessionID,
		Ts:        time.Now().Unix(),
	}

	var ce *corrector.ConvergenceError
	switch {
	case err == nil:
		conv := r.Convergence()
		ev.Converged = true
		ev.Iterations = conv.Iterations
		ev.FinalDelta = conv.FinalDelta
		d.metrics.Observe(metrics.OutcomeConverged, conv.Iterations, time.Since(start))
	case errors.As(err, &ce):
		ev.Iterations = ce.Iterations
		ev.FinalDelta = ce.Delta
		ev.Error = errdefs.Kind(err)
		d.metrics.Observe(metrics.OutcomeNotConverged, ce.Iterations, time.Since(start))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ev.Error = kindCancelled
		d.metrics.Observe(metrics.OutcomeCancelled, 0, time.Since(start))
	default:
		ev.Error = errdefs.Kind(err)
		d.metrics.Observe(metrics.OutcomeInvalid, 0, time.Since(start))
	}
	d.hub.Publish(events.CorrectionDone, ev)
}

// submit runs req as the latest request of session id.
func (d *Daemon) submit(ctx context.Context, req *types.CorrectRequest, requestID, sessionID string) (*result.Set, error) {
	r, err := d.sessions.Submit(ctx, sessionID, requestID, func(ctx context.Context) (*result.Set, error) {
		return d.run(ctx, req, requestID, sessionID)
	})
	if errors.Is(err, session.ErrSuperseded) {
		d.metrics.Corrections.WithLabelValues(metrics.OutcomeSuperseded).Inc()
	}
	d.metrics.Sessions.Set(float64(d.sessions.Len()))
	return r, err
}
