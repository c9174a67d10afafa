// Package run drives detection over every batch of an export with a
// bounded pool of workers.
package run

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dvsorder/internal/cvr"
	"dvsorder/internal/metrics"
	"dvsorder/internal/plugin"
	"dvsorder/internal/summary"
	"dvsorder/internal/verdict"
)

// Progress is called after each batch with the number of batches done.
// Calls are serialized.
type Progress func(done, total int)

// Runner classifies batches. A Runner holds no per-run state and may be
// reused.
type Runner struct {
	detector plugin.Detector
	policy   verdict.Policy
	workers  int
	logger   *slog.Logger
	metrics  *metrics.Metrics
	progress Progress
}

type Option func(*Runner)

// WithWorkers bounds the number of batches analyzed concurrently.
// Values below 1 select runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithProgress(p Progress) Option {
	return func(r *Runner) { r.progress = p }
}

func New(d plugin.Detector, policy verdict.Policy, opts ...Option) *Runner {
	r := &Runner{
		detector: d,
		policy:   policy,
		workers:  runtime.NumCPU(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run returns one verdict per batch, in input order. Per-batch failures
// become undetermined or not-vulnerable verdicts; only cancellation of ctx
// aborts the run, in which case no verdicts are returned.
func (r *Runner) Run(ctx context.Context, batches []cvr.Batch) ([]verdict.Verdict, error) {
	out := make([]verdict.Verdict, len(batches))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := r.analyze(gctx, &batches[i])
			if err != nil {
				return err
			}
			out[i] = v

			if r.progress != nil {
				mu.Lock()
				done++
				r.progress(done, len(batches))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) analyze(ctx context.Context, b *cvr.Batch) (verdict.Verdict, error) {
	if b.Err != nil {
		v := verdict.FromError(b, b.Err)
		r.record(v, b, 0)
		return v, nil
	}

	start := time.Now()
	res, err := r.detector.Detect(ctx, b)
	elapsed := time.Since(start)
	if err != nil && ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return verdict.Verdict{}, err
	}

	var v verdict.Verdict
	if err != nil {
		v = verdict.FromError(b, err).WithResult(res)
	} else {
		v = verdict.Classify(b, res, r.policy)
	}
	r.metrics.ObserveDetect(r.detector.Name(), elapsed)
	r.metrics.AddCandidates(res.Detector, res.Evaluated)
	r.record(v, b, elapsed)
	return v, nil
}

func (r *Runner) record(v verdict.Verdict, b *cvr.Batch, elapsed time.Duration) {
	r.metrics.ObserveVerdict(string(v.Status), v.Records)

	attrs := []any{
		"source", b.Source,
		"tabulator", b.Key.Tabulator,
		"batch", b.Key.Batch,
		"status", v.Status,
		"records", v.Records,
		"matched", v.Matched,
	}
	if v.Seed != nil {
		attrs = append(attrs, "seed", *v.Seed)
	}
	if elapsed > 0 {
		attrs = append(attrs, "elapsed", elapsed)
	}
	if v.Reason != "" {
		attrs = append(attrs, "reason", v.Reason)
	}
	if v.Status == verdict.Undetermined {
		r.logger.Warn("batch undetermined", attrs...)
		return
	}
	r.logger.Debug("batch classified", attrs...)
}

// Analysis is the outcome of analyzing one export.
type Analysis struct {
	Export   *cvr.Export
	Verdicts []verdict.Verdict
	Summary  summary.FileSummary
}

// Analyze runs every batch of exp and aggregates the verdicts.
func (r *Runner) Analyze(ctx context.Context, exp *cvr.Export) (*Analysis, error) {
	verdicts, err := r.Run(ctx, exp.Batches)
	if err != nil {
		return nil, err
	}
	a := &Analysis{Export: exp, Verdicts: verdicts, Summary: summary.Aggregate(verdicts)}
	r.logger.Info("export analyzed",
		"source", exp.Path,
		"batches", len(verdicts),
		"vulnerable_batches", a.Summary.VulnerableBatches,
		"undetermined_batches", a.Summary.UndeterminedBatches,
	)
	return a, nil
}
