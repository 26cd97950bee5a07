// Package batch renders the variations of many stored originals, optionally
// in parallel.
package batch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"stdimage/internal/filestore"
	"stdimage/internal/logging"
	"stdimage/internal/metrics"
	"stdimage/internal/models"
	"stdimage/internal/render"
)

// Progress is sent to the Reporter after every finished job.
type Progress struct {
	Done   int
	Total  int
	Failed int
	Key    string
	Err    error

	// Declined is set when the policy chose not to render the record.
	Declined bool
}

type Reporter interface {
	Report(Progress)
}

type ReporterFunc func(Progress)

func (f ReporterFunc) Report(p Progress) { f(p) }

type Options struct {
	Route   string
	Specs   []models.VariationSpec
	Storage filestore.Backend
	Replace bool
	// Policy is evaluated per record. Never is treated as Always: a field
	// that defers rendering relies on batch runs to do it.
	Policy render.Policy
}

type Failure struct {
	Key string
	Err error
}

// Result counts every job. A failed job counts as processed too.
type Result struct {
	Total     int
	Processed int
	Rendered  int
	Skipped   int
	Failures  []Failure
}

func (r Result) Failed() int { return len(r.Failures) }

type Driver struct {
	renderer *render.Renderer
	workers  int
	failFast bool
	reporter Reporter
	log      logging.Logger
}

type Option func(*Driver)

// WithWorkers sets the number of concurrent jobs. Zero and one run serially.
func WithWorkers(n int) Option {
	return func(d *Driver) { d.workers = n }
}

// WithFailFast stops the run at the first failed job instead of collecting
// failures.
func WithFailFast(v bool) Option {
	return func(d *Driver) { d.failFast = v }
}

func WithReporter(r Reporter) Option {
	return func(d *Driver) { d.reporter = r }
}

func New(renderer *render.Renderer, opts ...Option) *Driver {
	d := &Driver{
		renderer: renderer,
		workers:  1,
		reporter: ReporterFunc(func(Progress) {}),
		log:      logging.GetLogger("batch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type jobResult struct {
	key      string
	rendered bool
	declined bool
	err      error
}

// Run renders the variations of every key. Jobs run in any order; the only
// shared state is the result stream read by a single collecting loop.
func (d *Driver) Run(ctx context.Context, keys []string, opts Options) (res Result, err error) {
	const op = "batch.Run"

	policy := opts.Policy
	if policy.IsNever() {
		policy = render.Always()
	}

	log := d.log.With(logging.Group("batch",
		"route", opts.Route,
		"records", len(keys),
		"workers", d.workers,
		"replace", opts.Replace,
	))
	log.Info("batch started")
	defer func() {
		if err != nil {
			log.Error("batch aborted", "processed", res.Processed, "error", err)
			return
		}
		log.Info("batch finished", "processed", res.Processed, "failed", res.Failed())
	}()

	results := make(chan jobResult)
	collected := make(chan Result, 1)
	go func() {
		r := Result{Total: len(keys)}
		for jr := range results {
			r.Processed++
			switch {
			case jr.err != nil:
				r.Failures = append(r.Failures, Failure{Key: jr.key, Err: jr.err})
				metrics.RecordBatchJob(opts.Route, metrics.OutcomeFailed)
			case jr.rendered:
				r.Rendered++
				metrics.RecordBatchJob(opts.Route, metrics.OutcomeRendered)
			default:
				r.Skipped++
				metrics.RecordBatchJob(opts.Route, metrics.OutcomeSkipped)
			}
			d.reporter.Report(Progress{
				Done:     r.Processed,
				Total:    r.Total,
				Failed:   len(r.Failures),
				Key:      jr.key,
				Err:      jr.err,
				Declined: jr.declined,
			})
		}
		collected <- r
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, d.workers))

	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			jr := d.runJob(gctx, key, policy, opts)
			results <- jr
			if jr.err != nil && d.failFast {
				return fmt.Errorf("%s: %w", key, jr.err)
			}
			return nil
		})
	}

	err = g.Wait()
	close(results)
	res = <-collected

	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (d *Driver) runJob(ctx context.Context, key string, policy render.Policy, opts Options) jobResult {
	job := render.Job{
		Key:     key,
		Specs:   opts.Specs,
		Storage: opts.Storage,
		Replace: opts.Replace,
	}
	if !policy.ShouldRender(job) {
		return jobResult{key: key, declined: true}
	}

	out, err := d.renderer.Run(ctx, job)
	if err != nil {
		return jobResult{key: key, err: err}
	}
	return jobResult{key: key, rendered: len(out.Rendered) > 0}
}
