package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"stdimage/internal/filestore"
	"stdimage/internal/logging"
	"stdimage/internal/metrics"
	"stdimage/internal/models"
	"stdimage/internal/naming"
)

// Job renders the variations of one stored original.
type Job struct {
	Key     string
	Specs   []models.VariationSpec
	Storage filestore.Backend
	// Replace overwrites variations that already exist.
	Replace bool
	// Source holds the original's bytes when the caller already has them.
	Source []byte
}

// Outcome lists the variation keys a job wrote and the ones it left alone.
type Outcome struct {
	Rendered []string
	Skipped  []string
}

type policyKind int

const (
	policyAlways policyKind = iota
	policyNever
	policyPredicate
)

// Policy decides whether a job renders at all.
type Policy struct {
	kind policyKind
	name string
	pred func(Job) bool
}

func Always() Policy { return Policy{kind: policyAlways} }

func Never() Policy { return Policy{kind: policyNever} }

// Predicate renders only when fn returns true for the job.
func Predicate(name string, fn func(Job) bool) Policy {
	return Policy{kind: policyPredicate, name: name, pred: fn}
}

func (p Policy) ShouldRender(job Job) bool {
	switch p.kind {
	case policyNever:
		return false
	case policyPredicate:
		return p.pred(job)
	}
	return true
}

func (p Policy) IsNever() bool { return p.kind == policyNever }

func (p Policy) String() string {
	switch p.kind {
	case policyNever:
		return "never"
	case policyPredicate:
		return p.name
	}
	return "always"
}

// ParsePolicy resolves a render_variations setting: a boolean word or the
// name of a registered predicate.
func ParsePolicy(value string, predicates map[string]func(Job) bool) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "always", "true", "yes":
		return Always(), nil
	case "never", "false", "no":
		return Never(), nil
	}
	if fn, ok := predicates[value]; ok && fn != nil {
		return Predicate(value, fn), nil
	}
	return Policy{}, models.NewConfigError(fmt.Sprintf(
		"render_variations %q is neither a boolean nor a registered predicate", value))
}

// Run renders every spec of job. Existing variations are skipped unless
// job.Replace is set. The original is read and decoded at most once, and
// only when some variation needs rendering.
func (r *Renderer) Run(ctx context.Context, job Job) (out Outcome, err error) {
	const op = "render.Run"

	log := r.log.With(logging.Group("job", "key", job.Key, "replace", job.Replace))
	defer func() {
		if err != nil {
			log.Error("render failed", "error", err)
			return
		}
		log.Debug("render done", "rendered", len(out.Rendered), "skipped", len(out.Skipped))
	}()

	ext := naming.Ext(job.Key)
	var src image.Image
	for _, spec := range job.Specs {
		key := naming.VariationKey(job.Key, spec.Name)
		rendered, err := r.runVariation(ctx, job, spec, key, ext, &src)
		if err != nil {
			metrics.RecordVariation(spec.Name, metrics.OutcomeFailed, 0)
			return out, fmt.Errorf("%s: %s: %w", op, key, err)
		}
		if rendered {
			out.Rendered = append(out.Rendered, key)
		} else {
			out.Skipped = append(out.Skipped, key)
		}
	}
	return out, nil
}

func (r *Renderer) runVariation(
	ctx context.Context,
	job Job,
	spec models.VariationSpec,
	key, ext string,
	src *image.Image,
) (bool, error) {
	unlock, err := r.locker.Lock(ctx, key)
	if err != nil {
		return false, err
	}
	defer unlock()

	if !job.Replace {
		exists, err := job.Storage.Exists(ctx, key)
		if err != nil {
			return false, err
		}
		if exists {
			metrics.RecordVariation(spec.Name, metrics.OutcomeSkipped, 0)
			return false, nil
		}
	}

	start := time.Now()
	if *src == nil {
		data := job.Source
		if data == nil {
			if data, err = filestore.ReadAll(ctx, job.Storage, job.Key); err != nil {
				return false, err
			}
		}
		if *src, err = Decode(data); err != nil {
			return false, err
		}
	}

	img, err := r.transform(*src, spec)
	if err != nil {
		return false, err
	}
	data, err := r.encode(img, ext)
	if err != nil {
		return false, err
	}
	if _, err := job.Storage.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return false, err
	}

	metrics.RecordVariation(spec.Name, metrics.OutcomeRendered, time.Since(start).Seconds())
	return true, nil
}
