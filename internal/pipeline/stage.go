// internal/pipeline/stage.go
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/metrics"
	"hotspot-selection/internal/common/observability"
	"hotspot-selection/internal/models"
	"hotspot-selection/internal/pipeline/features"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var stageOrder = []string{
	string(models.BatchExtracting),
	string(models.BatchAnalyzing),
	string(models.BatchClassifying),
	string(models.BatchScoring),
	string(models.BatchStoring),
}

// item carries one hotspot through the stages. Stage functions only read it;
// their update is applied by the stage runner once the function returns.
type item struct {
	hotspot            models.Hotspot
	content            *models.ExtractedContent
	features           *models.FeatureRecord
	cls                models.Classification
	results            []models.SuitabilityResult
	extractionDegraded bool
	stored             bool

	failed      bool
	failedStage string
	reason      string
	cause       error
}

func newItems(hotspots []models.Hotspot) []*item {
	items := make([]*item, len(hotspots))
	for i := range hotspots {
		items[i] = &item{hotspot: hotspots[i]}
	}
	return items
}

// outcome ranks failed over analysis_degraded over extraction_degraded over ok.
func (it *item) outcome() string {
	switch {
	case it.failed:
		return models.OutcomeFailed
	case it.features != nil && it.features.Degraded:
		return models.OutcomeAnalysisDegraded
	case it.extractionDegraded:
		return models.OutcomeExtractionDegraded
	default:
		return models.OutcomeOK
	}
}

func (it *item) fail(stage, reason string, cause error) {
	it.failed = true
	it.failedStage = stage
	it.reason = reason
	it.cause = cause
}

func (it *item) err() error {
	if _, ok := errors.AsStandardError(it.cause); ok {
		return it.cause
	}
	if it.reason == string(errors.ErrCodeTimeout) {
		return errors.NewTimeoutError(it.failedStage, it.cause)
	}
	return fmt.Errorf("%s failed for %s: %s", it.failedStage, it.hotspot.ID, it.reason)
}

// update is what a stage function produced for one item.
type update struct {
	apply    func(*item)
	degraded bool
	err      error
	reason   string
}

type stageFunc func(ctx context.Context, it *item) update

func (p *Pipeline) process(ctx context.Context, r *run, items []*item, profs []*models.PlatformProfile, store bool) {
	cpu := p.config.ExtractionWorkers

	p.runStage(ctx, r, models.BatchExtracting, items, p.config.ExtractionWorkers, p.extract)
	p.runStage(ctx, r, models.BatchAnalyzing, items, p.config.AnalysisWorkers, p.analyze)
	p.runStage(ctx, r, models.BatchClassifying, items, cpu, p.classify)
	p.runStage(ctx, r, models.BatchScoring, items, cpu, func(_ context.Context, it *item) update {
		return p.score(r, it, profs)
	})
	if store && p.deps.Store != nil {
		p.runStage(ctx, r, models.BatchStoring, items, p.config.StorageWorkers, func(ctx context.Context, it *item) update {
			return p.store(ctx, r, it)
		})
	}
}

// runStage runs fn over the surviving items with at most limit in flight.
// Items still running when ctx ends leave the batch as failed.
func (p *Pipeline) runStage(ctx context.Context, r *run, stage models.BatchState, items []*item, limit int, fn stageFunc) {
	name := string(stage)
	r.summary.State = stage
	start := p.now()

	ctx, span := p.deps.Obs.Tracing().StartSpan(ctx, "pipeline."+strings.ToLower(name),
		attribute.String("run_id", r.id),
	)

	var (
		mu     sync.Mutex
		counts models.StageCounts
		g      errgroup.Group
	)
	g.SetLimit(limit)

	abandon := func(it *item, err error) {
		mu.Lock()
		defer mu.Unlock()
		it.fail(name, interruptReason(err), err)
		counts.Failed++
	}

	for _, it := range items {
		if it.failed {
			continue
		}
		it := it
		if err := ctx.Err(); err != nil {
			abandon(it, err)
			continue
		}
		g.Go(func() error {
			u, err := runItem(ctx, it, fn)
			if err != nil {
				abandon(it, err)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case u.err != nil:
				it.fail(name, u.reason, u.err)
				counts.Failed++
			default:
				if u.apply != nil {
					u.apply(it)
				}
				if u.degraded {
					counts.Degraded++
				} else {
					counts.Succeeded++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	r.summary.Stages[name] = counts
	metrics.PipelineStageItems.WithLabelValues(name, "succeeded").Add(float64(counts.Succeeded))
	metrics.PipelineStageItems.WithLabelValues(name, "degraded").Add(float64(counts.Degraded))
	metrics.PipelineStageItems.WithLabelValues(name, "failed").Add(float64(counts.Failed))
	metrics.PipelineStageDuration.WithLabelValues(name).Observe(p.now().Sub(start).Seconds())

	span.SetAttributes(
		attribute.Int("succeeded", counts.Succeeded),
		attribute.Int("degraded", counts.Degraded),
		attribute.Int("failed", counts.Failed),
	)
	observability.EndSpan(span, nil)

	p.logger.Debug("stage finished", map[string]interface{}{
		"runId":     r.id,
		"stage":     name,
		"succeeded": counts.Succeeded,
		"degraded":  counts.Degraded,
		"failed":    counts.Failed,
	})
}

// runItem returns as soon as either fn finishes or ctx ends. A late result
// is dropped.
func runItem(ctx context.Context, it *item, fn stageFunc) (update, error) {
	if err := ctx.Err(); err != nil {
		return update{}, err
	}
	done := make(chan update, 1)
	go func() { done <- fn(ctx, it) }()

	select {
	case u := <-done:
		return u, nil
	case <-ctx.Done():
		return update{}, ctx.Err()
	}
}

func interruptReason(err error) string {
	if isDeadline(err) {
		return string(errors.ErrCodeTimeout)
	}
	return "CANCELED"
}

// ==========================
// Stage functions
// ==========================

func (p *Pipeline) extract(ctx context.Context, it *item) update {
	content := p.deps.Extractor.Extract(ctx, it.hotspot.URL, it.hotspot.Source)
	degraded := content.Failed()
	return update{
		degraded: degraded,
		apply: func(it *item) {
			it.content = content
			it.extractionDegraded = degraded
		},
	}
}

// analyze falls back to a title-only input when extraction failed.
func (p *Pipeline) analyze(ctx context.Context, it *item) update {
	in := features.Input{URL: it.hotspot.URL, Title: it.hotspot.Title}
	if !it.content.Failed() {
		in.Body = it.content.BodyText
		if in.Title == "" {
			in.Title = it.content.Title
		}
	}

	rec := p.deps.Analyzer.Analyze(ctx, in)
	if rec == nil {
		return update{err: fmt.Errorf("analyzer returned no record"), reason: string(errors.ErrCodeInternal)}
	}
	return update{
		degraded: rec.Degraded,
		apply:    func(it *item) { it.features = rec },
	}
}

func (p *Pipeline) classify(_ context.Context, it *item) update {
	var summary, body string
	if !it.content.Failed() {
		summary, body = it.content.Summary, it.content.BodyText
	}
	cls := p.deps.Classifier.Classify(it.features, it.hotspot.Title, summary, body)
	return update{
		degraded: cls.Method == models.MethodDefault,
		apply:    func(it *item) { it.cls = cls },
	}
}

func (p *Pipeline) score(r *run, it *item, profs []*models.PlatformProfile) update {
	results := make([]models.SuitabilityResult, 0, len(profs))
	for _, prof := range profs {
		res := p.deps.Engine.Score(&it.hotspot, it.features, it.cls, prof, r.asOf)
		res.RunID = r.id
		res.ExtractionDegraded = it.extractionDegraded
		results = append(results, res)
	}
	return update{apply: func(it *item) { it.results = results }}
}

func (p *Pipeline) store(ctx context.Context, r *run, it *item) update {
	status := models.ExtractionFailed
	if it.content != nil {
		status = it.content.Status
	}
	rec := &models.AnalysisRecord{
		Hotspot:          it.hotspot,
		ExtractionStatus: status,
		Features:         *it.features,
		Classification:   it.cls,
		AnalyzedAt:       r.asOf,
		RunID:            r.id,
	}

	if _, err := p.deps.Store.Save(ctx, rec, it.results); err != nil {
		return update{err: err, reason: string(errors.CodeOf(err))}
	}
	return update{apply: func(it *item) { it.stored = true }}
}
