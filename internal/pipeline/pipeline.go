// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/common/metrics"
	"hotspot-selection/internal/common/observability"
	"hotspot-selection/internal/models"
	"hotspot-selection/internal/pipeline/classifier"
	"hotspot-selection/internal/pipeline/features"
	"hotspot-selection/internal/pipeline/profiles"
	"hotspot-selection/internal/pipeline/scoring"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// HotspotSource is satisfied by *loader.Loader.
type HotspotSource interface {
	LoadTopHotspots(ctx context.Context, date *time.Time, limit int) ([]models.Hotspot, error)
	LoadRange(ctx context.Context, start, end time.Time) ([]models.Hotspot, error)
	GetByID(ctx context.Context, id string) (*models.Hotspot, error)
}

// ContentExtractor is satisfied by *extractor.Extractor. Extract never fails;
// problems are reported through the content status.
type ContentExtractor interface {
	Extract(ctx context.Context, rawURL, siteHint string) *models.ExtractedContent
}

// FeatureAnalyzer is satisfied by *features.Processor. Analyze never fails;
// model problems produce a degraded record.
type FeatureAnalyzer interface {
	Analyze(ctx context.Context, in features.Input) *models.FeatureRecord
}

// ResultStore is satisfied by *storage.Store.
type ResultStore interface {
	Save(ctx context.Context, rec *models.AnalysisRecord, results []models.SuitabilityResult) (int, error)
	LatestAnalysis(ctx context.Context, hotspotID string) (*models.AnalysisRecord, error)
	ResultsFor(ctx context.Context, hotspotID string, analyzedAt time.Time) ([]models.SuitabilityResult, error)
}

// ProfileSource is satisfied by *profiles.Store.
type ProfileSource interface {
	Snapshot() *profiles.Snapshot
}

type Config struct {
	ExtractionWorkers   int
	AnalysisWorkers     int
	StorageWorkers      int
	BatchTimeout        time.Duration
	DefaultLimit        int
	DefaultPlatforms    []string
	ServeStoredAnalysis bool
	MaxRecommended      int
}

type Dependencies struct {
	Source     HotspotSource
	Extractor  ContentExtractor
	Analyzer   FeatureAnalyzer
	Classifier *classifier.Classifier
	Engine     *scoring.Engine
	Profiles   ProfileSource
	Store      ResultStore
	Obs        *observability.Observability
}

// Pipeline runs batches of hotspots through extraction, feature analysis,
// classification, scoring and storage. A failure of one item never aborts
// the batch; only an unreadable source does.
type Pipeline struct {
	config *Config
	deps   Dependencies
	logger logger.Logger
	now    func() time.Time
}

func New(config *Config, deps Dependencies, log logger.Logger) *Pipeline {
	if config.ExtractionWorkers <= 0 {
		config.ExtractionWorkers = 8
	}
	if config.AnalysisWorkers <= 0 {
		config.AnalysisWorkers = 3
	}
	if config.StorageWorkers <= 0 {
		config.StorageWorkers = 4
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 50
	}
	if config.MaxRecommended <= 0 {
		config.MaxRecommended = 20
	}
	return &Pipeline{
		config: config,
		deps:   deps,
		logger: logger.ForComponent(log, "pipeline"),
		now:    time.Now,
	}
}

// BatchRequest selects the hotspots of one batch: a single day (Date, default
// today) or an inclusive range (Start and End).
type BatchRequest struct {
	RunID     string
	Date      *time.Time
	Start     *time.Time
	End       *time.Time
	Limit     int
	Platforms []string
}

// AnalyzeBatch runs one batch end to end. The returned error is non-nil only
// for a bad request or a batch-fatal source failure; the summary is always
// returned.
func (p *Pipeline) AnalyzeBatch(ctx context.Context, req BatchRequest) (*models.BatchSummary, error) {
	run := p.newRun(req.RunID)
	summary := run.summary
	log := p.logger.WithFields(map[string]interface{}{"runId": run.id})

	platforms, err := p.resolvePlatforms(req.Platforms)
	if err != nil {
		run.finish(models.BatchFailed, p.now())
		return summary, err
	}

	if p.config.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.BatchTimeout)
		defer cancel()
	}

	ctx, span := p.deps.Obs.Tracing().StartSpan(ctx, "pipeline.batch",
		attribute.String("run_id", run.id),
		attribute.Int("platforms", len(platforms)),
	)

	summary.State = models.BatchLoading
	hotspots, err := p.load(ctx, req)
	if err != nil {
		summary.FailedStage = string(models.BatchLoading)
		p.finishBatch(ctx, run, models.BatchFailed)
		log.Error("batch failed while loading", map[string]interface{}{"error": err.Error()})
		observability.EndSpan(span, err)
		return summary, err
	}
	log.Info("batch loaded", map[string]interface{}{"hotspots": len(hotspots), "platforms": len(platforms)})

	items := newItems(hotspots)
	summary.Total = len(items)
	for _, prof := range platforms {
		summary.ResultsStored[prof.Name] = 0
	}

	p.process(ctx, run, items, platforms, true)
	p.collect(run, items)

	state := models.BatchDone
	switch {
	case summary.Total > 0 && summary.Failed == summary.Total:
		state = models.BatchFailed
		summary.FailedStage = lastFailedStage(items)
	case summary.Failed > 0:
		state = models.BatchPartiallyFailed
	}
	p.finishBatch(ctx, run, state)

	log.Info("batch finished", map[string]interface{}{
		"state":              string(summary.State),
		"total":              summary.Total,
		"ok":                 summary.OK,
		"extractionDegraded": summary.ExtractionDegraded,
		"analysisDegraded":   summary.AnalysisDegraded,
		"failed":             summary.Failed,
		"durationMs":         summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	})
	observability.EndSpan(span, nil)
	return summary, nil
}

// ScoreOutcome is what ScoreHotspots produced: results for the hotspots that
// made it through, and the stage and reason for each that did not.
type ScoreOutcome struct {
	Results  []models.SuitabilityResult
	Failures map[string]string // hotspot id -> "Stage: REASON"
}

// ScoreHotspots analyzes and scores caller-supplied hotspots without storing
// anything. Results are ordered by total score, best first.
func (p *Pipeline) ScoreHotspots(ctx context.Context, hotspots []models.Hotspot, platforms []string) (*ScoreOutcome, error) {
	profs, err := p.resolvePlatforms(platforms)
	if err != nil {
		return nil, err
	}
	out := &ScoreOutcome{
		Results:  []models.SuitabilityResult{},
		Failures: map[string]string{},
	}
	if len(hotspots) == 0 {
		return out, nil
	}

	run := p.newRun("")
	items := newItems(hotspots)
	p.process(ctx, run, items, profs, false)

	for _, it := range items {
		if it.failed {
			out.Failures[it.hotspot.ID] = failureReason(it)
			continue
		}
		out.Results = append(out.Results, it.results...)
	}
	SortResults(out.Results)

	if len(out.Failures) > 0 {
		p.logger.Warn("hotspots dropped from scoring", map[string]interface{}{
			"failed": len(out.Failures),
			"total":  len(items),
		})
	}
	return out, nil
}

// HotspotAnalysis is the outcome of analyzing a single hotspot.
type HotspotAnalysis struct {
	Hotspot        models.Hotspot             `json:"hotspot"`
	Content        *models.ExtractedContent   `json:"content,omitempty"`
	Features       models.FeatureRecord       `json:"features"`
	Classification models.Classification      `json:"classification"`
	Results        []models.SuitabilityResult `json:"results"`
	Outcome        string                     `json:"outcome"`
	AnalyzedAt     time.Time                  `json:"analyzedAt"`
	FromStore      bool                       `json:"fromStore"`
}

// AnalyzeHotspot analyzes one hotspot by id. When stored analysis is served,
// the latest stored analysis is reused and only missing platforms are scored.
func (p *Pipeline) AnalyzeHotspot(ctx context.Context, id string, platforms []string) (*HotspotAnalysis, error) {
	profs, err := p.resolvePlatforms(platforms)
	if err != nil {
		return nil, err
	}

	if p.config.ServeStoredAnalysis && p.deps.Store != nil {
		if out, ok := p.fromStore(ctx, id, profs); ok {
			return out, nil
		}
	}

	h, err := p.deps.Source.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	run := p.newRun("")
	items := newItems([]models.Hotspot{*h})
	p.process(ctx, run, items, profs, p.deps.Store != nil)

	it := items[0]
	if it.failed {
		return nil, it.err()
	}
	return &HotspotAnalysis{
		Hotspot:        it.hotspot,
		Content:        it.content,
		Features:       *it.features,
		Classification: it.cls,
		Results:        it.results,
		Outcome:        it.outcome(),
		AnalyzedAt:     run.asOf,
	}, nil
}

func (p *Pipeline) fromStore(ctx context.Context, id string, profs []*models.PlatformProfile) (*HotspotAnalysis, bool) {
	rec, err := p.deps.Store.LatestAnalysis(ctx, id)
	if err != nil {
		return nil, false
	}
	stored, err := p.deps.Store.ResultsFor(ctx, id, rec.AnalyzedAt)
	if err != nil {
		p.logger.Warn("stored results unavailable, re-analyzing", map[string]interface{}{
			"hotspotId": id,
			"error":     err.Error(),
		})
		return nil, false
	}

	byPlatform := make(map[string]models.SuitabilityResult, len(stored))
	for _, r := range stored {
		byPlatform[r.Platform] = r
	}

	extractionDegraded := rec.ExtractionStatus == models.ExtractionFailed
	results := make([]models.SuitabilityResult, 0, len(profs))
	for _, prof := range profs {
		if r, ok := byPlatform[prof.Name]; ok {
			results = append(results, r)
			continue
		}
		// A platform added after the stored analysis: score it from the stored features.
		r := p.deps.Engine.Score(&rec.Hotspot, &rec.Features, rec.Classification, prof, rec.AnalyzedAt)
		r.RunID = rec.RunID
		r.ExtractionDegraded = extractionDegraded
		results = append(results, r)
	}
	SortResults(results)

	it := &item{hotspot: rec.Hotspot, features: &rec.Features, extractionDegraded: extractionDegraded}
	return &HotspotAnalysis{
		Hotspot:        rec.Hotspot,
		Features:       rec.Features,
		Classification: rec.Classification,
		Results:        results,
		Outcome:        it.outcome(),
		AnalyzedAt:     rec.AnalyzedAt,
		FromStore:      true,
	}, true
}

// ==========================
// Batch bookkeeping
// ==========================

type run struct {
	id      string
	asOf    time.Time
	summary *models.BatchSummary
}

func (p *Pipeline) newRun(id string) *run {
	if id == "" {
		id = uuid.New().String()
	}
	now := p.now().UTC()
	return &run{
		id: id,
		// PostgreSQL keeps microseconds; the key must read back unchanged.
		asOf: now.Truncate(time.Microsecond),
		summary: &models.BatchSummary{
			RunID:         id,
			State:         models.BatchLoading,
			Stages:        make(map[string]models.StageCounts),
			ResultsStored: make(map[string]int),
			StartedAt:     now,
		},
	}
}

func (r *run) finish(state models.BatchState, at time.Time) {
	r.summary.State = state
	r.summary.FinishedAt = at.UTC()
}

func (p *Pipeline) finishBatch(ctx context.Context, r *run, state models.BatchState) {
	r.finish(state, p.now())
	s := r.summary
	metrics.PipelineBatches.WithLabelValues(string(state)).Inc()
	p.deps.Obs.RecordBatch(ctx, string(state), map[string]int{
		models.OutcomeOK:                 s.OK,
		models.OutcomeExtractionDegraded: s.ExtractionDegraded,
		models.OutcomeAnalysisDegraded:   s.AnalysisDegraded,
		models.OutcomeFailed:             s.Failed,
	}, s.FinishedAt.Sub(s.StartedAt))
}

func (p *Pipeline) resolvePlatforms(names []string) ([]*models.PlatformProfile, error) {
	if len(names) == 0 {
		names = p.config.DefaultPlatforms
	}
	snap := p.deps.Profiles.Snapshot()
	if snap == nil || snap.Len() == 0 {
		return nil, errors.NewConfigInvalidError("profiles", "no platform profiles loaded")
	}
	return snap.Resolve(names)
}

func (p *Pipeline) load(ctx context.Context, req BatchRequest) ([]models.Hotspot, error) {
	switch {
	case req.Start != nil || req.End != nil:
		if req.Start == nil || req.End == nil {
			return nil, errors.NewInvalidInputError("both start and end are required for a date range")
		}
		hs, err := p.deps.Source.LoadRange(ctx, *req.Start, *req.End)
		if err != nil {
			return nil, err
		}
		if req.Limit > 0 && len(hs) > req.Limit {
			hs = hs[:req.Limit]
		}
		return hs, nil
	default:
		limit := req.Limit
		if limit <= 0 {
			limit = p.config.DefaultLimit
		}
		return p.deps.Source.LoadTopHotspots(ctx, req.Date, limit)
	}
}

func failureReason(it *item) string {
	return fmt.Sprintf("%s: %s", it.failedStage, it.reason)
}

// collect folds item outcomes into the summary.
func (p *Pipeline) collect(r *run, items []*item) {
	s := r.summary
	var recommended []models.RecommendedItem
	for _, it := range items {
		switch it.outcome() {
		case models.OutcomeFailed:
			s.Failed++
			if s.ItemFailures == nil {
				s.ItemFailures = make(map[string]string)
			}
			s.ItemFailures[it.hotspot.ID] = failureReason(it)
			continue
		case models.OutcomeAnalysisDegraded:
			s.AnalysisDegraded++
		case models.OutcomeExtractionDegraded:
			s.ExtractionDegraded++
		default:
			s.OK++
		}
		for _, res := range it.results {
			if it.stored {
				s.ResultsStored[res.Platform]++
			}
			if res.Recommended {
				recommended = append(recommended, models.RecommendedItem{
					HotspotID:  res.HotspotID,
					Title:      res.Title,
					Platform:   res.Platform,
					TotalScore: res.TotalScore,
					Strategy:   res.RecommendedStrategy,
				})
			}
		}
	}

	sort.SliceStable(recommended, func(i, j int) bool {
		if recommended[i].TotalScore != recommended[j].TotalScore {
			return recommended[i].TotalScore > recommended[j].TotalScore
		}
		if recommended[i].HotspotID != recommended[j].HotspotID {
			return recommended[i].HotspotID < recommended[j].HotspotID
		}
		return recommended[i].Platform < recommended[j].Platform
	})
	if len(recommended) > p.config.MaxRecommended {
		recommended = recommended[:p.config.MaxRecommended]
	}
	s.Recommended = recommended
}

func lastFailedStage(items []*item) string {
	order := map[string]int{}
	for i, st := range stageOrder {
		order[st] = i
	}
	last := ""
	for _, it := range items {
		if it.failed && (last == "" || order[it.failedStage] > order[last]) {
			last = it.failedStage
		}
	}
	return last
}

// SortResults orders results by total score descending, then hotspot id and
// platform so equal scores keep a stable order.
func SortResults(results []models.SuitabilityResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].TotalScore != results[j].TotalScore {
			return results[i].TotalScore > results[j].TotalScore
		}
		if results[i].HotspotID != results[j].HotspotID {
			return results[i].HotspotID < results[j].HotspotID
		}
		return results[i].Platform < results[j].Platform
	})
}

func isDeadline(err error) bool {
	return stderrors.Is(err, context.DeadlineExceeded)
}
