// internal/pipeline/features/processor.go
package features

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	apperrors "hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/common/metrics"
	"hotspot-selection/internal/models"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const sharedSlack = 5 * time.Second

// ChatGenerator is the part of an eino chat model the processor uses.
type ChatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

type Input struct {
	URL   string
	Title string
	Body  string
}

type Config struct {
	ModelName      string
	MaxAttempts    int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
	BodyRunes      int
	SummaryRunes   int
	MaxKeywords    int
	CacheTTL       time.Duration
	Categories     []string
	RequestsPerMin int
	Burst          int
}

type ModelConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// NewChatModel builds the OpenAI-compatible eino chat model.
func NewChatModel(ctx context.Context, cfg ModelConfig) (ChatGenerator, error) {
	temperature := cfg.Temperature
	maxTokens := cfg.MaxTokens
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return cm, nil
}

// Processor derives feature records through the model backend. It owns the
// rate limiter, the cache and the per-fingerprint call collapsing.
type Processor struct {
	config  *Config
	model   ChatGenerator
	cache   Cache
	limiter *rate.Limiter
	group   singleflight.Group
	logger  logger.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewProcessor(config *Config, gen ChatGenerator, cache Cache, log logger.Logger) *Processor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 100 * time.Millisecond
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 60 * time.Second
	}
	if config.BodyRunes <= 0 {
		config.BodyRunes = 2000
	}
	if config.SummaryRunes <= 0 {
		config.SummaryRunes = 200
	}
	if config.MaxKeywords <= 0 {
		config.MaxKeywords = 10
	}
	if cache == nil {
		cache = NewMemoryCache()
	}

	limit := rate.Inf
	burst := config.Burst
	if config.RequestsPerMin > 0 {
		limit = rate.Limit(float64(config.RequestsPerMin) / 60.0)
	}
	if burst <= 0 {
		burst = 1
	}

	return &Processor{
		config:  config,
		model:   gen,
		cache:   cache,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.ForComponent(log, "features"),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Fingerprint identifies content by url, title and a hash of the body.
func Fingerprint(url, title, body string) string {
	bodySum := sha256.Sum256([]byte(body))
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(hex.EncodeToString(bodySum[:])))
	return hex.EncodeToString(h.Sum(nil))
}

// Analyze always returns a record. When every model attempt fails the record
// is built from local heuristics and marked degraded; such records are not cached.
func (p *Processor) Analyze(ctx context.Context, in Input) *models.FeatureRecord {
	fp := Fingerprint(in.URL, in.Title, in.Body)

	if rec := p.lookup(ctx, fp); rec != nil {
		return rec
	}

	// The shared call serves every caller waiting on fp, so it runs detached
	// from this caller's cancellation and is bounded by sharedBudget instead.
	ch := p.group.DoChan(fp, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.sharedBudget())
		defer cancel()

		if rec := p.lookup(sctx, fp); rec != nil {
			return rec, nil
		}
		rec := p.analyze(sctx, fp, in)
		if !rec.Degraded {
			if err := p.cache.Set(sctx, fp, rec, p.config.CacheTTL); err != nil {
				p.logger.Warn("feature cache write failed", map[string]interface{}{
					"fingerprint": fp,
					"error":       err.Error(),
				})
			}
		}
		return rec, nil
	})

	select {
	case res := <-ch:
		rec := copyRecord(*res.Val.(*models.FeatureRecord))
		return &rec
	case <-ctx.Done():
		return p.degrade(fp, in, apperrors.ErrCodeModelTimeout)
	}
}

// sharedBudget covers every model attempt, the backoff between them and some
// slack for the rate limiter and the cache.
func (p *Processor) sharedBudget() time.Duration {
	budget := time.Duration(p.config.MaxAttempts)*p.config.AttemptTimeout + sharedSlack
	for attempt := 1; attempt < p.config.MaxAttempts; attempt++ {
		budget += p.config.InitialBackoff * time.Duration(1<<(attempt-1))
	}
	return budget
}

func (p *Processor) lookup(ctx context.Context, fp string) *models.FeatureRecord {
	rec, ok, err := p.cache.Get(ctx, fp)
	switch {
	case err != nil:
		metrics.FeatureCacheLookups.WithLabelValues("error").Inc()
		p.logger.Warn("feature cache read failed", map[string]interface{}{
			"fingerprint": fp,
			"error":       err.Error(),
		})
		return nil
	case ok:
		metrics.FeatureCacheLookups.WithLabelValues("hit").Inc()
		return rec
	default:
		metrics.FeatureCacheLookups.WithLabelValues("miss").Inc()
		return nil
	}
}

func (p *Processor) analyze(ctx context.Context, fp string, in Input) *models.FeatureRecord {
	var lastErr error

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		rec, err := p.callModel(ctx, in)
		if err == nil {
			metrics.ModelCalls.WithLabelValues("ok").Inc()
			rec.Fingerprint = fp
			rec.Model = p.config.ModelName
			rec.AnalyzedAt = p.now()
			return rec
		}

		lastErr = err
		metrics.ModelCalls.WithLabelValues(resultLabel(err)).Inc()
		p.logger.Warn("model call failed", map[string]interface{}{
			"fingerprint": fp,
			"attempt":     attempt,
			"maxAttempts": p.config.MaxAttempts,
			"error":       err.Error(),
		})

		if attempt == p.config.MaxAttempts || ctx.Err() != nil {
			break
		}
		backoff := p.config.InitialBackoff * time.Duration(1<<(attempt-1))
		if err := p.sleep(ctx, backoff); err != nil {
			lastErr = apperrors.NewModelTimeoutError(err)
			break
		}
	}

	reason := apperrors.ErrCodeModelCallFailed
	if apperrors.CodeOf(lastErr) == apperrors.ErrCodeModelTimeout {
		reason = apperrors.ErrCodeModelTimeout
	}
	return p.degrade(fp, in, reason)
}

func (p *Processor) degrade(fp string, in Input, reason apperrors.ErrorCode) *models.FeatureRecord {
	rec := heuristicRecord(in, p.config)
	rec.Fingerprint = fp
	rec.Degraded = true
	rec.DegradedReason = string(reason)
	rec.AnalyzedAt = p.now()

	p.logger.Warn("features degraded to heuristics", map[string]interface{}{
		"fingerprint": fp,
		"errorCode":   string(reason),
	})
	return rec
}

func (p *Processor) callModel(ctx context.Context, in Input) (*models.FeatureRecord, error) {
	if p.model == nil {
		return nil, apperrors.NewModelCallFailedError(errors.New("no model backend configured"))
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewModelTimeoutError(err)
	}

	actx, cancel := context.WithTimeout(ctx, p.config.AttemptTimeout)
	defer cancel()

	resp, err := p.model.Generate(actx, buildMessages(in, p.config))
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewModelTimeoutError(err)
		}
		return nil, apperrors.NewModelCallFailedError(err)
	}
	if resp == nil {
		return nil, apperrors.NewModelCallFailedError(fmt.Errorf("%w: empty response", ErrMalformedReply))
	}

	rec, anomalies, err := parseReply(resp.Content, p.config)
	if err != nil {
		return nil, apperrors.NewModelCallFailedError(err)
	}
	for _, a := range anomalies {
		logger.Anomaly(p.logger, a.Field, a.Got, a.Coerced, map[string]interface{}{"title": in.Title})
	}
	return rec, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrMalformedReply):
		return "malformed"
	case apperrors.CodeOf(err) == apperrors.ErrCodeModelTimeout:
		return "timeout"
	default:
		return "error"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
