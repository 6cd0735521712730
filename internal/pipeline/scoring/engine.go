// internal/pipeline/scoring/engine.go
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"hotspot-selection/internal/models"
)

const (
	StrategyEmotionalAppeal  = "emotional_appeal"
	StrategyKnowledgeSharing = "knowledge_sharing"
	StrategyTrendAnalysis    = "trend_analysis"
	StrategyQuickNews        = "quick_news"
)

var generalHotspotWords = []string{"热点", "新闻", "事件", "话题", "最新", "热门"}

var propagationScores = map[models.Propagation]float64{
	models.PropagationLow:    0.2,
	models.PropagationMedium: 0.5,
	models.PropagationHigh:   0.9,
}

type Config struct {
	AcceptanceThreshold float64
	AvoidCeiling        float64
	DefaultHalfLife     float64            // hours
	HalfLives           map[string]float64 // hours, by primary category
}

// DefaultHalfLives decays breaking-news categories faster than evergreen ones.
func DefaultHalfLives() map[string]float64 {
	return map[string]float64{
		"国际": 4,
		"财经": 4,
		"体育": 6,
		"社会": 6,
		"娱乐": 8,
		"科技": 12,
		"健康": 24,
		"文化": 48,
	}
}

type Engine struct {
	config *Config
}

func New(config *Config) *Engine {
	if config.AcceptanceThreshold <= 0 {
		config.AcceptanceThreshold = 0.6
	}
	if config.AvoidCeiling <= 0 {
		config.AvoidCeiling = 0.1
	}
	if config.DefaultHalfLife <= 0 {
		config.DefaultHalfLife = 6
	}
	if config.HalfLives == nil {
		config.HalfLives = DefaultHalfLives()
	}
	return &Engine{config: config}
}

// Score computes the suitability of one hotspot for one platform. The result
// depends only on its arguments.
func (e *Engine) Score(h *models.Hotspot, rec *models.FeatureRecord, cls models.Classification,
	profile *models.PlatformProfile, asOf time.Time) models.SuitabilityResult {

	avoided := inList(profile.DomainFocus.Avoid, cls.PrimaryCategory) ||
		(cls.SecondaryCategory != "" && inList(profile.DomainFocus.Avoid, cls.SecondaryCategory))

	details := models.DetailedScores{
		ContentMatch:        e.contentMatch(h, rec, cls, profile, avoided),
		AudienceRelevance:   audienceRelevance(h, rec, profile),
		Timeliness:          e.timeliness(h, cls, asOf),
		EngagementPotential: engagement(h, rec),
	}

	w := profile.ScoringWeights
	total := w.ContentMatch*details.ContentMatch +
		w.AudienceRelevance*details.AudienceRelevance +
		w.Timeliness*details.Timeliness +
		w.EngagementPotential*details.EngagementPotential
	total = math.Round(clamp01(total)*100) / 100

	threshold := e.config.AcceptanceThreshold
	if profile.AcceptanceThreshold > 0 {
		threshold = profile.AcceptanceThreshold
	}

	return models.SuitabilityResult{
		HotspotID:           h.ID,
		Platform:            profile.Name,
		AnalysisTimestamp:   asOf,
		Title:               h.Title,
		PrimaryCategory:     cls.PrimaryCategory,
		TotalScore:          total,
		DetailedScores:      details,
		Recommended:         total >= threshold,
		RecommendedStrategy: strategyFor(profile),
		ContentAngle:        contentAngle(h.Title, profile),
		Reasons:             reasons(details, h, rec, avoided),
		AnalysisDegraded:    rec != nil && rec.Degraded,
	}
}

// ==========================
// Sub-scores
// ==========================

func (e *Engine) contentMatch(h *models.Hotspot, rec *models.FeatureRecord, cls models.Classification,
	profile *models.PlatformProfile, avoided bool) float64 {

	focus := profile.DomainFocus
	var domain float64
	switch {
	case len(focus.Primary) == 0 && len(focus.Secondary) == 0:
		domain = 0.5
	case inList(focus.Primary, cls.PrimaryCategory) || inList(focus.Primary, cls.SecondaryCategory):
		domain = 1.0
	case inList(focus.Secondary, cls.PrimaryCategory) || inList(focus.Secondary, cls.SecondaryCategory):
		domain = 0.7
	default:
		domain = 0.3
	}
	domain *= 0.5 + 0.5*clamp01(cls.Confidence)

	var keywords []string
	if rec != nil {
		keywords = rec.Keywords
	}
	score := clamp01(0.6*domain + 0.4*preferenceMatch(h.Title, keywords, profile.ContentPreferences))

	if avoided {
		score = math.Min(score, e.config.AvoidCeiling)
	}
	return score
}

// preferenceMatch: a preference inside the title scores 1; shared words score
// 0.2 each up to 0.8; generic hotspot words 0.3; otherwise 0.1.
func preferenceMatch(title string, keywords, preferences []string) float64 {
	if len(preferences) == 0 {
		return 0.5
	}

	lower := strings.ToLower(title)
	words := make(map[string]bool)
	for _, w := range strings.Fields(lower) {
		words[w] = true
	}
	for _, k := range keywords {
		words[strings.ToLower(k)] = true
	}

	best := 0.0
	for _, pref := range preferences {
		p := strings.ToLower(strings.TrimSpace(pref))
		if p == "" {
			continue
		}
		if strings.Contains(lower, p) {
			return 1.0
		}
		overlap := 0
		for _, pw := range strings.Fields(p) {
			if words[pw] {
				overlap++
			}
		}
		if overlap > 0 {
			best = math.Max(best, math.Min(0.8, float64(overlap)*0.2))
		}
	}
	if best > 0 {
		return best
	}

	for _, g := range generalHotspotWords {
		if strings.Contains(title, g) {
			return 0.3
		}
	}
	return 0.1
}

// audienceRelevance is the share of the platform vocabulary found in the
// hotspot's title, keywords or entities, saturating at three hits.
func audienceRelevance(h *models.Hotspot, rec *models.FeatureRecord, profile *models.PlatformProfile) float64 {
	seen := make(map[string]bool)
	var vocab []string
	for _, list := range [][]string{profile.TargetAudience, profile.ContentPreferences, profile.DomainFocus.Primary} {
		for _, v := range list {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" && !seen[v] {
				seen[v] = true
				vocab = append(vocab, v)
			}
		}
	}
	if len(vocab) == 0 {
		return 0.5
	}

	var terms []string
	if rec != nil {
		for _, t := range append(append([]string{}, rec.Keywords...), rec.Entities...) {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				terms = append(terms, t)
			}
		}
	}
	title := strings.ToLower(h.Title)

	hits := 0
	for _, v := range vocab {
		if strings.Contains(title, v) {
			hits++
			continue
		}
		for _, t := range terms {
			if strings.Contains(t, v) || (len([]rune(t)) >= 2 && strings.Contains(v, t)) {
				hits++
				break
			}
		}
	}

	denom := len(vocab)
	if denom > 3 {
		denom = 3
	}
	return clamp01(float64(hits) / float64(denom))
}

// timeliness halves every half-life hours since publication.
func (e *Engine) timeliness(h *models.Hotspot, cls models.Classification, asOf time.Time) float64 {
	ref := h.PublishTime
	if ref.IsZero() {
		ref = h.CollectTime
	}
	if ref.IsZero() {
		return 0.5
	}

	hours := asOf.Sub(ref).Hours()
	if hours <= 0 {
		return 1
	}

	halfLife := e.config.DefaultHalfLife
	if hl, ok := e.config.HalfLives[cls.PrimaryCategory]; ok && hl > 0 {
		halfLife = hl
	}
	return clamp01(math.Pow(0.5, hours/halfLife))
}

func engagement(h *models.Hotspot, rec *models.FeatureRecord) float64 {
	attraction := 0.0
	prop := propagationScores[models.PropagationMedium]
	if rec != nil {
		attraction = clamp01(rec.TitleAttraction)
		if s, ok := propagationScores[rec.PropagationPotential]; ok {
			prop = s
		}
	}
	return clamp01(0.4*attraction + 0.3*prop + 0.3*HotNorm(h.HotValue))
}

// HotNorm maps a raw hot value onto [0,1] with log1p(hot)/10.
func HotNorm(hot float64) float64 {
	if hot <= 0 || math.IsNaN(hot) {
		return 0
	}
	return clamp01(math.Log1p(hot) / 10)
}

// ==========================
// Strategy & explanation
// ==========================

func strategyFor(profile *models.PlatformProfile) string {
	if profile.Strategy != "" {
		return profile.Strategy
	}
	switch style := profile.Style; {
	case strings.Contains(style, "情感"):
		return StrategyEmotionalAppeal
	case strings.Contains(style, "深度"), strings.Contains(style, "专业"):
		return StrategyKnowledgeSharing
	case strings.Contains(style, "趋势"):
		return StrategyTrendAnalysis
	default:
		return StrategyQuickNews
	}
}

func contentAngle(title string, profile *models.PlatformProfile) string {
	switch style := profile.Style; {
	case strings.Contains(style, "情感"):
		return fmt.Sprintf("个人视角：%s的情感体验分享", title)
	case strings.Contains(style, "深度"), strings.Contains(style, "专业"):
		return fmt.Sprintf("深度分析：%s背后的逻辑与影响", title)
	case strings.Contains(style, "趋势"):
		return fmt.Sprintf("趋势解读：%s的发展趋势分析", title)
	default:
		return fmt.Sprintf("热点解读：%s的关键信息梳理", title)
	}
}

func reasons(d models.DetailedScores, h *models.Hotspot, rec *models.FeatureRecord, avoided bool) []string {
	var out []string

	switch hot := HotNorm(h.HotValue); {
	case hot >= 0.7:
		out = append(out, "热度很高")
	case hot >= 0.4:
		out = append(out, "热度适中")
	}
	switch {
	case d.Timeliness >= 0.7:
		out = append(out, "时效性很强")
	case d.Timeliness >= 0.4:
		out = append(out, "时效性良好")
	}
	if rec != nil && rec.TitleAttraction >= 0.5 {
		out = append(out, "标题吸引力强")
	}
	switch {
	case d.ContentMatch >= 0.7:
		out = append(out, "内容匹配度高")
	case d.ContentMatch >= 0.4:
		out = append(out, "内容较匹配")
	}
	switch {
	case d.AudienceRelevance >= 0.8:
		out = append(out, "受众匹配度高")
	case d.AudienceRelevance >= 0.5:
		out = append(out, "受众适配性良好")
	}
	if avoided {
		out = append(out, "属于平台规避领域")
	}
	if rec != nil && rec.Degraded {
		out = append(out, "特征分析已降级")
	}
	if len(out) == 0 {
		out = append(out, "综合表现良好")
	}
	return out
}

func inList(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
