package scoring

import (
	"math"
	"testing"
	"time"

	"hotspot-selection/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

var asOf = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testProfile() *models.PlatformProfile {
	return &models.PlatformProfile{
		Name:               "zhihu",
		TargetAudience:     []string{"科技爱好者", "职场人士"},
		ContentPreferences: []string{"人工智能", "深度 分析"},
		Style:              "深度专业",
		DomainFocus: models.DomainFocus{
			Primary:   []string{"科技"},
			Secondary: []string{"财经"},
			Avoid:     []string{"娱乐"},
		},
		ScoringWeights: models.ScoringWeights{
			ContentMatch:        0.4,
			AudienceRelevance:   0.2,
			Timeliness:          0.2,
			EngagementPotential: 0.2,
		},
	}
}

func testHotspot(hot float64) *models.Hotspot {
	return &models.Hotspot{
		ID:          "weibo_1717200000abcd12_20240601_060000",
		Title:       "人工智能大模型迎来新突破",
		HotValue:    hot,
		Rank:        1,
		PublishTime: asOf.Add(-6 * time.Hour),
	}
}

func testRecord() *models.FeatureRecord {
	return &models.FeatureRecord{
		Keywords:             []string{"人工智能", "大模型"},
		Entities:             []string{"OpenAI"},
		Sentiment:            models.SentimentPositive,
		TitleAttraction:      0.7,
		PropagationPotential: models.PropagationHigh,
	}
}

func testClassification(primary string) models.Classification {
	return models.Classification{PrimaryCategory: primary, Confidence: 0.9, Method: models.MethodRuleEnhanced}
}

func newTestEngine() *Engine {
	return New(&Config{AcceptanceThreshold: 0.6, AvoidCeiling: 0.1, DefaultHalfLife: 6})
}

// ==========================
// Properties
// ==========================

func TestScore_AllScoresWithinUnitInterval(t *testing.T) {
	e := newTestEngine()
	hots := []float64{-5, 0, 1, 100, 1e6, 1e30, math.NaN()}
	attractions := []float64{-1, 0, 0.5, 1, 3}
	categories := []string{"科技", "财经", "娱乐", "其他", ""}
	props := []models.Propagation{models.PropagationLow, models.PropagationHigh, "bogus"}

	for _, hot := range hots {
		for _, a := range attractions {
			for _, c := range categories {
				for _, p := range props {
					rec := testRecord()
					rec.TitleAttraction = a
					rec.PropagationPotential = p
					r := e.Score(testHotspot(hot), rec, testClassification(c), testProfile(), asOf)

					for _, v := range []float64{r.TotalScore, r.DetailedScores.ContentMatch, r.DetailedScores.AudienceRelevance,
						r.DetailedScores.Timeliness, r.DetailedScores.EngagementPotential} {
						require.False(t, math.IsNaN(v))
						require.GreaterOrEqual(t, v, 0.0)
						require.LessOrEqual(t, v, 1.0)
					}
				}
			}
		}
	}
}

func TestScore_Idempotent(t *testing.T) {
	e := newTestEngine()
	first := e.Score(testHotspot(5000), testRecord(), testClassification("科技"), testProfile(), asOf)
	for i := 0; i < 50; i++ {
		again := e.Score(testHotspot(5000), testRecord(), testClassification("科技"), testProfile(), asOf)
		assert.Equal(t, math.Float64bits(first.TotalScore), math.Float64bits(again.TotalScore))
		assert.Equal(t, first, again)
	}
}

func TestScore_TotalRoundedToTwoDecimals(t *testing.T) {
	r := newTestEngine().Score(testHotspot(777), testRecord(), testClassification("科技"), testProfile(), asOf)
	assert.Equal(t, math.Round(r.TotalScore*100)/100, r.TotalScore)
}

func TestScore_AvoidDomainVeto(t *testing.T) {
	e := newTestEngine()
	h := testHotspot(1e6)
	h.Title = "人工智能 深度 分析 热点"

	r := e.Score(h, testRecord(), testClassification("娱乐"), testProfile(), asOf)
	assert.LessOrEqual(t, r.DetailedScores.ContentMatch, 0.1)
	assert.Contains(t, r.Reasons, "属于平台规避领域")

	// also when only the secondary category is avoided
	cls := testClassification("科技")
	cls.SecondaryCategory = "娱乐"
	r = e.Score(h, testRecord(), cls, testProfile(), asOf)
	assert.LessOrEqual(t, r.DetailedScores.ContentMatch, 0.1)
}

func TestScore_HigherHotValueRanksHigher(t *testing.T) {
	e := newTestEngine()
	profile := testProfile()
	profile.ScoringWeights = models.ScoringWeights{
		ContentMatch:        0.2,
		AudienceRelevance:   0.1,
		Timeliness:          0.2,
		EngagementPotential: 0.5,
	}

	hi := e.Score(testHotspot(1000), testRecord(), testClassification("科技"), profile, asOf)
	lo := e.Score(testHotspot(100), testRecord(), testClassification("科技"), profile, asOf)

	assert.Greater(t, hi.TotalScore, lo.TotalScore)
	assert.Greater(t, hi.DetailedScores.EngagementPotential, lo.DetailedScores.EngagementPotential)
}

func TestScore_RecommendationThreshold(t *testing.T) {
	e := newTestEngine()
	profile := testProfile()

	r := e.Score(testHotspot(1e6), testRecord(), testClassification("科技"), profile, asOf)
	assert.Equal(t, r.TotalScore >= 0.6, r.Recommended)

	profile.AcceptanceThreshold = 0.99
	r = e.Score(testHotspot(1e6), testRecord(), testClassification("科技"), profile, asOf)
	assert.False(t, r.Recommended)
}

func TestScore_CarriesIdentity(t *testing.T) {
	rec := testRecord()
	rec.Degraded = true
	r := newTestEngine().Score(testHotspot(10), rec, testClassification("科技"), testProfile(), asOf)

	assert.Equal(t, "weibo_1717200000abcd12_20240601_060000", r.HotspotID)
	assert.Equal(t, "zhihu", r.Platform)
	assert.Equal(t, asOf, r.AnalysisTimestamp)
	assert.Equal(t, "科技", r.PrimaryCategory)
	assert.True(t, r.AnalysisDegraded)
	assert.Contains(t, r.Reasons, "特征分析已降级")
}

// ==========================
// Sub-scores
// ==========================

func TestTimeliness(t *testing.T) {
	e := newTestEngine()
	tests := []struct {
		name     string
		publish  time.Time
		collect  time.Time
		category string
		want     float64
	}{
		{"one default half-life", asOf.Add(-6 * time.Hour), time.Time{}, "其他", 0.5},
		{"two default half-lives", asOf.Add(-12 * time.Hour), time.Time{}, "其他", 0.25},
		{"evergreen category decays slower", asOf.Add(-12 * time.Hour), time.Time{}, "科技", 0.5},
		{"breaking category decays faster", asOf.Add(-4 * time.Hour), time.Time{}, "国际", 0.5},
		{"collect time fallback", time.Time{}, asOf.Add(-6 * time.Hour), "其他", 0.5},
		{"no time known", time.Time{}, time.Time{}, "其他", 0.5},
		{"future publish time", asOf.Add(time.Hour), time.Time{}, "其他", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &models.Hotspot{PublishTime: tt.publish, CollectTime: tt.collect}
			assert.InDelta(t, tt.want, e.timeliness(h, testClassification(tt.category), asOf), 1e-9)
		})
	}
}

func TestTimeliness_MonotonicDecay(t *testing.T) {
	e := newTestEngine()
	prev := 2.0
	for hours := 0; hours <= 72; hours += 3 {
		h := &models.Hotspot{PublishTime: asOf.Add(-time.Duration(hours) * time.Hour)}
		v := e.timeliness(h, testClassification("科技"), asOf)
		assert.LessOrEqual(t, v, prev)
		prev = v
	}
}

func TestPreferenceMatch(t *testing.T) {
	prefs := []string{"人工智能", "deep learning research"}
	tests := []struct {
		name     string
		title    string
		keywords []string
		prefs    []string
		want     float64
	}{
		{"exact substring", "人工智能新进展", nil, prefs, 1.0},
		{"two shared words", "new deep research lab", nil, prefs, 0.4},
		{"keyword overlap", "something else", []string{"learning"}, prefs, 0.2},
		{"general hotspot word", "今日热点速递", nil, prefs, 0.3},
		{"nothing", "平平无奇", nil, prefs, 0.1},
		{"no preferences", "anything", nil, nil, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, preferenceMatch(tt.title, tt.keywords, tt.prefs), 1e-9)
		})
	}
}

func TestAudienceRelevance(t *testing.T) {
	h := &models.Hotspot{Title: "职场人士如何看待人工智能"}
	rec := &models.FeatureRecord{Keywords: []string{"科技"}}

	assert.InDelta(t, 1.0, audienceRelevance(h, rec, testProfile()), 1e-9)
	assert.InDelta(t, 0.5, audienceRelevance(h, rec, &models.PlatformProfile{}), 1e-9)

	none := audienceRelevance(&models.Hotspot{Title: "天气"}, &models.FeatureRecord{}, testProfile())
	assert.Equal(t, 0.0, none)
}

func TestHotNorm(t *testing.T) {
	assert.Equal(t, 0.0, HotNorm(0))
	assert.Equal(t, 0.0, HotNorm(-1))
	assert.InDelta(t, math.Log1p(1000)/10, HotNorm(1000), 1e-12)
	assert.Equal(t, 1.0, HotNorm(1e10))
}

func TestStrategyFor(t *testing.T) {
	tests := map[string]string{
		"情感共鸣": StrategyEmotionalAppeal,
		"深度专业": StrategyKnowledgeSharing,
		"专业解读": StrategyKnowledgeSharing,
		"趋势追踪": StrategyTrendAnalysis,
		"简洁快讯": StrategyQuickNews,
		"":     StrategyQuickNews,
	}
	for style, want := range tests {
		assert.Equal(t, want, strategyFor(&models.PlatformProfile{Style: style}), style)
	}
	assert.Equal(t, "custom", strategyFor(&models.PlatformProfile{Style: "情感", Strategy: "custom"}))
}
