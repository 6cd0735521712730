package features

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Chat Model
// ==========================

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Message), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

const validReply = "```json\n" + `{
  "keywords": ["人工智能", "大模型", "发布会"],
  "entities": [{"name": "OpenAI", "type": "组织"}, "旧金山"],
  "sentiment": "积极",
  "title_attraction": 0.8,
  "propagation_potential": "高",
  "summary": "某公司发布新一代大模型",
  "category": "科技",
  "sub_category": "人工智能",
  "category_confidence": 0.9
}` + "\n```"

func testInput() Input {
	return Input{
		URL:   "https://example.com/ai",
		Title: "官宣！新一代大模型发布",
		Body:  "人工智能公司今天在旧金山发布了新一代大模型。",
	}
}

func newTestProcessor(gen ChatGenerator, cache Cache) (*Processor, *[]time.Duration) {
	p := NewProcessor(&Config{
		ModelName:      "test-model",
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		AttemptTimeout: time.Second,
		SummaryRunes:   50,
		MaxKeywords:    5,
		CacheTTL:       time.Hour,
		Categories:     []string{"科技", "财经"},
	}, gen, cache, logger.NewNoOpLogger())

	var waits []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return p, &waits
}

// ==========================
// Processor
// ==========================

func TestAnalyze_ParsesAndCaches(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(&schema.Message{Role: schema.Assistant, Content: validReply}, nil)

	p, _ := newTestProcessor(gen, nil)
	first := p.Analyze(context.Background(), testInput())

	assert.False(t, first.Degraded)
	assert.Equal(t, []string{"人工智能", "大模型", "发布会"}, first.Keywords)
	assert.Equal(t, []string{"OpenAI", "旧金山"}, first.Entities)
	assert.Equal(t, models.SentimentPositive, first.Sentiment)
	assert.Equal(t, models.PropagationHigh, first.PropagationPotential)
	assert.Equal(t, 0.8, first.TitleAttraction)
	assert.Equal(t, "科技", first.SuggestedCategory)
	assert.Equal(t, "test-model", first.Model)
	assert.NotEmpty(t, first.Fingerprint)

	second := p.Analyze(context.Background(), testInput())
	assert.Equal(t, first, second)
	gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestAnalyze_RetriesWithBackoffThenSucceeds(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("503 service unavailable")).Twice()
	gen.On("Generate", mock.Anything, mock.Anything).Return(&schema.Message{Content: validReply}, nil).Once()

	p, waits := newTestProcessor(gen, nil)
	rec := p.Analyze(context.Background(), testInput())

	assert.False(t, rec.Degraded)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *waits)
	gen.AssertNumberOfCalls(t, "Generate", 3)
}

func TestAnalyze_DegradesAfterExhaustion(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(gen *MockGenerator)
		wantReason apperrors.ErrorCode
	}{
		{
			name: "backend errors",
			setup: func(gen *MockGenerator) {
				gen.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
			},
			wantReason: apperrors.ErrCodeModelCallFailed,
		},
		{
			name: "malformed replies",
			setup: func(gen *MockGenerator) {
				gen.On("Generate", mock.Anything, mock.Anything).Return(&schema.Message{Content: "抱歉，我无法回答。"}, nil)
			},
			wantReason: apperrors.ErrCodeModelCallFailed,
		},
		{
			name: "attempt timeouts",
			setup: func(gen *MockGenerator) {
				gen.On("Generate", mock.Anything, mock.Anything).
					Run(func(args mock.Arguments) {
						<-args.Get(0).(context.Context).Done()
					}).
					Return(nil, context.DeadlineExceeded)
			},
			wantReason: apperrors.ErrCodeModelTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(MockGenerator)
			tt.setup(gen)

			p, _ := newTestProcessor(gen, nil)
			p.config.AttemptTimeout = 20 * time.Millisecond

			rec := p.Analyze(context.Background(), testInput())
			require.NotNil(t, rec)
			assert.True(t, rec.Degraded)
			assert.Equal(t, string(tt.wantReason), rec.DegradedReason)
			assert.NotEmpty(t, rec.Keywords)
			assert.Equal(t, models.SentimentNeutral, rec.Sentiment)
			assert.InDelta(t, titleAttraction(testInput().Title), rec.TitleAttraction, 1e-9)
			gen.AssertNumberOfCalls(t, "Generate", 3)

			// degraded records are not cached
			p.Analyze(context.Background(), testInput())
			gen.AssertNumberOfCalls(t, "Generate", 6)
		})
	}
}

func TestAnalyze_ConcurrentCallsShareOneModelCall(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(50 * time.Millisecond) }).
		Return(&schema.Message{Content: validReply}, nil)

	p, _ := newTestProcessor(gen, nil)

	var wg sync.WaitGroup
	results := make([]*models.FeatureRecord, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Analyze(context.Background(), testInput())
		}(i)
	}
	wg.Wait()

	gen.AssertNumberOfCalls(t, "Generate", 1)
	for _, r := range results {
		assert.Equal(t, results[0].Fingerprint, r.Fingerprint)
	}
	// callers get their own copies
	results[0].Keywords[0] = "changed"
	assert.Equal(t, "人工智能", results[1].Keywords[0])
}

func TestAnalyze_ShortLivedCallerDoesNotDegradeOthers(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(100 * time.Millisecond) }).
		Return(&schema.Message{Content: validReply}, nil)

	p, _ := newTestProcessor(gen, nil)

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var short, patient *models.FeatureRecord
	wg.Add(2)
	go func() {
		defer wg.Done()
		short = p.Analyze(shortCtx, testInput())
	}()
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		patient = p.Analyze(context.Background(), testInput())
	}()
	wg.Wait()

	// the short caller gives up on its own deadline
	assert.True(t, short.Degraded)
	assert.Equal(t, string(apperrors.ErrCodeModelTimeout), short.DegradedReason)

	// the shared call kept going for the caller that could still wait
	assert.False(t, patient.Degraded)
	assert.Equal(t, "test-model", patient.Model)
	gen.AssertNumberOfCalls(t, "Generate", 1)

	// and its result was cached
	again := p.Analyze(context.Background(), testInput())
	assert.False(t, again.Degraded)
	gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestSharedBudget(t *testing.T) {
	p, _ := newTestProcessor(nil, nil)
	// 3 attempts of 1s, backoff 100ms + 200ms, plus slack
	assert.Equal(t, 3*time.Second+300*time.Millisecond+sharedSlack, p.sharedBudget())
}

func TestAnalyze_NoModelConfigured(t *testing.T) {
	p, _ := newTestProcessor(nil, nil)
	rec := p.Analyze(context.Background(), testInput())
	assert.True(t, rec.Degraded)
	assert.Equal(t, string(apperrors.ErrCodeModelCallFailed), rec.DegradedReason)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("u", "t", "body")
	assert.Equal(t, a, Fingerprint("u", "t", "body"))
	assert.NotEqual(t, a, Fingerprint("u", "t", "body2"))
	assert.NotEqual(t, Fingerprint("ab", "c", ""), Fingerprint("a", "bc", ""))
	assert.Len(t, a, 64)
}

// ==========================
// Reply Parsing
// ==========================

func TestParseReply(t *testing.T) {
	cfg := &Config{SummaryRunes: 5, MaxKeywords: 2}

	tests := []struct {
		name          string
		reply         string
		wantErr       bool
		wantSentiment models.Sentiment
		wantProp      models.Propagation
		wantAttr      float64
		wantAnomalies []string
		check         func(t *testing.T, rec *models.FeatureRecord)
	}{
		{
			name:          "prose around object",
			reply:         `好的，结果如下：{"sentiment":"negative","title_attraction":"0.3","propagation_potential":"low"} 希望有帮助`,
			wantSentiment: models.SentimentNegative,
			wantProp:      models.PropagationLow,
			wantAttr:      0.3,
		},
		{
			name:          "invalid enums coerced",
			reply:         `{"sentiment":"angry","propagation_potential":"viral","title_attraction":7}`,
			wantSentiment: models.SentimentNeutral,
			wantProp:      models.PropagationMedium,
			wantAttr:      1,
			wantAnomalies: []string{"sentiment", "title_attraction", "propagation_potential"},
		},
		{
			name:          "missing fields default",
			reply:         `{}`,
			wantSentiment: models.SentimentNeutral,
			wantProp:      models.PropagationMedium,
			wantAttr:      0.5,
			check: func(t *testing.T, rec *models.FeatureRecord) {
				assert.NotNil(t, rec.Keywords)
				assert.Empty(t, rec.Keywords)
				assert.NotNil(t, rec.Entities)
			},
		},
		{
			name:          "string lists truncated and summary cut",
			reply:         `{"keywords":"甲, 乙、丙","summary":"一二三四五六七","title_attraction":-1}`,
			wantSentiment: models.SentimentNeutral,
			wantProp:      models.PropagationMedium,
			wantAttr:      0,
			wantAnomalies: []string{"title_attraction"},
			check: func(t *testing.T, rec *models.FeatureRecord) {
				assert.Equal(t, []string{"甲", "乙"}, rec.Keywords)
				assert.Equal(t, "一二三四五", rec.Summary)
			},
		},
		{
			name:          "entities deduplicated and sorted",
			reply:         `{"entities":["旧金山",{"name":"OpenAI"},"北京","旧金山"]}`,
			wantSentiment: models.SentimentNeutral,
			wantProp:      models.PropagationMedium,
			wantAttr:      0.5,
			check: func(t *testing.T, rec *models.FeatureRecord) {
				assert.Equal(t, []string{"OpenAI", "北京", "旧金山"}, rec.Entities)
			},
		},
		{
			name:          "braces inside strings",
			reply:         `{"summary":"含有}符号","sentiment":"中性"}`,
			wantSentiment: models.SentimentNeutral,
			wantProp:      models.PropagationMedium,
			wantAttr:      0.5,
		},
		{name: "no object", reply: "无法分析", wantErr: true},
		{name: "unterminated", reply: `{"sentiment": "positive"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _, err := parseReply(tt.reply, cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedReply)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSentiment, rec.Sentiment)
			assert.Equal(t, tt.wantProp, rec.PropagationPotential)
			assert.InDelta(t, tt.wantAttr, rec.TitleAttraction, 1e-9)
			assert.Equal(t, tt.wantAnomalies, rec.Anomalies)
			if tt.check != nil {
				tt.check(t, rec)
			}
		})
	}
}

// ==========================
// Heuristics
// ==========================

func TestTitleAttraction(t *testing.T) {
	tests := []struct {
		title string
		want  float64
	}{
		{"官宣！某明星结婚", 2.5 / 3},
		{"普通标题", 0},
		{"一个长度合适的普通标题", 0.5 / 3},
		{"官宣！爆！首次夺冠？热", 1},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.InDelta(t, tt.want, titleAttraction(tt.title), 1e-9)
		})
	}
}

func TestExtractKeywords_TitleWeighted(t *testing.T) {
	got := extractKeywords("人工智能突破", "人工智能大模型发布", 3)
	assert.Equal(t, []string{"人工", "工智", "智能"}, got)

	got = extractKeywords("Apple releases the new iPhone", "", 10)
	assert.Equal(t, []string{"apple", "releases", "new", "iphone"}, got)
}

func TestExtractEntities(t *testing.T) {
	got := extractEntities("电影《流浪地球》上映，#春节档#火爆，OpenAI 发布新品")
	assert.Equal(t, []string{"OpenAI", "春节档", "流浪地球"}, got)
}

// ==========================
// Caches
// ==========================

func TestRedisCache_RoundTripWithTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCache(client, "hotspot:features:")
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.False(t, ok)

	rec := &models.FeatureRecord{Fingerprint: "fp1", Keywords: []string{"a"}, Sentiment: models.SentimentPositive}
	require.NoError(t, cache.Set(ctx, "fp1", rec, time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("hotspot:features:fp1"))

	got, ok, err := cache.Get(ctx, "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Keywords, got.Keywords)

	mr.FastForward(2 * time.Hour)
	_, ok, err = cache.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_ErrorsSurface(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	cache := NewRedisCache(client, "p:")

	redisMock.ExpectGet("p:fp").SetErr(errors.New("connection reset"))
	_, _, err := cache.Get(context.Background(), "fp")
	assert.Error(t, err)

	redisMock.ExpectGet("p:bad").SetVal("not json")
	_, _, err = cache.Get(context.Background(), "bad")
	assert.Error(t, err)

	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestAnalyze_CacheReadErrorFallsThroughToModel(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	redisMock.MatchExpectationsInOrder(false)
	fp := Fingerprint(testInput().URL, testInput().Title, testInput().Body)
	redisMock.ExpectGet("p:" + fp).SetErr(errors.New("timeout"))
	redisMock.ExpectGet("p:" + fp).SetErr(errors.New("timeout"))
	redisMock.Regexp().ExpectSet("p:"+fp, `.*`, time.Hour).SetVal("OK")

	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(&schema.Message{Content: validReply}, nil)

	p, _ := newTestProcessor(gen, NewRedisCache(client, "p:"))
	rec := p.Analyze(context.Background(), testInput())

	assert.False(t, rec.Degraded)
	gen.AssertNumberOfCalls(t, "Generate", 1)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &models.FeatureRecord{Keywords: []string{"x"}}, time.Minute))

	got, ok, _ := c.Get(ctx, "k")
	require.True(t, ok)
	got.Keywords[0] = "mutated"

	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "x", again.Keywords[0])

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}
