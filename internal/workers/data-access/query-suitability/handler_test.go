package querysuitability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hotspot-selection/internal/common/config"
	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/models"
	"hotspot-selection/internal/pipeline/storage"
	"hotspot-selection/internal/workers/data-access/query-suitability/queries"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// ==========================
// Mocks
// ==========================

type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) TopResults(ctx context.Context, q storage.TopQuery) (*storage.SearchResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.SearchResult), args.Error(1)
}

func (m *MockIndex) HotspotResults(ctx context.Context, hotspotID string, size int) (*storage.SearchResult, error) {
	args := m.Called(ctx, hotspotID, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.SearchResult), args.Error(1)
}

func (m *MockIndex) CategoryStats(ctx context.Context, q storage.TopQuery) ([]storage.CategoryStat, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.CategoryStat), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) LatestAnalysis(ctx context.Context, hotspotID string) (*models.AnalysisRecord, error) {
	args := m.Called(ctx, hotspotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AnalysisRecord), args.Error(1)
}

func (m *MockStore) ResultsFor(ctx context.Context, hotspotID string, analyzedAt time.Time) ([]models.SuitabilityResult, error) {
	args := m.Called(ctx, hotspotID, analyzedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SuitabilityResult), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

func createTestConfig() *Config {
	shanghai, _ := time.LoadLocation("Asia/Shanghai")
	return &Config{
		Enabled:     true,
		Timeout:     5 * time.Second,
		DefaultSize: 20,
		Location:    shanghai,
	}
}

func createTestHandler(t *testing.T, src queries.Sources) *Handler {
	return NewHandler(createTestConfig(), src, logger.NewZapAdapter(zaptest.NewLogger(t)))
}

// ==========================
// Config Tests
// ==========================

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadConfig(&config.Config{})
		assert.True(t, cfg.Enabled)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
		assert.Equal(t, 20, cfg.DefaultSize)
		assert.Equal(t, time.UTC, cfg.Location)
	})

	t.Run("from app config", func(t *testing.T) {
		cfg := LoadConfig(&config.Config{
			Workers: map[string]config.WorkerConfig{TaskType: {Enabled: true, Timeout: 10000}},
			Table:   config.TableConfig{Timezone: "Asia/Shanghai"},
		})
		assert.Equal(t, 10*time.Second, cfg.Timeout)
		assert.Equal(t, "Asia/Shanghai", cfg.Location.String())
	})
}

// ==========================
// Execute Tests
// ==========================

func TestExecute_TopResults(t *testing.T) {
	idx := &MockIndex{}
	h := createTestHandler(t, queries.Sources{Index: idx})

	idx.On("TopResults", mock.Anything, mock.MatchedBy(func(q storage.TopQuery) bool {
		// 2024-05-18 00:00 CST to 2024-05-21 00:00 CST
		return q.Platform == "zhihu" &&
			q.Size == 20 &&
			q.RecommendedOnly &&
			q.From.UTC().Format(time.RFC3339) == "2024-05-17T16:00:00Z" &&
			q.To.UTC().Format(time.RFC3339) == "2024-05-20T16:00:00Z"
	})).Return(&storage.SearchResult{
		Results: []models.SuitabilityResult{
			{HotspotID: "h-1", Platform: "zhihu", TotalScore: 0.91},
			{HotspotID: "h-2", Platform: "zhihu", TotalScore: 0.74},
		},
		TotalHits: 2,
		Took:      3,
	}, nil)

	out, err := h.Execute(context.Background(), &Input{
		QueryType:       "top_results",
		Platform:        "zhihu",
		StartDate:       "2024-05-18",
		EndDate:         "2024-05-20",
		RecommendedOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "top_results", out.QueryType)
	assert.Len(t, out.Results, 2)
	assert.Equal(t, int64(2), out.TotalHits)
	idx.AssertExpectations(t)
}

func TestExecute_HotspotResults(t *testing.T) {
	idx := &MockIndex{}
	h := createTestHandler(t, queries.Sources{Index: idx})

	idx.On("HotspotResults", mock.Anything, "h-1", 5).
		Return(&storage.SearchResult{Results: []models.SuitabilityResult{{HotspotID: "h-1", Platform: "weibo"}}, TotalHits: 1}, nil)

	out, err := h.Execute(context.Background(), &Input{QueryType: "hotspot_results", HotspotID: "h-1", Size: 5})
	require.NoError(t, err)
	assert.Len(t, out.Results, 1)
	idx.AssertExpectations(t)
}

func TestExecute_CategoryStats(t *testing.T) {
	idx := &MockIndex{}
	h := createTestHandler(t, queries.Sources{Index: idx})

	idx.On("CategoryStats", mock.Anything, mock.Anything).Return([]storage.CategoryStat{
		{Category: "科技", Count: 12, Recommended: 5, AverageScore: 0.66},
		{Category: "娱乐", Count: 8, Recommended: 2, AverageScore: 0.51},
	}, nil)

	out, err := h.Execute(context.Background(), &Input{QueryType: "category_stats"})
	require.NoError(t, err)
	assert.Len(t, out.Categories, 2)
	assert.Equal(t, int64(20), out.TotalHits)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
}

func TestExecute_StoredAnalysis(t *testing.T) {
	st := &MockStore{}
	h := createTestHandler(t, queries.Sources{Store: st})

	analyzedAt := time.Date(2024, 5, 20, 4, 0, 0, 0, time.UTC)
	st.On("LatestAnalysis", mock.Anything, "h-9").Return(&models.AnalysisRecord{
		Hotspot:    models.Hotspot{ID: "h-9", Title: "新款手机发布"},
		AnalyzedAt: analyzedAt,
		RunID:      "run-7",
	}, nil)
	st.On("ResultsFor", mock.Anything, "h-9", analyzedAt).Return([]models.SuitabilityResult{
		{HotspotID: "h-9", Platform: "zhihu", TotalScore: 0.8},
		{HotspotID: "h-9", Platform: "weibo", TotalScore: 0.6},
	}, nil)

	out, err := h.Execute(context.Background(), &Input{QueryType: "stored_analysis", HotspotID: "h-9", Platform: "weibo"})
	require.NoError(t, err)
	require.NotNil(t, out.Analysis)
	assert.Equal(t, "run-7", out.Analysis.RunID)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "weibo", out.Results[0].Platform)
	st.AssertExpectations(t)
}

func TestExecute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    *Input
		setup    func(idx *MockIndex, st *MockStore)
		noIndex  bool
		wantCode errors.ErrorCode
	}{
		{
			name:     "missing query type",
			input:    &Input{},
			wantCode: errors.ErrCodeInvalidInput,
		},
		{
			name:     "unknown query type",
			input:    &Input{QueryType: "drop_table"},
			wantCode: errors.ErrCodeInvalidInput,
		},
		{
			name:     "hotspot id required",
			input:    &Input{QueryType: "hotspot_results"},
			wantCode: errors.ErrCodeInvalidInput,
		},
		{
			name:     "bad date",
			input:    &Input{QueryType: "top_results", StartDate: "May 18"},
			wantCode: errors.ErrCodeInvalidInput,
		},
		{
			name:     "inverted range",
			input:    &Input{QueryType: "top_results", StartDate: "2024-05-20", EndDate: "2024-05-18"},
			wantCode: errors.ErrCodeInvalidInput,
		},
		{
			name:     "min score out of range",
			input:    &Input{QueryType: "top_results", MinScore: 1.5},
			wantCode: errors.ErrCodeInvalidInput,
		},
		{
			name:     "index not configured",
			input:    &Input{QueryType: "top_results"},
			noIndex:  true,
			wantCode: errors.ErrCodeConfigInvalid,
		},
		{
			name:  "index missing",
			input: &Input{QueryType: "top_results"},
			setup: func(idx *MockIndex, _ *MockStore) {
				idx.On("TopResults", mock.Anything, mock.Anything).Return(nil, errors.NewIndexNotFoundError("hotspot-suitability"))
			},
			wantCode: errors.ErrCodeIndexNotFound,
		},
		{
			name:  "plain search error",
			input: &Input{QueryType: "top_results"},
			setup: func(idx *MockIndex, _ *MockStore) {
				idx.On("TopResults", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("connection reset"))
			},
			wantCode: errors.ErrCodeSearchQueryFailed,
		},
		{
			name:  "stored analysis not found",
			input: &Input{QueryType: "stored_analysis", HotspotID: "h-404"},
			setup: func(_ *MockIndex, st *MockStore) {
				st.On("LatestAnalysis", mock.Anything, "h-404").Return(nil, storage.ErrNotFound)
			},
			wantCode: errors.ErrCodeHotspotNotFound,
		},
		{
			name:  "stored analysis read error",
			input: &Input{QueryType: "stored_analysis", HotspotID: "h-1"},
			setup: func(_ *MockIndex, st *MockStore) {
				st.On("LatestAnalysis", mock.Anything, "h-1").Return(nil, fmt.Errorf("pq: too many connections"))
			},
			wantCode: errors.ErrCodeQueryExecutionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, st := &MockIndex{}, &MockStore{}
			if tt.setup != nil {
				tt.setup(idx, st)
			}
			src := queries.Sources{Index: idx, Store: st}
			if tt.noIndex {
				src.Index = nil
			}
			h := createTestHandler(t, src)

			out, err := h.Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
			idx.AssertExpectations(t)
			st.AssertExpectations(t)
		})
	}
}

func TestExecute_DeadlineMapsToTimeout(t *testing.T) {
	idx := &MockIndex{}
	h := createTestHandler(t, queries.Sources{Index: idx})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	idx.On("TopResults", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)

	_, err := h.Execute(ctx, &Input{QueryType: "top_results"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTimeout, errors.CodeOf(err))
}

func TestExecute_RFC3339Bounds(t *testing.T) {
	idx := &MockIndex{}
	h := createTestHandler(t, queries.Sources{Index: idx})

	idx.On("TopResults", mock.Anything, mock.MatchedBy(func(q storage.TopQuery) bool {
		return q.From.Equal(time.Date(2024, 5, 20, 1, 0, 0, 0, time.UTC)) &&
			q.To.Equal(time.Date(2024, 5, 20, 13, 0, 0, 0, time.UTC))
	})).Return(&storage.SearchResult{}, nil)

	_, err := h.Execute(context.Background(), &Input{
		QueryType: "top_results",
		StartDate: "2024-05-20T01:00:00Z",
		EndDate:   "2024-05-20T13:00:00Z",
	})
	require.NoError(t, err)
	idx.AssertExpectations(t)
}

// ==========================
// Elasticsearch Integration
// ==========================

func TestExecute_AgainstResultIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":1},"hits":[{"_source":{"hotspotId":"h-1","platform":"douyin","totalScore":0.77,"recommended":true}}]}}`))
	}))
	defer srv.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	h := createTestHandler(t, queries.Sources{Index: storage.NewResultIndex(client, "hotspot-suitability")})
	out, err := h.Execute(context.Background(), &Input{QueryType: "top_results", Platform: "douyin"})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "douyin", out.Results[0].Platform)
	assert.True(t, out.Results[0].Recommended)
}
