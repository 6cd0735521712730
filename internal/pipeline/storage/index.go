// internal/pipeline/storage/index.go
package storage

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "hotspot-suitability"

// ResultMapping is the mapping used when the result index is created.
const ResultMapping = `{
  "mappings": {
    "properties": {
      "hotspotId":           {"type": "keyword"},
      "platform":            {"type": "keyword"},
      "analysisTimestamp":   {"type": "date"},
      "runId":               {"type": "keyword"},
      "title":               {"type": "text"},
      "primaryCategory":     {"type": "keyword"},
      "totalScore":          {"type": "float"},
      "recommended":         {"type": "boolean"},
      "recommendedStrategy": {"type": "keyword"},
      "contentAngle":        {"type": "text"},
      "reasons":             {"type": "keyword"},
      "extractionDegraded":  {"type": "boolean"},
      "analysisDegraded":    {"type": "boolean"},
      "detailedScores": {
        "properties": {
          "contentMatch":        {"type": "float"},
          "audienceRelevance":   {"type": "float"},
          "timeliness":          {"type": "float"},
          "engagementPotential": {"type": "float"}
        }
      }
    }
  }
}`

// DocumentID is stable for a (hotspot, platform, analysis timestamp) key, so
// indexing the same result twice overwrites one document.
func DocumentID(r models.SuitabilityResult) string {
	sum := sha1.Sum([]byte(r.HotspotID + "\x00" + r.Platform + "\x00" +
		strconv.FormatInt(r.AnalysisTimestamp.UnixMicro(), 10)))
	return hex.EncodeToString(sum[:])
}

// ResultIndex is the search copy of the suitability results.
type ResultIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewResultIndex(client *elasticsearch.Client, index string) *ResultIndex {
	if index == "" {
		index = DefaultIndex
	}
	return &ResultIndex{client: client, index: index}
}

func (x *ResultIndex) Name() string { return x.index }

func (x *ResultIndex) Index(ctx context.Context, r models.SuitabilityResult) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: DocumentID(r),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("index result: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index result: %s", res.Status())
	}
	return nil
}

// ==========================
// Queries
// ==========================

type TopQuery struct {
	Platform        string
	Category        string
	From            time.Time
	To              time.Time
	RecommendedOnly bool
	MinScore        float64
	Size            int
}

type SearchResult struct {
	Results   []models.SuitabilityResult `json:"results"`
	TotalHits int64                      `json:"totalHits"`
	Took      int64                      `json:"took"` // milliseconds
}

type CategoryStat struct {
	Category     string  `json:"category"`
	Count        int64   `json:"count"`
	Recommended  int64   `json:"recommended"`
	AverageScore float64 `json:"averageScore"`
}

// TopResults returns the highest scoring results matching q.
func (x *ResultIndex) TopResults(ctx context.Context, q TopQuery) (*SearchResult, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": map[string]interface{}{"filter": topFilters(q)}},
		"sort": []interface{}{
			map[string]interface{}{"totalScore": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"analysisTimestamp": map[string]interface{}{"order": "desc"}},
		},
	}
	return x.search(ctx, "top_results", body, clampSize(q.Size))
}

// HotspotResults returns every indexed result for one hotspot, newest first.
func (x *ResultIndex) HotspotResults(ctx context.Context, hotspotID string, size int) (*SearchResult, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"hotspotId": hotspotID}},
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"analysisTimestamp": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"platform": map[string]interface{}{"order": "asc"}},
		},
	}
	return x.search(ctx, "hotspot_results", body, clampSize(size))
}

// CategoryStats aggregates result counts and mean score per primary category.
func (x *ResultIndex) CategoryStats(ctx context.Context, q TopQuery) ([]CategoryStat, error) {
	body := map[string]interface{}{
		"size":  0,
		"query": map[string]interface{}{"bool": map[string]interface{}{"filter": topFilters(q)}},
		"aggs": map[string]interface{}{
			"categories": map[string]interface{}{
				"terms": map[string]interface{}{"field": "primaryCategory", "size": 50},
				"aggs": map[string]interface{}{
					"avg_score":   map[string]interface{}{"avg": map[string]interface{}{"field": "totalScore"}},
					"recommended": map[string]interface{}{"filter": map[string]interface{}{"term": map[string]interface{}{"recommended": true}}},
				},
			},
		},
	}

	var r struct {
		Aggregations struct {
			Categories struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int64  `json:"doc_count"`
					AvgScore struct {
						Value *float64 `json:"value"`
					} `json:"avg_score"`
					Recommended struct {
						DocCount int64 `json:"doc_count"`
					} `json:"recommended"`
				} `json:"buckets"`
			} `json:"categories"`
		} `json:"aggregations"`
	}
	if err := x.do(ctx, "category_stats", body, nil, &r); err != nil {
		return nil, err
	}

	stats := make([]CategoryStat, 0, len(r.Aggregations.Categories.Buckets))
	for _, b := range r.Aggregations.Categories.Buckets {
		s := CategoryStat{Category: b.Key, Count: b.DocCount, Recommended: b.Recommended.DocCount}
		if b.AvgScore.Value != nil {
			s.AverageScore = *b.AvgScore.Value
		}
		stats = append(stats, s)
	}
	return stats, nil
}

func topFilters(q TopQuery) []interface{} {
	filters := []interface{}{}
	if q.Platform != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"platform": q.Platform}})
	}
	if q.Category != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"primaryCategory": q.Category}})
	}
	if q.RecommendedOnly {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"recommended": true}})
	}
	if q.MinScore > 0 {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"totalScore": map[string]interface{}{"gte": q.MinScore}},
		})
	}
	if !q.From.IsZero() || !q.To.IsZero() {
		rng := map[string]interface{}{}
		if !q.From.IsZero() {
			rng["gte"] = q.From.UTC().Format(time.RFC3339)
		}
		if !q.To.IsZero() {
			rng["lt"] = q.To.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]interface{}{"range": map[string]interface{}{"analysisTimestamp": rng}})
	}
	return filters
}

func clampSize(size int) int {
	if size < 1 {
		return 20
	}
	if size > 100 {
		return 100
	}
	return size
}

func (x *ResultIndex) search(ctx context.Context, queryType string, body map[string]interface{}, size int) (*SearchResult, error) {
	start := time.Now()

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.SuitabilityResult `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := x.do(ctx, queryType, body, &size, &r); err != nil {
		return nil, err
	}

	out := &SearchResult{
		Results:   make([]models.SuitabilityResult, 0, len(r.Hits.Hits)),
		TotalHits: r.Hits.Total.Value,
		Took:      time.Since(start).Milliseconds(),
	}
	for _, h := range r.Hits.Hits {
		out.Results = append(out.Results, h.Source)
	}
	return out, nil
}

func (x *ResultIndex) do(ctx context.Context, queryType string, body map[string]interface{}, size *int, into interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.NewSearchQueryFailedError(queryType, err)
	}

	req := esapi.SearchRequest{
		Index: []string{x.index},
		Body:  strings.NewReader(string(payload)),
		Size:  size,
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return errors.NewSearchQueryFailedError(queryType, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return errors.NewIndexNotFoundError(x.index)
	}
	if res.IsError() {
		return errors.NewSearchQueryFailedError(queryType, fmt.Errorf("search failed: %s", res.String()))
	}
	if err := json.NewDecoder(res.Body).Decode(into); err != nil {
		return errors.NewSearchQueryFailedError(queryType, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
