// internal/pipeline/features/parse.go
package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"hotspot-selection/internal/models"
)

var ErrMalformedReply = errors.New("malformed model reply")

// anomaly is a reply value that was replaced by a safe default.
type anomaly struct {
	Field   string
	Got     interface{}
	Coerced interface{}
}

var sentimentAliases = map[string]models.Sentiment{
	"positive": models.SentimentPositive,
	"积极":       models.SentimentPositive,
	"正面":       models.SentimentPositive,
	"neutral":  models.SentimentNeutral,
	"中性":       models.SentimentNeutral,
	"中立":       models.SentimentNeutral,
	"negative": models.SentimentNegative,
	"消极":       models.SentimentNegative,
	"负面":       models.SentimentNegative,
}

var propagationAliases = map[string]models.Propagation{
	"low":      models.PropagationLow,
	"低":        models.PropagationLow,
	"medium":   models.PropagationMedium,
	"moderate": models.PropagationMedium,
	"中":        models.PropagationMedium,
	"high":     models.PropagationHigh,
	"高":        models.PropagationHigh,
}

// parseReply turns a model reply into a feature record. Only a reply without
// a decodable JSON object is an error; bad or missing fields get defaults.
func parseReply(reply string, cfg *Config) (*models.FeatureRecord, []anomaly, error) {
	obj, err := extractJSONObject(reply)
	if err != nil {
		return nil, nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	var anomalies []anomaly
	rec := &models.FeatureRecord{
		Keywords:             limitStrings(stringList(pick(fields, "keywords")), cfg.MaxKeywords),
		Entities:             sortedSet(stringList(pick(fields, "entities"))),
		Sentiment:            models.SentimentNeutral,
		TitleAttraction:      0.5,
		PropagationPotential: models.PropagationMedium,
	}

	if raw := str(pick(fields, "sentiment")); raw != "" {
		if s, ok := sentimentAliases[strings.ToLower(raw)]; ok {
			rec.Sentiment = s
		} else {
			anomalies = append(anomalies, anomaly{"sentiment", raw, string(models.SentimentNeutral)})
		}
	}

	if raw := pick(fields, "title_attraction", "title_attractiveness"); raw != nil {
		v, ok := number(raw)
		switch {
		case !ok || math.IsNaN(v):
			anomalies = append(anomalies, anomaly{"title_attraction", string(raw), 0.5})
		case v < 0 || v > 1:
			clamped := clamp01(v)
			anomalies = append(anomalies, anomaly{"title_attraction", v, clamped})
			rec.TitleAttraction = clamped
		default:
			rec.TitleAttraction = v
		}
	}

	if raw := str(pick(fields, "propagation_potential", "propagation")); raw != "" {
		if p, ok := propagationAliases[strings.ToLower(raw)]; ok {
			rec.PropagationPotential = p
		} else {
			anomalies = append(anomalies, anomaly{"propagation_potential", raw, string(models.PropagationMedium)})
		}
	}

	rec.Summary = truncate(str(pick(fields, "summary")), cfg.SummaryRunes)
	rec.SuggestedCategory = str(pick(fields, "category", "topic_category"))
	rec.SuggestedSubCategory = str(pick(fields, "sub_category", "subcategory"))
	if v, ok := number(pick(fields, "category_confidence")); ok && !math.IsNaN(v) {
		rec.CategoryConfidence = clamp01(v)
	}

	for _, a := range anomalies {
		rec.Anomalies = append(rec.Anomalies, a.Field)
	}
	return rec, anomalies, nil
}

// extractJSONObject returns the first balanced {...} in s, skipping code
// fences and surrounding prose.
func extractJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON object", ErrMalformedReply)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unterminated JSON object", ErrMalformedReply)
}

func pick(fields map[string]json.RawMessage, names ...string) json.RawMessage {
	for _, n := range names {
		if raw, ok := fields[n]; ok && string(raw) != "null" {
			return raw
		}
	}
	return nil
}

func str(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func number(raw json.RawMessage) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	if s := str(raw); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// stringList accepts ["a","b"], [{"name":"a"}], or "a, b". Order is kept and
// duplicates dropped. The result is never nil.
func stringList(raw json.RawMessage) []string {
	out := []string{}
	if raw == nil {
		return out
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		s := str(raw)
		for _, part := range strings.FieldsFunc(s, func(r rune) bool {
			return r == ',' || r == '，' || r == '、' || r == ';' || r == '；'
		}) {
			out = appendUnique(out, strings.TrimSpace(part))
		}
		return out
	}

	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = appendUnique(out, strings.TrimSpace(s))
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err == nil {
			out = appendUnique(out, str(pick(obj, "name", "word", "keyword", "entity", "text")))
		}
	}
	return out
}

func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// sortedSet orders an already deduplicated list in place.
func sortedSet(list []string) []string {
	sort.Strings(list)
	return list
}

func limitStrings(list []string, n int) []string {
	if n > 0 && len(list) > n {
		return list[:n]
	}
	return list
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
