// internal/pipeline/features/heuristics.go
package features

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"hotspot-selection/internal/models"
)

var attractionMarkers = []string{"官宣", "爆", "首", "夺冠", "离世", "热", "？", "?", "!", "！", "#"}

// titleAttraction scores a title by marker words and length, in [0,1].
func titleAttraction(title string) float64 {
	score := 0.0
	for _, m := range attractionMarkers {
		if strings.Contains(title, m) {
			score++
		}
	}
	if n := utf8.RuneCountInString(title); n >= 5 && n <= 30 {
		score += 0.5
	}
	return clamp01(score / 3)
}

var entityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`《([^》]{1,30})》`),
	regexp.MustCompile(`“([^”]{2,20})”`),
	regexp.MustCompile(`#([^#\s]{2,30})#`),
	regexp.MustCompile(`【([^】]{1,20})】`),
	regexp.MustCompile(`\b([A-Z][A-Za-z0-9]+(?: [A-Z][A-Za-z0-9]+)*)\b`),
}

func extractEntities(text string) []string {
	out := []string{}
	for _, re := range entityPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			out = appendUnique(out, strings.TrimSpace(m[1]))
		}
	}
	return sortedSet(out)
}

const stopRunes = "的了是在和与及也就都而被把对从为这那有个中上下不我你他她它们之将已于让向等或"

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"are": true, "was": true, "from": true, "has": true, "have": true, "will": true,
}

type term struct {
	text  string
	count int
	first int
}

// extractKeywords ranks CJK bigrams and latin words by weighted frequency.
// Title occurrences count three times.
func extractKeywords(title, body string, max int) []string {
	terms := make(map[string]*term)
	pos := 0
	add := func(t string, weight int) {
		if tm, ok := terms[t]; ok {
			tm.count += weight
			return
		}
		terms[t] = &term{text: t, count: weight, first: pos}
		pos++
	}

	scan(title, func(t string) { add(t, 3) })
	scan(body, func(t string) { add(t, 1) })

	ranked := make([]*term, 0, len(terms))
	for _, t := range terms {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].first < ranked[j].first
	})

	out := []string{}
	for _, t := range ranked {
		if max > 0 && len(out) >= max {
			break
		}
		out = append(out, t.text)
	}
	return out
}

// scan splits text into runs of Han characters and latin words and emits
// candidate terms.
func scan(text string, emit func(string)) {
	var han []rune
	var word []rune

	flushHan := func() {
		if len(han) == 2 && !isStopRune(han[0]) && !isStopRune(han[1]) {
			emit(string(han))
		}
		if len(han) > 2 {
			for i := 0; i+1 < len(han); i++ {
				if isStopRune(han[i]) || isStopRune(han[i+1]) {
					continue
				}
				emit(string(han[i : i+2]))
			}
		}
		han = han[:0]
	}
	flushWord := func() {
		w := strings.ToLower(string(word))
		if utf8.RuneCountInString(w) >= 2 && !stopWords[w] {
			emit(w)
		}
		word = word[:0]
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			word = append(word, r)
		default:
			flushHan()
			flushWord()
		}
	}
	flushHan()
	flushWord()
}

func isStopRune(r rune) bool {
	return strings.ContainsRune(stopRunes, r)
}

// heuristicRecord builds features without the model.
func heuristicRecord(in Input, cfg *Config) *models.FeatureRecord {
	attraction := titleAttraction(in.Title)

	propagation := models.PropagationLow
	switch {
	case attraction >= 0.67:
		propagation = models.PropagationHigh
	case attraction >= 0.34:
		propagation = models.PropagationMedium
	}

	body := in.Body
	if utf8.RuneCountInString(body) > cfg.BodyRunes {
		body = string([]rune(body)[:cfg.BodyRunes])
	}

	summary := strings.TrimSpace(in.Body)
	if summary == "" {
		summary = in.Title
	}

	return &models.FeatureRecord{
		Keywords:             extractKeywords(in.Title, body, cfg.MaxKeywords),
		Entities:             extractEntities(in.Title + "\n" + body),
		Sentiment:            models.SentimentNeutral,
		TitleAttraction:      attraction,
		PropagationPotential: propagation,
		Summary:              truncate(summary, cfg.SummaryRunes),
	}
}
