// internal/pipeline/classifier/classifier.go
package classifier

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/models"
)

const (
	PriorityAsc  = "asc"
	PriorityDesc = "desc"

	defaultRuleConfidence  = 0.8
	defaultModelConfidence = 0.6
)

type Rule struct {
	Name        string
	Keywords    []string
	Category    string
	SubCategory string
	Priority    int
	Confidence  float64
}

type Config struct {
	Categories        map[string][]string
	Rules             []Rule
	PriorityOrder     string
	AgreementBonus    float64
	DisagreePenalty   float64
	DefaultCategory   string
	DefaultConfidence float64
	BodyRunes         int
}

func DefaultCategories() map[string][]string {
	return map[string][]string{
		"科技": {"人工智能", "互联网", "通信", "硬件", "软件", "区块链", "元宇宙", "其他科技"},
		"财经": {"股票", "基金", "房地产", "数字货币", "宏观经济", "企业财报", "其他财经"},
		"社会": {"民生", "教育", "医疗", "就业", "环保", "公益", "其他社会"},
		"娱乐": {"电影", "音乐", "综艺", "明星", "游戏", "动漫", "其他娱乐"},
		"体育": {"足球", "篮球", "网球", "奥运会", "亚运会", "电竞", "其他体育"},
		"国际": {"政治", "军事", "外交", "冲突", "合作", "其他国际"},
		"健康": {"养生", "减肥", "运动", "心理健康", "疾病预防", "其他健康"},
		"文化": {"文学", "历史", "艺术", "出版", "传统文化", "其他文化"},
		"其他": {},
	}
}

func DefaultRules() []Rule {
	return []Rule{
		{Name: "ai", Keywords: []string{"AI", "人工智能", "大模型", "机器学习", "深度学习"}, Category: "科技", SubCategory: "人工智能", Priority: 10},
		{Name: "stocks", Keywords: []string{"股市", "股票", "股价", "市值"}, Category: "财经", SubCategory: "股票", Priority: 8},
		{Name: "crypto", Keywords: []string{"比特币", "加密货币", "区块链"}, Category: "财经", SubCategory: "数字货币", Priority: 7},
		{Name: "epidemic", Keywords: []string{"新冠", "疫情", "疫苗", "核酸"}, Category: "健康", SubCategory: "疾病预防", Priority: 9},
		{Name: "football", Keywords: []string{"足球", "世界杯", "英超", "欧冠"}, Category: "体育", SubCategory: "足球", Priority: 8},
		{Name: "basketball", Keywords: []string{"篮球", "NBA", "CBA"}, Category: "体育", SubCategory: "篮球", Priority: 8},
	}
}

// Classifier merges a keyword rule table with the model's suggested category.
// Rules are ordered once at construction; equal priorities keep declaration order.
type Classifier struct {
	config *Config
	rules  []Rule
	logger logger.Logger
}

func New(config *Config, log logger.Logger) *Classifier {
	if len(config.Categories) == 0 {
		config.Categories = DefaultCategories()
	}
	if config.PriorityOrder == "" {
		config.PriorityOrder = PriorityAsc
	}
	if config.DefaultCategory == "" {
		config.DefaultCategory = "其他"
	}
	if config.DefaultConfidence <= 0 {
		config.DefaultConfidence = 0.3
	}
	if config.BodyRunes <= 0 {
		config.BodyRunes = 500
	}

	rules := append(append([]Rule{}, config.Rules...), DefaultRules()...)
	sort.SliceStable(rules, func(i, j int) bool {
		if config.PriorityOrder == PriorityDesc {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].Priority < rules[j].Priority
	})

	return &Classifier{
		config: config,
		rules:  rules,
		logger: logger.ForComponent(log, "classifier"),
	}
}

// CategoryNames lists the primary categories in a stable order.
func (c *Classifier) CategoryNames() []string {
	names := make([]string, 0, len(c.config.Categories))
	for name := range c.config.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type candidate struct {
	primary    string
	secondary  string
	confidence float64
	rule       string
}

// Classify is deterministic for a given record and text.
func (c *Classifier) Classify(rec *models.FeatureRecord, title, summary, body string) models.Classification {
	ruleResult := c.applyRules(title, summary, body)
	modelResult := c.modelCandidate(rec)

	switch {
	case ruleResult != nil && modelResult != nil && ruleResult.primary == modelResult.primary:
		secondary := ruleResult.secondary
		if secondary == "" {
			secondary = modelResult.secondary
		}
		return models.Classification{
			PrimaryCategory:   ruleResult.primary,
			SecondaryCategory: secondary,
			Confidence:        round(math.Min(1, (ruleResult.confidence+modelResult.confidence)/2+c.config.AgreementBonus)),
			Method:            models.MethodRuleEnhanced,
			MatchedRule:       ruleResult.rule,
		}
	case ruleResult != nil:
		conf := ruleResult.confidence
		if modelResult != nil {
			conf = math.Max(0, conf-c.config.DisagreePenalty)
			c.logger.Debug("rule and model disagree", map[string]interface{}{
				"rule":  ruleResult.primary,
				"model": modelResult.primary,
				"title": title,
			})
		}
		return models.Classification{
			PrimaryCategory:   ruleResult.primary,
			SecondaryCategory: ruleResult.secondary,
			Confidence:        round(conf),
			Method:            models.MethodRule,
			MatchedRule:       ruleResult.rule,
		}
	case modelResult != nil:
		return models.Classification{
			PrimaryCategory:   modelResult.primary,
			SecondaryCategory: modelResult.secondary,
			Confidence:        round(modelResult.confidence),
			Method:            models.MethodLLM,
		}
	default:
		return models.Classification{
			PrimaryCategory: c.config.DefaultCategory,
			Confidence:      c.config.DefaultConfidence,
			Method:          models.MethodDefault,
		}
	}
}

func (c *Classifier) applyRules(title, summary, body string) *candidate {
	if utf8.RuneCountInString(body) > c.config.BodyRunes {
		body = string([]rune(body)[:c.config.BodyRunes])
	}
	text := strings.ToLower(title + "\n" + summary + "\n" + body)

	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if kw == "" || !containsKeyword(text, strings.ToLower(kw)) {
				continue
			}
			conf := r.Confidence
			if conf <= 0 {
				conf = defaultRuleConfidence
			}
			name := r.Name
			if name == "" {
				name = r.Category + "/" + kw
			}
			return &candidate{primary: r.Category, secondary: r.SubCategory, confidence: conf, rule: name}
		}
	}
	return nil
}

// modelCandidate validates the model's suggestion against the category system.
func (c *Classifier) modelCandidate(rec *models.FeatureRecord) *candidate {
	if rec == nil || rec.Degraded || rec.SuggestedCategory == "" {
		return nil
	}

	subs, ok := c.config.Categories[rec.SuggestedCategory]
	if !ok {
		logger.Anomaly(c.logger, "suggestedCategory", rec.SuggestedCategory, "", nil)
		return nil
	}

	secondary := rec.SuggestedSubCategory
	if secondary != "" && !contains(subs, secondary) {
		logger.Anomaly(c.logger, "suggestedSubCategory", secondary, "", map[string]interface{}{
			"category": rec.SuggestedCategory,
		})
		secondary = ""
	}

	conf := rec.CategoryConfidence
	if conf <= 0 {
		conf = defaultModelConfidence
	}
	return &candidate{primary: rec.SuggestedCategory, secondary: secondary, confidence: math.Min(1, conf)}
}

// containsKeyword matches latin keywords on word boundaries so "ai" does not
// hit "said"; other keywords match as substrings.
func containsKeyword(text, kw string) bool {
	if !isASCIIWord(kw) {
		return strings.Contains(text, kw)
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if (start == 0 || !isASCIIAlnum(text[start-1])) && (end == len(text) || !isASCIIAlnum(text[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isASCIIWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isASCIIAlnum(s[i]) {
			return false
		}
	}
	return s != ""
}

func isASCIIAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
