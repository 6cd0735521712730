// internal/pipeline/features/prompt.go
package features

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const systemPrompt = "你是一个新闻热点分析助手。只输出一个 JSON 对象，不要输出任何解释或 Markdown。"

const userPromptTpl = `请分析下面的新闻热点，并按指定格式返回 JSON。

【标题】
%s

【链接】
%s

【正文】
%s

返回格式：
{
  "keywords": ["按相关度从高到低排序的关键词，最多 %d 个"],
  "entities": ["文中出现的人物、地点、组织或事件"],
  "sentiment": "positive | neutral | negative",
  "title_attraction": 0 到 1 之间的小数，表示标题吸引力,
  "propagation_potential": "low | medium | high",
  "summary": "不超过 %d 字的核心内容总结",
  "category": "主分类，只能是：%s",
  "sub_category": "子分类，可为空",
  "category_confidence": 0 到 1 之间的小数
}`

// buildMessages renders the analysis prompt. The body is cut to bodyRunes.
func buildMessages(in Input, cfg *Config) []*schema.Message {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		body = "（正文不可用，请仅根据标题分析）"
	} else if utf8.RuneCountInString(body) > cfg.BodyRunes {
		body = string([]rune(body)[:cfg.BodyRunes]) + "……"
	}

	categories := "其他"
	if len(cfg.Categories) > 0 {
		categories = strings.Join(cfg.Categories, "、")
	}

	return []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: fmt.Sprintf(userPromptTpl,
			in.Title, in.URL, body, cfg.MaxKeywords, cfg.SummaryRunes, categories)},
	}
}
