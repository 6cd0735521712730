// internal/workers/communication/notify-batch-summary/digest.go
package notifybatchsummary

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"sort"
	"text/template"
	"time"

	"hotspot-selection/internal/models"
)

const textDigest = `热点选题批次 {{.RunID}} ({{.Date}})
状态: {{.State}}{{if .FailedStage}} (失败阶段: {{.FailedStage}}){{end}}
总数 {{.Total}} / 成功 {{.OK}} / 抽取降级 {{.ExtractionDegraded}} / 分析降级 {{.AnalysisDegraded}} / 失败 {{.Failed}}
耗时 {{.Elapsed}}
{{if .Recommended}}
推荐选题:
{{range .Recommended}}- [{{.Platform}}] {{.Title}} {{printf "%.2f" .TotalScore}}{{if .Strategy}} ({{.Strategy}}){{end}}
{{end}}{{if .More}}... 另有 {{.More}} 条
{{end}}{{end}}{{if .Failures}}
失败条目:
{{range .Failures}}- {{.ID}}: {{.Reason}}
{{end}}{{end}}`

const htmlDigest = `<html><body>
<h2>热点选题批次 {{.RunID}} ({{.Date}})</h2>
<p>状态: <strong>{{.State}}</strong>{{if .FailedStage}} (失败阶段: {{.FailedStage}}){{end}}</p>
<table border="1" cellpadding="4">
<tr><th>总数</th><th>成功</th><th>抽取降级</th><th>分析降级</th><th>失败</th></tr>
<tr><td>{{.Total}}</td><td>{{.OK}}</td><td>{{.ExtractionDegraded}}</td><td>{{.AnalysisDegraded}}</td><td>{{.Failed}}</td></tr>
</table>
{{if .Recommended}}<h3>推荐选题</h3>
<ol>{{range .Recommended}}<li>[{{.Platform}}] {{.Title}} <em>{{printf "%.2f" .TotalScore}}</em>{{if .Strategy}} {{.Strategy}}{{end}}</li>{{end}}</ol>
{{if .More}}<p>另有 {{.More}} 条</p>{{end}}{{end}}
{{if .Failures}}<h3>失败条目</h3>
<ul>{{range .Failures}}<li>{{.ID}}: {{.Reason}}</li>{{end}}</ul>{{end}}
</body></html>`

var (
	textTmpl = template.Must(template.New("digest.txt").Parse(textDigest))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("digest.html").Parse(htmlDigest))
)

type failureLine struct {
	ID     string
	Reason string
}

type digestView struct {
	RunID              string
	Date               string
	State              models.BatchState
	FailedStage        string
	Total              int
	OK                 int
	ExtractionDegraded int
	AnalysisDegraded   int
	Failed             int
	Elapsed            time.Duration
	Recommended        []models.RecommendedItem
	More               int
	Failures           []failureLine
}

type digest struct {
	Subject string
	Text    string
	HTML    string
}

func newDigestView(s *models.BatchSummary, maxItems int, loc *time.Location) digestView {
	v := digestView{
		RunID:              s.RunID,
		State:              s.State,
		FailedStage:        s.FailedStage,
		Total:              s.Total,
		OK:                 s.OK,
		ExtractionDegraded: s.ExtractionDegraded,
		AnalysisDegraded:   s.AnalysisDegraded,
		Failed:             s.Failed,
		Recommended:        s.Recommended,
	}
	if !s.StartedAt.IsZero() {
		v.Date = s.StartedAt.In(loc).Format("2006-01-02")
		if s.FinishedAt.After(s.StartedAt) {
			v.Elapsed = s.FinishedAt.Sub(s.StartedAt).Round(time.Second)
		}
	}
	if maxItems > 0 && len(v.Recommended) > maxItems {
		v.More = len(v.Recommended) - maxItems
		v.Recommended = v.Recommended[:maxItems]
	}

	for id, reason := range s.ItemFailures {
		v.Failures = append(v.Failures, failureLine{ID: id, Reason: reason})
	}
	sort.Slice(v.Failures, func(i, j int) bool { return v.Failures[i].ID < v.Failures[j].ID })
	if maxItems > 0 && len(v.Failures) > maxItems {
		v.Failures = v.Failures[:maxItems]
	}
	return v
}

func renderDigest(s *models.BatchSummary, maxItems int, loc *time.Location) (*digest, error) {
	v := newDigestView(s, maxItems, loc)

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, v); err != nil {
		return nil, fmt.Errorf("render text digest: %w", err)
	}
	if err := htmlTmpl.Execute(&html, v); err != nil {
		return nil, fmt.Errorf("render html digest: %w", err)
	}

	return &digest{
		Subject: fmt.Sprintf("[热点选题] %s %s: %s, %d 条推荐", v.Date, s.RunID, s.State, len(s.Recommended)),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
