// internal/pipeline/extractor/extractor.go
package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "hotspot-selection/internal/common/errors"
	commonhttp "hotspot-selection/internal/common/http"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/common/metrics"
	"hotspot-selection/internal/models"
)

// Fetcher is the HTTP collaborator. *commonhttp.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, rawURL, userAgent string) (*commonhttp.Response, error)
}

// Site describes one registered source site.
type Site struct {
	Code            string
	Hosts           []string
	Strategy        string
	TitleSelector   string
	ContentSelector string
	AuthorSelector  string
	Remove          []string
	FeedURL         string
	UserAgent       string
}

type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	MinBodyChars int
	SummaryChars int
	HostDelay    time.Duration
	HostDelays   map[string]time.Duration
	UserAgent    string
	Sites        map[string]Site
}

// DefaultSites returns selector tables for the sources the collectors cover.
// Configured sites with the same code replace these.
func DefaultSites() map[string]Site {
	return map[string]Site{
		"weibo": {
			Hosts:           []string{"weibo.com", "s.weibo.com", "m.weibo.cn"},
			Strategy:        StrategySelector,
			TitleSelector:   "h1, .title",
			ContentSelector: ".WB_text, .weibo-text, .detail_wbtext_4CRf9, .card-wrap .txt",
			AuthorSelector:  ".W_f14, .m-text-cut",
		},
		"zhihu": {
			Hosts:           []string{"zhihu.com", "www.zhihu.com", "zhuanlan.zhihu.com"},
			Strategy:        StrategySelector,
			TitleSelector:   "h1.QuestionHeader-title, h1.Post-Title",
			ContentSelector: ".RichText p, .Post-RichText p",
			AuthorSelector:  ".AuthorInfo-name",
			Remove:          []string{".ContentItem-actions", ".Reward"},
		},
		"baidu": {
			Hosts:           []string{"baidu.com", "www.baidu.com", "baijiahao.baidu.com"},
			Strategy:        StrategySelector,
			TitleSelector:   ".index-module_articleTitle_28fPT, h1",
			ContentSelector: ".index-module_articleWrap_2Zphx p, #article p",
			AuthorSelector:  ".index-module_authorTxt_V6a9V",
		},
		"cctv": {
			Hosts:           []string{"news.cctv.com", "cctv.com"},
			Strategy:        StrategySelector,
			TitleSelector:   ".title_area h1, h1",
			ContentSelector: ".content_area p, #content_area p",
		},
		"xinhua": {
			Hosts:           []string{"xinhuanet.com", "www.news.cn", "news.cn"},
			Strategy:        StrategySelector,
			TitleSelector:   ".head-line .title, h1",
			ContentSelector: "#detail p, #p-detail p",
		},
		"people_daily": {
			Hosts:           []string{"people.com.cn", "www.people.com.cn"},
			Strategy:        StrategySelector,
			TitleSelector:   ".rm_txt h1, h1",
			ContentSelector: ".rm_txt_con p, #rwb_zw p",
		},
	}
}

type Extractor struct {
	config   *Config
	fetcher  Fetcher
	pacer    *Pacer
	registry *Registry
	sites    map[string]Site
	hosts    map[string]string
	logger   logger.Logger
	now      func() time.Time
}

func New(config *Config, fetcher Fetcher, log logger.Logger) *Extractor {
	if config.MinBodyChars <= 0 {
		config.MinBodyChars = 200
	}
	if config.SummaryChars <= 0 {
		config.SummaryChars = 200
	}
	if fetcher == nil {
		fetcher = commonhttp.NewClient(config.Timeout, config.MaxBodyBytes, config.UserAgent)
	}

	pacer := NewPacer(config.HostDelay, config.HostDelays)

	registry := NewRegistry()
	registry.Register(&genericStrategy{minChars: config.MinBodyChars})
	registry.Register(selectorStrategy{})
	registry.Register(&feedStrategy{fetcher: fetcher, pacer: pacer})

	sites := DefaultSites()
	for code, site := range config.Sites {
		sites[code] = site
	}
	hosts := make(map[string]string)
	for code, site := range sites {
		site.Code = code
		sites[code] = site
		for _, h := range site.Hosts {
			hosts[strings.ToLower(h)] = code
		}
	}

	return &Extractor{
		config:   config,
		fetcher:  fetcher,
		pacer:    pacer,
		registry: registry,
		sites:    sites,
		hosts:    hosts,
		logger:   logger.ForComponent(log, "extractor"),
		now:      time.Now,
	}
}

// Extract fetches rawURL and returns normalized content. It never fails:
// problems are reported through the returned status.
func (e *Extractor) Extract(ctx context.Context, rawURL, siteHint string) *models.ExtractedContent {
	out := &models.ExtractedContent{URL: rawURL, ExtractedAt: e.now()}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return e.fail(out, StrategyGeneric, fmt.Sprintf("invalid url %q", rawURL))
	}

	site := e.resolveSite(siteHint, u.Host)
	doc := &Document{URL: u, RequestURL: rawURL, Site: site}

	var fetchErr error
	if err := e.pacer.Wait(ctx, u.Host); err != nil {
		fetchErr = err
	} else {
		userAgent := ""
		if site != nil {
			userAgent = site.UserAgent
		}
		resp, err := e.fetcher.Get(ctx, rawURL, userAgent)
		switch {
		case err != nil:
			fetchErr = err
		case !isMarkup(resp.ContentType):
			fetchErr = fmt.Errorf("unsupported content type %q", resp.ContentType)
		default:
			doc.HTML = resp.Body
			if resp.FinalURL != nil {
				doc.URL = resp.FinalURL
			}
		}
	}
	if ctx.Err() != nil {
		return e.fail(out, StrategyGeneric, ctx.Err().Error())
	}

	var (
		best     *Result
		bestName string
	)
	for _, s := range e.chain(site) {
		res, err := s.Extract(ctx, doc)
		if err != nil {
			e.logger.Debug("strategy yielded nothing", map[string]interface{}{
				"url":      rawURL,
				"strategy": s.Name(),
				"error":    err.Error(),
			})
			continue
		}
		if best == nil || utf8.RuneCountInString(res.Body) > utf8.RuneCountInString(best.Body) {
			best, bestName = res, s.Name()
		}
		if utf8.RuneCountInString(res.Body) >= e.config.MinBodyChars {
			break
		}
	}

	if best == nil {
		reason := "no content found"
		if fetchErr != nil {
			reason = fetchErr.Error()
		}
		return e.fail(out, StrategyGeneric, reason)
	}

	out.Title = best.Title
	out.BodyText = best.Body
	out.Author = best.Author
	out.Site = best.Site
	if out.Site == "" && site != nil {
		out.Site = site.Code
	}
	out.Strategy = bestName
	out.Summary = truncateRunes(best.Body, e.config.SummaryChars)

	switch {
	case utf8.RuneCountInString(best.Body) >= e.config.MinBodyChars:
		out.Status = models.ExtractionOK
	case best.Body != "" || best.Title != "":
		out.Status = models.ExtractionPartial
		out.Error = fmt.Sprintf("body has %d chars, want %d", utf8.RuneCountInString(best.Body), e.config.MinBodyChars)
	default:
		return e.fail(out, bestName, "no content found")
	}

	metrics.ExtractionResults.WithLabelValues(bestName, string(out.Status)).Inc()
	e.logger.Debug("content extracted", map[string]interface{}{
		"url":      rawURL,
		"strategy": bestName,
		"status":   string(out.Status),
		"chars":    utf8.RuneCountInString(out.BodyText),
	})
	return out
}

func (e *Extractor) fail(out *models.ExtractedContent, strategy, reason string) *models.ExtractedContent {
	out.Status = models.ExtractionFailed
	out.BodyText = ""
	out.Summary = ""
	out.Strategy = strategy
	out.Error = reason
	metrics.ExtractionResults.WithLabelValues(strategy, string(out.Status)).Inc()
	e.logger.Warn("extraction failed", map[string]interface{}{
		"url":       out.URL,
		"errorCode": string(apperrors.ErrCodeExtractionFailed),
		"reason":    reason,
	})
	return out
}

// resolveSite looks up the hint as a site code first, then the host.
func (e *Extractor) resolveSite(hint, host string) *Site {
	if hint != "" {
		if site, ok := e.sites[strings.ToLower(hint)]; ok {
			return &site
		}
	}
	host = strings.ToLower(host)
	for host != "" {
		if code, ok := e.hosts[host]; ok {
			site := e.sites[code]
			return &site
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return nil
}

// chain is the site strategy followed by the generic fallback.
func (e *Extractor) chain(site *Site) []Strategy {
	generic, _ := e.registry.Resolve(StrategyGeneric)
	if site == nil || site.Strategy == "" || site.Strategy == StrategyGeneric {
		return []Strategy{generic}
	}
	s, ok := e.registry.Resolve(site.Strategy)
	if !ok {
		e.logger.Warn("unknown site strategy, using generic", map[string]interface{}{
			"site":     site.Code,
			"strategy": site.Strategy,
		})
		return []Strategy{generic}
	}
	return []Strategy{s, generic}
}

func isMarkup(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "html") || strings.Contains(ct, "xml") || strings.HasPrefix(ct, "text/")
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
