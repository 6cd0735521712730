// internal/pipeline/extractor/strategy.go
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
)

const (
	StrategyGeneric  = "generic"
	StrategySelector = "selector"
	StrategyFeed     = "feed"
)

var (
	ErrNoDocument  = errors.New("no document to parse")
	ErrNoSelectors = errors.New("site has no content selector")
	ErrNoFeed      = errors.New("site has no feed")
	ErrNoContent   = errors.New("no content found")
)

// Document is what a strategy works from. HTML is empty when the page fetch
// failed; strategies that need the page return ErrNoDocument.
type Document struct {
	URL        *url.URL
	RequestURL string
	HTML       []byte
	Site       *Site
}

type Result struct {
	Title  string
	Body   string
	Author string
	Site   string
}

type Strategy interface {
	Name() string
	Extract(ctx context.Context, doc *Document) (*Result, error)
}

// Registry maps strategy names to implementations.
type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

func (r *Registry) Resolve(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// ==========================
// Generic
// ==========================

type genericStrategy struct {
	minChars int
}

func (g *genericStrategy) Name() string { return StrategyGeneric }

// Extract runs readability first and falls back to the paragraph-density
// block when readability yields less than minChars.
func (g *genericStrategy) Extract(_ context.Context, doc *Document) (*Result, error) {
	if len(doc.HTML) == 0 {
		return nil, ErrNoDocument
	}

	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.HTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	res := &Result{Title: pageTitle(gq)}

	if article, err := readability.FromReader(bytes.NewReader(doc.HTML), doc.URL); err == nil {
		res.Body = normalizeText(article.TextContent)
		res.Author = strings.TrimSpace(article.Byline)
		res.Site = strings.TrimSpace(article.SiteName)
		if t := strings.TrimSpace(article.Title); t != "" && res.Title == "" {
			res.Title = t
		}
	}

	if utf8.RuneCountInString(res.Body) < g.minChars {
		if dense := densestBlock(gq); utf8.RuneCountInString(dense) > utf8.RuneCountInString(res.Body) {
			res.Body = dense
		}
	}

	if res.Body == "" && res.Title == "" {
		return nil, ErrNoContent
	}
	return res, nil
}

const noiseSelectors = "script, style, noscript, nav, header, footer, aside, form, iframe"

// densestBlock picks the element whose direct <p> children carry the most
// non-link text.
func densestBlock(doc *goquery.Document) string {
	doc.Find(noiseSelectors).Remove()

	var (
		best      *goquery.Selection
		bestScore int
	)
	doc.Find("article, main, section, div, td").Each(func(_ int, s *goquery.Selection) {
		score := 0
		s.ChildrenFiltered("p").Each(func(_ int, p *goquery.Selection) {
			n := utf8.RuneCountInString(strings.TrimSpace(p.Text())) -
				utf8.RuneCountInString(strings.TrimSpace(p.Find("a").Text()))
			if n > 0 {
				score += n
			}
		})
		if score > bestScore {
			best, bestScore = s, score
		}
	})

	if best == nil {
		return normalizeText(doc.Find("body").Text())
	}

	var parts []string
	best.ChildrenFiltered("p").Each(func(_ int, p *goquery.Selection) {
		if text := normalizeText(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

// ==========================
// Selector
// ==========================

type selectorStrategy struct{}

func (selectorStrategy) Name() string { return StrategySelector }

func (selectorStrategy) Extract(_ context.Context, doc *Document) (*Result, error) {
	if doc.Site == nil || doc.Site.ContentSelector == "" {
		return nil, ErrNoSelectors
	}
	if len(doc.HTML) == 0 {
		return nil, ErrNoDocument
	}

	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.HTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	for _, sel := range doc.Site.Remove {
		gq.Find(sel).Remove()
	}

	res := &Result{Site: doc.Site.Code}
	if doc.Site.TitleSelector != "" {
		res.Title = normalizeText(gq.Find(doc.Site.TitleSelector).First().Text())
	}
	if res.Title == "" {
		res.Title = pageTitle(gq)
	}
	if doc.Site.AuthorSelector != "" {
		res.Author = normalizeText(gq.Find(doc.Site.AuthorSelector).First().Text())
	}

	var parts []string
	gq.Find(doc.Site.ContentSelector).Each(func(_ int, s *goquery.Selection) {
		if text := normalizeText(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	res.Body = strings.Join(parts, "\n")
	if res.Body == "" {
		return nil, fmt.Errorf("selector %q matched nothing: %w", doc.Site.ContentSelector, ErrNoContent)
	}
	return res, nil
}

// ==========================
// Feed
// ==========================

// feedStrategy finds the article in the site's RSS/Atom feed by link. It
// works even when the article page itself could not be fetched.
type feedStrategy struct {
	fetcher Fetcher
	pacer   *Pacer
}

func (f *feedStrategy) Name() string { return StrategyFeed }

func (f *feedStrategy) Extract(ctx context.Context, doc *Document) (*Result, error) {
	if doc.Site == nil || doc.Site.FeedURL == "" {
		return nil, ErrNoFeed
	}

	if u, err := url.Parse(doc.Site.FeedURL); err == nil {
		if err := f.pacer.Wait(ctx, u.Host); err != nil {
			return nil, err
		}
	}
	resp, err := f.fetcher.Get(ctx, doc.Site.FeedURL, doc.Site.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	for _, item := range feed.Items {
		if !sameLink(item.Link, doc.RequestURL) && (doc.URL == nil || !sameLink(item.Link, doc.URL.String())) {
			continue
		}
		body := item.Content
		if body == "" {
			body = item.Description
		}
		res := &Result{
			Title: strings.TrimSpace(item.Title),
			Body:  htmlToText(body),
			Site:  doc.Site.Code,
		}
		if item.Author != nil {
			res.Author = strings.TrimSpace(item.Author.Name)
		}
		return res, nil
	}
	return nil, fmt.Errorf("link not in feed %s: %w", doc.Site.FeedURL, ErrNoContent)
}

// ==========================
// Text helpers
// ==========================

func pageTitle(doc *goquery.Document) string {
	if t, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	if t := normalizeText(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return normalizeText(doc.Find("h1").First().Text())
}

// normalizeText trims every line, collapses inner whitespace and drops blank lines.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func htmlToText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return normalizeText(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return normalizeText(fragment)
	}
	var parts []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := normalizeText(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return normalizeText(doc.Text())
	}
	return strings.Join(parts, "\n")
}

func sameLink(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ua, errA := url.Parse(strings.TrimSpace(a))
	ub, errB := url.Parse(strings.TrimSpace(b))
	if errA != nil || errB != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host) &&
		strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/") &&
		ua.RawQuery == ub.RawQuery
}
