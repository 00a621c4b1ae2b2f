package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"threatharvest/config"
	"threatharvest/core"
	"threatharvest/metrics"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// =============================================================================
// Webpage Source Adapter
// =============================================================================

// WebpageSource scrapes records off an HTML page using a configured CSS
// selector set: one record per element matched by the item selector.
type WebpageSource struct {
	baseSource
}

// NewWebpageSource creates a scraping adapter for one configured source.
// A missing selector set is a configuration error.
func NewWebpageSource(name string, cfg config.SourceConfig, opts FetchOptions, logger *zap.SugaredLogger) (*WebpageSource, error) {
	if cfg.Selectors == nil || cfg.Selectors.Item == "" {
		return nil, fmt.Errorf("source %q: %w", name, errMissingSelectors)
	}
	return &WebpageSource{
		baseSource: newBaseSource(name, core.SourceTypeWebpage, cfg, opts, logger),
	}, nil
}

// Fetch retrieves the page and extracts one record per matched item
// element. Relative links are resolved against the page URL.
func (s *WebpageSource) Fetch(ctx context.Context) []core.RawRecord {
	body, err := s.fetchWithRetry(ctx)
	if err != nil {
		metrics.FetchFailures.WithLabelValues(s.name).Inc()
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.logger.Warnw("Invalid HTML page", "source", s.name, "error", err)
		metrics.FetchFailures.WithLabelValues(s.name).Inc()
		return nil
	}

	base, err := url.Parse(s.cfg.URL)
	if err != nil {
		base = nil
	}

	sel := s.cfg.Selectors
	items := doc.Find(sel.Item)
	if items.Length() == 0 {
		s.logger.Warnw("No elements matched the item selector",
			"source", s.name, "selector", sel.Item, "url", s.cfg.URL)
		return nil
	}

	var records []core.RawRecord
	items.Each(func(_ int, item *goquery.Selection) {
		title := selectText(item, sel.Title)
		description := selectText(item, sel.Description)

		if !matchesKeywords(title+" "+description, s.cfg.FilterKeywords) {
			return
		}

		link := ""
		if sel.Link != "" {
			if href, ok := item.Find(sel.Link).First().Attr("href"); ok {
				link = resolveLink(base, href)
			}
		}

		published := normalizePublished(selectText(item, sel.Date), s.logger)

		raw, _ := goquery.OuterHtml(item)
		records = append(records, core.RawRecord{
			ID:          core.ContentID(title, description),
			Source:      s.name,
			SourceType:  core.SourceTypeWebpage,
			Title:       title,
			Description: description,
			Published:   published,
			Link:        link,
			RawData:     raw,
		})
	})

	metrics.RecordsFetched.WithLabelValues(s.name).Add(float64(len(records)))
	return records
}

// selectText extracts the trimmed text of the first element matching the
// selector inside an item, or "" when the selector is empty or unmatched.
func selectText(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(item.Find(selector).First().Text())
}

// resolveLink turns a possibly relative href into an absolute URL using
// the page URL as base.
func resolveLink(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
