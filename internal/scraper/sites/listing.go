package sites

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"taxEvents/internal/config"
	"taxEvents/internal/models/domain"
	"taxEvents/internal/models/dto"

	"github.com/PuerkitoBio/goquery"
	"github.com/geziyor/geziyor"
	"github.com/geziyor/geziyor/client"
)

var (
	ErrShutdown = errors.New("scraper is shutting down")

	cityStateRe  = regexp.MustCompile(`^(.+?),\s*([A-Za-z]{2})\b`)
	virtualWords = []string{"online", "virtual", "webinar", "livestream", "zoom"}
)

// ScrapeListing загружает site.URL через geziyor и извлекает по кандидату на каждый элемент списка.
func ScrapeListing(ctx context.Context, site config.SiteConfig, shutdownChan <-chan struct{}) ([]dto.RawEvent, error) {
	var records []dto.RawEvent
	var mu sync.Mutex

	done := make(chan struct{})
	gez := geziyor.NewGeziyor(&geziyor.Options{
		StartURLs:   []string{site.URL},
		LogDisabled: true,
		ParseFunc: func(g *geziyor.Geziyor, r *client.Response) {
			if r.HTMLDoc == nil {
				return
			}
			parsed := ParseListing(r.HTMLDoc, r.Request.URL, site)
			mu.Lock()
			records = append(records, parsed...)
			mu.Unlock()
		},
	})

	go func() {
		defer close(done)
		gez.Start()
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("scrape %s: %w", site.Name, ctx.Err())
	case <-shutdownChan:
		return nil, ErrShutdown
	case <-done:
	}

	mu.Lock()
	defer mu.Unlock()
	return records, nil
}

// ParseListing извлекает кандидатов из уже загруженного документа.
func ParseListing(doc *goquery.Document, base *url.URL, site config.SiteConfig) []dto.RawEvent {
	var records []dto.RawEvent

	doc.Find(site.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		title := cleanText(find(item, site.TitleSelector).Text())
		if title == "" {
			return
		}

		rec := dto.RawEvent{
			Title:     title,
			StartDate: parseDate(find(item, site.DateSelector), site.DateLayout),
			URL:       resolveLink(find(item, site.LinkSelector), base),
			Organizer: site.Organizer,
			Tags:      append(dto.FlexibleStringSlice{}, site.Tags...),
		}

		if site.LocationSelector != "" {
			city, state, virtual := parseLocation(cleanText(item.Find(site.LocationSelector).First().Text()))
			rec.City, rec.State = city, state
			if virtual {
				rec.Tags = append(rec.Tags, domain.TagVirtual)
			}
		}

		records = append(records, rec)
	})

	return records
}

func find(item *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return item
	}
	return item.Find(selector).First()
}

// parseDate предпочитает машиночитаемый атрибут datetime, иначе разбирает текст по layout.
func parseDate(sel *goquery.Selection, layout string) string {
	if dt, ok := sel.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}
	text := cleanText(sel.Text())
	if layout == "" || text == "" {
		return text
	}
	t, err := time.Parse(layout, text)
	if err != nil {
		return text
	}
	return t.Format(time.RFC3339)
}

func resolveLink(sel *goquery.Selection, base *url.URL) string {
	href, ok := sel.Attr("href")
	if !ok {
		href, ok = sel.Find("a[href]").First().Attr("href")
	}
	if !ok {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}

func parseLocation(text string) (city, state string, virtual bool) {
	lower := strings.ToLower(text)
	for _, w := range virtualWords {
		if strings.Contains(lower, w) {
			return "", "", true
		}
	}
	if m := cityStateRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), strings.ToUpper(m[2]), false
	}
	return "", "", false
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
