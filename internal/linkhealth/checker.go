package linkhealth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"taxEvents/internal/config"
	"taxEvents/internal/models/domain"
	"taxEvents/internal/utils/logger/sl"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// suspiciousMarkers ищутся в title и главном заголовке страниц, которые отвечают 200, но по сути мертвы.
var suspiciousMarkers = []string{
	"page not found",
	"404",
	"no longer available",
	"event has ended",
	"registration is closed",
	"has been cancelled",
	"has been canceled",
	"domain is for sale",
	"buy this domain",
	"parked free",
}

// Checker сам проходит по редиректам и оценивает доступность ссылки.
type Checker struct {
	log     *slog.Logger
	client  *resty.Client
	maxHops int
	maxBody int64
	weights Weights
}

// NewChecker создаёт новый экземпляр Checker. nil transport означает стандартный http transport.
func NewChecker(log *slog.Logger, cfg config.LinkHealthConfig, transport http.RoundTripper) *Checker {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8").
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	if transport != nil {
		client.SetTransport(transport)
	}

	return &Checker{
		log:     log,
		client:  client,
		maxHops: cfg.MaxHops,
		maxBody: cfg.MaxBodyBytes,
		weights: WeightsFromConfig(cfg),
	}
}

// Check никогда не падает: сетевая ошибка даёт nil статус и нулевую оценку.
func (c *Checker) Check(ctx context.Context, rawURL string) domain.LinkHealth {
	op := "linkhealth.Checker.Check()"
	log := c.log.With(slog.String("op", op), slog.String("url", rawURL))

	obs, chain := c.observe(ctx, log, rawURL)
	result := domain.LinkHealth{
		RedirectChain: chain,
		Score:         Score(obs, c.weights),
	}
	if !obs.NetworkError {
		status := obs.Status
		result.Status = &status
	}
	if !obs.NetworkError && !obs.HopLimitExceeded {
		canonical := obs.FinalURL
		result.CanonicalURL = &canonical
	}

	log.Debug("link checked",
		slog.Int("score", result.Score),
		slog.Int("status", obs.Status),
		slog.Int("redirects", obs.Redirects),
	)
	return result
}

func (c *Checker) observe(ctx context.Context, log *slog.Logger, rawURL string) (Observation, []string) {
	obs := Observation{CandidateURL: rawURL}
	visited := make([]string, 0)
	current := rawURL

	for {
		resp, err := c.client.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(current)
		if err != nil {
			log.Debug("fetch failed", slog.String("at", current), sl.Err(err))
			obs.NetworkError = true
			obs.Redirects = len(visited)
			return obs, intermediate(visited)
		}

		status := resp.StatusCode()
		obs.Status = status

		if isRedirect(status) {
			location := resp.Header().Get("Location")
			closeBody(resp)

			next, err := resolveLocation(current, location)
			if err != nil {
				log.Debug("bad redirect location", slog.String("location", location), sl.Err(err))
				obs.FinalURL = current
				obs.Redirects = len(visited)
				return obs, intermediate(visited)
			}
			if len(visited) >= c.maxHops {
				obs.HopLimitExceeded = true
				obs.FinalURL = current
				obs.Redirects = len(visited)
				return obs, intermediate(visited)
			}
			visited = append(visited, current)
			current = next
			continue
		}

		obs.FinalURL = current
		obs.Redirects = len(visited)
		if is2xx(status) && isHTML(resp.Header().Get("Content-Type")) {
			obs.SuspiciousContent = c.looksDead(resp.RawBody())
		}
		closeBody(resp)
		return obs, intermediate(visited)
	}
}

// intermediate убирает исходный URL из списка редиректов, оставляя промежуточные хопы.
func intermediate(visited []string) []string {
	if len(visited) <= 1 {
		return []string{}
	}
	return append([]string{}, visited[1:]...)
}

// looksDead ищет в title и заголовке признаки soft-404, отмены или припаркованного домена.
func (c *Checker) looksDead(body io.Reader) bool {
	if body == nil {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, c.maxBody))
	if err != nil {
		return false
	}
	text := strings.ToLower(doc.Find("title").First().Text() + " " + doc.Find("h1").First().Text())
	for _, marker := range suspiciousMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func resolveLocation(current, location string) (string, error) {
	if strings.TrimSpace(location) == "" {
		return "", errors.New("empty Location header")
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse current url: %w", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse location: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}

func closeBody(resp *resty.Response) {
	if body := resp.RawBody(); body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
		_ = body.Close()
	}
}
