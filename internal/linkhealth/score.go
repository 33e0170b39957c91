package linkhealth

import (
	"net"
	"strings"

	"taxEvents/internal/config"

	"golang.org/x/net/publicsuffix"
)

const (
	maxScore = 100
	minScore = 0
)

// Observation - то, что увидела одна проверка. Score зависит только от неё.
type Observation struct {
	CandidateURL      string
	FinalURL          string
	Status            int
	Redirects         int
	NetworkError      bool
	HopLimitExceeded  bool
	SuspiciousContent bool
}

// Weights - штрафы, вычитаемые из идеальной оценки.
type Weights struct {
	Redirect     int
	Status       int
	HostMismatch int
	HopLimit     int
	Content      int
}

// WeightsFromConfig берёт веса из конфига проверки ссылок.
func WeightsFromConfig(cfg config.LinkHealthConfig) Weights {
	return Weights{
		Redirect:     cfg.RedirectPenalty,
		Status:       cfg.StatusPenalty,
		HostMismatch: cfg.HostMismatchPenalty,
		HopLimit:     cfg.HopLimitPenalty,
		Content:      cfg.ContentPenalty,
	}
}

// Score вычисляет оценку ссылки от 0 до 100.
// Сетевая ошибка даёт 0, иначе из 100 вычитаются штрафы.
func Score(o Observation, w Weights) int {
	if o.NetworkError {
		return minScore
	}

	score := maxScore
	if o.Redirects > 1 {
		score -= w.Redirect * (o.Redirects - 1)
	}

	if o.HopLimitExceeded {
		score -= w.HopLimit
	} else if !is2xx(o.Status) {
		score -= w.Status
	}

	if o.Redirects > 0 && HostMismatch(o.CandidateURL, o.FinalURL) {
		score -= w.HostMismatch
	}

	if o.SuspiciousContent {
		score -= w.Content
	}

	return clamp(score)
}

// HostMismatch сообщает, ведут ли два URL на разные регистрируемые домены.
func HostMismatch(candidate, final string) bool {
	if final == "" {
		return false
	}
	return registrableDomain(hostOf(candidate)) != registrableDomain(hostOf(final))
}

func registrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	host = strings.TrimPrefix(host, "www.")
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

func isRedirect(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	default:
		return false
	}
}

func clamp(score int) int {
	if score < minScore {
		return minScore
	}
	if score > maxScore {
		return maxScore
	}
	return score
}
