package normalizer

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"

	"taxEvents/internal/models/domain"
	"taxEvents/internal/models/dto"

	"github.com/go-playground/validator/v10"
)

// Reason - машиночитаемая причина отклонения.
type Reason string

const (
	ReasonMissingRequiredField Reason = "missing_required_field"
	ReasonInvalidDate          Reason = "invalid_date"
	ReasonInvalidLocation      Reason = "invalid_location"
	ReasonInvalidURL           Reason = "invalid_url"
)

const dedupeTimeLayout = "2006-01-02T15:04:05.000Z"

var (
	stateRe = regexp.MustCompile(`^[A-Z]{2}$`)

	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}

	virtualCityNames = map[string]bool{
		"virtual": true,
		"online":  true,
		"webinar": true,
	}
)

// Rejection описывает, почему запись не стала черновиком.
type Rejection struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail"`
}

func (r Rejection) Error() string {
	return fmt.Sprintf("record %d: %s: %s", r.Index, r.Reason, r.Detail)
}

// Result - либо валидный черновик, либо отклонение.
type Result struct {
	Draft     *domain.Event
	Rejection *Rejection
}

// Normalizer проверяет недоверенные записи и приводит их к черновикам событий.
type Normalizer struct {
	log           *slog.Logger
	validate      *validator.Validate
	pastTolerance time.Duration
	now           func() time.Time
}

// New создаёт новый экземпляр Normalizer. pastTolerance - насколько дата начала может быть в прошлом.
func New(log *slog.Logger, pastTolerance time.Duration) *Normalizer {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonName)

	return &Normalizer{
		log:           log,
		validate:      validate,
		pastTolerance: pastTolerance,
		now:           time.Now,
	}
}

// Normalize превращает сырые записи в черновики с источником source.
// Плохая запись даёт отклонение и не прерывает пачку.
func (n *Normalizer) Normalize(records []dto.RawEvent, source domain.Source) []Result {
	op := "Normalizer.Normalize()"
	log := n.log.With(slog.String("op", op), slog.String("source", string(source)))

	now := n.now()
	results := make([]Result, 0, len(records))

	for i, rec := range records {
		draft, rej := n.normalizeOne(rec, source, now)
		if rej != nil {
			rej.Index = i
			log.Debug("record rejected",
				slog.Int("index", i),
				slog.String("reason", string(rej.Reason)),
				slog.String("detail", rej.Detail),
			)
			results = append(results, Result{Rejection: rej})
			continue
		}
		results = append(results, Result{Draft: &draft})
	}

	return results
}

// Split разделяет черновики и отклонения, сохраняя порядок.
func Split(results []Result) ([]domain.Event, []Rejection) {
	drafts := make([]domain.Event, 0, len(results))
	var rejections []Rejection
	for _, r := range results {
		if r.Draft != nil {
			drafts = append(drafts, *r.Draft)
		} else if r.Rejection != nil {
			rejections = append(rejections, *r.Rejection)
		}
	}
	return drafts, rejections
}

func (n *Normalizer) normalizeOne(rec dto.RawEvent, source domain.Source, now time.Time) (domain.Event, *Rejection) {
	rec.Title = collapseSpaces(rec.Title)
	rec.StartDate = strings.TrimSpace(rec.StartDate)
	rec.URL = strings.TrimSpace(rec.URL)
	if err := n.validate.Struct(rec); err != nil {
		return domain.Event{}, reject(rec, ReasonMissingRequiredField, requiredDetail(err))
	}
	title, rawURL := rec.Title, rec.URL
	if !source.Valid() {
		return domain.Event{}, reject(rec, ReasonMissingRequiredField, fmt.Sprintf("unknown source %q", source))
	}

	start, err := ParseDate(rec.StartDate)
	if err != nil {
		return domain.Event{}, reject(rec, ReasonInvalidDate, err.Error())
	}
	if start.Before(now.Add(-n.pastTolerance)) {
		return domain.Event{}, reject(rec, ReasonInvalidDate, "start date is in the past")
	}

	var end *time.Time
	if strings.TrimSpace(rec.EndDate) != "" {
		e, err := ParseDate(rec.EndDate)
		if err != nil {
			return domain.Event{}, reject(rec, ReasonInvalidDate, err.Error())
		}
		if e.Before(start) {
			return domain.Event{}, reject(rec, ReasonInvalidDate, "end date is before start date")
		}
		end = &e
	}

	candidateURL, err := normalizeURL(rawURL)
	if err != nil {
		return domain.Event{}, reject(rec, ReasonInvalidURL, err.Error())
	}

	tags := NormalizeTags(rec.Tags)
	city, state, tags, err := resolveLocation(rec.City, rec.State, tags)
	if err != nil {
		return domain.Event{}, reject(rec, ReasonInvalidLocation, err.Error())
	}

	organizer := collapseSpaces(rec.Organizer)

	return domain.Event{
		DedupeKey:    DedupeKey(title, start, organizer),
		Title:        title,
		Description:  strings.TrimSpace(rec.Description),
		StartDate:    start,
		EndDate:      end,
		City:         city,
		State:        state,
		Organizer:    organizer,
		Tags:         tags,
		Source:       source,
		CandidateURL: candidateURL,
		ReviewStatus: domain.ReviewStatusPending,
	}, nil
}

// DedupeKey - хэш содержимого, определяющий логическое событие независимо от URL.
func DedupeKey(title string, start time.Time, organizer string) string {
	payload := strings.ToLower(collapseSpaces(title)) + "|" +
		start.UTC().Format(dedupeTimeLayout) + "|" +
		strings.ToLower(collapseSpaces(organizer))
	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ParseDate принимает дату или время. Значения без зоны считаются UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

// NormalizeTags приводит теги к slug в нижнем регистре, убирая пустые и дубли.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		slug := slugify(tag)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		result = append(result, slug)
	}
	return result
}

func slugify(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = strings.TrimLeft(tag, "#")
	return strings.Join(strings.Fields(tag), "_")
}

func resolveLocation(rawCity, rawState string, tags []string) (*string, *string, []string, error) {
	city := collapseSpaces(rawCity)
	state := strings.ToUpper(strings.TrimSpace(rawState))

	virtual := virtualCityNames[strings.ToLower(city)]
	for _, t := range tags {
		if t == domain.TagVirtual {
			virtual = true
		}
	}

	if state == "" {
		if city != "" && !virtual {
			return nil, nil, nil, fmt.Errorf("city %q given without a state", city)
		}
		return nil, nil, withTag(tags, domain.TagVirtual), nil
	}

	if !stateRe.MatchString(state) {
		return nil, nil, nil, fmt.Errorf("state %q is not a two-letter code", rawState)
	}
	if virtualCityNames[strings.ToLower(city)] {
		city = ""
	}
	if city == "" {
		if !virtual {
			return nil, nil, nil, fmt.Errorf("state %q given without a city", state)
		}
		return nil, &state, tags, nil
	}

	return &city, &state, tags, nil
}

func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("unparsable url %q", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("url %q must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

func withTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// requiredDetail называет первое пустое обязательное поле.
func requiredDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fieldErrs[0].Field() + " is required"
	}
	return err.Error()
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func reject(rec dto.RawEvent, reason Reason, detail string) *Rejection {
	return &Rejection{
		Title:  strings.TrimSpace(rec.Title),
		Reason: reason,
		Detail: detail,
	}
}
