package dto

import (
	"time"

	"taxEvents/internal/models/domain"
	modelsDto "taxEvents/internal/models/dto"
	"taxEvents/internal/normalizer"

	"github.com/google/uuid"
)

// EventResponse - полное сохранённое представление события для админки.
type EventResponse struct {
	ID              uuid.UUID  `json:"id"`
	DedupeKey       string     `json:"dedupe_key"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	City            *string    `json:"city"`
	State           *string    `json:"location_state"`
	Organizer       string     `json:"organizer"`
	Tags            []string   `json:"tags"`
	Source          string     `json:"source"`
	CandidateURL    string     `json:"candidate_url"`
	CanonicalURL    *string    `json:"canonical_url"`
	URLStatus       *int       `json:"url_status"`
	RedirectChain   []string   `json:"redirect_chain"`
	LinkHealthScore int        `json:"link_health_score"`
	LastCheckedAt   *time.Time `json:"last_checked_at"`
	ReviewStatus    string     `json:"review_status"`
	AdminNotes      string     `json:"admin_notes"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
	ReviewedBy      *string    `json:"reviewed_by"`
	SuggestedBy     *string    `json:"suggested_by"`
	SuggestedAt     *time.Time `json:"suggested_at"`
	Publishable     bool       `json:"publishable"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// PublicEventResponse - то, что видят пользователи в списке.
type PublicEventResponse struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	City        *string    `json:"city"`
	State       *string    `json:"location_state"`
	Organizer   string     `json:"organizer"`
	Tags        []string   `json:"tags"`
	URL         string     `json:"url"`
}

// EventRequest содержит поля события от администратора или пользователя.
type EventRequest struct {
	Title        string                        `json:"title"`
	Description  string                        `json:"description"`
	StartDate    string                        `json:"startDate"`
	EndDate      string                        `json:"endDate"`
	City         string                        `json:"city"`
	State        string                        `json:"state"`
	URL          string                        `json:"url"`
	Organizer    string                        `json:"organizer"`
	Tags         modelsDto.FlexibleStringSlice `json:"tags"`
	ReviewStatus string                        `json:"reviewStatus"`
}

// SuggestionRequest - публичное предложение. ReviewStatus игнорируется.
type SuggestionRequest struct {
	EventRequest
	TurnstileToken string `json:"turnstileToken"`
}

// IngestResponse - итог приёма вместе с причинами отклонения.
type IngestResponse struct {
	domain.IngestResult
	Rejections []normalizer.Rejection `json:"rejections"`
}

// ReviewRequest - решение администратора по одному событию.
type ReviewRequest struct {
	EventID string `json:"eventId"`
	Status  string `json:"status"`
	Notes   string `json:"notes"`
}

// ReviewListResponse - список модерации со сводкой по статусам.
type ReviewListResponse struct {
	Events  []EventResponse `json:"events"`
	Summary map[string]int  `json:"summary"`
}

// RecheckRequest задаёт одно событие или размер пачки для перепроверки.
type RecheckRequest struct {
	ID        string `json:"id"`
	BatchSize int    `json:"batch_size"`
}

type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// ToRaw превращает запрос в недоверенную запись для нормализатора.
func (r EventRequest) ToRaw() modelsDto.RawEvent {
	return modelsDto.RawEvent{
		Title:       r.Title,
		Description: r.Description,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		City:        r.City,
		State:       r.State,
		URL:         r.URL,
		Organizer:   r.Organizer,
		Tags:        r.Tags,
	}
}

// NewIngestResponse собирает ответ на приём.
func NewIngestResponse(result domain.IngestResult, rejections []normalizer.Rejection) IngestResponse {
	if rejections == nil {
		rejections = []normalizer.Rejection{}
	}
	return IngestResponse{IngestResult: result, Rejections: rejections}
}

// MapDomainToEventResponse конвертирует доменное событие в DTO для админки.
func MapDomainToEventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:              e.ID,
		DedupeKey:       e.DedupeKey,
		Title:           e.Title,
		Description:     e.Description,
		StartDate:       e.StartDate,
		EndDate:         e.EndDate,
		City:            e.City,
		State:           e.State,
		Organizer:       e.Organizer,
		Tags:            nonNil(e.Tags),
		Source:          string(e.Source),
		CandidateURL:    e.CandidateURL,
		CanonicalURL:    e.CanonicalURL,
		URLStatus:       e.URLStatus,
		RedirectChain:   nonNil(e.RedirectChain),
		LinkHealthScore: e.LinkHealthScore,
		LastCheckedAt:   e.LastCheckedAt,
		ReviewStatus:    string(e.ReviewStatus),
		AdminNotes:      e.AdminNotes,
		ReviewedAt:      e.ReviewedAt,
		ReviewedBy:      e.ReviewedBy,
		SuggestedBy:     e.SuggestedBy,
		SuggestedAt:     e.SuggestedAt,
		Publishable:     e.Publishable,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// MapDomainToEventResponseList конвертирует список событий для админки.
func MapDomainToEventResponseList(events []domain.Event) []EventResponse {
	result := make([]EventResponse, len(events))
	for i, e := range events {
		result[i] = MapDomainToEventResponse(e)
	}
	return result
}

// MapDomainToPublicList конвертирует события для пользователей. Предпочитается canonical URL.
func MapDomainToPublicList(events []domain.Event) []PublicEventResponse {
	result := make([]PublicEventResponse, len(events))
	for i, e := range events {
		url := e.CandidateURL
		if e.CanonicalURL != nil && *e.CanonicalURL != "" {
			url = *e.CanonicalURL
		}
		result[i] = PublicEventResponse{
			ID:          e.ID,
			Title:       e.Title,
			Description: e.Description,
			StartDate:   e.StartDate,
			EndDate:     e.EndDate,
			City:        e.City,
			State:       e.State,
			Organizer:   e.Organizer,
			Tags:        nonNil(e.Tags),
			URL:         url,
		}
	}
	return result
}

func MapSummary(summary map[domain.ReviewStatus]int) map[string]int {
	result := make(map[string]int, len(summary))
	for k, v := range summary {
		result[string(k)] = v
	}
	return result
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
