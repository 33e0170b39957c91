package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrDuplicateEvent    = errors.New("event with this dedupe key already exists")
	ErrProfileNotFound   = errors.New("profile not found")
	ErrInvalidTransition = errors.New("review transition is not allowed")
	ErrInvalidStatus     = errors.New("invalid review status")
)

// ReviewStatus представляет статус модерации события
type ReviewStatus string

const (
	// ReviewStatusPending: событие ждёт решения администратора
	ReviewStatusPending ReviewStatus = "pending_review"
	// ReviewStatusApproved: событие одобрено
	ReviewStatusApproved ReviewStatus = "approved"
	// ReviewStatusRejected: событие отклонено, его URL в tombstone
	ReviewStatusRejected ReviewStatus = "rejected"
)

// Valid сообщает, известен ли статус.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected:
		return true
	default:
		return false
	}
}

// Source представляет происхождение записи
type Source string

const (
	SourceAIGenerated    Source = "ai_generated"
	SourceUserSuggestion Source = "user_suggestion"
	SourceAdminCreated   Source = "admin_created"
	SourceCurated        Source = "curated"
)

// Valid сообщает, известен ли источник.
func (s Source) Valid() bool {
	switch s {
	case SourceAIGenerated, SourceUserSuggestion, SourceAdminCreated, SourceCurated:
		return true
	default:
		return false
	}
}

const (
	TagVirtual    = "virtual"
	TagGeneralTax = "general_tax"
)

// Event - доменная модель мероприятия для налоговых специалистов.
// Логическая идентичность события - DedupeKey, а не ID.
type Event struct {
	ID        uuid.UUID
	DedupeKey string

	Title       string
	Description string
	StartDate   time.Time
	EndDate     *time.Time
	City        *string
	State       *string // nil means virtual
	Organizer   string
	Tags        []string

	Source Source

	CandidateURL    string
	CanonicalURL    *string
	URLStatus       *int
	RedirectChain   []string
	LinkHealthScore int
	LastCheckedAt   *time.Time

	ReviewStatus ReviewStatus
	AdminNotes   string
	ReviewedAt   *time.Time
	ReviewedBy   *string
	SuggestedBy  *string
	SuggestedAt  *time.Time

	Publishable bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsVirtual сообщает, проходит ли событие онлайн.
func (e Event) IsVirtual() bool {
	return e.State == nil
}

func (e Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// LinkHealth - результат одной проверки ссылки.
type LinkHealth struct {
	Status        *int
	CanonicalURL  *string
	RedirectChain []string
	Score         int
}

// Review содержит поля, проставляемые переходом модерации.
type Review struct {
	Status     ReviewStatus
	Notes      string
	ReviewedAt time.Time
	ReviewedBy string
}

// ReviewChange - переход модерации, применяемый атомарно вместе с tombstone.
// From защищает от конкурентного перехода той же строки.
type ReviewChange struct {
	From        ReviewStatus
	Review      Review
	Tombstone   *Tombstone
	Untombstone bool
}

// Tombstone запрещает повторный приём отклонённого URL.
type Tombstone struct {
	URL       string
	EventID   uuid.UUID
	Reason    string
	CreatedBy string
	CreatedAt time.Time
}

// ViewerProfile - часть профиля из каталога, нужная для отбора событий.
type ViewerProfile struct {
	ID            string
	Specialties   []string
	Software      []string
	ServiceStates []string
}

// PublishPolicy определяет вычисляемый флаг publishable.
type PublishPolicy struct {
	MinScore int
	MaxAge   time.Duration
}

// Publishable сообщает, можно ли показывать событие пользователям в момент now.
func (p PublishPolicy) Publishable(e Event, now time.Time) bool {
	if e.ReviewStatus != ReviewStatusApproved {
		return false
	}
	if e.LinkHealthScore < p.MinScore {
		return false
	}
	if e.LastCheckedAt == nil {
		return false
	}
	return !e.LastCheckedAt.Before(p.FreshSince(now))
}

// FreshSince возвращает самый старый last_checked_at, который ещё считается свежим.
func (p PublishPolicy) FreshSince(now time.Time) time.Time {
	return now.Add(-p.MaxAge)
}

// IngestResult - итог приёма пачки.
type IngestResult struct {
	Processed  int `json:"processed"`
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Suppressed int `json:"suppressed"`
	Rejected   int `json:"rejected"`
	Errors     int `json:"errors"`
}

// ValidationResult - итог запуска перепроверки.
type ValidationResult struct {
	Processed   int `json:"processed"`
	Validated   int `json:"validated"`
	Publishable int `json:"publishable"`
	Unreachable int `json:"unreachable"`
	Errors      int `json:"errors"`
}

// ValidationStats - агрегированные счётчики проверки ссылок по всем событиям.
type ValidationStats struct {
	Total       int `json:"total" db:"total"`
	Publishable int `json:"publishable" db:"publishable"`
	Unvalidated int `json:"unvalidated" db:"unvalidated"`
	LowScore    int `json:"low_score" db:"low_score"`
}
