package repositories

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// BaseModel содержит общие колонки таблиц.
type BaseModel struct {
	ID        uuid.UUID `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Event - строка таблицы events.
type Event struct {
	BaseModel
	DedupeKey       string         `db:"dedupe_key"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	StartDate       time.Time      `db:"start_date"`
	EndDate         *time.Time     `db:"end_date"`
	City            *string        `db:"city"`
	LocationState   *string        `db:"location_state"`
	Organizer       string         `db:"organizer"`
	Tags            pq.StringArray `db:"tags"`
	Source          string         `db:"source"`
	CandidateURL    string         `db:"candidate_url"`
	CanonicalURL    *string        `db:"canonical_url"`
	URLStatus       *int           `db:"url_status"`
	RedirectChain   pq.StringArray `db:"redirect_chain"`
	LinkHealthScore int            `db:"link_health_score"`
	LastCheckedAt   *time.Time     `db:"last_checked_at"`
	ReviewStatus    string         `db:"review_status"`
	AdminNotes      string         `db:"admin_notes"`
	ReviewedAt      *time.Time     `db:"reviewed_at"`
	ReviewedBy      *string        `db:"reviewed_by"`
	SuggestedBy     *string        `db:"suggested_by"`
	SuggestedAt     *time.Time     `db:"suggested_at"`
	Publishable     bool           `db:"publishable"`
}

// Tombstone - строка таблицы event_tombstones.
type Tombstone struct {
	URL       string    `db:"url"`
	EventID   uuid.UUID `db:"event_id"`
	Reason    string    `db:"reason"`
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}

// Profile - строка таблицы profiles с атрибутами для отбора событий.
type Profile struct {
	ID            string         `db:"id"`
	Specialties   pq.StringArray `db:"specialties"`
	Software      pq.StringArray `db:"software"`
	ServiceStates pq.StringArray `db:"service_states"`
}

type ReviewStatusCount struct {
	ReviewStatus string `db:"review_status"`
	Count        int    `db:"count"`
}
