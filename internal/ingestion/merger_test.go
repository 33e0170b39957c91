package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"taxEvents/internal/models/domain"
	"taxEvents/internal/models/dto"
	"taxEvents/internal/normalizer"
	"taxEvents/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = domain.PublishPolicy{MinScore: 60, MaxAge: 7 * 24 * time.Hour}

type recordingNotifier struct {
	events []domain.Event
}

func (n *recordingNotifier) NotifyPending(_ context.Context, e domain.Event) {
	n.events = append(n.events, e)
}

// failingRepo fails CreateEvent for one title.
type failingRepo struct {
	*repositories.Memory
	failTitle string
}

func (r *failingRepo) CreateEvent(ctx context.Context, e domain.Event) (domain.Event, error) {
	if e.Title == r.failTitle {
		return domain.Event{}, errors.New("connection reset")
	}
	return r.Memory.CreateEvent(ctx, e)
}

func setupMerger(t *testing.T) (*Merger, *repositories.Memory, *recordingNotifier) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repositories.NewMemory(testPolicy, nil)
	notifier := &recordingNotifier{}
	m := New(log, repo, normalizer.New(log, 24*time.Hour), notifier, nil)
	return m, repo, notifier
}

func futureDate(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func rawEvent(title, url string) dto.RawEvent {
	return dto.RawEvent{
		Title:     title,
		StartDate: futureDate(30),
		Organizer: "IRS",
		URL:       url,
		Tags:      dto.FlexibleStringSlice{"virtual", "cpe"},
	}
}

func TestIngest_InsertsPendingAndNotifies(t *testing.T) {
	m, repo, notifier := setupMerger(t)
	ctx := context.Background()

	result, rejections := m.Ingest(ctx, []dto.RawEvent{rawEvent("IRS CPE Webinar", "https://irs.gov/webinar")},
		Options{Source: domain.SourceAIGenerated})

	assert.Empty(t, rejections)
	assert.Equal(t, domain.IngestResult{Processed: 1, Inserted: 1}, result)

	events, err := repo.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReviewStatusPending, events[0].ReviewStatus)
	assert.False(t, events[0].Publishable)
	assert.Nil(t, events[0].LastCheckedAt)
	assert.Nil(t, events[0].CanonicalURL)
	require.Len(t, notifier.events, 1)
}

func TestIngest_DedupeIsIdempotent(t *testing.T) {
	m, repo, _ := setupMerger(t)
	ctx := context.Background()

	first := rawEvent("IRS CPE Webinar", "https://irs.gov/webinar")
	second := first
	second.Title = "  irs cpe   WEBINAR "
	second.Description = "Updated agenda"
	second.URL = "https://irs.gov/webinar?utm=x"

	r1, _ := m.Ingest(ctx, []dto.RawEvent{first}, Options{Source: domain.SourceAIGenerated})
	r2, _ := m.Ingest(ctx, []dto.RawEvent{second}, Options{Source: domain.SourceAIGenerated})

	assert.Equal(t, 1, r1.Inserted)
	assert.Equal(t, 0, r2.Inserted)
	assert.Equal(t, 1, r2.Updated)

	events, err := repo.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Updated agenda", events[0].Description)
	assert.Equal(t, "https://irs.gov/webinar", events[0].CandidateURL)
}

func TestIngest_ReviewIsSticky(t *testing.T) {
	m, repo, _ := setupMerger(t)
	ctx := context.Background()

	raw := rawEvent("IRS CPE Webinar", "https://irs.gov/webinar")
	m.Ingest(ctx, []dto.RawEvent{raw}, Options{Source: domain.SourceAIGenerated})

	events, err := repo.ListEvents(ctx)
	require.NoError(t, err)
	_, err = repo.UpdateReview(ctx, events[0].ID, domain.ReviewChange{
		From:   domain.ReviewStatusPending,
		Review: domain.Review{Status: domain.ReviewStatusApproved, ReviewedAt: time.Now(), ReviewedBy: "admin"},
	})
	require.NoError(t, err)

	raw.Description = "regenerated by the model"
	result, _ := m.Ingest(ctx, []dto.RawEvent{raw}, Options{Source: domain.SourceAIGenerated})
	assert.Equal(t, 1, result.Updated)

	got, err := repo.FindEventByID(ctx, events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewStatusApproved, got.ReviewStatus)
	assert.Equal(t, "regenerated by the model", got.Description)
}

func TestIngest_TombstoneSuppressesUnderNewTitle(t *testing.T) {
	m, repo, _ := setupMerger(t)
	ctx := context.Background()

	m.Ingest(ctx, []dto.RawEvent{rawEvent("Spam Seminar", "https://spam.example/e")}, Options{Source: domain.SourceAIGenerated})
	events, err := repo.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, err = repo.UpdateReview(ctx, events[0].ID, domain.ReviewChange{
		From:      domain.ReviewStatusPending,
		Review:    domain.Review{Status: domain.ReviewStatusRejected, ReviewedAt: time.Now()},
		Tombstone: &domain.Tombstone{URL: events[0].CandidateURL, EventID: events[0].ID},
	})
	require.NoError(t, err)

	result, _ := m.Ingest(ctx, []dto.RawEvent{rawEvent("Totally Different Title", "https://spam.example/e")},
		Options{Source: domain.SourceAIGenerated})

	assert.Equal(t, domain.IngestResult{Processed: 1, Suppressed: 1}, result)
	events, err = repo.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestIngest_AdminCreatedIsTrusted(t *testing.T) {
	m, repo, notifier := setupMerger(t)
	ctx := context.Background()

	result, _ := m.Ingest(ctx, []dto.RawEvent{rawEvent("NATP Workshop", "https://natp.org/ws")},
		Options{Source: domain.SourceAdminCreated, Actor: "admin-1"})
	assert.Equal(t, 1, result.Inserted)

	events, err := repo.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, domain.ReviewStatusApproved, e.ReviewStatus)
	assert.Equal(t, 100, e.LinkHealthScore)
	require.NotNil(t, e.CanonicalURL)
	assert.Equal(t, e.CandidateURL, *e.CanonicalURL)
	require.NotNil(t, e.ReviewedBy)
	assert.Equal(t, "admin-1", *e.ReviewedBy)
	assert.True(t, e.Publishable)
	assert.Empty(t, notifier.events)
}

func TestIngest_AdminReingestPromotesPending(t *testing.T) {
	m, repo, _ := setupMerger(t)
	ctx := context.Background()

	raw := rawEvent("NATP Workshop", "https://natp.org/ws")
	m.Ingest(ctx, []dto.RawEvent{raw}, Options{Source: domain.SourceUserSuggestion, Actor: "viewer-9"})
	result, _ := m.Ingest(ctx, []dto.RawEvent{raw}, Options{Source: domain.SourceAdminCreated, Actor: "admin-1"})
	assert.Equal(t, 1, result.Updated)

	events, err := repo.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReviewStatusApproved, events[0].ReviewStatus)
	assert.True(t, events[0].Publishable)
	require.NotNil(t, events[0].SuggestedBy)
	assert.Equal(t, "viewer-9", *events[0].SuggestedBy)
}

func TestIngest_AdminPendingOverride(t *testing.T) {
	m, repo, notifier := setupMerger(t)
	ctx := context.Background()

	m.Ingest(ctx, []dto.RawEvent{rawEvent("Draft", "https://natp.org/draft")},
		Options{Source: domain.SourceAdminCreated, Actor: "admin-1", ReviewStatus: domain.ReviewStatusPending})

	events, err := repo.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReviewStatusPending, events[0].ReviewStatus)
	assert.False(t, events[0].Publishable)
	assert.Len(t, notifier.events, 1)
}

func TestIngest_PartialFailure(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &failingRepo{Memory: repositories.NewMemory(testPolicy, nil), failTitle: "Broken"}
	m := New(log, repo, normalizer.New(log, 24*time.Hour), nil, nil)

	records := []dto.RawEvent{
		rawEvent("First", "https://a.example"),
		rawEvent("Broken", "https://b.example"),
		{Title: "No date", URL: "https://c.example"},
		rawEvent("Last", "https://d.example"),
	}

	result, rejections := m.Ingest(context.Background(), records, Options{Source: domain.SourceCurated})

	assert.Equal(t, domain.IngestResult{Processed: 3, Inserted: 2, Rejected: 1, Errors: 1}, result)
	require.Len(t, rejections, 1)
	assert.Equal(t, normalizer.ReasonMissingRequiredField, rejections[0].Reason)
}

func TestPlanReingest_NeverDowngrades(t *testing.T) {
	sources := []domain.Source{
		domain.SourceAIGenerated, domain.SourceUserSuggestion, domain.SourceCurated, domain.SourceAdminCreated,
	}
	for _, status := range []domain.ReviewStatus{domain.ReviewStatusApproved, domain.ReviewStatusRejected} {
		for _, source := range sources {
			plan := planReingest(status, source)
			assert.True(t, plan.Details, "%s/%s", status, source)
			assert.False(t, plan.Promote, "%s/%s", status, source)
		}
	}
	assert.True(t, planReingest(domain.ReviewStatusPending, domain.SourceAdminCreated).Promote)
	assert.False(t, planReingest(domain.ReviewStatusPending, domain.SourceAIGenerated).Promote)
}
