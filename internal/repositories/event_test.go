package repositories

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"taxEvents/internal/models/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow    = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	testPolicy = domain.PublishPolicy{MinScore: 60, MaxAge: 7 * 24 * time.Hour}
)

var eventRowColumns = []string{
	"id", "dedupe_key", "title", "description", "start_date", "end_date", "city", "location_state",
	"organizer", "tags", "source", "candidate_url", "canonical_url", "url_status", "redirect_chain", "link_health_score",
	"last_checked_at", "review_status", "admin_notes", "reviewed_at", "reviewed_by", "suggested_by", "suggested_at",
	"publishable", "created_at", "updated_at",
}

func setupMockRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Repository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewWithDB(log, sqlx.NewDb(db, "postgres"), testPolicy)
	repo.now = func() time.Time { return testNow }

	return db, mock, repo
}

func addEventRow(rows *sqlmock.Rows, id uuid.UUID, status string, score int, checkedAt interface{}, publishable bool) *sqlmock.Rows {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id.String(), "key-1", "IRS CPE Webinar", "desc", start, nil, nil, nil,
		"IRS", "{cpe,virtual}", "ai_generated", "https://irs.gov/webinar", "https://www.irs.gov/webinar", 200, "{}", score,
		checkedAt, status, "", nil, nil, nil, nil,
		publishable, testNow, testNow,
	)
}

func TestCreateEvent_Success(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(testNow, testNow))

	event, err := repo.CreateEvent(context.Background(), domain.Event{
		DedupeKey:    "key-1",
		Title:        "IRS CPE Webinar",
		StartDate:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Organizer:    "IRS",
		Source:       domain.SourceAIGenerated,
		CandidateURL: "https://irs.gov/webinar",
		ReviewStatus: domain.ReviewStatusPending,
	})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.False(t, event.Publishable)
	assert.Equal(t, testNow, event.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEvent_TrustedInsertIsPublishable(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(testNow, testNow))

	status := 200
	checked := testNow
	event, err := repo.CreateEvent(context.Background(), domain.Event{
		DedupeKey:       "key-2",
		Title:           "Admin event",
		Source:          domain.SourceAdminCreated,
		CandidateURL:    "https://example.org",
		URLStatus:       &status,
		LinkHealthScore: 100,
		LastCheckedAt:   &checked,
		ReviewStatus:    domain.ReviewStatusApproved,
	})

	require.NoError(t, err)
	assert.True(t, event.Publishable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEvent_Duplicate(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}))

	_, err := repo.CreateEvent(context.Background(), domain.Event{DedupeKey: "key-1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateEvent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindEventByID_NotFound(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindEventByID(context.Background(), id)

	assert.ErrorIs(t, err, domain.ErrEventNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindEventByDedupeKey_Success(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	id := uuid.New()
	rows := addEventRow(sqlmock.NewRows(eventRowColumns), id, "approved", 100, testNow, true)
	mock.ExpectQuery(`SELECT (.+) FROM events WHERE dedupe_key = \$1`).
		WithArgs("key-1").
		WillReturnRows(rows)

	event, err := repo.FindEventByDedupeKey(context.Background(), "key-1")

	require.NoError(t, err)
	assert.Equal(t, id, event.ID)
	assert.Equal(t, []string{"cpe", "virtual"}, event.Tags)
	assert.Equal(t, domain.ReviewStatusApproved, event.ReviewStatus)
	assert.True(t, event.IsVirtual())
	require.NotNil(t, event.URLStatus)
	assert.Equal(t, 200, *event.URLStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLinkHealth_RecomputesPublishableInQuery(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	id := uuid.New()
	status := 200
	canonical := "https://www.irs.gov/webinar"
	health := domain.LinkHealth{Status: &status, CanonicalURL: &canonical, Score: 100}

	rows := addEventRow(sqlmock.NewRows(eventRowColumns), id, "pending_review", 100, testNow, false)
	mock.ExpectQuery(`UPDATE events SET (.+) publishable = \(review_status = 'approved'`).
		WithArgs(id, &status, &canonical, sqlmock.AnyArg(), 100, testNow, 60, testNow.Add(-7*24*time.Hour)).
		WillReturnRows(rows)

	event, err := repo.UpdateLinkHealth(context.Background(), id, health, testNow)

	require.NoError(t, err)
	assert.False(t, event.Publishable)
	assert.Equal(t, 100, event.LinkHealthScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReview_RejectWritesTombstone(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	id := uuid.New()
	rows := addEventRow(sqlmock.NewRows(eventRowColumns), id, "rejected", 100, testNow, false)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE events SET`).
		WithArgs(id, "rejected", "spam", testNow, "admin-1", 60, sqlmock.AnyArg(), "pending_review").
		WillReturnRows(rows)
	mock.ExpectExec(`INSERT INTO event_tombstones`).
		WithArgs("https://irs.gov/webinar", id, "spam", "admin-1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	event, err := repo.UpdateReview(context.Background(), id, domain.ReviewChange{
		From: domain.ReviewStatusPending,
		Review: domain.Review{
			Status:     domain.ReviewStatusRejected,
			Notes:      "spam",
			ReviewedAt: testNow,
			ReviewedBy: "admin-1",
		},
		Tombstone: &domain.Tombstone{
			URL:       "https://irs.gov/webinar",
			EventID:   id,
			Reason:    "spam",
			CreatedBy: "admin-1",
			CreatedAt: testNow,
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ReviewStatusRejected, event.ReviewStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReview_UnrejectDeletesTombstone(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	id := uuid.New()
	rows := addEventRow(sqlmock.NewRows(eventRowColumns), id, "approved", 100, testNow, true)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE events SET`).WillReturnRows(rows)
	mock.ExpectExec(`DELETE FROM event_tombstones\s+WHERE url = \$1\s+AND NOT EXISTS`).
		WithArgs("https://irs.gov/webinar", id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	event, err := repo.UpdateReview(context.Background(), id, domain.ReviewChange{
		From:        domain.ReviewStatusRejected,
		Review:      domain.Review{Status: domain.ReviewStatusApproved, ReviewedAt: testNow, ReviewedBy: "admin-1"},
		Untombstone: true,
	})

	require.NoError(t, err)
	assert.True(t, event.Publishable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReview_ConcurrentTransition(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE events SET`).WillReturnRows(sqlmock.NewRows(eventRowColumns))
	mock.ExpectQuery(`SELECT review_status FROM events`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"review_status"}).AddRow("approved"))
	mock.ExpectRollback()

	_, err := repo.UpdateReview(context.Background(), id, domain.ReviewChange{
		From:   domain.ReviewStatusPending,
		Review: domain.Review{Status: domain.ReviewStatusRejected, ReviewedAt: testNow},
	})

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReview_NotFound(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE events SET`).WillReturnRows(sqlmock.NewRows(eventRowColumns))
	mock.ExpectQuery(`SELECT review_status FROM events`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.UpdateReview(context.Background(), id, domain.ReviewChange{
		From:   domain.ReviewStatusPending,
		Review: domain.Review{Status: domain.ReviewStatusApproved, ReviewedAt: testNow},
	})

	assert.ErrorIs(t, err, domain.ErrEventNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventsForCheck_PassesLimit(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	rows := sqlmock.NewRows(eventRowColumns)
	addEventRow(rows, uuid.New(), "pending_review", 0, nil, false)
	addEventRow(rows, uuid.New(), "approved", 90, testNow, true)

	mock.ExpectQuery(`ORDER BY last_checked_at ASC NULLS FIRST`).
		WithArgs(25).
		WillReturnRows(rows)

	events, err := repo.ListEventsForCheck(context.Background(), 25)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].LastCheckedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByReviewStatus(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	mock.ExpectQuery(`GROUP BY review_status`).
		WillReturnRows(sqlmock.NewRows([]string{"review_status", "count"}).
			AddRow("pending_review", 3).
			AddRow("approved", 2))

	counts, err := repo.CountByReviewStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.ReviewStatusPending])
	assert.Equal(t, 2, counts[domain.ReviewStatusApproved])
	assert.Equal(t, 0, counts[domain.ReviewStatusRejected])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidationStats(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	mock.ExpectQuery(`COUNT\(\*\) AS total`).
		WithArgs(60, testNow.Add(-7*24*time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"total", "publishable", "unvalidated", "low_score"}).AddRow(10, 4, 3, 2))

	stats, err := repo.ValidationStats(context.Background(), testNow)

	require.NoError(t, err)
	assert.Equal(t, domain.ValidationStats{Total: 10, Publishable: 4, Unvalidated: 3, LowScore: 2}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAllEvents(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM event_tombstones`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM events`).WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	deleted, err := repo.DeleteAllEvents(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsTombstoned(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("https://spam.example").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.IsTombstoned(context.Background(), "https://spam.example")

	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindViewerProfile(t *testing.T) {
	db, mock, repo := setupMockRepo(t)
	defer db.Close()

	mock.ExpectQuery(`FROM profiles`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "specialties", "software", "service_states"}).
			AddRow("p-1", "{irs_representation}", "{drake}", "{CA,NV}"))

	profile, err := repo.FindViewerProfile(context.Background(), "p-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"CA", "NV"}, profile.ServiceStates)
	assert.Equal(t, []string{"drake"}, profile.Software)
	require.NoError(t, mock.ExpectationsWereMet())
}
