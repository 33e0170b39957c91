package routers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taxEvents/internal/config"
	"taxEvents/internal/ingestion"
	"taxEvents/internal/metrics"
	"taxEvents/internal/models/domain"
	modelsDto "taxEvents/internal/models/dto"
	"taxEvents/internal/normalizer"
	"taxEvents/internal/orchestrator"
	"taxEvents/internal/repositories"
	"taxEvents/internal/review"
	"taxEvents/internal/transport/httpServer/handlers"
	"taxEvents/internal/transport/httpServer/handlers/dto"
	myMiddleware "taxEvents/internal/transport/httpServer/middleware"
	"taxEvents/internal/turnstile"
	"taxEvents/internal/validation"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	jwtSecret  = "test-secret"
	cronSecret = "cron-secret"
)

type fakeGenerator struct {
	records []modelsDto.RawEvent
}

func (g *fakeGenerator) GenerateEvents(context.Context) ([]modelsDto.RawEvent, error) {
	return g.records, nil
}

type healthyChecker struct{}

func (healthyChecker) Check(_ context.Context, url string) domain.LinkHealth {
	status := http.StatusOK
	return domain.LinkHealth{Status: &status, CanonicalURL: &url, RedirectChain: []string{}, Score: 100}
}

type fakeVerifier struct {
	ok bool
}

func (v fakeVerifier) Verify(_ context.Context, token, _ string) (bool, error) {
	if token == "" {
		return false, turnstile.ErrMissingToken
	}
	return v.ok, nil
}

type testEnv struct {
	srv      *httptest.Server
	repo     *repositories.Memory
	auth     *myMiddleware.Auth
	gen      *fakeGenerator
	verifier *fakeVerifier
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		ValidationConfig: config.ValidationConfig{BatchSize: 25, MaxBatchSize: 200},
		LinkHealthConfig: config.LinkHealthConfig{MinPublishableScore: 60, MaxCheckAge: 7 * 24 * time.Hour},
	}
	m := metrics.New(prometheus.NewRegistry())
	repo := repositories.NewMemory(cfg.PublishPolicy(), nil)
	merger := ingestion.New(log, repo, normalizer.New(log, 24*time.Hour), nil, m)
	gen := &fakeGenerator{}
	orch := orchestrator.New(log, cfg, gen, merger, nil, nil)
	reviewSvc := review.New(log, repo, m)
	runner := validation.New(log, repo, healthyChecker{}, cfg, m)
	verifier := &fakeVerifier{ok: true}
	auth := myMiddleware.NewAuth(log, jwtSecret, cronSecret)

	router := NewRouter(log, auth,
		handlers.NewEventHandler(log, repo, merger, orch, verifier),
		handlers.NewReviewHandler(log, reviewSvc),
		handlers.NewValidationHandler(log, repo, runner),
		m.Handler(),
	)
	mux := chi.NewRouter()
	router.Mount(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, repo: repo, auth: auth, gen: gen, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, profileID, role string) string {
	t.Helper()
	token, err := e.auth.IssueToken(profileID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func futureDate(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func TestHeartbeatAndMetrics(t *testing.T) {
	env := setupEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tax_events_")
}

func TestAdminRoutesRequireAdminSession(t *testing.T) {
	env := setupEnv(t)
	viewer := env.token(t, "viewer-1", myMiddleware.RoleViewer)

	resp, _ := env.do(t, http.MethodGet, "/api/v1/admin/events/review", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/admin/events/review", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/admin/events/review", viewer, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/admin/events", cronSecret, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "cron secret only opens scheduled routes")
}

func TestPipeline_IngestValidateApprove(t *testing.T) {
	env := setupEnv(t)
	admin := env.token(t, "admin-1", myMiddleware.RoleAdmin)
	env.gen.records = []modelsDto.RawEvent{{
		Title:     "IRS CPE Webinar",
		StartDate: futureDate(30),
		Organizer: "IRS",
		URL:       "https://irs.gov/webinar",
		Tags:      modelsDto.FlexibleStringSlice{"virtual"},
	}}

	resp, body := env.do(t, http.MethodPost, "/api/v1/events/ingest", cronSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var ingest dto.IngestResponse
	require.NoError(t, json.Unmarshal(body, &ingest))
	assert.Equal(t, 1, ingest.Inserted)

	resp, body = env.do(t, http.MethodPost, "/api/v1/admin/events/recheck?batch_size=10", cronSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var run domain.ValidationResult
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, domain.ValidationResult{Processed: 1, Validated: 1}, run)

	resp, body = env.do(t, http.MethodGet, "/api/v1/events/curated?mode=all", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body), "pending events stay hidden")

	resp, body = env.do(t, http.MethodGet, "/api/v1/admin/events/review", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list dto.ReviewListResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Events, 1)
	assert.Equal(t, 1, list.Summary[string(domain.ReviewStatusPending)])

	resp, body = env.do(t, http.MethodPatch, "/api/v1/admin/events/review", admin, dto.ReviewRequest{
		EventID: list.Events[0].ID.String(),
		Status:  string(domain.ReviewStatusApproved),
		Notes:   "looks right",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var reviewed dto.EventResponse
	require.NoError(t, json.Unmarshal(body, &reviewed))
	assert.True(t, reviewed.Publishable)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "admin-1", *reviewed.ReviewedBy)

	resp, body = env.do(t, http.MethodGet, "/api/v1/events/curated", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var curated []dto.PublicEventResponse
	require.NoError(t, json.Unmarshal(body, &curated))
	require.Len(t, curated, 1)
	assert.Equal(t, "https://irs.gov/webinar", curated[0].URL)

	resp, body = env.do(t, http.MethodGet, "/api/v1/admin/events/recheck", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats domain.ValidationStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, domain.ValidationStats{Total: 1, Publishable: 1}, stats)
}

func TestReviewErrors(t *testing.T) {
	env := setupEnv(t)
	admin := env.token(t, "admin-1", myMiddleware.RoleAdmin)

	resp, body := env.do(t, http.MethodPost, "/api/v1/admin/events", admin, dto.EventRequest{
		Title:        "State Society Update",
		StartDate:    futureDate(10),
		Organizer:    "CalCPA",
		City:         "Sacramento",
		State:        "CA",
		URL:          "https://calcpa.org/update",
		ReviewStatus: string(domain.ReviewStatusPending),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	events, err := env.repo.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	id := events[0].ID.String()

	resp, _ = env.do(t, http.MethodPatch, "/api/v1/admin/events/review", admin,
		dto.ReviewRequest{EventID: id, Status: "published"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPatch, "/api/v1/admin/events/review", admin,
		dto.ReviewRequest{EventID: "nope", Status: "approved"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPatch, "/api/v1/admin/events/review", admin,
		dto.ReviewRequest{EventID: uuid.NewString(), Status: "approved"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPatch, "/api/v1/admin/events/review", admin,
		dto.ReviewRequest{EventID: id, Status: string(domain.ReviewStatusPending)})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/admin/events/recheck", admin, dto.RecheckRequest{ID: uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminCreateIsTrustedAndCurated(t *testing.T) {
	env := setupEnv(t)
	admin := env.token(t, "admin-1", myMiddleware.RoleAdmin)
	env.repo.PutProfile(domain.ViewerProfile{ID: "viewer-tx", ServiceStates: []string{"TX"}, Specialties: []string{"ethics"}})
	viewer := env.token(t, "viewer-tx", myMiddleware.RoleViewer)

	for _, req := range []dto.EventRequest{
		{Title: "Texas Ethics CPE", StartDate: futureDate(5), Organizer: "TSCPA", City: "Austin", State: "tx",
			URL: "https://tscpa.org/ethics", Tags: modelsDto.FlexibleStringSlice{"ethics"}},
		{Title: "Ohio Payroll Day", StartDate: futureDate(6), Organizer: "OSCPA", City: "Columbus", State: "OH",
			URL: "https://ohiocpa.com/payroll", Tags: modelsDto.FlexibleStringSlice{"payroll"}},
	} {
		resp, body := env.do(t, http.MethodPost, "/api/v1/admin/events", admin, req)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}

	resp, body := env.do(t, http.MethodGet, "/api/v1/events/curated", viewer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var curated []dto.PublicEventResponse
	require.NoError(t, json.Unmarshal(body, &curated))
	require.Len(t, curated, 1)
	assert.Equal(t, "Texas Ethics CPE", curated[0].Title)

	resp, body = env.do(t, http.MethodGet, "/api/v1/events/curated?mode=all", viewer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &curated))
	assert.Len(t, curated, 2)

	resp, body = env.do(t, http.MethodPost, "/api/v1/admin/events", admin, dto.EventRequest{Title: "no date"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var rejected dto.IngestResponse
	require.NoError(t, json.Unmarshal(body, &rejected))
	require.Len(t, rejected.Rejections, 1)
	assert.Equal(t, normalizer.ReasonMissingRequiredField, rejected.Rejections[0].Reason)

	resp, body = env.do(t, http.MethodDelete, "/api/v1/admin/events", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"deleted":2}`, string(body))
}

func TestSuggestions(t *testing.T) {
	env := setupEnv(t)
	viewer := env.token(t, "viewer-7", myMiddleware.RoleViewer)
	suggestion := dto.SuggestionRequest{
		EventRequest: dto.EventRequest{
			Title:        "NATP Tax Forum",
			StartDate:    futureDate(40),
			Organizer:    "NATP",
			City:         "Las Vegas",
			State:        "NV",
			URL:          "https://natptax.com/forum",
			ReviewStatus: string(domain.ReviewStatusApproved),
		},
		TurnstileToken: "token",
	}

	missing := suggestion
	missing.TurnstileToken = ""
	resp, _ := env.do(t, http.MethodPost, "/api/v1/events/suggestions", "", missing)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.verifier.ok = false
	resp, _ = env.do(t, http.MethodPost, "/api/v1/events/suggestions", "", suggestion)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	env.verifier.ok = true
	resp, body := env.do(t, http.MethodPost, "/api/v1/events/suggestions", viewer, suggestion)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	events, err := env.repo.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReviewStatusPending, events[0].ReviewStatus, "suggestions cannot choose their status")
	assert.Equal(t, domain.SourceUserSuggestion, events[0].Source)
	require.NotNil(t, events[0].SuggestedBy)
	assert.Equal(t, "viewer-7", *events[0].SuggestedBy)
}
