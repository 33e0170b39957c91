package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"taxEvents/internal/models/domain"

	"github.com/google/uuid"
)

// Memory - хранилище в памяти с той же семантикой, что и Repository.
// Используется с db.driver=memory и в тестах пакетов пайплайна.
type Memory struct {
	mu sync.RWMutex

	events     map[uuid.UUID]domain.Event
	byKey      map[string]uuid.UUID
	tombstones map[string]domain.Tombstone
	profiles   map[string]domain.ViewerProfile

	policy domain.PublishPolicy
	now    func() time.Time
}

// NewMemory создаёт пустое хранилище. nil now означает time.Now.
func NewMemory(policy domain.PublishPolicy, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		events:     map[uuid.UUID]domain.Event{},
		byKey:      map[string]uuid.UUID{},
		tombstones: map[string]domain.Tombstone{},
		profiles:   map[string]domain.ViewerProfile{},
		policy:     policy,
		now:        now,
	}
}

func (m *Memory) CreateEvent(_ context.Context, event domain.Event) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byKey[event.DedupeKey]; ok {
		return domain.Event{}, fmt.Errorf("memory.CreateEvent(): %w", domain.ErrDuplicateEvent)
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := m.now()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Publishable = m.policy.Publishable(event, now)

	m.events[event.ID] = cloneEvent(event)
	m.byKey[event.DedupeKey] = event.ID
	return cloneEvent(event), nil
}

func (m *Memory) FindEventByID(_ context.Context, id uuid.UUID) (domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return domain.Event{}, fmt.Errorf("id %s: %w", id, domain.ErrEventNotFound)
	}
	return cloneEvent(e), nil
}

func (m *Memory) FindEventByDedupeKey(_ context.Context, key string) (domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[key]
	if !ok {
		return domain.Event{}, fmt.Errorf("dedupe key %s: %w", key, domain.ErrEventNotFound)
	}
	return cloneEvent(m.events[id]), nil
}

func (m *Memory) UpdateEventDetails(_ context.Context, event domain.Event) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[event.ID]
	if !ok {
		return domain.Event{}, fmt.Errorf("id %s: %w", event.ID, domain.ErrEventNotFound)
	}
	e.Title = event.Title
	e.Description = event.Description
	e.StartDate = event.StartDate
	e.EndDate = event.EndDate
	e.City = event.City
	e.State = event.State
	e.Organizer = event.Organizer
	e.Tags = append([]string(nil), event.Tags...)
	e.UpdatedAt = m.now()

	m.events[e.ID] = e
	return cloneEvent(e), nil
}

func (m *Memory) UpdateLinkHealth(_ context.Context, id uuid.UUID, health domain.LinkHealth, checkedAt time.Time) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return domain.Event{}, fmt.Errorf("id %s: %w", id, domain.ErrEventNotFound)
	}
	e.URLStatus = health.Status
	e.CanonicalURL = health.CanonicalURL
	e.RedirectChain = append([]string{}, health.RedirectChain...)
	e.LinkHealthScore = health.Score
	e.LastCheckedAt = &checkedAt
	e.UpdatedAt = m.now()
	e.Publishable = m.policy.Publishable(e, e.UpdatedAt)

	m.events[id] = e
	return cloneEvent(e), nil
}

// UpdateReview повторяет транзакцию Repository.UpdateReview под одной блокировкой.
func (m *Memory) UpdateReview(_ context.Context, id uuid.UUID, change domain.ReviewChange) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return domain.Event{}, fmt.Errorf("id %s: %w", id, domain.ErrEventNotFound)
	}
	if e.ReviewStatus != change.From {
		return domain.Event{}, fmt.Errorf("event is %s, expected %s: %w", e.ReviewStatus, change.From, domain.ErrInvalidTransition)
	}

	reviewedAt := change.Review.ReviewedAt
	e.ReviewStatus = change.Review.Status
	e.AdminNotes = change.Review.Notes
	e.ReviewedAt = &reviewedAt
	e.ReviewedBy = nullableString(change.Review.ReviewedBy)
	e.UpdatedAt = m.now()
	e.Publishable = m.policy.Publishable(e, e.UpdatedAt)
	m.events[id] = e

	if t := change.Tombstone; t != nil {
		if _, exists := m.tombstones[t.URL]; !exists {
			m.tombstones[t.URL] = *t
		}
	}
	if change.Untombstone && !m.rejectedAt(e.CandidateURL, id) {
		delete(m.tombstones, e.CandidateURL)
	}

	return cloneEvent(e), nil
}

// rejectedAt сообщает, отклонено ли другое событие с этим url. Вызывается под блокировкой.
func (m *Memory) rejectedAt(url string, except uuid.UUID) bool {
	for id, e := range m.events {
		if id != except && e.CandidateURL == url && e.ReviewStatus == domain.ReviewStatusRejected {
			return true
		}
	}
	return false
}

func (m *Memory) ListEvents(_ context.Context) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := m.all(func(domain.Event) bool { return true })
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) ListEventsForCheck(_ context.Context, limit int) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := m.all(func(e domain.Event) bool { return e.ReviewStatus != domain.ReviewStatusRejected })
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i].LastCheckedAt, result[j].LastCheckedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit >= 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) ListPublishableEvents(_ context.Context, now time.Time) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := m.all(func(e domain.Event) bool {
		last := e.StartDate
		if e.EndDate != nil {
			last = *e.EndDate
		}
		return e.Publishable && m.policy.Publishable(e, now) && !last.Before(now)
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartDate.Before(result[j].StartDate)
	})
	return result, nil
}

func (m *Memory) CountByReviewStatus(_ context.Context) (map[domain.ReviewStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[domain.ReviewStatus]int{
		domain.ReviewStatusPending:  0,
		domain.ReviewStatusApproved: 0,
		domain.ReviewStatusRejected: 0,
	}
	for _, e := range m.events {
		counts[e.ReviewStatus]++
	}
	return counts, nil
}

func (m *Memory) ValidationStats(_ context.Context, now time.Time) (domain.ValidationStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats domain.ValidationStats
	fresh := m.policy.FreshSince(now)
	for _, e := range m.events {
		stats.Total++
		if e.LastCheckedAt == nil {
			stats.Unvalidated++
			continue
		}
		if e.Publishable && !e.LastCheckedAt.Before(fresh) {
			stats.Publishable++
		}
		if e.LinkHealthScore < m.policy.MinScore {
			stats.LowScore++
		}
	}
	return stats, nil
}

func (m *Memory) DeleteAllEvents(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := int64(len(m.events))
	m.events = map[uuid.UUID]domain.Event{}
	m.byKey = map[string]uuid.UUID{}
	m.tombstones = map[string]domain.Tombstone{}
	return deleted, nil
}

func (m *Memory) IsTombstoned(_ context.Context, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.tombstones[url]
	return ok, nil
}

func (m *Memory) CreateTombstone(_ context.Context, t domain.Tombstone) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tombstones[t.URL]; !ok {
		m.tombstones[t.URL] = t
	}
	return nil
}

func (m *Memory) DeleteTombstone(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tombstones, url)
	return nil
}

func (m *Memory) FindViewerProfile(_ context.Context, id string) (domain.ViewerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[id]
	if !ok {
		return domain.ViewerProfile{}, fmt.Errorf("profile %s: %w", id, domain.ErrProfileNotFound)
	}
	return p, nil
}

// PutProfile добавляет профиль зрителя. Профилями владеет каталог, а не этот сервис.
func (m *Memory) PutProfile(p domain.ViewerProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles[p.ID] = p
}

func (m *Memory) Shutdown(_ context.Context) error {
	return nil
}

func (m *Memory) all(keep func(domain.Event) bool) []domain.Event {
	result := make([]domain.Event, 0, len(m.events))
	for _, e := range m.events {
		if keep(e) {
			result = append(result, cloneEvent(e))
		}
	}
	return result
}

func cloneEvent(e domain.Event) domain.Event {
	e.Tags = append([]string(nil), e.Tags...)
	e.RedirectChain = append([]string(nil), e.RedirectChain...)
	return e
}
