package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
)

// memQueue is an in-memory QueueStore for scheduler tests.
type memQueue struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.QueueItem
}

func newMemQueue(items ...*domain.QueueItem) *memQueue {
	q := &memQueue{items: make(map[uuid.UUID]*domain.QueueItem)}
	for _, item := range items {
		cp := *item
		q.items[item.ID] = &cp
	}
	return q
}

func (q *memQueue) get(id uuid.UUID) *domain.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *q.items[id]
	return &cp
}

func (q *memQueue) ListByStatus(ctx context.Context, status domain.QueueItemStatus, limit int) ([]domain.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.QueueItem
	for _, item := range q.items {
		if item.Status == status {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueue) DueItems(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.QueueItem
	for _, item := range q.items {
		if item.Status == domain.StatusScheduled && item.ScheduledAt != nil && !item.ScheduledAt.After(now) {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueue) ItemsByTemplate(ctx context.Context, templateID uuid.UUID, status domain.QueueItemStatus) ([]domain.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.QueueItem
	for _, item := range q.items {
		if item.Status == status && item.TemplateID != nil && *item.TemplateID == templateID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (q *memQueue) Update(ctx context.Context, item *domain.QueueItem, expect domain.QueueItemStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored, ok := q.items[item.ID]
	if !ok || stored.Status != expect {
		return ErrStaleItem
	}
	cp := *item
	q.items[item.ID] = &cp
	return nil
}

func (q *memQueue) CountsByStatus(ctx context.Context) (*domain.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := &domain.QueueStats{
		ByStatus:   make(map[domain.QueueItemStatus]int),
		ByPipeline: make(map[string]int),
	}
	for _, item := range q.items {
		stats.ByStatus[item.Status]++
		stats.ByPipeline[item.Pipeline]++
		stats.Total++
	}
	return stats, nil
}

// memTemplates is an in-memory TemplateStore.
type memTemplates struct {
	mu        sync.Mutex
	templates map[uuid.UUID]*domain.Template
}

func newMemTemplates(templates ...*domain.Template) *memTemplates {
	s := &memTemplates{templates: make(map[uuid.UUID]*domain.Template)}
	for _, t := range templates {
		cp := *t
		s.templates[t.ID] = &cp
	}
	return s
}

func (s *memTemplates) GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s not found", id)
	}
	cp := *t
	return &cp, nil
}

func (s *memTemplates) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TemplateStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return fmt.Errorf("template %s not found", id)
	}
	t.Status = status
	return nil
}

func (s *memTemplates) WaitingReview(ctx context.Context, limit int) ([]domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Template
	for _, t := range s.templates {
		if t.Status == domain.TemplateWaitingReview {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memMembers is an in-memory MemberStore.
type memMembers struct {
	members map[uuid.UUID]*domain.Member
}

func newMemMembers(members ...*domain.Member) *memMembers {
	s := &memMembers{members: make(map[uuid.UUID]*domain.Member)}
	for _, m := range members {
		cp := *m
		s.members[m.ID] = &cp
	}
	return s
}

func (s *memMembers) GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	m, ok := s.members[id]
	if !ok {
		return nil, fmt.Errorf("member %s not found", id)
	}
	cp := *m
	return &cp, nil
}
