package dispatcher

import (
	"context"
	"sort"
	"sync"
	"time"

	"rescuenet/internal/models"
)

// EmergencyStore 紧急事件持久化
// Get / ListBySubject 返回快照，调用方修改不影响存储
type EmergencyStore interface {
	// Create id 已存在时返回 models.ErrDuplicateEscalation
	Create(ctx context.Context, e *models.Emergency) error
	// Get 不存在时返回 models.ErrEmergencyNotFound
	Get(ctx context.Context, id string) (*models.Emergency, error)
	UpdateStatus(ctx context.Context, id string, status models.EmergencyStatus, resolvedAt *time.Time) error
	// AppendOutcome (id, 渠道键, attempt) 重复时返回 models.ErrDuplicateOutcome
	AppendOutcome(ctx context.Context, id string, outcome models.NotificationOutcome) error
	SetResponders(ctx context.Context, id string, responders []models.Responder) error
	// ListBySubject 按创建时间倒序，limit <= 0 表示不限
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]*models.Emergency, error)
	CountBySubject(ctx context.Context, subjectID string) (int, error)
}

// MemoryStore 进程内存储（测试与单机部署）
type MemoryStore struct {
	mu          sync.RWMutex
	emergencies map[string]*models.Emergency
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{emergencies: make(map[string]*models.Emergency)}
}

func (s *MemoryStore) Create(_ context.Context, e *models.Emergency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emergencies[e.ID]; ok {
		return models.ErrDuplicateEscalation
	}
	s.emergencies[e.ID] = e.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Emergency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.emergencies[id]
	if !ok {
		return nil, models.ErrEmergencyNotFound
	}
	return e.Clone(), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status models.EmergencyStatus, resolvedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emergencies[id]
	if !ok {
		return models.ErrEmergencyNotFound
	}
	e.Status = status
	if resolvedAt != nil {
		t := *resolvedAt
		e.ResolvedAt = &t
	}
	return nil
}

func (s *MemoryStore) AppendOutcome(_ context.Context, id string, outcome models.NotificationOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emergencies[id]
	if !ok {
		return models.ErrEmergencyNotFound
	}
	for _, o := range e.Outcomes {
		if o.Key() == outcome.Key() && o.Attempt == outcome.Attempt {
			return models.ErrDuplicateOutcome
		}
	}
	e.Outcomes = append(e.Outcomes, outcome)
	return nil
}

func (s *MemoryStore) SetResponders(_ context.Context, id string, responders []models.Responder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emergencies[id]
	if !ok {
		return models.ErrEmergencyNotFound
	}
	e.Responders = append([]models.Responder(nil), responders...)
	return nil
}

func (s *MemoryStore) ListBySubject(_ context.Context, subjectID string, limit int) ([]*models.Emergency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*models.Emergency
	for _, e := range s.emergencies {
		if e.SubjectID == subjectID {
			list = append(list, e.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *MemoryStore) CountBySubject(_ context.Context, subjectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.emergencies {
		if e.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}
