package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

// MockAttemptRepository is a hand-written, in-memory implementation of
// AttemptRepository used in unit tests. No mock-generation library needed.
type MockAttemptRepository struct {
	mu       sync.RWMutex
	attempts []domain.DeliveryAttempt

	// Optional error overrides, set in tests to simulate failure paths.
	RecordErr            error
	DeliveredChannelsErr error
	ListErr              error
}

func NewMockAttemptRepository() *MockAttemptRepository {
	return &MockAttemptRepository{}
}

func (m *MockAttemptRepository) Record(_ context.Context, attempts []domain.DeliveryAttempt) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempts...)
	return nil
}

func (m *MockAttemptRepository) DeliveredChannels(_ context.Context, eventID string) (map[domain.Channel]string, error) {
	if m.DeliveredChannelsErr != nil {
		return nil, m.DeliveredChannelsErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.Channel]string)
	for _, a := range m.attempts {
		if a.EventID != eventID || a.Status != domain.StatusSent {
			continue
		}
		if _, seen := out[a.Channel]; !seen {
			out[a.Channel] = a.ProviderDeliveryID
		}
	}
	return out, nil
}

func (m *MockAttemptRepository) ListByEvent(_ context.Context, eventID string) ([]domain.DeliveryAttempt, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.DeliveryAttempt
	for _, a := range m.attempts {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockAttemptRepository) List(_ context.Context, f domain.AttemptFilter) ([]domain.DeliveryAttempt, int, error) {
	if m.ListErr != nil {
		return nil, 0, m.ListErr
	}
	m.mu.RLock()
	var matched []domain.DeliveryAttempt
	for _, a := range m.attempts {
		if matches(a, f) {
			matched = append(matched, a)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start < 0 || start >= total {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > total || f.Limit <= 0 {
		end = total
	}
	return matched[start:end], total, nil
}

// All returns every recorded attempt, for assertions.
func (m *MockAttemptRepository) All() []domain.DeliveryAttempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.DeliveryAttempt(nil), m.attempts...)
}

func matches(a domain.DeliveryAttempt, f domain.AttemptFilter) bool {
	switch {
	case f.TenantID != nil && a.TenantID != *f.TenantID:
		return false
	case f.Channel != nil && a.Channel != *f.Channel:
		return false
	case f.Status != nil && a.Status != *f.Status:
		return false
	case f.From != nil && a.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && a.CreatedAt.After(*f.To):
		return false
	}
	return true
}

var _ AttemptRepository = (*MockAttemptRepository)(nil)
