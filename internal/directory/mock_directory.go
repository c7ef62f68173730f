package directory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

// MockDirectory is a hand-written, in-memory implementation of both Tenants
// and Appointments used in unit tests.
type MockDirectory struct {
	mu           sync.RWMutex
	tenants      map[string]domain.TenantBrandingProfile
	appointments map[string]domain.Appointment
	clients      map[string]domain.Client
	stylists     map[string]domain.Stylist

	// Optional error overrides, set in tests to simulate failure paths.
	TenantErr      error
	AppointmentErr error
	ClientErr      error
	StylistErr     error
	// FailAppointments makes the next N appointment reads fail with
	// FailWith before they start succeeding.
	FailAppointments int
	FailWith         error
	// Delay is applied to every read and honours ctx cancellation.
	Delay time.Duration

	calls int
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		tenants:      make(map[string]domain.TenantBrandingProfile),
		appointments: make(map[string]domain.Appointment),
		clients:      make(map[string]domain.Client),
		stylists:     make(map[string]domain.Stylist),
	}
}

// NewSeededMockDirectory holds one tenant "t1" with appointment "a1" for
// client "u1" (Jane Doe, email and phone, no push devices) with stylist "s1"
// (Sam) booked for a 50.00 haircut.
func NewSeededMockDirectory() *MockDirectory {
	m := NewMockDirectory()
	b := domain.DefaultBranding("t1")
	b.Name = "Shear Bliss"
	m.PutTenant(b)
	start := time.Date(2026, time.March, 14, 15, 30, 0, 0, time.UTC)
	m.PutAppointment(domain.Appointment{
		ID:        "a1",
		TenantID:  "t1",
		ClientID:  "u1",
		StylistID: "s1",
		StartsAt:  start,
		EndsAt:    start.Add(45 * time.Minute),
		Services:  []domain.ServiceLine{{Name: "Haircut", Minutes: 45, Price: decimal.RequireFromString("50.00")}},
	})
	m.PutClient("t1", domain.Client{ID: "u1", FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Phone: "+15555550100"})
	m.PutStylist("t1", domain.Stylist{ID: "s1", Name: "Sam"})
	return m
}

func (m *MockDirectory) PutTenant(b domain.TenantBrandingProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[b.TenantID] = b
}

func (m *MockDirectory) PutAppointment(a domain.Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[a.TenantID+"/"+a.ID] = a
}

func (m *MockDirectory) PutClient(tenantID string, c domain.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[tenantID+"/"+c.ID] = c
}

func (m *MockDirectory) PutStylist(tenantID string, s domain.Stylist) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stylists[tenantID+"/"+s.ID] = s
}

// Calls returns the number of reads served so far.
func (m *MockDirectory) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

func (m *MockDirectory) wait(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	d := m.Delay
	m.mu.Unlock()
	if d == 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockDirectory) GetTenant(ctx context.Context, tenantID string) (domain.TenantBrandingProfile, error) {
	if err := m.wait(ctx); err != nil {
		return domain.TenantBrandingProfile{}, err
	}
	if m.TenantErr != nil {
		return domain.TenantBrandingProfile{}, m.TenantErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.tenants[tenantID]
	if !ok {
		return domain.TenantBrandingProfile{}, domain.ErrTenantNotFound
	}
	return b, nil
}

func (m *MockDirectory) GetAppointment(ctx context.Context, tenantID, appointmentID string) (domain.Appointment, error) {
	if err := m.wait(ctx); err != nil {
		return domain.Appointment{}, err
	}
	if m.AppointmentErr != nil {
		return domain.Appointment{}, m.AppointmentErr
	}
	m.mu.Lock()
	if m.FailAppointments > 0 {
		m.FailAppointments--
		m.mu.Unlock()
		return domain.Appointment{}, m.FailWith
	}
	a, ok := m.appointments[tenantID+"/"+appointmentID]
	m.mu.Unlock()
	if !ok {
		return domain.Appointment{}, domain.ErrNotFound
	}
	return a, nil
}

func (m *MockDirectory) GetClient(ctx context.Context, tenantID, userID string) (domain.Client, error) {
	if err := m.wait(ctx); err != nil {
		return domain.Client{}, err
	}
	if m.ClientErr != nil {
		return domain.Client{}, m.ClientErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[tenantID+"/"+userID]
	if !ok {
		return domain.Client{}, domain.ErrNotFound
	}
	return c, nil
}

func (m *MockDirectory) GetStylist(ctx context.Context, tenantID, stylistID string) (domain.Stylist, error) {
	if err := m.wait(ctx); err != nil {
		return domain.Stylist{}, err
	}
	if m.StylistErr != nil {
		return domain.Stylist{}, m.StylistErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stylists[tenantID+"/"+stylistID]
	if !ok {
		return domain.Stylist{}, domain.ErrNotFound
	}
	return s, nil
}

var (
	_ Tenants      = (*MockDirectory)(nil)
	_ Appointments = (*MockDirectory)(nil)
)
