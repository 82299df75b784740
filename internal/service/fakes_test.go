package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/minicrm-backend/internal/errors"
	"github.com/unclebandit/minicrm-backend/internal/events"
	"github.com/unclebandit/minicrm-backend/internal/model"
	"github.com/unclebandit/minicrm-backend/internal/segment"
	"github.com/unclebandit/minicrm-backend/internal/vendor"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// ---- campaigns ----

type MockCampaignRepo struct {
	mu         sync.Mutex
	campaigns  map[int]*model.Campaign
	nextID     int
	increments []model.MetricsDelta
}

func newCampaignRepo(cs ...*model.Campaign) *MockCampaignRepo {
	r := &MockCampaignRepo{campaigns: map[int]*model.Campaign{}, nextID: 100}
	for _, c := range cs {
		r.campaigns[c.ID] = c
	}
	return r
}

func (m *MockCampaignRepo) get(id int) (*model.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (m *MockCampaignRepo) snapshot(id int) model.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.campaigns[id]
}

func (m *MockCampaignRepo) ListCampaigns(_ context.Context, offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []*model.Campaign{}
	for _, c := range m.campaigns {
		if (channel == "" || c.Type == channel) && (status == "" || c.Status == status) {
			cp := *c
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	if offset >= len(all) {
		return []*model.Campaign{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *MockCampaignRepo) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(id)
	if err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *MockCampaignRepo) update(id int, fn func(c *model.Campaign)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(id)
	if err != nil {
		return err
	}
	fn(c)
	return nil
}

func (m *MockCampaignRepo) UpdateStatus(_ context.Context, id int, status string) error {
	return m.update(id, func(c *model.Campaign) { c.Status = status })
}

func (m *MockCampaignRepo) Update(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, err := m.get(c.ID)
	if err != nil {
		return err
	}
	if !stored.Deliverable() {
		return appErrors.NewCampaignConflict(c.ID, "only draft or scheduled campaigns can be edited")
	}
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *MockCampaignRepo) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.get(id); err != nil {
		return err
	}
	delete(m.campaigns, id)
	return nil
}

func (m *MockCampaignRepo) MarkActive(ctx context.Context, id int) error {
	return m.UpdateStatus(ctx, id, model.StatusActive)
}

func (m *MockCampaignRepo) SetAudienceSize(_ context.Context, id, size int) error {
	return m.update(id, func(c *model.Campaign) { c.AudienceSize = size })
}

func (m *MockCampaignRepo) SetSent(_ context.Context, id, sent int) error {
	return m.update(id, func(c *model.Campaign) { c.Metrics.Sent = sent })
}

func (m *MockCampaignRepo) IncrementMetrics(_ context.Context, id int, d model.MetricsDelta) error {
	return m.update(id, func(c *model.Campaign) {
		c.Metrics.Delivered += d.Delivered
		c.Metrics.Bounced += d.Bounced
		m.increments = append(m.increments, d)
	})
}

func (m *MockCampaignRepo) ListDueScheduled(_ context.Context, now time.Time) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	due := []*model.Campaign{}
	for _, c := range m.campaigns {
		if c.Status == model.StatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	return due, nil
}

// ---- customers ----

type MockCustomerRepo struct {
	customers []*model.Customer
	err       error
	count     int
}

func (m *MockCustomerRepo) GetByID(_ context.Context, id int) (*model.Customer, error) {
	for _, c := range m.customers {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (m *MockCustomerRepo) ListAll(context.Context) ([]model.Customer, error) {
	out := make([]model.Customer, len(m.customers))
	for i, c := range m.customers {
		out[i] = *c
	}
	return out, nil
}

func (m *MockCustomerRepo) Count(context.Context) (int, error) {
	if m.count > 0 {
		return m.count, nil
	}
	return len(m.customers), m.err
}

// FindBySegment matches in memory through the same predicates the SQL is built from.
func (m *MockCustomerRepo) FindBySegment(_ context.Context, rules model.RuleGroup) ([]*model.Customer, error) {
	if m.err != nil {
		return nil, m.err
	}
	pred := segment.Selector{Now: clock}.Translate(rules)
	out := []*model.Customer{}
	for _, c := range m.customers {
		if pred.Match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ---- communication logs ----

type MockLogRepo struct {
	mu        sync.Mutex
	logs      map[int]*model.CommunicationLog
	nextID    int
	createErr map[int]error // by customer id
}

func newLogRepo() *MockLogRepo {
	return &MockLogRepo{logs: map[int]*model.CommunicationLog{}}
}

func (m *MockLogRepo) Create(_ context.Context, l *model.CommunicationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createErr[l.CustomerID]; err != nil {
		return err
	}
	m.nextID++
	l.ID = m.nextID
	cp := *l
	m.logs[l.ID] = &cp
	return nil
}

func (m *MockLogRepo) MarkSent(_ context.Context, id int, vendorID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok || l.Status != model.LogQueued {
		return fmt.Errorf("communication log %d is not queued", id)
	}
	l.Status = model.LogSent
	l.VendorMessageID = vendorID
	l.SentAt = &sentAt
	return nil
}

func (m *MockLogRepo) MarkFailed(_ context.Context, id int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.logs[id]; ok && l.Status == model.LogQueued {
		l.Status = model.LogFailed
		l.FailureReason = reason
	}
	return nil
}

func (m *MockLogRepo) FindByVendorMessageIDs(_ context.Context, ids []string) ([]*model.CommunicationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []*model.CommunicationLog{}
	for _, l := range m.logs {
		if l.VendorMessageID != "" && want[l.VendorMessageID] {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockLogRepo) ApplyReceipt(_ context.Context, id int, status, reason string, deliveredAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok || l.Status != model.LogSent {
		return false, nil
	}
	l.Status = status
	l.FailureReason = reason
	l.DeliveredAt = deliveredAt
	return true, nil
}

func (m *MockLogRepo) List(_ context.Context, f model.LogFilter) ([]*model.CommunicationLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []*model.CommunicationLog{}
	for _, l := range m.logs {
		if l.CampaignID == f.CampaignID && (f.Status == "" || l.Status == f.Status) {
			cp := *l
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if f.Offset >= len(all) {
		return []*model.CommunicationLog{}, len(all), nil
	}
	end := f.Offset + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[f.Offset:end], len(all), nil
}

func (m *MockLogRepo) Stats(_ context.Context, campaignID int) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := map[string]int{}
	for _, s := range model.LogStatuses {
		stats[s] = 0
	}
	for _, l := range m.logs {
		if l.CampaignID == campaignID {
			stats[l.Status]++
		}
	}
	return stats, nil
}

func (m *MockLogRepo) all() []model.CommunicationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CommunicationLog, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockLogRepo) byVendorID(id string) model.CommunicationLog {
	for _, l := range m.all() {
		if l.VendorMessageID == id {
			return l
		}
	}
	return model.CommunicationLog{}
}

// ---- vendor ----

type MockSender struct {
	mu       sync.Mutex
	n        int
	failTo   map[string]bool
	messages []vendor.Message
	active   int
	peak     int
	delay    time.Duration
}

func (s *MockSender) Send(_ context.Context, msg vendor.Message) (*vendor.Ack, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	s.messages = append(s.messages, msg)
	if s.failTo[msg.To] {
		return nil, fmt.Errorf("vendor rejected %s", msg.To)
	}
	s.n++
	return &vendor.Ack{MessageID: fmt.Sprintf("msg-%d", s.n), Status: model.LogSent, Timestamp: fixedNow}, nil
}

// ---- events ----

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// ---- dispatcher ----

type MockDispatcher struct {
	mu        sync.Mutex
	triggered []int
}

func (d *MockDispatcher) Trigger(id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.triggered = append(d.triggered, id)
	return true
}

// ---- fixtures ----

func customer(id int, first, email, phone string, consent, emailOK, smsOK bool, spend float64) *model.Customer {
	return &model.Customer{
		ID: id, FirstName: first, LastName: "Test", Email: email, Phone: phone,
		Location:     model.Location{City: "Pune", State: "Maharashtra", Country: "India"},
		TotalSpend:   spend,
		LastActiveAt: fixedNow.Add(-48 * time.Hour),
		Preferences: model.Preferences{
			MarketingConsent: consent,
			Channels:         model.ChannelPreferences{Email: emailOK, SMS: smsOK, Push: true},
		},
	}
}
