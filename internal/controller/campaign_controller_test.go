package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/minicrm-backend/internal/controller"
	appErrors "github.com/unclebandit/minicrm-backend/internal/errors"
	"github.com/unclebandit/minicrm-backend/internal/model"
	"github.com/unclebandit/minicrm-backend/internal/segment"
	"github.com/unclebandit/minicrm-backend/internal/service"
)

// --- Mock Repositories ---

type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	nextID    int
}

func (m *MockCampaignRepo) ListCampaigns(_ context.Context, offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var filtered []*model.Campaign
	for _, c := range m.campaigns {
		if channel != "" && c.Type != channel {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		filtered = append(filtered, c)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID > filtered[j].ID })
	total := len(filtered)

	start, end := offset, offset+limit
	if start > total {
		return []*model.Campaign{}, total, nil
	}
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

func (m *MockCampaignRepo) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	m.campaigns[c.ID] = c
	return nil
}

func (m *MockCampaignRepo) UpdateStatus(_ context.Context, id int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	return nil
}

func (m *MockCampaignRepo) Update(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[c.ID]; !ok {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	m.campaigns[c.ID] = c
	return nil
}

func (m *MockCampaignRepo) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[id]; !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	delete(m.campaigns, id)
	return nil
}

func (m *MockCampaignRepo) MarkActive(ctx context.Context, id int) error {
	return m.UpdateStatus(ctx, id, model.StatusActive)
}
func (m *MockCampaignRepo) SetAudienceSize(context.Context, int, int) error { return nil }
func (m *MockCampaignRepo) SetSent(context.Context, int, int) error         { return nil }
func (m *MockCampaignRepo) IncrementMetrics(context.Context, int, model.MetricsDelta) error {
	return nil
}
func (m *MockCampaignRepo) ListDueScheduled(context.Context, time.Time) ([]*model.Campaign, error) {
	return nil, nil
}

type MockCustomerRepo struct{}

func (MockCustomerRepo) GetByID(context.Context, int) (*model.Customer, error) { return nil, nil }
func (MockCustomerRepo) ListAll(context.Context) ([]model.Customer, error)    { return nil, nil }
func (MockCustomerRepo) Count(context.Context) (int, error)                   { return 42, nil }
func (MockCustomerRepo) FindBySegment(context.Context, model.RuleGroup) ([]*model.Customer, error) {
	return nil, nil
}

type MockLogRepo struct {
	logs []*model.CommunicationLog
}

func (m *MockLogRepo) Create(context.Context, *model.CommunicationLog) error { return nil }
func (m *MockLogRepo) MarkSent(context.Context, int, string, time.Time) error { return nil }
func (m *MockLogRepo) MarkFailed(context.Context, int, string) error         { return nil }
func (m *MockLogRepo) FindByVendorMessageIDs(context.Context, []string) ([]*model.CommunicationLog, error) {
	return nil, nil
}
func (m *MockLogRepo) ApplyReceipt(context.Context, int, string, string, *time.Time) (bool, error) {
	return false, nil
}

func (m *MockLogRepo) List(_ context.Context, f model.LogFilter) ([]*model.CommunicationLog, int, error) {
	var out []*model.CommunicationLog
	for _, l := range m.logs {
		if l.CampaignID == f.CampaignID && (f.Status == "" || l.Status == f.Status) {
			out = append(out, l)
		}
	}
	total := len(out)
	if f.Offset >= total {
		return []*model.CommunicationLog{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return out[f.Offset:end], total, nil
}

func (m *MockLogRepo) Stats(_ context.Context, campaignID int) (map[string]int, error) {
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

type MockDispatcher struct {
	mu        sync.Mutex
	triggered []int
	busy      map[int]bool
}

func (d *MockDispatcher) Trigger(id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy[id] {
		return false
	}
	d.triggered = append(d.triggered, id)
	return true
}

// --- Helpers ---

type fixture struct {
	router     chi.Router
	campaigns  *MockCampaignRepo
	logs       *MockLogRepo
	dispatcher *MockDispatcher
}

func newFixture(cs ...*model.Campaign) *fixture {
	f := &fixture{
		campaigns:  &MockCampaignRepo{campaigns: map[int]*model.Campaign{}, nextID: 100},
		logs:       &MockLogRepo{},
		dispatcher: &MockDispatcher{busy: map[int]bool{}},
	}
	for _, c := range cs {
		f.campaigns.campaigns[c.ID] = c
	}
	svc := &service.CampaignService{
		CampaignRepo:      f.campaigns,
		CustomerRepo:      MockCustomerRepo{},
		LogRepo:           f.logs,
		Dispatcher:        f.dispatcher,
		Estimator:         segment.NewEstimator(),
		PreviewPopulation: 10000,
	}
	f.router = chi.NewRouter()
	(&controller.CampaignController{CampaignService: svc}).Routes(f.router)
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

const spendRules = `{"operator":"AND","conditions":[{"type":"spend","operator":">","value":5000}]}`

// --- Tests ---

func TestCreateCampaign(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/campaigns",
		`{"name":"Spring","type":"sms","content":{"body":"Hi {{name}}"},"segmentRules":`+spendRules+`}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c model.Campaign
	decode(t, w, &c)
	assert.Equal(t, 101, c.ID)
	assert.Equal(t, "5000", c.SegmentRules.Conditions[0].(model.Condition).Value)
	assert.Equal(t, []int{101}, f.dispatcher.triggered)
}

func TestCreateSocialCampaign(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/campaigns",
		`{"name":"Share","type":"Social","content":{"body":"Hi {{name}}"},"segmentRules":`+spendRules+`}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c model.Campaign
	decode(t, w, &c)
	assert.Equal(t, model.ChannelSocial, c.Type)
}

func TestUpdateCampaign(t *testing.T) {
	f := newFixture(
		&model.Campaign{ID: 1, Name: "Old", Type: "sms", Status: model.StatusScheduled},
		&model.Campaign{ID: 2, Name: "Live", Type: "sms", Status: model.StatusActive},
	)
	later := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	body := `{"name":"New","type":"email","scheduledAt":"` + later + `","segmentRules":` + spendRules + `}`

	w := f.do(t, http.MethodPut, "/campaigns/1", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var c model.Campaign
	decode(t, w, &c)
	assert.Equal(t, "New", c.Name)
	assert.Equal(t, "email", c.Type)
	assert.Equal(t, model.StatusScheduled, c.Status)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPut, "/campaigns/2", body).Code)
	assert.Equal(t, "Live", f.campaigns.campaigns[2].Name)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/campaigns/3", body).Code)

	w = f.do(t, http.MethodPut, "/campaigns/1",
		`{"name":"New","type":"email","segmentRules":{"operator":"AND","conditions":[]}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.dispatcher.triggered)
}

func TestDeleteCampaign(t *testing.T) {
	f := newFixture(
		&model.Campaign{ID: 1, Status: model.StatusDraft},
		&model.Campaign{ID: 2, Status: model.StatusCompleted},
	)
	f.logs.logs = []*model.CommunicationLog{{ID: 1, CampaignID: 2, Status: model.LogDelivered}}

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/campaigns/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/campaigns/1", nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodDelete, "/campaigns/2", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/campaigns/9", nil).Code)
}

func TestCreateCampaignRejectsBadRules(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/campaigns",
		`{"name":"Bad","type":"sms","segmentRules":{"operator":"AND","conditions":[{"type":"age","operator":">","value":3}]}}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var res map[string]string
	decode(t, w, &res)
	assert.Equal(t, "segmentRules.conditions[0].type", res["path"])
	assert.Empty(t, f.dispatcher.triggered)

	w = f.do(t, http.MethodPost, "/campaigns", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCampaignsPagination(t *testing.T) {
	totalCampaigns := 25
	var campaigns []*model.Campaign
	for i := 1; i <= totalCampaigns; i++ {
		campaigns = append(campaigns, &model.Campaign{
			ID: i, Name: "Campaign " + strconv.Itoa(i), Type: "sms", Status: model.StatusDraft,
		})
	}
	campaigns = append(campaigns, &model.Campaign{ID: 99, Type: "email", Status: model.StatusDraft})
	f := newFixture(campaigns...)

	pageSize := 10
	seen := map[int]bool{}
	totalPages := (totalCampaigns + pageSize - 1) / pageSize

	for page := 1; page <= totalPages; page++ {
		w := f.do(t, http.MethodGet,
			"/campaigns?page="+strconv.Itoa(page)+"&page_size="+strconv.Itoa(pageSize)+"&channel=sms&status=draft", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var res struct {
			Data       []model.Campaign `json:"data"`
			Pagination struct {
				Page       int `json:"page"`
				PageSize   int `json:"page_size"`
				TotalCount int `json:"total_count"`
				TotalPages int `json:"total_pages"`
			} `json:"pagination"`
		}
		decode(t, w, &res)

		assert.Equal(t, page, res.Pagination.Page)
		assert.Equal(t, totalCampaigns, res.Pagination.TotalCount)
		assert.Equal(t, totalPages, res.Pagination.TotalPages)
		for _, c := range res.Data {
			assert.False(t, seen[c.ID], "campaign %d returned twice", c.ID)
			seen[c.ID] = true
		}
	}
	assert.Len(t, seen, totalCampaigns)
}

func TestGetCampaignDetails(t *testing.T) {
	f := newFixture(&model.Campaign{ID: 1, Name: "Details", Status: model.StatusActive})
	f.logs.logs = []*model.CommunicationLog{
		{ID: 1, CampaignID: 1, Status: model.LogSent},
		{ID: 2, CampaignID: 1, Status: model.LogDelivered},
	}

	w := f.do(t, http.MethodGet, "/campaigns/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Name  string         `json:"name"`
		Stats map[string]int `json:"stats"`
	}
	decode(t, w, &res)
	assert.Equal(t, "Details", res.Name)
	assert.Equal(t, 2, res.Stats["total"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/campaigns/7", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/campaigns/abc", nil).Code)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(&model.Campaign{ID: 1, Status: model.StatusActive})

	w := f.do(t, http.MethodPatch, "/campaigns/1/status", map[string]string{"status": "paused"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusPaused, f.campaigns.campaigns[1].Status)

	w = f.do(t, http.MethodPatch, "/campaigns/1/status", map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeliverCampaign(t *testing.T) {
	f := newFixture(
		&model.Campaign{ID: 1, Status: model.StatusDraft},
		&model.Campaign{ID: 2, Status: model.StatusCancelled},
		&model.Campaign{ID: 3, Status: model.StatusDraft},
		&model.Campaign{ID: 5, Status: model.StatusActive},
	)
	f.dispatcher.busy[3] = true

	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/campaigns/1/deliver", nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/campaigns/2/deliver", nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/campaigns/3/deliver", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/campaigns/4/deliver", nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/campaigns/5/deliver", nil).Code)
	assert.Equal(t, []int{1}, f.dispatcher.triggered)
}

func TestGetMetrics(t *testing.T) {
	f := newFixture(&model.Campaign{ID: 1, Name: "M", Metrics: model.Metrics{Sent: 4, Delivered: 3, Bounced: 1}})

	w := f.do(t, http.MethodGet, "/campaigns/1/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var m service.CampaignMetrics
	decode(t, w, &m)
	assert.Equal(t, 75.0, m.DeliveryRate)
	assert.Equal(t, 3, m.Metrics.Delivered)
}

func TestPreviewAudience(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/campaigns/audience-preview",
		`{"segmentRules":{"operator":"AND","conditions":[{"type":"spend","operator":">","value":"90000"}]}}`)

	require.Equal(t, http.StatusOK, w.Code)
	var est segment.AudienceEstimate
	decode(t, w, &est)
	assert.Equal(t, segment.AudienceEstimate{TotalAudience: 10000, AudienceSize: 500, Percentage: 5.0}, est)

	w = f.do(t, http.MethodPost, "/campaigns/audience-preview", `{"segmentRules":{"operator":"XOR","conditions":[]}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommunicationLogsAndStats(t *testing.T) {
	f := newFixture(&model.Campaign{ID: 1})
	for i := 1; i <= 3; i++ {
		f.logs.logs = append(f.logs.logs, &model.CommunicationLog{ID: i, CampaignID: 1, Status: model.LogSent})
	}
	f.logs.logs = append(f.logs.logs, &model.CommunicationLog{ID: 4, CampaignID: 1, Status: model.LogFailed})

	w := f.do(t, http.MethodGet, "/campaigns/1/communication-logs?status=sent&limit=2&page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Logs       []model.CommunicationLog `json:"logs"`
		Total      int                      `json:"total"`
		Page       int                      `json:"page"`
		Limit      int                      `json:"limit"`
		TotalPages int                      `json:"totalPages"`
	}
	decode(t, w, &res)
	assert.Len(t, res.Logs, 1)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 2, res.Limit)
	assert.Equal(t, 2, res.TotalPages)

	w = f.do(t, http.MethodGet, "/campaigns/1/log-stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		CampaignID int            `json:"campaignId"`
		Stats      map[string]int `json:"stats"`
	}
	decode(t, w, &stats)
	assert.Equal(t, 1, stats.CampaignID)
	assert.Equal(t, 4, stats.Stats["total"])
	assert.Equal(t, 1, stats.Stats[model.LogFailed])
	assert.Equal(t, 0, stats.Stats[model.LogClicked])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/campaigns/2/log-stats", nil).Code)
}
