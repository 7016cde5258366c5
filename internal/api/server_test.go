package api_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/slawatch/internal/api"
	"github.com/nhle/slawatch/internal/clock"
	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/sla"
	appsync "github.com/nhle/slawatch/internal/sync"
	"github.com/nhle/slawatch/tests/testutil"
)

type staticLoop struct {
	status appsync.Status
}

func (l staticLoop) Status() appsync.Status { return l.status }

type harness struct {
	srv   *httptest.Server
	clock *clock.Fake
	reg   *prometheus.Registry
}

func ist(t *testing.T, hhmm string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	v, err := time.ParseInLocation("2006-01-02 15:04", "2026-10-16 "+hhmm, loc)
	require.NoError(t, err)
	return v
}

func newHarness(t *testing.T, now time.Time, cfg model.APIConfig, opts ...api.Option) *harness {
	t.Helper()

	st := testutil.NewTestStore(t)
	testutil.SeedTask(t, st, "clearing", ist(t, "09:00"), 15)

	policy := sla.DefaultPolicy()
	policy.Location = now.Location()

	reg := prometheus.NewRegistry()
	fc := clock.NewFake(now)
	svc := monitor.New(st, policy,
		monitor.WithClock(fc),
		monitor.WithLogger(zap.NewNop()),
		monitor.WithMetrics(monitor.NewMetrics(reg)),
	)

	opts = append([]api.Option{api.WithGatherer(reg), api.WithLogger(zap.NewNop())}, opts...)
	srv := httptest.NewServer(api.New(svc, cfg, opts...).Handler())
	t.Cleanup(srv.Close)

	return &harness{srv: srv, clock: fc, reg: reg}
}

func (h *harness) do(t *testing.T, method, path, body, actor string) (*http.Response, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rdr)
	require.NoError(t, err)
	if actor != "" {
		req.Header.Set(api.ActorHeader, actor)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func openConfig() model.APIConfig {
	return model.APIConfig{SyncRPS: 100, SyncBurst: 100}
}

func TestSyncAndDashboard(t *testing.T) {
	h := newHarness(t, ist(t, "09:31"), openConfig())

	resp, body := h.do(t, http.MethodPost, "/sync", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res monitor.SyncResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, monitor.SyncResult{TasksEvaluated: 1, EventsEmitted: 3}, res)

	resp, body = h.do(t, http.MethodGet, "/dashboard", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary monitor.DashboardSummary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, monitor.DashboardSummary{Total: 3, Unread: 3, Escalated: 1, JustificationPending: 1}, summary)
}

func TestListNotificationsFilters(t *testing.T) {
	h := newHarness(t, ist(t, "09:31"), openConfig())
	h.do(t, http.MethodPost, "/sync", "", "")

	resp, body := h.do(t, http.MethodGet, "/notifications?kind=escalated&task_id=clearing", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var views []monitor.NotificationView
	require.NoError(t, json.Unmarshal(body, &views))
	require.Len(t, views, 1)
	assert.Equal(t, model.EventEscalated, views[0].Kind)
	assert.Equal(t, model.StatusEscalated, views[0].Status)
	assert.Equal(t, "Task clearing", views[0].TaskName)

	resp, _ = h.do(t, http.MethodGet, "/notifications?from=yesterday", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/notifications?status=bogus", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestReadAndArchive(t *testing.T) {
	h := newHarness(t, ist(t, "09:31"), openConfig())
	h.do(t, http.MethodPost, "/sync", "", "")

	_, body := h.do(t, http.MethodGet, "/notifications?kind=MISSED_START", "", "")
	var views []monitor.NotificationView
	require.NoError(t, json.Unmarshal(body, &views))
	require.Len(t, views, 1)
	id := views[0].ID

	resp, _ := h.do(t, http.MethodPost, "/notifications/"+id+"/read", "", "bob")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, "/notifications/"+id+"/read", "", "bob")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/notifications/"+id+"/archive", "", "bob")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/notifications/"+id+"/read", "", "bob")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/notifications/missing/archive", "", "bob")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJustification(t *testing.T) {
	h := newHarness(t, ist(t, "09:31"), openConfig())

	resp, body := h.do(t, http.MethodPost, "/tasks/clearing/justification", `{"text":"late"}`, "alice")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"error":`+quote(t, body)+`,"min_length":10,"got":4}`, string(body))

	resp, body = h.do(t, http.MethodPost, "/tasks/clearing/justification", `{"text":"Bank delayed"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodPost, "/tasks/clearing/justification", `{"text":"Bank delayed"}`, "alice")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var rec model.JustificationRecord
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, "Bank delayed", rec.Text)
	assert.Equal(t, "alice", rec.SubmittedBy)

	resp, _ = h.do(t, http.MethodPost, "/tasks/clearing/justification", `{"text":"Bank delayed again"}`, "alice")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/tasks/clearing/justifications", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs []model.JustificationRecord
	require.NoError(t, json.Unmarshal(body, &recs))
	assert.Len(t, recs, 1)

	resp, _ = h.do(t, http.MethodPost, "/tasks/clearing/justification", `{"txt":"x"}`, "alice")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTaskDetail(t *testing.T) {
	h := newHarness(t, ist(t, "09:20"), openConfig())

	resp, body := h.do(t, http.MethodGet, "/tasks/clearing", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var d monitor.TaskDetail
	require.NoError(t, json.Unmarshal(body, &d))
	assert.Equal(t, model.StatusSLABreached, d.Task.Status)
	assert.Equal(t, "overdue by 5 min", d.Countdown)
	assert.True(t, d.Thresholds.EscalateAt.Equal(ist(t, "09:30")))
	assert.Empty(t, d.Justifications)

	resp, _ = h.do(t, http.MethodGet, "/tasks/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJustificationBeforeEscalation(t *testing.T) {
	h := newHarness(t, ist(t, "09:10"), openConfig())

	resp, _ := h.do(t, http.MethodPost, "/tasks/clearing/justification", `{"text":"Bank delayed"}`, "alice")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/tasks/nope/justification", `{"text":"Bank delayed"}`, "alice")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTaskLifecycle(t *testing.T) {
	h := newHarness(t, ist(t, "10:05"), openConfig())

	resp, body := h.do(t, http.MethodPost, "/tasks",
		`{"id":"recon","name":"Recon","scheduled_start":"2026-10-16T10:00:00+05:30","sla_minutes":30}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"lifecycle_status":"DUE"`)
	assert.Contains(t, string(body), `"event_kind":"MISSED_START"`)

	resp, body = h.do(t, http.MethodPost, "/tasks/recon/complete", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"lifecycle_status":"COMPLETED"`)

	resp, _ = h.do(t, http.MethodPost, "/tasks/recon/complete", "", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/tasks/recon/reschedule",
		`{"scheduled_start":"2026-10-17T10:00:00+05:30"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"lifecycle_status":"PENDING"`)

	resp, _ = h.do(t, http.MethodPost, "/tasks", `{"id":"","scheduled_start":"2026-10-16T10:00:00+05:30","sla_minutes":30}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/tasks", `{"id":"nostart","name":"No start","sla_minutes":30}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, _ = h.do(t, http.MethodGet, "/tasks/nostart", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/tasks",
		`{"id":"recon","name":"Recon","scheduled_start":"2026-10-16T11:00:00+05:30","sla_minutes":30}`, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/tasks?status=pending", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tasks []model.MonitoredTask
	require.NoError(t, json.Unmarshal(body, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "recon", tasks[0].ID)

	resp, _ = h.do(t, http.MethodGet, "/tasks?status=sideways", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncRateLimited(t *testing.T) {
	h := newHarness(t, ist(t, "09:31"), model.APIConfig{SyncRPS: 0.001, SyncBurst: 1})

	resp, _ := h.do(t, http.MethodPost, "/sync", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/sync", "", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestHealthz(t *testing.T) {
	tick := ist(t, "09:30")
	loop := staticLoop{status: appsync.Status{
		State:       appsync.TickIdle,
		LastTick:    tick,
		LastSuccess: tick,
		Skipped:     2,
	}}
	h := newHarness(t, ist(t, "09:31"), openConfig(), api.WithLoop(loop))

	resp, body := h.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Status       string    `json:"status"`
		Breaker      string    `json:"breaker"`
		Loop         string    `json:"loop"`
		LastTick     time.Time `json:"last_tick"`
		SkippedTicks uint64    `json:"skipped_ticks"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "closed", got.Breaker)
	assert.Equal(t, "idle", got.Loop)
	assert.True(t, got.LastTick.Equal(tick))
	assert.Equal(t, uint64(2), got.SkippedTicks)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, ist(t, "09:31"), openConfig())
	h.do(t, http.MethodPost, "/sync", "", "")

	resp, body := h.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `slawatch_events_emitted_total{event_kind="ESCALATED"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t, ist(t, "09:31"), openConfig())

	resp, _ := h.do(t, http.MethodGet, "/sync", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// quote extracts the error string from a JSON error body, re-encoded.
func quote(t *testing.T, body []byte) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &e))
	out, err := json.Marshal(e.Error)
	require.NoError(t, err)
	return string(out)
}
