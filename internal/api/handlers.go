package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/store"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error     string `json:"error"`
	MinLength int    `json:"min_length,omitempty"`
	Got       int    `json:"got,omitempty"`

	TasksEvaluated *int `json:"tasks_evaluated,omitempty"`
	Failed         *int `json:"failed,omitempty"`
}

// healthResponse is the body of /healthz.
type healthResponse struct {
	Status       string     `json:"status"`
	Breaker      string     `json:"breaker"`
	Loop         string     `json:"loop,omitempty"`
	LastTick     *time.Time `json:"last_tick,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	SkippedTicks uint64     `json:"skipped_ticks"`
	LastError    string     `json:"last_error,omitempty"`
}

type justificationRequest struct {
	Text string `json:"text"`
}

type taskRequest struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ScheduledStart time.Time `json:"scheduled_start"`
	SLAMinutes     int       `json:"sla_minutes"`
}

type completeRequest struct {
	CompletedAt *time.Time `json:"completed_at"`
}

type rescheduleRequest struct {
	ScheduledStart time.Time `json:"scheduled_start"`
}

type evaluationResponse struct {
	Task    model.MonitoredTask       `json:"task"`
	Emitted []model.NotificationEvent `json:"emitted"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.svc.BreakerState()
	resp := healthResponse{Status: "ok", Breaker: state.String()}

	if s.loop != nil {
		st := s.loop.Status()
		resp.Loop = st.State.String()
		resp.SkippedTicks = st.Skipped
		if !st.LastTick.IsZero() {
			t := st.LastTick.Round(0)
			resp.LastTick = &t
		}
		if !st.LastSuccess.IsZero() {
			t := st.LastSuccess.Round(0)
			resp.LastSuccess = &t
		}
		if st.Error != nil {
			resp.LastError = st.Error.Error()
			resp.Status = "degraded"
		}
	}

	code := http.StatusOK
	if state == gobreaker.StateOpen {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	filter, err := parseNotificationFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	views, err := s.svc.ListNotifications(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.svc.AcknowledgeRead(r.Context(), id, actor(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.svc.Archive(r.Context(), id, actor(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "sync rate limit exceeded"})
		return
	}

	res, err := s.svc.SyncNow(r.Context(), s.syncTimeout)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var filter store.TaskFilter
	q := r.URL.Query()
	for _, raw := range q["status"] {
		st := model.LifecycleStatus(strings.ToUpper(raw))
		if !st.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown status %q", raw)})
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	filter.ExcludeCompleted = q.Get("include_completed") != "true"
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		filter.Limit = n
	}

	tasks, err := s.svc.Tasks(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleRegisterTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decode(w, r, &req) {
		return
	}

	ev, err := s.svc.RegisterTask(r.Context(), model.MonitoredTask{
		ID:             req.ID,
		Name:           req.Name,
		ScheduledStart: req.ScheduledStart,
		SLAMinutes:     req.SLAMinutes,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEvaluation(ev))
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	var at time.Time
	if req.CompletedAt != nil {
		at = *req.CompletedAt
	}

	ev, err := s.svc.CompleteTask(r.Context(), mux.Vars(r)["id"], at)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluation(ev))
}

func (s *Server) handleRescheduleTask(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ScheduledStart.IsZero() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "scheduled_start is required"})
		return
	}

	ev, err := s.svc.RescheduleTask(r.Context(), mux.Vars(r)["id"], req.ScheduledStart)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluation(ev))
}

func (s *Server) handleJustify(w http.ResponseWriter, r *http.Request) {
	var req justificationRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := s.svc.SubmitJustification(r.Context(), mux.Vars(r)["id"], req.Text, actor(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleJustifications(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.Justifications(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.TaskDetail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// statusFor maps a monitor error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, monitor.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, monitor.ErrInvalidState), errors.Is(err, monitor.ErrAlreadyAcknowledged):
		return http.StatusConflict
	case errors.Is(err, monitor.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, monitor.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, monitor.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var verr *monitor.ValidationError
	if errors.As(err, &verr) {
		resp.MinLength = verr.MinLength
		resp.Got = verr.Got
	}
	var serr *monitor.SyncError
	if errors.As(err, &serr) {
		resp.TasksEvaluated = &serr.Evaluated
		resp.Failed = &serr.Failed
	}

	if code >= http.StatusInternalServerError {
		s.log.Warn("request failed", zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

func toEvaluation(ev *monitor.Evaluation) evaluationResponse {
	emitted := ev.Emitted
	if emitted == nil {
		emitted = []model.NotificationEvent{}
	}
	return evaluationResponse{Task: ev.Task, Emitted: emitted}
}

// parseNotificationFilter reads kind, status, task_id, from, to, limit and
// offset from the query string. Times are RFC 3339.
func parseNotificationFilter(r *http.Request) (store.NotificationFilter, error) {
	q := r.URL.Query()
	filter := store.NotificationFilter{Status: q.Get("status")}

	if raw := q.Get("kind"); raw != "" {
		kind := model.EventKind(strings.ToUpper(raw))
		filter.Kind = &kind
	}
	if raw := q.Get("task_id"); raw != "" {
		filter.TaskID = &raw
	}

	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("%s must be RFC 3339: %w", p.key, err)
		}
		*p.dst = &t
	}

	for _, p := range []struct {
		key string
		dst *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("%s must be a non-negative integer", p.key)
		}
		*p.dst = n
	}

	return filter, nil
}
