// Package api exposes the monitor over HTTP/JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/store"
	appsync "github.com/nhle/slawatch/internal/sync"
)

// ActorHeader carries the identity recorded on reads, archives, and
// justifications.
const ActorHeader = "X-Actor"

// Service is the monitor surface served over HTTP.
type Service interface {
	ListNotifications(ctx context.Context, filter store.NotificationFilter) ([]monitor.NotificationView, error)
	AcknowledgeRead(ctx context.Context, id, actor string) error
	Archive(ctx context.Context, id, actor string) error
	SubmitJustification(ctx context.Context, taskID, text, actor string) (*model.JustificationRecord, error)
	Justifications(ctx context.Context, taskID string) ([]model.JustificationRecord, error)
	TaskDetail(ctx context.Context, id string) (*monitor.TaskDetail, error)
	Dashboard(ctx context.Context) (monitor.DashboardSummary, error)
	Tasks(ctx context.Context, filter store.TaskFilter) ([]model.MonitoredTask, error)
	RegisterTask(ctx context.Context, task model.MonitoredTask) (*monitor.Evaluation, error)
	CompleteTask(ctx context.Context, id string, at time.Time) (*monitor.Evaluation, error)
	RescheduleTask(ctx context.Context, id string, next time.Time) (*monitor.Evaluation, error)
	SyncNow(ctx context.Context, timeout time.Duration) (monitor.SyncResult, error)
	BreakerState() gobreaker.State
}

// LoopStatus reports the state of the periodic evaluation loop.
type LoopStatus interface {
	Status() appsync.Status
}

// Server routes HTTP requests to the monitor.
type Server struct {
	svc         Service
	loop        LoopStatus
	log         *zap.Logger
	gatherer    prometheus.Gatherer
	limiter     *rate.Limiter
	syncTimeout time.Duration
	addr        string
	router      *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLoop reports loop health on /healthz.
func WithLoop(l LoopStatus) Option {
	return func(s *Server) { s.loop = l }
}

// WithSyncTimeout bounds on-demand passes started through /sync.
func WithSyncTimeout(d time.Duration) Option {
	return func(s *Server) { s.syncTimeout = d }
}

// New builds a Server. /sync is throttled to cfg.SyncRPS requests per
// second with a burst of cfg.SyncBurst.
func New(svc Service, cfg model.APIConfig, opts ...Option) *Server {
	rps := rate.Limit(cfg.SyncRPS)
	if cfg.SyncRPS <= 0 {
		rps = rate.Inf
	}
	burst := cfg.SyncBurst
	if burst < 1 {
		burst = 1
	}

	s := &Server{
		svc:         svc,
		log:         zap.NewNop(),
		gatherer:    prometheus.DefaultGatherer,
		limiter:     rate.NewLimiter(rps, burst),
		syncTimeout: 10 * time.Second,
		addr:        cfg.Addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("api")
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	r.HandleFunc("/notifications/{id}/read", s.handleRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}/archive", s.handleArchive).Methods(http.MethodPost)

	r.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)

	r.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	r.HandleFunc("/tasks", s.handleRegisterTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", s.handleTaskDetail).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}/complete", s.handleCompleteTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/reschedule", s.handleRescheduleTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/justification", s.handleJustify).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/justifications", s.handleJustifications).Methods(http.MethodGet)

	r.Use(s.logRequests)
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
