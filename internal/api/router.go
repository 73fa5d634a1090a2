// Package api implements the minimal, command-style admin HTTP surface:
// list/show/activate/deactivate/delete tasks, proxy pool stats, a
// status snapshot, and a live scheduling-decision stream. Routed with
// gorilla/mux rather than a full web framework, since the surface is
// intentionally small.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Tyrannozavr/steamParser/internal/auth"
	"github.com/Tyrannozavr/steamParser/internal/idempotency"
	"github.com/Tyrannozavr/steamParser/internal/middleware"
	"github.com/Tyrannozavr/steamParser/internal/proxy"
	"github.com/Tyrannozavr/steamParser/internal/scheduler"
	"github.com/Tyrannozavr/steamParser/internal/store"
	"github.com/Tyrannozavr/steamParser/internal/timeline"
)

// IngestEvent mirrors a scheduler control-loop event (received over
// bus.SubjectSchedulerEvents in a split deployment, or recorded
// directly by an in-process scheduler.Manager) into this server's own
// timeline and live stream.
func (s *Server) IngestEvent(e timeline.Event) {
	s.timeline.Record(context.Background(), e)
	s.hub.Broadcast(e)
}

type Server struct {
	store      store.Store
	proxies    *proxy.Manager
	sched      *scheduler.Manager
	timeline   *timeline.Store
	idemStore  *idempotency.Store
	issuer     *auth.TokenIssuer
	router     *mux.Router
	hub        *Hub
}

func NewServer(st store.Store, proxies *proxy.Manager, sched *scheduler.Manager, tl *timeline.Store, idem *idempotency.Store, issuer *auth.TokenIssuer) *Server {
	s := &Server{store: st, proxies: proxies, sched: sched, timeline: tl, idemStore: idem, issuer: issuer, hub: NewHub()}
	s.router = mux.NewRouter()
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return middleware.CORSMiddleware(s.router)
}

func (s *Server) routes() {
	authMW := middleware.AuthMiddleware(s.issuer)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(authMW)

	api.HandleFunc("/tasks", s.listTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks", s.withIdempotency(s.createTask)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{task_id}", s.getTask).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{task_id}/activate", s.activateTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{task_id}/deactivate", s.deactivateTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{task_id}", s.deleteTask).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{task_id}/timeline", s.taskTimeline).Methods(http.MethodGet)

	api.HandleFunc("/proxies/stats", s.proxyStats).Methods(http.MethodGet)

	api.HandleFunc("/status", s.statusSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/stream", s.streamDecisions)

	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
