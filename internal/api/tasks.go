package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Tyrannozavr/steamParser/internal/middleware"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

type createTaskRequest struct {
	AppID          int             `json:"app_id"`
	MarketHashName string          `json:"market_hash_name"`
	Filters        store.FilterDoc `json:"filters"`
	CheckInterval  time.Duration   `json:"check_interval"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	owner, _ := middleware.OwnerFromContext(r.Context())

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.CheckInterval <= 0 {
		req.CheckInterval = 5 * time.Minute
	}

	task := &store.MonitoringTask{
		OwnerID:        owner,
		AppID:          req.AppID,
		MarketHashName: req.MarketHashName,
		Filters:        req.Filters,
		CheckInterval:  req.CheckInterval,
		NextCheck:      time.Now(),
	}

	sess, err := s.store.NewSession(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer sess.Rollback(r.Context())

	if err := s.store.CreateTask(r.Context(), sess, task); err != nil {
		http.Error(w, "failed to create task", http.StatusInternalServerError)
		return
	}
	if err := sess.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	s.sched.OnTaskCreated(task.TaskID)

	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	owner, _ := middleware.OwnerFromContext(r.Context())

	sess, err := s.store.NewSession(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer sess.Rollback(r.Context())

	tasks, err := s.store.ListTasksByOwner(r.Context(), sess, owner)
	if err != nil {
		http.Error(w, "failed to list tasks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]

	sess, err := s.store.NewSession(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer sess.Rollback(r.Context())

	task, err := s.store.GetTask(r.Context(), sess, taskID)
	if err != nil || task == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) activateTask(w http.ResponseWriter, r *http.Request) {
	s.setTaskActive(w, r, true)
}

func (s *Server) deactivateTask(w http.ResponseWriter, r *http.Request) {
	s.setTaskActive(w, r, false)
}

func (s *Server) setTaskActive(w http.ResponseWriter, r *http.Request, active bool) {
	taskID := mux.Vars(r)["task_id"]

	sess, err := s.store.NewSession(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer sess.Rollback(r.Context())

	if err := s.store.SetTaskActive(r.Context(), sess, taskID, active); err != nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if err := sess.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	if active {
		s.sched.OnTaskActivated(taskID)
	} else {
		s.sched.OnTaskDeactivated(taskID)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]

	sess, err := s.store.NewSession(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer sess.Rollback(r.Context())

	if err := s.store.DeleteTask(r.Context(), sess, taskID); err != nil {
		http.Error(w, "failed to delete task", http.StatusInternalServerError)
		return
	}
	if err := sess.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	s.sched.OnTaskDeleted(taskID)
	w.WriteHeader(http.StatusNoContent)
}

// taskTimeline returns this server's view of a task's scheduling event
// log. In a split deployment it reflects events mirrored over
// bus.SubjectSchedulerEvents rather than the scheduler leader's own
// in-memory log, and is empty until the first event arrives.
func (s *Server) taskTimeline(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	writeJSON(w, http.StatusOK, s.timeline.ForTask(taskID))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
