package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/alem-hub/arena-engine/internal/infrastructure/queue"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE ADMINISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// QueueAdminPrefix is where QueueAdmin routes are mounted.
const QueueAdminPrefix = "/admin/queue"

// QueueAdmin exposes dead letter inspection and replay on the worker's
// operational listener.
type QueueAdmin struct {
	queue  queue.Inspector
	router *mux.Router
	logger *logger.Logger
}

// NewQueueAdmin creates the admin handler.
func NewQueueAdmin(q queue.Inspector, log *logger.Logger) *QueueAdmin {
	if log == nil {
		log = logger.Nop()
	}
	a := &QueueAdmin{
		queue:  q,
		router: mux.NewRouter(),
		logger: log.With(logger.Component("queue_admin")),
	}
	r := a.router.PathPrefix(QueueAdminPrefix).Subrouter()
	r.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/dead", a.handleDead).Methods(http.MethodGet)
	r.HandleFunc("/dead/{id}/requeue", a.handleRequeue).Methods(http.MethodPost)
	return a
}

// ServeHTTP implements http.Handler.
func (a *QueueAdmin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *QueueAdmin) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.queue.Stats(r.Context())
	if err != nil {
		a.fail(w, "stats", err)
		return
	}
	writeAdminJSON(w, http.StatusOK, st)
}

func (a *QueueAdmin) handleDead(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeAdminJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	jobs, err := a.queue.DeadLetters(r.Context(), limit)
	if err != nil {
		a.fail(w, "dead letters", err)
		return
	}
	if jobs == nil {
		jobs = []*queue.Job{}
	}
	writeAdminJSON(w, http.StatusOK, jobs)
}

func (a *QueueAdmin) handleRequeue(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := a.queue.Requeue(r.Context(), id)
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		writeAdminJSON(w, http.StatusNotFound, map[string]string{"error": "dead job not found"})
		return
	case err != nil:
		a.fail(w, "requeue", err)
		return
	}
	a.logger.Info("dead job requeued", logger.JobID(id))
	writeAdminJSON(w, http.StatusOK, map[string]string{"requeued": id})
}

func (a *QueueAdmin) fail(w http.ResponseWriter, op string, err error) {
	a.logger.Error("queue admin failed", logger.Operation(op), logger.Err(err))
	writeAdminJSON(w, http.StatusInternalServerError, map[string]string{"error": "queue unavailable"})
}

func writeAdminJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
