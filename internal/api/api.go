// Package api implements the int-api HTTP surface of spec.md §6: the thin
// set of routes workers use to heartbeat and resolve task/project
// definitions. No other routes exist — the control-plane UI/API the
// original exposes is a Non-goal. Grounded on the teacher's
// services/item/application/api route-registration shape, generalized to a
// single handler group instead of a per-service router.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/internal/store"
	"github.com/waterwheel-project/waterwheel/pkg/auth"
	"github.com/waterwheel-project/waterwheel/pkg/cache"
	"github.com/waterwheel-project/waterwheel/pkg/errhttp"
	"github.com/waterwheel-project/waterwheel/pkg/httpx"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
	"github.com/waterwheel-project/waterwheel/pkg/validator"
)

// API holds the dependencies the int-api handlers need.
type API struct {
	store  *store.Store
	signer *auth.Signer
	log    logger.Logger
}

// New constructs an API.
func New(st *store.Store, signer *auth.Signer, log logger.Logger) *API {
	return &API{store: st, signer: signer, log: log}
}

// Routes mounts the three int-api routes on r.
func (a *API) Routes(r chi.Router) {
	r.Post("/int-api/heartbeat", a.handleHeartbeat)
	r.Get("/int-api/tasks/{id}", a.handleGetTask)
	r.Get("/int-api/projects/{id}/config", a.handleGetProjectConfig)
}

type heartbeatRequest struct {
	WorkerID     uuid.UUID `json:"uuid" validate:"required"`
	Addr         string    `json:"addr" validate:"required"`
	RunningTasks int       `json:"running_tasks" validate:"gte=0"`
	TotalTasks   int       `json:"total_tasks" validate:"gte=0"`
	Version      string    `json:"version"`
}

// handleHeartbeat records a worker's liveness and running-task count in
// worker_heartbeats. The requeue watchdog does not read these rows; it
// judges a run stalled from task_runs.updated_at.
func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	req, ok := validator.ValidateRequest[heartbeatRequest](w, r)
	if !ok {
		return
	}

	hb := &model.WorkerHeartbeat{
		ID:           req.WorkerID,
		Addr:         req.Addr,
		LastSeen:     time.Now(),
		RunningTasks: req.RunningTasks,
		TotalTasks:   req.TotalTasks,
		Version:      req.Version,
	}
	if err := a.store.UpsertWorkerHeartbeat(r.Context(), hb); err != nil {
		errhttp.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetTask is the definition lookup internal/worker/configcache falls
// back to on a cache miss. Bearer token must be scoped to this exact task id.
func (a *API) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	if err := a.requireBearer(r, auth.ScopeTask, id); err != nil {
		errhttp.WriteError(w, err)
		return
	}

	task, err := a.store.GetTask(r.Context(), id)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, cache.CachedTaskDef{
		ID:               task.ID,
		Image:            task.Image,
		Args:             task.Args,
		Env:              task.Env,
		TimeoutSecs:      task.TimeoutSecs,
		RetryMaxAttempts: task.RetryMaxAttempts,
	})
}

// handleGetProjectConfig returns a project's opaque config blob verbatim.
// Bearer token must be scoped to this exact project id.
func (a *API) handleGetProjectConfig(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	if err := a.requireBearer(r, auth.ScopeProject, id); err != nil {
		errhttp.WriteError(w, err)
		return
	}

	project, err := a.store.GetProject(r.Context(), id)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(project.Config)
}

func (a *API) requireBearer(r *http.Request, scope auth.Scope, id uuid.UUID) error {
	tok := bearerToken(r)
	if tok == "" {
		return auth.ErrInvalidToken
	}
	return a.signer.Verify(tok, scope, id)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}
