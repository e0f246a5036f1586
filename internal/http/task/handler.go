package task

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/ledgermatch/internal/http/respond"
	"github.com/MrJamesThe3rd/ledgermatch/internal/job"
)

type Handler struct {
	runner *job.Runner
}

func NewHandler(runner *job.Runner) *Handler {
	return &Handler{runner: runner}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{taskID}", h.get)
	r.Post("/{taskID}/cancel", h.cancel)
	r.Post("/{taskID}/refresh", h.refresh)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	jobs := h.runner.List()

	if s := r.URL.Query().Get("status"); s != "" {
		filtered := jobs[:0]

		for _, j := range jobs {
			if j.Status == job.Status(s) {
				filtered = append(filtered, j)
			}
		}

		jobs = filtered
	}

	respond.JSON(w, http.StatusOK, jobs)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, h.runner.Get)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, h.runner.Cancel)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, h.runner.RefreshStatus)
}

func (h *Handler) withID(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID) (job.Job, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		respond.BadRequest(w, "invalid task id")
		return
	}

	j, err := fn(id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, j)
}
