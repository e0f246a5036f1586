// Package respond writes JSON responses and maps domain errors onto HTTP
// status codes.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	"github.com/MrJamesThe3rd/ledgermatch/internal/job"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

type errorResponse struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type taskResponse struct {
	TaskID string     `json:"task_id"`
	Status job.Status `json:"status"`
}

// Task acknowledges a job submitted in the background.
func Task(w http.ResponseWriter, j job.Job) {
	JSON(w, http.StatusAccepted, taskResponse{TaskID: j.TaskID.String(), Status: j.Status})
}

// BadRequest reports a malformed request.
func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// Error writes err with the status its kind maps to. Unknown errors are
// logged and hidden behind a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)

	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)

		JSON(w, status, errorResponse{Error: "internal error"})

		return
	}

	JSON(w, status, errorResponse{Error: err.Error()})
}

func Status(err error) int {
	switch {
	case errors.Is(err, transaction.ErrNotFound),
		errors.Is(err, expense.ErrNotFound),
		errors.Is(err, rule.ErrNotFound),
		errors.Is(err, job.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, categorize.ErrCategoryNotFound),
		errors.Is(err, rule.ErrInvalidRule),
		errors.Is(err, reconcile.ErrInvalidOptions),
		errors.Is(err, reconcile.ErrNotDebit):
		return http.StatusBadRequest
	case errors.Is(err, transaction.ErrConflict),
		errors.Is(err, categorize.ErrNoSuggestion),
		errors.Is(err, reconcile.ErrAlreadyLinked),
		errors.Is(err, reconcile.ErrExpenseSettled):
		return http.StatusConflict
	case errors.Is(err, job.ErrQueueFull),
		errors.Is(err, job.ErrClosed):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}
