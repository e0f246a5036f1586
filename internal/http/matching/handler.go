package matching

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/ledgermatch/internal/engine"
	"github.com/MrJamesThe3rd/ledgermatch/internal/http/respond"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
)

type Handler struct {
	svc      *reconcile.Service
	engine   *engine.Engine
	defaults reconcile.AutoMatchOptions
}

// NewHandler wires the matching endpoints. defaults fill in whatever an
// auto-match request leaves out.
func NewHandler(svc *reconcile.Service, eng *engine.Engine, defaults reconcile.AutoMatchOptions) *Handler {
	return &Handler{svc: svc, engine: eng, defaults: defaults}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/auto-match", h.autoMatch)
	r.Post("/link", h.link)
	r.Delete("/link/{transactionID}", h.unlink)
}

type autoMatchRequest struct {
	Threshold *float64 `json:"threshold"`
	Limit     *int     `json:"limit"`
}

func (h *Handler) autoMatch(w http.ResponseWriter, r *http.Request) {
	var req autoMatchRequest

	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.BadRequest(w, err.Error())
			return
		}
	}

	opts := h.defaults

	if req.Threshold != nil {
		opts.Threshold = *req.Threshold
	}

	if req.Limit != nil {
		opts.Limit = *req.Limit
	}

	j, err := h.engine.StartAutoMatch(opts)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Task(w, j)
}

type linkRequest struct {
	TransactionID int64 `json:"transaction_id"`
	ExpenseID     int64 `json:"expense_id"`
}

type linkResponse struct {
	TransactionID   int64  `json:"transaction_id"`
	LinkedExpenseID *int64 `json:"linked_expense_id"`
	LinkedAmount    int64  `json:"linked_amount"`
	Version         int64  `json:"version"`
}

func (h *Handler) link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	if req.TransactionID <= 0 || req.ExpenseID <= 0 {
		respond.BadRequest(w, "transaction_id and expense_id are required")
		return
	}

	tx, err := h.svc.Link(r.Context(), req.TransactionID, req.ExpenseID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, linkResponse{
		TransactionID:   tx.ID,
		LinkedExpenseID: tx.LinkedExpenseID,
		LinkedAmount:    tx.LinkedAmount,
		Version:         tx.Version,
	})
}

func (h *Handler) unlink(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "transactionID"), 10, 64)
	if err != nil || id <= 0 {
		respond.BadRequest(w, "invalid transaction id")
		return
	}

	if _, err := h.svc.Unlink(r.Context(), id); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
