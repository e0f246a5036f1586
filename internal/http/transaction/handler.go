package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/engine"
	"github.com/MrJamesThe3rd/ledgermatch/internal/http/respond"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

const defaultSimilarLimit = 50

type Options struct {
	// MatchThreshold is the candidate cut-off used when a request does not
	// give one.
	MatchThreshold float64
	// SyncBulkLimit is the longest id list bulk-categorize processes inline.
	// Longer lists run as a job. Zero disables the limit.
	SyncBulkLimit int
	// SyncBudget bounds inline bulk work so that the partial counts are
	// written before the server timeout. Zero leaves it to the request.
	SyncBudget time.Duration
}

type Handler struct {
	txs        *transaction.Service
	categorize *categorize.Service
	reconcile  *reconcile.Service
	engine     *engine.Engine
	opts       Options
}

func NewHandler(
	txs *transaction.Service,
	categorizeSvc *categorize.Service,
	reconcileSvc *reconcile.Service,
	eng *engine.Engine,
	opts Options,
) *Handler {
	return &Handler{
		txs:        txs,
		categorize: categorizeSvc,
		reconcile:  reconcileSvc,
		engine:     eng,
		opts:       opts,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/bulk-categorize", h.bulkCategorize)
	r.Post("/auto-categorize", h.autoCategorize)
	r.Get("/{id}", h.get)
	r.Post("/{id}/categorize", h.categorizeOne)
	r.Post("/{id}/apply-similar", h.applySimilar)
	r.Get("/{id}/similar", h.similar)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Get("/{id}/matching-candidates", h.candidates)
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := transaction.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(transaction.Status(s))
	}

	if s := r.URL.Query().Get("counterparty_inn"); s != "" {
		filter.CounterpartyINN = new(s)
	}

	if s := r.URL.Query().Get("unlinked"); s == "true" {
		filter.UnlinkedOnly = true
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			respond.BadRequest(w, "invalid limit")
			return
		}

		filter.Limit = limit
	}

	txs, err := h.txs.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(txs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respond.BadRequest(w, "invalid id")
		return
	}

	tx, err := h.txs.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(tx))
}

type categorizeRequest struct {
	CategoryID int64  `json:"category_id"`
	Notes      string `json:"notes"`
}

func (h *Handler) categorizeOne(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respond.BadRequest(w, "invalid id")
		return
	}

	var req categorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	if req.CategoryID <= 0 {
		respond.BadRequest(w, "category_id is required")
		return
	}

	tx, err := h.categorize.CategorizeOne(r.Context(), id, req.CategoryID, req.Notes)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(tx))
}

type bulkCategorizeRequest struct {
	TransactionIDs []int64 `json:"transaction_ids"`
	CategoryID     int64   `json:"category_id"`
	Async          bool    `json:"async"`
}

func (h *Handler) bulkCategorize(w http.ResponseWriter, r *http.Request) {
	var req bulkCategorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	if len(req.TransactionIDs) == 0 || req.CategoryID <= 0 {
		respond.BadRequest(w, "transaction_ids and category_id are required")
		return
	}

	if req.Async || (h.opts.SyncBulkLimit > 0 && len(req.TransactionIDs) > h.opts.SyncBulkLimit) {
		j, err := h.engine.StartBulkCategorize(r.Context(), req.TransactionIDs, req.CategoryID)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		respond.Task(w, j)

		return
	}

	ctx, cancel := h.inlineContext(r)
	defer cancel()

	res, err := h.categorize.BulkCategorize(ctx, req.TransactionIDs, req.CategoryID, nil)
	writeBulk(w, r, res, err)
}

func (h *Handler) inlineContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.opts.SyncBudget <= 0 {
		return context.WithCancel(r.Context())
	}

	return context.WithTimeout(r.Context(), h.opts.SyncBudget)
}

// writeBulk writes the counts of an inline batch. Work cut short by the
// deadline or a disconnect is already committed, so its counts are written
// and marked incomplete.
func writeBulk(w http.ResponseWriter, r *http.Request, res categorize.BulkResult, err error) {
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		respond.Error(w, r, err)
		return
	}

	resp := toBulkResponse(res)
	resp.Incomplete = err != nil

	respond.JSON(w, http.StatusOK, resp)
}

type applySimilarRequest struct {
	CategoryID int64   `json:"category_id"`
	SimilarIDs []int64 `json:"similar_ids"`
}

func (h *Handler) applySimilar(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respond.BadRequest(w, "invalid id")
		return
	}

	var req applySimilarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	if req.CategoryID <= 0 {
		respond.BadRequest(w, "category_id is required")
		return
	}

	ctx, cancel := h.inlineContext(r)
	defer cancel()

	res, err := h.categorize.ApplyToSimilar(ctx, id, req.CategoryID, req.SimilarIDs, nil)
	writeBulk(w, r, res, err)
}

func (h *Handler) similar(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respond.BadRequest(w, "invalid id")
		return
	}

	limit := defaultSimilarLimit

	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respond.BadRequest(w, "invalid limit")
			return
		}

		limit = n
	}

	txs, err := h.categorize.FindSimilar(r.Context(), id, limit)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(txs))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respond.BadRequest(w, "invalid id")
		return
	}

	tx, err := h.categorize.ApproveSuggestion(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respond.BadRequest(w, "invalid id")
		return
	}

	tx, err := h.categorize.RejectSuggestion(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(tx))
}

type autoCategorizeRequest struct {
	TransactionIDs []int64 `json:"transaction_ids"`
}

func (h *Handler) autoCategorize(w http.ResponseWriter, r *http.Request) {
	var req autoCategorizeRequest

	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.BadRequest(w, err.Error())
			return
		}
	}

	j, err := h.engine.StartAutoCategorize(req.TransactionIDs)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Task(w, j)
}

func (h *Handler) candidates(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respond.BadRequest(w, "invalid id")
		return
	}

	threshold := h.opts.MatchThreshold

	if s := r.URL.Query().Get("threshold"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 || v > 100 {
			respond.BadRequest(w, "threshold must be a number between 0 and 100")
			return
		}

		threshold = v
	}

	candidates, err := h.reconcile.Candidates(r.Context(), id, threshold)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if candidates == nil {
		candidates = []reconcile.Candidate{}
	}

	respond.JSON(w, http.StatusOK, candidates)
}
