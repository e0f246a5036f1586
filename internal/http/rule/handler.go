package rule

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/ledgermatch/internal/http/respond"
	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
)

type Handler struct {
	svc *rule.Service
}

func NewHandler(svc *rule.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.save)
	r.Post("/bulk-activate", h.bulkSetActive(true))
	r.Post("/bulk-deactivate", h.bulkSetActive(false))
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.deactivate)
}

type ruleRequest struct {
	ID         *int64    `json:"id,omitempty"`
	Type       rule.Type `json:"rule_type"`
	rule.Fields
	CategoryID int64       `json:"category_id"`
	Priority   int         `json:"priority"`
	Confidence *float64    `json:"confidence,omitempty"`
	IsActive   *bool       `json:"is_active,omitempty"`
	Origin     rule.Origin `json:"origin,omitempty"`
	Notes      string      `json:"notes,omitempty"`
}

func (req ruleRequest) params() rule.Params {
	return rule.Params{
		Type:       req.Type,
		Fields:     req.Fields,
		CategoryID: req.CategoryID,
		Priority:   req.Priority,
		Confidence: req.Confidence,
		IsActive:   req.IsActive,
		Origin:     req.Origin,
		Notes:      req.Notes,
	}
}

type ruleResponse struct {
	ID         int64     `json:"id"`
	Type       rule.Type `json:"rule_type"`
	rule.Fields
	CategoryID int64       `json:"category_id"`
	Priority   int         `json:"priority"`
	Confidence float64     `json:"confidence"`
	IsActive   bool        `json:"is_active"`
	Origin     rule.Origin `json:"origin"`
	Notes      string      `json:"notes,omitempty"`
	HitCount   int         `json:"hit_count"`
	LastHitAt  *time.Time  `json:"last_hit_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty"`
}

func toResponse(r *rule.Rule) ruleResponse {
	return ruleResponse{
		ID:         r.ID,
		Type:       r.Match.Type(),
		Fields:     r.Match.Fields(),
		CategoryID: r.CategoryID,
		Priority:   r.Priority,
		Confidence: r.Confidence,
		IsActive:   r.IsActive,
		Origin:     r.Origin,
		Notes:      r.Notes,
		HitCount:   r.HitCount,
		LastHitAt:  r.LastHitAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var filter rule.ListFilter

	q := r.URL.Query()

	if q.Get("active") == "true" {
		filter.ActiveOnly = true
	}

	if s := q.Get("category_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			respond.BadRequest(w, "invalid category_id")
			return
		}

		filter.CategoryID = &id
	}

	if s := q.Get("origin"); s != "" {
		filter.Origin = new(rule.Origin(s))
	}

	rules, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]ruleResponse, len(rules))
	for i, rl := range rules {
		resp[i] = toResponse(rl)
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respond.BadRequest(w, "invalid id")
		return
	}

	rl, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(rl))
}

// save creates a rule, or replaces the rule named by the body's id.
func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	if req.ID != nil {
		rl, err := h.svc.Update(r.Context(), *req.ID, req.params())
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		respond.JSON(w, http.StatusOK, toResponse(rl))

		return
	}

	rl, created, err := h.svc.Create(r.Context(), req.params())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	respond.JSON(w, status, toResponse(rl))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respond.BadRequest(w, "invalid id")
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	rl, err := h.svc.Update(r.Context(), id, req.params())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(rl))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respond.BadRequest(w, "invalid id")
		return
	}

	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type bulkRequest struct {
	RuleIDs []int64 `json:"rule_ids"`
}

func (h *Handler) bulkSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.BadRequest(w, err.Error())
			return
		}

		if len(req.RuleIDs) == 0 {
			respond.BadRequest(w, "rule_ids is required")
			return
		}

		res, err := h.svc.BulkSetActive(r.Context(), req.RuleIDs, active)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		respond.JSON(w, http.StatusOK, res)
	}
}
