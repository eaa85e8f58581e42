package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/recurrence"
)

type createRuleResponse struct {
	Rule     *recurrence.Rule `json:"rule"`
	Template *event.Event     `json:"template"`
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var in recurrence.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, tmpl, err := h.recur.CreateRecurringEvent(r.Context(), in)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createRuleResponse{Rule: rule, Template: tmpl})
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	opts := recurrence.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}

	rules, err := h.recur.Rules(r.Context(), chi.URLParam(r, "orgID"), opts)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rules)
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule ID")
		return
	}

	rule, err := h.recur.Rule(r.Context(), ruleID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// deleteRule stops a series. Instances already materialized are kept.
func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule ID")
		return
	}

	if err := h.recur.DeleteRecurringEvent(r.Context(), ruleID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
