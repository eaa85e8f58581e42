package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/feed"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/recurrence"
)

// listEvents is the read path: it materializes the organization up to the
// lookahead horizon and then lists.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOpts(w, r, 50)
	if !ok {
		return
	}

	events, err := h.recur.ListEvents(r.Context(), chi.URLParam(r, "orgID"), opts)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

type materializeResponse struct {
	*recur.Result
	Horizon string `json:"horizon"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) materialize(w http.ResponseWriter, r *http.Request) {
	horizon, err := queryDate(r, "horizon")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid horizon: want YYYY-MM-DD")
		return
	}
	limit := h.recur.Horizon()
	target := limit
	if horizon != nil {
		if horizon.After(limit) {
			writeError(w, http.StatusBadRequest,
				"horizon is beyond the lookahead limit "+recurrence.FormatDate(limit))
			return
		}
		target = *horizon
	}

	orgID := chi.URLParam(r, "orgID")
	res, err := h.recur.Materialize(r.Context(), orgID, target)
	resp := materializeResponse{Result: res, Horizon: recurrence.FormatDate(target)}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "materialize failed",
			"org_id", orgID,
			"horizon", resp.Horizon,
			"error", err,
		)
		resp.Error = "materialization incomplete"
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// calendar serves the organization's events as an iCalendar feed. Like
// listEvents it materializes first.
func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOpts(w, r, 0)
	if !ok {
		return
	}
	orgID := chi.URLParam(r, "orgID")

	events, err := h.recur.ListEvents(r.Context(), orgID, opts)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	name := queryParam(r, "name")
	if name == "" {
		name = orgID
	}

	w.Header().Set("Content-Type", feed.ContentType)
	if err := feed.Write(w, name, events); err != nil {
		h.logger.ErrorContext(r.Context(), "render calendar failed", "org_id", orgID, "error", err)
	}
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	evtID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	evt, err := h.recur.Event(r.Context(), evtID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, evt)
}

func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	evtID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	var patch event.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	evt, err := h.recur.UpdateEvent(r.Context(), evtID, &patch)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, evt)
}

func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	evtID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	if err := h.recur.DeleteEvent(r.Context(), evtID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// listOpts reads the listing query parameters. It writes a 400 and returns
// false on malformed input.
func listOpts(w http.ResponseWriter, r *http.Request, defaultLimit int) (event.ListOpts, bool) {
	opts := event.ListOpts{
		Offset:           queryInt(r, "offset", 0),
		Limit:            queryInt(r, "limit", defaultLimit),
		ExcludeTemplates: queryParam(r, "exclude_templates") == "true",
	}

	var err error
	if opts.From, err = queryDate(r, "from"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: want YYYY-MM-DD")
		return opts, false
	}
	if opts.To, err = queryDate(r, "to"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to: want YYYY-MM-DD")
		return opts, false
	}

	if v := queryParam(r, "rule_id"); v != "" {
		ruleID, err := id.ParseRuleID(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid rule_id")
			return opts, false
		}
		opts.RecurrenceRuleID = &ruleID
	}

	return opts, true
}
