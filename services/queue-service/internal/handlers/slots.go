package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/sqip/libs/httpx"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/schedule"
)

// Slots returns the slot grid of a scheduled category.
//
//	?date=YYYY-MM-DD, read in the category's time zone
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	cat, err := h.svc.Category(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := schedule.ParseDate(r.URL.Query().Get("date"), cat.Location())
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date, want "+schedule.DateLayout)
		return
	}
	day, err := h.svc.Slots(r.Context(), cat.ID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, day)
}
