package handlers

import (
	"context"
	"net/http"
	"net/url"

	"issuesmap/internal/issues"
)

// HandleAdminSettings returns every option value. Moderators only.
func (h *Handler) HandleAdminSettings(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "get_settings", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		values, err := h.issues.Settings(ctx, a)
		if err != nil {
			return nil, err
		}
		return &issues.Result{Data: values}, nil
	})
}

// HandleAdminSettingsUpdate stores changed option values. Moderators only.
func (h *Handler) HandleAdminSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "update_settings", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		changes := make(map[string]string)
		err := decodeRequest(r, &changes, func(form url.Values) {
			for key := range form {
				changes[key] = form.Get(key)
			}
		})
		if err != nil {
			return nil, err
		}
		return h.issues.UpdateSettings(ctx, a, changes)
	})
}
