package handlers

import (
	"context"
	"net/http"
	"net/url"

	"issuesmap/internal/accounts"
	"issuesmap/internal/errs"
	"issuesmap/internal/identity"
	"issuesmap/internal/issues"
	"issuesmap/internal/metrics"
	"issuesmap/internal/permissions"

	"github.com/rs/zerolog/log"
)

type meView struct {
	Identity     identity.Identity                `json:"identity"`
	Capabilities map[permissions.Capability]bool `json:"capabilities"`
	CentreLat    float64                          `json:"centre_lat"`
	CentreLng    float64                          `json:"centre_lng"`
	ZoomMapView  int                              `json:"zoom_map_view"`
}

// HandleAPIMe returns the acting identity and what it may do.
func (h *Handler) HandleAPIMe(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "me", func(_ context.Context, a *issues.Actor) (*issues.Result, error) {
		return &issues.Result{Data: meView{
			Identity:     a.Identity,
			Capabilities: a.Capabilities(),
			CentreLat:    a.Settings.CentreLat,
			CentreLng:    a.Settings.CentreLng,
			ZoomMapView:  a.Settings.ZoomMapView,
		}}, nil
	})
}

// HandleRegister creates an account and logs it in.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "register", func(ctx context.Context, _ *issues.Actor) (*issues.Result, error) {
		var reg accounts.Registration
		err := decodeRequest(r, &reg, func(form url.Values) {
			reg.Login = form.Get("login")
			reg.Email = form.Get("email")
			reg.DisplayName = form.Get("display_name")
			reg.Password = form.Get("password")
		})
		if err != nil {
			return nil, err
		}

		user, err := h.accounts.Register(ctx, reg)
		if err != nil {
			return nil, err
		}
		if err := h.startSession(w, user.ID); err != nil {
			return nil, err
		}
		return &issues.Result{Message: "Your account has been created.", Redirect: "/", Data: user}, nil
	})
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// HandleLogin checks credentials and sets the session cookie.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "login", func(ctx context.Context, _ *issues.Actor) (*issues.Result, error) {
		var req loginRequest
		err := decodeRequest(r, &req, func(form url.Values) {
			req.Login = form.Get("login")
			req.Password = form.Get("password")
		})
		if err != nil {
			return nil, err
		}

		user, err := h.accounts.Authenticate(ctx, req.Login, req.Password)
		if err != nil {
			metrics.AuthLoginsTotal.WithLabelValues("failure").Inc()
			return nil, err
		}
		metrics.AuthLoginsTotal.WithLabelValues("success").Inc()

		if err := h.startSession(w, user.ID); err != nil {
			return nil, err
		}
		log.Info().Str("user_id", user.ID).Msg("User logged in")
		return &issues.Result{Message: "You are now logged in.", Redirect: "/", Data: user}, nil
	})
}

// HandleLogout clears the session cookie. The anonymous identity, if any, is
// left untouched.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "logout", func(context.Context, *issues.Actor) (*issues.Result, error) {
		http.SetCookie(w, h.resolver.ClearSessionCookie())
		return &issues.Result{Message: "You have been logged out.", Redirect: "/"}, nil
	})
}

func (h *Handler) startSession(w http.ResponseWriter, userID string) error {
	cookie, err := h.resolver.SessionCookie(userID)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "", err)
	}
	http.SetCookie(w, cookie)
	return nil
}
