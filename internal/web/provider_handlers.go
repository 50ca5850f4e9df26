package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/justestif/coretet/internal/providers"
)

// ProviderSessions hands out the provider registry for a user.
type ProviderSessions interface {
	Get(userID string) *providers.Registry
}

// ConsentFlow runs a provider's OAuth consent.
type ConsentFlow interface {
	AuthURL(userID string) (string, error)
	Complete(ctx context.Context, state, code string) (string, error)
}

var (
	_ ProviderSessions = (*providers.Sessions)(nil)
	_ ConsentFlow      = (*providers.GoogleOAuth)(nil)
)

type providersResponse struct {
	Providers []providers.State `json:"providers"`
	Active    *providers.Name   `json:"active"`
}

func newProvidersResponse(reg *providers.Registry) providersResponse {
	resp := providersResponse{Providers: reg.States()}
	if name, ok := reg.Active(); ok {
		resp.Active = &name
	}
	return resp
}

// providerName parses the {name} URL parameter, writing a 404 when unknown.
func (h *Handlers) providerName(w http.ResponseWriter, r *http.Request) (providers.Name, bool) {
	name, err := providers.ParseName(chi.URLParam(r, "name"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return "", false
	}
	return name, true
}

// ListProviders handles GET /providers.
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	reg := h.providers.Get(identity(r).ID)
	writeJSON(w, http.StatusOK, newProvidersResponse(reg))
}

// ConnectProvider handles POST /providers/{name}/connect. When the user has
// not granted access yet the response carries the consent URL.
func (h *Handlers) ConnectProvider(w http.ResponseWriter, r *http.Request) {
	name, ok := h.providerName(w, r)
	if !ok {
		return
	}
	caller := identity(r)
	reg := h.providers.Get(caller.ID)

	err := reg.Connect(r.Context(), name)
	if err != nil && providers.IsAuthorizationRequired(err) && h.consent != nil {
		authURL, urlErr := h.consent.AuthURL(caller.ID)
		if urlErr != nil {
			writeAppError(w, r, h.logger, urlErr)
			return
		}
		state, _ := reg.State(name)
		writeJSON(w, http.StatusOK, map[string]any{
			"provider": state,
			"authUrl":  authURL,
		})
		return
	}
	if err != nil {
		h.writeProviderError(w, r, err)
		return
	}

	state, _ := reg.State(name)
	writeJSON(w, http.StatusOK, map[string]any{"provider": state})
}

// DisconnectProvider handles POST /providers/{name}/disconnect.
func (h *Handlers) DisconnectProvider(w http.ResponseWriter, r *http.Request) {
	name, ok := h.providerName(w, r)
	if !ok {
		return
	}
	reg := h.providers.Get(identity(r).ID)

	if err := reg.Disconnect(r.Context(), name); err != nil {
		h.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProvidersResponse(reg))
}

// ActivateProvider handles POST /providers/{name}/activate.
func (h *Handlers) ActivateProvider(w http.ResponseWriter, r *http.Request) {
	name, ok := h.providerName(w, r)
	if !ok {
		return
	}
	reg := h.providers.Get(identity(r).ID)

	if err := reg.SwitchActive(name); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newProvidersResponse(reg))
}

// ProviderQuota handles GET /providers/{name}/quota. The quota is null when
// the provider is not connected or the lookup failed.
func (h *Handlers) ProviderQuota(w http.ResponseWriter, r *http.Request) {
	name, ok := h.providerName(w, r)
	if !ok {
		return
	}
	reg := h.providers.Get(identity(r).ID)
	writeJSON(w, http.StatusOK, map[string]any{"quota": reg.Quota(r.Context(), name)})
}

// ProviderFiles handles GET /providers/{name}/files.
func (h *Handlers) ProviderFiles(w http.ResponseWriter, r *http.Request) {
	name, ok := h.providerName(w, r)
	if !ok {
		return
	}
	reg := h.providers.Get(identity(r).ID)

	files, err := reg.List(r.Context(), name)
	if err != nil {
		h.writeProviderError(w, r, err)
		return
	}
	if files == nil {
		files = []providers.File{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// GoogleCallback handles GET /providers/google_drive/callback, the redirect
// target of the Google consent screen.
func (h *Handlers) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.consent == nil {
		writeError(w, http.StatusNotImplemented, "google drive is not configured")
		return
	}

	q := r.URL.Query()
	if errMsg := q.Get("error"); errMsg != "" {
		h.logger.Warn("oauth consent denied", "error", errMsg)
		writeError(w, http.StatusBadRequest, "authorization failed: "+errMsg)
		return
	}

	userID, err := h.consent.Complete(r.Context(), q.Get("state"), q.Get("code"))
	if errors.Is(err, providers.ErrInvalidState) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	reg := h.providers.Get(userID)
	if err := reg.Connect(r.Context(), providers.GoogleDrive); err != nil {
		h.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProvidersResponse(reg))
}

// writeProviderError maps provider failures that the shared taxonomy does
// not cover.
func (h *Handlers) writeProviderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, providers.ErrNotConnected):
		writeError(w, http.StatusConflict, err.Error())
	case providers.IsAuthorizationRequired(err):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, providers.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeAppError(w, r, h.logger, err)
	}
}
