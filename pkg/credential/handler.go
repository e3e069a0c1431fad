package credential

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/pushgate/internal/httpserver"
)

// Handler exposes the admin surface: the §4.A operations the admin UI needs,
// plus bootstrap login for the single admin account.
type Handler struct {
	service    *Service
	sessionMgr *SessionManager
	logger     *slog.Logger
}

// NewHandler creates an admin Handler.
func NewHandler(service *Service, sessionMgr *SessionManager, logger *slog.Logger) *Handler {
	return &Handler{service: service, sessionMgr: sessionMgr, logger: logger}
}

// Routes mounts the public auth endpoints and the session-guarded app/credential CRUD.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)
		r.Get("/apps", h.listApps)
		r.Post("/apps", h.createApp)
		r.Get("/apps/{appID}", h.getApp)
		r.Put("/apps/{appID}", h.updateApp)
		r.Post("/apps/{appID}/rotate-secret", h.rotateSecret)
		r.Put("/apps/{appID}/ios", h.upsertIos)
		r.Delete("/apps/{appID}/ios", h.deleteIos)
		r.Put("/apps/{appID}/android", h.upsertAndroid)
		r.Delete("/apps/{appID}/android", h.deleteAndroid)
	})

	return r
}

// requireSession is the admin UI's equivalent of the data plane's admission
// pipeline: a single session-cookie check in front of every write operation.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.sessionMgr.ValidateCookie(r); err != nil {
			httpserver.RespondError(w, http.StatusUnauthorized, "admin session required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	admin, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	claims := SessionClaims{Subject: admin.Username, Username: admin.Username}
	if err := h.sessionMgr.IssueCookie(w, claims); err != nil {
		h.logger.Error("admin login: issuing session cookie", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}

	httpserver.OK(w, map[string]any{"username": admin.Username})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessionMgr.ClearCookie(w)
	httpserver.OK(w, nil)
}

type appResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Enabled     bool   `json:"enabled"`
}

func toAppResponse(a App) appResponse {
	return appResponse{ID: a.ID, DisplayName: a.DisplayName, Enabled: a.Enabled}
}

func (h *Handler) listApps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.service.ListApps(r.Context())
	if err != nil {
		h.logger.Error("listing apps", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to list apps")
		return
	}

	out := make([]appResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, toAppResponse(a))
	}
	httpserver.OK(w, map[string]any{"apps": out})
}

type createAppRequest struct {
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) createApp(w http.ResponseWriter, r *http.Request) {
	var req createAppRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if !ValidAppID(req.ID) {
		httpserver.RespondError(w, http.StatusBadRequest, "id must match [A-Za-z0-9._-]+ and contain a dot")
		return
	}

	app, err := h.service.CreateApp(r.Context(), req.ID, req.DisplayName)
	if err != nil {
		if err == ErrAppExists {
			httpserver.RespondError(w, http.StatusBadRequest, "app already exists")
			return
		}
		h.logger.Error("creating app", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to create app")
		return
	}

	httpserver.OK(w, map[string]any{"app": toAppResponse(*app), "api_secret": app.APISecret})
}

func (h *Handler) getApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appID")
	app, err := h.service.GetApp(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "app not found")
		return
	}
	httpserver.OK(w, map[string]any{"app": toAppResponse(*app)})
}

type updateAppRequest struct {
	DisplayName string `json:"display_name"`
	Enabled     bool   `json:"enabled"`
}

func (h *Handler) updateApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appID")
	var req updateAppRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	app, err := h.service.UpdateApp(r.Context(), id, req.DisplayName, req.Enabled)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "app not found")
		return
	}
	httpserver.OK(w, map[string]any{"app": toAppResponse(*app)})
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appID")
	secret, err := h.service.RotateSecret(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "app not found")
		return
	}
	httpserver.OK(w, map[string]any{"api_secret": secret})
}

type upsertIosRequest struct {
	TeamID     string `json:"team_id" validate:"required"`
	KeyID      string `json:"key_id" validate:"required"`
	PrivateKey string `json:"private_key" validate:"required"`
	Production bool   `json:"production"`
}

func (h *Handler) upsertIos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appID")
	var req upsertIosRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if !strings.Contains(req.PrivateKey, "BEGIN PRIVATE KEY") && !strings.Contains(req.PrivateKey, "BEGIN EC PRIVATE KEY") {
		httpserver.RespondError(w, http.StatusBadRequest, "private_key must be inline PEM")
		return
	}

	cred := IOSCredential{
		AppID:      id,
		TeamID:     req.TeamID,
		KeyID:      req.KeyID,
		PrivateKey: req.PrivateKey,
		Production: req.Production,
	}
	if err := h.service.UpsertIosConfig(r.Context(), cred); err != nil {
		h.logger.Error("upserting ios credential", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to save ios credential")
		return
	}
	httpserver.OK(w, nil)
}

func (h *Handler) deleteIos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appID")
	if err := h.service.DeleteIosConfig(r.Context(), id); err != nil {
		h.logger.Error("deleting ios credential", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to delete ios credential")
		return
	}
	httpserver.OK(w, nil)
}

type upsertAndroidRequest struct {
	ServiceAccountJSON string `json:"service_account_json" validate:"required"`
}

func (h *Handler) upsertAndroid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appID")
	var req upsertAndroidRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(req.ServiceAccountJSON), &parsed); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "service_account_json must parse as JSON")
		return
	}
	_, hasEmail := parsed["client_email"]
	_, hasKey := parsed["private_key"]
	if !hasEmail || !hasKey {
		httpserver.RespondError(w, http.StatusBadRequest, "service_account_json must contain client_email and private_key")
		return
	}

	cred := AndroidCredential{AppID: id, ServiceAccountJSON: req.ServiceAccountJSON}
	if err := h.service.UpsertAndroidConfig(r.Context(), cred); err != nil {
		h.logger.Error("upserting android credential", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to save android credential")
		return
	}
	httpserver.OK(w, nil)
}

func (h *Handler) deleteAndroid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appID")
	if err := h.service.DeleteAndroidConfig(r.Context(), id); err != nil {
		h.logger.Error("deleting android credential", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to delete android credential")
		return
	}
	httpserver.OK(w, nil)
}
