package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wisbric/pushgate/internal/httpserver"
	"github.com/wisbric/pushgate/pkg/admission"
	"github.com/wisbric/pushgate/pkg/apns"
	"github.com/wisbric/pushgate/pkg/credential"
	"github.com/wisbric/pushgate/pkg/fcm"
)

// CredentialSource resolves a tenant's credential bundle. Satisfied by
// *credential.Service.
type CredentialSource interface {
	GetAppConfig(ctx context.Context, appID string) (*credential.AppConfig, error)
}

// IOSSender dispatches a built iOS send. Satisfied by *apns.Pool.
type IOSSender interface {
	Send(ctx context.Context, req apns.Request) (apns.Result, error)
}

// AndroidSender dispatches a built Android send. Satisfied by *fcm.Pool.
type AndroidSender interface {
	Send(ctx context.Context, req fcm.Request) (fcm.Result, error)
}

// Handler implements the §4.G dispatch contract for POST /v1/notify.
type Handler struct {
	creds  CredentialSource
	ios    IOSSender
	android AndroidSender
	logger *slog.Logger
}

// NewHandler creates a notify Handler.
func NewHandler(creds CredentialSource, ios IOSSender, android AndroidSender, logger *slog.Logger) *Handler {
	return &Handler{creds: creds, ios: ios, android: android, logger: logger}
}

// ServeHTTP handles POST /v1/notify. It expects the admission pipeline to
// have already stashed the raw request body and resolved API-key app id (if
// any) in the request context.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawBody := admission.RawBodyFromContext(r.Context())

	req, err := ParseAndValidate(rawBody)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			httpserver.RespondErrorDetails(w, http.StatusBadRequest, verr.Message, verr.Details)
			return
		}
		httpserver.RespondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if keyAppID, ok := admission.APIKeyAppIDFromContext(r.Context()); ok && keyAppID != req.AppID {
		httpserver.RespondError(w, http.StatusBadRequest, "appId does not match the authenticated API key")
		return
	}

	cfg, err := h.creds.GetAppConfig(r.Context(), req.AppID)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "app not found")
		return
	}

	switch req.Platform {
	case "ios":
		if cfg.IOS == nil {
			httpserver.RespondError(w, http.StatusBadRequest, "app has no iOS credential configured")
			return
		}
		h.dispatchIOS(w, r, req)
	case "android":
		if cfg.Android == nil {
			httpserver.RespondError(w, http.StatusBadRequest, "app has no Android credential configured")
			return
		}
		h.dispatchAndroid(w, r, req)
	default:
		httpserver.RespondError(w, http.StatusBadRequest, "platform must be \"ios\" or \"android\"")
	}
}

func (h *Handler) dispatchIOS(w http.ResponseWriter, r *http.Request, req *SubmitRequest) {
	apnsReq := apns.Request{
		AppID:      req.AppID,
		Tokens:     req.Tokens,
		Title:      req.Title,
		Body:       req.Body,
		Data:       req.Data,
		TTLSeconds: req.TTLSeconds,
	}
	if req.APNs != nil {
		apnsReq.Topic = req.APNs.Topic
		apnsReq.PushType = req.APNs.PushType
		apnsReq.Sound = req.APNs.Sound
		apnsReq.Badge = req.APNs.Badge
		apnsReq.Category = req.APNs.Category
		apnsReq.ThreadID = req.APNs.ThreadID
		apnsReq.MutableContent = req.APNs.MutableContent
		apnsReq.ContentAvailable = req.APNs.ContentAvailable
		apnsReq.Priority = req.APNs.Priority
		if req.APNs.TTLSeconds != nil {
			apnsReq.TTLSeconds = req.APNs.TTLSeconds
		}
	}

	result, err := h.ios.Send(r.Context(), apnsReq)
	if err != nil {
		h.logger.Error("apns dispatch failed", "app_id", req.AppID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to dispatch notification")
		return
	}

	h.respondResult(w, req.AppID, "ios", result.Requested, result.Sent, result.Failed, result.InvalidTokens)
}

func (h *Handler) dispatchAndroid(w http.ResponseWriter, r *http.Request, req *SubmitRequest) {
	fcmReq := fcm.Request{
		AppID:      req.AppID,
		Tokens:     req.Tokens,
		Title:      req.Title,
		Body:       req.Body,
		Data:       req.Data,
		TTLSeconds: req.TTLSeconds,
	}
	if req.FCM != nil {
		fcmReq.Priority = req.FCM.Priority
		fcmReq.CollapseKey = req.FCM.CollapseKey
		if req.FCM.TTLSeconds != nil {
			fcmReq.TTLSeconds = req.FCM.TTLSeconds
		}
	}

	result, err := h.android.Send(r.Context(), fcmReq)
	if err != nil {
		h.logger.Error("fcm dispatch failed", "app_id", req.AppID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "failed to dispatch notification")
		return
	}

	h.respondResult(w, req.AppID, "android", result.Requested, result.Sent, result.Failed, result.InvalidTokens)
}

func (h *Handler) respondResult(w http.ResponseWriter, appID, platform string, requested, sent, failed int, invalidTokens []string) {
	if invalidTokens == nil {
		invalidTokens = []string{}
	}
	platformResult := map[string]any{
		"requested":     requested,
		"sent":          sent,
		"failed":        failed,
		"invalidTokens": invalidTokens,
	}
	httpserver.OK(w, map[string]any{
		"appId": appID,
		"results": map[string]any{
			platform: platformResult,
		},
	})
}
