package admission

import (
	"encoding/json"
	"net/http"
	"strings"
)

// resolveAppIDFromRequest extracts the app id the API-key and HMAC stages
// authenticate against: the captured raw body's "appId" field, falling back
// to the X-App-Id header.
func resolveAppIDFromRequest(r *http.Request) string {
	if raw := RawBodyFromContext(r.Context()); len(raw) > 0 {
		var doc struct {
			AppID string `json:"appId"`
		}
		if err := json.Unmarshal(raw, &doc); err == nil && doc.AppID != "" {
			return doc.AppID
		}
	}
	return strings.TrimSpace(r.Header.Get("X-App-Id"))
}
