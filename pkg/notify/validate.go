package notify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError reports why a submit request was rejected, and optionally
// enumerates per-field problems.
type ValidationError struct {
	Message string
	Details []string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(message string, details ...string) *ValidationError {
	return &ValidationError{Message: message, Details: details}
}

// ParseAndValidate parses raw as a submit request body and applies every
// §4.E rule, returning a normalized SubmitRequest on success.
func ParseAndValidate(raw []byte) (*SubmitRequest, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, invalid("request body must be a JSON object")
	}

	if v, ok := doc["broadcast"]; ok {
		if b, isBool := v.(bool); isBool && b {
			return nil, invalid("broadcast is not supported")
		}
	}

	appID, ok := doc["appId"].(string)
	if !ok || appID == "" {
		return nil, invalid("appId is required")
	}

	platform, ok := doc["platform"].(string)
	if !ok || (platform != "ios" && platform != "android") {
		return nil, invalid("platform must be \"ios\" or \"android\"")
	}

	tokensRaw, ok := doc["tokens"].([]any)
	if !ok || len(tokensRaw) == 0 {
		return nil, invalid("tokens must be a non-empty array")
	}

	tokens := make([]string, 0, len(tokensRaw))
	seen := make(map[string]struct{}, len(tokensRaw))
	for _, v := range tokensRaw {
		s, isString := v.(string)
		if !isString {
			return nil, invalid("tokens must all be strings")
		}
		if len(s) > maxTokenLen {
			return nil, invalid(fmt.Sprintf("token exceeds maximum length of %d", maxTokenLen))
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		tokens = append(tokens, s)
	}
	if len(tokens) > maxTokens {
		return nil, invalid(fmt.Sprintf("tokens exceeds maximum of %d after deduplication", maxTokens))
	}

	var title, body string
	if nRaw, hasNotif := doc["notification"]; hasNotif && nRaw != nil {
		n, isMap := nRaw.(map[string]any)
		if !isMap {
			return nil, invalid("notification must be an object")
		}
		if t, ok := n["title"].(string); ok {
			title = strings.TrimSpace(t)
		}
		if b, ok := n["body"].(string); ok {
			body = strings.TrimSpace(b)
		}
	}
	if len(title) > maxTitleLen {
		return nil, invalid(fmt.Sprintf("notification.title exceeds maximum length of %d", maxTitleLen))
	}
	if len(body) > maxBodyLen {
		return nil, invalid(fmt.Sprintf("notification.body exceeds maximum length of %d", maxBodyLen))
	}

	data := map[string]string{}
	if dRaw, hasData := doc["data"]; hasData && dRaw != nil {
		d, isMap := dRaw.(map[string]any)
		if !isMap {
			return nil, invalid("data must be a flat object of scalar values")
		}
		for k, v := range d {
			s, err := coerceScalar(v)
			if err != nil {
				return nil, invalid(fmt.Sprintf("data.%s must be a scalar value", k))
			}
			data[k] = s
		}
	}

	if title == "" && body == "" && len(data) == 0 {
		return nil, invalid("request must include a notification or data payload")
	}

	var ttlSeconds *int64
	if v, ok := doc["ttlSeconds"]; ok && v != nil {
		n, isNum := v.(float64)
		if !isNum || n < 0 {
			return nil, invalid("ttlSeconds must be a non-negative number")
		}
		ttl := int64(n)
		ttlSeconds = &ttl
	}

	req := &SubmitRequest{
		AppID:      appID,
		Platform:   platform,
		Tokens:     tokens,
		Title:      title,
		Body:       body,
		Data:       data,
		TTLSeconds: ttlSeconds,
	}

	if apnsRaw, ok := doc["apns"].(map[string]any); ok {
		override, err := parseAPNsOverride(apnsRaw)
		if err != nil {
			return nil, err
		}
		req.APNs = override
	}
	if fcmRaw, ok := doc["fcm"].(map[string]any); ok {
		override, err := parseFCMOverride(fcmRaw)
		if err != nil {
			return nil, err
		}
		req.FCM = override
	}

	return req, nil
}

// coerceScalar stringifies a JSON scalar (string, number, bool). Nested
// objects, arrays, and null are rejected.
func coerceScalar(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case float64:
		return formatNumber(val), nil
	default:
		return "", fmt.Errorf("not a scalar")
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

func parseAPNsOverride(raw map[string]any) (*APNsOverride, error) {
	o := &APNsOverride{}
	if v, ok := raw["topic"].(string); ok {
		o.Topic = v
	}
	if v, ok := raw["pushType"].(string); ok {
		o.PushType = v
	}
	if v, ok := raw["sound"].(string); ok {
		o.Sound = v
	}
	if v, ok := raw["category"].(string); ok {
		o.Category = v
	}
	if v, ok := raw["threadId"].(string); ok {
		o.ThreadID = v
	}
	if v, ok := raw["mutableContent"].(bool); ok {
		o.MutableContent = v
	}
	if v, ok := raw["contentAvailable"].(bool); ok {
		o.ContentAvailable = v
	}
	if v, ok := raw["badge"].(float64); ok {
		b := int(v)
		o.Badge = &b
	}
	if v, ok := raw["priority"].(float64); ok {
		p := int(v)
		o.Priority = &p
	}
	if v, ok := raw["ttlSeconds"].(float64); ok {
		t := int64(v)
		o.TTLSeconds = &t
	}
	return o, nil
}

func parseFCMOverride(raw map[string]any) (*FCMOverride, error) {
	o := &FCMOverride{}
	if v, ok := raw["priority"].(string); ok {
		if v != "high" && v != "normal" {
			return nil, invalid("fcm.priority must be \"high\" or \"normal\"")
		}
		o.Priority = v
	}
	if v, ok := raw["collapseKey"].(string); ok {
		o.CollapseKey = v
	}
	if v, ok := raw["ttlSeconds"].(float64); ok {
		t := int64(v)
		o.TTLSeconds = &t
	}
	return o, nil
}
