// Package apns implements the per-tenant APNs HTTP/2 provider pool: building
// notification payloads, batching sends, and classifying invalid tokens.
package apns

import (
	"encoding/json"
	"strings"
	"time"
)

// defaultTTL is the expiration horizon used when the caller does not
// supply ttlSeconds; an explicit ttlSeconds is used as-is, uncapped.
const defaultTTL = 3600 * time.Second

// Request is the normalized, already-validated submission for one send.
type Request struct {
	AppID            string
	Tokens           []string
	Title            string
	Body             string
	Data             map[string]string
	TTLSeconds       *int64
	Topic            string
	PushType         string
	Sound            string
	Badge            *int
	Category         string
	ThreadID         string
	MutableContent   bool
	ContentAvailable bool
	Priority         *int
}

// payload is the APNs aps-wrapped JSON body sent for every token in a batch.
type payload struct {
	aps  apsBlock
	data map[string]string
}

type apsBlock struct {
	Alert            *alertBlock `json:"alert,omitempty"`
	Sound            string      `json:"sound,omitempty"`
	Badge            *int        `json:"badge,omitempty"`
	Category         string      `json:"category,omitempty"`
	ThreadID         string      `json:"thread-id,omitempty"`
	MutableContent   int         `json:"mutable-content,omitempty"`
	ContentAvailable int         `json:"content-available,omitempty"`
}

type alertBlock struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// MarshalJSON flattens aps plus the custom data keys into one JSON object,
// matching the wire shape APNs expects: {"aps": {...}, "key": "value", ...}.
func (p payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.data)+1)
	for k, v := range p.data {
		out[k] = v
	}
	out["aps"] = p.aps
	return json.Marshal(out)
}

// builtNotification is the fully resolved, per-send set of APNs wire
// parameters: a payload body plus the headers that ride alongside it.
type builtNotification struct {
	Topic      string
	PushType   string
	Priority   int
	Expiration int64
	Body       []byte
}

// buildNotification derives the wire-level notification from a Request per
// the bundle-id default, push-type resolution, and expiry/priority rules.
func buildNotification(req Request, defaultTopic string, now time.Time) (builtNotification, error) {
	topic := req.Topic
	if topic == "" {
		topic = defaultTopic
	}

	var alert *alertBlock
	if req.Title != "" || req.Body != "" {
		alert = &alertBlock{Title: req.Title, Body: req.Body}
	}

	pushType := req.PushType
	if pushType == "" {
		if req.ContentAvailable && alert == nil {
			pushType = "background"
		} else {
			pushType = "alert"
		}
	}

	sound := req.Sound
	if sound == "" && alert != nil {
		sound = "default"
	}

	aps := apsBlock{Alert: alert, Sound: sound, Badge: req.Badge, Category: req.Category, ThreadID: req.ThreadID}
	if req.MutableContent {
		aps.MutableContent = 1
	}
	if req.ContentAvailable {
		aps.ContentAvailable = 1
	}

	ttl := defaultTTL
	if req.TTLSeconds != nil {
		ttl = time.Duration(*req.TTLSeconds) * time.Second
	}
	expiry := now.Add(ttl)

	priority := 10
	if pushType == "background" {
		priority = 5
	}
	if req.Priority != nil {
		priority = *req.Priority
	}

	body, err := (payload{aps: aps, data: req.Data}).MarshalJSON()
	if err != nil {
		return builtNotification{}, err
	}

	return builtNotification{
		Topic:      topic,
		PushType:   pushType,
		Priority:   priority,
		Expiration: expiry.Unix(),
		Body:       body,
	}, nil
}

// Result is the aggregate outcome of sending one batch to one tenant.
type Result struct {
	Requested     int      `json:"requested"`
	Sent          int      `json:"sent"`
	Failed        int      `json:"failed"`
	InvalidTokens []string `json:"invalidTokens"`
}

// invalidReasons are the APNs JSON `reason` values that mark a token as
// permanently invalid rather than a transient delivery failure.
var invalidReasons = map[string]bool{
	"BadDeviceToken":         true,
	"Unregistered":           true,
	"DeviceTokenNotForTopic": true,
}

func isInvalidToken(status int, reason string) bool {
	return status == 410 || invalidReasons[reason]
}

// dedupTokens removes duplicate tokens, preserving first occurrence.
func dedupTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// chunk splits tokens into groups of at most size.
func chunk(tokens []string, size int) [][]string {
	if len(tokens) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(tokens)+size-1)/size)
	for len(tokens) > 0 {
		n := size
		if n > len(tokens) {
			n = len(tokens)
		}
		chunks = append(chunks, tokens[:n])
		tokens = tokens[n:]
	}
	return chunks
}
