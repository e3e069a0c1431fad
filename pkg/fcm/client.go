package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const sendEndpointFormat = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

// client is one tenant's FCM v1 HTTP client, authenticated with a
// service-account JWT bearer token minted from inline credential JSON.
type client struct {
	httpClient *http.Client
	tokens     oauth2.TokenSource
	projectID  string
}

func newClient(ctx context.Context, serviceAccountJSON, projectID string) (*client, error) {
	cfg, err := google.JWTConfigFromJSON([]byte(serviceAccountJSON), messagingScope)
	if err != nil {
		return nil, fmt.Errorf("parsing service account JSON: %w", err)
	}

	return &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     cfg.TokenSource(ctx),
		projectID:  projectID,
	}, nil
}

// sendResult is one token's outcome from a single FCM v1 call.
type sendResult struct {
	Token     string
	Succeeded bool
	ErrorCode string
}

func (c *client) send(ctx context.Context, m message) sendResult {
	body, err := json.Marshal(sendEnvelope{Message: m})
	if err != nil {
		return sendResult{Token: m.Token, ErrorCode: "internal"}
	}

	token, err := c.tokens.Token()
	if err != nil {
		return sendResult{Token: m.Token, ErrorCode: "internal"}
	}

	url := fmt.Sprintf(sendEndpointFormat, c.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return sendResult{Token: m.Token, ErrorCode: "internal"}
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sendResult{Token: m.Token, ErrorCode: "unreachable"}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return sendResult{Token: m.Token, Succeeded: true}
	}

	return sendResult{Token: m.Token, ErrorCode: classifyErrorBody(resp.Body)}
}

// fcmErrorBody is the FCM v1 error envelope shape, including the
// google.firebase.fcm.v1.FcmError detail that carries the errorCode enum.
type fcmErrorBody struct {
	Error struct {
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// classifyErrorBody reads an FCM v1 error response body and maps its
// details[].errorCode to the messaging/<kebab> classification code.
func classifyErrorBody(r io.Reader) string {
	var errBody fcmErrorBody
	_ = json.NewDecoder(r).Decode(&errBody)

	for _, d := range errBody.Error.Details {
		if d.ErrorCode != "" {
			return mapErrorCode(d.ErrorCode)
		}
	}
	return ""
}

// mapErrorCode translates FCM v1's details[].errorCode enum to the
// messaging/<kebab> codes isInvalidToken classifies against. UNREGISTERED
// and INVALID_ARGUMENT are FCM v1's token-rejection codes and map onto the
// same classification the legacy firebase-admin error names use; anything
// else is just kebab-cased as-is.
func mapErrorCode(code string) string {
	switch code {
	case "UNREGISTERED":
		return "messaging/registration-token-not-registered"
	case "INVALID_ARGUMENT":
		return "messaging/invalid-registration-token"
	default:
		return "messaging/" + toSnakeErrorCode(code)
	}
}

// toSnakeErrorCode converts FCM's SCREAMING_SNAKE_CASE error codes
// (e.g. UNREGISTERED) to the messaging/<kebab> form used for classification.
func toSnakeErrorCode(code string) string {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		ch := code[i]
		if ch == '_' {
			out = append(out, '-')
			continue
		}
		if ch >= 'A' && ch <= 'Z' {
			out = append(out, ch-'A'+'a')
			continue
		}
		out = append(out, ch)
	}
	return string(out)
}
