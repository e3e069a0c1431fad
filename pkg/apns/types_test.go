package apns

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestBuildNotification_DefaultsTopicFromBundleID(t *testing.T) {
	req := Request{AppID: "com.acme.app", Title: "Hi"}
	n, err := buildNotification(req, "com.acme.app", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Topic != "com.acme.app" {
		t.Fatalf("expected default topic, got %q", n.Topic)
	}
}

func TestBuildNotification_ExplicitTopicWins(t *testing.T) {
	req := Request{AppID: "com.acme.app", Topic: "com.acme.app.voip", Title: "Hi"}
	n, err := buildNotification(req, "com.acme.app", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Topic != "com.acme.app.voip" {
		t.Fatalf("expected explicit topic to win, got %q", n.Topic)
	}
}

func TestBuildNotification_BackgroundPushTypeWhenSilent(t *testing.T) {
	req := Request{AppID: "com.acme.app", ContentAvailable: true}
	n, err := buildNotification(req, "com.acme.app", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.PushType != "background" {
		t.Fatalf("expected background push type, got %q", n.PushType)
	}
	if n.Priority != 5 {
		t.Fatalf("expected priority 5 for background push, got %d", n.Priority)
	}
}

func TestBuildNotification_AlertPushTypeWhenTitleOrBodyPresent(t *testing.T) {
	req := Request{AppID: "com.acme.app", Title: "Hi", ContentAvailable: true}
	n, err := buildNotification(req, "com.acme.app", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.PushType != "alert" {
		t.Fatalf("expected alert push type when alert content is present, got %q", n.PushType)
	}
	if n.Priority != 10 {
		t.Fatalf("expected default priority 10 for alert push, got %d", n.Priority)
	}
}

func TestBuildNotification_ExplicitPriorityOverridesDefault(t *testing.T) {
	p := 1
	req := Request{AppID: "com.acme.app", Title: "Hi", Priority: &p}
	n, err := buildNotification(req, "com.acme.app", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Priority != 1 {
		t.Fatalf("expected explicit priority to win, got %d", n.Priority)
	}
}

func TestBuildNotification_DefaultSoundOnlyWithAlert(t *testing.T) {
	req := Request{AppID: "com.acme.app", Title: "Hi"}
	n, err := buildNotification(req, "com.acme.app", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(n.Body, &decoded); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	aps := decoded["aps"].(map[string]any)
	if aps["sound"] != "default" {
		t.Fatalf("expected default sound with alert content, got %v", aps["sound"])
	}
}

func TestBuildNotification_NoSoundForSilentPush(t *testing.T) {
	req := Request{AppID: "com.acme.app", ContentAvailable: true}
	n, err := buildNotification(req, "com.acme.app", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(n.Body, &decoded); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	aps := decoded["aps"].(map[string]any)
	if _, ok := aps["sound"]; ok {
		t.Fatalf("expected no sound field for silent push, got %v", aps["sound"])
	}
}

func TestBuildNotification_DefaultTTLUsedWhenNotSupplied(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	req := Request{AppID: "com.acme.app", Title: "Hi"}
	n, err := buildNotification(req, "com.acme.app", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantExpiry := now.Add(defaultTTL).Unix()
	if n.Expiration != wantExpiry {
		t.Fatalf("expected default ttl (%d), got %d", wantExpiry, n.Expiration)
	}
}

func TestBuildNotification_ExplicitTTLNotCappedAtDefault(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	huge := int64(7200)
	req := Request{AppID: "com.acme.app", Title: "Hi", TTLSeconds: &huge}
	n, err := buildNotification(req, "com.acme.app", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantExpiry := now.Add(2 * time.Hour).Unix()
	if n.Expiration != wantExpiry {
		t.Fatalf("expected explicit ttl to pass through uncapped (%d), got %d", wantExpiry, n.Expiration)
	}
}

func TestBuildNotification_CustomDataFlattenedAlongsideAps(t *testing.T) {
	req := Request{AppID: "com.acme.app", Title: "Hi", Data: map[string]string{"k": "v"}}
	n, err := buildNotification(req, "com.acme.app", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(n.Body, &decoded); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if decoded["k"] != "v" {
		t.Fatalf("expected custom data key flattened into top-level body, got %+v", decoded)
	}
	if _, ok := decoded["aps"]; !ok {
		t.Fatalf("expected aps block present alongside custom data, got %+v", decoded)
	}
}

func TestIsInvalidToken(t *testing.T) {
	cases := []struct {
		status int
		reason string
		want   bool
	}{
		{410, "", true},
		{400, "BadDeviceToken", true},
		{400, "Unregistered", true},
		{400, "DeviceTokenNotForTopic", true},
		{400, "PayloadTooLarge", false},
		{500, "InternalServerError", false},
	}
	for _, c := range cases {
		if got := isInvalidToken(c.status, c.reason); got != c.want {
			t.Errorf("isInvalidToken(%d, %q) = %v, want %v", c.status, c.reason, got, c.want)
		}
	}
}

func TestDedupTokens(t *testing.T) {
	got := dedupTokens([]string{" a ", "a", "b", "", "b", "c"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestChunk(t *testing.T) {
	tokens := []string{"1", "2", "3", "4", "5"}
	chunks := chunk(tokens, 2)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 2 || len(chunks[2]) != 1 {
		t.Fatalf("unexpected chunk sizes: %v", chunks)
	}
}

func makeTokens(n int) []string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}
	return tokens
}

func TestChunk_APNsBatchBoundaries(t *testing.T) {
	cases := []struct {
		tokens       int
		wantInvokes  int
		wantLastSize int
	}{
		{1000, 1, 1000},
		{1001, 2, 1},
		{2500, 3, 500},
	}
	for _, tc := range cases {
		chunks := chunk(makeTokens(tc.tokens), 1000)
		if len(chunks) != tc.wantInvokes {
			t.Fatalf("%d tokens: expected %d provider invocations, got %d", tc.tokens, tc.wantInvokes, len(chunks))
		}
		if got := len(chunks[len(chunks)-1]); got != tc.wantLastSize {
			t.Fatalf("%d tokens: expected last chunk of %d, got %d", tc.tokens, tc.wantLastSize, got)
		}
	}
}
