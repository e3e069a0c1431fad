package fcm

import (
	"fmt"
	"testing"
)

func TestBuildMessage_NotificationOmittedWhenTitleAndBodyEmpty(t *testing.T) {
	req := Request{AppID: "com.acme.app", Data: map[string]string{"k": "v"}}
	m := buildMessage(req, "tok", 0)
	if m.Notification != nil {
		t.Fatalf("expected no notification block, got %+v", m.Notification)
	}
	if m.Data["k"] != "v" {
		t.Fatalf("expected data to be carried, got %+v", m.Data)
	}
}

func TestBuildMessage_NotificationPresentWhenTitleOrBodySet(t *testing.T) {
	req := Request{AppID: "com.acme.app", Title: "Hi"}
	m := buildMessage(req, "tok", 0)
	if m.Notification == nil || m.Notification.Title != "Hi" {
		t.Fatalf("expected notification block with title, got %+v", m.Notification)
	}
}

func TestBuildMessage_AndroidBlockOmittedWhenNoOverridesAndZeroTTL(t *testing.T) {
	req := Request{AppID: "com.acme.app", Title: "Hi"}
	m := buildMessage(req, "tok", 0)
	if m.Android != nil {
		t.Fatalf("expected no android block when nothing to configure, got %+v", m.Android)
	}
}

func TestBuildMessage_AndroidTTLConvertedToMillis(t *testing.T) {
	req := Request{AppID: "com.acme.app", Title: "Hi"}
	m := buildMessage(req, "tok", 120)
	if m.Android == nil {
		t.Fatal("expected android block when default ttl is set")
	}
	if m.Android.TTLMillis != 120000 {
		t.Fatalf("expected 120000ms, got %d", m.Android.TTLMillis)
	}
}

func TestBuildMessage_ExplicitTTLOverridesDefault(t *testing.T) {
	ttl := int64(30)
	req := Request{AppID: "com.acme.app", Title: "Hi", TTLSeconds: &ttl}
	m := buildMessage(req, "tok", 300)
	if m.Android == nil || m.Android.TTLMillis != 30000 {
		t.Fatalf("expected explicit ttl to override default, got %+v", m.Android)
	}
}

func TestBuildMessage_PriorityAndCollapseKeyCarried(t *testing.T) {
	req := Request{AppID: "com.acme.app", Title: "Hi", Priority: "high", CollapseKey: "digest"}
	m := buildMessage(req, "tok", 0)
	if m.Android == nil || m.Android.Priority != "high" || m.Android.CollapseKey != "digest" {
		t.Fatalf("expected android priority/collapse key set, got %+v", m.Android)
	}
}

func TestIsInvalidToken(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"messaging/registration-token-not-registered", true},
		{"messaging/invalid-registration-token", true},
		{"messaging/internal-error", false},
		{"messaging/quota-exceeded", false},
	}
	for _, c := range cases {
		if got := isInvalidToken(c.code); got != c.want {
			t.Errorf("isInvalidToken(%q) = %v, want %v", c.code, got, c.want)
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

func TestChunk_FCMBatchBoundary(t *testing.T) {
	tokens := make([]string, 1001)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}
	chunks := chunk(tokens, 500)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 multicast batches for 1001 tokens, got %d", len(chunks))
	}
	if len(chunks[0]) != 500 || len(chunks[1]) != 500 || len(chunks[2]) != 1 {
		t.Fatalf("unexpected batch sizes: %v, %v, %v", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}
