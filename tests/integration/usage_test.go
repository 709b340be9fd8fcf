//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"
)

func TestUsageSnapshotTracksConsumption(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterAndLogin(t, env, "usage1@example.com")

	convID := createConversation(t, env, token, "Usage check")
	sendMessage(t, env, token, convID, "one")
	sendMessage(t, env, token, convID, "two")

	resp := DoRequest(t, env, "GET", "/api/v1/me/usage", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("getting usage: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)

	responses := data["responses"].(map[string]any)
	if int(responses["used"].(float64)) != 2 {
		t.Fatalf("expected 2 responses used, got %v", responses["used"])
	}
	if int(responses["limit"].(float64)) != testResponseLimit {
		t.Fatalf("expected limit %d, got %v", testResponseLimit, responses["limit"])
	}
	if responses["tier"] != "standard" {
		t.Fatalf("expected standard tier, got %v", responses["tier"])
	}

	premium := data["premium_calls"].(map[string]any)
	if int(premium["used"].(float64)) != 0 {
		t.Fatalf("premium calls should be untouched, got %v", premium["used"])
	}
}

func TestResponseQuotaExhaustion(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterAndLogin(t, env, "usage2@example.com")

	convID := createConversation(t, env, token, "Exhaust me")
	for i := 0; i < testResponseLimit; i++ {
		sendMessage(t, env, token, convID, fmt.Sprintf("message %d", i))
	}

	path := fmt.Sprintf("/api/v1/conversations/%s/messages", convID)
	resp := DoRequest(t, env, "POST", path, map[string]any{"content": "one too many"}, token)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the response limit, got %d", resp.StatusCode)
	}

	// The denial body carries the usage snapshot.
	result := ParseResponse(t, resp)
	usage, ok := result["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected usage payload in 429 body, got %v", result)
	}
	if int(usage["used"].(float64)) != testResponseLimit {
		t.Fatalf("expected used=%d in denial, got %v", testResponseLimit, usage["used"])
	}
	if int(usage["remaining"].(float64)) != 0 {
		t.Fatalf("expected remaining=0 in denial, got %v", usage["remaining"])
	}

	// The denied request must not have written any messages.
	resp = DoRequest(t, env, "GET", path, nil, token)
	result = ParseResponse(t, resp)
	msgs := result["data"].([]any)
	if len(msgs) != 2*testResponseLimit {
		t.Fatalf("expected %d messages, got %d", 2*testResponseLimit, len(msgs))
	}
}

func TestPremiumQuotaExhaustion(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterAndLogin(t, env, "usage3@example.com")

	convID := createConversation(t, env, token, "Premium")
	path := fmt.Sprintf("/api/v1/conversations/%s/messages", convID)

	resp := DoRequest(t, env, "POST", path,
		map[string]any{"content": "deep question", "premium": true}, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first premium call should pass, got %d", resp.StatusCode)
	}

	resp = DoRequest(t, env, "POST", path,
		map[string]any{"content": "another deep question", "premium": true}, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the premium limit, got %d", resp.StatusCode)
	}

	// Non-premium messages still work with responses quota remaining.
	resp = DoRequest(t, env, "POST", path, map[string]any{"content": "plain question"}, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("plain message should still pass, got %d", resp.StatusCode)
	}
}
