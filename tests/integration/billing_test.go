//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "POST", "/api/v1/billing/webhook",
		map[string]any{"type": "checkout.session.completed"}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsigned webhook, got %d", resp.StatusCode)
	}
}

func TestCheckoutRejectsStandardTier(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterAndLogin(t, env, "billing1@example.com")

	resp := DoRequest(t, env, "POST", "/api/v1/billing/checkout",
		map[string]string{"tier": "standard"}, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for standard tier checkout, got %d", resp.StatusCode)
	}
}

func TestCheckoutRequiresAuth(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "POST", "/api/v1/billing/checkout",
		map[string]string{"tier": "legend"}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}
