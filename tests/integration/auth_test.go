//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestRegisterAndLogin(t *testing.T) {
	env := SetupTestEnv(t)

	result := RegisterUser(t, env, "alice@example.com", "password123")
	data := result["data"].(map[string]any)
	if data["access_token"] == "" || data["refresh_token"] == "" {
		t.Fatal("register did not return a token pair")
	}

	token := LoginUser(t, env, "alice@example.com", "password123")
	if token == "" {
		t.Fatal("login did not return an access token")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := SetupTestEnv(t)

	RegisterUser(t, env, "dup@example.com", "password123")

	body := map[string]string{"email": "dup@example.com", "password": "password123"}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", resp.StatusCode)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := SetupTestEnv(t)

	RegisterUser(t, env, "carol@example.com", "password123")

	body := map[string]string{"email": "carol@example.com", "password": "wrong-password"}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}
}

func TestMeReturnsProfileWithTier(t *testing.T) {
	env := SetupTestEnv(t)

	token := RegisterAndLogin(t, env, "me@example.com")

	resp := DoRequest(t, env, "GET", "/api/v1/me", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	if data["email"] != "me@example.com" {
		t.Fatalf("unexpected email: %v", data["email"])
	}
	if data["tier"] != "standard" {
		t.Fatalf("new users should start on the standard tier, got %v", data["tier"])
	}
}

func TestMeRequiresAuth(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "GET", "/api/v1/me", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	env := SetupTestEnv(t)

	result := RegisterUser(t, env, "refresh@example.com", "password123")
	data := result["data"].(map[string]any)
	refreshToken := data["refresh_token"].(string)

	body := map[string]string{"refresh_token": refreshToken}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/refresh", body, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on refresh, got %d", resp.StatusCode)
	}
	refreshed := ParseResponse(t, resp)
	newData := refreshed["data"].(map[string]any)
	if newData["access_token"] == "" {
		t.Fatal("refresh did not return a new access token")
	}
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	env := SetupTestEnv(t)

	result := RegisterUser(t, env, "logout@example.com", "password123")
	data := result["data"].(map[string]any)
	accessToken := data["access_token"].(string)
	refreshToken := data["refresh_token"].(string)

	resp := DoRequest(t, env, "POST", "/api/v1/auth/logout", nil, accessToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on logout, got %d", resp.StatusCode)
	}

	body := map[string]string{"refresh_token": refreshToken}
	resp = DoRequest(t, env, "POST", "/api/v1/auth/refresh", body, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 refreshing after logout, got %d", resp.StatusCode)
	}
}
