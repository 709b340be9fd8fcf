//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func createConversation(t *testing.T, env *TestEnv, token, title string) string {
	t.Helper()
	resp := DoRequest(t, env, "POST", "/api/v1/conversations", map[string]string{"title": title}, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("creating conversation: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	return data["id"].(string)
}

func sendMessage(t *testing.T, env *TestEnv, token, convID, content string) map[string]any {
	t.Helper()
	path := fmt.Sprintf("/api/v1/conversations/%s/messages", convID)
	resp := DoRequest(t, env, "POST", path, map[string]any{"content": content}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sending message: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	return result["data"].(map[string]any)
}

func TestSendMessagePersistsBothTurns(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterAndLogin(t, env, "chat1@example.com")

	convID := createConversation(t, env, token, "First chat")
	reply := sendMessage(t, env, token, convID, "hello there")

	userMsg := reply["user_message"].(map[string]any)
	assistantMsg := reply["assistant_message"].(map[string]any)
	if userMsg["content"] != "hello there" {
		t.Fatalf("user message not echoed: %v", userMsg["content"])
	}
	if assistantMsg["role"] != "assistant" {
		t.Fatalf("unexpected assistant role: %v", assistantMsg["role"])
	}
	if !strings.Contains(assistantMsg["content"].(string), "hello there") {
		t.Fatalf("assistant reply missing prompt echo: %v", assistantMsg["content"])
	}

	// Both turns visible through the message listing
	resp := DoRequest(t, env, "GET", fmt.Sprintf("/api/v1/conversations/%s/messages", convID), nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("listing messages: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	msgs := result["data"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestRenameAndDeleteConversation(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterAndLogin(t, env, "chat2@example.com")

	convID := createConversation(t, env, token, "Old title")

	resp := DoRequest(t, env, "PUT", "/api/v1/conversations/"+convID,
		map[string]string{"title": "New title"}, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("renaming: status %d", resp.StatusCode)
	}

	resp = DoRequest(t, env, "GET", "/api/v1/conversations/"+convID, nil, token)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	if data["title"] != "New title" {
		t.Fatalf("rename not persisted: %v", data["title"])
	}

	resp = DoRequest(t, env, "DELETE", "/api/v1/conversations/"+convID, nil, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deleting: status %d", resp.StatusCode)
	}

	resp = DoRequest(t, env, "GET", "/api/v1/conversations/"+convID, nil, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestConversationOwnership(t *testing.T) {
	env := SetupTestEnv(t)
	ownerToken := RegisterAndLogin(t, env, "owner@example.com")
	otherToken := RegisterAndLogin(t, env, "other@example.com")

	convID := createConversation(t, env, ownerToken, "Private")

	resp := DoRequest(t, env, "GET", "/api/v1/conversations/"+convID, nil, otherToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign conversation, got %d", resp.StatusCode)
	}

	path := fmt.Sprintf("/api/v1/conversations/%s/messages", convID)
	resp = DoRequest(t, env, "POST", path, map[string]any{"content": "hi"}, otherToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 posting to foreign conversation, got %d", resp.StatusCode)
	}
}

func TestSemanticSearchFindsMessage(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterAndLogin(t, env, "search@example.com")

	convID := createConversation(t, env, token, "Searchable")
	sendMessage(t, env, token, convID, "the quick brown fox jumps over the lazy dog")

	// Embeddings are written asynchronously after the reply returns.
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp := DoRequest(t, env, "POST", "/api/v1/conversations/search",
			map[string]any{"query": "the quick brown fox jumps over the lazy dog", "limit": 5}, token)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("searching: status %d", resp.StatusCode)
		}
		result := ParseResponse(t, resp)
		if data, ok := result["data"].([]any); ok && len(data) > 0 {
			hit := data[0].(map[string]any)
			msg := hit["message"].(map[string]any)
			if !strings.Contains(msg["content"].(string), "quick brown fox") {
				t.Fatalf("unexpected top hit: %v", msg["content"])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("search never returned the embedded message")
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func TestListConversationsPagination(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterAndLogin(t, env, "pages@example.com")

	for i := 0; i < 3; i++ {
		createConversation(t, env, token, fmt.Sprintf("Chat %d", i))
	}

	resp := DoRequest(t, env, "GET", "/api/v1/conversations?page=1&page_size=2", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("listing: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 conversations on page 1, got %d", len(data))
	}
	if int(result["total_count"].(float64)) != 3 {
		t.Fatalf("expected total_count 3, got %v", result["total_count"])
	}
}
