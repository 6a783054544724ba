package responder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lexiqai/dialogue-gateway/internal/config"
	"github.com/lexiqai/dialogue-gateway/internal/convo"
)

func testConfig(url string) *config.Config {
	return &config.Config{
		ResponderURL:               url,
		ResponderTimeout:           5,
		RetryMaxAttempts:           2,
		RetryInitialBackoff:        1,
		CircuitBreakerMaxFailures:  3,
		CircuitBreakerResetTimeout: 1,
	}
}

func TestHTTPClient_Reply(t *testing.T) {
	var got struct {
		Text    string `json:"text"`
		History []struct {
			Role string `json:"role"`
			Text string `json:"text"`
		} `json:"history"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "the reply"})
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(server.URL))

	history := []convo.Turn{
		{Role: convo.RoleUser, Text: "earlier question", CreatedAt: time.Now()},
		{Role: convo.RoleAssistant, Text: "earlier answer", CreatedAt: time.Now()},
	}
	reply, err := client.Reply(context.Background(), "new question", history)
	if err != nil {
		t.Fatalf("Reply() failed: %v", err)
	}
	if reply != "the reply" {
		t.Errorf("Expected reply text, got %q", reply)
	}
	if got.Text != "new question" {
		t.Errorf("Expected transcript in request, got %q", got.Text)
	}
	if len(got.History) != 2 || got.History[0].Role != "user" || got.History[1].Role != "assistant" {
		t.Errorf("Expected history in request, got %+v", got.History)
	}
}

func TestHTTPClient_ReplyServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(server.URL))

	if _, err := client.Reply(context.Background(), "hello", nil); err == nil {
		t.Error("Expected error for server failure")
	}
}

func TestHTTPClient_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.CircuitBreakerMaxFailures = 2
	client := NewHTTPClient(cfg)

	for i := 0; i < 2; i++ {
		if _, err := client.Reply(context.Background(), "hello", nil); err == nil {
			t.Fatal("Expected failure")
		}
	}

	// Circuit is now open: the request is rejected without reaching the
	// server.
	before := atomic.LoadInt32(&requests)
	if _, err := client.Reply(context.Background(), "hello", nil); err == nil {
		t.Error("Expected rejection from open circuit")
	}
	if after := atomic.LoadInt32(&requests); after != before {
		t.Errorf("Expected open circuit to skip the network call, saw %d new requests", after-before)
	}
}

func TestHTTPClient_ReplyContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(server.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Reply(ctx, "hello", nil); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
