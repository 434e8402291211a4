package whatsapp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wbhoster/wbhoster/internal/config"
)

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"+1 (555) 123-4567", "15551234567"},
		{"919876543210", "919876543210"},
		{"+44 20 7946 0958", "442079460958"},
	}
	for _, c := range cases {
		if got := NormalizeNumber(c.in); got != c.want {
			t.Errorf("NormalizeNumber(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSendTextMissingCredentials(t *testing.T) {
	client := NewClient(&config.Config{})

	result := client.SendText("+1 555 000 1111", "hello")
	if result.Success {
		t.Fatal("expected failure without credentials")
	}
	if result.Error != "WhatsApp API credentials not configured" {
		t.Errorf("unexpected error: %q", result.Error)
	}
	if result.PhoneNumber != "15550001111" {
		t.Errorf("result phone = %q, want normalized number", result.PhoneNumber)
	}
}

func TestSendTextSuccess(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"id":"wamid.TEST123"}]}`))
	}))
	defer srv.Close()

	client := NewClient(&config.Config{
		WhatsAppAPIURL: srv.URL,
		WhatsAppToken:  "test-token",
		PhoneNumberID:  "100200300",
	})

	result := client.SendText("+1 555-000-2222", "hello there")
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.MessageID != "wamid.TEST123" {
		t.Errorf("message id = %q", result.MessageID)
	}
	if result.Provider != "meta" {
		t.Errorf("provider = %q", result.Provider)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotPath != "/100200300/messages" {
		t.Errorf("request path = %q", gotPath)
	}
}

func TestSendTextProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid recipient"}}`))
	}))
	defer srv.Close()

	client := NewClient(&config.Config{
		WhatsAppAPIURL: srv.URL,
		WhatsAppToken:  "test-token",
		PhoneNumberID:  "100200300",
	})

	result := client.SendText("15550003333", "hello")
	if result.Success {
		t.Fatal("expected failure on provider error")
	}
	if result.Error == "" {
		t.Error("expected error detail to be set")
	}
}

func TestSendBulkContinuesPastFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}
		w.Write([]byte(`{"messages":[{"id":"wamid.OK"}]}`))
	}))
	defer srv.Close()

	client := NewClient(&config.Config{
		WhatsAppAPIURL: srv.URL,
		WhatsAppToken:  "test-token",
		PhoneNumberID:  "100200300",
	})

	results := client.SendBulk([]BulkRecipient{
		{PhoneNumber: "15550001111", Message: "a"},
		{PhoneNumber: "15550002222", Message: "b"},
	})
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Success {
		t.Error("first send should have failed")
	}
	if !results[1].Success {
		t.Errorf("second send should have succeeded: %q", results[1].Error)
	}
}
