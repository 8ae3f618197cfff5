package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"whatsapp-crm/pkg/models"
)

func TestSendTextMockedWithoutCredentials(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTP: srv.Client()}
	res, err := c.SendText(context.Background(), models.WhatsAppConfig{PhoneNumberID: "only-id"}, "+911", "hi")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if res.Status != models.StatusMocked || res.Provider != ProviderMock {
		t.Errorf("result = %+v, want mocked", res)
	}
	if called {
		t.Error("mocked send must not hit the network")
	}
}

func TestSendTextPostsCloudAPIPayload(t *testing.T) {
	var gotPath, gotAuth string
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.ABC"}]}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTP: srv.Client()}
	cfg := models.WhatsAppConfig{PhoneNumberID: "12345", AccessToken: "secret"}
	res, err := c.SendText(context.Background(), cfg, "+919812345678", "Hello there")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}

	if gotPath != "/12345/messages" {
		t.Errorf("path = %q, want %q", gotPath, "/12345/messages")
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if payload["messaging_product"] != "whatsapp" || payload["recipient_type"] != "individual" || payload["type"] != "text" {
		t.Errorf("payload = %v", payload)
	}
	text, _ := payload["text"].(map[string]interface{})
	if text["body"] != "Hello there" || text["preview_url"] != false {
		t.Errorf("text = %v", text)
	}
	if res.Status != models.StatusSent || res.ExternalID != "wamid.ABC" {
		t.Errorf("result = %+v", res)
	}
}

func TestSendTextProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad token"}}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTP: srv.Client()}
	_, err := c.SendText(context.Background(), models.WhatsAppConfig{PhoneNumberID: "1", AccessToken: "x"}, "+91", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(err.Error(), "WhatsApp API error 401: ") || !strings.Contains(err.Error(), "bad token") {
		t.Errorf("err = %q", err.Error())
	}
}

func TestResolve(t *testing.T) {
	c := &Client{Fallback: Credentials{PhoneNumberID: "env-id", AccessToken: "env-token"}}

	tests := []struct {
		name string
		cfg  models.WhatsAppConfig
		want Credentials
	}{
		{"workspace creds win", models.WhatsAppConfig{PhoneNumberID: " ws-id ", AccessToken: "ws-token"}, Credentials{"ws-id", "ws-token"}},
		{"partial workspace falls back", models.WhatsAppConfig{PhoneNumberID: "ws-id"}, Credentials{"env-id", "env-token"}},
		{"empty falls back", models.WhatsAppConfig{}, Credentials{"env-id", "env-token"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Resolve(tt.cfg); got != tt.want {
				t.Errorf("Resolve = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChatLink(t *testing.T) {
	tests := []struct {
		phone, text, want string
	}{
		{"+91 98123 45678", "", "https://wa.me/919812345678"},
		{"+1 (555) 010-0000", "Hi there", "https://wa.me/15550100000?text=Hi+there"},
	}
	for _, tt := range tests {
		if got := ChatLink(tt.phone, tt.text); got != tt.want {
			t.Errorf("ChatLink(%q, %q) = %q, want %q", tt.phone, tt.text, got, tt.want)
		}
	}
}
