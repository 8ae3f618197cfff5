package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server, registered chan struct{}, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("client was not registered")
	}
	return conn
}

func TestPublishReachesOnlyOwnWorkspace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil, nil)
	go hub.Run(ctx)

	registered := make(chan struct{}, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWs(w, r, r.URL.Query().Get("user"))
		registered <- struct{}{}
	}))
	defer srv.Close()

	a := dial(t, srv, registered, "user_a")
	defer a.Close()
	b := dial(t, srv, registered, "user_b")
	defer b.Close()

	hub.Publish("user_a", "message.inbound", map[string]string{"text": "hi"})

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := a.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Type != "message.inbound" || event.Data["text"] != "hi" {
		t.Errorf("event = %+v", event)
	}

	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := b.ReadMessage(); err == nil {
		t.Error("user_b received an event for user_a")
	}
}

func TestPublishDoesNotBlockWithoutRun(t *testing.T) {
	hub := NewHub(nil, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish("user_a", "noise", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
}

func TestUpgradeChecksOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil, []string{"https://crm.example.com"})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWs(w, r, "user_a")
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	tests := []struct {
		name   string
		origin string
		wantOK bool
	}{
		{"no origin", "", true},
		{"same origin", srv.URL, true},
		{"listed origin", "https://crm.example.com", true},
		{"foreign origin", "https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if conn != nil {
				conn.Close()
			}
			if tt.wantOK && err != nil {
				t.Fatalf("dial with origin %q: %v", tt.origin, err)
			}
			if !tt.wantOK {
				if err == nil {
					t.Fatalf("dial with origin %q succeeded, want rejection", tt.origin)
				}
				if resp == nil || resp.StatusCode != http.StatusForbidden {
					t.Errorf("response = %v, want 403", resp)
				}
			}
		})
	}
}
