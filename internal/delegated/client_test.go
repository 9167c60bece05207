package delegated

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ContactID != "c-1" || req.Text != "bonjour" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(Response{Success: true, ReplyText: "Bonjour !", Confidence: 0.8})
	}))
	defer server.Close()

	client := NewClient(nil, server.URL, time.Second)
	if !client.Configured() {
		t.Fatal("client with base url must report configured")
	}
	resp, err := client.Generate(context.Background(), Request{ContactID: "c-1", Text: "bonjour"})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp.ReplyText != "Bonjour !" || resp.Confidence != 0.8 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGenerateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "reported failure",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(Response{Success: false})
			},
		},
		{
			name: "empty reply",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(Response{Success: true, ReplyText: "   "})
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(nil, server.URL, time.Second)
			if _, err := client.Generate(context.Background(), Request{Text: "bonjour"}); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestGenerateUnconfigured(t *testing.T) {
	t.Parallel()

	client := NewClient(nil, "", time.Second)
	if client.Configured() {
		t.Fatal("empty base url must report unconfigured")
	}
	if _, err := client.Generate(context.Background(), Request{Text: "x"}); err == nil {
		t.Fatal("expected an error")
	}
}
