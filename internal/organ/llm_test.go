package organ

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"organism/internal/inference"
)

func TestLLMOrganInvoke(t *testing.T) {
	var got struct {
		Model    string              `json:"model"`
		Messages []inference.Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"content": `{"drives":{"curiosity":0.1},"reply":"noted"}`},
		})
	}))
	defer srv.Close()

	client := inference.NewClientWithHTTP(srv.URL, "m", srv.Client())
	o := NewLLM("daydream", "Wander and report one insight.", client, nil)

	res, err := o.Invoke(context.Background(), Input{
		Axioms:       map[string]string{"a1": "protect the user", "a2": "stay honest"},
		StateSummary: "energy=0.70",
		Context:      map[string]any{"turn": 3},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Reply != "noted" || res.Drives["curiosity"] != 0.1 {
		t.Fatalf("result = %+v", res)
	}

	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want system+user", len(got.Messages))
	}
	sys := got.Messages[0].Content
	if !strings.Contains(sys, "a1: protect the user") || !strings.Contains(sys, "Wander and report") {
		t.Fatalf("system prompt missing axioms or instructions:\n%s", sys)
	}
	// Axioms render in sorted key order.
	if strings.Index(sys, "a1:") > strings.Index(sys, "a2:") {
		t.Fatal("axioms not sorted")
	}
	usr := got.Messages[1].Content
	if !strings.Contains(usr, "energy=0.70") || !strings.Contains(usr, `"turn":3`) {
		t.Fatalf("user prompt missing state or context:\n%s", usr)
	}
}
