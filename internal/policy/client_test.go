package policy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(DefaultConfig(strings.TrimPrefix(srv.URL, "http://")))
}

func TestEvaluateWrapsInputAndReturnsResult(t *testing.T) {
	var gotPath, gotBody string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"decision_id":"x","result":{"allow":true}}`))
	})

	decision, err := client.Evaluate(context.Background(), "authz", json.RawMessage(`{"user":"alice"}`))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}

	if gotPath != "/v1/data/authz" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotBody != `{"input":{"user":"alice"}}` {
		t.Fatalf("unexpected body %s", gotBody)
	}
	if string(decision.Result) != `{"allow":true}` {
		t.Fatalf("unexpected result %s", decision.Result)
	}
	if string(decision.Sent) != `{"user":"alice"}` {
		t.Fatalf("unexpected sent %s", decision.Sent)
	}
	if !strings.HasSuffix(decision.Endpoint, "/v1/data/authz") || !strings.HasPrefix(decision.Endpoint, "http://") {
		t.Fatalf("unexpected endpoint %s", decision.Endpoint)
	}
}

func TestEvaluateMissingResultIsNull(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	decision, err := client.Evaluate(context.Background(), "authz", nil)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if string(decision.Result) != "null" || string(decision.Sent) != "null" {
		t.Fatalf("expected null result and input, got %s / %s", decision.Result, decision.Sent)
	}
}

func TestEvaluateUpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "ServerError", handler: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{name: "InvalidJSON", handler: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"result":`))
		}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)
			if _, err := client.Evaluate(context.Background(), "authz", json.RawMessage(`{}`)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEvaluateUnreachableServer(t *testing.T) {
	client := New(DefaultConfig("127.0.0.1:1"))
	if _, err := client.Evaluate(context.Background(), "authz", json.RawMessage(`{}`)); err == nil {
		t.Fatalf("expected connection error")
	}
}

func TestEndpointKeepsPackageSegments(t *testing.T) {
	client := New(DefaultConfig("opa:8181"))

	tests := map[string]string{
		"authz":          "http://opa:8181/v1/data/authz",
		"app/allow":      "http://opa:8181/v1/data/app/allow",
		"/app/allow/":    "http://opa:8181/v1/data/app/allow",
		"odd name/allow": "http://opa:8181/v1/data/odd%20name/allow",
	}
	for policy, want := range tests {
		if got := client.Endpoint(policy); got != want {
			t.Fatalf("Endpoint(%q): expected %s, got %s", policy, want, got)
		}
	}
}
