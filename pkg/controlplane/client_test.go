package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opwatch/opwatch/pkg/tracker"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:   server.URL,
		AuthToken: "test-token",
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestClientCreateReturnsToken(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody submitRequest

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.Method + " " + r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(submitResponse{Token: "tok-123"})
	}))

	token, err := client.Create(context.Background(), "network:router", `{"name":"edge-1"}`)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if token.Token != "tok-123" {
		t.Errorf("expected token tok-123, got %s", token.Token)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "POST /v1/resources" {
		t.Errorf("unexpected request %q", gotPath)
	}
	if gotBody.ResourceType != "network:router" {
		t.Errorf("expected resource type in body, got %q", gotBody.ResourceType)
	}
}

func TestClientUpdateAndDeletePaths(t *testing.T) {
	var paths []string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(submitResponse{Token: "tok-x"})
	}))

	ctx := context.Background()
	if _, err := client.Update(ctx, "network:router", "rtr-1", `{"mtu":9000}`); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, err := client.Delete(ctx, "network:router", "rtr-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	want := []string{
		"PATCH /v1/resources/network:router/rtr-1",
		"DELETE /v1/resources/network:router/rtr-1",
	}
	for i, w := range want {
		if paths[i] != w {
			t.Errorf("request %d: expected %q, got %q", i, w, paths[i])
		}
	}
}

func TestClientSubmissionRejectionIsSubmissionError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnprocessableEntity, "BAD_STATE", "desired state is invalid")
	}))

	_, err := client.Create(context.Background(), "network:router", "{}")
	if err == nil {
		t.Fatal("expected submission error")
	}
	if !tracker.IsSubmissionFailure(err) {
		t.Errorf("expected submission-class error, got %v", err)
	}
}

func TestClientConnectionFailureIsSubmissionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = client.Create(context.Background(), "network:router", "{}")
	if !tracker.IsSubmissionFailure(err) {
		t.Errorf("expected submission-class error, got %v", err)
	}
}

func TestClientStatusDecodesDescriptor(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/mutations/tok-9" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(tracker.ProgressDescriptor{
			Token:        "tok-9",
			Operation:    tracker.OperationCreate,
			ResourceType: "network:router",
			ResourceID:   "rtr-7",
			Status:       tracker.StatusInProgress,
			Message:      "allocating",
		})
	}))

	descriptor, err := client.Status(context.Background(), "tok-9")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}

	if descriptor.Status != tracker.StatusInProgress {
		t.Errorf("expected in_progress, got %s", descriptor.Status)
	}
	if descriptor.ResourceID != "rtr-7" {
		t.Errorf("expected resource rtr-7, got %s", descriptor.ResourceID)
	}
}

func TestClientReadsBodyArrivingAfterHeaders(t *testing.T) {
	// A chunked control plane flushes headers before the body. The body must
	// still be readable after the per-request context work is done.
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}

		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			flusher.Flush()
			time.Sleep(200 * time.Millisecond)
			_ = json.NewEncoder(w).Encode(tracker.ProgressDescriptor{
				Token:        "tok-1",
				Operation:    tracker.OperationCreate,
				ResourceType: "network:router",
				Status:       tracker.StatusSucceeded,
			})
			return
		}

		w.WriteHeader(http.StatusAccepted)
		flusher.Flush()
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(submitResponse{Token: "tok-1"})
	}))

	token, err := client.Create(context.Background(), "network:router", "{}")
	if err != nil {
		t.Fatalf("create with a slow body failed: %v", err)
	}
	if token.Token != "tok-1" {
		t.Errorf("expected token tok-1, got %s", token.Token)
	}

	descriptor, err := client.Status(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("status with a slow body failed: %v", err)
	}
	if descriptor.Status != tracker.StatusSucceeded {
		t.Errorf("expected succeeded, got %s", descriptor.Status)
	}
}

func TestClientStatusNotFoundIsTokenNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "TOKEN_NOT_FOUND", "progress token not found")
	}))

	_, err := client.Status(context.Background(), "tok-gone")
	if err == nil {
		t.Fatal("expected error")
	}
	if !tracker.IsTokenNotFound(err) {
		t.Errorf("expected token-not-found error, got %v", err)
	}
}

func TestClientStatusServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "", "backend overloaded")
	}))

	_, err := client.Status(context.Background(), "tok-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !tracker.IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
	if tracker.IsTokenNotFound(err) {
		t.Error("server error must not terminate tracking")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
}
