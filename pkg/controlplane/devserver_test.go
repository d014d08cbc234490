package controlplane

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/opwatch/opwatch/pkg/tracker"
)

func newDevClient(t *testing.T, opts ...DevServerOption) (*Client, *DevServer) {
	t.Helper()

	dev := NewDevServer(opts...)
	server := httptest.NewServer(dev.Handler())
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client, dev
}

func TestDevServerWalksMutationToSuccess(t *testing.T) {
	client, _ := newDevClient(t, WithStepsToComplete(2))
	ctx := context.Background()

	token, err := client.Create(ctx, "network:router", `{"name":"edge-1"}`)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if token.Token == "" {
		t.Fatal("expected a progress token")
	}

	wantStatuses := []tracker.MutationStatus{
		tracker.StatusPending,
		tracker.StatusInProgress,
		tracker.StatusSucceeded,
	}
	var resourceID string
	for i, want := range wantStatuses {
		descriptor, err := client.Status(ctx, token.Token)
		if err != nil {
			t.Fatalf("poll %d failed: %v", i, err)
		}
		if descriptor.Status != want {
			t.Fatalf("poll %d: expected %s, got %s", i, want, descriptor.Status)
		}
		if descriptor.ResourceID != "" {
			resourceID = descriptor.ResourceID
		}
	}

	if resourceID == "" {
		t.Error("expected the create to learn a resource identifier")
	}
}

func TestDevServerScriptedFailure(t *testing.T) {
	client, _ := newDevClient(t,
		WithStepsToComplete(0),
		WithOutcome("network:subnet", tracker.StatusFailed))
	ctx := context.Background()

	token, err := client.Delete(ctx, "network:subnet", "sub-1")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	descriptor, err := client.Status(ctx, token.Token)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if descriptor.Status != tracker.StatusFailed {
		t.Errorf("expected failed, got %s", descriptor.Status)
	}
}

func TestDevServerForgetExpiresToken(t *testing.T) {
	client, dev := newDevClient(t)
	ctx := context.Background()

	token, err := client.Create(ctx, "network:router", "{}")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	dev.Forget(token.Token)

	_, err = client.Status(ctx, token.Token)
	if !tracker.IsTokenNotFound(err) {
		t.Errorf("expected token-not-found after forget, got %v", err)
	}
}

func TestDevServerUnknownTokenIsNotFound(t *testing.T) {
	client, _ := newDevClient(t)

	_, err := client.Status(context.Background(), "never-issued")
	if !tracker.IsTokenNotFound(err) {
		t.Errorf("expected token-not-found, got %v", err)
	}
}

func TestDevServerRejectsCreateWithoutResourceType(t *testing.T) {
	client, _ := newDevClient(t)

	_, err := client.Create(context.Background(), "", "{}")
	if !tracker.IsSubmissionFailure(err) {
		t.Errorf("expected submission failure, got %v", err)
	}
}
