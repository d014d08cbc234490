package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/opwatch/opwatch/pkg/tracker"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func assertPolicyDenied(t *testing.T, err error) *tracker.TrackerError {
	t.Helper()
	if err == nil {
		t.Fatal("submission should be denied")
	}
	var terr *tracker.TrackerError
	if !errors.As(err, &terr) {
		t.Fatalf("error %T is not a TrackerError", err)
	}
	if terr.Code != tracker.CodePolicyDenied {
		t.Fatalf("code = %s, want %s", terr.Code, tracker.CodePolicyDenied)
	}
	if !tracker.IsSubmissionFailure(err) {
		t.Fatal("policy denial should classify as a submission failure")
	}
	return terr
}

func TestGuardAllowsPlainCreate(t *testing.T) {
	guard := NewGuard(newTestEngine(t))

	err := guard.Authorize(context.Background(), tracker.SubmissionRequest{
		ConnectionID: "conn-1",
		Operation:    tracker.OperationCreate,
		ResourceType: "registry:bucket",
	})
	if err != nil {
		t.Fatalf("create should be authorized: %v", err)
	}
}

func TestGuardBlocksProtectedDelete(t *testing.T) {
	guard := NewGuard(newTestEngine(t), WithProtectedTypes([]string{"registry:database"}))

	err := guard.Authorize(context.Background(), tracker.SubmissionRequest{
		ConnectionID: "conn-1",
		Operation:    tracker.OperationDelete,
		ResourceType: "registry:database",
		ResourceID:   "db-1",
	})
	terr := assertPolicyDenied(t, err)
	if !strings.Contains(terr.Message, "protected-deletes") {
		t.Errorf("message %q should name the violated policy", terr.Message)
	}

	// Unprotected types still delete.
	err = guard.Authorize(context.Background(), tracker.SubmissionRequest{
		ConnectionID: "conn-1",
		Operation:    tracker.OperationDelete,
		ResourceType: "registry:bucket",
		ResourceID:   "b-1",
	})
	if err != nil {
		t.Fatalf("unprotected delete should be authorized: %v", err)
	}
}

func TestGuardBlocksUpdateWithoutResourceID(t *testing.T) {
	guard := NewGuard(newTestEngine(t))

	err := guard.Authorize(context.Background(), tracker.SubmissionRequest{
		ConnectionID: "conn-1",
		Operation:    tracker.OperationUpdate,
		ResourceType: "registry:bucket",
	})
	terr := assertPolicyDenied(t, err)
	if !strings.Contains(terr.Message, "require-resource-id") {
		t.Errorf("message %q should name the violated policy", terr.Message)
	}
}

func TestGuardBlocksMalformedResourceType(t *testing.T) {
	guard := NewGuard(newTestEngine(t))

	err := guard.Authorize(context.Background(), tracker.SubmissionRequest{
		ConnectionID: "conn-1",
		Operation:    tracker.OperationCreate,
		ResourceType: "Registry Bucket!",
	})
	assertPolicyDenied(t, err)
}

func TestGuardEnforcesConnectionAllowList(t *testing.T) {
	guard := NewGuard(newTestEngine(t), WithAllowedConnections([]string{"conn-prod", "conn-staging"}))

	err := guard.Authorize(context.Background(), tracker.SubmissionRequest{
		ConnectionID: "conn-rogue",
		Operation:    tracker.OperationCreate,
		ResourceType: "registry:bucket",
	})
	terr := assertPolicyDenied(t, err)
	if !strings.Contains(terr.Message, "allowed-connections") {
		t.Errorf("message %q should name the violated policy", terr.Message)
	}

	err = guard.Authorize(context.Background(), tracker.SubmissionRequest{
		ConnectionID: "conn-prod",
		Operation:    tracker.OperationCreate,
		ResourceType: "registry:bucket",
	})
	if err != nil {
		t.Fatalf("allow-listed connection should be authorized: %v", err)
	}

	// No allow-list means every connection is allowed.
	open := NewGuard(newTestEngine(t))
	err = open.Authorize(context.Background(), tracker.SubmissionRequest{
		ConnectionID: "conn-anything",
		Operation:    tracker.OperationCreate,
		ResourceType: "registry:bucket",
	})
	if err != nil {
		t.Fatalf("unrestricted guard should authorize: %v", err)
	}
}

func TestDisabledPolicyDoesNotBlock(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.DisablePolicy("resource-type-format"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}

	guard := NewGuard(engine)
	err := guard.Authorize(context.Background(), tracker.SubmissionRequest{
		ConnectionID: "conn-1",
		Operation:    tracker.OperationCreate,
		ResourceType: "Registry Bucket!",
	})
	if err != nil {
		t.Fatalf("disabled policy should not block: %v", err)
	}

	if err := engine.EnablePolicy("resource-type-format"); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	if err := engine.EnablePolicy("no-such-policy"); err == nil {
		t.Error("enabling an unknown policy should fail")
	}
}

func TestLoadCustomPolicyFromDirectory(t *testing.T) {
	dir := t.TempDir()
	rego := `package opwatch.policies.freeze

import rego.v1

deny contains violation if {
	input.request.operation == "create"
	violation := {"message": "create freeze in effect", "severity": "error"}
}
`
	if err := os.WriteFile(filepath.Join(dir, "freeze.rego"), []byte(rego), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	engine := newTestEngine(t)
	if err := engine.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	loaded, err := engine.GetPolicy("freeze")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if !loaded.Enabled || loaded.Severity != SeverityError {
		t.Errorf("loaded policy = %+v, want enabled error-severity", loaded)
	}

	guard := NewGuard(engine)
	err = guard.Authorize(context.Background(), tracker.SubmissionRequest{
		ConnectionID: "conn-1",
		Operation:    tracker.OperationCreate,
		ResourceType: "registry:bucket",
	})
	terr := assertPolicyDenied(t, err)
	if !strings.Contains(terr.Message, "create freeze in effect") {
		t.Errorf("message %q should carry the rego violation message", terr.Message)
	}
}

func TestListPoliciesIncludesBuiltins(t *testing.T) {
	engine := newTestEngine(t)
	names := make(map[string]bool)
	for _, p := range engine.ListPolicies() {
		names[p.Name] = true
	}
	for _, want := range []string{"protected-deletes", "require-resource-id", "resource-type-format", "allowed-connections"} {
		if !names[want] {
			t.Errorf("builtin policy %s missing from ListPolicies", want)
		}
	}
}
