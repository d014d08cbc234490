package controlplane

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/opwatch/opwatch/pkg/tracker"
)

// DevServer is an in-memory control plane for local development and tests.
// It accepts mutations, hands out tokens and walks each mutation through
// pending and in_progress to a terminal state, one step per status poll.
type DevServer struct {
	mu        sync.Mutex
	mutations map[string]*devMutation

	// stepsToComplete is how many status polls a mutation stays
	// non-terminal before resolving.
	stepsToComplete int

	// outcomes overrides the terminal status per resource type. Unlisted
	// types succeed.
	outcomes map[string]tracker.MutationStatus
}

type devMutation struct {
	token        string
	operation    tracker.OperationKind
	resourceType string
	resourceID   string
	polls        int
	forgotten    bool
}

// DevServerOption configures a DevServer.
type DevServerOption func(*DevServer)

// WithStepsToComplete sets how many status polls a mutation stays
// non-terminal. Zero means the first poll already reports the terminal
// state.
func WithStepsToComplete(steps int) DevServerOption {
	return func(s *DevServer) {
		s.stepsToComplete = steps
	}
}

// WithOutcome makes every mutation of the given resource type resolve to
// the given terminal status instead of succeeding.
func WithOutcome(resourceType string, status tracker.MutationStatus) DevServerOption {
	return func(s *DevServer) {
		s.outcomes[resourceType] = status
	}
}

// NewDevServer creates an in-memory control plane.
func NewDevServer(opts ...DevServerOption) *DevServer {
	s := &DevServer{
		mutations:       make(map[string]*devMutation),
		stepsToComplete: 2,
		outcomes:        make(map[string]tracker.MutationStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Forget makes the server stop recognizing a token, so subsequent status
// polls see 404. Tests use it to exercise token expiry.
func (s *DevServer) Forget(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.mutations[token]; ok {
		m.forgotten = true
	}
}

// Handler returns the HTTP handler serving the control-plane API.
func (s *DevServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/resources", s.handleCreate)
	mux.HandleFunc("/v1/resources/", s.handleResource)
	mux.HandleFunc("/v1/mutations/", s.handleStatus)
	return mux
}

func (s *DevServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if req.ResourceType == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "resource_type is required")
		return
	}

	s.accept(w, tracker.OperationCreate, req.ResourceType, "")
}

func (s *DevServer) handleResource(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/resources/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusNotFound, "", "unknown resource path")
		return
	}
	resourceType, resourceID := parts[0], parts[1]

	switch r.Method {
	case http.MethodPatch:
		s.accept(w, tracker.OperationUpdate, resourceType, resourceID)
	case http.MethodDelete:
		s.accept(w, tracker.OperationDelete, resourceType, resourceID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
	}
}

func (s *DevServer) accept(w http.ResponseWriter, op tracker.OperationKind, resourceType, resourceID string) {
	token := uuid.New().String()

	s.mu.Lock()
	s.mutations[token] = &devMutation{
		token:        token,
		operation:    op,
		resourceType: resourceType,
		resourceID:   resourceID,
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(submitResponse{Token: token})
}

func (s *DevServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}

	token := strings.TrimPrefix(r.URL.Path, "/v1/mutations/")

	s.mu.Lock()
	m, ok := s.mutations[token]
	if !ok || m.forgotten {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "TOKEN_NOT_FOUND", "progress token not found")
		return
	}

	m.polls++
	descriptor := s.describe(m)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(descriptor)
}

// describe computes the descriptor for the current poll count. Creates learn
// their resource identifier once they leave pending.
func (s *DevServer) describe(m *devMutation) tracker.ProgressDescriptor {
	descriptor := tracker.ProgressDescriptor{
		Token:        m.token,
		Operation:    m.operation,
		ResourceType: m.resourceType,
		ResourceID:   m.resourceID,
	}

	switch {
	case m.polls <= s.stepsToComplete/2:
		descriptor.Status = tracker.StatusPending

	case m.polls <= s.stepsToComplete:
		descriptor.Status = tracker.StatusInProgress
		if m.operation == tracker.OperationCreate && m.resourceID == "" {
			m.resourceID = "res-" + m.token[:8]
		}
		descriptor.ResourceID = m.resourceID

	default:
		descriptor.Status = s.terminalStatus(m)
		if m.operation == tracker.OperationCreate && m.resourceID == "" {
			m.resourceID = "res-" + m.token[:8]
		}
		descriptor.ResourceID = m.resourceID
		descriptor.Message = fmt.Sprintf("%s %s", m.operation, descriptor.Status)
	}

	return descriptor
}

func (s *DevServer) terminalStatus(m *devMutation) tracker.MutationStatus {
	if status, ok := s.outcomes[m.resourceType]; ok {
		return status
	}
	return tracker.StatusSucceeded
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}
