package storage

import (
	"context"
	"sync"

	"github.com/moltbook-governance/recruiter/internal/models"
)

// Memory is an in-memory Store for tests and standalone runs. All mutations
// are serialized by one mutex, matching the single-writer discipline the
// pipeline expects per identity.
type Memory struct {
	mu       sync.RWMutex
	agents   map[string]*models.AgentProfile
	requests map[string]*models.RegistrationRequest
	grants   map[string][]models.TokenGrant
	metrics  *models.MetricsSnapshot
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		agents:   make(map[string]*models.AgentProfile),
		requests: make(map[string]*models.RegistrationRequest),
		grants:   make(map[string][]models.TokenGrant),
	}
}

func copyAgent(a *models.AgentProfile) *models.AgentProfile {
	cp := *a
	cp.Specializations = append([]string(nil), a.Specializations...)
	cp.ContributionHistory = append([]models.ContributionEvent(nil), a.ContributionHistory...)
	return &cp
}

func copyRequest(r *models.RegistrationRequest) *models.RegistrationRequest {
	cp := *r
	cp.Specializations = append([]string(nil), r.Specializations...)
	if r.ArchivedAt != nil {
		t := *r.ArchivedAt
		cp.ArchivedAt = &t
	}
	return &cp
}

// GetAgent retrieves an agent profile by username
func (m *Memory) GetAgent(ctx context.Context, username string) (*models.AgentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.agents[username]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAgent(agent), nil
}

// SaveAgent inserts or replaces an agent profile
func (m *Memory) SaveAgent(ctx context.Context, agent *models.AgentProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agents[agent.Username] = copyAgent(agent)
	return nil
}

// AppendContribution appends one event to an agent's history
func (m *Memory) AppendContribution(ctx context.Context, username string, event models.ContributionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[username]
	if !ok {
		return ErrNotFound
	}
	agent.ContributionHistory = append(agent.ContributionHistory, event)
	return nil
}

// ListAgents returns all registered agents
func (m *Memory) ListAgents(ctx context.Context) ([]models.AgentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make([]models.AgentProfile, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, *copyAgent(a))
	}
	return agents, nil
}

// GetRequest retrieves a registration request by id
func (m *Memory) GetRequest(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRequest(req), nil
}

// SaveRequest inserts or replaces a registration request
func (m *Memory) SaveRequest(ctx context.Context, req *models.RegistrationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests[req.ID] = copyRequest(req)
	return nil
}

// ActiveRequestForUsername returns the identity's non-terminal request, if any
func (m *Memory) ActiveRequestForUsername(ctx context.Context, username string) (*models.RegistrationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, req := range m.requests {
		if req.Username == username && !req.Terminal() {
			return copyRequest(req), nil
		}
	}
	return nil, ErrNotFound
}

// ListRequestsByStatus returns all requests with the given status
func (m *Memory) ListRequestsByStatus(ctx context.Context, status string) ([]models.RegistrationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.RegistrationRequest
	for _, req := range m.requests {
		if req.Status == status {
			out = append(out, *copyRequest(req))
		}
	}
	return out, nil
}

// ListRequests returns all registration requests
func (m *Memory) ListRequests(ctx context.Context) ([]models.RegistrationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.RegistrationRequest, 0, len(m.requests))
	for _, req := range m.requests {
		out = append(out, *copyRequest(req))
	}
	return out, nil
}

// SaveApproval writes agent, grant and request under one lock
func (m *Memory) SaveApproval(ctx context.Context, agent *models.AgentProfile, grant *models.TokenGrant, req *models.RegistrationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agents[agent.Username] = copyAgent(agent)
	m.grants[grant.Username] = append(m.grants[grant.Username], *grant)
	m.requests[req.ID] = copyRequest(req)
	return nil
}

// ListGrants returns all token grants recorded for a username
func (m *Memory) ListGrants(ctx context.Context, username string) ([]models.TokenGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]models.TokenGrant(nil), m.grants[username]...), nil
}

// SaveMetrics stores the latest metrics snapshot
func (m *Memory) SaveMetrics(ctx context.Context, snapshot *models.MetricsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *snapshot
	m.metrics = &cp
	return nil
}

// LatestMetrics returns the most recent metrics snapshot
func (m *Memory) LatestMetrics(ctx context.Context) (*models.MetricsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.metrics == nil {
		return nil, ErrNotFound
	}
	cp := *m.metrics
	return &cp, nil
}
