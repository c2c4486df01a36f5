package storage

import (
	"context"
	"errors"

	"github.com/moltbook-governance/recruiter/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary for agent profiles, registration requests,
// token grants and campaign metrics. Production uses Postgres; tests use Memory.
type Store interface {
	// Agents
	GetAgent(ctx context.Context, username string) (*models.AgentProfile, error)
	SaveAgent(ctx context.Context, agent *models.AgentProfile) error
	AppendContribution(ctx context.Context, username string, event models.ContributionEvent) error
	ListAgents(ctx context.Context) ([]models.AgentProfile, error)

	// Registration requests
	GetRequest(ctx context.Context, id string) (*models.RegistrationRequest, error)
	SaveRequest(ctx context.Context, req *models.RegistrationRequest) error
	ActiveRequestForUsername(ctx context.Context, username string) (*models.RegistrationRequest, error)
	ListRequestsByStatus(ctx context.Context, status string) ([]models.RegistrationRequest, error)
	ListRequests(ctx context.Context) ([]models.RegistrationRequest, error)

	// SaveApproval persists the approval outcome as one atomic write: the new
	// agent profile, its initial token grant, and the approved request. A crash
	// mid-approval must not leave a profile without its grant.
	SaveApproval(ctx context.Context, agent *models.AgentProfile, grant *models.TokenGrant, req *models.RegistrationRequest) error

	// Grants
	ListGrants(ctx context.Context, username string) ([]models.TokenGrant, error)

	// Metrics
	SaveMetrics(ctx context.Context, snapshot *models.MetricsSnapshot) error
	LatestMetrics(ctx context.Context) (*models.MetricsSnapshot, error)
}
