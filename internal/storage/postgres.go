package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moltbook-governance/recruiter/internal/models"
)

// Postgres is the durable Store backed by a pgx connection pool
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres creates a new database-backed store
func NewPostgres(databaseURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{Pool: pool}, nil
}

// Close closes the database connection
func (p *Postgres) Close() {
	p.Pool.Close()
}

// Migrate runs database migrations
func (p *Postgres) Migrate(migrationsPath string) error {
	config := p.Pool.Config().ConnConfig
	databaseURL := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		config.User, config.Password, config.Host, config.Port, config.Database, "disable")

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", absPath)
	}

	m, err := migrate.New("file://"+absPath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// GetAgent retrieves an agent profile by username
func (p *Postgres) GetAgent(ctx context.Context, username string) (*models.AgentProfile, error) {
	var agent models.AgentProfile
	err := p.Pool.QueryRow(ctx,
		`SELECT username, address, specializations, karma_score, verification_status,
		 governance_weight, identity_proof, joined_at
		 FROM agents WHERE username = $1`,
		username).Scan(
		&agent.Username, &agent.Address, &agent.Specializations, &agent.KarmaScore,
		&agent.VerificationStatus, &agent.GovernanceWeight, &agent.IdentityProof, &agent.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	history, err := p.contributionHistory(ctx, username)
	if err != nil {
		return nil, err
	}
	agent.ContributionHistory = history

	return &agent, nil
}

func (p *Postgres) contributionHistory(ctx context.Context, username string) ([]models.ContributionEvent, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT event_type, details, created_at FROM contribution_events
		 WHERE username = $1 ORDER BY created_at, id`,
		username)
	if err != nil {
		return nil, fmt.Errorf("failed to load contribution history: %w", err)
	}
	defer rows.Close()

	var events []models.ContributionEvent
	for rows.Next() {
		var ev models.ContributionEvent
		if err := rows.Scan(&ev.Type, &ev.Details, &ev.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func upsertAgent(ctx context.Context, tx pgx.Tx, agent *models.AgentProfile) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO agents (username, address, specializations, karma_score, verification_status, governance_weight, identity_proof, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (username) DO UPDATE SET
		   address = EXCLUDED.address,
		   specializations = EXCLUDED.specializations,
		   karma_score = EXCLUDED.karma_score,
		   verification_status = EXCLUDED.verification_status,
		   governance_weight = EXCLUDED.governance_weight,
		   identity_proof = EXCLUDED.identity_proof`,
		agent.Username, agent.Address, agent.Specializations, agent.KarmaScore,
		agent.VerificationStatus, agent.GovernanceWeight, agent.IdentityProof, agent.JoinedAt)
	return err
}

// SaveAgent inserts or updates an agent profile
func (p *Postgres) SaveAgent(ctx context.Context, agent *models.AgentProfile) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertAgent(ctx, tx, agent); err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}
	return tx.Commit(ctx)
}

// AppendContribution appends one event to an agent's history
func (p *Postgres) AppendContribution(ctx context.Context, username string, event models.ContributionEvent) error {
	tag, err := p.Pool.Exec(ctx,
		`INSERT INTO contribution_events (username, event_type, details, created_at)
		 SELECT $1, $2, $3, $4 WHERE EXISTS (SELECT 1 FROM agents WHERE username = $1)`,
		username, event.Type, event.Details, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append contribution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAgents returns all registered agents (without per-agent history)
func (p *Postgres) ListAgents(ctx context.Context) ([]models.AgentProfile, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT a.username, a.address, a.specializations, a.karma_score, a.verification_status,
		 a.governance_weight, a.identity_proof, a.joined_at,
		 (SELECT COUNT(*) FROM contribution_events ce WHERE ce.username = a.username)
		 FROM agents a ORDER BY a.joined_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []models.AgentProfile
	for rows.Next() {
		var agent models.AgentProfile
		var eventCount int
		err := rows.Scan(&agent.Username, &agent.Address, &agent.Specializations,
			&agent.KarmaScore, &agent.VerificationStatus, &agent.GovernanceWeight,
			&agent.IdentityProof, &agent.JoinedAt, &eventCount)
		if err != nil {
			return nil, err
		}
		// Onboarded() only needs to know history is non-empty
		if eventCount > 0 {
			agent.ContributionHistory = make([]models.ContributionEvent, eventCount)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

const requestColumns = `id, username, address, specializations, motivation, signature,
 challenge_response, status, proof_verified, rejection_reason, approval_score, reviewer, submitted_at, archived_at`

func scanRequest(row pgx.Row) (*models.RegistrationRequest, error) {
	var req models.RegistrationRequest
	err := row.Scan(&req.ID, &req.Username, &req.Address, &req.Specializations,
		&req.Motivation, &req.Signature, &req.ChallengeResp, &req.Status, &req.ProofVerified,
		&req.RejectionReason, &req.ApprovalScore, &req.Reviewer, &req.SubmittedAt, &req.ArchivedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetRequest retrieves a registration request by id
func (p *Postgres) GetRequest(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	req, err := scanRequest(p.Pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM registration_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	return req, nil
}

func upsertRequest(ctx context.Context, tx pgx.Tx, req *models.RegistrationRequest) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO registration_requests (`+requestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   proof_verified = EXCLUDED.proof_verified,
		   rejection_reason = EXCLUDED.rejection_reason,
		   approval_score = EXCLUDED.approval_score,
		   reviewer = EXCLUDED.reviewer,
		   archived_at = EXCLUDED.archived_at`,
		req.ID, req.Username, req.Address, req.Specializations, req.Motivation,
		req.Signature, req.ChallengeResp, req.Status, req.ProofVerified, req.RejectionReason,
		req.ApprovalScore, req.Reviewer, req.SubmittedAt, req.ArchivedAt)
	return err
}

// SaveRequest inserts or updates a registration request
func (p *Postgres) SaveRequest(ctx context.Context, req *models.RegistrationRequest) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertRequest(ctx, tx, req); err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}
	return tx.Commit(ctx)
}

// ActiveRequestForUsername returns the identity's non-terminal request, if any
func (p *Postgres) ActiveRequestForUsername(ctx context.Context, username string) (*models.RegistrationRequest, error) {
	req, err := scanRequest(p.Pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM registration_requests
		 WHERE username = $1 AND status IN ($2, $3) LIMIT 1`,
		username, models.RequestPending, models.RequestManualReview))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active request: %w", err)
	}
	return req, nil
}

func (p *Postgres) listRequests(ctx context.Context, query string, args ...any) ([]models.RegistrationRequest, error) {
	rows, err := p.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []models.RegistrationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// ListRequestsByStatus returns all requests with the given status
func (p *Postgres) ListRequestsByStatus(ctx context.Context, status string) ([]models.RegistrationRequest, error) {
	return p.listRequests(ctx,
		`SELECT `+requestColumns+` FROM registration_requests WHERE status = $1 ORDER BY submitted_at`,
		status)
}

// ListRequests returns all registration requests
func (p *Postgres) ListRequests(ctx context.Context) ([]models.RegistrationRequest, error) {
	return p.listRequests(ctx,
		`SELECT `+requestColumns+` FROM registration_requests ORDER BY submitted_at`)
}

// SaveApproval persists agent, grant and approved request in one transaction
func (p *Postgres) SaveApproval(ctx context.Context, agent *models.AgentProfile, grant *models.TokenGrant, req *models.RegistrationRequest) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertAgent(ctx, tx, agent); err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO token_grants (id, username, amount, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		grant.ID, grant.Username, grant.Amount, grant.Description, grant.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record token grant: %w", err)
	}

	if err := upsertRequest(ctx, tx, req); err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}

	return tx.Commit(ctx)
}

// ListGrants returns all token grants recorded for a username
func (p *Postgres) ListGrants(ctx context.Context, username string) ([]models.TokenGrant, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT id, username, amount, description, created_at FROM token_grants
		 WHERE username = $1 ORDER BY created_at`,
		username)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []models.TokenGrant
	for rows.Next() {
		var g models.TokenGrant
		if err := rows.Scan(&g.ID, &g.Username, &g.Amount, &g.Description, &g.CreatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// SaveMetrics stores a metrics snapshot
func (p *Postgres) SaveMetrics(ctx context.Context, snapshot *models.MetricsSnapshot) error {
	breakdown, err := json.Marshal(snapshot.SpecializationBreakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}

	_, err = p.Pool.Exec(ctx,
		`INSERT INTO recruitment_metrics (taken_at, total_registered, pending_registrations, verified_agents, specialization_breakdown)
		 VALUES ($1, $2, $3, $4, $5)`,
		snapshot.Timestamp, snapshot.TotalRegistered, snapshot.PendingRegistrations,
		snapshot.VerifiedAgents, breakdown)
	if err != nil {
		return fmt.Errorf("failed to save metrics: %w", err)
	}
	return nil
}

// LatestMetrics returns the most recent metrics snapshot
func (p *Postgres) LatestMetrics(ctx context.Context) (*models.MetricsSnapshot, error) {
	var snapshot models.MetricsSnapshot
	var breakdown []byte
	err := p.Pool.QueryRow(ctx,
		`SELECT taken_at, total_registered, pending_registrations, verified_agents, specialization_breakdown
		 FROM recruitment_metrics ORDER BY taken_at DESC LIMIT 1`).Scan(
		&snapshot.Timestamp, &snapshot.TotalRegistered, &snapshot.PendingRegistrations,
		&snapshot.VerifiedAgents, &breakdown)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}

	if err := json.Unmarshal(breakdown, &snapshot.SpecializationBreakdown); err != nil {
		return nil, fmt.Errorf("failed to decode breakdown: %w", err)
	}
	return &snapshot, nil
}
