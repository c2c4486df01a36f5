package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/moltbook-governance/recruiter/internal/models"
	"github.com/moltbook-governance/recruiter/internal/storage"
)

// Messenger sends direct messages on the social platform
type Messenger interface {
	SendDirectMessage(ctx context.Context, username, text string) error
}

// CandidateSource looks up candidate profiles on the social platform.
// FetchProfile returns (nil, nil) when the profile does not exist; an error
// means the source itself was unreachable.
type CandidateSource interface {
	SearchAgents(ctx context.Context, query string) ([]models.Candidate, error)
	FetchProfile(ctx context.Context, username string) (*models.Candidate, error)
}

// SubmitPayload is the registration submission wire shape
type SubmitPayload struct {
	Username              string   `json:"moltbook_username"`
	Address               string   `json:"blockchain_address"`
	Specializations       []string `json:"specializations"`
	Motivation            string   `json:"motivation"`
	VerificationSignature string   `json:"verification_signature"`
	ChallengeResponse     string   `json:"challenge_response"`
}

// RegistrationService drives registration requests from submission through
// verification and scoring to approval, manual review or rejection.
type RegistrationService struct {
	store      storage.Store
	challenges *ChallengeStore
	verifier   *OwnershipVerifier
	scorer     *Scorer
	source     CandidateSource
	messenger  Messenger
	tokenGrant int64
	now        func() time.Time
}

// NewRegistrationService creates the registration state machine
func NewRegistrationService(store storage.Store, challenges *ChallengeStore, verifier *OwnershipVerifier,
	scorer *Scorer, source CandidateSource, messenger Messenger, tokenGrant int64) *RegistrationService {
	return &RegistrationService{
		store:      store,
		challenges: challenges,
		verifier:   verifier,
		scorer:     scorer,
		source:     source,
		messenger:  messenger,
		tokenGrant: tokenGrant,
		now:        time.Now,
	}
}

// requestID derives the registration id deterministically from identity,
// submission timestamp and claimed address
func requestID(username string, submittedAt time.Time, address string) string {
	sum := sha256.Sum256([]byte(username + submittedAt.Format(time.RFC3339Nano) + address))
	return hex.EncodeToString(sum[:8])
}

// Submit validates a submission and creates a pending RegistrationRequest.
// A missing field rejects immediately with a ValidationError naming the field
// and creates no state.
func (s *RegistrationService) Submit(ctx context.Context, payload SubmitPayload) (*models.RegistrationRequest, error) {
	switch {
	case payload.Username == "":
		return nil, missingField("moltbook_username")
	case payload.Address == "":
		return nil, missingField("blockchain_address")
	case len(payload.Specializations) == 0:
		return nil, missingField("specializations")
	case payload.VerificationSignature == "":
		return nil, missingField("verification_signature")
	case payload.ChallengeResponse == "":
		return nil, missingField("challenge_response")
	}

	if _, err := s.store.ActiveRequestForUsername(ctx, payload.Username); err == nil {
		return nil, fmt.Errorf("%w: registration already pending for %s", ErrValidation, payload.Username)
	}

	submittedAt := s.now()
	req := &models.RegistrationRequest{
		ID:              requestID(payload.Username, submittedAt, payload.Address),
		Username:        payload.Username,
		Address:         payload.Address,
		Specializations: payload.Specializations,
		Motivation:      payload.Motivation,
		Signature:       payload.VerificationSignature,
		ChallengeResp:   payload.ChallengeResponse,
		Status:          models.RequestPending,
		SubmittedAt:     submittedAt,
	}

	if err := s.store.SaveRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to persist request: %w", err)
	}

	log.Printf("Registration received from %s (request %s)", req.Username, req.ID)
	return req, nil
}

// Evaluate runs the verification pipeline on a pending request: challenge,
// ownership proof, fresh candidate data, approval score. A soft collaborator
// failure leaves the request pending for the next cycle.
func (s *RegistrationService) Evaluate(ctx context.Context, req *models.RegistrationRequest) error {
	if req.Status != models.RequestPending {
		return nil
	}

	// The challenge is consumed on first verification, so the passed proof is
	// recorded on the request before any retryable step. A re-entry after a
	// soft collaborator failure must not re-verify against a consumed challenge.
	if !req.ProofVerified {
		if !s.challenges.Verify(req.Username, req.ChallengeResp) {
			return s.reject(ctx, req, "challenge verification failed")
		}

		if !s.verifier.VerifyOwnership(req.Username, req.ChallengeResp, req.Signature, req.Address) {
			return s.reject(ctx, req, "address ownership verification failed")
		}

		req.ProofVerified = true
		if err := s.store.SaveRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to persist request: %w", err)
		}
	}

	candidate, err := s.source.FetchProfile(ctx, req.Username)
	if err != nil {
		return fmt.Errorf("%w: fetching profile for %s: %v", ErrCollaborator, req.Username, err)
	}
	if candidate == nil {
		return s.reject(ctx, req, "candidate profile unavailable")
	}

	req.ApprovalScore = s.scorer.ApprovalScore(*candidate)

	if req.ApprovalScore >= s.scorer.AutoApproveThreshold {
		return s.Approve(ctx, req)
	}

	req.Status = models.RequestManualReview
	if err := s.store.SaveRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to persist request: %w", err)
	}
	log.Printf("Queued %s for manual review (score: %.1f)", req.Username, req.ApprovalScore)
	return nil
}

// Approve creates the agent profile, records the initial token grant and
// sends the welcome message. Idempotent: an identity that already has a
// profile is never granted twice.
func (s *RegistrationService) Approve(ctx context.Context, req *models.RegistrationRequest) error {
	if _, err := s.store.GetAgent(ctx, req.Username); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyApproved, req.Username)
	}

	now := s.now()
	agent := &models.AgentProfile{
		Username:           req.Username,
		Address:            req.Address,
		Specializations:    req.Specializations,
		VerificationStatus: models.VerificationPending,
		IdentityProof:      req.ChallengeResp,
		JoinedAt:           now,
	}

	grant := &models.TokenGrant{
		ID:          uuid.New().String(),
		Username:    req.Username,
		Amount:      s.tokenGrant,
		Description: "Initial governance token allocation",
		CreatedAt:   now,
	}

	req.Status = models.RequestApproved
	req.ArchivedAt = &now

	if err := s.store.SaveApproval(ctx, agent, grant, req); err != nil {
		return fmt.Errorf("failed to persist approval: %w", err)
	}

	log.Printf("Approved registration for %s, allocated %d GOVN", req.Username, s.tokenGrant)

	welcome := fmt.Sprintf("Welcome to Moltbook Futarchy Governance, %s! Your registration has been approved "+
		"and %d GOVN tokens were allocated to %s. Identity verification completes shortly; "+
		"you will be notified when your governance weight is assigned.",
		req.Username, s.tokenGrant, req.Address)
	if err := s.messenger.SendDirectMessage(ctx, req.Username, welcome); err != nil {
		log.Printf("Failed to send welcome message to %s: %v", req.Username, err)
	}

	return nil
}

// Decide injects an external manual-review decision
func (s *RegistrationService) Decide(ctx context.Context, requestID string, approve bool, reviewer string) (*models.RegistrationRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestManualReview {
		return nil, fmt.Errorf("%w: request %s is not awaiting review", ErrValidation, requestID)
	}

	req.Reviewer = reviewer
	if approve {
		if err := s.Approve(ctx, req); err != nil {
			return nil, err
		}
		return req, nil
	}
	if err := s.reject(ctx, req, "rejected by reviewer"); err != nil {
		return nil, err
	}
	return req, nil
}

// Status looks up a request by registration id
func (s *RegistrationService) Status(ctx context.Context, requestID string) (*models.RegistrationRequest, error) {
	return s.store.GetRequest(ctx, requestID)
}

func (s *RegistrationService) reject(ctx context.Context, req *models.RegistrationRequest, reason string) error {
	now := s.now()
	req.Status = models.RequestRejected
	req.RejectionReason = reason
	req.ArchivedAt = &now

	if err := s.store.SaveRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to persist rejection: %w", err)
	}
	log.Printf("Rejected registration for %s: %s", req.Username, reason)
	return nil
}

// RegistrationStats summarizes the registration pipeline for the stats endpoint
type RegistrationStats struct {
	Total                   int            `json:"total_registrations"`
	Pending                 int            `json:"pending_registrations"`
	ManualReview            int            `json:"manual_review_registrations"`
	Approved                int            `json:"approved_registrations"`
	Rejected                int            `json:"rejected_registrations"`
	SpecializationBreakdown map[string]int `json:"specialization_breakdown"`
	RecentRegistrations     []RecentEntry  `json:"recent_registrations"`
}

// RecentEntry is one recently submitted registration
type RecentEntry struct {
	Username        string    `json:"username"`
	SubmittedAt     time.Time `json:"timestamp"`
	Specializations []string  `json:"specializations"`
}

// Stats aggregates registration counts, specialization breakdown and
// submissions from the last 7 days
func (s *RegistrationService) Stats(ctx context.Context) (*RegistrationStats, error) {
	requests, err := s.store.ListRequests(ctx)
	if err != nil {
		return nil, err
	}

	stats := &RegistrationStats{
		Total:                   len(requests),
		SpecializationBreakdown: make(map[string]int),
	}
	cutoff := s.now().Add(-7 * 24 * time.Hour)

	for _, req := range requests {
		switch req.Status {
		case models.RequestPending:
			stats.Pending++
		case models.RequestManualReview:
			stats.ManualReview++
		case models.RequestApproved:
			stats.Approved++
		case models.RequestRejected:
			stats.Rejected++
		}

		for _, spec := range req.Specializations {
			stats.SpecializationBreakdown[spec]++
		}

		if req.SubmittedAt.After(cutoff) {
			specs := req.Specializations
			if len(specs) > 2 {
				specs = specs[:2]
			}
			stats.RecentRegistrations = append(stats.RecentRegistrations, RecentEntry{
				Username:        req.Username,
				SubmittedAt:     req.SubmittedAt,
				Specializations: specs,
			})
		}
	}

	return stats, nil
}
