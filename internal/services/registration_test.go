package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltbook-governance/recruiter/internal/models"
	"github.com/moltbook-governance/recruiter/internal/storage"
)

// staticChain is a ChainClient that always recovers the same address
type staticChain struct {
	addr     string
	verified bool
	err      error
}

func (c staticChain) RecoverSigner(message string, signature []byte) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.addr, nil
}

func (c staticChain) IdentityVerified(ctx context.Context, address string) (bool, error) {
	return c.verified, c.err
}

type fakeSource struct {
	profiles  map[string]*models.Candidate
	results   map[string][]models.Candidate
	searchErr error
	fetchErr  error
}

func (f *fakeSource) SearchAgents(ctx context.Context, query string) ([]models.Candidate, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results[query], nil
}

func (f *fakeSource) FetchProfile(ctx context.Context, username string) (*models.Candidate, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.profiles[username], nil
}

type fakeMessenger struct {
	sent []string // "username: text"
	err  error
}

func (f *fakeMessenger) SendDirectMessage(ctx context.Context, username, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, fmt.Sprintf("%s: %s", username, text))
	return nil
}

type registrationFixture struct {
	service    *RegistrationService
	store      *storage.Memory
	challenges *ChallengeStore
	source     *fakeSource
	messenger  *fakeMessenger
	clock      time.Time
}

func newRegistrationFixture(t *testing.T, chain ChainClient) *registrationFixture {
	t.Helper()

	f := &registrationFixture{
		store:      storage.NewMemory(),
		challenges: NewChallengeStore(time.Hour),
		source:     &fakeSource{profiles: make(map[string]*models.Candidate)},
		messenger:  &fakeMessenger{},
		clock:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.challenges.now = func() time.Time { return f.clock }

	scorer := testScorer()
	f.service = NewRegistrationService(f.store, f.challenges, NewOwnershipVerifier(chain),
		scorer, f.source, f.messenger, 1000)
	f.service.now = func() time.Time { return f.clock }
	return f
}

// submit issues a challenge for the username and submits a matching payload
func (f *registrationFixture) submit(t *testing.T, username, address string) *models.RegistrationRequest {
	t.Helper()

	challenge, err := f.challenges.Issue(username)
	require.NoError(t, err)

	req, err := f.service.Submit(context.Background(), SubmitPayload{
		Username:              username,
		Address:               address,
		Specializations:       []string{"research", "data_analysis"},
		Motivation:            "governance sounds fun",
		VerificationSignature: "deadbeef",
		ChallengeResponse:     challenge.Token,
	})
	require.NoError(t, err)
	return req
}

func TestRegistrationService_Submit_Validation(t *testing.T) {
	valid := SubmitPayload{
		Username:              "alice",
		Address:               "0xabc",
		Specializations:       []string{"research"},
		VerificationSignature: "deadbeef",
		ChallengeResponse:     "token",
	}

	tests := []struct {
		name      string
		mutate    func(p *SubmitPayload)
		wantField string
	}{
		{
			name:      "missing username",
			mutate:    func(p *SubmitPayload) { p.Username = "" },
			wantField: "moltbook_username",
		},
		{
			name:      "missing address",
			mutate:    func(p *SubmitPayload) { p.Address = "" },
			wantField: "blockchain_address",
		},
		{
			name:      "missing specializations",
			mutate:    func(p *SubmitPayload) { p.Specializations = nil },
			wantField: "specializations",
		},
		{
			name:      "missing signature",
			mutate:    func(p *SubmitPayload) { p.VerificationSignature = "" },
			wantField: "verification_signature",
		},
		{
			name:      "missing challenge response",
			mutate:    func(p *SubmitPayload) { p.ChallengeResponse = "" },
			wantField: "challenge_response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
			payload := valid
			tt.mutate(&payload)

			_, err := f.service.Submit(context.Background(), payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), "missing required field: "+tt.wantField)

			// A rejected submission creates no state
			requests, err := f.store.ListRequests(context.Background())
			require.NoError(t, err)
			assert.Empty(t, requests)
		})
	}
}

func TestRegistrationService_Submit(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})

	req := f.submit(t, "alice", "0xabc")
	assert.Len(t, req.ID, 16)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, f.clock, req.SubmittedAt)

	stored, err := f.store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
}

func TestRegistrationService_Submit_RejectsSecondPending(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
	f.submit(t, "alice", "0xabc")

	challenge, err := f.challenges.Issue("alice")
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), SubmitPayload{
		Username:              "alice",
		Address:               "0xother",
		Specializations:       []string{"research"},
		VerificationSignature: "deadbeef",
		ChallengeResponse:     challenge.Token,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "already pending")
}

func autoApproveCandidate() *models.Candidate {
	return &models.Candidate{
		Username:          "alice",
		Karma:             250,
		DaysSinceLastPost: days(1),
		Specializations:   []string{"research", "data_analysis"},
		CommunityRating:   4.8,
	}
}

func TestRegistrationService_Evaluate_AutoApprove(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
	f.source.profiles["alice"] = autoApproveCandidate()

	req := f.submit(t, "alice", "0xabc")
	require.NoError(t, f.service.Evaluate(context.Background(), req))

	assert.Equal(t, models.RequestApproved, req.Status)
	require.NotNil(t, req.ArchivedAt)
	assert.InDelta(t, 220, req.ApprovalScore, 0.001)

	agent, err := f.store.GetAgent(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", agent.Address)
	assert.Equal(t, models.VerificationPending, agent.VerificationStatus)

	grants, err := f.store.ListGrants(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, int64(1000), grants[0].Amount)

	require.Len(t, f.messenger.sent, 1)
	assert.Contains(t, f.messenger.sent[0], "alice: Welcome")
}

func TestRegistrationService_Evaluate_ManualReview(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
	f.source.profiles["alice"] = &models.Candidate{
		Username:          "alice",
		Karma:             100,
		DaysSinceLastPost: days(10),
		Specializations:   []string{"research"},
		CommunityRating:   3.0,
	}

	req := f.submit(t, "alice", "0xabc")
	require.NoError(t, f.service.Evaluate(context.Background(), req))

	assert.Equal(t, models.RequestManualReview, req.Status)
	assert.InDelta(t, 20, req.ApprovalScore, 0.001)

	_, err := f.store.GetAgent(context.Background(), "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegistrationService_Evaluate_ChallengeFailure(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
	req := f.submit(t, "alice", "0xabc")
	req.ChallengeResp = "wrong-token"

	require.NoError(t, f.service.Evaluate(context.Background(), req))
	assert.Equal(t, models.RequestRejected, req.Status)
	assert.Equal(t, "challenge verification failed", req.RejectionReason)
	assert.NotNil(t, req.ArchivedAt)
}

func TestRegistrationService_Evaluate_ExpiredChallenge(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
	req := f.submit(t, "alice", "0xabc")

	// Submission arrived, but evaluation runs past the challenge TTL
	f.clock = f.clock.Add(time.Hour + 400*time.Second)

	require.NoError(t, f.service.Evaluate(context.Background(), req))
	assert.Equal(t, models.RequestRejected, req.Status)
	assert.Equal(t, "challenge verification failed", req.RejectionReason)
}

func TestRegistrationService_Evaluate_OwnershipFailure(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xsomeoneelse"})
	req := f.submit(t, "alice", "0xabc")

	require.NoError(t, f.service.Evaluate(context.Background(), req))
	assert.Equal(t, models.RequestRejected, req.Status)
	assert.Equal(t, "address ownership verification failed", req.RejectionReason)
}

func TestRegistrationService_Evaluate_ProfileGone(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
	req := f.submit(t, "alice", "0xabc")

	require.NoError(t, f.service.Evaluate(context.Background(), req))
	assert.Equal(t, models.RequestRejected, req.Status)
	assert.Equal(t, "candidate profile unavailable", req.RejectionReason)
}

func TestRegistrationService_Evaluate_SourceUnavailable(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
	f.source.fetchErr = errors.New("connection refused")

	req := f.submit(t, "alice", "0xabc")
	err := f.service.Evaluate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCollaborator)

	// Request stays pending for the next cycle
	stored, err := f.store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
}

func TestRegistrationService_Evaluate_RetryAfterSourceOutage(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
	f.source.profiles["alice"] = autoApproveCandidate()
	f.source.fetchErr = errors.New("connection refused")

	req := f.submit(t, "alice", "0xabc")
	err := f.service.Evaluate(context.Background(), req)
	require.ErrorIs(t, err, ErrCollaborator)

	// The challenge was consumed on the first pass; the passed proof must
	// survive the outage so the retry can still approve.
	stored, err := f.store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
	assert.True(t, stored.ProofVerified)

	f.source.fetchErr = nil
	require.NoError(t, f.service.Evaluate(context.Background(), stored))
	assert.Equal(t, models.RequestApproved, stored.Status)

	_, err = f.store.GetAgent(context.Background(), "alice")
	assert.NoError(t, err)
}

func TestRegistrationService_Evaluate_SkipsNonPending(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
	req := f.submit(t, "alice", "0xabc")
	req.Status = models.RequestRejected

	require.NoError(t, f.service.Evaluate(context.Background(), req))
	assert.Equal(t, models.RequestRejected, req.Status)
}

func TestRegistrationService_Approve_Idempotent(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
	f.source.profiles["alice"] = autoApproveCandidate()

	req := f.submit(t, "alice", "0xabc")
	require.NoError(t, f.service.Evaluate(context.Background(), req))

	err := f.service.Approve(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyApproved)

	grants, err := f.store.ListGrants(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, grants, 1, "no double grant")
}

func TestRegistrationService_Decide(t *testing.T) {
	setupReview := func(t *testing.T) (*registrationFixture, *models.RegistrationRequest) {
		f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
		f.source.profiles["alice"] = &models.Candidate{Username: "alice", Karma: 100, DaysSinceLastPost: days(10)}
		req := f.submit(t, "alice", "0xabc")
		require.NoError(t, f.service.Evaluate(context.Background(), req))
		require.Equal(t, models.RequestManualReview, req.Status)
		return f, req
	}

	t.Run("approve", func(t *testing.T) {
		f, req := setupReview(t)

		decided, err := f.service.Decide(context.Background(), req.ID, true, "reviewer_bob")
		require.NoError(t, err)
		assert.Equal(t, models.RequestApproved, decided.Status)
		assert.Equal(t, "reviewer_bob", decided.Reviewer)

		_, err = f.store.GetAgent(context.Background(), "alice")
		assert.NoError(t, err)
	})

	t.Run("reject", func(t *testing.T) {
		f, req := setupReview(t)

		decided, err := f.service.Decide(context.Background(), req.ID, false, "reviewer_bob")
		require.NoError(t, err)
		assert.Equal(t, models.RequestRejected, decided.Status)
		assert.Equal(t, "rejected by reviewer", decided.RejectionReason)

		_, err = f.store.GetAgent(context.Background(), "alice")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("not awaiting review", func(t *testing.T) {
		f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
		req := f.submit(t, "alice", "0xabc")

		_, err := f.service.Decide(context.Background(), req.ID, true, "reviewer_bob")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown request", func(t *testing.T) {
		f := newRegistrationFixture(t, staticChain{addr: "0xabc"})

		_, err := f.service.Decide(context.Background(), "missing", true, "reviewer_bob")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestRegistrationService_Stats(t *testing.T) {
	f := newRegistrationFixture(t, staticChain{addr: "0xabc"})
	f.source.profiles["approved_agent"] = autoApproveCandidate()

	approved := f.submit(t, "approved_agent", "0xabc")
	require.NoError(t, f.service.Evaluate(context.Background(), approved))

	rejected := f.submit(t, "rejected_agent", "0xabc")
	rejected.ChallengeResp = "bogus"
	require.NoError(t, f.service.Evaluate(context.Background(), rejected))

	old := f.submit(t, "old_agent", "0xabc")
	old.SubmittedAt = f.clock.Add(-8 * 24 * time.Hour)
	require.NoError(t, f.store.SaveRequest(context.Background(), old))

	stats, err := f.service.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 3, stats.SpecializationBreakdown["research"])
	assert.Len(t, stats.RecentRegistrations, 2, "week-old submissions drop out of recents")
}
