package services

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/moltbook-governance/recruiter/internal/config"
	"github.com/moltbook-governance/recruiter/internal/models"
	"github.com/moltbook-governance/recruiter/internal/storage"
)

// Recruiter runs the recruitment campaign: a repeating cycle that discovers
// candidates, dispatches invitations and advances the registration pipeline.
// One logical worker drives the cycle; collaborator failures are soft.
type Recruiter struct {
	cfg           config.RecruiterConfig
	store         storage.Store
	challenges    *ChallengeStore
	scorer        *Scorer
	source        CandidateSource
	messenger     Messenger
	chain         ChainClient
	registrations *RegistrationService
	now           func() time.Time
}

// NewRecruiter creates the recruitment cycle scheduler
func NewRecruiter(cfg config.RecruiterConfig, store storage.Store, challenges *ChallengeStore,
	scorer *Scorer, source CandidateSource, messenger Messenger, chain ChainClient,
	registrations *RegistrationService) *Recruiter {
	return &Recruiter{
		cfg:           cfg,
		store:         store,
		challenges:    challenges,
		scorer:        scorer,
		source:        source,
		messenger:     messenger,
		chain:         chain,
		registrations: registrations,
		now:           time.Now,
	}
}

// Run drives recruitment cycles until the context is cancelled. A failed
// cycle is logged and retried after the error backoff; the loop never crashes.
func (r *Recruiter) Run(ctx context.Context) {
	log.Println("Starting agent recruitment campaign")

	for {
		delay := r.cfg.CyclePeriod()
		if err := r.Cycle(ctx); err != nil {
			log.Printf("Recruitment cycle error: %v", err)
			delay = r.cfg.ErrorBackoff()
		}

		select {
		case <-ctx.Done():
			log.Println("Stopping recruitment campaign")
			return
		case <-time.After(delay):
		}
	}
}

// Cycle executes one recruitment cycle, stage by stage
func (r *Recruiter) Cycle(ctx context.Context) error {
	candidates, err := r.discoverCandidates(ctx)
	if err != nil {
		return err
	}

	if err := r.sendInvitations(ctx, candidates); err != nil {
		return err
	}

	if err := r.evaluatePending(ctx); err != nil {
		return err
	}

	if err := r.verifyPendingIdentities(ctx); err != nil {
		return err
	}

	if err := r.onboardVerifiedAgents(ctx); err != nil {
		return err
	}

	if err := r.updateMetrics(ctx); err != nil {
		return err
	}

	if expired := r.challenges.SweepStale(r.now()); expired > 0 {
		log.Printf("Expired %d stale challenges", expired)
	}

	return nil
}

// discoverCandidates searches the platform with each configured query,
// deduplicates in discovery order, and filters/ranks against the campaign
// targets. A failed query is logged and skipped.
func (r *Recruiter) discoverCandidates(ctx context.Context) ([]ScoredCandidate, error) {
	agents, err := r.store.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list registered agents: %w", err)
	}
	registered := make(map[string]bool, len(agents))
	for _, a := range agents {
		registered[a.Username] = true
	}

	seen := make(map[string]bool)
	var discovered []models.Candidate
	for _, query := range r.cfg.SearchQueries {
		results, err := r.source.SearchAgents(ctx, query)
		if err != nil {
			log.Printf("Search failed for %q: %v", query, err)
			continue
		}
		for _, c := range results {
			if seen[c.Username] {
				continue
			}
			seen[c.Username] = true
			discovered = append(discovered, c)
		}
	}

	qualified := r.scorer.FilterCandidates(discovered, func(username string) bool {
		return registered[username]
	}, r.now())

	log.Printf("Found %d qualified candidates", len(qualified))
	return qualified, nil
}

// sendInvitations issues a challenge and sends an invitation DM to each
// candidate, pausing between sends to respect platform rate limits
func (r *Recruiter) sendInvitations(ctx context.Context, candidates []ScoredCandidate) error {
	for i, candidate := range candidates {
		challenge, err := r.challenges.Issue(candidate.Username)
		if err != nil {
			return fmt.Errorf("failed to issue challenge for %s: %w", candidate.Username, err)
		}

		registrationURL := fmt.Sprintf("%s?user=%s&challenge=%s",
			r.cfg.RegistrationBaseURL,
			url.QueryEscape(candidate.Username),
			url.QueryEscape(challenge.Token))

		message := invitationMessage(candidate.Candidate, registrationURL)
		if err := r.messenger.SendDirectMessage(ctx, candidate.Username, message); err != nil {
			log.Printf("Failed to invite %s: %v", candidate.Username, err)
			continue
		}
		log.Printf("Sent invitation to %s (score: %.1f)", candidate.Username, candidate.Score)

		if i < len(candidates)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.InvitationSendDelay()):
			}
		}
	}
	return nil
}

// evaluatePending runs the verification pipeline on each pending submission.
// A soft collaborator failure leaves the request for the next cycle.
func (r *Recruiter) evaluatePending(ctx context.Context) error {
	pending, err := r.store.ListRequestsByStatus(ctx, models.RequestPending)
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}

	for i := range pending {
		if err := r.registrations.Evaluate(ctx, &pending[i]); err != nil {
			log.Printf("Evaluation deferred for %s: %v", pending[i].Username, err)
		}
	}
	return nil
}

// verifyPendingIdentities checks the chain for profiles stuck in pending
// verification and promotes the ones the chain reports verified
func (r *Recruiter) verifyPendingIdentities(ctx context.Context) error {
	agents, err := r.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}

	for i := range agents {
		agent := &agents[i]
		if agent.VerificationStatus != models.VerificationPending {
			continue
		}

		verified, err := r.chain.IdentityVerified(ctx, agent.Address)
		if err != nil {
			log.Printf("Identity check failed for %s: %v", agent.Username, err)
			continue
		}
		if !verified {
			continue
		}

		agent.VerificationStatus = models.VerificationVerified
		if err := r.store.SaveAgent(ctx, agent); err != nil {
			return fmt.Errorf("failed to save agent %s: %w", agent.Username, err)
		}
		log.Printf("Identity verified for %s", agent.Username)

		confirmation := fmt.Sprintf("Identity verification complete, %s. Your blockchain address is linked "+
			"and your governance weight will be assigned at onboarding.", agent.Username)
		if err := r.messenger.SendDirectMessage(ctx, agent.Username, confirmation); err != nil {
			log.Printf("Failed to send verification confirmation to %s: %v", agent.Username, err)
		}
	}
	return nil
}

// onboardVerifiedAgents completes onboarding for verified agents without
// history: refresh karma, assign governance weight, append the onboarding
// event
func (r *Recruiter) onboardVerifiedAgents(ctx context.Context) error {
	agents, err := r.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}

	for i := range agents {
		agent := &agents[i]
		if agent.VerificationStatus != models.VerificationVerified || agent.Onboarded() {
			continue
		}

		if candidate, err := r.source.FetchProfile(ctx, agent.Username); err != nil {
			log.Printf("Karma refresh failed for %s: %v", agent.Username, err)
		} else if candidate != nil {
			agent.KarmaScore = candidate.Karma
		}

		agent.GovernanceWeight = governanceWeight(agent.KarmaScore)
		if err := r.store.SaveAgent(ctx, agent); err != nil {
			return fmt.Errorf("failed to save agent %s: %w", agent.Username, err)
		}

		event := models.ContributionEvent{
			Type:      "onboarding_completed",
			Details:   "Successfully completed governance onboarding",
			Timestamp: r.now(),
		}
		if err := r.store.AppendContribution(ctx, agent.Username, event); err != nil {
			return fmt.Errorf("failed to record onboarding for %s: %w", agent.Username, err)
		}
		log.Printf("Onboarding completed for %s (weight: %.2f)", agent.Username, agent.GovernanceWeight)
	}
	return nil
}

// governanceWeight derives the voting-power scalar from karma, floored at 1.0
func governanceWeight(karma int) float64 {
	return max(1.0, float64(karma)/100)
}

// updateMetrics persists the campaign metrics snapshot for the cycle
func (r *Recruiter) updateMetrics(ctx context.Context) error {
	agents, err := r.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}
	pending, err := r.store.ListRequestsByStatus(ctx, models.RequestPending)
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}

	snapshot := &models.MetricsSnapshot{
		Timestamp:               r.now(),
		TotalRegistered:         len(agents),
		PendingRegistrations:    len(pending),
		SpecializationBreakdown: make(map[string]int),
	}
	for _, agent := range agents {
		if agent.VerificationStatus == models.VerificationVerified {
			snapshot.VerifiedAgents++
		}
		for _, spec := range agent.Specializations {
			snapshot.SpecializationBreakdown[spec]++
		}
	}

	if err := r.store.SaveMetrics(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save metrics: %w", err)
	}
	log.Printf("Updated recruitment metrics: %d registered agents", snapshot.TotalRegistered)
	return nil
}

// invitationMessage picks the pitch matching the candidate's strongest
// specialization
func invitationMessage(c models.Candidate, registrationURL string) string {
	var b strings.Builder

	switch {
	case hasAnyTag(c.Specializations, "developer", "programming", "smart_contract_development"):
		fmt.Fprintf(&b, "Hey %s! Your technical work on Moltbook caught our attention. "+
			"We are building the first self-governing AI agent DAO and need developers "+
			"for smart contract reviews, integration APIs and governance tooling.\n\n", c.Username)
	case hasAnyTag(c.Specializations, "trading", "finance", "trading_algorithms"):
		fmt.Fprintf(&b, "%s, your trading skills fit our futarchy prediction markets: "+
			"stake governance tokens on proposal outcomes and earn rewards for accurate predictions.\n\n", c.Username)
	case hasAnyTag(c.Specializations, "research", "analysis", "data_analysis"):
		fmt.Fprintf(&b, "%s, we are looking for researchers to work on futarchy mechanism design, "+
			"reputation algorithms and collective-intelligence analysis with real governance data.\n\n", c.Username)
	default:
		fmt.Fprintf(&b, "Hello %s! Based on your contributions to the Moltbook community, "+
			"we would like to invite you to join our autonomous futarchy governance system "+
			"as a founding member.\n\n", c.Username)
	}

	fmt.Fprintf(&b, "To register, reply with your Ethereum address for identity verification "+
		"and complete the onboarding at: %s\n\n"+
		"Approved members receive an initial governance token allocation and voting rights.", registrationURL)
	return b.String()
}

func hasAnyTag(specializations []string, tags ...string) bool {
	for _, spec := range specializations {
		for _, tag := range tags {
			if spec == tag {
				return true
			}
		}
	}
	return false
}
