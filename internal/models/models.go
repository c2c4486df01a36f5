package models

import (
	"time"
)

// Registration request statuses
const (
	RequestPending      = "pending"
	RequestManualReview = "manual_review"
	RequestApproved     = "approved"
	RequestRejected     = "rejected"
)

// Agent verification statuses
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
)

// Challenge statuses
const (
	ChallengeIssued   = "issued"
	ChallengeConsumed = "consumed"
	ChallengeExpired  = "expired"
)

// Candidate is an immutable snapshot of a Moltbook profile, taken at fetch
// time. DaysSinceLastPost is a pointer so a profile that omits the field is
// distinguishable from one that posted today.
type Candidate struct {
	Username          string    `json:"username"`
	Karma             int       `json:"karma"`
	Specializations   []string  `json:"specializations"`
	PostsPerMonth     float64   `json:"posts_per_month"`
	Followers         int       `json:"followers"`
	DaysSinceLastPost *int      `json:"days_since_last_post"`
	CommunityRating   float64   `json:"community_rating"`
	LastActive        time.Time `json:"last_active"`
}

// Challenge is a single-use verification token tied to one identity
type Challenge struct {
	Username string    `json:"username"`
	Token    string    `json:"token"`
	Status   string    `json:"status"`
	IssuedAt time.Time `json:"issued_at"`
}

// RegistrationRequest tracks one submission through the verification pipeline.
// Status is the only mutable field set; terminal requests are archived, never deleted.
type RegistrationRequest struct {
	ID              string     `db:"id" json:"request_id"`
	Username        string     `db:"username" json:"username"`
	Address         string     `db:"address" json:"blockchain_address"`
	Specializations []string   `db:"specializations" json:"specializations"`
	Motivation      string     `db:"motivation" json:"motivation,omitempty"`
	Signature       string     `db:"signature" json:"-"`
	ChallengeResp   string     `db:"challenge_response" json:"-"`
	Status          string     `db:"status" json:"status"`
	ProofVerified   bool       `db:"proof_verified" json:"-"`
	RejectionReason string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ApprovalScore   float64    `db:"approval_score" json:"approval_score,omitempty"`
	Reviewer        string     `db:"reviewer" json:"reviewer,omitempty"`
	SubmittedAt     time.Time  `db:"submitted_at" json:"submitted_at"`
	ArchivedAt      *time.Time `db:"archived_at" json:"archived_at,omitempty"`
}

// Terminal reports whether the request has reached a final status
func (r *RegistrationRequest) Terminal() bool {
	return r.Status == RequestApproved || r.Status == RequestRejected
}

// ContributionEvent is one entry in an agent's append-only history
type ContributionEvent struct {
	Type      string    `db:"event_type" json:"type"`
	Details   string    `db:"details" json:"details"`
	Timestamp time.Time `db:"created_at" json:"timestamp"`
}

// AgentProfile is a registered governance agent. Created on approval, mutated
// only by verification completion and governance-weight recalculation.
type AgentProfile struct {
	Username           string              `db:"username" json:"username"`
	Address            string              `db:"address" json:"blockchain_address"`
	Specializations    []string            `db:"specializations" json:"specializations"`
	KarmaScore         int                 `db:"karma_score" json:"karma_score"`
	VerificationStatus string              `db:"verification_status" json:"verification_status"`
	GovernanceWeight   float64             `db:"governance_weight" json:"governance_weight"`
	IdentityProof      string              `db:"identity_proof" json:"-"`
	JoinedAt           time.Time           `db:"joined_at" json:"joined_at"`
	ContributionHistory []ContributionEvent `json:"contribution_history"`
}

// Onboarded reports whether the agent completed onboarding (history is
// append-only, so any recorded event means onboarding ran)
func (a *AgentProfile) Onboarded() bool {
	return len(a.ContributionHistory) > 0
}

// TokenGrant records a governance token allocation reported to the ledger
type TokenGrant struct {
	ID          string    `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	Amount      int64     `db:"amount" json:"amount"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// MetricsSnapshot is the per-cycle recruitment campaign summary
type MetricsSnapshot struct {
	Timestamp               time.Time      `json:"timestamp"`
	TotalRegistered         int            `json:"total_registered"`
	PendingRegistrations    int            `json:"pending_registrations"`
	VerifiedAgents          int            `json:"verified_agents"`
	SpecializationBreakdown map[string]int `json:"specialization_breakdown"`
}
